package stub

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Opcode names an instruction the stub generator asks for.
type Opcode int

const (
	MOV Opcode = iota
	JMP
)

func (o Opcode) String() string {
	switch o {
	case MOV:
		return "mov"
	case JMP:
		return "jmp"
	}
	return fmt.Sprintf("Opcode(%d)", int(o))
}

// Reg is a general purpose register number in encoding order.
type Reg uint8

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

// OperandKind discriminates Operand.
type OperandKind uint8

const (
	KindReg OperandKind = iota + 1
	KindImm
)

// Operand is a typed instruction operand.
type Operand struct {
	Kind OperandKind
	Reg  Reg
	Imm  uint64
}

// R builds a register operand.
func R(r Reg) Operand { return Operand{Kind: KindReg, Reg: r} }

// Imm builds an immediate operand.
func Imm(v uint64) Operand { return Operand{Kind: KindImm, Imm: v} }

// Encoder turns a symbolic instruction into machine code.
type Encoder interface {
	Encode(op Opcode, operands ...Operand) ([]byte, error)
}

// ErrUnsupported is returned for instruction shapes an encoder lacks.
var ErrUnsupported = errors.New("stub: unsupported instruction shape")

// AMD64 encodes the two shapes the stub generator needs on x86-64:
// "mov r64, imm64" and "jmp r64".
type AMD64 struct{}

func rex(w bool, r Reg) byte {
	b := byte(0x40)
	if w {
		b |= 0x08
	}
	if r >= R8 {
		b |= 0x01
	}
	return b
}

// Encode implements Encoder.
func (AMD64) Encode(op Opcode, operands ...Operand) ([]byte, error) {
	switch {
	case op == MOV && len(operands) == 2 && operands[0].Kind == KindReg && operands[1].Kind == KindImm:
		r := operands[0].Reg
		out := make([]byte, 10)
		out[0] = rex(true, r)
		out[1] = 0xB8 + byte(r&7)
		binary.LittleEndian.PutUint64(out[2:], operands[1].Imm)
		return out, nil

	case op == JMP && len(operands) == 1 && operands[0].Kind == KindReg:
		r := operands[0].Reg
		modrm := byte(0xE0) | byte(r&7) // mod=11 reg=/4
		if r >= R8 {
			return []byte{rex(false, r), 0xFF, modrm}, nil
		}
		return []byte{0xFF, modrm}, nil
	}
	return nil, fmt.Errorf("%w: %v with %d operands", ErrUnsupported, op, len(operands))
}
