// Package config loads the settings that shape an isolation domain: which
// OS release the private libraries come from, how big the engine arena is,
// and whether heap creation is converted into cheap arena tokens.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/joshuapare/winredir/pkg/types"
)

// Limits applied by Validate.
const (
	MinArenaSize   = 64 << 10
	MaxFlsSlots    = 4096
	DefaultFlsSize = 128
)

var (
	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("config: invalid")
)

// Config is the decoded form of a winredir TOML file.
type Config struct {
	// PrivHeap converts HeapCreate inside the isolated libraries into a
	// token allocation instead of a real OS heap.
	PrivHeap bool `toml:"priv_heap"`

	// OSVersion names the Windows release, e.g. "win7" or "10".
	OSVersion string `toml:"os_version"`

	NumberOfProcessors int      `toml:"number_of_processors"`
	ArenaSize          int      `toml:"arena_size"`
	FlsSlots           int      `toml:"fls_slots"`
	SearchPaths        []string `toml:"search_paths"`
	CurrentDirectory   string   `toml:"current_directory"`
	UserSID            string   `toml:"user_sid"`

	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	c := &Config{
		PrivHeap:           true,
		OSVersion:          "10",
		NumberOfProcessors: 4,
		ArenaSize:          16 << 20,
		FlsSlots:           DefaultFlsSize,
		SearchPaths:        []string{`C:\Windows\System32`},
		CurrentDirectory:   `C:\`,
		UserSID:            "S-1-5-21-1000",
	}
	c.Log.Level = "info"
	c.Log.Format = "text"
	return c
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	c := Default()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse decodes TOML text over the defaults and validates the result.
func Parse(data string) (*Config, error) {
	c := Default()
	if _, err := toml.Decode(data, c); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Version returns the parsed OSVersion.
func (c *Config) Version() types.WindowsVersion {
	v, err := types.ParseWindowsVersion(c.OSVersion)
	if err != nil {
		return types.Windows10
	}
	return v
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if _, err := types.ParseWindowsVersion(c.OSVersion); err != nil {
		return fmt.Errorf("%w: os_version: %v", ErrInvalid, err)
	}
	if c.NumberOfProcessors < 1 {
		return fmt.Errorf("%w: number_of_processors must be >= 1, got %d", ErrInvalid, c.NumberOfProcessors)
	}
	if c.ArenaSize < MinArenaSize {
		return fmt.Errorf("%w: arena_size must be >= %d, got %d", ErrInvalid, MinArenaSize, c.ArenaSize)
	}
	if c.FlsSlots < 1 || c.FlsSlots > MaxFlsSlots {
		return fmt.Errorf("%w: fls_slots must be in [1, %d], got %d", ErrInvalid, MaxFlsSlots, c.FlsSlots)
	}
	if !strings.HasPrefix(c.UserSID, "S-") {
		return fmt.Errorf("%w: user_sid %q is not a SID string", ErrInvalid, c.UserSID)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalid, c.Log.Format)
	}
	return nil
}
