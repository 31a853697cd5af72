// Package imagefile maps DLL image files read-only for inspection.
package imagefile

import (
	"errors"
	"fmt"
	"os"
)

// ErrNotImage is returned for files that do not start with an MZ header.
var ErrNotImage = errors.New("imagefile: not a PE image")

// Image is a mapped image file. Data is valid until Close.
type Image struct {
	Path string
	Data []byte

	release func() error
}

// Open maps the file at path. Where the platform cannot map files the
// contents are read instead.
func Open(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() // the mapping outlives the descriptor

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size < 2 {
		return nil, fmt.Errorf("%w: %s", ErrNotImage, path)
	}
	if size > int64(^uint(0)>>1) {
		return nil, fmt.Errorf("imagefile: %s too large to map (%d bytes)", path, size)
	}

	data, release, err := mapFile(f, int(size))
	if err != nil {
		return nil, fmt.Errorf("imagefile: map %s: %w", path, err)
	}
	img := &Image{Path: path, Data: data, release: release}
	if data[0] != 'M' || data[1] != 'Z' {
		img.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotImage, path)
	}
	return img, nil
}

// Close unmaps the image. Calling it again is a no-op.
func (i *Image) Close() error {
	if i.release == nil {
		return nil
	}
	err := i.release()
	i.release = nil
	i.Data = nil
	return err
}
