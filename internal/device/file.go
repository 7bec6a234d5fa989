package device

import (
	"context"
	"fmt"
	"os"

	"github.com/bootcache/bootcache/pkg/errors"
)

// FileDevice is a Device backed by a file or raw block device node.
type FileDevice struct {
	f *os.File
}

// OpenFile opens a file-backed device read-only.
func OpenFile(path string) (*FileDevice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open device %s: %w", path, err)
	}
	return &FileDevice{f: f}, nil
}

// ReadAt implements Device. os.File.ReadAt already loops until the buffer
// is full or an error occurs, so a nil return means p is fully populated.
func (d *FileDevice) ReadAt(ctx context.Context, p []byte, offset uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := d.f.ReadAt(p, int64(offset)); err != nil {
		return errors.Wrap(errors.ErrCodeDeviceRead,
			fmt.Sprintf("read at %d (%d bytes)", offset, len(p)), err)
	}
	return nil
}

// Close releases the underlying file.
func (d *FileDevice) Close() error {
	return d.f.Close()
}
