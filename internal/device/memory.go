package device

import (
	"context"
	"fmt"
	"sync"
)

// MemDevice is an in-memory Device for tests and simulations. Reads can
// be delayed or failed through a per-read hook, which lets a test hold a
// prefetch in flight or inject device errors for specific ranges.
type MemDevice struct {
	mu   sync.RWMutex
	data []byte

	// ReadHook, if set, runs before each read with the requested range.
	// Returning an error fails the read. Blocking in the hook simulates
	// a slow device; the hook receives the read's context so it can
	// observe cancellation.
	ReadHook func(ctx context.Context, offset, length uint64) error
}

// NewMemDevice creates a device of the given size with a deterministic
// byte pattern, so tests can verify that cached data matches the device.
func NewMemDevice(size int) *MemDevice {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return &MemDevice{data: data}
}

// ReadAt implements Device.
func (d *MemDevice) ReadAt(ctx context.Context, p []byte, offset uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.ReadHook != nil {
		if err := d.ReadHook(ctx, offset, uint64(len(p))); err != nil {
			return err
		}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if offset+uint64(len(p)) > uint64(len(d.data)) {
		return fmt.Errorf("read [%d, %d) beyond device end %d", offset, offset+uint64(len(p)), len(d.data))
	}
	copy(p, d.data[offset:])
	return nil
}

// Bytes returns the device contents for direct comparison in tests.
func (d *MemDevice) Bytes() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.data
}

// Overwrite replaces a range of the device, simulating a write that went
// straight to disk past the cache.
func (d *MemDevice) Overwrite(offset uint64, p []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.data[offset:], p)
}
