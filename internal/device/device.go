// Package device defines the raw block device capability the cache engine
// consumes, plus file-backed and in-memory implementations. The engine
// only ever reads: misses are bypassed by the host's I/O subsystem, and
// the device here serves prefetch and nothing else.
package device

import (
	"context"
)

// Device is a raw block device the engine can read from. Implementations
// must be safe for concurrent use.
type Device interface {
	// ReadAt fills p with device bytes starting at offset. It returns an
	// error if the full range cannot be read. Implementations should
	// honor ctx cancellation where practical; a read that has already
	// been issued to hardware may complete anyway.
	ReadAt(ctx context.Context, p []byte, offset uint64) error
}
