package engine

import (
	"sort"
	"sync"

	"github.com/bootcache/bootcache/pkg/types"
)

// extentState tracks the residency of one cached extent.
type extentState int

const (
	// extentPending: prefetch has not completed yet.
	extentPending extentState = iota
	// extentResident: device bytes are in memory and servable.
	extentResident
	// extentFailed: the prefetch read errored; the extent is unusable but
	// the session continues degraded.
	extentFailed
	// extentDiscarded: an overlapping write invalidated the extent.
	extentDiscarded
)

// cachedExtent is one entry of the extent index plus its residency state.
// The done channel is closed exactly once when the extent stops being
// pending, which is what wakes interception threads blocked on a partial
// hit.
type cachedExtent struct {
	types.Extent

	mu    sync.Mutex
	state extentState
	data  []byte
	hit   bool // served at least one full hit

	done      chan struct{}
	closeOnce sync.Once
}

// complete moves the extent out of the pending state and wakes waiters.
func (ce *cachedExtent) complete() {
	ce.closeOnce.Do(func() { close(ce.done) })
}

// read copies the requested range out of the extent if it is resident and
// fully covers the range. The copy keeps the cached buffer private to the
// index so a later discard cannot race with the caller.
func (ce *cachedExtent) read(offset, length uint64) ([]byte, bool) {
	ce.mu.Lock()
	defer ce.mu.Unlock()

	if ce.state != extentResident || !ce.Contains(offset, length) {
		return nil, false
	}
	out := make([]byte, length)
	copy(out, ce.data[offset-ce.Offset:])
	ce.hit = true
	return out, true
}

// extentIndex is a read-mostly structure over the session's extents. The
// slice itself is immutable after Start (sorted ascending, pairwise
// disjoint after coalescing); only per-extent residency state mutates, so
// lookups never take an index-wide lock.
type extentIndex struct {
	extents []*cachedExtent
}

func newExtentIndex(entries []types.Extent) *extentIndex {
	extents := make([]*cachedExtent, len(entries))
	for i, e := range entries {
		extents[i] = &cachedExtent{
			Extent: e,
			done:   make(chan struct{}),
		}
	}
	return &extentIndex{extents: extents}
}

// lookup returns the first extent overlapping [offset, offset+length), or
// nil. Extents are disjoint, so at most one extent can fully contain a
// range; a range straddling a gap overlaps its first extent only.
func (idx *extentIndex) lookup(offset, length uint64) *cachedExtent {
	i := sort.Search(len(idx.extents), func(i int) bool {
		return idx.extents[i].End() > offset
	})
	if i == len(idx.extents) {
		return nil
	}
	if ce := idx.extents[i]; ce.Overlaps(offset, length) {
		return ce
	}
	return nil
}

// invalidate discards every extent overlapping [offset, offset+length),
// releasing resident buffers through release and returning the byte total
// of discarded resident data. Pending extents are marked so the prefetch
// worker drops the read on completion.
func (idx *extentIndex) invalidate(offset, length uint64, release func(buf []byte)) uint64 {
	var discarded uint64
	for _, ce := range idx.extents {
		if ce.Offset >= offset+length {
			break
		}
		if !ce.Overlaps(offset, length) {
			continue
		}
		ce.mu.Lock()
		switch ce.state {
		case extentResident:
			discarded += ce.Length
			release(ce.data)
			ce.data = nil
			ce.state = extentDiscarded
		case extentPending:
			ce.state = extentDiscarded
		}
		ce.mu.Unlock()
		ce.complete()
	}
	return discarded
}

// abandonPending fails every still-pending extent. Called once the
// prefetch pool has exited so no worker can resurrect one.
func (idx *extentIndex) abandonPending() {
	for _, ce := range idx.extents {
		ce.mu.Lock()
		if ce.state == extentPending {
			ce.state = extentFailed
		}
		ce.mu.Unlock()
		ce.complete()
	}
}

// teardown discards every extent, releasing cached buffers through
// release, and returns the byte total of resident extents that never
// served a hit, for spurious-block accounting. The state is demoted
// before the buffer is dropped so an interception thread that raced past
// the active check sees a discarded extent, never a resident one with no
// data behind it.
func (idx *extentIndex) teardown(release func(buf []byte)) uint64 {
	var unused uint64
	for _, ce := range idx.extents {
		ce.mu.Lock()
		if ce.state == extentResident {
			if !ce.hit {
				unused += ce.Length
			}
			ce.state = extentDiscarded
		}
		if ce.data != nil {
			release(ce.data)
			ce.data = nil
		}
		ce.mu.Unlock()
	}
	return unused
}
