package engine

import (
	"testing"

	"github.com/bootcache/bootcache/pkg/types"
)

// makeResident installs a filled buffer and marks the extent servable, the
// way a completed prefetch would.
func makeResident(ce *cachedExtent) {
	ce.mu.Lock()
	ce.data = make([]byte, ce.Length)
	for i := range ce.data {
		ce.data[i] = byte(i)
	}
	ce.state = extentResident
	ce.mu.Unlock()
	ce.complete()
}

func discard(buf []byte) {}

// A reader that raced past the active check and reaches the extent after
// teardown must see a discarded extent: no panic, no served bytes.
func TestReadAfterTeardownFails(t *testing.T) {
	idx := newExtentIndex([]types.Extent{{Offset: 0, Length: 100, Flags: types.FlagPrefetch}})
	ce := idx.extents[0]
	makeResident(ce)

	idx.teardown(discard)

	// Interior offset: slicing a nil buffer here used to be reachable.
	if data, ok := ce.read(50, 30); ok {
		t.Fatalf("read after teardown served %d bytes", len(data))
	}
	// Exact extent offset: must not serve zeroed bytes as a hit.
	if data, ok := ce.read(0, 100); ok {
		t.Fatalf("read at extent offset after teardown served %d bytes", len(data))
	}

	ce.mu.Lock()
	defer ce.mu.Unlock()
	if ce.state != extentDiscarded {
		t.Fatalf("extent state after teardown is %d, want discarded", ce.state)
	}
	if ce.data != nil {
		t.Fatal("extent kept its buffer after teardown")
	}
}

func TestTeardownCountsOnlyUnusedResident(t *testing.T) {
	idx := newExtentIndex([]types.Extent{
		{Offset: 0, Length: 100},
		{Offset: 4096, Length: 200},
	})
	makeResident(idx.extents[0])
	makeResident(idx.extents[1])

	// First extent serves a hit, second never does.
	if _, ok := idx.extents[0].read(0, 100); !ok {
		t.Fatal("resident extent did not serve")
	}

	var released int
	unused := idx.teardown(func(buf []byte) { released++ })
	if unused != 200 {
		t.Fatalf("unused bytes = %d, want 200", unused)
	}
	if released != 2 {
		t.Fatalf("released %d buffers, want 2", released)
	}
}

func TestInvalidateReleasesResidentBuffers(t *testing.T) {
	idx := newExtentIndex([]types.Extent{
		{Offset: 0, Length: 100},
		{Offset: 4096, Length: 100},
	})
	makeResident(idx.extents[0])
	makeResident(idx.extents[1])

	var released [][]byte
	discarded := idx.invalidate(0, 50, func(buf []byte) { released = append(released, buf) })
	if discarded != 100 {
		t.Fatalf("discarded bytes = %d, want 100", discarded)
	}
	if len(released) != 1 || len(released[0]) != 100 {
		t.Fatalf("released buffers = %v, want one 100-byte buffer", released)
	}

	// The untouched extent still serves; the invalidated one does not.
	if _, ok := idx.extents[1].read(4096, 100); !ok {
		t.Fatal("non-overlapping extent stopped serving")
	}
	if _, ok := idx.extents[0].read(0, 100); ok {
		t.Fatal("invalidated extent still serves")
	}
}

func TestInvalidatePendingReleasesNothing(t *testing.T) {
	idx := newExtentIndex([]types.Extent{{Offset: 0, Length: 100}})

	var released int
	discarded := idx.invalidate(0, 100, func(buf []byte) { released++ })
	if discarded != 0 {
		t.Fatalf("discarded bytes = %d, want 0 for a pending extent", discarded)
	}
	if released != 0 {
		t.Fatalf("released %d buffers for a pending extent, want 0", released)
	}

	// The discard must still wake any waiter.
	select {
	case <-idx.extents[0].done:
	default:
		t.Fatal("pending extent not completed by invalidate")
	}
}
