package types

import (
	"fmt"
	"time"
)

// Control protocol constants. The magic doubles as the persisted playlist
// version stamp, so a playlist written by one protocol revision is rejected
// by another instead of being misparsed.
const (
	// ControlMagic identifies the control command structure revision.
	ControlMagic uint32 = 0x10102021

	// MaxPlaylistEntries is the hard cap on playlist cardinality. Any
	// operation that would produce or accept a longer list is rejected
	// before mutation.
	MaxPlaylistEntries = 100000

	// DefaultCopyChunk is the default number of entries moved per chunk
	// when copying playlists or draining history.
	DefaultCopyChunk = 512
)

// Opcode selects a control operation.
type Opcode uint32

const (
	OpStart   Opcode = 0x01
	OpStop    Opcode = 0x02
	OpHistory Opcode = 0x03
	OpStats   Opcode = 0x04
	OpTag     Opcode = 0x05
)

// String returns the opcode's conventional name.
func (o Opcode) String() string {
	switch o {
	case OpStart:
		return "start"
	case OpStop:
		return "stop"
	case OpHistory:
		return "history"
	case OpStats:
		return "stats"
	case OpTag:
		return "tag"
	default:
		return fmt.Sprintf("opcode(0x%x)", uint32(o))
	}
}

// ExtentFlags carries per-extent hints. Flags survive coalescing as the
// bitwise union of the merged entries' flags.
type ExtentFlags uint32

const (
	// FlagPrefetch marks an extent as worth reading ahead of demand.
	FlagPrefetch ExtentFlags = 1 << 0
)

// Extent is one playlist entry: a contiguous byte range on the device.
type Extent struct {
	Offset uint64      `json:"offset"`
	Length uint64      `json:"length"`
	Flags  ExtentFlags `json:"flags"`
}

// End returns the first byte past the extent.
func (e Extent) End() uint64 {
	return e.Offset + e.Length
}

// Overlaps reports whether the extent shares at least one byte with the
// range [offset, offset+length).
func (e Extent) Overlaps(offset, length uint64) bool {
	return e.Offset < offset+length && offset < e.End()
}

// Contains reports whether [offset, offset+length) lies entirely inside
// the extent.
func (e Extent) Contains(offset, length uint64) bool {
	return offset >= e.Offset && offset+length <= e.End()
}

// Validate checks the extent invariants: non-zero length and no overflow
// of offset+length.
func (e Extent) Validate() error {
	if e.Length == 0 {
		return fmt.Errorf("extent at offset %d has zero length", e.Offset)
	}
	if e.Offset+e.Length < e.Offset {
		return fmt.Errorf("extent {%d, %d} overflows", e.Offset, e.Length)
	}
	return nil
}

// HistoryKind classifies one recorded I/O observation.
type HistoryKind uint32

const (
	// KindMiss is a read the cache could not satisfy.
	KindMiss HistoryKind = 0
	// KindHit is a read satisfied from the cache.
	KindHit HistoryKind = 1
	// KindTag is a caller-inserted checkpoint with no offset/length payload.
	KindTag HistoryKind = 2
	// KindWrite is a write observed passing through to the device.
	KindWrite HistoryKind = 3
)

// String returns the kind's conventional name.
func (k HistoryKind) String() string {
	switch k {
	case KindMiss:
		return "miss"
	case KindHit:
		return "hit"
	case KindTag:
		return "tag"
	case KindWrite:
		return "write"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

// HistoryEntry is one classified I/O observation made during a session.
// Tag entries carry no offset/length semantics beyond their position in
// the sequence.
type HistoryEntry struct {
	Offset uint64      `json:"offset"`
	Length uint64      `json:"length"`
	Kind   HistoryKind `json:"kind"`
}

// EngineState is the cache engine's lifecycle state.
type EngineState uint32

const (
	StateIdle EngineState = iota
	StateStarting
	StateActive
	StateStopping
	StateStopped
)

// String returns the state's conventional name.
func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}

// Statistics is an immutable snapshot of engine activity. Counters are
// monotonically non-decreasing within a session and reset only by the
// next Start.
type Statistics struct {
	// Device.
	Blocksize uint64 `json:"blocksize"`

	// Readahead.
	InitiatedReads uint64 `json:"initiated_reads"`
	ReadBlocks     uint64 `json:"read_blocks"`
	ReadErrors     uint64 `json:"read_errors"`
	ErrorDiscards  uint64 `json:"error_discards"`

	// Session timestamps. Zero until the corresponding event happens.
	CacheStart   time.Time `json:"cache_start"`
	PrefetchStop time.Time `json:"pfetch_stop"`
	ReadStop     time.Time `json:"read_stop"`
	CacheStop    time.Time `json:"cache_stop"`

	// Total time interception threads spent blocked waiting for blocks.
	WaitTime time.Duration `json:"wait_time"`

	// Inbound strategy calls.
	StrategyCalls        uint64 `json:"strategy_calls"`
	StrategyNonRead      uint64 `json:"strategy_nonread"`
	StrategyBypassed     uint64 `json:"strategy_bypassed"`
	StrategyBypassActive uint64 `json:"strategy_bypass_active"`
	StrategyBlocked      uint64 `json:"strategy_blocked"`

	// Extents.
	TotalExtents  uint64 `json:"total_extents"`
	ExtentLookups uint64 `json:"extent_lookups"`
	ExtentHits    uint64 `json:"extent_hits"`
	HitBlkMissing uint64 `json:"hit_blkmissing"`

	// Block/page activity.
	RequestedBlocks uint64 `json:"requested_blocks"`
	HitBlocks       uint64 `json:"hit_blocks"`
	WriteDiscards   uint64 `json:"write_discards"`
	SpuriousBlocks  uint64 `json:"spurious_blocks"`
	SpuriousPages   uint64 `json:"spurious_pages"`

	// History activity.
	HistoryClusters uint64 `json:"history_clusters"`

	// Current status.
	CacheFlags uint64 `json:"cache_flags"`
	State      string `json:"state"`
}
