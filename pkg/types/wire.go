package types

import (
	"encoding/binary"
	"fmt"
)

// Record sizes of the fixed little-endian layouts used on disk and on the
// control wire.
const (
	// ExtentWireSize is the encoded size of one playlist entry:
	// u64 offset, u64 length, u32 flags.
	ExtentWireSize = 20

	// HistoryWireSize is the encoded size of one history entry:
	// u64 offset, u64 length, u32 kind.
	HistoryWireSize = 20
)

// PutExtent encodes e into b, which must be at least ExtentWireSize bytes.
func PutExtent(b []byte, e Extent) {
	binary.LittleEndian.PutUint64(b[0:8], e.Offset)
	binary.LittleEndian.PutUint64(b[8:16], e.Length)
	binary.LittleEndian.PutUint32(b[16:20], uint32(e.Flags))
}

// GetExtent decodes one extent from b, which must be at least
// ExtentWireSize bytes.
func GetExtent(b []byte) Extent {
	return Extent{
		Offset: binary.LittleEndian.Uint64(b[0:8]),
		Length: binary.LittleEndian.Uint64(b[8:16]),
		Flags:  ExtentFlags(binary.LittleEndian.Uint32(b[16:20])),
	}
}

// MarshalExtents encodes entries as a packed record array.
func MarshalExtents(entries []Extent) []byte {
	buf := make([]byte, len(entries)*ExtentWireSize)
	for i, e := range entries {
		PutExtent(buf[i*ExtentWireSize:], e)
	}
	return buf
}

// UnmarshalExtents decodes a packed record array. The byte length must be
// an exact multiple of ExtentWireSize.
func UnmarshalExtents(b []byte) ([]Extent, error) {
	if len(b)%ExtentWireSize != 0 {
		return nil, fmt.Errorf("extent array length %d is not a multiple of %d", len(b), ExtentWireSize)
	}
	entries := make([]Extent, len(b)/ExtentWireSize)
	for i := range entries {
		entries[i] = GetExtent(b[i*ExtentWireSize:])
	}
	return entries, nil
}

// PutHistoryEntry encodes h into b, which must be at least HistoryWireSize
// bytes.
func PutHistoryEntry(b []byte, h HistoryEntry) {
	binary.LittleEndian.PutUint64(b[0:8], h.Offset)
	binary.LittleEndian.PutUint64(b[8:16], h.Length)
	binary.LittleEndian.PutUint32(b[16:20], uint32(h.Kind))
}

// GetHistoryEntry decodes one history entry from b, which must be at least
// HistoryWireSize bytes.
func GetHistoryEntry(b []byte) HistoryEntry {
	return HistoryEntry{
		Offset: binary.LittleEndian.Uint64(b[0:8]),
		Length: binary.LittleEndian.Uint64(b[8:16]),
		Kind:   HistoryKind(binary.LittleEndian.Uint32(b[16:20])),
	}
}

// MarshalHistory encodes entries as a packed record array.
func MarshalHistory(entries []HistoryEntry) []byte {
	buf := make([]byte, len(entries)*HistoryWireSize)
	for i, h := range entries {
		PutHistoryEntry(buf[i*HistoryWireSize:], h)
	}
	return buf
}

// UnmarshalHistory decodes a packed record array. The byte length must be
// an exact multiple of HistoryWireSize.
func UnmarshalHistory(b []byte) ([]HistoryEntry, error) {
	if len(b)%HistoryWireSize != 0 {
		return nil, fmt.Errorf("history array length %d is not a multiple of %d", len(b), HistoryWireSize)
	}
	entries := make([]HistoryEntry, len(b)/HistoryWireSize)
	for i := range entries {
		entries[i] = GetHistoryEntry(b[i*HistoryWireSize:])
	}
	return entries, nil
}
