// Package playlist implements the playlist algorithms (sort, coalesce,
// merge) and the persisted playlist store.
//
// A playlist is an ordered list of disk extents describing what to read
// ahead of demand on the next boot. Normalized form is sorted ascending by
// offset with no two entries overlapping or touching.
package playlist

import (
	"sort"

	"github.com/bootcache/bootcache/pkg/errors"
	"github.com/bootcache/bootcache/pkg/types"
)

// Sort orders entries in place: ascending by offset, ties broken by
// descending length so a larger extent precedes the smaller ones it can
// subsume during coalescing. Otherwise stable.
func Sort(entries []types.Extent) error {
	if len(entries) > types.MaxPlaylistEntries {
		return errors.Newf(errors.ErrCodeTooManyEntries,
			"playlist has %d entries, cap is %d", len(entries), types.MaxPlaylistEntries)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Offset != entries[j].Offset {
			return entries[i].Offset < entries[j].Offset
		}
		return entries[i].Length > entries[j].Length
	})
	return nil
}

// Coalesce returns the normalized form of entries: sorted, pairwise
// disjoint, with touching or overlapping entries merged into a single
// extent spanning [min(offset), max(end)). Merged flags are the bitwise
// union of the merged entries' flags. The input is not modified and need
// not be sorted. Coalescing is idempotent.
func Coalesce(entries []types.Extent) ([]types.Extent, error) {
	if len(entries) > types.MaxPlaylistEntries {
		return nil, errors.Newf(errors.ErrCodeTooManyEntries,
			"playlist has %d entries, cap is %d", len(entries), types.MaxPlaylistEntries)
	}
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidArgument, "invalid playlist entry", err)
		}
	}
	if len(entries) == 0 {
		return []types.Extent{}, nil
	}

	sorted := make([]types.Extent, len(entries))
	copy(sorted, entries)
	if err := Sort(sorted); err != nil {
		return nil, err
	}

	out := sorted[:1]
	for _, e := range sorted[1:] {
		cur := &out[len(out)-1]
		if e.Offset <= cur.End() {
			// Touching or overlapping: extend and union flags.
			if e.End() > cur.End() {
				cur.Length = e.End() - cur.Offset
			}
			cur.Flags |= e.Flags
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Merge combines two playlists into one normalized playlist. Commutative
// and associative as a consequence of Coalesce's determinism.
func Merge(a, b []types.Extent) ([]types.Extent, error) {
	if len(a)+len(b) > types.MaxPlaylistEntries {
		return nil, errors.Newf(errors.ErrCodeTooManyEntries,
			"merged playlist would have %d entries, cap is %d", len(a)+len(b), types.MaxPlaylistEntries)
	}
	combined := make([]types.Extent, 0, len(a)+len(b))
	combined = append(combined, a...)
	combined = append(combined, b...)
	return Coalesce(combined)
}
