package playlist

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/natefinch/atomic"

	"github.com/bootcache/bootcache/pkg/errors"
	"github.com/bootcache/bootcache/pkg/types"
)

// Persisted playlist layout: a 12-byte header {magic u32, version u32,
// count u32} followed by count fixed-layout extent records in file order.
const (
	storeVersion   uint32 = 1
	headerSize            = 12
)

// Store loads and persists playlists. Writes are all-or-nothing: the file
// is staged to a temporary location and atomically replaced, so a crash
// mid-save never leaves a readable-but-corrupt playlist.
type Store struct{}

// NewStore creates a playlist store.
func NewStore() *Store {
	return &Store{}
}

// Load reads a playlist file. The returned list is in file order and is
// not implicitly normalized; callers that need normalization call
// Coalesce explicitly.
func (s *Store) Load(path string) ([]types.Extent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrCodeNotFound, "playlist %s does not exist", path)
		}
		return nil, errors.Wrap(errors.ErrCodeInternal, "failed to read playlist", err)
	}

	if len(data) < headerSize {
		return nil, errors.Newf(errors.ErrCodeCorrupt,
			"playlist %s is %d bytes, shorter than the header", path, len(data))
	}

	magic := binary.LittleEndian.Uint32(data[0:4])
	version := binary.LittleEndian.Uint32(data[4:8])
	count := binary.LittleEndian.Uint32(data[8:12])

	if magic != types.ControlMagic {
		return nil, errors.Newf(errors.ErrCodeCorrupt,
			"playlist %s has magic 0x%x, want 0x%x", path, magic, types.ControlMagic)
	}
	if version != storeVersion {
		return nil, errors.Newf(errors.ErrCodeCorrupt,
			"playlist %s has version %d, want %d", path, version, storeVersion)
	}
	if count > types.MaxPlaylistEntries {
		return nil, errors.Newf(errors.ErrCodeTooManyEntries,
			"playlist %s claims %d entries, cap is %d", path, count, types.MaxPlaylistEntries)
	}
	want := headerSize + int(count)*types.ExtentWireSize
	if len(data) != want {
		return nil, errors.Newf(errors.ErrCodeCorrupt,
			"playlist %s is %d bytes, %d entries require %d", path, len(data), count, want)
	}

	entries, err := types.UnmarshalExtents(data[headerSize:])
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCorrupt, "failed to decode playlist entries", err)
	}
	return entries, nil
}

// Save writes a playlist file atomically. Fails with TooManyEntries
// before writing anything if the list exceeds the cap.
func (s *Store) Save(path string, entries []types.Extent) error {
	if len(entries) > types.MaxPlaylistEntries {
		return errors.Newf(errors.ErrCodeTooManyEntries,
			"playlist has %d entries, cap is %d", len(entries), types.MaxPlaylistEntries)
	}

	buf := make([]byte, headerSize, headerSize+len(entries)*types.ExtentWireSize)
	binary.LittleEndian.PutUint32(buf[0:4], types.ControlMagic)
	binary.LittleEndian.PutUint32(buf[4:8], storeVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(entries)))
	buf = append(buf, types.MarshalExtents(entries)...)

	if err := atomic.WriteFile(path, bytes.NewReader(buf)); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to write playlist", err)
	}
	return nil
}
