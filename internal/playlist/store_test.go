package playlist

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/bootcache/bootcache/pkg/errors"
	"github.com/bootcache/bootcache/pkg/types"
)

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bootcache.playlist")
	store := NewStore()

	entries := []types.Extent{
		ext(0, 4096, types.FlagPrefetch),
		ext(8192, 512, 0),
		ext(1<<30, 65536, types.FlagPrefetch),
	}
	normalized, err := Coalesce(entries)
	require.NoError(t, err)

	require.NoError(t, store.Save(path, normalized))

	loaded, err := store.Load(path)
	require.NoError(t, err)

	if diff := cmp.Diff(normalized, loaded); diff != "" {
		t.Errorf("round trip mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestStoreRoundTripEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.playlist")
	store := NewStore()

	require.NoError(t, store.Save(path, nil))
	loaded, err := store.Load(path)
	require.NoError(t, err)
	require.Empty(t, loaded)
}

func TestStoreLoadNotFound(t *testing.T) {
	store := NewStore()
	_, err := store.Load(filepath.Join(t.TempDir(), "absent.playlist"))
	require.True(t, errors.IsCode(err, errors.ErrCodeNotFound), "got %v", err)
}

func TestStoreLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	store := NewStore()

	writeValid := func(t *testing.T, path string) []byte {
		t.Helper()
		require.NoError(t, store.Save(path, []types.Extent{ext(0, 4096, types.FlagPrefetch)}))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		return data
	}

	tests := []struct {
		name    string
		corrupt func(data []byte) []byte
		code    errors.ErrorCode
	}{
		{
			name:    "truncated header",
			corrupt: func(data []byte) []byte { return data[:6] },
			code:    errors.ErrCodeCorrupt,
		},
		{
			name: "bad magic",
			corrupt: func(data []byte) []byte {
				binary.LittleEndian.PutUint32(data[0:4], 0xdeadbeef)
				return data
			},
			code: errors.ErrCodeCorrupt,
		},
		{
			name: "bad version",
			corrupt: func(data []byte) []byte {
				binary.LittleEndian.PutUint32(data[4:8], 99)
				return data
			},
			code: errors.ErrCodeCorrupt,
		},
		{
			name: "count disagrees with size",
			corrupt: func(data []byte) []byte {
				binary.LittleEndian.PutUint32(data[8:12], 7)
				return data
			},
			code: errors.ErrCodeCorrupt,
		},
		{
			name: "count over cap",
			corrupt: func(data []byte) []byte {
				binary.LittleEndian.PutUint32(data[8:12], types.MaxPlaylistEntries+1)
				return data
			},
			code: errors.ErrCodeTooManyEntries,
		},
		{
			name:    "trailing garbage",
			corrupt: func(data []byte) []byte { return append(data, 0x00, 0x01) },
			code:    errors.ErrCodeCorrupt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".playlist")
			data := writeValid(t, path)
			require.NoError(t, os.WriteFile(path, tt.corrupt(data), 0o644))

			_, err := store.Load(path)
			require.True(t, errors.IsCode(err, tt.code), "want %s, got %v", tt.code, err)
		})
	}
}

func TestStoreSaveRejectsOverCapBeforeWriting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "over.playlist")
	store := NewStore()

	over := make([]types.Extent, types.MaxPlaylistEntries+1)
	for i := range over {
		over[i] = ext(uint64(i)*100, 10, 0)
	}

	err := store.Save(path, over)
	require.True(t, errors.IsCode(err, errors.ErrCodeTooManyEntries), "got %v", err)

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr), "failed Save left a file behind")
}
