package history

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/natefinch/atomic"

	"github.com/bootcache/bootcache/pkg/errors"
	"github.com/bootcache/bootcache/pkg/types"
)

// Persisted history layout: a 16-byte header {magic u32, version u32,
// count u32, flags u32} followed by the packed entry records, optionally
// zstd-compressed. Histories from a full boot run to hundreds of
// thousands of records, so compression is on by default.
const (
	storeVersion uint32 = 1
	headerSize          = 16

	flagCompressed uint32 = 1 << 0
)

// Store persists drained histories to disk.
type Store struct {
	compress bool
}

// NewStore creates a history store. compress selects zstd compression of
// the record payload.
func NewStore(compress bool) *Store {
	return &Store{compress: compress}
}

// Save writes a history file atomically.
func (s *Store) Save(path string, entries []types.HistoryEntry) error {
	payload := types.MarshalHistory(entries)

	var flags uint32
	if s.compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, "failed to create history compressor", err)
		}
		payload = enc.EncodeAll(payload, make([]byte, 0, len(payload)/2))
		if err := enc.Close(); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, "failed to close history compressor", err)
		}
		flags |= flagCompressed
	}

	buf := make([]byte, headerSize, headerSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], types.ControlMagic)
	binary.LittleEndian.PutUint32(buf[4:8], storeVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(entries)))
	binary.LittleEndian.PutUint32(buf[12:16], flags)
	buf = append(buf, payload...)

	if err := atomic.WriteFile(path, bytes.NewReader(buf)); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to write history", err)
	}
	return nil
}

// Load reads a history file written by Save.
func (s *Store) Load(path string) ([]types.HistoryEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrCodeNotFound, "history %s does not exist", path)
		}
		return nil, errors.Wrap(errors.ErrCodeInternal, "failed to read history", err)
	}
	if len(data) < headerSize {
		return nil, errors.Newf(errors.ErrCodeCorrupt,
			"history %s is %d bytes, shorter than the header", path, len(data))
	}

	magic := binary.LittleEndian.Uint32(data[0:4])
	version := binary.LittleEndian.Uint32(data[4:8])
	count := binary.LittleEndian.Uint32(data[8:12])
	flags := binary.LittleEndian.Uint32(data[12:16])

	if magic != types.ControlMagic {
		return nil, errors.Newf(errors.ErrCodeCorrupt,
			"history %s has magic 0x%x, want 0x%x", path, magic, types.ControlMagic)
	}
	if version != storeVersion {
		return nil, errors.Newf(errors.ErrCodeCorrupt,
			"history %s has version %d, want %d", path, version, storeVersion)
	}

	payload := data[headerSize:]
	if flags&flagCompressed != 0 {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, "failed to create history decompressor", err)
		}
		defer dec.Close()
		payload, err = dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeCorrupt, "failed to decompress history", err)
		}
	}

	if len(payload) != int(count)*types.HistoryWireSize {
		return nil, errors.Newf(errors.ErrCodeCorrupt,
			"history %s payload is %d bytes, %d entries require %d",
			path, len(payload), count, int(count)*types.HistoryWireSize)
	}

	entries, err := types.UnmarshalHistory(payload)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCorrupt, "failed to decode history entries", err)
	}
	return entries, nil
}
