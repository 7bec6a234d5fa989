// Package engine implements the cache engine: the session state machine,
// the extent index built from a playlist, the interception path for
// inbound I/O, background prefetch, and the composition of the history
// recorder and statistics collector.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bootcache/bootcache/internal/buffer"
	"github.com/bootcache/bootcache/internal/config"
	"github.com/bootcache/bootcache/internal/device"
	"github.com/bootcache/bootcache/internal/history"
	"github.com/bootcache/bootcache/internal/playlist"
	"github.com/bootcache/bootcache/internal/stats"
	"github.com/bootcache/bootcache/pkg/errors"
	"github.com/bootcache/bootcache/pkg/types"
)

// Cache status flag bits reported in the statistics snapshot.
const (
	// FlagHistoryTruncated: the recorder ran out of clusters and the
	// history has a gap.
	FlagHistoryTruncated uint64 = 1 << 0
)

// pageSize is the page unit used for spurious-page accounting.
const pageSize = 4096

// session holds the per-session state created by Start and destroyed once
// History drains the recorder. Interception threads reach it through an
// atomic pointer, never through the control lock.
type session struct {
	index    *extentIndex
	recorder *history.Recorder

	cancel       context.CancelFunc
	prefetchDone <-chan struct{}
	stopped      chan struct{}
}

// Engine is the boot cache engine. One engine serves one logical block
// device and at most one session at a time: load a playlist with Start,
// run until boot settles, Stop, and drain with History.
//
// Control operations (Start, Stop, History, Tag) are serialized by a
// dedicated control lock. Stats and the interception path never take
// that lock.
type Engine struct {
	cfg    *config.Configuration
	dev    device.Device
	logger *slog.Logger

	pool     *buffer.Pool
	stats    *stats.Collector
	exporter *stats.Exporter

	ctl       sync.Mutex
	state     atomic.Uint32
	blocksize atomic.Uint64
	session   atomic.Pointer[session]
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithConfig sets the engine configuration.
func WithConfig(cfg *config.Configuration) Option {
	return func(e *Engine) {
		if cfg != nil {
			e.cfg = cfg
		}
	}
}

// New creates an idle engine over the given device.
func New(dev device.Device, opts ...Option) *Engine {
	e := &Engine{
		cfg:    config.Default(),
		dev:    dev,
		logger: slog.Default(),
		pool:   buffer.NewPool(),
		stats:  stats.NewCollector(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.Metrics.Enabled {
		e.exporter = stats.NewExporter(e.stats, e.cfg.Metrics.Namespace)
	}
	e.state.Store(uint32(types.StateIdle))
	return e
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() types.EngineState {
	return types.EngineState(e.state.Load())
}

// Exporter returns the prometheus exporter, or nil if metrics are
// disabled.
func (e *Engine) Exporter() *stats.Exporter {
	return e.exporter
}

// Start begins a cache session. Valid only from Idle. The playlist, if
// non-empty, is validated against the entry cap and normalized before the
// extent index is built; prefetch workers then read each extent from the
// device in playlist order. All validation happens before any state is
// touched, so a failed Start leaves the engine unchanged.
func (e *Engine) Start(blocksize uint64, entries []types.Extent) error {
	e.ctl.Lock()
	defer e.ctl.Unlock()

	if e.State() != types.StateIdle {
		return errors.Newf(errors.ErrCodeInvalidState, "start while %s", e.State()).WithOperation("start")
	}
	if blocksize == 0 {
		return errors.New(errors.ErrCodeInvalidArgument, "blocksize must be non-zero").WithOperation("start")
	}
	if len(entries) > types.MaxPlaylistEntries {
		return errors.Newf(errors.ErrCodeTooManyEntries,
			"playlist has %d entries, cap is %d", len(entries), types.MaxPlaylistEntries).WithOperation("start")
	}
	normalized, err := playlist.Coalesce(entries)
	if err != nil {
		return err
	}

	e.blocksize.Store(blocksize)
	e.stats.Reset(blocksize)
	e.setState(types.StateStarting)
	e.stats.SetTotalExtents(uint64(len(normalized)))

	recorder := history.NewRecorder(
		history.WithClusterEntries(e.cfg.History.ClusterEntries),
		history.WithMaxClusters(e.cfg.History.MaxClusters),
		history.WithAllocObserver(func(n int) {
			e.stats.SetHistoryClusters(uint64(n))
		}),
	)

	idx := newExtentIndex(normalized)
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		index:    idx,
		recorder: recorder,
		cancel:   cancel,
		stopped:  make(chan struct{}),
	}
	s.prefetchDone = e.startPrefetch(ctx, idx)
	e.session.Store(s)

	e.setState(types.StateActive)
	e.logger.Info("cache started",
		slog.Uint64("blocksize", blocksize),
		slog.Int("extents", len(normalized)))
	return nil
}

// Stop ends the active session. Prefetch workers are canceled rather than
// awaited to natural completion, and by the time Stop returns no further
// cache mutation can occur; all subsequent interception traffic is
// unconditionally bypassed. The return is the pending history size in
// bytes, or 0 with truncated set when the history cannot be reported in
// one transfer; in both cases History must still be called to clear the
// recorder.
func (e *Engine) Stop() (historyBytes int, truncated bool, err error) {
	e.ctl.Lock()
	defer e.ctl.Unlock()

	if e.State() != types.StateActive {
		return 0, false, errors.Newf(errors.ErrCodeInvalidState, "stop while %s", e.State()).WithOperation("stop")
	}
	e.setState(types.StateStopping)

	s := e.session.Load()
	close(s.stopped)
	s.cancel()
	<-s.prefetchDone
	s.index.abandonPending()

	e.stats.MarkPrefetchStop()
	e.stats.MarkReadStop()

	unused := s.index.teardown(e.pool.Put)
	if unused > 0 {
		e.stats.AddSpuriousBlocks(e.blocks(unused))
		e.stats.AddSpuriousPages((unused + pageSize - 1) / pageSize)
	}

	s.recorder.Seal()
	e.stats.MarkCacheStop()

	truncated = s.recorder.Truncated() || s.recorder.Len() > e.cfg.Engine.MaxHistoryTransfer
	if truncated {
		e.stats.SetCacheFlags(FlagHistoryTruncated)
	}

	e.setState(types.StateStopped)
	e.logger.Info("cache stopped",
		slog.Int("history_entries", s.recorder.Len()),
		slog.Bool("truncated", truncated))

	if truncated {
		return 0, true, nil
	}
	return s.recorder.ByteSize(), false, nil
}

// History drains the recorder in bounded chunks, clears it, and returns
// the full recorded sequence. Valid only from Stopped; afterwards the
// engine is Idle and ready for the next Start.
func (e *Engine) History() ([]types.HistoryEntry, error) {
	e.ctl.Lock()
	defer e.ctl.Unlock()

	if e.State() != types.StateStopped {
		return nil, errors.Newf(errors.ErrCodeInvalidState, "history while %s", e.State()).WithOperation("history")
	}

	s := e.session.Load()
	cursor, err := s.recorder.Drain(e.cfg.Engine.DrainChunk)
	if err != nil {
		return nil, err
	}

	var all []types.HistoryEntry
	for {
		chunk, ok := cursor.Next()
		if !ok {
			break
		}
		all = append(all, chunk...)
	}

	e.session.Store(nil)
	e.setState(types.StateIdle)
	e.logger.Info("history drained", slog.Int("entries", len(all)))
	return all, nil
}

// Tag appends a checkpoint marker to the session history. Valid only
// while Active.
func (e *Engine) Tag() error {
	e.ctl.Lock()
	defer e.ctl.Unlock()

	if e.State() != types.StateActive {
		return errors.Newf(errors.ErrCodeInvalidState, "tag while %s", e.State()).WithOperation("tag")
	}
	e.session.Load().recorder.Tag()
	return nil
}

// Stats returns an immutable statistics snapshot. Valid from any state
// and never blocked by the control lock, so diagnostic callers can poll
// it freely.
func (e *Engine) Stats() types.Statistics {
	return e.stats.Snapshot()
}

func (e *Engine) setState(s types.EngineState) {
	e.state.Store(uint32(s))
	e.stats.SetState(s)
}

// blocks converts a byte count to blocks at the session blocksize,
// rounding up.
func (e *Engine) blocks(bytes uint64) uint64 {
	bs := e.blocksize.Load()
	if bs == 0 {
		return 0
	}
	return (bytes + bs - 1) / bs
}
