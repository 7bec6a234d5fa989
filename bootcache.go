// Package bootcache ties the cache engine, the control surface, and the
// on-disk stores into the boot-to-boot lifecycle: start a session from the
// persisted playlist, intercept I/O while boot proceeds, then stop and
// fold the recorded history back into the playlist for the next boot.
package bootcache

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/natefinch/atomic"

	"github.com/bootcache/bootcache/internal/config"
	"github.com/bootcache/bootcache/internal/control"
	"github.com/bootcache/bootcache/internal/device"
	"github.com/bootcache/bootcache/internal/engine"
	"github.com/bootcache/bootcache/internal/history"
	"github.com/bootcache/bootcache/internal/playlist"
	"github.com/bootcache/bootcache/internal/stats"
	"github.com/bootcache/bootcache/pkg/errors"
	"github.com/bootcache/bootcache/pkg/types"
)

// Re-exported request and command surface, so importers of this package
// never need to name the internal packages.
type (
	Request  = engine.Request
	Decision = engine.Decision
	Command  = control.Command
	Result   = control.Result
)

const (
	ReadRequest  = engine.ReadRequest
	WriteRequest = engine.WriteRequest
	ActionBypass = engine.ActionBypass
	ActionServe  = engine.ActionServe
)

// Cache is the top-level handle over one block device.
type Cache struct {
	cfg    *config.Configuration
	logger *slog.Logger

	engine     *engine.Engine
	dispatcher *control.Dispatcher
	playlists  *playlist.Store
	histories  *history.Store
}

// Option configures a Cache.
type Option func(*Cache)

// WithConfig sets the configuration. Defaults are used otherwise.
func WithConfig(cfg *config.Configuration) Option {
	return func(c *Cache) {
		if cfg != nil {
			c.cfg = cfg
		}
	}
}

// WithLogger overrides the logger built from the logging configuration.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Cache over the given device.
func New(dev device.Device, opts ...Option) *Cache {
	c := &Cache{
		cfg:       config.Default(),
		playlists: playlist.NewStore(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = newLogger(c.cfg.Logging)
	}
	c.histories = history.NewStore(c.cfg.History.Compression)
	c.engine = engine.New(dev,
		engine.WithConfig(c.cfg),
		engine.WithLogger(c.logger))
	c.dispatcher = control.NewDispatcher(c.engine, control.WithLogger(c.logger))
	return c
}

// newLogger builds a slog logger from the logging configuration.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	ho := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, ho))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, ho))
}

// Start begins a session from the persisted playlist. A missing playlist
// starts a recording-only session; an unreadable one is ignored the same
// way, since a bad playlist must never prevent boot.
func (c *Cache) Start(blocksize uint64) error {
	entries, err := c.playlists.Load(c.cfg.Paths.Playlist)
	if err != nil {
		if !errors.IsCode(err, errors.ErrCodeNotFound) {
			c.logger.Warn("ignoring unreadable playlist",
				slog.String("path", c.cfg.Paths.Playlist),
				slog.Any("error", err))
		}
		entries = nil
	}
	return c.engine.Start(blocksize, entries)
}

// Intercept classifies one inbound I/O request. See engine.Engine.Intercept.
func (c *Cache) Intercept(ctx context.Context, req Request) Decision {
	return c.engine.Intercept(ctx, req)
}

// Stop ends the active session. The results are those of engine.Engine.Stop.
func (c *Cache) Stop() (historyBytes int, truncated bool, err error) {
	return c.engine.Stop()
}

// Commit drains the stopped session's history, persists it, and folds it
// into the stored playlist for the next boot. When the merged playlist
// would exceed the entry cap, the freshly recorded playlist replaces the
// stored one instead of growing it.
func (c *Cache) Commit() error {
	entries, err := c.engine.History()
	if err != nil {
		return err
	}
	if err := c.histories.Save(c.cfg.Paths.History, entries); err != nil {
		return err
	}

	// A long session can record more entries than a playlist may hold.
	// Keep the earliest portion: it covers the boot-critical reads.
	source := entries
	if len(source) > types.MaxPlaylistEntries {
		source = source[:types.MaxPlaylistEntries]
	}
	recorded, err := history.Convert(source)
	if err != nil {
		return err
	}

	current, err := c.playlists.Load(c.cfg.Paths.Playlist)
	if err != nil {
		if !errors.IsCode(err, errors.ErrCodeNotFound) {
			c.logger.Warn("discarding unreadable playlist",
				slog.String("path", c.cfg.Paths.Playlist),
				slog.Any("error", err))
		}
		current = nil
	}

	merged, err := playlist.Merge(current, recorded)
	if err != nil {
		if !errors.IsCode(err, errors.ErrCodeTooManyEntries) {
			return err
		}
		c.logger.Warn("merged playlist over cap, keeping recorded playlist only",
			slog.Int("current", len(current)),
			slog.Int("recorded", len(recorded)))
		merged = recorded
	}

	if err := c.playlists.Save(c.cfg.Paths.Playlist, merged); err != nil {
		return err
	}
	if err := c.saveStatistics(); err != nil {
		// Statistics are diagnostics; losing them must not fail the commit.
		c.logger.Warn("failed to persist statistics", slog.Any("error", err))
	}
	c.logger.Info("playlist updated",
		slog.String("path", c.cfg.Paths.Playlist),
		slog.Int("extents", len(merged)))
	return nil
}

// saveStatistics writes the final session snapshot as JSON.
func (c *Cache) saveStatistics() error {
	data, err := json.MarshalIndent(c.engine.Stats(), "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(c.cfg.Paths.Statistics, bytes.NewReader(data))
}

// Tag appends a checkpoint marker to the session history.
func (c *Cache) Tag() error {
	return c.engine.Tag()
}

// Stats returns an immutable statistics snapshot, valid in any state.
func (c *Cache) Stats() types.Statistics {
	return c.engine.Stats()
}

// Dispatch executes one raw control command.
func (c *Cache) Dispatch(ctx context.Context, cmd Command) (*Result, error) {
	return c.dispatcher.Dispatch(ctx, cmd)
}

// Exporter returns the prometheus exporter, or nil if metrics are disabled.
func (c *Cache) Exporter() *stats.Exporter {
	return c.engine.Exporter()
}
