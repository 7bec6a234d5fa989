// Package control implements the command surface of the cache: a small
// versioned command envelope and a dispatcher that decodes each command,
// routes it to the engine, and encodes the result. It is the seam a host
// integration (sysctl shim, RPC endpoint, CLI) talks to instead of the
// engine API.
package control

import (
	"context"
	"log/slog"

	"github.com/bootcache/bootcache/internal/engine"
	"github.com/bootcache/bootcache/pkg/errors"
	"github.com/bootcache/bootcache/pkg/types"
)

// Command is one control request. Magic must carry the interface version
// magic; a mismatch rejects the command before anything else is looked at.
// Param and Data are opcode-specific: Start reads the session blocksize
// from Param and the packed playlist records from Data; the other opcodes
// take no payload.
type Command struct {
	Magic uint32
	Op    types.Opcode
	Param uint64
	Data  []byte
}

// Result is the response to a dispatched command.
//
// Length always carries the byte size the caller should expect to
// transfer: for Stop it is the pending history size (0 when truncated),
// for History the size of Data. Data holds the packed history records for
// History. Stats is set only for the stats opcode.
type Result struct {
	Length    int
	Truncated bool
	Data      []byte
	Stats     *types.Statistics
}

// Dispatcher routes validated commands to an engine.
type Dispatcher struct {
	engine *engine.Engine
	logger *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher's logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher creates a dispatcher over the given engine.
func NewDispatcher(e *engine.Engine, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		engine: e,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch executes one command. The magic is checked before any decoding
// or engine call, so a stale caller built against a different interface
// revision can never cause a side effect.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Magic != types.ControlMagic {
		return nil, errors.Newf(errors.ErrCodeVersionMismatch,
			"command magic 0x%08x, interface is 0x%08x", cmd.Magic, types.ControlMagic).
			WithOperation("dispatch")
	}

	switch cmd.Op {
	case types.OpStart:
		return d.start(cmd)
	case types.OpStop:
		return d.stop()
	case types.OpHistory:
		return d.history()
	case types.OpStats:
		return d.stats()
	case types.OpTag:
		if err := d.engine.Tag(); err != nil {
			return nil, err
		}
		return &Result{}, nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidOpcode, "opcode 0x%x", uint32(cmd.Op)).
			WithOperation("dispatch")
	}
}

func (d *Dispatcher) start(cmd Command) (*Result, error) {
	entries, err := types.UnmarshalExtents(cmd.Data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidArgument, "malformed playlist payload", err).
			WithOperation("start")
	}
	if err := d.engine.Start(cmd.Param, entries); err != nil {
		return nil, err
	}
	d.logger.Debug("dispatched start",
		slog.Uint64("blocksize", cmd.Param),
		slog.Int("entries", len(entries)))
	return &Result{}, nil
}

func (d *Dispatcher) stop() (*Result, error) {
	n, truncated, err := d.engine.Stop()
	if err != nil {
		return nil, err
	}
	return &Result{Length: n, Truncated: truncated}, nil
}

func (d *Dispatcher) history() (*Result, error) {
	entries, err := d.engine.History()
	if err != nil {
		return nil, err
	}
	data := types.MarshalHistory(entries)
	return &Result{Length: len(data), Data: data}, nil
}

func (d *Dispatcher) stats() (*Result, error) {
	s := d.engine.Stats()
	return &Result{Stats: &s}, nil
}
