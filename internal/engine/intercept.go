package engine

import (
	"context"
	"time"

	"github.com/bootcache/bootcache/pkg/types"
)

// RequestKind classifies an intercepted I/O request.
type RequestKind int

const (
	// ReadRequest is an inbound read.
	ReadRequest RequestKind = iota
	// WriteRequest is an inbound write; writes are never cached.
	WriteRequest
)

// Request is one inbound I/O request handed to the engine by the host's
// block I/O subsystem before it reaches the device.
type Request struct {
	Kind   RequestKind
	Offset uint64
	Length uint64
}

// Action is the engine's verdict on an intercepted request.
type Action int

const (
	// ActionBypass forwards the request to the device uncached.
	ActionBypass Action = iota
	// ActionServe satisfies the read from the cache; Decision.Data holds
	// the bytes.
	ActionServe
)

// Decision is the result of intercepting one request.
type Decision struct {
	Action Action
	Data   []byte
}

var bypass = Decision{Action: ActionBypass}

// Intercept classifies one inbound request. It is invoked concurrently by
// the host's I/O subsystem, independently of the control operations, and
// must stay off the control lock: it reads the session through fields
// that are immutable while the engine is active.
//
// Reads are served from the cache on a full hit, block briefly on a
// partial hit (bounded by the configured wait timeout, after which the
// request degrades to a miss), and are bypassed on a miss. Writes are
// always bypassed and invalidate any overlapping cached extent.
func (e *Engine) Intercept(ctx context.Context, req Request) Decision {
	e.stats.IncStrategyCalls()

	// Snapshot the session under the session pointer; a non-active
	// engine bypasses everything.
	s := e.session.Load()
	if s == nil || e.state.Load() != uint32(types.StateActive) {
		e.stats.IncStrategyBypassed()
		return bypass
	}

	if req.Kind != ReadRequest {
		e.stats.IncStrategyNonRead()
		s.recorder.Record(types.KindWrite, req.Offset, req.Length)
		if discarded := s.index.invalidate(req.Offset, req.Length, e.pool.Put); discarded > 0 {
			e.stats.AddWriteDiscards(e.blocks(discarded))
		}
		return bypass
	}

	e.stats.AddRequestedBlocks(e.blocks(req.Length))
	e.stats.IncExtentLookups()

	ce := s.index.lookup(req.Offset, req.Length)
	if ce == nil {
		// No overlap at all: a plain miss, bypassed to the device.
		e.stats.IncStrategyBypassActive()
		s.recorder.Record(types.KindMiss, req.Offset, req.Length)
		return bypass
	}
	e.stats.IncExtentHits()

	if data, ok := ce.read(req.Offset, req.Length); ok {
		e.stats.AddHitBlocks(e.blocks(req.Length))
		s.recorder.Record(types.KindHit, req.Offset, req.Length)
		return Decision{Action: ActionServe, Data: data}
	}

	// Partial hit: the range overlaps a cached extent whose blocks are
	// not (all) resident yet. Block until prefetch completes the extent
	// or the bound expires, then retry once.
	if e.waitForExtent(ctx, s, ce) {
		if data, ok := ce.read(req.Offset, req.Length); ok {
			e.stats.AddHitBlocks(e.blocks(req.Length))
			s.recorder.Record(types.KindHit, req.Offset, req.Length)
			return Decision{Action: ActionServe, Data: data}
		}
	}

	// Degrade to a miss for the unresident portion.
	e.stats.IncHitBlkMissing()
	e.stats.IncStrategyBypassActive()
	s.recorder.Record(types.KindMiss, req.Offset, req.Length)
	return bypass
}

// waitForExtent blocks until the extent leaves the pending state, the
// wait bound expires, the session stops, or the caller's context is
// canceled. The blocked duration is accumulated into the wait-time
// statistic. Returns true if the extent completed.
func (e *Engine) waitForExtent(ctx context.Context, s *session, ce *cachedExtent) bool {
	ce.mu.Lock()
	pending := ce.state == extentPending
	ce.mu.Unlock()
	if !pending {
		return true
	}

	e.stats.IncStrategyBlocked()
	start := time.Now()
	defer func() { e.stats.AddWaitTime(time.Since(start)) }()

	timer := time.NewTimer(e.cfg.Engine.WaitTimeout)
	defer timer.Stop()

	select {
	case <-ce.done:
		return true
	case <-timer.C:
		return false
	case <-s.stopped:
		return false
	case <-ctx.Done():
		return false
	}
}
