// Package stats implements the statistics collector: lock-light monotonic
// counters describing engine activity, an immutable snapshot API, and a
// prometheus exporter over the snapshot.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bootcache/bootcache/pkg/types"
)

// Collector accumulates engine counters. Increments are atomic and safe
// from any goroutine; Snapshot never mutates state and is safe to call
// concurrently with any other operation, including while the engine is
// active. Counters are monotonically non-decreasing within a session and
// reset only by the next Start.
type Collector struct {
	blocksize atomic.Uint64

	initiatedReads atomic.Uint64
	readBlocks     atomic.Uint64
	readErrors     atomic.Uint64
	errorDiscards  atomic.Uint64

	strategyCalls        atomic.Uint64
	strategyNonRead      atomic.Uint64
	strategyBypassed     atomic.Uint64
	strategyBypassActive atomic.Uint64
	strategyBlocked      atomic.Uint64

	extentLookups atomic.Uint64
	extentHits    atomic.Uint64
	hitBlkMissing atomic.Uint64
	totalExtents  atomic.Uint64

	requestedBlocks atomic.Uint64
	hitBlocks       atomic.Uint64
	writeDiscards   atomic.Uint64
	spuriousBlocks  atomic.Uint64
	spuriousPages   atomic.Uint64

	historyClusters atomic.Uint64
	cacheFlags      atomic.Uint64
	waitNanos       atomic.Int64

	state atomic.Uint32

	// Timestamps change rarely; a mutex keeps them consistent as a set.
	tsMu         sync.Mutex
	cacheStart   time.Time
	prefetchStop time.Time
	readStop     time.Time
	cacheStop    time.Time
}

// NewCollector creates a zeroed collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Reset zeroes all counters and stamps the cache start time. Called on
// Start.
func (c *Collector) Reset(blocksize uint64) {
	c.blocksize.Store(blocksize)

	for _, ctr := range []*atomic.Uint64{
		&c.initiatedReads, &c.readBlocks, &c.readErrors, &c.errorDiscards,
		&c.strategyCalls, &c.strategyNonRead, &c.strategyBypassed,
		&c.strategyBypassActive, &c.strategyBlocked,
		&c.extentLookups, &c.extentHits, &c.hitBlkMissing, &c.totalExtents,
		&c.requestedBlocks, &c.hitBlocks, &c.writeDiscards,
		&c.spuriousBlocks, &c.spuriousPages,
		&c.historyClusters, &c.cacheFlags,
	} {
		ctr.Store(0)
	}
	c.waitNanos.Store(0)

	c.tsMu.Lock()
	c.cacheStart = time.Now()
	c.prefetchStop = time.Time{}
	c.readStop = time.Time{}
	c.cacheStop = time.Time{}
	c.tsMu.Unlock()
}

// Readahead accounting.

func (c *Collector) IncInitiatedReads()        { c.initiatedReads.Add(1) }
func (c *Collector) AddReadBlocks(n uint64)    { c.readBlocks.Add(n) }
func (c *Collector) IncReadErrors()            { c.readErrors.Add(1) }
func (c *Collector) AddErrorDiscards(n uint64) { c.errorDiscards.Add(n) }

// Strategy call accounting.

func (c *Collector) IncStrategyCalls()        { c.strategyCalls.Add(1) }
func (c *Collector) IncStrategyNonRead()      { c.strategyNonRead.Add(1) }
func (c *Collector) IncStrategyBypassed()     { c.strategyBypassed.Add(1) }
func (c *Collector) IncStrategyBypassActive() { c.strategyBypassActive.Add(1) }
func (c *Collector) IncStrategyBlocked()      { c.strategyBlocked.Add(1) }

// Extent accounting.

func (c *Collector) SetTotalExtents(n uint64) { c.totalExtents.Store(n) }
func (c *Collector) IncExtentLookups()        { c.extentLookups.Add(1) }
func (c *Collector) IncExtentHits()           { c.extentHits.Add(1) }
func (c *Collector) IncHitBlkMissing()        { c.hitBlkMissing.Add(1) }

// Block/page accounting.

func (c *Collector) AddRequestedBlocks(n uint64) { c.requestedBlocks.Add(n) }
func (c *Collector) AddHitBlocks(n uint64)       { c.hitBlocks.Add(n) }
func (c *Collector) AddWriteDiscards(n uint64)   { c.writeDiscards.Add(n) }
func (c *Collector) AddSpuriousBlocks(n uint64)  { c.spuriousBlocks.Add(n) }
func (c *Collector) AddSpuriousPages(n uint64)   { c.spuriousPages.Add(n) }

// History and status.

func (c *Collector) SetHistoryClusters(n uint64) { c.historyClusters.Store(n) }
func (c *Collector) SetCacheFlags(f uint64)      { c.cacheFlags.Store(f) }

// AddWaitTime accumulates time an interception thread spent blocked
// waiting for blocks to arrive.
func (c *Collector) AddWaitTime(d time.Duration) { c.waitNanos.Add(int64(d)) }

// SetState records the engine state for the snapshot.
func (c *Collector) SetState(s types.EngineState) { c.state.Store(uint32(s)) }

// MarkPrefetchStop stamps the time readahead stopped.
func (c *Collector) MarkPrefetchStop() { c.stamp(&c.prefetchStop) }

// MarkReadStop stamps the time cached reads stopped.
func (c *Collector) MarkReadStop() { c.stamp(&c.readStop) }

// MarkCacheStop stamps the time the cache stopped.
func (c *Collector) MarkCacheStop() { c.stamp(&c.cacheStop) }

// stamp records the first occurrence of an event; later calls within the
// same session keep the original time (prefetch may finish long before
// Stop re-marks it).
func (c *Collector) stamp(t *time.Time) {
	c.tsMu.Lock()
	if t.IsZero() {
		*t = time.Now()
	}
	c.tsMu.Unlock()
}

// Snapshot returns an immutable copy of the current statistics.
func (c *Collector) Snapshot() types.Statistics {
	c.tsMu.Lock()
	cacheStart, prefetchStop := c.cacheStart, c.prefetchStop
	readStop, cacheStop := c.readStop, c.cacheStop
	c.tsMu.Unlock()

	return types.Statistics{
		Blocksize: c.blocksize.Load(),

		InitiatedReads: c.initiatedReads.Load(),
		ReadBlocks:     c.readBlocks.Load(),
		ReadErrors:     c.readErrors.Load(),
		ErrorDiscards:  c.errorDiscards.Load(),

		CacheStart:   cacheStart,
		PrefetchStop: prefetchStop,
		ReadStop:     readStop,
		CacheStop:    cacheStop,

		WaitTime: time.Duration(c.waitNanos.Load()),

		StrategyCalls:        c.strategyCalls.Load(),
		StrategyNonRead:      c.strategyNonRead.Load(),
		StrategyBypassed:     c.strategyBypassed.Load(),
		StrategyBypassActive: c.strategyBypassActive.Load(),
		StrategyBlocked:      c.strategyBlocked.Load(),

		TotalExtents:  c.totalExtents.Load(),
		ExtentLookups: c.extentLookups.Load(),
		ExtentHits:    c.extentHits.Load(),
		HitBlkMissing: c.hitBlkMissing.Load(),

		RequestedBlocks: c.requestedBlocks.Load(),
		HitBlocks:       c.hitBlocks.Load(),
		WriteDiscards:   c.writeDiscards.Load(),
		SpuriousBlocks:  c.spuriousBlocks.Load(),
		SpuriousPages:   c.spuriousPages.Load(),

		HistoryClusters: c.historyClusters.Load(),
		CacheFlags:      c.cacheFlags.Load(),
		State:           types.EngineState(c.state.Load()).String(),
	}
}
