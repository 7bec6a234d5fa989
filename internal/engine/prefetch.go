package engine

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// startPrefetch launches the background readahead pool: a feeder that
// walks the index in playlist order and workers that read each extent
// from the device into memory. The returned channel closes once the pool
// has fully exited, which is the point after which no further cache
// mutation can occur.
func (e *Engine) startPrefetch(ctx context.Context, idx *extentIndex) <-chan struct{} {
	done := make(chan struct{})
	g, ctx := errgroup.WithContext(ctx)

	work := make(chan *cachedExtent)
	g.Go(func() error {
		defer close(work)
		for _, ce := range idx.extents {
			select {
			case work <- ce:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})

	for i := 0; i < e.cfg.Engine.PrefetchWorkers; i++ {
		g.Go(func() error {
			for ce := range work {
				if ctx.Err() != nil {
					return nil
				}
				e.prefetchExtent(ctx, ce)
			}
			return nil
		})
	}

	go func() {
		// Workers never return errors; the group exists for its
		// cancellation plumbing.
		_ = g.Wait()
		e.stats.MarkPrefetchStop()
		close(done)
	}()
	return done
}

// prefetchExtent reads one extent from the device into the cache. Device
// read errors are not escalated: the extent is marked unusable, the error
// counters move, and the session continues degraded.
func (e *Engine) prefetchExtent(ctx context.Context, ce *cachedExtent) {
	e.stats.IncInitiatedReads()

	buf := e.pool.Get(int(ce.Length))
	if err := e.dev.ReadAt(ctx, buf, ce.Offset); err != nil {
		e.pool.Put(buf)

		ce.mu.Lock()
		if ce.state == extentPending {
			ce.state = extentFailed
		}
		ce.mu.Unlock()
		ce.complete()

		if ctx.Err() == nil {
			e.stats.IncReadErrors()
			e.stats.AddErrorDiscards(e.blocks(ce.Length))
			e.logger.Warn("prefetch read failed",
				slog.Uint64("offset", ce.Offset),
				slog.Uint64("length", ce.Length),
				slog.Any("error", err))
		}
		return
	}

	ce.mu.Lock()
	if ce.state != extentPending {
		// Discarded while the read was in flight.
		ce.mu.Unlock()
		e.pool.Put(buf)
		ce.complete()
		return
	}
	ce.data = buf
	ce.state = extentResident
	ce.mu.Unlock()
	ce.complete()

	e.stats.AddReadBlocks(e.blocks(ce.Length))
}
