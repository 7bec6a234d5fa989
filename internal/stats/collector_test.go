package stats

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bootcache/bootcache/pkg/types"
)

func TestSnapshotIsImmutableCopy(t *testing.T) {
	c := NewCollector()
	c.Reset(512)
	c.IncStrategyCalls()
	c.AddHitBlocks(10)

	snap := c.Snapshot()
	c.IncStrategyCalls()
	c.AddHitBlocks(5)

	if snap.StrategyCalls != 1 {
		t.Errorf("snapshot strategy calls = %d, want 1", snap.StrategyCalls)
	}
	if snap.HitBlocks != 10 {
		t.Errorf("snapshot hit blocks = %d, want 10", snap.HitBlocks)
	}

	after := c.Snapshot()
	if after.StrategyCalls != 2 || after.HitBlocks != 15 {
		t.Errorf("later snapshot = {%d, %d}, want {2, 15}", after.StrategyCalls, after.HitBlocks)
	}
}

func TestResetZeroesCountersAndRestamps(t *testing.T) {
	c := NewCollector()
	c.Reset(512)
	c.IncStrategyCalls()
	c.AddWaitTime(time.Second)
	c.MarkCacheStop()
	firstStart := c.Snapshot().CacheStart

	c.Reset(4096)
	snap := c.Snapshot()

	if snap.StrategyCalls != 0 {
		t.Errorf("strategy calls after reset = %d", snap.StrategyCalls)
	}
	if snap.WaitTime != 0 {
		t.Errorf("wait time after reset = %v", snap.WaitTime)
	}
	if snap.Blocksize != 4096 {
		t.Errorf("blocksize = %d, want 4096", snap.Blocksize)
	}
	if !snap.CacheStop.IsZero() {
		t.Error("cache stop timestamp survived reset")
	}
	if snap.CacheStart.Before(firstStart) {
		t.Error("cache start not restamped")
	}
}

func TestConcurrentIncrements(t *testing.T) {
	c := NewCollector()
	c.Reset(512)

	const workers = 8
	const perWorker = 10000

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				c.IncStrategyCalls()
				c.AddRequestedBlocks(2)
				if i%64 == 0 {
					// Snapshot concurrently with increments.
					_ = c.Snapshot()
				}
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	if snap.StrategyCalls != workers*perWorker {
		t.Errorf("strategy calls = %d, want %d", snap.StrategyCalls, workers*perWorker)
	}
	if snap.RequestedBlocks != 2*workers*perWorker {
		t.Errorf("requested blocks = %d, want %d", snap.RequestedBlocks, 2*workers*perWorker)
	}
}

func TestStateString(t *testing.T) {
	c := NewCollector()
	c.SetState(types.StateActive)
	if got := c.Snapshot().State; got != "active" {
		t.Errorf("state = %q, want active", got)
	}
}

func TestExporterReflectsCounters(t *testing.T) {
	c := NewCollector()
	c.Reset(512)
	e := NewExporter(c, "bootcache_test")

	c.IncStrategyCalls()
	c.IncStrategyCalls()
	c.IncExtentHits()
	c.AddHitBlocks(7)
	c.SetTotalExtents(3)
	c.SetHistoryClusters(2)

	expected := `
# HELP bootcache_test_strategy_calls_total Inbound I/O requests intercepted.
# TYPE bootcache_test_strategy_calls_total counter
bootcache_test_strategy_calls_total 2
# HELP bootcache_test_extent_hits_total Extent index lookups that matched.
# TYPE bootcache_test_extent_hits_total counter
bootcache_test_extent_hits_total 1
# HELP bootcache_test_hit_blocks_total Blocks served from the cache.
# TYPE bootcache_test_hit_blocks_total counter
bootcache_test_hit_blocks_total 7
# HELP bootcache_test_extents Extents currently in the cache index.
# TYPE bootcache_test_extents gauge
bootcache_test_extents 3
# HELP bootcache_test_history_clusters Allocated history clusters.
# TYPE bootcache_test_history_clusters gauge
bootcache_test_history_clusters 2
`
	err := testutil.GatherAndCompare(e.Registry(), strings.NewReader(expected),
		"bootcache_test_strategy_calls_total",
		"bootcache_test_extent_hits_total",
		"bootcache_test_hit_blocks_total",
		"bootcache_test_extents",
		"bootcache_test_history_clusters",
	)
	if err != nil {
		t.Errorf("exporter output mismatch: %v", err)
	}
}
