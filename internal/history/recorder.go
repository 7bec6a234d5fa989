// Package history implements the append-only session history: a clustered
// in-memory recorder of classified I/O observations, a drain protocol for
// copying it out in bounded chunks, conversion of a recorded history into
// a playlist, and a compressed on-disk store.
package history

import (
	"sync"

	"github.com/bootcache/bootcache/internal/playlist"
	"github.com/bootcache/bootcache/pkg/errors"
	"github.com/bootcache/bootcache/pkg/types"
)

// Default recorder geometry.
const (
	DefaultClusterEntries = 1024
	DefaultMaxClusters    = 512
)

// Recorder is the append-only log of observed accesses during a session.
//
// Entries are stored in fixed-size clusters allocated on demand, which
// amortizes allocation cost, bounds the worst-case pause per Record call,
// and avoids one huge contiguous buffer. When the cluster allowance is
// exhausted the recorder degrades to a truncated state in which further
// records are dropped; Stop surfaces this as an explicit truncated result
// rather than a silent gap.
type Recorder struct {
	mu             sync.Mutex
	clusterEntries int
	maxClusters    int
	clusters       [][]types.HistoryEntry
	count          int
	sealed         bool
	truncated      bool

	// onAlloc, if set, observes the cluster count after each allocation.
	onAlloc func(clusters int)
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClusterEntries sets the number of entries per cluster.
func WithClusterEntries(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.clusterEntries = n
		}
	}
}

// WithMaxClusters bounds the number of clusters the recorder allocates.
func WithMaxClusters(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.maxClusters = n
		}
	}
}

// WithAllocObserver registers a callback invoked with the new cluster
// count whenever a cluster is allocated. Used to keep the cluster count
// externally observable as a statistic.
func WithAllocObserver(fn func(clusters int)) Option {
	return func(r *Recorder) {
		r.onAlloc = fn
	}
}

// NewRecorder creates an empty recorder.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		clusterEntries: DefaultClusterEntries,
		maxClusters:    DefaultMaxClusters,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends one entry. It never blocks on I/O; the critical section
// covers at most one cluster allocation. Once the recorder is truncated
// or sealed, records are dropped.
func (r *Recorder) Record(kind types.HistoryKind, offset, length uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed || r.truncated {
		return
	}

	if len(r.clusters) == 0 || len(r.clusters[len(r.clusters)-1]) == r.clusterEntries {
		if len(r.clusters) == r.maxClusters {
			r.truncated = true
			return
		}
		r.clusters = append(r.clusters, make([]types.HistoryEntry, 0, r.clusterEntries))
		if r.onAlloc != nil {
			r.onAlloc(len(r.clusters))
		}
	}

	last := len(r.clusters) - 1
	r.clusters[last] = append(r.clusters[last], types.HistoryEntry{
		Offset: offset,
		Length: length,
		Kind:   kind,
	})
	r.count++
}

// Tag appends a checkpoint entry with no offset/length payload.
func (r *Recorder) Tag() {
	r.Record(types.KindTag, 0, 0)
}

// Seal freezes the recorder. Further records are dropped and the log
// becomes drainable. Called by the engine on Stop.
func (r *Recorder) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Len returns the number of recorded entries.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// ByteSize returns the wire size of the recorded history.
func (r *Recorder) ByteSize() int {
	return r.Len() * types.HistoryWireSize
}

// Clusters returns the number of allocated clusters.
func (r *Recorder) Clusters() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clusters)
}

// Truncated reports whether the recorder ran out of clusters and dropped
// records.
func (r *Recorder) Truncated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.truncated
}

// Drain returns a cursor over the recorded entries in sequential chunks
// of at most chunkSize entries, so large histories can be copied
// incrementally without one unbounded transfer. The log is cleared
// atomically once the cursor is exhausted. Fails with InvalidState while
// the recorder is still attached to an active session (not sealed).
func (r *Recorder) Drain(chunkSize int) (*Cursor, error) {
	if chunkSize <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidArgument, "drain chunk size %d", chunkSize)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.sealed {
		return nil, errors.New(errors.ErrCodeInvalidState, "cannot drain history of an active session")
	}
	return &Cursor{r: r, chunkSize: chunkSize}, nil
}

// Cursor walks a sealed recorder chunk by chunk.
type Cursor struct {
	r         *Recorder
	chunkSize int
	pos       int
	done      bool
}

// Next returns the next chunk of entries. The second result is false once
// the history is exhausted, at which point the recorder has been cleared.
func (c *Cursor) Next() ([]types.HistoryEntry, bool) {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()

	if c.done || c.pos >= c.r.count {
		if !c.done {
			c.done = true
			c.r.clear()
		}
		return nil, false
	}

	n := c.chunkSize
	if rem := c.r.count - c.pos; rem < n {
		n = rem
	}
	chunk := make([]types.HistoryEntry, 0, n)
	for i := c.pos; i < c.pos+n; i++ {
		chunk = append(chunk, c.r.clusters[i/c.r.clusterEntries][i%c.r.clusterEntries])
	}
	c.pos += n
	return chunk, true
}

// clear drops all recorded state. Caller holds r.mu.
func (r *Recorder) clear() {
	r.clusters = nil
	r.count = 0
	r.truncated = false
}

// ToPlaylist converts the recorded history into a playlist without
// draining it. See Convert for the conversion rules.
func (r *Recorder) ToPlaylist() ([]types.Extent, error) {
	r.mu.Lock()
	entries := make([]types.HistoryEntry, 0, r.count)
	for _, cluster := range r.clusters {
		entries = append(entries, cluster...)
	}
	r.mu.Unlock()

	return Convert(entries)
}

// Convert turns a history sequence into a playlist: Miss and Hit entries
// both represent reads worth prefetching next time and are kept; Tag and
// Write entries are discarded entirely. Every resulting extent carries
// the Prefetch flag, and the result is normalized.
func Convert(entries []types.HistoryEntry) ([]types.Extent, error) {
	extents := make([]types.Extent, 0, len(entries))
	for _, h := range entries {
		if h.Kind != types.KindMiss && h.Kind != types.KindHit {
			continue
		}
		extents = append(extents, types.Extent{
			Offset: h.Offset,
			Length: h.Length,
			Flags:  types.FlagPrefetch,
		})
	}
	return playlist.Coalesce(extents)
}
