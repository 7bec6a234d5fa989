// Package buffer provides pooling for the block-sized byte slices the
// prefetch path churns through, to reduce GC pressure during boot.
package buffer

import (
	"sync"
)

// Pool hands out byte slices from size-bucketed sync.Pools. Buckets are
// powers of two from 4KB to 16MB, covering typical playlist extent sizes.
type Pool struct {
	pools map[int]*sync.Pool
	sizes []int
}

// NewPool creates a pool with the default bucket ladder.
func NewPool() *Pool {
	sizes := []int{
		4096,
		16384,
		65536,
		262144,
		1048576,
		4194304,
		16777216,
	}

	pools := make(map[int]*sync.Pool, len(sizes))
	for _, size := range sizes {
		size := size
		pools[size] = &sync.Pool{
			New: func() interface{} {
				return make([]byte, size)
			},
		}
	}
	return &Pool{pools: pools, sizes: sizes}
}

// Get returns a slice of exactly the requested length. Requests larger
// than the biggest bucket are allocated directly.
func (p *Pool) Get(size int) []byte {
	for _, bucket := range p.sizes {
		if bucket >= size {
			buf := p.pools[bucket].Get().([]byte)
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns a slice to its bucket. Slices that did not come from a
// bucket are dropped for the GC to collect.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	if pool, ok := p.pools[cap(buf)]; ok {
		//nolint:staticcheck // SA6002: the slice header allocation is accepted here
		pool.Put(buf[:cap(buf)])
	}
}
