package state

import (
	"hash"
	"hash/fnv"
	"sync"

	"github.com/holiman/bloomfilter/v2"
)

// sigCache is the bounded FIFO of spent transaction signatures spec.md
// §3/§4.2 describes, accelerated by a bloom filter so the common case
// (signature definitely not spent) avoids touching the FIFO's backing
// map at all.
type sigCache struct {
	mu     sync.Mutex
	cap    int
	order  []string
	member map[string]struct{}
	filter *bloomfilter.Filter
}

// fnvHash returns a hash.Hash64 over sig, the input bloomfilter.Filter
// expects for both Add and Contains.
func fnvHash(sig string) hash.Hash64 {
	h := fnv.New64a()
	h.Write([]byte(sig))
	return h
}

func newSigCache(capacity int) *sigCache {
	filter, err := bloomfilter.NewOptimal(uint64(capacity)*4, 0.001)
	if err != nil {
		// NewOptimal only fails on a degenerate (zero) size; capacity is
		// always positive here, but fall back defensively rather than
		// propagate a hard-to-reach error up to callers of Apply.
		filter, _ = bloomfilter.NewOptimal(1024, 0.001)
	}
	return &sigCache{
		cap:    capacity,
		member: make(map[string]struct{}, capacity),
		filter: filter,
	}
}

func (c *sigCache) contains(sig string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := fnvHash(sig)
	if !c.filter.Contains(h) {
		return false
	}
	_, ok := c.member[sig]
	return ok
}

func (c *sigCache) add(sig string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.member[sig]; ok {
		return
	}
	h := fnvHash(sig)
	c.filter.Add(h)
	c.member[sig] = struct{}{}
	c.order = append(c.order, sig)

	for len(c.order) > c.cap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.member, oldest)
		// The bloom filter itself never forgets entries (it has no
		// delete operation); this only yields an occasional false
		// positive on a long-evicted signature, which contains()
		// resolves correctly via the member map check above.
	}
}

func (c *sigCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// clone deep-copies the cache for Index.Snapshot. The bloom filter is
// rebuilt from the retained signature set rather than copied field-by-
// field, since bloomfilter.Filter exposes no clone of its own.
func (c *sigCache) clone() *sigCache {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := newSigCache(c.cap)
	out.order = append([]string(nil), c.order...)
	for sig := range c.member {
		out.member[sig] = struct{}{}
		h := fnvHash(sig)
		out.filter.Add(h)
	}
	return out
}
