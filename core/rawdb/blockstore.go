package rawdb

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/golang/snappy"
	"github.com/gofrs/flock"

	"github.com/feelesschain/fullnode/core/types"
	"github.com/feelesschain/fullnode/internal/logging"
)

// BlockStore is C1: a durable, height-addressed block persistence layer.
// put is idempotent; get and sliceTail are random-access reads that check
// the fastcache read cache, then the hot KV tier, then finally the cold
// billy archive for blocks that have aged out.
type BlockStore struct {
	mu sync.RWMutex

	kv      KeyValueStore
	cache   *fastcache.Cache
	arc     *archive
	lock    *flock.Flock
	height  uint64
	retain  uint64 // blocks newer than height-retain stay in the hot tier
}

const defaultCacheBytes = 32 * 1024 * 1024

// Open acquires the single-writer lock on dir (spec.md §5 "The
// block-store directory is single-writer") and opens the hot-tier KV
// engine plus the cold archive.
func Open(dir string, engine Engine, retainWindow uint64) (*BlockStore, error) {
	lk := flock.New(dir + ".lock")
	locked, err := lk.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock block store dir: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("block store dir %s is already locked by another process", dir)
	}

	kv, err := OpenKVStore(engine, dir)
	if err != nil {
		lk.Unlock()
		return nil, err
	}
	arc, err := openArchive(dir)
	if err != nil {
		kv.Close()
		lk.Unlock()
		return nil, err
	}

	bs := &BlockStore{
		kv:     kv,
		cache:  fastcache.New(defaultCacheBytes),
		arc:    arc,
		lock:   lk,
		retain: retainWindow,
	}
	if raw, ok, _ := kv.Get(headKey); ok && len(raw) == 8 {
		bs.height = binary.BigEndian.Uint64(raw)
	}
	return bs, nil
}

func (s *BlockStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arc.close()
	s.kv.Close()
	return s.lock.Unlock()
}

// Height returns one past the highest stored block height.
func (s *BlockStore) Height() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.height
}

// Put persists block at height, overwriting any existing entry at that
// height (spec.md §4.1: "idempotent overwrite"). Writes are durable
// before returning, matching the chain manager's "durable before ack"
// requirement (spec.md §4.1, §7 I/O error handling).
func (s *BlockStore) Put(height uint64, block *types.Block) error {
	raw, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("encode block %d: %w", height, err)
	}
	compressed := snappy.Encode(nil, raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Put(blockKey(height), compressed); err != nil {
		return fmt.Errorf("persist block %d: %w", height, err)
	}
	s.cache.Set(blockKey(height), compressed)

	if height >= s.height {
		s.height = height + 1
		head := make([]byte, 8)
		binary.BigEndian.PutUint64(head, s.height)
		if err := s.kv.Put(headKey, head); err != nil {
			return fmt.Errorf("persist head height: %w", err)
		}
	}
	return nil
}

// Get reads the block at height, checking cache, hot tier, then the cold
// archive in that order.
func (s *BlockStore) Get(height uint64) (*types.Block, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(height)
}

func (s *BlockStore) getLocked(height uint64) (*types.Block, bool, error) {
	key := blockKey(height)
	if cached, ok := s.cache.HasGet(nil, key); ok {
		return decodeBlock(cached)
	}
	raw, ok, err := s.kv.Get(key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		s.cache.Set(key, raw)
		return decodeBlock(raw)
	}

	idxRaw, ok, err := s.kv.Get(archiveIndexKey(height))
	if err != nil || !ok {
		return nil, false, err
	}
	id := binary.BigEndian.Uint64(idxRaw)
	raw, err = s.arc.get(id)
	if err != nil {
		return nil, false, fmt.Errorf("read archived block %d: %w", height, err)
	}
	return decodeBlock(raw)
}

func decodeBlock(compressed []byte) (*types.Block, bool, error) {
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, false, err
	}
	var b types.Block
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, false, err
	}
	return &b, true, nil
}

// SliceTail returns the last k blocks (oldest first), or fewer if the
// chain is shorter than k (spec.md §4.1).
func (s *BlockStore) SliceTail(k uint64) ([]*types.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k > s.height {
		k = s.height
	}
	out := make([]*types.Block, 0, k)
	start := s.height - k
	for h := start; h < s.height; h++ {
		b, ok, err := s.getLocked(h)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("missing block at height %d within tail window", h)
		}
		out = append(out, b)
	}
	return out, nil
}

// Archive migrates the block at height from the hot tier into the cold
// billy store, freeing hot-tier space. Called periodically by the chain
// manager for heights older than the retain window (SPEC_FULL.md §4.1).
func (s *BlockStore) Archive(height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := blockKey(height)
	raw, ok, err := s.kv.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		return nil // already archived or never written
	}
	id, err := s.arc.put(raw)
	if err != nil {
		return fmt.Errorf("archive block %d: %w", height, err)
	}
	idxVal := make([]byte, 8)
	binary.BigEndian.PutUint64(idxVal, id)
	if err := s.kv.Put(archiveIndexKey(height), idxVal); err != nil {
		return err
	}
	if err := s.kv.Delete(key); err != nil {
		logging.Warn("failed to prune hot-tier copy after archiving", "height", height, "err", err)
	}
	s.cache.Del(key)
	return nil
}

// RetainWindow reports the configured hot-tier retention window.
func (s *BlockStore) RetainWindow() uint64 { return s.retain }

// SetHeight forces the store's recorded height to h, persisting it the
// same way Put does. Put only ever grows height (height >= s.height), so
// a reorg that replaces a longer local chain with a shorter pushed
// sub-chain needs this to shrink it back down; otherwise SliceTail keeps
// reading into blocks the reorg orphaned. Entries at heights >= h are
// left in place, unreachable the way archived/overwritten entries already
// are.
func (s *BlockStore) SetHeight(h uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.height = h
	head := make([]byte, 8)
	binary.BigEndian.PutUint64(head, h)
	if err := s.kv.Put(headKey, head); err != nil {
		return fmt.Errorf("persist head height: %w", err)
	}
	return nil
}
