// Package chain implements C5, the Chain Manager: the single serialization
// point that owns the block store, the state index and the mempool, and
// sequences every mutation spec.md §5 requires to happen under one lock.
package chain

import (
	"fmt"
	"strings"
	"sync"

	"github.com/holiman/uint256"

	"github.com/feelesschain/fullnode/core/rawdb"
	"github.com/feelesschain/fullnode/core/state"
	"github.com/feelesschain/fullnode/core/txpool"
	"github.com/feelesschain/fullnode/core/types"
	"github.com/feelesschain/fullnode/core/validator"
	"github.com/feelesschain/fullnode/internal/logging"
	"github.com/feelesschain/fullnode/params"
)

// Manager is C5. Every exported mutator takes mu, so at most one block or
// push is ever being applied at a time (spec.md §5 "a single chain-wide
// mutex serializes AddBlock, the push/reorg path and pull-sync").
type Manager struct {
	mu sync.Mutex

	store *rawdb.BlockStore
	index *state.Index
	pool  *txpool.Pool
	val   *validator.Validator
	bus   *EventBus

	height     uint64
	lastHash   string
	prevTarget *uint256.Int
	lastPush   string // hash of the most recently accepted push sub-chain (I9)
}

func New(store *rawdb.BlockStore, idx *state.Index, pool *txpool.Pool, val *validator.Validator, bus *EventBus) *Manager {
	return &Manager{
		store:      store,
		index:      idx,
		pool:       pool,
		val:        val,
		bus:        bus,
		prevTarget: mustTarget(params.StartingDiff),
	}
}

func mustTarget(hex string) *uint256.Int {
	t, err := uint256.FromHex("0x" + hex)
	if err != nil {
		panic(err)
	}
	return t
}

func (m *Manager) Height() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.height
}

func (m *Manager) LastHash() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHash
}

func (m *Manager) Tail(k uint64) ([]*types.Block, error) { return m.store.SliceTail(k) }

func (m *Manager) Mempool() *txpool.Pool { return m.pool }

func (m *Manager) State() *state.Index { return m.index }

func (m *Manager) BlockAt(height uint64) (*types.Block, bool, error) { return m.store.Get(height) }

// CurrentTarget returns the difficulty target a block proposed right now
// would be checked against (spec.md §6 GET /diff).
func (m *Manager) CurrentTarget() (*uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tailTimestamps, err := m.tailTimestampsLocked()
	if err != nil {
		return nil, err
	}
	return validator.Target(tailTimestamps, m.prevTarget), nil
}

// PushTx admits a gossip-received or locally-submitted transaction into
// the mempool (spec.md §4.3 pushTx / §4.6 "tx: ingest via checkTx rules;
// on accept, rebroadcast").
func (m *Manager) PushTx(tx types.Transaction, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.pool.Push(tx, m.height, now); err != nil {
		return NewValidationError("tx rejected: %s", err)
	}
	return nil
}

// Init loads every persisted block in ascending order and replays it
// (spec.md §4.5 "Initialization"). The genesis block (height 0) is
// accepted unconditionally, applying its transactions directly with no
// validation, matching spec.md's "genesis is trusted" note. Every
// subsequent block is re-applied through the same path AddBlock uses,
// with Replay set so the live-timestamp-window and mempool-fullness
// checks are skipped. A replay failure halts with a TamperingError,
// since a persisted block that no longer validates means the on-disk
// chain was tampered with or corrupted.
func (m *Manager) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	top := m.store.Height()
	for h := uint64(0); h < top; h++ {
		block, ok, err := m.store.Get(h)
		if err != nil {
			return NewPersistenceError(err)
		}
		if !ok {
			return NewTamperingError(h, fmt.Errorf("missing block"))
		}

		if h == 0 {
			for i := range block.Transactions {
				if err := m.index.Apply(&block.Transactions[i], block.Timestamp); err != nil {
					return NewTamperingError(h, err)
				}
			}
			m.height = 1
			m.lastHash = block.Hash
			m.prevTarget = mustTarget(block.Diff)
			continue
		}

		if err := m.addBlockLocked(block, addBlockOpts{replay: true, trustHash: true}); err != nil {
			return NewTamperingError(h, err)
		}
	}
	logging.Info("chain loaded", "height", m.height)
	return nil
}

type addBlockOpts struct {
	replay    bool
	trustHash bool
}

// AddBlock validates and applies block as the new tip (spec.md §4.4
// "Block application"). now is the caller's wall-clock reading in
// milliseconds, used for the live-timestamp window when opts is not a
// replay.
func (m *Manager) AddBlock(block *types.Block, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addBlockLockedNow(block, addBlockOpts{}, now)
}

func (m *Manager) addBlockLocked(block *types.Block, opts addBlockOpts) error {
	return m.addBlockLockedNow(block, opts, 0)
}

func (m *Manager) addBlockLockedNow(block *types.Block, opts addBlockOpts, now int64) error {
	tailTimestamps, err := m.tailTimestampsLocked()
	if err != nil {
		return NewPersistenceError(err)
	}

	checkOpts := validator.CheckBlockOptions{
		Height:         m.height,
		PrevHash:       m.lastHash,
		TailTimestamps: tailTimestamps,
		PrevTarget:     m.prevTarget,
		Mempool:        m.pool,
		Now:            now,
		Replay:         opts.replay,
		TrustHash:      opts.trustHash,
	}
	if err := m.val.CheckBlock(block, checkOpts); err != nil {
		return NewValidationError("block at height %d rejected: %s", m.height, err)
	}

	m.index.Release(block.Timestamp)
	for i := range block.Transactions {
		if err := m.index.Apply(&block.Transactions[i], block.Timestamp); err != nil {
			return NewValidationError("apply tx from %s failed after passing checkBlock: %s", block.Transactions[i].Sender, err)
		}
	}

	if err := m.store.Put(m.height, block); err != nil {
		return NewPersistenceError(err)
	}

	target := validator.Target(tailTimestamps, m.prevTarget)
	committedHeight := m.height
	m.height++
	m.lastHash = block.Hash
	m.prevTarget = target

	ids := make([]types.IdentityKey, 0, len(block.Transactions))
	for i := range block.Transactions {
		if block.Transactions[i].SenderKind() == types.SenderAddress {
			ids = append(ids, block.Transactions[i].Identity())
		}
	}
	m.pool.Remove(ids)

	if m.bus != nil {
		m.bus.publishBlock(BlockCommitted{Height: committedHeight, Block: block})
		for i := range block.Transactions {
			if mint := block.Transactions[i].Mint; mint != nil {
				m.bus.publishMint(MintCreated{Token: mint.Token, Mint: *mint})
			}
		}
	}

	if retain := m.store.RetainWindow(); m.height > retain {
		archiveHeight := m.height - retain - 1
		if err := m.store.Archive(archiveHeight); err != nil {
			logging.Warn("failed to archive block", "height", archiveHeight, "err", err)
		}
	}
	return nil
}

// tailTimestampsLocked reads the Tail-1 most recent committed blocks'
// timestamps (the candidate block is not yet committed, so the window
// excludes it), for the difficulty retarget.
func (m *Manager) tailTimestampsLocked() ([]int64, error) {
	want := uint64(params.Tail - 1)
	if m.height < want {
		want = m.height
	}
	out := make([]int64, 0, want)
	for h := m.height - want; h < m.height; h++ {
		b, ok, err := m.store.Get(h)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("missing block at height %d", h)
		}
		out = append(out, b.Timestamp)
	}
	return out, nil
}

// PushSubChain applies a peer-broadcast reorg candidate (spec.md §4.5
// "Reorg via push"). subChain is at most params.MaxPushLength blocks,
// oldest first. A sub-chain identical to the last one accepted is a
// no-op (I9: idempotent push). On any validation failure partway through,
// the state index is rolled back to its pre-push snapshot and the chain
// height/tip are left untouched.
func (m *Manager) PushSubChain(subChain []types.Block, now int64) error {
	if len(subChain) == 0 {
		return NewValidationError("empty push")
	}
	if len(subChain) > params.MaxPushLength {
		return NewValidationError("push sub-chain of %d blocks exceeds max %d", len(subChain), params.MaxPushLength)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	digest := subChainDigest(subChain)
	if digest == m.lastPush {
		return nil
	}

	fork, found, err := m.findForkPointLocked(subChain[0].PrevHash, uint64(len(subChain))+1)
	if err != nil {
		return NewPersistenceError(err)
	}
	if !found {
		return NewValidationError("no local ancestor matches push's prev_hash")
	}

	// snapshot is the pre-push tip state, restored verbatim if anything
	// below fails. fresh is the fork-point state the sub-chain is actually
	// applied onto: without rebuilding it, the orphaned blocks' balances,
	// spent signatures and nonces would still be present, double-counting
	// rewards or falsely rejecting the sub-chain (spec.md §4.5 "Reorg via
	// push", §9 design note 2).
	snapshot := m.index.Snapshot()
	savedHeight, savedHash, savedTarget := m.height, m.lastHash, m.prevTarget

	fresh, err := m.rebuildIndexLocked(fork)
	if err != nil {
		return NewPersistenceError(err)
	}
	m.index.Restore(fresh)

	m.height = fork
	if fork == 0 {
		m.lastHash = ""
	} else {
		tip, ok, err := m.store.Get(fork - 1)
		if err != nil {
			m.index.Restore(snapshot)
			m.height, m.lastHash, m.prevTarget = savedHeight, savedHash, savedTarget
			return NewPersistenceError(err)
		}
		if !ok {
			m.index.Restore(snapshot)
			m.height, m.lastHash, m.prevTarget = savedHeight, savedHash, savedTarget
			return NewTamperingError(fork-1, fmt.Errorf("missing ancestor block"))
		}
		m.lastHash = tip.Hash
		m.prevTarget = targetAtOrStart(tip.Diff)
	}

	for i := range subChain {
		if err := m.addBlockLockedNow(&subChain[i], addBlockOpts{replay: true}, now); err != nil {
			m.index.Restore(snapshot)
			m.height, m.lastHash, m.prevTarget = savedHeight, savedHash, savedTarget
			return fmt.Errorf("push rejected at offset %d: %w", i, err)
		}
	}

	// addBlockLockedNow's store.Put only ever grows the store's recorded
	// height; a sub-chain shorter than the range it replaces needs this to
	// bring it back down, or SliceTail (Tail, PushCandidate) and the next
	// Init keep reading into the now-orphaned blocks.
	if err := m.store.SetHeight(m.height); err != nil {
		m.index.Restore(snapshot)
		m.height, m.lastHash, m.prevTarget = savedHeight, savedHash, savedTarget
		return NewPersistenceError(err)
	}

	m.lastPush = digest
	return nil
}

func targetAtOrStart(diffHex string) *uint256.Int {
	t, err := uint256.FromHex("0x" + diffHex)
	if err != nil {
		return mustTarget(params.StartingDiff)
	}
	return t
}

// findForkPointLocked scans up to window local heights below the current
// tip, most recent first, for one whose hash equals wantPrevHash — the
// point the pushed sub-chain attaches to.
func (m *Manager) findForkPointLocked(wantPrevHash string, window uint64) (uint64, bool, error) {
	if wantPrevHash == "" && m.height == 0 {
		return 0, true, nil
	}
	low := uint64(0)
	if m.height > window {
		low = m.height - window
	}
	for h := m.height; h > low; h-- {
		block, ok, err := m.store.Get(h - 1)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			continue
		}
		if block.Hash == wantPrevHash {
			return h, true, nil
		}
	}
	return 0, false, nil
}

// subChainDigest identifies a push by its blocks' hashes, used to detect
// and drop an exact repeat of the last accepted push (I9).
func subChainDigest(blocks []types.Block) string {
	var sb strings.Builder
	for _, b := range blocks {
		sb.WriteString(b.Hash)
		sb.WriteByte('|')
	}
	return sb.String()
}
