package chain

import (
	"fmt"

	"github.com/feelesschain/fullnode/core/state"
	"github.com/feelesschain/fullnode/core/types"
	"github.com/feelesschain/fullnode/params"
)

// DivergencePoint walks back from height-1 comparing remoteHash(i) (the
// caller already fetched it) to the locally stored block's hash at the
// same height, used by the pull-sync watchdog to find fork = i+1 (spec.md
// §4.5 "Reorg via pull-sync" step 1). The caller supplies remoteHash as a
// callback since fetching it is an HTTP round trip the chain manager must
// not perform itself. The walk is unbounded, all the way to genesis if
// necessary; it is not capped at params.Tail (spec.md §9 design note 3).
func (m *Manager) DivergencePoint(remoteHash func(height uint64) (string, error)) (uint64, error) {
	m.mu.Lock()
	height := m.height
	m.mu.Unlock()

	if height == 0 {
		return 0, nil
	}
	for h := height; h > 0; h-- {
		local, ok, err := m.store.Get(h - 1)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("missing local block at height %d", h-1)
		}
		remote, err := remoteHash(h - 1)
		if err != nil {
			return 0, err
		}
		if local.Hash == remote {
			return h, nil
		}
	}
	return 0, nil
}

// ResyncTo rolls the chain back to fork (spec.md §4.5 "Reorg via
// pull-sync" step 2: "set height = fork, lastBlock = block[fork-1].hash,
// clear mempool"). Because the rollback can reach arbitrarily far below
// the current tip, a saved snapshot from just before the divergence is
// not generally available; this implementation takes the stronger fix
// spec.md §9 design note 2 allows for and rebuilds the index from an
// empty state by replaying every block below fork, rather than leaving
// balances and the mint registry stale the way the known-buggy reference
// behavior does.
func (m *Manager) ResyncTo(fork uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fresh, err := m.rebuildIndexLocked(fork)
	if err != nil {
		return NewPersistenceError(err)
	}
	m.index.Restore(fresh)
	m.pool.Clear()
	m.height = fork

	if fork == 0 {
		m.lastHash = ""
		m.prevTarget = mustTarget(params.StartingDiff)
		return nil
	}
	tip, ok, err := m.store.Get(fork - 1)
	if err != nil {
		return NewPersistenceError(err)
	}
	if !ok {
		return NewTamperingError(fork-1, fmt.Errorf("missing ancestor block"))
	}
	m.lastHash = tip.Hash
	m.prevTarget = targetAtOrStart(tip.Diff)
	return nil
}

func (m *Manager) rebuildIndexLocked(upto uint64) (*state.Index, error) {
	idx := state.New()
	for h := uint64(0); h < upto; h++ {
		block, ok, err := m.store.Get(h)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("missing block at height %d while rebuilding index", h)
		}
		if h > 0 {
			idx.Release(block.Timestamp)
		}
		for i := range block.Transactions {
			if err := idx.Apply(&block.Transactions[i], block.Timestamp); err != nil {
				return nil, fmt.Errorf("replay block %d: %w", h, err)
			}
		}
	}
	return idx, nil
}

// ApplySyncedBlock fetches-then-applies one block during pull-sync
// (spec.md §4.5 "Reorg via pull-sync" step 3: "fetch block(i), inject its
// transactions into the mempool, addBlock(replay=true)"). Every
// transaction not sent by the network (address or mint sender) is injected
// ahead of validation, so checkBlock rule 10's mempool-identity match
// succeeds for the address-sender ones.
func (m *Manager) ApplySyncedBlock(block *types.Block, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range block.Transactions {
		if block.Transactions[i].SenderKind() != types.SenderNetwork {
			m.pool.InjectForSync(block.Transactions[i])
		}
	}
	return m.addBlockLockedNow(block, addBlockOpts{replay: true}, now)
}

// ReplaceMempool swaps in a peer's mempool wholesale (spec.md §4.5 step 4:
// "After reaching remote height, replace local mempool with the peer's
// mempool").
func (m *Manager) ReplaceMempool(txs []types.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pool.Replace(txs)
}

// PushCandidate returns the last maxLen stored blocks, or all of them when
// the store holds fewer, for a sub-chain push to peers (spec.md §4.5 "If local height exceeds
// peer height, push the last min(height, 15) blocks to all peers").
func (m *Manager) PushCandidate(maxLen uint64) ([]types.Block, error) {
	blocks, err := m.store.SliceTail(maxLen)
	if err != nil {
		return nil, err
	}
	out := make([]types.Block, len(blocks))
	for i, b := range blocks {
		out[i] = *b
	}
	return out, nil
}
