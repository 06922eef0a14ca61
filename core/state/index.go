// Package state implements C2, the State Index: balances, locked
// balances, nonce high-water-marks, the spent-signature cache and the
// mint registry (spec.md §3, §4.2). It is pure in-memory and, per the
// rebuild invariant, always recomputable from the block store by
// replaying Apply in block order from an empty Index.
package state

import (
	"fmt"
	"sync"

	"github.com/feelesschain/fullnode/core/types"
	"github.com/feelesschain/fullnode/params"
)

// Key identifies a balance slot: an address and an optional token. An
// empty Token means the native coin.
type Key struct {
	Addr  string
	Token string
}

// LockedEntry is one matured-on-unlock balance held back from spending
// (spec.md §3 "Locked balances").
type LockedEntry struct {
	Addr     string
	Token    string
	Amount   uint64
	UnlockAt int64
}

// MintInfo is a mint registry entry (spec.md §3 "Mint registry").
type MintInfo struct {
	MiningReward uint64
	Airdrop      uint64
}

func (m MintInfo) Minable() bool { return m.MiningReward > 0 }

// Index is C2. All mutation happens through Apply/Release, serialized by
// the caller (core/chain.Manager) per spec.md §5.
type Index struct {
	mu       sync.RWMutex
	balances map[Key]uint64
	locked   []LockedEntry
	nonces   map[string]uint64
	sigs     *sigCache
	mints    map[string]MintInfo
}

// New builds an empty Index.
func New() *Index {
	return &Index{
		balances: make(map[Key]uint64),
		nonces:   make(map[string]uint64),
		sigs:     newSigCache(params.SignatureCacheSize),
		mints:    make(map[string]MintInfo),
	}
}

// Balance returns the spendable (unlocked) balance of addr/token.
func (idx *Index) Balance(addr, token string) uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.balances[Key{Addr: addr, Token: token}]
}

// LockedBalance sums every locked entry for addr/token regardless of
// whether it has matured yet.
//
// spec.md §9 design note 1 records that one historical code path summed
// via a bare expression statement (`bal + lb.amount`) instead of
// accumulating; the reference behavior — and what this implementation
// does — is to sum correctly into bal.
func (idx *Index) LockedBalance(addr, token string) uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var bal uint64
	for _, lb := range idx.locked {
		if lb.Addr == addr && lb.Token == token {
			bal += lb.Amount
		}
	}
	return bal
}

// LastNonce returns the highest nonce seen for addr, or 0 if unseen.
func (idx *Index) LastNonce(addr string) uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.nonces[addr]
}

// IsSpent reports whether sig is within the retained spent-signature
// window (spec.md §3 invariant: "No accepted transaction signature
// appears twice within the retained window").
func (idx *Index) IsSpent(sig string) bool {
	return idx.sigs.contains(sig)
}

// MintInfo looks up a registered token.
func (idx *Index) MintInfo(token string) (MintInfo, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	m, ok := idx.mints[token]
	return m, ok
}

// MintCount returns how many tokens have been minted so far, used by
// params.MintFee's adoption-scaled fee (spec.md §4.4 mint rules).
func (idx *Index) MintCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.mints)
}

// Tokens returns every registered token name in map iteration order, which
// is not defined — callers needing a stable index (the read API's
// GET /token/:i) should sort the result themselves.
func (idx *Index) Tokens() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.mints))
	for t := range idx.mints {
		out = append(out, t)
	}
	return out
}

// TokensHeldBy returns every token (including "" for the native coin)
// addr holds a positive spendable balance of, used by GET /tokens/:addr.
func (idx *Index) TokensHeldBy(addr string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []string
	for k, bal := range idx.balances {
		if k.Addr == addr && bal > 0 {
			out = append(out, k.Token)
		}
	}
	return out
}

// Apply mutates the index for one accepted transaction within a block
// whose timestamp is blockTimestamp (spec.md §4.4 "Block application"
// step 2). Reserved senders ("network", "mint") are never debited.
func (idx *Index) Apply(tx *types.Transaction, blockTimestamp int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if tx.SenderKind() == types.SenderAddress {
		key := Key{Addr: tx.Sender, Token: tx.Token}
		bal := idx.balances[key]
		if bal < tx.Amount {
			return fmt.Errorf("insufficient balance for %s/%s: have %d, need %d", tx.Sender, tx.Token, bal, tx.Amount)
		}
		idx.balances[key] = bal - tx.Amount
		if tx.Nonce <= idx.nonces[tx.Sender] {
			return fmt.Errorf("nonce not strictly greater for %s: have %d, got %d", tx.Sender, idx.nonces[tx.Sender], tx.Nonce)
		}
		idx.nonces[tx.Sender] = tx.Nonce
	}

	if tx.Unlock != nil && *tx.Unlock > blockTimestamp {
		idx.locked = append(idx.locked, LockedEntry{
			Addr: tx.Receiver, Token: tx.Token, Amount: tx.Amount, UnlockAt: *tx.Unlock,
		})
	} else {
		key := Key{Addr: tx.Receiver, Token: tx.Token}
		idx.balances[key] += tx.Amount
	}

	if tx.Signature != types.SenderNetworkString && tx.Signature != types.SenderMintString {
		idx.sigs.add(tx.Signature)
	}

	if tx.Mint != nil {
		info := MintInfo{Airdrop: tx.Mint.Airdrop}
		if tx.Mint.MiningReward != nil {
			info.MiningReward = *tx.Mint.MiningReward
		}
		idx.mints[tx.Mint.Token] = info
	}
	return nil
}

// Release migrates every locked entry whose UnlockAt has been surpassed
// by blockTimestamp into spendable balance (spec.md §4.4 "Block
// application" step 1).
func (idx *Index) Release(blockTimestamp int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	remaining := idx.locked[:0]
	for _, lb := range idx.locked {
		if lb.UnlockAt <= blockTimestamp {
			idx.balances[Key{Addr: lb.Addr, Token: lb.Token}] += lb.Amount
		} else {
			remaining = append(remaining, lb)
		}
	}
	idx.locked = remaining
}

// Snapshot deep-copies the index, used by the Chain Manager to restore
// state if a sub-chain push fails partway through (spec.md §9 design
// note 2: "a correct implementation must snapshot-and-restore the entire
// index").
func (idx *Index) Snapshot() *Index {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := New()
	for k, v := range idx.balances {
		out.balances[k] = v
	}
	out.locked = append(out.locked, idx.locked...)
	for k, v := range idx.nonces {
		out.nonces[k] = v
	}
	for k, v := range idx.mints {
		out.mints[k] = v
	}
	out.sigs = idx.sigs.clone()
	return out
}

// Restore replaces idx's contents with snapshot's, in place, so existing
// holders of *Index observe the rollback.
func (idx *Index) Restore(snapshot *Index) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	snapshot.mu.RLock()
	defer snapshot.mu.RUnlock()

	idx.balances = make(map[Key]uint64, len(snapshot.balances))
	for k, v := range snapshot.balances {
		idx.balances[k] = v
	}
	idx.locked = append([]LockedEntry(nil), snapshot.locked...)
	idx.nonces = make(map[string]uint64, len(snapshot.nonces))
	for k, v := range snapshot.nonces {
		idx.nonces[k] = v
	}
	idx.mints = make(map[string]MintInfo, len(snapshot.mints))
	for k, v := range snapshot.mints {
		idx.mints[k] = v
	}
	idx.sigs = snapshot.sigs
}
