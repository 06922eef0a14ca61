// Package txpool implements C3, the Mempool: an ordered sequence of
// pending transactions with a per-sender uniqueness guard (spec.md
// §4.3). Reserved-sender transactions are injected only by the chain
// manager during block commit, never admitted through Push.
package txpool

import (
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/feelesschain/fullnode/core/state"
	"github.com/feelesschain/fullnode/core/types"
	"github.com/feelesschain/fullnode/core/validator"
)

// Pool is C3.
type Pool struct {
	mu sync.RWMutex

	order      []types.Transaction
	pending    mapset.Set[string] // non-reserved senders with a pending tx
	pendingMint mapset.Set[string] // tokens with a pending mint tx

	validator *validator.Validator
	index     *state.Index
}

func New(v *validator.Validator, idx *state.Index) *Pool {
	return &Pool{
		pending:     mapset.NewThreadUnsafeSet[string](),
		pendingMint: mapset.NewThreadUnsafeSet[string](),
		validator:   v,
		index:       idx,
	}
}

// Push admits tx iff the validator approves it and, for non-reserved
// senders, the per-sender uniqueness guard holds (spec.md §4.3: "at most
// one pending transaction per non-reserved sender"). A successful mint
// admission synthesizes the airdrop transaction described in spec.md
// §4.3.
func (p *Pool) Push(tx types.Transaction, height uint64, now int64) error {
	if tx.SenderKind() != types.SenderAddress {
		return fmt.Errorf("reserved-sender transactions may only be injected by the chain manager")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending.Contains(tx.Sender) {
		return fmt.Errorf("sender %s already has a pending transaction", tx.Sender)
	}

	if err := p.validator.CheckTx(&tx, validator.CheckTxOptions{
		IncludeMempoolBalance: true,
		IsBlockContext:        false,
		Height:                height,
		Now:                   now,
		Mempool:               p,
	}); err != nil {
		return err
	}

	p.order = append(p.order, tx)
	p.pending.Add(tx.Sender)

	if tx.Mint != nil {
		p.pendingMint.Add(tx.Mint.Token)
		if tx.Mint.Airdrop > 0 {
			airdrop := types.Transaction{
				Sender:    types.SenderMintString,
				Receiver:  tx.Sender,
				Amount:    tx.Mint.Airdrop,
				Token:     tx.Mint.Token,
				Signature: types.SenderMintString,
				Timestamp: tx.Timestamp,
			}
			p.order = append(p.order, airdrop)
		}
	}
	return nil
}

// InjectForSync appends a historical, already-accepted transaction
// directly, bypassing both the admission guard and CheckTx. Used only
// while replaying a fetched block's transactions ahead of addBlock
// during pull-sync (spec.md §4.5: "fetch block(i), inject its
// transactions into the mempool, addBlock(replay=true)").
func (p *Pool) InjectForSync(tx types.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.order = append(p.order, tx)
	if tx.SenderKind() == types.SenderAddress {
		p.pending.Add(tx.Sender)
	}
	if tx.Mint != nil {
		p.pendingMint.Add(tx.Mint.Token)
	}
}

// Remove deletes every entry in ids from the pool by identity match
// (spec.md §4.4 "Block application" step 4).
func (p *Pool) Remove(ids []types.IdentityKey) {
	p.mu.Lock()
	defer p.mu.Unlock()

	want := make(map[types.IdentityKey]int, len(ids))
	for _, id := range ids {
		want[id]++
	}

	out := p.order[:0]
	for _, tx := range p.order {
		id := tx.Identity()
		if n, ok := want[id]; ok && n > 0 {
			want[id]--
			if tx.Mint != nil {
				p.pendingMint.Remove(tx.Mint.Token)
			}
			if tx.SenderKind() == types.SenderAddress {
				p.pending.Remove(tx.Sender)
			}
			continue
		}
		out = append(out, tx)
	}
	p.order = out
}

// Clear empties the pool, used when a pull-sync diverges from the local
// tip (spec.md §4.5 step 2).
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.order = nil
	p.pending = mapset.NewThreadUnsafeSet[string]()
	p.pendingMint = mapset.NewThreadUnsafeSet[string]()
}

// Replace swaps the pool's contents for txs wholesale, rebuilding the
// per-sender/per-mint guards (spec.md §4.5 step 4: "replace local
// mempool with the peer's mempool").
func (p *Pool) Replace(txs []types.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.order = append([]types.Transaction(nil), txs...)
	p.pending = mapset.NewThreadUnsafeSet[string]()
	p.pendingMint = mapset.NewThreadUnsafeSet[string]()
	for _, tx := range txs {
		if tx.SenderKind() == types.SenderAddress {
			p.pending.Add(tx.Sender)
		}
		if tx.Mint != nil {
			p.pendingMint.Add(tx.Mint.Token)
		}
	}
}

// All returns a copy of the pool's pending transactions, in admission
// order.
func (p *Pool) All() []types.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]types.Transaction(nil), p.order...)
}

// PendingAmount implements validator.MempoolView.
func (p *Pool) PendingAmount(sender, token string) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var total uint64
	for _, tx := range p.order {
		if tx.Sender == sender && tx.Token == token && tx.SenderKind() == types.SenderAddress {
			total += tx.Amount
		}
	}
	return total
}

// PendingMint implements validator.MempoolView.
func (p *Pool) PendingMint(token string) (uint64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, tx := range p.order {
		if tx.Mint != nil && tx.Mint.Token == token {
			return tx.Mint.Airdrop, true
		}
	}
	return 0, false
}

// HasMintPending implements validator.MempoolView.
func (p *Pool) HasMintPending(token string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pendingMint.Contains(token)
}

// Contains implements validator.MempoolView.
func (p *Pool) Contains(id types.IdentityKey) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, tx := range p.order {
		if tx.Identity() == id {
			return true
		}
	}
	return false
}

// CountUpTo implements validator.MempoolView.
func (p *Pool) CountUpTo(ts int64) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, tx := range p.order {
		if tx.Timestamp <= ts {
			n++
		}
	}
	return n
}
