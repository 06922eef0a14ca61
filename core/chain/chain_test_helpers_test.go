package chain

import (
	"testing"

	"github.com/feelesschain/fullnode/core/rawdb"
	"github.com/feelesschain/fullnode/core/state"
	"github.com/feelesschain/fullnode/core/txpool"
	"github.com/feelesschain/fullnode/core/types"
	"github.com/feelesschain/fullnode/core/validator"
	"github.com/feelesschain/fullnode/internal/testutil"
	"github.com/feelesschain/fullnode/params"
)

// newTestManager opens a fresh leveldb-backed store under t.TempDir() and
// wires a Manager against it, mirroring node.New's construction.
func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir() + "/store"
	store, err := rawdb.Open(dir, rawdb.EngineLevelDB, params.Tail)
	if err != nil {
		t.Fatalf("rawdb.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	idx := state.New()
	val := validator.New(idx)
	pool := txpool.New(val, idx)
	bus := NewEventBus()
	return New(store, idx, pool, val, bus)
}

// rewardTxs builds the exactly-one-dev-fee, exactly-one-miner-reward pair
// spec.md §4.4 rule 9 requires at height.
func rewardTxs(height uint64, minerAddr string) []types.Transaction {
	total := params.Reward(height)
	devFee := uint64(float64(total) * params.DevFee)
	return []types.Transaction{
		{Sender: types.SenderNetworkString, Receiver: params.DevWallet, Amount: devFee, Signature: types.SenderNetworkString},
		{Sender: types.SenderNetworkString, Receiver: minerAddr, Amount: total - devFee, Signature: types.SenderNetworkString},
	}
}

// fakeHashBlock builds a block whose declared Hash is a trivial all-zero
// value, valid under TrustHash replay (mgr.Init uses TrustHash for every
// persisted block after genesis) but never under the live AddBlock path.
func fakeHashBlock(proposer testutil.KeyPair, ts int64, prevHash string, txs []types.Transaction) types.Block {
	b := types.Block{
		Timestamp:    ts,
		Transactions: txs,
		PrevHash:     prevHash,
		Diff:         params.StartingDiff,
		Hash:         "0000000000000000000000000000000000000000000000000000000000000000",
	}
	testutil.SignBlock(&b, proposer)
	return b
}

// mineBlock builds a genuinely mined and signed block, valid under the
// live AddBlock/PushSubChain path (which never trusts the declared hash).
func mineBlock(t *testing.T, proposer testutil.KeyPair, ts int64, prevHash string, txs []types.Transaction) types.Block {
	t.Helper()
	b := types.Block{
		Timestamp:    ts,
		Transactions: txs,
		PrevHash:     prevHash,
		Diff:         params.StartingDiff,
	}
	if err := testutil.Mine(&b, testutil.StartingTarget(), 10_000); err != nil {
		t.Fatalf("mineBlock: %v", err)
	}
	testutil.SignBlock(&b, proposer)
	return b
}

// genesisBlock builds height-0 content: Init() applies it unconditionally
// with no validation, so its Hash/Signature/Diff fields are immaterial.
func genesisBlock(credits map[string]uint64) types.Block {
	var txs []types.Transaction
	for addr, amt := range credits {
		txs = append(txs, types.Transaction{Sender: types.SenderNetworkString, Receiver: addr, Amount: amt, Signature: types.SenderNetworkString})
	}
	return types.Block{Timestamp: 0, Transactions: txs, PrevHash: "", Diff: params.StartingDiff, Hash: "genesis", Signature: "genesis", Proposer: "genesis"}
}
