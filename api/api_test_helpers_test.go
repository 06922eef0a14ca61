package api

import (
	"testing"

	"github.com/feelesschain/fullnode/core/chain"
	"github.com/feelesschain/fullnode/core/rawdb"
	"github.com/feelesschain/fullnode/core/state"
	"github.com/feelesschain/fullnode/core/txpool"
	"github.com/feelesschain/fullnode/core/types"
	"github.com/feelesschain/fullnode/core/validator"
	"github.com/feelesschain/fullnode/internal/testutil"
	"github.com/feelesschain/fullnode/params"
)

// newTestManager builds a genesis-only chain.Manager backed by a
// tempdir-rooted leveldb store, mirroring node.New's wiring.
func newTestManager(t *testing.T) *chain.Manager {
	t.Helper()
	store, err := rawdb.Open(t.TempDir()+"/store", rawdb.EngineLevelDB, params.Tail)
	if err != nil {
		t.Fatalf("rawdb.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	idx := state.New()
	val := validator.New(idx)
	pool := txpool.New(val, idx)
	mgr := chain.New(store, idx, pool, val, chain.NewEventBus())

	genesis := types.Block{Hash: "genesis", Proposer: "genesis", Signature: "genesis", Diff: params.StartingDiff}
	if err := store.Put(0, &genesis); err != nil {
		t.Fatalf("Put genesis: %v", err)
	}
	if err := mgr.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return mgr
}

// seedOneBlock credits alice at genesis, pushes a transfer from alice to
// bob into the mempool, mines a block carrying the miner's reward plus
// that transfer, and commits it, returning the mined block.
func seedOneBlock(t *testing.T, mgr *chain.Manager, alice, miner testutil.KeyPair) types.Block {
	t.Helper()
	credit := types.Transaction{Sender: types.SenderNetworkString, Receiver: alice.PubHex, Amount: 1000, Signature: types.SenderNetworkString}
	if err := mgr.State().Apply(&credit, 0); err != nil {
		t.Fatalf("seed alice balance: %v", err)
	}

	transfer := types.Transaction{Receiver: "bob", Amount: 100, Nonce: 1, Timestamp: 1000}
	testutil.SignTx(&transfer, alice)
	if err := mgr.PushTx(transfer, 1000); err != nil {
		t.Fatalf("PushTx: %v", err)
	}

	total := params.Reward(mgr.Height())
	devFee := uint64(float64(total) * params.DevFee)
	txs := []types.Transaction{
		{Sender: types.SenderNetworkString, Receiver: params.DevWallet, Amount: devFee, Signature: types.SenderNetworkString},
		{Sender: types.SenderNetworkString, Receiver: miner.PubHex, Amount: total - devFee, Signature: types.SenderNetworkString},
		transfer,
	}
	b := types.Block{Timestamp: 1000, Transactions: txs, PrevHash: mgr.LastHash(), Diff: params.StartingDiff}
	if err := testutil.Mine(&b, testutil.StartingTarget(), 10_000); err != nil {
		t.Fatalf("Mine: %v", err)
	}
	testutil.SignBlock(&b, miner)
	if err := mgr.AddBlock(&b, 1000); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	return b
}
