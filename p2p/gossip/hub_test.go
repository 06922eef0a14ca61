package gossip

import (
	"encoding/json"
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

// newTestHub wires a Hub against a freshly initialized, genesis-only
// chain.Manager, so dispatch tests exercise the real validation and
// commit path without any network transport.
func newTestHub(t *testing.T) (*Hub, *chain.Manager) {
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
	return NewHub(mgr), mgr
}

func TestHandleTxAdmitsWellFormedTransaction(t *testing.T) {
	h, mgr := newTestHub(t)
	kp := testutil.NewKeyPair(1)
	credit := types.Transaction{Sender: types.SenderNetworkString, Receiver: kp.PubHex, Amount: 100, Signature: types.SenderNetworkString}
	if err := mgr.State().Apply(&credit, 0); err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	tx := types.Transaction{Receiver: "bob", Amount: 10, Nonce: 1, Timestamp: 1000}
	testutil.SignTx(&tx, kp)
	raw, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	h.handleTx(raw)
	if !mgr.Mempool().Contains(tx.Identity()) {
		t.Fatalf("a well-formed gossip tx should have been admitted to the mempool")
	}
}

func TestHandleTxDropsMalformedEnvelope(t *testing.T) {
	h, mgr := newTestHub(t)
	h.handleTx(json.RawMessage(`{not valid json`))
	if len(mgr.Mempool().All()) != 0 {
		t.Fatalf("a malformed envelope must not reach the mempool")
	}
}

func TestHandleBlockSuppressesDuplicateHash(t *testing.T) {
	h, mgr := newTestHub(t)
	miner := testutil.NewKeyPair(1)

	total := params.Reward(mgr.Height())
	devFee := uint64(float64(total) * params.DevFee)
	txs := []types.Transaction{
		{Sender: types.SenderNetworkString, Receiver: params.DevWallet, Amount: devFee, Signature: types.SenderNetworkString},
		{Sender: types.SenderNetworkString, Receiver: miner.PubHex, Amount: total - devFee, Signature: types.SenderNetworkString},
	}
	b := types.Block{Timestamp: 1000, Transactions: txs, PrevHash: mgr.LastHash(), Diff: params.StartingDiff}
	if err := testutil.Mine(&b, testutil.StartingTarget(), 10_000); err != nil {
		t.Fatalf("Mine: %v", err)
	}
	testutil.SignBlock(&b, miner)
	raw, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	h.handleBlock(raw)
	if mgr.Height() != 2 {
		t.Fatalf("Height() = %d after first gossip block, want 2", mgr.Height())
	}

	// A second delivery of the same block (duplicate gossip) must be
	// suppressed by lastSeenBlock rather than rejected by AddBlock, and
	// must not change height.
	h.handleBlock(raw)
	if mgr.Height() != 2 {
		t.Fatalf("Height() = %d after duplicate gossip block, want unchanged 2", mgr.Height())
	}
}

func TestHandlePushSuppressesDuplicateSubChain(t *testing.T) {
	h, mgr := newTestHub(t)
	miner := testutil.NewKeyPair(1)

	total := params.Reward(mgr.Height())
	devFee := uint64(float64(total) * params.DevFee)
	txs := []types.Transaction{
		{Sender: types.SenderNetworkString, Receiver: params.DevWallet, Amount: devFee, Signature: types.SenderNetworkString},
		{Sender: types.SenderNetworkString, Receiver: miner.PubHex, Amount: total - devFee, Signature: types.SenderNetworkString},
	}
	b := types.Block{Timestamp: 1000, Transactions: txs, PrevHash: mgr.LastHash(), Diff: params.StartingDiff}
	if err := testutil.Mine(&b, testutil.StartingTarget(), 10_000); err != nil {
		t.Fatalf("Mine: %v", err)
	}
	testutil.SignBlock(&b, miner)

	raw, err := json.Marshal([]types.Block{b})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	h.handlePush(raw)
	if mgr.Height() != 2 {
		t.Fatalf("Height() = %d after first push, want 2", mgr.Height())
	}
	h.handlePush(raw)
	if mgr.Height() != 2 {
		t.Fatalf("Height() = %d after duplicate push, want unchanged 2", mgr.Height())
	}
}

func TestDispatchRoutesOnEventName(t *testing.T) {
	h, mgr := newTestHub(t)
	kp := testutil.NewKeyPair(1)
	credit := types.Transaction{Sender: types.SenderNetworkString, Receiver: kp.PubHex, Amount: 100, Signature: types.SenderNetworkString}
	if err := mgr.State().Apply(&credit, 0); err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	tx := types.Transaction{Receiver: "bob", Amount: 10, Nonce: 1, Timestamp: 1000}
	testutil.SignTx(&tx, kp)
	raw, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	h.dispatch(nil, Envelope{Event: EventTx, Data: raw})
	if !mgr.Mempool().Contains(tx.Identity()) {
		t.Fatalf("dispatch should have routed the tx event to handleTx")
	}
}

func TestSetStopIncomingBlocksDispatch(t *testing.T) {
	h, mgr := newTestHub(t)
	h.SetStopIncoming(true)

	kp := testutil.NewKeyPair(1)
	credit := types.Transaction{Sender: types.SenderNetworkString, Receiver: kp.PubHex, Amount: 100, Signature: types.SenderNetworkString}
	if err := mgr.State().Apply(&credit, 0); err != nil {
		t.Fatalf("seed balance: %v", err)
	}
	tx := types.Transaction{Receiver: "bob", Amount: 10, Nonce: 1, Timestamp: 1000}
	testutil.SignTx(&tx, kp)
	raw, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	h.dispatch(nil, Envelope{Event: EventTx, Data: raw})
	if mgr.Mempool().Contains(tx.Identity()) {
		t.Fatalf("dispatch should be a no-op while stopIncoming is set")
	}
}
