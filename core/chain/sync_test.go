package chain

import (
	"testing"

	"github.com/feelesschain/fullnode/core/types"
	"github.com/feelesschain/fullnode/internal/testutil"
)

// buildThreeBlockChain seeds a manager with genesis plus two mined,
// reward-only blocks (one paid to minerA, one to minerB) added through the
// live AddBlock path; being reward-only, they need no mempool entries. b1
// is stamped one BlockTime after genesis, so the retarget b2 is checked
// against leaves the starting target unchanged.
func buildThreeBlockChain(t *testing.T, minerA, minerB testutil.KeyPair) (*Manager, types.Block, types.Block) {
	t.Helper()
	mgr := newTestManager(t)
	gen := genesisBlock(nil)
	if err := mgr.store.Put(0, &gen); err != nil {
		t.Fatalf("Put genesis: %v", err)
	}
	if err := mgr.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	b1 := mineBlock(t, minerA, 10_000, mgr.LastHash(), rewardTxs(mgr.Height(), minerA.PubHex))
	if err := mgr.AddBlock(&b1, 10_000); err != nil {
		t.Fatalf("AddBlock b1: %v", err)
	}
	b2 := mineBlock(t, minerB, 20_000, mgr.LastHash(), rewardTxs(mgr.Height(), minerB.PubHex))
	if err := mgr.AddBlock(&b2, 20_000); err != nil {
		t.Fatalf("AddBlock b2: %v", err)
	}
	return mgr, b1, b2
}

func TestDivergencePointWalksBackToLastMatchingHash(t *testing.T) {
	minerA, minerB := testutil.NewKeyPair(1), testutil.NewKeyPair(2)
	mgr, _, _ := buildThreeBlockChain(t, minerA, minerB)

	genHash, _, err := mgr.store.Get(0)
	if err != nil {
		t.Fatalf("Get(0): %v", err)
	}

	remoteHash := func(height uint64) (string, error) {
		if height == 0 {
			return genHash.Hash, nil
		}
		return "diverged", nil
	}

	fork, err := mgr.DivergencePoint(remoteHash)
	if err != nil {
		t.Fatalf("DivergencePoint: %v", err)
	}
	if fork != 1 {
		t.Fatalf("fork = %d, want 1 (agreement ends after genesis)", fork)
	}
}

func TestDivergencePointReturnsZeroAtGenesisHeight(t *testing.T) {
	mgr := newTestManager(t)
	fork, err := mgr.DivergencePoint(func(uint64) (string, error) { return "", nil })
	if err != nil {
		t.Fatalf("DivergencePoint: %v", err)
	}
	if fork != 0 {
		t.Fatalf("fork = %d, want 0 for an empty chain", fork)
	}
}

func TestResyncToRebuildsIndexFromScratch(t *testing.T) {
	minerA, minerB := testutil.NewKeyPair(1), testutil.NewKeyPair(2)
	mgr, b1, _ := buildThreeBlockChain(t, minerA, minerB)

	balanceA := mgr.State().Balance(minerA.PubHex, "")
	balanceB := mgr.State().Balance(minerB.PubHex, "")
	if balanceA == 0 || balanceB == 0 {
		t.Fatalf("both miners should hold a reward before resync: A=%d B=%d", balanceA, balanceB)
	}

	if err := mgr.ResyncTo(2); err != nil {
		t.Fatalf("ResyncTo: %v", err)
	}
	if mgr.Height() != 2 {
		t.Fatalf("Height() = %d, want 2", mgr.Height())
	}
	if mgr.LastHash() != b1.Hash {
		t.Fatalf("LastHash() = %q, want b1's hash %q", mgr.LastHash(), b1.Hash)
	}
	if got := mgr.State().Balance(minerA.PubHex, ""); got != balanceA {
		t.Fatalf("minerA balance changed across resync: got %d, want %d", got, balanceA)
	}
	if got := mgr.State().Balance(minerB.PubHex, ""); got != 0 {
		t.Fatalf("minerB reward from b2 should be gone after rolling back to fork 2, got %d", got)
	}
	if len(mgr.Mempool().All()) != 0 {
		t.Fatalf("mempool should be cleared by ResyncTo")
	}
}

func TestResyncToGenesisClearsEverything(t *testing.T) {
	minerA, minerB := testutil.NewKeyPair(1), testutil.NewKeyPair(2)
	mgr, _, _ := buildThreeBlockChain(t, minerA, minerB)

	if err := mgr.ResyncTo(0); err != nil {
		t.Fatalf("ResyncTo(0): %v", err)
	}
	if mgr.Height() != 0 {
		t.Fatalf("Height() = %d, want 0", mgr.Height())
	}
	if mgr.LastHash() != "" {
		t.Fatalf("LastHash() = %q, want empty after rolling back to genesis", mgr.LastHash())
	}
	if got := mgr.State().Balance(minerA.PubHex, ""); got != 0 {
		t.Fatalf("minerA balance should be zero after rolling back past its reward, got %d", got)
	}
}

func TestApplySyncedBlockInjectsEmbeddedTxBeforeValidating(t *testing.T) {
	mgr := newTestManager(t)
	alice := testutil.NewKeyPair(1)
	miner := testutil.NewKeyPair(9)

	gen := genesisBlock(map[string]uint64{alice.PubHex: 1000})
	if err := mgr.store.Put(0, &gen); err != nil {
		t.Fatalf("Put genesis: %v", err)
	}
	if err := mgr.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	transfer := types.Transaction{Receiver: "bob", Amount: 100, Nonce: 1, Timestamp: 1000}
	testutil.SignTx(&transfer, alice)

	txs := append(rewardTxs(mgr.Height(), miner.PubHex), transfer)
	b := mineBlock(t, miner, 1000, mgr.LastHash(), txs)

	if err := mgr.ApplySyncedBlock(&b, 1000); err != nil {
		t.Fatalf("ApplySyncedBlock: %v", err)
	}
	if mgr.Height() != 2 {
		t.Fatalf("Height() = %d, want 2", mgr.Height())
	}
	if got := mgr.State().Balance("bob", ""); got != 100 {
		t.Fatalf("bob balance = %d, want 100", got)
	}
}

func TestReplaceMempoolSwapsInPeerTransactions(t *testing.T) {
	mgr := newTestManager(t)
	kp := testutil.NewKeyPair(1)
	tx := types.Transaction{Receiver: "bob", Amount: 1, Nonce: 1, Timestamp: 1000}
	testutil.SignTx(&tx, kp)

	mgr.ReplaceMempool([]types.Transaction{tx})
	if !mgr.Mempool().Contains(tx.Identity()) {
		t.Fatalf("ReplaceMempool should make the peer's transaction visible")
	}
}

func TestPushCandidateReturnsMostRecentBlocks(t *testing.T) {
	minerA, minerB := testutil.NewKeyPair(1), testutil.NewKeyPair(2)
	mgr, b1, b2 := buildThreeBlockChain(t, minerA, minerB)

	blocks, err := mgr.PushCandidate(2)
	if err != nil {
		t.Fatalf("PushCandidate: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("len(blocks) = %d, want 2", len(blocks))
	}
	if blocks[0].Hash != b1.Hash || blocks[1].Hash != b2.Hash {
		t.Fatalf("PushCandidate returned the wrong blocks or order")
	}
}
