package validator

import (
	"testing"

	"github.com/feelesschain/fullnode/core/types"
	"github.com/feelesschain/fullnode/internal/testutil"
	"github.com/feelesschain/fullnode/params"
)

// rewardTxs builds the exactly-one-dev-fee, exactly-one-miner-reward
// transaction pair spec.md §4.4 rule 9 requires, for height.
func rewardTxs(height uint64, minerAddr string) []types.Transaction {
	total := params.Reward(height)
	devFee := uint64(float64(total) * params.DevFee)
	return []types.Transaction{
		{Sender: types.SenderNetworkString, Receiver: params.DevWallet, Amount: devFee, Signature: types.SenderNetworkString},
		{Sender: types.SenderNetworkString, Receiver: minerAddr, Amount: total - devFee, Signature: types.SenderNetworkString},
	}
}

// buildBlock constructs and signs a block carrying a fixed all-zero hash
// (it is not mined, so it only passes with TrustHash set) so individual
// tests only need to vary one aspect before calling CheckBlock.
func buildBlock(proposer testutil.KeyPair, ts int64, prevHash string, txs []types.Transaction) types.Block {
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

func baseOpts(height uint64, prevHash string) CheckBlockOptions {
	return CheckBlockOptions{
		Height:     height,
		PrevHash:   prevHash,
		PrevTarget: nil,
		Replay:     true,
		TrustHash:  true,
	}
}

func TestCheckBlockAcceptsWellFormedBlock(t *testing.T) {
	st := newFakeState()
	v := New(st)
	proposer := testutil.NewKeyPair(10)

	b := buildBlock(proposer, 1000, "genesis", rewardTxs(0, proposer.PubHex))
	if err := v.CheckBlock(&b, baseOpts(0, "genesis")); err != nil {
		t.Fatalf("CheckBlock rejected a well-formed block: %v", err)
	}
}

func TestCheckBlockRejectsHashExceedingTarget(t *testing.T) {
	st := newFakeState()
	v := New(st)
	proposer := testutil.NewKeyPair(10)

	b := buildBlock(proposer, 1000, "genesis", rewardTxs(0, proposer.PubHex))
	b.Hash = "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff" // exceeds the loose genesis target
	opts := baseOpts(0, "genesis")
	opts.TrustHash = false // irrelevant here: the PoW gate runs unconditionally
	if err := v.CheckBlock(&b, opts); err == nil {
		t.Fatalf("expected rejection of a hash that exceeds the target")
	}
}

func TestCheckBlockRejectsDeclaredDiffMismatch(t *testing.T) {
	st := newFakeState()
	v := New(st)
	proposer := testutil.NewKeyPair(10)

	b := buildBlock(proposer, 1000, "genesis", rewardTxs(0, proposer.PubHex))
	b.Diff = "00ff" // no longer matches the computed target, and the signature now mismatches too
	if err := v.CheckBlock(&b, baseOpts(0, "genesis")); err == nil {
		t.Fatalf("expected rejection of a mismatched declared diff")
	}
}

func TestCheckBlockRejectsWrongPrevHash(t *testing.T) {
	st := newFakeState()
	v := New(st)
	proposer := testutil.NewKeyPair(10)

	b := buildBlock(proposer, 1000, "genesis", rewardTxs(0, proposer.PubHex))
	if err := v.CheckBlock(&b, baseOpts(0, "not-genesis")); err == nil {
		t.Fatalf("expected rejection of a prev_hash that does not match the current tip")
	}
}

func TestCheckBlockRejectsTamperedSignature(t *testing.T) {
	st := newFakeState()
	v := New(st)
	proposer := testutil.NewKeyPair(10)
	other := testutil.NewKeyPair(11)

	b := buildBlock(proposer, 1000, "genesis", rewardTxs(0, proposer.PubHex))
	b.Proposer = other.PubHex // signature no longer verifies under the new proposer key
	if err := v.CheckBlock(&b, baseOpts(0, "genesis")); err == nil {
		t.Fatalf("expected rejection once Proposer no longer matches the signature")
	}
}

func TestCheckBlockRejectsMalformedRewardStructure(t *testing.T) {
	st := newFakeState()
	v := New(st)
	proposer := testutil.NewKeyPair(10)

	txs := rewardTxs(0, proposer.PubHex)
	txs[1].Amount++ // miner share no longer matches params.Reward - devFee
	b := buildBlock(proposer, 1000, "genesis", txs)
	if err := v.CheckBlock(&b, baseOpts(0, "genesis")); err == nil {
		t.Fatalf("expected rejection of a malformed mining-reward amount")
	}
}

func TestCheckBlockRejectsMissingDevFeeTx(t *testing.T) {
	st := newFakeState()
	v := New(st)
	proposer := testutil.NewKeyPair(10)

	txs := rewardTxs(0, proposer.PubHex)[1:] // drop the dev-fee transaction
	b := buildBlock(proposer, 1000, "genesis", txs)
	if err := v.CheckBlock(&b, baseOpts(0, "genesis")); err == nil {
		t.Fatalf("expected rejection when no dev-fee transaction is present")
	}
}

func TestCheckBlockRejectsDuplicateSenderInBlock(t *testing.T) {
	kp := testutil.NewKeyPair(1)
	st := newFakeState()
	st.balances[kp.PubHex+"/"] = 1000
	v := New(st)
	proposer := testutil.NewKeyPair(10)

	tx1 := types.Transaction{Receiver: "bob", Amount: 1, Nonce: 1, Timestamp: 1000}
	testutil.SignTx(&tx1, kp)
	tx2 := types.Transaction{Receiver: "carol", Amount: 1, Nonce: 2, Timestamp: 1000}
	testutil.SignTx(&tx2, kp)

	txs := append(rewardTxs(0, proposer.PubHex), tx1, tx2)
	b := buildBlock(proposer, 1000, "genesis", txs)
	if err := v.CheckBlock(&b, baseOpts(0, "genesis")); err == nil {
		t.Fatalf("expected rejection: sender %s appears twice in the block", kp.PubHex)
	}
}

func TestCheckBlockAcceptsEmbeddedAddressTransaction(t *testing.T) {
	kp := testutil.NewKeyPair(1)
	st := newFakeState()
	st.balances[kp.PubHex+"/"] = 1000
	v := New(st)
	proposer := testutil.NewKeyPair(10)

	tx := types.Transaction{Receiver: "bob", Amount: 40, Nonce: 1, Timestamp: 1000}
	testutil.SignTx(&tx, kp)

	txs := append(rewardTxs(0, proposer.PubHex), tx)
	b := buildBlock(proposer, 1000, "genesis", txs)
	if err := v.CheckBlock(&b, baseOpts(0, "genesis")); err != nil {
		t.Fatalf("CheckBlock rejected a block with a valid embedded transaction: %v", err)
	}
}

func TestCheckBlockRejectsUnregisteredAirdrop(t *testing.T) {
	st := newFakeState()
	v := New(st)
	proposer := testutil.NewKeyPair(10)

	airdrop := types.Transaction{Sender: types.SenderMintString, Receiver: "alice", Amount: 5, Token: "FOO", Signature: types.SenderMintString}
	txs := append(rewardTxs(0, proposer.PubHex), airdrop)
	b := buildBlock(proposer, 1000, "genesis", txs)
	if err := v.CheckBlock(&b, baseOpts(0, "genesis")); err == nil {
		t.Fatalf("expected rejection: airdrop for FOO matches neither a registered nor in-block mint")
	}
}

func TestCheckBlockAcceptsAirdropMatchingInBlockMint(t *testing.T) {
	kp := testutil.NewKeyPair(2)
	st := newFakeState()
	st.balances[kp.PubHex+"/"] = 100 * params.PointsPerCoin
	v := New(st)
	proposer := testutil.NewKeyPair(10)

	mintTx := types.Transaction{Receiver: params.DevWallet, Amount: params.MintFee(0, 0), Nonce: 1, Timestamp: 1000, Mint: &types.Mint{Token: "FOO", Airdrop: 5}}
	testutil.SignTx(&mintTx, kp)
	airdrop := types.Transaction{Sender: types.SenderMintString, Receiver: kp.PubHex, Amount: 5, Token: "FOO", Signature: types.SenderMintString}

	txs := append(rewardTxs(0, proposer.PubHex), mintTx, airdrop)
	b := buildBlock(proposer, 1000, "genesis", txs)
	if err := v.CheckBlock(&b, baseOpts(0, "genesis")); err != nil {
		t.Fatalf("CheckBlock rejected an airdrop matching an in-block mint: %v", err)
	}
}

// This is the one test that exercises the real proof-of-work path end to
// end (TrustHash false), mining against the loose genesis target.
func TestCheckBlockAcceptsGenuinelyMinedBlock(t *testing.T) {
	st := newFakeState()
	v := New(st)
	proposer := testutil.NewKeyPair(10)

	b := types.Block{
		Timestamp:    1000,
		Transactions: rewardTxs(0, proposer.PubHex),
		PrevHash:     "genesis",
		Diff:         params.StartingDiff,
	}
	if err := testutil.Mine(&b, testutil.StartingTarget(), 10_000); err != nil {
		t.Fatalf("Mine: %v", err)
	}
	testutil.SignBlock(&b, proposer)

	opts := CheckBlockOptions{Height: 0, PrevHash: "genesis", Replay: true, TrustHash: false, Now: 1000}
	if err := v.CheckBlock(&b, opts); err != nil {
		t.Fatalf("CheckBlock rejected a genuinely mined block: %v", err)
	}
}
