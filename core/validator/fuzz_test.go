package validator

import (
	"strings"
	"testing"

	fuzz "github.com/google/gofuzz"

	"github.com/feelesschain/fullnode/core/state"
	"github.com/feelesschain/fullnode/core/types"
)

// fakeStateView is a zero-value-friendly StateView stand-in; every fuzzed
// transaction below fails on the amount/unlock checks before CheckTx ever
// consults state, so its methods are never called in anger.
type fakeStateView struct{}

func (fakeStateView) Balance(addr, token string) uint64            { return 0 }
func (fakeStateView) LastNonce(addr string) uint64                 { return 0 }
func (fakeStateView) IsSpent(sig string) bool                      { return false }
func (fakeStateView) MintInfo(token string) (state.MintInfo, bool) { return state.MintInfo{}, false }
func (fakeStateView) MintCount() int                               { return 0 }

// TestCheckTxRejectsZeroAmountAcrossRandomFixtures fuzzes every other
// field of a transaction (sender, receiver, signature, nonce, timestamp)
// and asserts CheckTx always rejects Amount == 0, regardless of what else
// varies (spec.md §4.4 rule: "amount must be a positive integer").
func TestCheckTxRejectsZeroAmountAcrossRandomFixtures(t *testing.T) {
	v := New(fakeStateView{})
	f := fuzz.New().NilChance(0).NumElements(0, 0)

	for i := 0; i < 200; i++ {
		var tx types.Transaction
		f.Fuzz(&tx)
		tx.Amount = 0
		tx.Unlock = nil
		tx.Mint = nil

		err := v.CheckTx(&tx, CheckTxOptions{})
		if err == nil {
			t.Fatalf("fuzzed transaction %+v with Amount=0 should always be rejected", tx)
		}
		if !strings.Contains(err.Error(), "positive") {
			t.Fatalf("fuzzed transaction %+v: expected the zero-amount rejection reason, got %q", tx, err.Error())
		}
	}
}

// TestCheckTxRejectsNonIncreasingUnlockAcrossRandomFixtures fuzzes the
// timestamp and derives an unlock at-or-before it, asserting CheckTx
// always rejects regardless of the randomized sender/signature/nonce.
func TestCheckTxRejectsNonIncreasingUnlockAcrossRandomFixtures(t *testing.T) {
	v := New(fakeStateView{})
	f := fuzz.New().NilChance(0).NumElements(0, 0)

	for i := 0; i < 200; i++ {
		var tx types.Transaction
		f.Fuzz(&tx)
		tx.Amount = 1
		tx.Mint = nil
		unlock := tx.Timestamp
		tx.Unlock = &unlock

		err := v.CheckTx(&tx, CheckTxOptions{})
		if err == nil {
			t.Fatalf("fuzzed transaction %+v with Unlock == Timestamp should always be rejected", tx)
		}
		if !strings.Contains(err.Error(), "unlock must be strictly greater") {
			t.Fatalf("fuzzed transaction %+v: expected the unlock-ordering rejection reason, got %q", tx, err.Error())
		}
	}
}
