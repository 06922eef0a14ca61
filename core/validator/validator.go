// Package validator implements C4: pure checks for a transaction against
// current state (checkTx) and pure checks for a block against current
// state (checkBlock), plus the difficulty-target arithmetic spec.md §4.4
// describes. Validator holds no mutable state of its own — every check
// takes a snapshot view, so validation can run without acquiring any lock
// beyond whatever the caller (core/chain.Manager) already holds per
// spec.md §5.
package validator

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"github.com/feelesschain/fullnode/core/state"
	"github.com/feelesschain/fullnode/core/types"
	"github.com/feelesschain/fullnode/params"
)

// StateView is the read-only slice of C2 the validator needs. *state.Index
// satisfies this interface structurally.
type StateView interface {
	Balance(addr, token string) uint64
	LastNonce(addr string) uint64
	IsSpent(sig string) bool
	MintInfo(token string) (state.MintInfo, bool)
	MintCount() int
}

// MempoolView is the read-only slice of C3 the validator needs, kept as
// an interface (rather than importing core/txpool directly) so txpool
// can depend on validator without creating an import cycle.
type MempoolView interface {
	// PendingAmount sums the amount of any currently-pending transaction
	// from sender for token, used for includeMempoolBalance accounting.
	PendingAmount(sender, token string) uint64
	// PendingMint reports the airdrop amount of a pending mint tx for
	// token, if any.
	PendingMint(token string) (airdrop uint64, ok bool)
	// HasMintPending reports whether token already has a pending (not
	// yet committed) mint transaction.
	HasMintPending(token string) bool
	// Contains reports whether a pending transaction matches id exactly
	// (spec.md §4.4 rule 10).
	Contains(id types.IdentityKey) bool
	// CountUpTo counts pending transactions with Timestamp <= ts,
	// used by the block-fullness check (spec.md §4.4 rule 5).
	CountUpTo(ts int64) int
}

var tokenPattern = regexp.MustCompile(`^[A-Z]+$`)

// Validator is C4. It is stateless and safe for concurrent use; callers
// serialize mutation elsewhere (spec.md §5).
type Validator struct {
	state StateView
}

func New(sv StateView) *Validator { return &Validator{state: sv} }

// CheckTxOptions bundles the flags spec.md §4.4 calls checkTx with.
type CheckTxOptions struct {
	IncludeMempoolBalance bool
	IsBlockContext        bool
	Height                uint64
	Now                   int64
	Mempool               MempoolView
}

// CheckTx validates tx against current state (spec.md §4.4 "Transaction
// validation"). A non-nil error means the transaction is rejected.
func (v *Validator) CheckTx(tx *types.Transaction, opts CheckTxOptions) error {
	if tx.Amount == 0 {
		return fmt.Errorf("amount must be a positive integer")
	}
	if tx.Unlock != nil && *tx.Unlock <= tx.Timestamp {
		return fmt.Errorf("unlock must be strictly greater than timestamp")
	}

	switch tx.SenderKind() {
	case types.SenderNetwork:
		if !opts.IsBlockContext {
			return fmt.Errorf("network-sender transactions are only valid inside block validation")
		}
		return nil // reward-structure rules are enforced by CheckBlock

	case types.SenderMint:
		return v.checkMintAirdropTx(tx, opts)

	default:
		return v.checkAddressTx(tx, opts)
	}
}

func (v *Validator) checkAddressTx(tx *types.Transaction, opts CheckTxOptions) error {
	digest, err := tx.SigningDigest()
	if err != nil {
		return fmt.Errorf("compute signing digest: %w", err)
	}
	if !verifySignature(tx.Sender, tx.Signature, digest) {
		return fmt.Errorf("signature does not verify under sender %s", tx.Sender)
	}
	if tx.Nonce <= v.state.LastNonce(tx.Sender) {
		return fmt.Errorf("nonce not strictly greater: have %d, got %d", v.state.LastNonce(tx.Sender), tx.Nonce)
	}
	if v.state.IsSpent(tx.Signature) {
		return fmt.Errorf("duplicate signature")
	}

	spendable := v.state.Balance(tx.Sender, tx.Token)
	if opts.IncludeMempoolBalance && opts.Mempool != nil {
		if spendable < opts.Mempool.PendingAmount(tx.Sender, tx.Token) {
			spendable = 0
		} else {
			spendable -= opts.Mempool.PendingAmount(tx.Sender, tx.Token)
		}
	}
	if spendable < tx.Amount {
		return fmt.Errorf("insufficient balance for %s/%s: have %d, need %d", tx.Sender, tx.Token, spendable, tx.Amount)
	}

	if tx.Mint != nil {
		return v.checkMintRegistration(tx, opts)
	}
	return nil
}

// checkMintRegistration validates the embedded mint object on a
// non-reserved sender's transaction (spec.md §4.4 "Mint rules").
func (v *Validator) checkMintRegistration(tx *types.Transaction, opts CheckTxOptions) error {
	if tx.Receiver != params.DevWallet {
		return fmt.Errorf("mint fee must be paid to the dev wallet")
	}
	wantFee := params.MintFee(opts.Height, v.state.MintCount())
	if tx.Amount != wantFee {
		return fmt.Errorf("mint fee mismatch: want %d, got %d", wantFee, tx.Amount)
	}
	if tx.Unlock != nil {
		return fmt.Errorf("mint transactions may not carry unlock")
	}
	if err := validateTokenName(tx.Mint.Token); err != nil {
		return err
	}
	if _, exists := v.state.MintInfo(tx.Mint.Token); exists {
		return fmt.Errorf("token %s already minted", tx.Mint.Token)
	}
	if !opts.IsBlockContext && opts.Mempool != nil && opts.Mempool.HasMintPending(tx.Mint.Token) {
		return fmt.Errorf("token %s already pending in mempool", tx.Mint.Token)
	}
	if tx.Mint.MiningReward != nil && *tx.Mint.MiningReward == 0 {
		return fmt.Errorf("miningReward, if present, must be positive")
	}
	return nil
}

func validateTokenName(token string) error {
	if len(token) < 1 || len(token) > 19 {
		return fmt.Errorf("token name must be 1-19 characters")
	}
	if !tokenPattern.MatchString(token) {
		return fmt.Errorf("token name must be uppercase [A-Z]+")
	}
	if strings.EqualFold(token, params.DisallowedMintToken) {
		return fmt.Errorf("token name %s is reserved", params.DisallowedMintToken)
	}
	return nil
}

// checkMintAirdropTx validates a sender=="mint" airdrop transaction
// (spec.md §4.4 rule 3, "mint" sender).
func (v *Validator) checkMintAirdropTx(tx *types.Transaction, opts CheckTxOptions) error {
	if tx.Signature != types.SenderMintString {
		return fmt.Errorf(`mint-sender transactions must carry signature "mint"`)
	}
	if tx.Token == "" {
		return fmt.Errorf("mint-sender transactions must carry a token")
	}
	if tx.Unlock != nil {
		return fmt.Errorf("mint-sender transactions may not carry unlock")
	}

	if opts.Mempool != nil {
		if airdrop, ok := opts.Mempool.PendingMint(tx.Token); ok && airdrop == tx.Amount {
			return nil
		}
	}
	if info, ok := v.state.MintInfo(tx.Token); ok && info.Airdrop == tx.Amount {
		return nil
	}
	return fmt.Errorf("no matching pending or registered mint for token %s amount %d", tx.Token, tx.Amount)
}

func verifySignature(pubkeyHex, sigHex string, digest [32]byte) bool {
	return cryptoVerify(pubkeyHex, sigHex, digest)
}

// Target computes the current difficulty target given the tail window's
// timestamps and the previous target (spec.md §4.4 "Difficulty target").
func Target(tailTimestamps []int64, prevTarget *uint256.Int) *uint256.Int {
	return params.Target(tailTimestamps, prevTarget)
}

// withinLiveWindow reports whether ts falls in [now-BlockTime, now+10s],
// the live-ingest timestamp window (spec.md §4.4 rule 4).
func withinLiveWindow(ts, now int64) bool {
	lower := now - int64(params.BlockTime/time.Millisecond)
	upper := now + 10_000
	return ts >= lower && ts <= upper
}
