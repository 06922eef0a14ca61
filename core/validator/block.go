package validator

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"

	"github.com/feelesschain/fullnode/core/types"
	"github.com/feelesschain/fullnode/params"
)

// CheckBlockOptions bundles the context checkBlock needs (spec.md §4.4
// "Block validation").
type CheckBlockOptions struct {
	Height         uint64
	PrevHash       string
	TailTimestamps []int64 // oldest first, excludes the candidate block
	PrevTarget     *uint256.Int
	Mempool        MempoolView
	Now            int64

	// Replay is true when re-applying a persisted block at startup or
	// during sync (spec.md §4.5): the live timestamp window and
	// mempool-fullness checks are skipped.
	Replay bool
	// TrustHash skips hash recomputation (rule 6), for reloading an
	// already-trusted persisted chain (spec.md §4.4 rule 6 parenthetical).
	TrustHash bool
}

// CheckBlock validates block against current state (spec.md §4.4 "Block
// validation"). A non-nil error means the block is rejected.
func (v *Validator) CheckBlock(block *types.Block, opts CheckBlockOptions) error {
	target := Target(opts.TailTimestamps, opts.PrevTarget)

	hashBytes := block.HashBytes()
	if hashBytes == nil {
		return fmt.Errorf("block hash is not valid hex")
	}
	if !params.HashMeetsTarget(hashBytes, target) {
		return fmt.Errorf("block hash exceeds target")
	}

	declaredTarget, err := uint256.FromHex("0x" + block.Diff)
	if err != nil || declaredTarget.Cmp(target) != 0 {
		return fmt.Errorf("declared diff does not match computed target")
	}

	if err := checkOneNonReservedTxPerSender(block.Transactions); err != nil {
		return err
	}

	if !opts.Replay {
		if !withinLiveWindow(block.Timestamp, opts.Now) {
			return fmt.Errorf("block timestamp outside live window")
		}
		pending := 0
		if opts.Mempool != nil {
			pending = opts.Mempool.CountUpTo(block.Timestamp)
		}
		minTxs := int(math.Floor(0.75 * float64(pending)))
		if len(block.Transactions)-2 < minTxs {
			return fmt.Errorf("block under-fills mempool: have %d non-reward txs, need >= %d", len(block.Transactions)-2, minTxs)
		}
	}

	if !opts.TrustHash {
		want, err := block.ComputeHash()
		if err != nil || want != block.Hash {
			return fmt.Errorf("recomputed hash does not match declared hash")
		}
	}

	if block.PrevHash != opts.PrevHash {
		return fmt.Errorf("prev_hash does not match current tip")
	}

	digest, err := block.SigningDigest()
	if err != nil {
		return fmt.Errorf("compute block signing digest: %w", err)
	}
	if !verifySignature(block.Proposer, block.Signature, digest) {
		return fmt.Errorf("proposer signature does not verify")
	}

	if err := v.checkRewardStructure(block, opts.Height); err != nil {
		return err
	}

	if err := v.checkBlockTransactions(block, opts); err != nil {
		return err
	}

	if err := v.checkAirdrops(block); err != nil {
		return err
	}

	return nil
}

func checkOneNonReservedTxPerSender(txs []types.Transaction) error {
	seen := make(map[string]struct{})
	for i := range txs {
		tx := &txs[i]
		if tx.SenderKind() != types.SenderAddress {
			continue
		}
		if _, ok := seen[tx.Sender]; ok {
			return fmt.Errorf("sender %s appears more than once in block", tx.Sender)
		}
		seen[tx.Sender] = struct{}{}
	}
	return nil
}

// checkRewardStructure enforces spec.md §4.4 rule 9 / I5.
func (v *Validator) checkRewardStructure(block *types.Block, height uint64) error {
	var devFeeTxs, rewardTxs int
	wantDevFee := uint64(float64(params.Reward(height)) * params.DevFee)
	wantMinerShare := params.Reward(height) - wantDevFee

	for i := range block.Transactions {
		tx := &block.Transactions[i]
		if tx.SenderKind() != types.SenderNetwork {
			continue
		}
		switch {
		case tx.Receiver == params.DevWallet:
			if tx.Token != "" || tx.Unlock != nil || tx.Amount != wantDevFee {
				return fmt.Errorf("malformed dev-fee transaction")
			}
			devFeeTxs++
		default:
			if tx.Token == "" {
				if tx.Amount != wantMinerShare {
					return fmt.Errorf("malformed native mining-reward transaction")
				}
			} else {
				// Only a token already registered by a prior block is
				// minable here; a mint transaction registering tx.Token
				// earlier in this same block does not make it eligible
				// for a reward until the next block.
				info, ok := v.state.MintInfo(tx.Token)
				if !ok {
					return fmt.Errorf("mining reward for unknown token %s", tx.Token)
				}
				if !info.Minable() || tx.Amount != info.MiningReward {
					return fmt.Errorf("malformed token mining-reward transaction for %s", tx.Token)
				}
			}
			rewardTxs++
		}
	}
	if devFeeTxs != 1 {
		return fmt.Errorf("expected exactly one dev-fee transaction, got %d", devFeeTxs)
	}
	if rewardTxs != 1 {
		return fmt.Errorf("expected exactly one mining-reward transaction, got %d", rewardTxs)
	}
	return nil
}

// checkBlockTransactions enforces spec.md §4.4 rule 10 on the non-reserved
// (address-sender) transactions; mint airdrops are checked by checkAirdrops.
func (v *Validator) checkBlockTransactions(block *types.Block, opts CheckBlockOptions) error {
	for i := range block.Transactions {
		tx := &block.Transactions[i]
		if tx.SenderKind() != types.SenderAddress {
			continue
		}
		if err := v.CheckTx(tx, CheckTxOptions{
			IncludeMempoolBalance: false,
			IsBlockContext:        true,
			Height:                opts.Height,
			Now:                   opts.Now,
			Mempool:               opts.Mempool,
		}); err != nil {
			return fmt.Errorf("tx from %s rejected: %w", tx.Sender, err)
		}
		if opts.Mempool != nil && !opts.Mempool.Contains(tx.Identity()) {
			return fmt.Errorf("tx from %s not found in mempool with matching identity", tx.Sender)
		}
	}
	return nil
}

func blockHasMatchingMint(txs []types.Transaction, token string, amount uint64) bool {
	for i := range txs {
		tx := &txs[i]
		if tx.Mint != nil && tx.Mint.Token == token && tx.Mint.Airdrop == amount {
			return true
		}
	}
	return false
}

// checkAirdrops enforces spec.md §4.4 rule 11 / I6.
func (v *Validator) checkAirdrops(block *types.Block) error {
	seenToken := make(map[string]struct{})
	for i := range block.Transactions {
		tx := &block.Transactions[i]
		if tx.SenderKind() != types.SenderMint {
			continue
		}
		if _, dup := seenToken[tx.Token]; dup {
			return fmt.Errorf("duplicate in-block airdrop for token %s", tx.Token)
		}
		seenToken[tx.Token] = struct{}{}

		if tx.Unlock != nil {
			return fmt.Errorf("airdrop transaction may not carry unlock")
		}
		if info, found := v.state.MintInfo(tx.Token); found && info.Airdrop == tx.Amount {
			continue
		}
		if blockHasMatchingMint(block.Transactions, tx.Token, tx.Amount) {
			continue
		}
		return fmt.Errorf("airdrop for token %s does not match a registered or in-block mint", tx.Token)
	}
	return nil
}
