// Copyright 2024 The fullnode Authors
// This file is part of the fullnode library.
//
// The fullnode library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The fullnode library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the fullnode library. If not, see <http://www.gnu.org/licenses/>.

// Package params holds the protocol constants and schedules. spec.md §1
// treats argon2, secp256k1 and the fixed constants/reward-fee schedule as
// externally supplied pure functions; this package gives them a concrete,
// testable implementation since nothing is actually external within this
// repository.
package params

import "time"

const (
	// BlockTime is the nominal inter-block interval used both by the
	// live-ingest timestamp window (spec.md §4.4 rule 4) and by callers
	// computing how stale a peer's tip is.
	BlockTime = 10 * time.Second

	// Tail is the window of most recent blocks used to compute the
	// current difficulty target (spec.md §4.4). spec.md §9 design note 3
	// records that no implementation actually bounds reorg depth by Tail:
	// DivergencePoint walks back as far as needed to find a common
	// ancestor, and findForkPointLocked (the push path) bounds its search
	// by the pushed sub-chain's own length instead. Preserved as-is.
	Tail = 64

	// DevWallet is the fixed recipient of the dev fee and of mint fees.
	DevWallet = "dev0000000000000000000000000000000000000000000000000000000000"

	// DevFee is the fraction of the block reward paid to DevWallet.
	DevFee = 0.05

	// StartingDiff is the genesis difficulty target, expressed as the
	// hex string carried on block.diff. Set loose (nearly the full 256-bit
	// range) the way a new network's regtest/genesis difficulty typically
	// is: real proposers mining faster than BlockTime tighten it via the
	// windowed retarget within a few Tail-sized windows.
	StartingDiff = "0fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"

	// PointsPerCoin is the number of smallest units ("points") per whole
	// native coin.
	PointsPerCoin = 1_000_000_000

	// SignatureCacheSize bounds the spent-signature FIFO window
	// (spec.md §3 "State index").
	SignatureCacheSize = 10_000

	// MaxPushLength is the maximum sub-chain length accepted/emitted by
	// the push-reorg protocol (spec.md §4.5).
	MaxPushLength = 15

	// MaxBulkBlocks bounds a single GET /blocks response (spec.md §6).
	MaxBulkBlocks = 500

	// DisallowedMintToken is case-insensitively reserved and can never be
	// minted (spec.md §4.4 mint rules).
	DisallowedMintToken = "FLSS"
)

// Reward returns the total block reward, in points, at the given height.
// Halving every 2,100,000 blocks, floor at 1 whole coin, in the manner of
// a typical fixed-supply PoW issuance schedule.
func Reward(height uint64) uint64 {
	const halvingInterval = 2_100_000
	halvings := height / halvingInterval
	base := uint64(50 * PointsPerCoin)
	for i := uint64(0); i < halvings && base > PointsPerCoin; i++ {
		base /= 2
	}
	if base < PointsPerCoin {
		base = PointsPerCoin
	}
	return base
}

// MintFee returns the points a minter must pay DevWallet to register a new
// token, as a function of height and how many tokens have already been
// minted (spec.md §4.4 mint rules). The fee rises slowly with adoption to
// discourage token-name squatting.
func MintFee(height uint64, mintedCount int) uint64 {
	base := uint64(10 * PointsPerCoin)
	return base + uint64(mintedCount)*uint64(PointsPerCoin/10)
}
