package params

import (
	"math/big"
	"time"

	"github.com/holiman/uint256"
)

// maxTarget is the loosest possible target: the starting difficulty.
var maxTarget = mustUint256(StartingDiff)

func mustUint256(hex string) *uint256.Int {
	v, err := uint256.FromHex("0x" + hex)
	if err != nil {
		panic(err)
	}
	return v
}

// Target computes the current difficulty target from the timestamps of
// the last Tail blocks (oldest first), following the schedule described
// in spec.md §4.4: faster-than-BlockTime production tightens the target,
// slower production loosens it, clamped to maxTarget.
//
// This is treated as an externally supplied pure function per spec.md §1;
// the retarget law implemented here is a standard windowed-average
// adjustment, analogous to the one the teacher's consensus packages
// apply per block.
func Target(tailTimestamps []int64, prevTarget *uint256.Int) *uint256.Int {
	if len(tailTimestamps) < 2 {
		return maxTarget.Clone()
	}
	if prevTarget == nil {
		prevTarget = maxTarget.Clone()
	}

	span := tailTimestamps[len(tailTimestamps)-1] - tailTimestamps[0]
	intervals := int64(len(tailTimestamps) - 1)
	wantSpan := int64(BlockTime/time.Millisecond) * intervals
	if span <= 0 {
		span = 1
	}

	// prevTarget*span can exceed 256 bits, so the scaling runs in big.Int;
	// a result past 256 bits is above maxTarget and is capped below.
	scaled := new(big.Int).Mul(prevTarget.ToBig(), big.NewInt(span))
	scaled.Div(scaled, big.NewInt(wantSpan))
	next, overflow := uint256.FromBig(scaled)
	if overflow {
		next = maxTarget.Clone()
	}

	// Clamp retarget swing to within 4x either direction per window, and
	// never loosen past maxTarget.
	upper := new(uint256.Int).Mul(prevTarget, uint256.NewInt(4))
	lower := new(uint256.Int).Div(prevTarget, uint256.NewInt(4))
	if next.Gt(upper) {
		next = upper
	}
	if next.Lt(lower) {
		next = lower
	}
	if next.Gt(maxTarget) {
		next = maxTarget.Clone()
	}
	return next
}

// HashMeetsTarget reports whether hash, interpreted as a big-endian
// unsigned integer (spec.md §3 invariants), is at most target.
func HashMeetsTarget(hash []byte, target *uint256.Int) bool {
	var h uint256.Int
	h.SetBytes(hash)
	return h.Cmp(target) <= 0
}
