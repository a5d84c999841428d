package consensus

import "github.com/holiman/uint256"

// 2^256 itself does not fit in 256 bits, so work(b) is computed as
// floor((2^256-1-target) / (target+1)) + 1, which equals
// floor(2^256 / (target+1)) exactly, entirely within 256-bit arithmetic using
// github.com/holiman/uint256's checked operations (no implicit wraparound),
// per SPEC_FULL.md §9 "wide-integer arithmetic ... with checked-overflow
// semantics".
//
// Grounded on github.com/holiman/uint256 (the geth-family 256-bit integer
// type attested in the retrieved pack's miner files) standing in for the
// teacher's own math/big-based util.CompactToBig, which is only used for
// compact<->big conversions of a Bitcoin-style nBits field; this repo's
// target is already a full 256-bit value, so no compact encoding is needed.

// Target is a block's proof-of-work difficulty target: a block's PoW hash,
// interpreted as a 256-bit big-endian unsigned integer, must be <= Target
// for the block to be valid.
type Target = uint256.Int

// Work computes work(b) := 2^256 / (target(b) + 1), the standard PoW work
// function (§4.5 "Work"), returned as a checked 256-bit integer. Lower
// targets (harder difficulty) yield higher work.
func Work(target *Target) *uint256.Int {
	denom, overflow := new(uint256.Int).AddOverflow(target, uint256.NewInt(1))
	if overflow {
		// target == 2^256-1 (minimum possible difficulty): the true
		// denominator is 2^256, one past the largest representable 256-bit
		// value, so the exact quotient is 1.
		return uint256.NewInt(1)
	}
	if target.IsZero() {
		// 2^256 / 1 is one past the largest 256-bit value; saturate there.
		return new(uint256.Int).Not(uint256.NewInt(0))
	}
	// 2^256 = (2^256-1-target) + (target+1), so the quotient is one more than
	// (2^256-1-target) / (target+1).
	notTarget := new(uint256.Int).Not(target)
	quotient := new(uint256.Int).Div(notTarget, denom)
	return quotient.AddUint64(quotient, 1)
}

// AddWork adds work values with checked overflow, returning an error-free
// saturating sum is explicitly NOT what the spec wants (silent saturation
// would corrupt cumulative-work comparisons), so AddWork panics on overflow:
// 256-bit cumulative work overflowing is outside any realistic protocol
// lifetime and indicates a programming error (e.g. double-counting a
// mergeset member), which should fail loudly rather than silently wrap.
func AddWork(a, b *uint256.Int) *uint256.Int {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		panic("consensus: blue_work overflow")
	}
	return sum
}
