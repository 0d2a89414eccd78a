/*

This file contains the overflow-checked multiply-then-divide primitives that
every money-affecting path in the engine is required to go through. The
intermediate product is computed at arbitrary precision via SDK math big
integers, then checked back into the native uint64 width.

*/

package fixedmath

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	ErrDivisionByZero     = errors.New("division by zero")
)

// BpsDenom is the basis-point denominator used for fees, slippage bounds and
// emission rates throughout the engine.
const BpsDenom uint64 = 10_000

// MulDivFloor computes floor(a*b/d) with a double-width intermediate product.
// Fails with ErrArithmeticOverflow when the quotient does not fit uint64.
func MulDivFloor(a, b, d uint64) (uint64, error) {
	q, _, err := mulDiv(a, b, d)
	if err != nil {
		return 0, err
	}
	return q, nil
}

// MulDivCeil computes ceil(a*b/d). Identical to MulDivFloor except the
// quotient is bumped by one whenever the remainder is non-zero.
func MulDivCeil(a, b, d uint64) (uint64, error) {
	q, r, err := mulDiv(a, b, d)
	if err != nil {
		return 0, err
	}
	if r == 0 {
		return q, nil
	}
	return CheckedAdd(q, 1)
}

// CheckedAdd returns a+b or ErrArithmeticOverflow when the sum wraps.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, errors.Join(ErrArithmeticOverflow, fmt.Errorf("add %d + %d wraps uint64", a, b))
	}
	return sum, nil
}

// CheckedSub returns a-b or ErrArithmeticOverflow when b exceeds a.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, errors.Join(ErrArithmeticOverflow, fmt.Errorf("sub %d - %d underflows", a, b))
	}
	return a - b, nil
}

func mulDiv(a, b, d uint64) (uint64, uint64, error) {
	if d == 0 {
		return 0, 0, ErrDivisionByZero
	}

	prod := sdkmath.NewIntFromUint64(a).Mul(sdkmath.NewIntFromUint64(b))
	den := sdkmath.NewIntFromUint64(d)

	quo := prod.Quo(den)
	rem := prod.Mod(den)

	if !quo.IsUint64() {
		return 0, 0, errors.Join(ErrArithmeticOverflow,
			fmt.Errorf("%d * %d / %d does not fit uint64", a, b, d))
	}

	return quo.Uint64(), rem.Uint64(), nil
}
