package fixedmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDivFloor(t *testing.T) {
	testCases := []struct {
		name     string
		a, b, d  uint64
		expected uint64
	}{
		{"exact division", 10, 6, 3, 20},
		{"rounds down", 7, 3, 2, 10},
		{"zero numerator", 0, 55, 7, 0},
		{"unity denominator", 12345, 67890, 1, 12345 * 67890},
		{"large operands within range", math.MaxUint64 / 2, 2, 2, math.MaxUint64 / 2},
		{"basis point fee", 1_000_000, 9970, 10000, 997_000},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MulDivFloor(tc.a, tc.b, tc.d)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestMulDivCeil(t *testing.T) {
	got, err := MulDivCeil(7, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), got)

	got, err = MulDivCeil(10, 6, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), got, "exact quotients must not be bumped")
}

func TestMulDivOverflow(t *testing.T) {
	_, err := MulDivFloor(math.MaxUint64, math.MaxUint64, 1)
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	_, err = MulDivCeil(math.MaxUint64, 2, 1)
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	// The intermediate product exceeds uint64 but the quotient fits.
	got, err := MulDivFloor(math.MaxUint64, math.MaxUint64, math.MaxUint64)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), got)
}

func TestMulDivCeilBumpOverflow(t *testing.T) {
	// 253921 * 145295143558111 == 2^65 - 1, so the floored quotient over 2 is
	// exactly MaxUint64 with remainder 1 and the ceiling bump wraps.
	floor, err := MulDivFloor(253921, 145295143558111, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64), floor)

	_, err = MulDivCeil(253921, 145295143558111, 2)
	require.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestMulDivDivisionByZero(t *testing.T) {
	_, err := MulDivFloor(1, 1, 0)
	require.ErrorIs(t, err, ErrDivisionByZero)

	_, err = MulDivCeil(1, 1, 0)
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestFloorCeilDifference(t *testing.T) {
	testCases := []struct {
		a, b, d uint64
	}{
		{7, 13, 3},
		{1, 1, 1},
		{999_999_999, 123_456, 777},
		{math.MaxUint64 / 3, 2, 5},
		{10, 10, 4},
	}

	for _, tc := range testCases {
		floor, err := MulDivFloor(tc.a, tc.b, tc.d)
		require.NoError(t, err)
		ceil, err := MulDivCeil(tc.a, tc.b, tc.d)
		require.NoError(t, err)

		assert.LessOrEqual(t, floor, ceil)
		assert.LessOrEqual(t, ceil-floor, uint64(1))
	}
}

func TestCheckedAdd(t *testing.T) {
	got, err := CheckedAdd(40, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got)

	_, err = CheckedAdd(math.MaxUint64, 1)
	require.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestCheckedSub(t *testing.T) {
	got, err := CheckedSub(42, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), got)

	_, err = CheckedSub(1, 2)
	require.ErrorIs(t, err, ErrArithmeticOverflow)
}
