package amm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rarefi/yve/internal/types"
)

// stubVenue plays both the swapper and the balance reader: Swap credits
// whatever the venue chooses to deliver, regardless of the minimum passed.
type stubVenue struct {
	balances map[types.AssetID]uint64
	deliver  uint64
	swapErr  error

	gotMinOut uint64
}

func (v *stubVenue) Balance(account types.AccountID, asset types.AssetID) (uint64, error) {
	return v.balances[asset], nil
}

func (v *stubVenue) Swap(from types.AccountID, input types.AssetID, inputAmount uint64, output types.AssetID, minOut uint64) error {
	v.gotMinOut = minOut
	if v.swapErr != nil {
		return v.swapErr
	}
	v.balances[input] -= inputAmount
	v.balances[output] += v.deliver
	return nil
}

func newExecutor(t *testing.T, venue *stubVenue) *SwapExecutor {
	t.Helper()
	quotes, err := NewQuoteEngine(balancedPool())
	require.NoError(t, err)
	executor, err := NewSwapExecutor(quotes, venue, venue, "vault", 1_000)
	require.NoError(t, err)
	return executor
}

func TestExecuteMeasuresBalanceDelta(t *testing.T) {
	venue := &stubVenue{balances: map[types.AssetID]uint64{1: 10_000}, deliver: 9_871}
	executor := newExecutor(t, venue)

	realized, err := executor.Execute(1, 10_000, 2, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(9_871), realized)

	// minOut is the quoted 9871 less 100 bps.
	assert.Equal(t, uint64(9_772), venue.gotMinOut)
}

func TestExecuteAcceptsShortfallWithinTolerance(t *testing.T) {
	venue := &stubVenue{balances: map[types.AssetID]uint64{1: 10_000}, deliver: 9_800}
	executor := newExecutor(t, venue)

	realized, err := executor.Execute(1, 10_000, 2, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(9_800), realized)
}

func TestExecuteRejectsExcessiveShortfall(t *testing.T) {
	// The venue reports success but delivers less than the tolerance allows.
	// Only the balance delta can catch this.
	venue := &stubVenue{balances: map[types.AssetID]uint64{1: 10_000}, deliver: 9_700}
	executor := newExecutor(t, venue)

	_, err := executor.Execute(1, 10_000, 2, 100)
	assert.ErrorIs(t, err, ErrSlippageExceeded)
}

func TestExecuteRejectsToleranceAboveCeiling(t *testing.T) {
	venue := &stubVenue{balances: map[types.AssetID]uint64{1: 10_000}, deliver: 9_871}
	executor := newExecutor(t, venue)

	_, err := executor.Execute(1, 10_000, 2, 1_500)
	assert.ErrorIs(t, err, ErrSlippageBound)
}

func TestExecutePropagatesSwapFailure(t *testing.T) {
	venueErr := errors.New("venue rejected the trade")
	venue := &stubVenue{balances: map[types.AssetID]uint64{1: 10_000}, swapErr: venueErr}
	executor := newExecutor(t, venue)

	_, err := executor.Execute(1, 10_000, 2, 100)
	assert.ErrorIs(t, err, venueErr)
}
