package lending

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProtocol struct {
	deposits uint64
	receipts uint64
	ok       bool
}

func (p *stubProtocol) State() (uint64, uint64, bool) {
	return p.deposits, p.receipts, p.ok
}

func (p *stubProtocol) Deposit(amount uint64) (uint64, error) { return 0, nil }
func (p *stubProtocol) Redeem(receipts uint64) (uint64, error) {
	return 0, nil
}

func TestRateDerivation(t *testing.T) {
	protocol := &stubProtocol{deposits: 1_100_000, receipts: 1_000_000, ok: true}
	oracle, err := NewRateOracle(protocol, 10)
	require.NoError(t, err)

	rate, err := oracle.Rate(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_100_000_000_000), rate)
}

func TestRateMonotoneIncrease(t *testing.T) {
	protocol := &stubProtocol{deposits: 1_000_000, receipts: 1_000_000, ok: true}
	oracle, err := NewRateOracle(protocol, 10)
	require.NoError(t, err)

	rate, err := oracle.Rate(0)
	require.NoError(t, err)
	assert.Equal(t, RatePrecision, rate)

	protocol.deposits = 1_050_000
	rate, err = oracle.Rate(rate)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_050_000_000_000), rate)
}

func TestRateDipWithinToleranceHoldsPrevious(t *testing.T) {
	protocol := &stubProtocol{deposits: 1_100_000, receipts: 1_000_000, ok: true}
	oracle, err := NewRateOracle(protocol, 10)
	require.NoError(t, err)

	previous, err := oracle.Rate(0)
	require.NoError(t, err)

	// A 1000-unit dip is roughly 9 bps of the previous rate.
	protocol.deposits = 1_099_000
	rate, err := oracle.Rate(previous)
	require.NoError(t, err)
	assert.Equal(t, previous, rate, "a tolerated dip must not lower the observed rate")
}

func TestRateDipBeyondToleranceFails(t *testing.T) {
	protocol := &stubProtocol{deposits: 1_100_000, receipts: 1_000_000, ok: true}
	oracle, err := NewRateOracle(protocol, 10)
	require.NoError(t, err)

	previous, err := oracle.Rate(0)
	require.NoError(t, err)

	protocol.deposits = 1_000_000
	_, err = oracle.Rate(previous)
	assert.ErrorIs(t, err, ErrRateRegression)
}

func TestRateUnreadableState(t *testing.T) {
	protocol := &stubProtocol{deposits: 1_000_000, receipts: 1_000_000, ok: false}
	oracle, err := NewRateOracle(protocol, 10)
	require.NoError(t, err)

	_, err = oracle.Rate(0)
	assert.ErrorIs(t, err, ErrExternalStateUnreadable)
}

func TestRateZeroReceipts(t *testing.T) {
	protocol := &stubProtocol{deposits: 1_000_000, receipts: 0, ok: true}
	oracle, err := NewRateOracle(protocol, 10)
	require.NoError(t, err)

	_, err = oracle.Rate(0)
	assert.ErrorIs(t, err, ErrExternalStateUnreadable)
}
