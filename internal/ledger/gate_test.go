package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDepositGate(t *testing.T) {
	gate := DepositGate{Threshold: 100}

	assert.NoError(t, gate.Check(99, 1_000), "below threshold deposits pass")
	assert.ErrorIs(t, gate.Check(100, 1_000), ErrDistributionRequired)
	assert.ErrorIs(t, gate.Check(250, 1_000), ErrDistributionRequired)
	assert.NoError(t, gate.Check(250, 0), "an empty vault has nobody to dilute")
}

func TestDepositGateDisabled(t *testing.T) {
	gate := DepositGate{}
	assert.NoError(t, gate.Check(1_000_000, 1_000))
}
