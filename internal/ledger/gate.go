/*

This file contains the flash-deposit gate used by the accumulator and share
vaults. While undistributed proceeds sit at or above the distribution
threshold and stakeholders exist, new deposits are refused: crediting one
would let it capture yield that predates it and dilute everyone who earned
it. The harvest vault deliberately carries no such gate; its conversion is a
separate action decoupled from deposits.

*/

package ledger

import (
	"errors"
	"fmt"
)

// DepositGate refuses deposits while a distribution is due. A zero threshold
// disables the gate.
type DepositGate struct {
	Threshold uint64
}

// Check returns ErrDistributionRequired when the pending-conversion balance
// has reached the threshold and there is existing stake to settle first.
func (g DepositGate) Check(pending, totalStake uint64) error {
	if g.Threshold == 0 {
		return nil
	}
	if pending >= g.Threshold && totalStake > 0 {
		return errors.Join(ErrDistributionRequired,
			fmt.Errorf("pending balance %d at threshold %d", pending, g.Threshold))
	}
	return nil
}
