/*

This file contains the pull-accounting ledger (yield paid in a third asset).
A single yield-per-unit accumulator advances on every distribution; each
position carries a snapshot of the accumulator taken at its last settlement,
so the owed amount is always stake * (current - snapshot) / Scale.

*/

package ledger

import (
	"errors"
	"fmt"

	"github.com/rarefi/yve/internal/fixedmath"
	"github.com/rarefi/yve/internal/types"
)

// Accumulator is the pull-accounting ledger. Every user action settles the
// acting position against the current accumulator before mutating balances.
type Accumulator struct {
	vault     *types.VaultState
	positions map[types.AccountID]*types.UserPosition
}

// NewAccumulator creates a pull-accounting ledger over the given records.
func NewAccumulator(vault *types.VaultState, positions map[types.AccountID]*types.UserPosition) *Accumulator {
	return &Accumulator{vault: vault, positions: positions}
}

// Settle credits the position's share of accumulator growth since its last
// settlement into Owed and advances the snapshot. A position snapshot never
// exceeds the accumulator, and settling twice in a row is a no-op.
func (l *Accumulator) Settle(account types.AccountID) error {
	pos, ok := l.positions[account]
	if !ok {
		return errors.Join(ErrUnknownPosition, fmt.Errorf("account %s", account))
	}
	return l.settle(pos)
}

func (l *Accumulator) settle(pos *types.UserPosition) error {
	if pos.Stake > 0 && l.vault.YieldPerUnit > pos.Snapshot {
		earned, err := fixedmath.MulDivFloor(pos.Stake, l.vault.YieldPerUnit-pos.Snapshot, Scale)
		if err != nil {
			return err
		}
		pos.Owed, err = fixedmath.CheckedAdd(pos.Owed, earned)
		if err != nil {
			return err
		}
	}
	pos.Snapshot = l.vault.YieldPerUnit
	return nil
}

// Deposit settles then credits stake. A fresh position snapshots the current
// accumulator, so it earns nothing from distributions that predate it.
func (l *Accumulator) Deposit(account types.AccountID, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}

	pos, ok := l.positions[account]
	if !ok {
		pos = &types.UserPosition{Snapshot: l.vault.YieldPerUnit}
		l.positions[account] = pos
	}
	if err := l.settle(pos); err != nil {
		return err
	}

	var err error
	pos.Stake, err = fixedmath.CheckedAdd(pos.Stake, amount)
	if err != nil {
		return err
	}
	l.vault.TotalStake, err = fixedmath.CheckedAdd(l.vault.TotalStake, amount)
	return err
}

// Withdraw settles then debits stake. The position is removed once both its
// stake and owed balance reach zero.
func (l *Accumulator) Withdraw(account types.AccountID, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}

	pos, ok := l.positions[account]
	if !ok {
		return errors.Join(ErrUnknownPosition, fmt.Errorf("account %s", account))
	}
	if pos.Stake < amount {
		return errors.Join(ErrInsufficientStake,
			fmt.Errorf("stake %d, requested %d", pos.Stake, amount))
	}
	if err := l.settle(pos); err != nil {
		return err
	}

	pos.Stake -= amount
	l.vault.TotalStake -= amount
	if pos.Stake == 0 && pos.Owed == 0 {
		delete(l.positions, account)
	}
	return nil
}

// TakeOwed settles, zeroes and returns the position's claimable payout.
func (l *Accumulator) TakeOwed(account types.AccountID) (uint64, error) {
	pos, ok := l.positions[account]
	if !ok {
		return 0, errors.Join(ErrUnknownPosition, fmt.Errorf("account %s", account))
	}
	if err := l.settle(pos); err != nil {
		return 0, err
	}

	owed := pos.Owed
	pos.Owed = 0
	if pos.Stake == 0 {
		delete(l.positions, account)
	}
	return owed, nil
}

// Distribute spreads a payout across all current stake by advancing the
// accumulator. Distribution with nobody staked has no one to pay.
func (l *Accumulator) Distribute(amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	if l.vault.TotalStake == 0 {
		return errors.Join(ErrInsufficientStake, errors.New("no stake to distribute over"))
	}

	perUnit, err := fixedmath.MulDivFloor(amount, Scale, l.vault.TotalStake)
	if err != nil {
		return err
	}
	l.vault.YieldPerUnit, err = fixedmath.CheckedAdd(l.vault.YieldPerUnit, perUnit)
	return err
}

// Position returns a copy of the account's record.
func (l *Accumulator) Position(account types.AccountID) (types.UserPosition, bool) {
	pos, ok := l.positions[account]
	if !ok {
		return types.UserPosition{}, false
	}
	return *pos, true
}
