/*

This file contains the two-stage harvest ledger. Stage 1 turns external rate
growth into a yield-per-unit accumulator and settles it into per-position
unrealized buffers. Stage 2 (the harvest action, driven by the engine)
converts the vault-wide unrealized slice and records the payout ratio.
Stage 3 lazily converts a position's unrealized buffer into claimable payout
during settlement, once the buffer provably predates the last harvest.

*/

package ledger

import (
	"errors"
	"fmt"

	"github.com/rarefi/yve/internal/fixedmath"
	"github.com/rarefi/yve/internal/lending"
	"github.com/rarefi/yve/internal/types"
)

// Harvest is the two-stage harvest ledger.
type Harvest struct {
	vault     *types.VaultState
	positions map[types.AccountID]*types.UserPosition
}

// NewHarvest creates a two-stage harvest ledger over the given records.
func NewHarvest(vault *types.VaultState, positions map[types.AccountID]*types.UserPosition) *Harvest {
	return &Harvest{vault: vault, positions: positions}
}

// Accrue folds an observed exchange rate into the accumulator. The rate has
// already been tolerance-checked by the oracle, so it is never below the
// stored snapshot. The first observation only seeds the snapshot.
func (l *Harvest) Accrue(rate uint64) error {
	if rate == 0 {
		return ErrZeroAmount
	}
	if l.vault.RateSnapshot == 0 {
		l.vault.RateSnapshot = rate
		return nil
	}
	if rate <= l.vault.RateSnapshot {
		return nil
	}

	var err error
	l.vault.YieldPerUnit, err = fixedmath.CheckedAdd(l.vault.YieldPerUnit, rate-l.vault.RateSnapshot)
	if err != nil {
		return err
	}
	l.vault.RateSnapshot = rate
	return nil
}

// Settle runs stage 3 then stage 1 for the position. Stage 3 must see the
// pre-settlement snapshot: the unrealized buffer is convertible only when
// everything in it was accrued at or before the last harvest point.
func (l *Harvest) Settle(account types.AccountID) error {
	pos, ok := l.positions[account]
	if !ok {
		return errors.Join(ErrUnknownPosition, fmt.Errorf("account %s", account))
	}
	return l.settle(pos)
}

func (l *Harvest) settle(pos *types.UserPosition) error {
	// Stage 3: lazy conversion of a buffer that predates the last harvest.
	if pos.Unrealized > 0 && l.vault.LastHarvestRatio > 0 && pos.Snapshot <= l.vault.LastHarvestYPU {
		converted, err := fixedmath.MulDivFloor(pos.Unrealized, l.vault.LastHarvestRatio, Scale)
		if err != nil {
			return err
		}
		pos.Claimable, err = fixedmath.CheckedAdd(pos.Claimable, converted)
		if err != nil {
			return err
		}
		pos.Unrealized = 0
	}

	// Stage 1: settle accumulator growth into the unrealized buffer.
	if pos.Stake > 0 && l.vault.YieldPerUnit > pos.Snapshot {
		accrued, err := fixedmath.MulDivFloor(pos.Stake, l.vault.YieldPerUnit-pos.Snapshot, lending.RatePrecision)
		if err != nil {
			return err
		}
		pos.Unrealized, err = fixedmath.CheckedAdd(pos.Unrealized, accrued)
		if err != nil {
			return err
		}
	}
	pos.Snapshot = l.vault.YieldPerUnit
	return nil
}

// Deposit settles then credits stake, snapshotting fresh positions at the
// current accumulator.
func (l *Harvest) Deposit(account types.AccountID, amount uint64) error {
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

// Withdraw settles then debits stake.
func (l *Harvest) Withdraw(account types.AccountID, amount uint64) error {
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
	return nil
}

// TakeClaimable settles, zeroes and returns the position's converted payout.
func (l *Harvest) TakeClaimable(account types.AccountID) (uint64, error) {
	pos, ok := l.positions[account]
	if !ok {
		return 0, errors.Join(ErrUnknownPosition, fmt.Errorf("account %s", account))
	}
	if err := l.settle(pos); err != nil {
		return 0, err
	}

	claimable := pos.Claimable
	pos.Claimable = 0
	return claimable, nil
}

// Exit settles and closes the position, returning principal, converted
// payout, and whatever unrealized accrual is forfeited by leaving before the
// next harvest. Forfeiture on exit is a documented tradeoff: the unconverted
// buffer stays in the vault and flows to remaining stakeholders.
func (l *Harvest) Exit(account types.AccountID) (stake, claimable, forfeited uint64, err error) {
	pos, ok := l.positions[account]
	if !ok {
		return 0, 0, 0, errors.Join(ErrUnknownPosition, fmt.Errorf("account %s", account))
	}
	if err := l.settle(pos); err != nil {
		return 0, 0, 0, err
	}

	stake, claimable, forfeited = pos.Stake, pos.Claimable, pos.Unrealized
	l.vault.TotalStake -= pos.Stake
	delete(l.positions, account)
	return stake, claimable, forfeited, nil
}

// RecordHarvest stores the conversion checkpoint after a stage 2 batch
// conversion: the payout-per-accrual-unit ratio and the accumulator value the
// harvest covered.
func (l *Harvest) RecordHarvest(converted, realized uint64) error {
	if converted == 0 {
		return ErrZeroAmount
	}

	ratio, err := fixedmath.MulDivFloor(realized, Scale, converted)
	if err != nil {
		return err
	}
	l.vault.LastHarvestRatio = ratio
	l.vault.LastHarvestYPU = l.vault.YieldPerUnit
	return nil
}

// Position returns a copy of the account's record.
func (l *Harvest) Position(account types.AccountID) (types.UserPosition, bool) {
	pos, ok := l.positions[account]
	if !ok {
		return types.UserPosition{}, false
	}
	return *pos, true
}
