/*

This file contains the sponsor-funded bonus pool blended into compound and
harvest events. The bonus is bounded by both the emission rate and whatever
balance sponsors have left in the pool.

*/

package ledger

import (
	"errors"
	"fmt"

	"github.com/rarefi/yve/internal/fixedmath"
	"github.com/rarefi/yve/internal/types"
)

// FarmBonus manages the sponsor bonus balance and emission rate carried on
// the vault record.
type FarmBonus struct {
	vault *types.VaultState
}

// NewFarmBonus creates a bonus pool over the given vault record.
func NewFarmBonus(vault *types.VaultState) *FarmBonus {
	return &FarmBonus{vault: vault}
}

// Blend computes the bonus for a conversion of baseOutput, debits it from the
// pool and returns baseOutput + bonus. The bonus never exceeds the remaining
// pool balance.
func (f *FarmBonus) Blend(baseOutput uint64) (total, bonus uint64, err error) {
	bonus, err = fixedmath.MulDivFloor(baseOutput, f.vault.FarmEmissionBps, fixedmath.BpsDenom)
	if err != nil {
		return 0, 0, err
	}
	if bonus > f.vault.FarmRemaining {
		bonus = f.vault.FarmRemaining
	}

	total, err = fixedmath.CheckedAdd(baseOutput, bonus)
	if err != nil {
		return 0, 0, err
	}
	f.vault.FarmRemaining -= bonus
	return total, bonus, nil
}

// Fund credits sponsor contributions to the pool.
func (f *FarmBonus) Fund(amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	var err error
	f.vault.FarmRemaining, err = fixedmath.CheckedAdd(f.vault.FarmRemaining, amount)
	return err
}

// SetEmissionRate updates the emission rate. The rate is capped by
// ceilingBps, and once sponsor funds are present it may not fall below
// floorBps, so an operator cannot silently zero the rate after funding.
func (f *FarmBonus) SetEmissionRate(bps, ceilingBps, floorBps uint64) error {
	if bps > ceilingBps {
		return errors.Join(ErrEmissionOutOfRange,
			fmt.Errorf("rate %d bps exceeds ceiling %d", bps, ceilingBps))
	}
	if f.vault.FarmRemaining > 0 && bps < floorBps {
		return errors.Join(ErrEmissionOutOfRange,
			fmt.Errorf("rate %d bps below floor %d while pool holds funds", bps, floorBps))
	}
	f.vault.FarmEmissionBps = bps
	return nil
}
