/*

This file contains the auto-compounding share ledger. Shares represent
proportional ownership of a pool of backing value in the deposited asset;
compounding adds to the backing value while the share count stays put, so the
implied price only ever rises.

*/

package ledger

import (
	"errors"
	"fmt"

	"github.com/rarefi/yve/internal/fixedmath"
	"github.com/rarefi/yve/internal/types"
)

// Shares is the share-based ledger. No per-position snapshot exists because
// value accrues to the shared pool rather than to per-account state.
type Shares struct {
	vault     *types.VaultState
	positions map[types.AccountID]*types.UserPosition
}

// NewShares creates a share ledger over the given records.
func NewShares(vault *types.VaultState, positions map[types.AccountID]*types.UserPosition) *Shares {
	return &Shares{vault: vault, positions: positions}
}

// ToShares converts an asset amount to shares at the current price. The
// first deposit is priced one to one.
func (l *Shares) ToShares(amount uint64) (uint64, error) {
	if l.vault.TotalShares == 0 {
		return amount, nil
	}
	return fixedmath.MulDivFloor(amount, l.vault.TotalShares, l.vault.TotalValue)
}

// ToValue converts shares to asset units at the current price.
func (l *Shares) ToValue(shares uint64) (uint64, error) {
	if l.vault.TotalShares == 0 {
		return 0, nil
	}
	return fixedmath.MulDivFloor(shares, l.vault.TotalValue, l.vault.TotalShares)
}

// Price returns the implied share price scaled by Scale.
func (l *Shares) Price() (uint64, error) {
	if l.vault.TotalShares == 0 {
		return Scale, nil
	}
	return fixedmath.MulDivFloor(l.vault.TotalValue, Scale, l.vault.TotalShares)
}

// Deposit mints shares at the current price and returns the minted amount.
func (l *Shares) Deposit(account types.AccountID, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, ErrZeroAmount
	}

	minted, err := l.ToShares(amount)
	if err != nil {
		return 0, err
	}
	if minted == 0 {
		return 0, errors.Join(ErrZeroAmount,
			fmt.Errorf("deposit of %d mints no shares at current price", amount))
	}

	pos, ok := l.positions[account]
	if !ok {
		pos = &types.UserPosition{}
		l.positions[account] = pos
	}

	pos.Shares, err = fixedmath.CheckedAdd(pos.Shares, minted)
	if err != nil {
		return 0, err
	}
	l.vault.TotalShares, err = fixedmath.CheckedAdd(l.vault.TotalShares, minted)
	if err != nil {
		return 0, err
	}
	l.vault.TotalValue, err = fixedmath.CheckedAdd(l.vault.TotalValue, amount)
	if err != nil {
		return 0, err
	}
	return minted, nil
}

// Withdraw burns shares at the current price and returns the released value.
// The position is removed once its share balance reaches zero.
func (l *Shares) Withdraw(account types.AccountID, shares uint64) (uint64, error) {
	if shares == 0 {
		return 0, ErrZeroAmount
	}

	pos, ok := l.positions[account]
	if !ok {
		return 0, errors.Join(ErrUnknownPosition, fmt.Errorf("account %s", account))
	}
	if pos.Shares < shares {
		return 0, errors.Join(ErrInsufficientStake,
			fmt.Errorf("holds %d shares, requested %d", pos.Shares, shares))
	}

	value, err := l.ToValue(shares)
	if err != nil {
		return 0, err
	}

	pos.Shares -= shares
	l.vault.TotalShares -= shares
	l.vault.TotalValue -= value
	if pos.Shares == 0 {
		delete(l.positions, account)
	}
	return value, nil
}

// Compound folds the vault cut of converted proceeds into the backing value.
// Share count is unchanged; this is the entire compounding mechanism.
func (l *Shares) Compound(vaultCut uint64) error {
	if vaultCut == 0 {
		return ErrZeroAmount
	}
	if l.vault.TotalShares == 0 {
		return errors.Join(ErrInsufficientStake, errors.New("no shares to compound into"))
	}

	var err error
	l.vault.TotalValue, err = fixedmath.CheckedAdd(l.vault.TotalValue, vaultCut)
	return err
}

// Position returns a copy of the account's record.
func (l *Shares) Position(account types.AccountID) (types.UserPosition, bool) {
	pos, ok := l.positions[account]
	if !ok {
		return types.UserPosition{}, false
	}
	return *pos, true
}
