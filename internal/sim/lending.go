package sim

import (
	"fmt"
	"sync"

	"github.com/rarefi/yve/internal/fixedmath"
	"github.com/rarefi/yve/internal/types"
)

// Lending is an interest-bearing deposit market. Receipts appreciate as
// Accrue folds interest into the deposit pool; Slash and SetAvailable exist
// for fault injection.
type Lending struct {
	mu        sync.Mutex
	deposits  uint64
	receipts  uint64
	available bool

	settleBank    *Bank
	settleAccount types.AccountID
	settleAsset   types.AssetID
}

// NewLending creates an empty lending market.
func NewLending() *Lending {
	return &Lending{available: true}
}

// SettleRedemptionsTo makes redeemed deposits land as a bank balance, so
// downstream swap legs can trade them.
func (l *Lending) SettleRedemptionsTo(bank *Bank, account types.AccountID, asset types.AssetID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settleBank = bank
	l.settleAccount = account
	l.settleAsset = asset
}

// State reports total deposits and circulating receipts.
func (l *Lending) State() (uint64, uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.available {
		return 0, 0, false
	}
	return l.deposits, l.receipts, true
}

// SetAvailable toggles whether protocol state can be read.
func (l *Lending) SetAvailable(available bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.available = available
}

// Deposit places amount into the market and mints receipts at the current
// exchange rate.
func (l *Lending) Deposit(amount uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.available {
		return 0, ErrProtocolUnavailable
	}
	if amount == 0 {
		return 0, fmt.Errorf("deposit cannot be zero")
	}

	minted := amount
	if l.deposits > 0 {
		var err error
		minted, err = fixedmath.MulDivFloor(amount, l.receipts, l.deposits)
		if err != nil {
			return 0, err
		}
	}
	if minted == 0 {
		return 0, fmt.Errorf("deposit %d mints no receipts", amount)
	}

	deposits, err := fixedmath.CheckedAdd(l.deposits, amount)
	if err != nil {
		return 0, err
	}
	receipts, err := fixedmath.CheckedAdd(l.receipts, minted)
	if err != nil {
		return 0, err
	}
	l.deposits, l.receipts = deposits, receipts
	return minted, nil
}

// Redeem burns receipts and releases the backing deposits.
func (l *Lending) Redeem(receipts uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.available {
		return 0, ErrProtocolUnavailable
	}
	if receipts == 0 || receipts > l.receipts {
		return 0, fmt.Errorf("cannot redeem %d of %d receipts", receipts, l.receipts)
	}

	released, err := fixedmath.MulDivFloor(l.deposits, receipts, l.receipts)
	if err != nil {
		return 0, err
	}
	if l.settleBank != nil {
		if err := l.settleBank.Mint(l.settleAccount, l.settleAsset, released); err != nil {
			return 0, err
		}
	}
	l.deposits -= released
	l.receipts -= receipts
	return released, nil
}

// Accrue folds earned interest into the deposit pool, raising the rate.
func (l *Lending) Accrue(interest uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	deposits, err := fixedmath.CheckedAdd(l.deposits, interest)
	if err != nil {
		return err
	}
	l.deposits = deposits
	return nil
}

// Slash removes deposits without burning receipts, lowering the rate.
func (l *Lending) Slash(amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount > l.deposits {
		return fmt.Errorf("cannot slash %d of %d deposits", amount, l.deposits)
	}
	l.deposits -= amount
	return nil
}
