/*

This package contains in-memory stand-ins for the external protocols the
vault engines call into: a balance bank, a constant-product pool and a
lending market. They back the local runtime mode and the engine tests.

*/

package sim

import (
	"errors"
	"sync"

	"github.com/rarefi/yve/internal/fixedmath"
	"github.com/rarefi/yve/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrProtocolUnavailable = errors.New("simulated protocol is unavailable")
)

// Bank tracks asset balances per account.
type Bank struct {
	mu       sync.Mutex
	balances map[types.AccountID]map[types.AssetID]uint64
}

// NewBank creates an empty bank.
func NewBank() *Bank {
	return &Bank{balances: make(map[types.AccountID]map[types.AssetID]uint64)}
}

// Balance reports the account's holding of an asset.
func (b *Bank) Balance(account types.AccountID, asset types.AssetID) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[account][asset], nil
}

// Mint credits new units to an account.
func (b *Bank) Mint(account types.AccountID, asset types.AssetID, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.credit(account, asset, amount)
}

// Burn removes units from an account.
func (b *Bank) Burn(account types.AccountID, asset types.AssetID, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.debit(account, asset, amount)
}

// Transfer moves units between accounts.
func (b *Bank) Transfer(from, to types.AccountID, asset types.AssetID, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.debit(from, asset, amount); err != nil {
		return err
	}
	return b.credit(to, asset, amount)
}

func (b *Bank) credit(account types.AccountID, asset types.AssetID, amount uint64) error {
	held := b.balances[account]
	if held == nil {
		held = make(map[types.AssetID]uint64)
		b.balances[account] = held
	}
	next, err := fixedmath.CheckedAdd(held[asset], amount)
	if err != nil {
		return err
	}
	held[asset] = next
	return nil
}

func (b *Bank) debit(account types.AccountID, asset types.AssetID, amount uint64) error {
	held := b.balances[account]
	if held[asset] < amount {
		return ErrInsufficientBalance
	}
	held[asset] -= amount
	return nil
}
