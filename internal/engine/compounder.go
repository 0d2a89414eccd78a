/*

This file contains the share-model vault engine: deposits mint shares, reward
proceeds are converted into the deposited asset and folded into the backing
value, and withdrawals burn shares at the risen price. The same flash-deposit
gate as the accumulator model guards the deposit path.

*/

package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rarefi/yve/internal/amm"
	"github.com/rarefi/yve/internal/ledger"
	"github.com/rarefi/yve/internal/logger"
	"github.com/rarefi/yve/internal/types"
)

var compounderLogger = logger.GetForComponent("compounder_vault")

// CompounderConfig carries the fixed parameters of a share vault.
type CompounderConfig struct {
	Vault        types.VaultState
	VaultAccount types.AccountID

	// RewardAsset accrues as a pending balance; StakeAsset is both the
	// deposited asset and the compounding target.
	RewardAsset types.AssetID
	StakeAsset  types.AssetID

	SlippageBps           uint64
	DistributionThreshold uint64
	EmissionCeilingBps    uint64
	EmissionFloorBps      uint64

	// Positions restores checkpointed accounts; nil starts empty.
	Positions map[types.AccountID]*types.UserPosition
}

// Compounder runs a vault on the share-based auto-compounding model.
type Compounder struct {
	mu        sync.Mutex
	cfg       CompounderConfig
	vault     types.VaultState
	positions map[types.AccountID]*types.UserPosition

	executor  *amm.SwapExecutor
	balances  amm.BalanceReader
	gate      ledger.DepositGate
	authorize AuthFunc
	store     Store
}

// NewCompounder creates a share-model vault engine.
func NewCompounder(cfg CompounderConfig, executor *amm.SwapExecutor, balances amm.BalanceReader, authorize AuthFunc, store Store) (*Compounder, error) {
	if executor == nil {
		return nil, errors.New("swap executor cannot be nil")
	}
	if balances == nil {
		return nil, errors.New("balance reader cannot be nil")
	}
	if cfg.VaultAccount == "" {
		return nil, errors.New("vault account cannot be empty")
	}

	cfg.Vault.Model = types.ModelShares
	return &Compounder{
		cfg:       cfg,
		vault:     cfg.Vault,
		positions: ledger.ClonePositions(cfg.Positions),
		executor:  executor,
		balances:  balances,
		gate:      ledger.DepositGate{Threshold: cfg.DistributionThreshold},
		authorize: authorize,
		store:     store,
	}, nil
}

func (c *Compounder) run(fn func(vault *types.VaultState, led *ledger.Shares, bonus *ledger.FarmBonus) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	vault := c.vault
	positions := ledger.ClonePositions(c.positions)

	if err := fn(&vault, ledger.NewShares(&vault, positions), ledger.NewFarmBonus(&vault)); err != nil {
		return err
	}

	c.vault = vault
	c.positions = positions
	c.checkpoint()
	return nil
}

func (c *Compounder) checkpoint() {
	if c.store == nil {
		return
	}
	if err := c.store.SaveVault(c.vault, c.positions); err != nil {
		compounderLogger.Error().Err(err).Uint64("vaultId", c.vault.VaultID).Msg("Failed to checkpoint vault state")
	}
}

func (c *Compounder) pending() (uint64, error) {
	balance, err := c.balances.Balance(c.cfg.VaultAccount, c.cfg.RewardAsset)
	if err != nil {
		return 0, errors.Join(amm.ErrExternalStateUnreadable, err)
	}
	return balance, nil
}

// Deposit mints shares at the current price, returning the minted amount.
// Refused while an uncompounded pending balance is at or above threshold.
func (c *Compounder) Deposit(account types.AccountID, amount uint64) (uint64, error) {
	var minted uint64
	err := c.run(func(vault *types.VaultState, led *ledger.Shares, _ *ledger.FarmBonus) error {
		pending, err := c.pending()
		if err != nil {
			return err
		}
		if err := c.gate.Check(pending, vault.TotalShares); err != nil {
			return err
		}
		minted, err = led.Deposit(account, amount)
		return err
	})
	if err != nil {
		return 0, err
	}
	return minted, nil
}

// Withdraw burns shares at the current price, returning the released value.
func (c *Compounder) Withdraw(account types.AccountID, shares uint64) (uint64, error) {
	var value uint64
	err := c.run(func(_ *types.VaultState, led *ledger.Shares, _ *ledger.FarmBonus) error {
		var err error
		value, err = led.Withdraw(account, shares)
		return err
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

// Compound converts the pending reward balance into the deposited asset,
// blends the sponsor bonus, deducts the operator fee and folds the remainder
// into the backing value. Permissionless: anyone may trigger it.
func (c *Compounder) Compound() (uint64, error) {
	var compounded uint64
	err := c.run(func(vault *types.VaultState, led *ledger.Shares, bonus *ledger.FarmBonus) error {
		pending, err := c.pending()
		if err != nil {
			return err
		}
		if pending == 0 {
			return ledger.ErrZeroAmount
		}
		// Checked before the swap: once the AMM call commits there is no
		// way to unwind it.
		if vault.TotalShares == 0 {
			return errors.Join(ledger.ErrInsufficientStake,
				fmt.Errorf("no shares to receive a compound of %d", pending))
		}

		realized, err := c.executor.Execute(c.cfg.RewardAsset, pending, c.cfg.StakeAsset, c.cfg.SlippageBps)
		if err != nil {
			return err
		}
		total, bonusAmount, err := bonus.Blend(realized)
		if err != nil {
			return err
		}
		net, fee, err := splitFee(total, vault.PerformanceFeeBps)
		if err != nil {
			return err
		}
		if err := led.Compound(net); err != nil {
			return err
		}

		compounded = net
		compounderLogger.Info().
			Uint64("vaultId", vault.VaultID).
			Uint64("converted", pending).
			Uint64("realized", realized).
			Uint64("bonus", bonusAmount).
			Uint64("fee", fee).
			Uint64("compounded", net).
			Msg("Compounded pending rewards into backing value")
		return nil
	})
	if err != nil {
		return 0, err
	}
	return compounded, nil
}

// FundFarm credits a sponsor contribution to the bonus pool.
func (c *Compounder) FundFarm(amount uint64) error {
	return c.run(func(_ *types.VaultState, _ *ledger.Shares, bonus *ledger.FarmBonus) error {
		return bonus.Fund(amount)
	})
}

// SetEmissionRate updates the bonus emission rate. Restricted to authorized
// callers.
func (c *Compounder) SetEmissionRate(caller types.AccountID, bps uint64) error {
	if c.authorize == nil || !c.authorize(caller) {
		return ErrUnauthorized
	}
	return c.run(func(_ *types.VaultState, _ *ledger.Shares, bonus *ledger.FarmBonus) error {
		return bonus.SetEmissionRate(bps, c.cfg.EmissionCeilingBps, c.cfg.EmissionFloorBps)
	})
}

// SharePrice returns the implied share price scaled by ledger.Scale.
func (c *Compounder) SharePrice() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ledger.NewShares(&c.vault, c.positions).Price()
}

// VaultState returns a copy of the vault record.
func (c *Compounder) VaultState() types.VaultState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vault
}

// Position returns a copy of the account's record.
func (c *Compounder) Position(account types.AccountID) (types.UserPosition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos, ok := c.positions[account]
	if !ok {
		return types.UserPosition{}, false
	}
	return *pos, true
}
