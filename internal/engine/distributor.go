/*

This file contains the accumulator-model vault engine: stake in one asset,
reward proceeds arriving as a pending balance in a second, yield paid out in
a third after conversion through the AMM. Deposits are hard-blocked while an
undistributed pending balance sits at or above the distribution threshold.

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

var distributorLogger = logger.GetForComponent("distributor_vault")

// DistributorConfig carries the fixed parameters of an accumulator vault.
// They arrive pre-validated from initialization.
type DistributorConfig struct {
	Vault        types.VaultState
	VaultAccount types.AccountID

	// RewardAsset accrues as a pending balance; PayoutAsset is what
	// depositors claim after conversion.
	RewardAsset types.AssetID
	PayoutAsset types.AssetID

	SlippageBps           uint64
	DistributionThreshold uint64
	EmissionCeilingBps    uint64
	EmissionFloorBps      uint64

	// Positions restores checkpointed accounts; nil starts empty.
	Positions map[types.AccountID]*types.UserPosition
}

// Distributor runs a vault on the pull-accumulator accounting model.
type Distributor struct {
	mu        sync.Mutex
	cfg       DistributorConfig
	vault     types.VaultState
	positions map[types.AccountID]*types.UserPosition

	executor  *amm.SwapExecutor
	balances  amm.BalanceReader
	gate      ledger.DepositGate
	authorize AuthFunc
	store     Store
}

// NewDistributor creates an accumulator-model vault engine.
func NewDistributor(cfg DistributorConfig, executor *amm.SwapExecutor, balances amm.BalanceReader, authorize AuthFunc, store Store) (*Distributor, error) {
	if executor == nil {
		return nil, errors.New("swap executor cannot be nil")
	}
	if balances == nil {
		return nil, errors.New("balance reader cannot be nil")
	}
	if cfg.VaultAccount == "" {
		return nil, errors.New("vault account cannot be empty")
	}

	cfg.Vault.Model = types.ModelAccumulator
	return &Distributor{
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

// run executes fn against a working copy of the ledger and commits only on
// success.
func (d *Distributor) run(fn func(vault *types.VaultState, led *ledger.Accumulator, bonus *ledger.FarmBonus) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	vault := d.vault
	positions := ledger.ClonePositions(d.positions)

	if err := fn(&vault, ledger.NewAccumulator(&vault, positions), ledger.NewFarmBonus(&vault)); err != nil {
		return err
	}

	d.vault = vault
	d.positions = positions
	d.checkpoint()
	return nil
}

func (d *Distributor) checkpoint() {
	if d.store == nil {
		return
	}
	if err := d.store.SaveVault(d.vault, d.positions); err != nil {
		distributorLogger.Error().Err(err).Uint64("vaultId", d.vault.VaultID).Msg("Failed to checkpoint vault state")
	}
}

// pending reads the undistributed reward balance sitting on the vault
// account.
func (d *Distributor) pending() (uint64, error) {
	balance, err := d.balances.Balance(d.cfg.VaultAccount, d.cfg.RewardAsset)
	if err != nil {
		return 0, errors.Join(amm.ErrExternalStateUnreadable, err)
	}
	return balance, nil
}

// Deposit credits stake for the account. Refused while a distribution is due,
// so the new capital can neither dilute nor capture yield that predates it.
func (d *Distributor) Deposit(account types.AccountID, amount uint64) error {
	return d.run(func(vault *types.VaultState, led *ledger.Accumulator, _ *ledger.FarmBonus) error {
		pending, err := d.pending()
		if err != nil {
			return err
		}
		if err := d.gate.Check(pending, vault.TotalStake); err != nil {
			return err
		}
		return led.Deposit(account, amount)
	})
}

// Withdraw settles then returns stake to the account.
func (d *Distributor) Withdraw(account types.AccountID, amount uint64) error {
	return d.run(func(_ *types.VaultState, led *ledger.Accumulator, _ *ledger.FarmBonus) error {
		return led.Withdraw(account, amount)
	})
}

// Claim settles and pays out the account's owed yield, returning the amount.
func (d *Distributor) Claim(account types.AccountID) (uint64, error) {
	var owed uint64
	err := d.run(func(_ *types.VaultState, led *ledger.Accumulator, _ *ledger.FarmBonus) error {
		var err error
		owed, err = led.TakeOwed(account)
		return err
	})
	if err != nil {
		return 0, err
	}
	return owed, nil
}

// Distribute converts the pending reward balance through the AMM, blends the
// sponsor bonus, deducts the operator fee and spreads the remainder across
// current stake. Permissionless: anyone may trigger it.
func (d *Distributor) Distribute() (uint64, error) {
	var distributed uint64
	err := d.run(func(vault *types.VaultState, led *ledger.Accumulator, bonus *ledger.FarmBonus) error {
		pending, err := d.pending()
		if err != nil {
			return err
		}
		if pending == 0 {
			return ledger.ErrZeroAmount
		}
		// Checked before the swap: once the AMM call commits there is no
		// way to unwind it.
		if vault.TotalStake == 0 {
			return errors.Join(ledger.ErrInsufficientStake,
				fmt.Errorf("no stake to receive a distribution of %d", pending))
		}

		realized, err := d.executor.Execute(d.cfg.RewardAsset, pending, d.cfg.PayoutAsset, d.cfg.SlippageBps)
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
		if err := led.Distribute(net); err != nil {
			return err
		}

		distributed = net
		distributorLogger.Info().
			Uint64("vaultId", vault.VaultID).
			Uint64("converted", pending).
			Uint64("realized", realized).
			Uint64("bonus", bonusAmount).
			Uint64("fee", fee).
			Uint64("distributed", net).
			Msg("Distributed pending rewards")
		return nil
	})
	if err != nil {
		return 0, err
	}
	return distributed, nil
}

// FundFarm credits a sponsor contribution to the bonus pool.
func (d *Distributor) FundFarm(amount uint64) error {
	return d.run(func(_ *types.VaultState, _ *ledger.Accumulator, bonus *ledger.FarmBonus) error {
		return bonus.Fund(amount)
	})
}

// SetEmissionRate updates the bonus emission rate. Restricted to authorized
// callers.
func (d *Distributor) SetEmissionRate(caller types.AccountID, bps uint64) error {
	if d.authorize == nil || !d.authorize(caller) {
		return ErrUnauthorized
	}
	return d.run(func(_ *types.VaultState, _ *ledger.Accumulator, bonus *ledger.FarmBonus) error {
		return bonus.SetEmissionRate(bps, d.cfg.EmissionCeilingBps, d.cfg.EmissionFloorBps)
	})
}

// VaultState returns a copy of the vault record.
func (d *Distributor) VaultState() types.VaultState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vault
}

// Position returns a copy of the account's record.
func (d *Distributor) Position(account types.AccountID) (types.UserPosition, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pos, ok := d.positions[account]
	if !ok {
		return types.UserPosition{}, false
	}
	return *pos, true
}
