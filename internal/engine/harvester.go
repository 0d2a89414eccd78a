/*

This file contains the harvest-model vault engine: principal sits in the
external lending protocol, accrual is measured from the deposit/receipt rate,
and a restricted harvest action periodically redeems the accrued slice and
converts it into the payout asset. Deposits are not gated here; the harvest
is a separate action decoupled from the deposit path.

*/

package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rarefi/yve/internal/amm"
	"github.com/rarefi/yve/internal/fixedmath"
	"github.com/rarefi/yve/internal/ledger"
	"github.com/rarefi/yve/internal/lending"
	"github.com/rarefi/yve/internal/logger"
	"github.com/rarefi/yve/internal/types"
)

var harvesterLogger = logger.GetForComponent("harvester_vault")

// HarvesterConfig carries the fixed parameters of a harvest vault.
type HarvesterConfig struct {
	Vault        types.VaultState
	VaultAccount types.AccountID

	// UnderlyingAsset is deposited into lending; PayoutAsset is what
	// harvests convert accrual into.
	UnderlyingAsset types.AssetID
	PayoutAsset     types.AssetID

	SlippageBps        uint64
	HarvestMinimum     uint64
	EmissionCeilingBps uint64
	EmissionFloorBps   uint64

	// Positions restores checkpointed accounts; nil starts empty.
	Positions map[types.AccountID]*types.UserPosition
}

// Harvester runs a vault on the two-stage harvest accounting model.
type Harvester struct {
	mu        sync.Mutex
	cfg       HarvesterConfig
	vault     types.VaultState
	positions map[types.AccountID]*types.UserPosition

	protocol  lending.Protocol
	oracle    *lending.RateOracle
	executor  *amm.SwapExecutor
	authorize AuthFunc
	store     Store
}

// NewHarvester creates a harvest-model vault engine.
func NewHarvester(cfg HarvesterConfig, protocol lending.Protocol, oracle *lending.RateOracle, executor *amm.SwapExecutor, authorize AuthFunc, store Store) (*Harvester, error) {
	if protocol == nil {
		return nil, errors.New("lending protocol cannot be nil")
	}
	if oracle == nil {
		return nil, errors.New("rate oracle cannot be nil")
	}
	if executor == nil {
		return nil, errors.New("swap executor cannot be nil")
	}
	if cfg.VaultAccount == "" {
		return nil, errors.New("vault account cannot be empty")
	}

	cfg.Vault.Model = types.ModelHarvest
	return &Harvester{
		cfg:       cfg,
		vault:     cfg.Vault,
		positions: ledger.ClonePositions(cfg.Positions),
		protocol:  protocol,
		oracle:    oracle,
		executor:  executor,
		authorize: authorize,
		store:     store,
	}, nil
}

func (h *Harvester) run(fn func(vault *types.VaultState, led *ledger.Harvest, bonus *ledger.FarmBonus) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	vault := h.vault
	positions := ledger.ClonePositions(h.positions)

	if err := fn(&vault, ledger.NewHarvest(&vault, positions), ledger.NewFarmBonus(&vault)); err != nil {
		return err
	}

	h.vault = vault
	h.positions = positions
	h.checkpoint()
	return nil
}

func (h *Harvester) checkpoint() {
	if h.store == nil {
		return
	}
	if err := h.store.SaveVault(h.vault, h.positions); err != nil {
		harvesterLogger.Error().Err(err).Uint64("vaultId", h.vault.VaultID).Msg("Failed to checkpoint vault state")
	}
}

// accrue reads the tolerance-checked rate and folds growth into the
// accumulator. Every user action starts here.
func (h *Harvester) accrue(vault *types.VaultState, led *ledger.Harvest) (uint64, error) {
	rate, err := h.oracle.Rate(vault.RateSnapshot)
	if err != nil {
		return 0, err
	}
	if err := led.Accrue(rate); err != nil {
		return 0, err
	}
	return rate, nil
}

// Deposit settles the account, places the principal into the lending
// protocol and credits stake.
func (h *Harvester) Deposit(account types.AccountID, amount uint64) error {
	return h.run(func(vault *types.VaultState, led *ledger.Harvest, _ *ledger.FarmBonus) error {
		if _, err := h.accrue(vault, led); err != nil {
			return err
		}
		if err := led.Deposit(account, amount); err != nil {
			return err
		}

		receipts, err := h.protocol.Deposit(amount)
		if err != nil {
			return err
		}
		vault.Receipts, err = fixedmath.CheckedAdd(vault.Receipts, receipts)
		return err
	})
}

// Withdraw settles the account, redeems enough receipts to release the
// requested principal and debits stake.
func (h *Harvester) Withdraw(account types.AccountID, amount uint64) error {
	return h.run(func(vault *types.VaultState, led *ledger.Harvest, _ *ledger.FarmBonus) error {
		rate, err := h.accrue(vault, led)
		if err != nil {
			return err
		}
		if err := led.Withdraw(account, amount); err != nil {
			return err
		}
		return h.redeemPrincipal(vault, amount, rate)
	})
}

// redeemPrincipal releases amount of underlying from the lending protocol,
// burning the ceiling number of receipts so the release is never short.
func (h *Harvester) redeemPrincipal(vault *types.VaultState, amount, rate uint64) error {
	receiptsNeeded, err := fixedmath.MulDivCeil(amount, lending.RatePrecision, rate)
	if err != nil {
		return err
	}
	if receiptsNeeded > vault.Receipts {
		receiptsNeeded = vault.Receipts
	}

	redeemed, err := h.protocol.Redeem(receiptsNeeded)
	if err != nil {
		return err
	}
	if redeemed < amount {
		return errors.Join(lending.ErrExternalStateUnreadable,
			fmt.Errorf("redeem released %d, principal requires %d", redeemed, amount))
	}
	vault.Receipts -= receiptsNeeded
	return nil
}

// Claim settles and pays out the account's converted yield, returning the
// amount.
func (h *Harvester) Claim(account types.AccountID) (uint64, error) {
	var claimable uint64
	err := h.run(func(vault *types.VaultState, led *ledger.Harvest, _ *ledger.FarmBonus) error {
		if _, err := h.accrue(vault, led); err != nil {
			return err
		}
		var err error
		claimable, err = led.TakeClaimable(account)
		return err
	})
	if err != nil {
		return 0, err
	}
	return claimable, nil
}

// Exit closes the position: principal and converted payout are returned,
// unconverted accrual is forfeited to the vault.
func (h *Harvester) Exit(account types.AccountID) (principal, claimable uint64, err error) {
	err = h.run(func(vault *types.VaultState, led *ledger.Harvest, _ *ledger.FarmBonus) error {
		rate, err := h.accrue(vault, led)
		if err != nil {
			return err
		}
		stake, payout, forfeited, err := led.Exit(account)
		if err != nil {
			return err
		}
		if stake > 0 {
			if err := h.redeemPrincipal(vault, stake, rate); err != nil {
				return err
			}
		}

		principal, claimable = stake, payout
		if forfeited > 0 {
			harvesterLogger.Info().
				Uint64("vaultId", vault.VaultID).
				Str("account", string(account)).
				Uint64("forfeited", forfeited).
				Msg("Unconverted accrual forfeited on exit")
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return principal, claimable, nil
}

// Harvest redeems the vault-wide accrued slice, converts it into the payout
// asset, blends the sponsor bonus, deducts the operator fee and records the
// conversion checkpoint. Restricted to authorized callers.
func (h *Harvester) Harvest(caller types.AccountID) (uint64, error) {
	if h.authorize == nil || !h.authorize(caller) {
		return 0, ErrUnauthorized
	}

	var net uint64
	err := h.run(func(vault *types.VaultState, led *ledger.Harvest, bonus *ledger.FarmBonus) error {
		rate, err := h.accrue(vault, led)
		if err != nil {
			return err
		}

		backing, err := fixedmath.MulDivFloor(vault.Receipts, rate, lending.RatePrecision)
		if err != nil {
			return err
		}
		if backing <= vault.TotalStake {
			return errors.Join(ErrBelowMinimumThreshold,
				fmt.Errorf("backing %d does not exceed principal %d", backing, vault.TotalStake))
		}
		unrealizedValue := backing - vault.TotalStake
		if unrealizedValue < h.cfg.HarvestMinimum {
			return errors.Join(ErrBelowMinimumThreshold,
				fmt.Errorf("unrealized %d below harvest minimum %d", unrealizedValue, h.cfg.HarvestMinimum))
		}

		// Floor here: never redeem into principal.
		receiptsToRedeem, err := fixedmath.MulDivFloor(unrealizedValue, lending.RatePrecision, rate)
		if err != nil {
			return err
		}
		redeemed, err := h.protocol.Redeem(receiptsToRedeem)
		if err != nil {
			return err
		}
		vault.Receipts -= receiptsToRedeem

		realized, err := h.executor.Execute(h.cfg.UnderlyingAsset, redeemed, h.cfg.PayoutAsset, h.cfg.SlippageBps)
		if err != nil {
			// The redeem has already settled externally. Return the
			// released underlying to the market so the pre-action receipt
			// count the rollback restores stays backed.
			restored, depErr := h.protocol.Deposit(redeemed)
			if depErr != nil {
				harvesterLogger.Error().Err(depErr).
					Uint64("vaultId", vault.VaultID).
					Uint64("redeemed", redeemed).
					Msg("Failed to return redeemed underlying after aborted harvest")
				return errors.Join(err, depErr)
			}
			if restored < receiptsToRedeem {
				harvesterLogger.Warn().
					Uint64("vaultId", vault.VaultID).
					Uint64("burned", receiptsToRedeem).
					Uint64("restored", restored).
					Msg("Receipt rounding dust lost on aborted harvest")
			}
			return err
		}
		total, bonusAmount, err := bonus.Blend(realized)
		if err != nil {
			return err
		}
		var fee uint64
		net, fee, err = splitFee(total, vault.PerformanceFeeBps)
		if err != nil {
			return err
		}
		if err := led.RecordHarvest(redeemed, net); err != nil {
			return err
		}

		if h.store != nil {
			record := types.HarvestRecord{
				VaultID:      vault.VaultID,
				YieldPerUnit: vault.LastHarvestYPU,
				PayoutRatio:  vault.LastHarvestRatio,
				Converted:    redeemed,
				Realized:     net,
			}
			if err := h.store.RecordHarvest(record); err != nil {
				harvesterLogger.Error().Err(err).Uint64("vaultId", vault.VaultID).Msg("Failed to record harvest checkpoint")
			}
		}

		harvesterLogger.Info().
			Uint64("vaultId", vault.VaultID).
			Uint64("redeemed", redeemed).
			Uint64("realized", realized).
			Uint64("bonus", bonusAmount).
			Uint64("fee", fee).
			Uint64("payout", net).
			Msg("Harvested accrued yield")
		return nil
	})
	if err != nil {
		return 0, err
	}
	return net, nil
}

// FundFarm credits a sponsor contribution to the bonus pool.
func (h *Harvester) FundFarm(amount uint64) error {
	return h.run(func(_ *types.VaultState, _ *ledger.Harvest, bonus *ledger.FarmBonus) error {
		return bonus.Fund(amount)
	})
}

// SetEmissionRate updates the bonus emission rate. Restricted to authorized
// callers.
func (h *Harvester) SetEmissionRate(caller types.AccountID, bps uint64) error {
	if h.authorize == nil || !h.authorize(caller) {
		return ErrUnauthorized
	}
	return h.run(func(_ *types.VaultState, _ *ledger.Harvest, bonus *ledger.FarmBonus) error {
		return bonus.SetEmissionRate(bps, h.cfg.EmissionCeilingBps, h.cfg.EmissionFloorBps)
	})
}

// VaultState returns a copy of the vault record.
func (h *Harvester) VaultState() types.VaultState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.vault
}

// Position returns a copy of the account's record.
func (h *Harvester) Position(account types.AccountID) (types.UserPosition, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pos, ok := h.positions[account]
	if !ok {
		return types.UserPosition{}, false
	}
	return *pos, true
}
