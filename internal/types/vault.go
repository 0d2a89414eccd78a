/*

This file contains the core ledger entities: the global per-vault record, the
per-depositor record, and the checkpoints written by harvest actions.

*/

package types

// AccountID identifies a depositor account on the host platform.
type AccountID string

// AssetID identifies a fungible asset on the host platform.
type AssetID uint64

// AccountingModel selects which yield-accounting strategy a vault runs.
type AccountingModel string

const (
	// ModelAccumulator pays yield in a third asset via a pull accumulator.
	ModelAccumulator AccountingModel = "ACCUMULATOR"
	// ModelShares compounds yield into the deposited asset via share pricing.
	ModelShares AccountingModel = "SHARES"
	// ModelHarvest accrues continuously and converts in periodic batches.
	ModelHarvest AccountingModel = "HARVEST"
)

// VaultState is the global ledger record for a single vault. One row per
// vault; every settlement mutates it. Fields not used by the vault's model
// stay zero.
type VaultState struct {
	VaultID uint64          `json:"vault_id"`
	Model   AccountingModel `json:"model"`

	// Principal accounting (models A and C).
	TotalStake uint64 `json:"total_stake"`

	// Share accounting (model B).
	TotalShares uint64 `json:"total_shares"`
	TotalValue  uint64 `json:"total_value"`

	// Yield-per-unit accumulator, scaled by ledger.Scale (model A) or by
	// lending.RatePrecision (model C).
	YieldPerUnit uint64 `json:"yield_per_unit"`

	// Model C rate tracking and harvest checkpoints.
	RateSnapshot     uint64 `json:"rate_snapshot"`
	Receipts         uint64 `json:"receipts"`
	LastHarvestYPU   uint64 `json:"last_harvest_ypu"`
	LastHarvestRatio uint64 `json:"last_harvest_ratio"`

	// Fee configuration, in basis points of converted proceeds.
	PerformanceFeeBps uint64 `json:"performance_fee_bps"`

	// Sponsor-funded bonus pool.
	FarmRemaining   uint64 `json:"farm_remaining"`
	FarmEmissionBps uint64 `json:"farm_emission_bps"`
}

// UserPosition is the per-depositor record, keyed by (vault, account).
// Created on first deposit, deleted on full exit.
type UserPosition struct {
	// Stake is the depositor's principal (models A and C).
	Stake uint64 `json:"stake"`
	// Shares is the depositor's share balance (model B).
	Shares uint64 `json:"shares"`
	// Snapshot of the vault accumulator at the last settlement.
	Snapshot uint64 `json:"snapshot"`
	// Owed is settled yield awaiting claim, in the payout asset (model A).
	Owed uint64 `json:"owed"`
	// Unrealized is settled accrual awaiting conversion (model C, stage 1).
	Unrealized uint64 `json:"unrealized"`
	// Claimable is converted payout awaiting claim (model C, stage 3).
	Claimable uint64 `json:"claimable"`
}

// PoolSnapshot is a read-only view of external AMM pool state. It is fetched
// fresh on every quote and never persisted.
type PoolSnapshot struct {
	Asset1   AssetID `json:"asset1_id"`
	Asset2   AssetID `json:"asset2_id"`
	Reserve1 uint64  `json:"reserve1"`
	Reserve2 uint64  `json:"reserve2"`
	FeeBps   uint64  `json:"fee_bps"`
}

// HarvestRecord is the checkpoint written by a model C harvest action.
type HarvestRecord struct {
	VaultID      uint64 `json:"vault_id"`
	YieldPerUnit uint64 `json:"yield_per_unit"`
	PayoutRatio  uint64 `json:"payout_ratio"`
	Converted    uint64 `json:"converted"`
	Realized     uint64 `json:"realized"`
}
