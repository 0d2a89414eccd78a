// ./internal/state/vault_store.go
package state

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/rarefi/yve/internal/types"
)

// VaultStore mirrors vault state into Postgres. It satisfies the engine's
// checkpoint interface; amounts travel as decimal strings so the full uint64
// range survives the NUMERIC columns.
type VaultStore struct{}

// NewVaultStore returns a store backed by the global connection pool.
func NewVaultStore() (*VaultStore, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return &VaultStore{}, nil
}

// SaveVault upserts the vault record and replaces its position rows in a
// single transaction.
func (s *VaultStore) SaveVault(vault types.VaultState, positions map[types.AccountID]*types.UserPosition) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	vaultSQL := `
		INSERT INTO vault_states (
			vault_id, model, total_stake, total_shares, total_value,
			yield_per_unit, rate_snapshot, receipts,
			last_harvest_ypu, last_harvest_ratio,
			performance_fee_bps, farm_remaining, farm_emission_bps, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, CURRENT_TIMESTAMP)
		ON CONFLICT (vault_id) DO UPDATE SET
			model = EXCLUDED.model,
			total_stake = EXCLUDED.total_stake,
			total_shares = EXCLUDED.total_shares,
			total_value = EXCLUDED.total_value,
			yield_per_unit = EXCLUDED.yield_per_unit,
			rate_snapshot = EXCLUDED.rate_snapshot,
			receipts = EXCLUDED.receipts,
			last_harvest_ypu = EXCLUDED.last_harvest_ypu,
			last_harvest_ratio = EXCLUDED.last_harvest_ratio,
			performance_fee_bps = EXCLUDED.performance_fee_bps,
			farm_remaining = EXCLUDED.farm_remaining,
			farm_emission_bps = EXCLUDED.farm_emission_bps,
			updated_at = CURRENT_TIMESTAMP;
	`
	_, err = tx.Exec(vaultSQL,
		int64(vault.VaultID), string(vault.Model),
		u(vault.TotalStake), u(vault.TotalShares), u(vault.TotalValue),
		u(vault.YieldPerUnit), u(vault.RateSnapshot), u(vault.Receipts),
		u(vault.LastHarvestYPU), u(vault.LastHarvestRatio),
		u(vault.PerformanceFeeBps), u(vault.FarmRemaining), u(vault.FarmEmissionBps),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vault state: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM user_positions WHERE vault_id = $1;`, int64(vault.VaultID)); err != nil {
		return fmt.Errorf("failed to clear position rows: %w", err)
	}

	positionSQL := `
		INSERT INTO user_positions (
			vault_id, account, stake, shares, snapshot, owed, unrealized, claimable, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP);
	`
	for account, pos := range positions {
		_, err = tx.Exec(positionSQL,
			int64(vault.VaultID), string(account),
			u(pos.Stake), u(pos.Shares), u(pos.Snapshot),
			u(pos.Owed), u(pos.Unrealized), u(pos.Claimable),
		)
		if err != nil {
			return fmt.Errorf("failed to insert position for %s: %w", account, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit vault checkpoint: %w", err)
	}
	return nil
}

// RecordHarvest appends a harvest checkpoint row.
func (s *VaultStore) RecordHarvest(record types.HarvestRecord) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO harvest_records (vault_id, yield_per_unit, payout_ratio, converted, realized)
		VALUES ($1, $2, $3, $4, $5);
	`
	_, err := DB.Exec(query,
		int64(record.VaultID),
		u(record.YieldPerUnit), u(record.PayoutRatio),
		u(record.Converted), u(record.Realized),
	)
	if err != nil {
		return fmt.Errorf("failed to record harvest: %w", err)
	}
	return nil
}

// LoadVault restores a vault record and its positions. The second return is
// false when no checkpoint exists for the vault.
func (s *VaultStore) LoadVault(vaultID uint64) (types.VaultState, map[types.AccountID]*types.UserPosition, bool, error) {
	if DB == nil {
		return types.VaultState{}, nil, false, fmt.Errorf("database not initialized")
	}

	var (
		vault types.VaultState
		model string
		cols  [11]string
	)
	err := DB.QueryRow(`
		SELECT model, total_stake, total_shares, total_value,
			yield_per_unit, rate_snapshot, receipts,
			last_harvest_ypu, last_harvest_ratio,
			performance_fee_bps, farm_remaining, farm_emission_bps
		FROM vault_states WHERE vault_id = $1;
	`, int64(vaultID)).Scan(&model,
		&cols[0], &cols[1], &cols[2], &cols[3], &cols[4], &cols[5],
		&cols[6], &cols[7], &cols[8], &cols[9], &cols[10])
	if err == sql.ErrNoRows {
		return types.VaultState{}, nil, false, nil
	}
	if err != nil {
		return types.VaultState{}, nil, false, fmt.Errorf("failed to load vault state: %w", err)
	}

	vault.VaultID = vaultID
	vault.Model = types.AccountingModel(model)
	targets := []*uint64{
		&vault.TotalStake, &vault.TotalShares, &vault.TotalValue,
		&vault.YieldPerUnit, &vault.RateSnapshot, &vault.Receipts,
		&vault.LastHarvestYPU, &vault.LastHarvestRatio,
		&vault.PerformanceFeeBps, &vault.FarmRemaining, &vault.FarmEmissionBps,
	}
	for i, target := range targets {
		if *target, err = parseU(cols[i]); err != nil {
			return types.VaultState{}, nil, false, err
		}
	}

	rows, err := DB.Query(`
		SELECT account, stake, shares, snapshot, owed, unrealized, claimable
		FROM user_positions WHERE vault_id = $1;
	`, int64(vaultID))
	if err != nil {
		return types.VaultState{}, nil, false, fmt.Errorf("failed to load positions: %w", err)
	}
	defer rows.Close()

	positions := make(map[types.AccountID]*types.UserPosition)
	for rows.Next() {
		var (
			account string
			fields  [6]string
			pos     types.UserPosition
		)
		if err := rows.Scan(&account, &fields[0], &fields[1], &fields[2], &fields[3], &fields[4], &fields[5]); err != nil {
			return types.VaultState{}, nil, false, fmt.Errorf("failed to scan position row: %w", err)
		}
		posTargets := []*uint64{&pos.Stake, &pos.Shares, &pos.Snapshot, &pos.Owed, &pos.Unrealized, &pos.Claimable}
		for i, target := range posTargets {
			if *target, err = parseU(fields[i]); err != nil {
				return types.VaultState{}, nil, false, err
			}
		}
		positions[types.AccountID(account)] = &pos
	}
	if err := rows.Err(); err != nil {
		return types.VaultState{}, nil, false, fmt.Errorf("failed to iterate position rows: %w", err)
	}

	return vault, positions, true, nil
}

func u(value uint64) string {
	return strconv.FormatUint(value, 10)
}

func parseU(value string) (uint64, error) {
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse stored amount %q: %w", value, err)
	}
	return parsed, nil
}
