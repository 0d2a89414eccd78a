package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// VaultID is the ID of the vault this instance will manage.
	VaultID uint64
	// VaultAccount is the vault's own balance account.
	VaultAccount string
	// OperatorAccount is the account allowed to run restricted actions.
	OperatorAccount string

	// RewardAsset is the asset external protocols pay rewards in.
	RewardAsset uint64
	// StakeAsset is the asset users deposit.
	StakeAsset uint64
	// PayoutAsset is the asset harvest conversions settle into.
	PayoutAsset uint64

	// PerformanceFeeBps is the operator's cut of realized yield, in basis points.
	PerformanceFeeBps uint64
	// PerformanceFeeCeilingBps is the highest fee the instance will accept.
	PerformanceFeeCeilingBps uint64

	// SlippageBps is the per-swap slippage bound, in basis points.
	SlippageBps uint64
	// SlippageCeilingBps is the highest slippage bound the executor will accept.
	SlippageCeilingBps uint64

	// DistributionThreshold is the pending reward level that blocks new deposits.
	DistributionThreshold uint64
	// HarvestMinimum is the smallest accrued value worth harvesting.
	HarvestMinimum uint64
	// RateToleranceBps bounds how far the lending rate may dip before accrual halts.
	RateToleranceBps uint64

	// EmissionCeilingBps and EmissionFloorBps bound the farm bonus emission rate.
	EmissionCeilingBps uint64
	EmissionFloorBps   uint64

	// PersistState enables the Postgres checkpoint store.
	PersistState bool

	// WebServerPort is the port for the status API.
	WebServerPort string
)

// LoadConfig loads configuration from environment variables and sets the global
// config vars. All environment variables without a documented default are required.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	VaultID, err = getEnvAsUint64("YVE_VAULT_ID")
	if err != nil {
		return err
	}

	VaultAccount, err = getEnv("YVE_VAULT_ACCOUNT")
	if err != nil {
		return err
	}

	OperatorAccount, err = getEnv("YVE_OPERATOR_ACCOUNT")
	if err != nil {
		return err
	}

	RewardAsset, err = getEnvAsUint64("YVE_REWARD_ASSET")
	if err != nil {
		return err
	}

	StakeAsset, err = getEnvAsUint64("YVE_STAKE_ASSET")
	if err != nil {
		return err
	}

	PayoutAsset, err = getEnvAsUint64("YVE_PAYOUT_ASSET")
	if err != nil {
		return err
	}

	PerformanceFeeBps, err = getEnvAsUint64("YVE_PERFORMANCE_FEE_BPS")
	if err != nil {
		return err
	}

	PerformanceFeeCeilingBps = getEnvAsUint64OrDefault("YVE_PERFORMANCE_FEE_CEILING_BPS", 2_000)

	SlippageBps, err = getEnvAsUint64("YVE_SLIPPAGE_BPS")
	if err != nil {
		return err
	}

	SlippageCeilingBps = getEnvAsUint64OrDefault("YVE_SLIPPAGE_CEILING_BPS", 1_000)

	DistributionThreshold, err = getEnvAsUint64("YVE_DISTRIBUTION_THRESHOLD")
	if err != nil {
		return err
	}

	HarvestMinimum, err = getEnvAsUint64("YVE_HARVEST_MINIMUM")
	if err != nil {
		return err
	}

	RateToleranceBps = getEnvAsUint64OrDefault("YVE_RATE_TOLERANCE_BPS", 10)
	EmissionCeilingBps = getEnvAsUint64OrDefault("YVE_EMISSION_CEILING_BPS", 5_000)
	EmissionFloorBps = getEnvAsUint64OrDefault("YVE_EMISSION_FLOOR_BPS", 0)

	PersistState = getEnvAsBoolOrDefault("YVE_PERSIST_STATE", false)

	WebServerPort = getEnvOrDefault("YVE_WEB_PORT", "8080")

	if PerformanceFeeBps > PerformanceFeeCeilingBps {
		return errors.New("YVE_PERFORMANCE_FEE_BPS exceeds the configured ceiling")
	}
	if SlippageBps > SlippageCeilingBps {
		return errors.New("YVE_SLIPPAGE_BPS exceeds the configured ceiling")
	}

	log.Debug().
		Uint64("VaultID", VaultID).
		Str("VaultAccount", VaultAccount).
		Uint64("PerformanceFeeBps", PerformanceFeeBps).
		Uint64("DistributionThreshold", DistributionThreshold).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, falling back to a default.
func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsUint64OrDefault retrieves an environment variable as a uint64,
// falling back to a default when unset or invalid.
func getEnvAsUint64OrDefault(key string, fallback uint64) uint64 {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("Invalid uint64 in environment, using default")
		return fallback
	}
	return value
}

// getEnvAsBoolOrDefault retrieves an environment variable as a bool,
// falling back to a default when unset or invalid.
func getEnvAsBoolOrDefault(key string, fallback bool) bool {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("Invalid bool in environment, using default")
		return fallback
	}
	return value
}
