package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rarefi/yve/internal/amm"
	"github.com/rarefi/yve/internal/config"
	"github.com/rarefi/yve/internal/engine"
	"github.com/rarefi/yve/internal/lending"
	"github.com/rarefi/yve/internal/logger"
	"github.com/rarefi/yve/internal/sim"
	"github.com/rarefi/yve/internal/state"
	"github.com/rarefi/yve/internal/types"
	"github.com/rarefi/yve/internal/web"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	LOOP_INTERVAL = 30 * time.Second

	// Per-tick yield injected into the simulated externals.
	rewardDrip      = 5_000
	lendingInterest = 2_000
)

// main is the entry point for the vault engine.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Yield Vault Engine Starting...")

	// --- 2. Checkpoint Store (optional) ---
	var store *state.VaultStore
	if config.PersistState {
		dbCfg := state.DBConfig{
			Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
			User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
			DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
		}
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		var err error
		store, err = state.NewVaultStore()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create vault store")
		}
	}

	// --- 3. External Protocols (with Safety Switch) ---
	mode := os.Getenv("YVE_MODE")
	if mode != "local" {
		log.Fatal().Msg("YVE_MODE is not set to 'local'. Halting to prevent accidental execution. Set YVE_MODE=local to run against the simulated externals.")
	}

	vaultAccount := types.AccountID(config.VaultAccount)
	operator := types.AccountID(config.OperatorAccount)
	rewardAsset := types.AssetID(config.RewardAsset)
	stakeAsset := types.AssetID(config.StakeAsset)
	payoutAsset := types.AssetID(config.PayoutAsset)

	bank := sim.NewBank()
	pool, err := sim.NewPool(types.PoolSnapshot{
		Asset1:   rewardAsset,
		Asset2:   payoutAsset,
		Reserve1: 1_000_000_000,
		Reserve2: 1_000_000_000,
		FeeBps:   30,
	}, bank)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create simulated pool")
	}
	stakePool, err := sim.NewPool(types.PoolSnapshot{
		Asset1:   rewardAsset,
		Asset2:   stakeAsset,
		Reserve1: 1_000_000_000,
		Reserve2: 1_000_000_000,
		FeeBps:   30,
	}, bank)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create simulated stake pool")
	}
	// Each vault holds its pending rewards on its own account, so one
	// vault's balance never trips another's deposit gate or feeds another's
	// conversion.
	compoundAccount := vaultAccount + "-compound"
	harvestAccount := vaultAccount + "-harvest"
	market := sim.NewLending()
	market.SettleRedemptionsTo(bank, harvestAccount, rewardAsset)
	// Seed the market so the exchange rate is defined from the first read.
	if _, err := market.Deposit(1_000_000); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed simulated lending market")
	}

	quotes, err := amm.NewQuoteEngine(pool)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create quote engine")
	}
	executor, err := amm.NewSwapExecutor(quotes, pool, bank, vaultAccount, config.SlippageCeilingBps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create swap executor")
	}
	stakeQuotes, err := amm.NewQuoteEngine(stakePool)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create stake quote engine")
	}
	compoundExecutor, err := amm.NewSwapExecutor(stakeQuotes, stakePool, bank, compoundAccount, config.SlippageCeilingBps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create compound swap executor")
	}
	harvestExecutor, err := amm.NewSwapExecutor(quotes, pool, bank, harvestAccount, config.SlippageCeilingBps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create harvest swap executor")
	}
	oracle, err := lending.NewRateOracle(market, config.RateToleranceBps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create rate oracle")
	}

	authorize := func(caller types.AccountID) bool { return caller == operator }

	// --- 4. Vault Engines ---
	var engineStore engine.Store
	if store != nil {
		engineStore = store
	}

	distributor, err := engine.NewDistributor(engine.DistributorConfig{
		Vault:                 restoreVault(store, config.VaultID),
		VaultAccount:          vaultAccount,
		RewardAsset:           rewardAsset,
		PayoutAsset:           payoutAsset,
		SlippageBps:           config.SlippageBps,
		DistributionThreshold: config.DistributionThreshold,
		EmissionCeilingBps:    config.EmissionCeilingBps,
		EmissionFloorBps:      config.EmissionFloorBps,
		Positions:             restorePositions(store, config.VaultID),
	}, executor, bank, authorize, engineStore)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create distributor vault")
	}

	compounder, err := engine.NewCompounder(engine.CompounderConfig{
		Vault:                 restoreVault(store, config.VaultID+1),
		VaultAccount:          compoundAccount,
		RewardAsset:           rewardAsset,
		StakeAsset:            stakeAsset,
		SlippageBps:           config.SlippageBps,
		DistributionThreshold: config.DistributionThreshold,
		EmissionCeilingBps:    config.EmissionCeilingBps,
		EmissionFloorBps:      config.EmissionFloorBps,
		Positions:             restorePositions(store, config.VaultID+1),
	}, compoundExecutor, bank, authorize, engineStore)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create compounder vault")
	}

	harvester, err := engine.NewHarvester(engine.HarvesterConfig{
		Vault:              restoreVault(store, config.VaultID+2),
		VaultAccount:       harvestAccount,
		UnderlyingAsset:    rewardAsset,
		PayoutAsset:        payoutAsset,
		SlippageBps:        config.SlippageBps,
		HarvestMinimum:     config.HarvestMinimum,
		EmissionCeilingBps: config.EmissionCeilingBps,
		EmissionFloorBps:   config.EmissionFloorBps,
		Positions:          restorePositions(store, config.VaultID+2),
	}, market, oracle, harvestExecutor, authorize, engineStore)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create harvester vault")
	}

	// --- 5. Web Server ---
	webServer := web.NewWebServer(config.WebServerPort, map[uint64]web.VaultReader{
		config.VaultID:     distributor,
		config.VaultID + 1: compounder,
		config.VaultID + 2: harvester,
	})
	go func() {
		log.Info().Str("port", config.WebServerPort).Msg("Starting vault status API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 6. Operator Loop ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("interval", LOOP_INTERVAL.String()).Msg("Starting operator loop")
	runLoop(ctx, bank, market, []types.AccountID{vaultAccount, compoundAccount}, rewardAsset, operator, distributor, compounder, harvester)
	log.Info().Msg("Shutdown complete")
}

// runLoop drips simulated yield into the externals each tick and fires the
// vault maintenance actions. Threshold failures are routine and only logged
// at debug level.
func runLoop(ctx context.Context, bank *sim.Bank, market *sim.Lending,
	rewardAccounts []types.AccountID, rewardAsset types.AssetID, operator types.AccountID,
	distributor *engine.Distributor, compounder *engine.Compounder, harvester *engine.Harvester) {

	ticker := time.NewTicker(LOOP_INTERVAL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, account := range rewardAccounts {
			if err := bank.Mint(account, rewardAsset, rewardDrip); err != nil {
				log.Error().Err(err).Msg("Failed to drip rewards")
			}
		}
		if err := market.Accrue(lendingInterest); err != nil {
			log.Error().Err(err).Msg("Failed to accrue lending interest")
		}

		if payout, err := distributor.Distribute(); err != nil {
			log.Debug().Err(err).Msg("Distribution skipped")
		} else {
			log.Info().Uint64("payout", payout).Msg("Distributed pending rewards")
		}

		if compounded, err := compounder.Compound(); err != nil {
			log.Debug().Err(err).Msg("Compound skipped")
		} else {
			log.Info().Uint64("compounded", compounded).Msg("Compounded pending rewards")
		}

		if realized, err := harvester.Harvest(operator); err != nil {
			log.Debug().Err(err).Msg("Harvest skipped")
		} else {
			log.Info().Uint64("realized", realized).Msg("Harvested accrued yield")
		}
	}
}

// restoreVault loads a checkpointed vault record, falling back to a fresh one.
func restoreVault(store *state.VaultStore, vaultID uint64) types.VaultState {
	fresh := types.VaultState{
		VaultID:           vaultID,
		PerformanceFeeBps: config.PerformanceFeeBps,
	}
	if store == nil {
		return fresh
	}
	vault, _, found, err := store.LoadVault(vaultID)
	if err != nil {
		log.Error().Err(err).Uint64("vaultId", vaultID).Msg("Failed to load vault checkpoint, starting fresh")
		return fresh
	}
	if !found {
		return fresh
	}
	log.Info().Uint64("vaultId", vaultID).Msg("Restored vault from checkpoint")
	return vault
}

// restorePositions loads checkpointed positions, or nil for a fresh start.
func restorePositions(store *state.VaultStore, vaultID uint64) map[types.AccountID]*types.UserPosition {
	if store == nil {
		return nil
	}
	_, positions, found, err := store.LoadVault(vaultID)
	if err != nil || !found {
		return nil
	}
	return positions
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
