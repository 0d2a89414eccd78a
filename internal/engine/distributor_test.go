package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rarefi/yve/internal/amm"
	"github.com/rarefi/yve/internal/ledger"
	"github.com/rarefi/yve/internal/sim"
	"github.com/rarefi/yve/internal/types"
)

const (
	vaultAcct = types.AccountID("vault")
	operator  = types.AccountID("operator")

	rewardAsset = types.AssetID(1)
	payoutAsset = types.AssetID(2)
)

func operatorOnly(caller types.AccountID) bool { return caller == operator }

func newDistributorHarness(t *testing.T, feeBps uint64) (*Distributor, *sim.Bank, *sim.Pool) {
	t.Helper()

	bank := sim.NewBank()
	pool, err := sim.NewPool(types.PoolSnapshot{
		Asset1:   rewardAsset,
		Asset2:   payoutAsset,
		Reserve1: 1_000_000_000,
		Reserve2: 1_000_000_000,
		FeeBps:   30,
	}, bank)
	require.NoError(t, err)

	quotes, err := amm.NewQuoteEngine(pool)
	require.NoError(t, err)
	executor, err := amm.NewSwapExecutor(quotes, pool, bank, vaultAcct, 1_000)
	require.NoError(t, err)

	distributor, err := NewDistributor(DistributorConfig{
		Vault:                 types.VaultState{VaultID: 1, PerformanceFeeBps: feeBps},
		VaultAccount:          vaultAcct,
		RewardAsset:           rewardAsset,
		PayoutAsset:           payoutAsset,
		SlippageBps:           100,
		DistributionThreshold: 100,
		EmissionCeilingBps:    5_000,
	}, executor, bank, operatorOnly, nil)
	require.NoError(t, err)

	return distributor, bank, pool
}

func TestDistributorFullCycle(t *testing.T) {
	distributor, bank, _ := newDistributorHarness(t, 1_000)

	require.NoError(t, distributor.Deposit("alice", 700))
	require.NoError(t, distributor.Deposit("bob", 1_300))

	// Rewards reach the threshold, so new deposits are refused until they
	// have been distributed.
	require.NoError(t, bank.Mint(vaultAcct, rewardAsset, 150))
	assert.ErrorIs(t, distributor.Deposit("carol", 500), ledger.ErrDistributionRequired)

	// 150 rewards quote to 148 payout units; a ten percent fee leaves 134.
	distributed, err := distributor.Distribute()
	require.NoError(t, err)
	assert.Equal(t, uint64(134), distributed)

	// The pending balance is consumed, so deposits flow again.
	require.NoError(t, distributor.Deposit("carol", 500))

	owed, err := distributor.Claim("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(46), owed)

	owed, err = distributor.Claim("bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(87), owed)

	// Carol joined after the distribution and captured none of it.
	owed, err = distributor.Claim("carol")
	require.NoError(t, err)
	assert.Zero(t, owed)
}

func TestDistributorDistributeWithFarmBonus(t *testing.T) {
	distributor, bank, _ := newDistributorHarness(t, 1_000)

	require.NoError(t, distributor.Deposit("alice", 2_000))
	require.NoError(t, distributor.FundFarm(1_000))
	require.NoError(t, distributor.SetEmissionRate(operator, 2_000))

	require.NoError(t, bank.Mint(vaultAcct, rewardAsset, 150))

	// Realized 148, plus a 20 percent sponsor bonus of 29, minus the fee.
	distributed, err := distributor.Distribute()
	require.NoError(t, err)
	assert.Equal(t, uint64(160), distributed)

	state := distributor.VaultState()
	assert.Equal(t, uint64(971), state.FarmRemaining)
}

func TestDistributorSlippageFailureRollsBack(t *testing.T) {
	distributor, bank, pool := newDistributorHarness(t, 1_000)

	require.NoError(t, distributor.Deposit("alice", 2_000))
	require.NoError(t, bank.Mint(vaultAcct, rewardAsset, 150))

	// The pool delivers 3 percent short of its reported output, beyond the
	// 1 percent tolerance.
	pool.SetSkimBps(300)
	_, err := distributor.Distribute()
	assert.ErrorIs(t, err, amm.ErrSlippageExceeded)

	// The failed action left no trace in vault accounting.
	state := distributor.VaultState()
	assert.Zero(t, state.YieldPerUnit)
	assert.Equal(t, uint64(2_000), state.TotalStake)

	owed, err := distributor.Claim("alice")
	require.NoError(t, err)
	assert.Zero(t, owed)
}

func TestDistributorDistributeRequiresPendingRewards(t *testing.T) {
	distributor, _, _ := newDistributorHarness(t, 1_000)

	require.NoError(t, distributor.Deposit("alice", 1_000))
	_, err := distributor.Distribute()
	assert.ErrorIs(t, err, ledger.ErrZeroAmount)
}

func TestDistributorDistributeWithNoStake(t *testing.T) {
	distributor, bank, _ := newDistributorHarness(t, 1_000)

	require.NoError(t, bank.Mint(vaultAcct, rewardAsset, 150))
	_, err := distributor.Distribute()
	assert.ErrorIs(t, err, ledger.ErrInsufficientStake)

	// The rewards were not swapped: the pending balance survives untouched
	// and no payout was stranded on the vault account.
	pending, err := bank.Balance(vaultAcct, rewardAsset)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), pending)
	payout, err := bank.Balance(vaultAcct, payoutAsset)
	require.NoError(t, err)
	assert.Zero(t, payout)
}

func TestDistributorSetEmissionRateRequiresAuthorization(t *testing.T) {
	distributor, _, _ := newDistributorHarness(t, 1_000)

	assert.ErrorIs(t, distributor.SetEmissionRate("mallory", 1_000), ErrUnauthorized)
	assert.NoError(t, distributor.SetEmissionRate(operator, 1_000))
}

func TestDistributorWithdrawKeepsSettledYield(t *testing.T) {
	distributor, bank, _ := newDistributorHarness(t, 0)

	require.NoError(t, distributor.Deposit("alice", 1_000))
	require.NoError(t, bank.Mint(vaultAcct, rewardAsset, 150))

	distributed, err := distributor.Distribute()
	require.NoError(t, err)
	require.NoError(t, distributor.Withdraw("alice", 1_000))

	owed, err := distributor.Claim("alice")
	require.NoError(t, err)
	assert.Equal(t, distributed, owed)
}
