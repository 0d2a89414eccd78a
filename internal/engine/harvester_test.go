package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rarefi/yve/internal/amm"
	"github.com/rarefi/yve/internal/lending"
	"github.com/rarefi/yve/internal/sim"
	"github.com/rarefi/yve/internal/types"
)

func newHarvesterHarness(t *testing.T) (*Harvester, *sim.Lending, *sim.Pool) {
	t.Helper()

	bank := sim.NewBank()
	pool, err := sim.NewPool(types.PoolSnapshot{
		Asset1:   rewardAsset,
		Asset2:   payoutAsset,
		Reserve1: 10_000_000,
		Reserve2: 10_000_000,
		FeeBps:   30,
	}, bank)
	require.NoError(t, err)

	market := sim.NewLending()
	market.SettleRedemptionsTo(bank, vaultAcct, rewardAsset)
	_, err = market.Deposit(1_000_000)
	require.NoError(t, err)

	quotes, err := amm.NewQuoteEngine(pool)
	require.NoError(t, err)
	executor, err := amm.NewSwapExecutor(quotes, pool, bank, vaultAcct, 1_000)
	require.NoError(t, err)
	oracle, err := lending.NewRateOracle(market, 10)
	require.NoError(t, err)

	harvester, err := NewHarvester(HarvesterConfig{
		Vault:              types.VaultState{VaultID: 3},
		VaultAccount:       vaultAcct,
		UnderlyingAsset:    rewardAsset,
		PayoutAsset:        payoutAsset,
		SlippageBps:        100,
		HarvestMinimum:     1_000,
		EmissionCeilingBps: 5_000,
	}, market, oracle, executor, operatorOnly, nil)
	require.NoError(t, err)

	return harvester, market, pool
}

func TestHarvesterFullCycle(t *testing.T) {
	harvester, market, _ := newHarvesterHarness(t)

	require.NoError(t, harvester.Deposit("alice", 1_000_000))
	state := harvester.VaultState()
	assert.Equal(t, uint64(1_000_000), state.Receipts)

	// One percent interest accrues to the market.
	require.NoError(t, market.Accrue(20_000))

	// Accrual is visible but not yet claimable.
	claimable, err := harvester.Claim("alice")
	require.NoError(t, err)
	assert.Zero(t, claimable)
	pos, ok := harvester.Position("alice")
	require.True(t, ok)
	assert.Equal(t, uint64(10_000), pos.Unrealized)

	// The harvest redeems the accrued slice (9900 receipts releasing 9999
	// underlying) and converts it to 9959 payout units.
	realized, err := harvester.Harvest(operator)
	require.NoError(t, err)
	assert.Equal(t, uint64(9_959), realized)

	state = harvester.VaultState()
	assert.Equal(t, uint64(990_100), state.Receipts)

	// Conversion reaches the position lazily on its next settlement.
	claimable, err = harvester.Claim("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(9_959), claimable)

	// Growth after the harvest waits for the next one.
	require.NoError(t, market.Accrue(20_000))
	claimable, err = harvester.Claim("alice")
	require.NoError(t, err)
	assert.Zero(t, claimable)
	pos, ok = harvester.Position("alice")
	require.True(t, ok)
	assert.Positive(t, pos.Unrealized)
}

func TestHarvesterWithdrawReleasesPrincipal(t *testing.T) {
	harvester, market, _ := newHarvesterHarness(t)

	require.NoError(t, harvester.Deposit("alice", 1_000_000))
	require.NoError(t, market.Accrue(20_000))

	require.NoError(t, harvester.Withdraw("alice", 400_000))

	state := harvester.VaultState()
	assert.Equal(t, uint64(600_000), state.TotalStake)
	assert.Equal(t, uint64(603_960), state.Receipts)
}

func TestHarvesterExitForfeitsUnconvertedAccrual(t *testing.T) {
	harvester, market, _ := newHarvesterHarness(t)

	require.NoError(t, harvester.Deposit("alice", 1_000_000))
	require.NoError(t, market.Accrue(20_000))

	principal, claimable, err := harvester.Exit("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), principal)
	assert.Zero(t, claimable, "unconverted accrual is forfeited, not paid")

	_, ok := harvester.Position("alice")
	assert.False(t, ok)
	assert.Zero(t, harvester.VaultState().TotalStake)
}

func TestHarvesterBelowMinimumThreshold(t *testing.T) {
	harvester, market, _ := newHarvesterHarness(t)

	require.NoError(t, harvester.Deposit("alice", 1_000_000))

	_, err := harvester.Harvest(operator)
	assert.ErrorIs(t, err, ErrBelowMinimumThreshold, "no accrual means nothing to harvest")

	// 500 units of accrued value is under the 1000-unit minimum.
	require.NoError(t, market.Accrue(1_000))
	_, err = harvester.Harvest(operator)
	assert.ErrorIs(t, err, ErrBelowMinimumThreshold)
}

func TestHarvesterHarvestRequiresAuthorization(t *testing.T) {
	harvester, market, _ := newHarvesterHarness(t)

	require.NoError(t, harvester.Deposit("alice", 1_000_000))
	require.NoError(t, market.Accrue(20_000))

	_, err := harvester.Harvest("mallory")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestHarvesterRateRegressionHaltsAccounting(t *testing.T) {
	harvester, market, _ := newHarvesterHarness(t)

	require.NoError(t, harvester.Deposit("alice", 1_000_000))

	// A ten percent loss of deposits is far beyond the 10 bps tolerance.
	require.NoError(t, market.Slash(200_000))

	_, err := harvester.Claim("alice")
	assert.ErrorIs(t, err, lending.ErrRateRegression)
	assert.ErrorIs(t, harvester.Deposit("bob", 1_000), lending.ErrRateRegression)

	// Halted accounting means untouched accounting.
	state := harvester.VaultState()
	assert.Equal(t, uint64(1_000_000), state.TotalStake)
}

func TestHarvesterUnreadableProtocolState(t *testing.T) {
	harvester, market, _ := newHarvesterHarness(t)

	require.NoError(t, harvester.Deposit("alice", 1_000_000))
	market.SetAvailable(false)

	assert.ErrorIs(t, harvester.Deposit("bob", 1_000), lending.ErrExternalStateUnreadable)
}

func TestHarvesterAbortedHarvestRestoresMarketPosition(t *testing.T) {
	harvester, market, pool := newHarvesterHarness(t)

	require.NoError(t, harvester.Deposit("alice", 1_000_000))
	require.NoError(t, market.Accrue(20_000))

	// The pool delivers 3 percent short of its reported output, beyond the
	// 1 percent tolerance.
	pool.SetSkimBps(300)
	_, err := harvester.Harvest(operator)
	assert.ErrorIs(t, err, amm.ErrSlippageExceeded)

	// The redeemed slice went back into the market, so the receipt count the
	// rollback restored is still covered by circulating receipts.
	state := harvester.VaultState()
	assert.Equal(t, uint64(1_000_000), state.Receipts)
	_, circulating, ok := market.State()
	require.True(t, ok)
	assert.LessOrEqual(t, state.Receipts, circulating)

	// Once the venue behaves again the accrued slice is still harvestable.
	pool.SetSkimBps(0)
	realized, err := harvester.Harvest(operator)
	require.NoError(t, err)
	assert.Positive(t, realized)
}

func TestHarvesterDepositorAfterAccrualEarnsNothingRetroactively(t *testing.T) {
	harvester, market, _ := newHarvesterHarness(t)

	require.NoError(t, harvester.Deposit("alice", 1_000_000))
	require.NoError(t, market.Accrue(20_000))

	require.NoError(t, harvester.Deposit("bob", 1_000_000))
	pos, ok := harvester.Position("bob")
	require.True(t, ok)
	assert.Zero(t, pos.Unrealized)
}
