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

const stakeAsset = types.AssetID(3)

func newCompounderHarness(t *testing.T) (*Compounder, *sim.Bank) {
	t.Helper()

	bank := sim.NewBank()
	pool, err := sim.NewPool(types.PoolSnapshot{
		Asset1:   rewardAsset,
		Asset2:   stakeAsset,
		Reserve1: 1_000_000_000,
		Reserve2: 1_000_000_000,
		FeeBps:   30,
	}, bank)
	require.NoError(t, err)

	quotes, err := amm.NewQuoteEngine(pool)
	require.NoError(t, err)
	executor, err := amm.NewSwapExecutor(quotes, pool, bank, vaultAcct, 1_000)
	require.NoError(t, err)

	compounder, err := NewCompounder(CompounderConfig{
		Vault:                 types.VaultState{VaultID: 2},
		VaultAccount:          vaultAcct,
		RewardAsset:           rewardAsset,
		StakeAsset:            stakeAsset,
		SlippageBps:           100,
		DistributionThreshold: 100,
		EmissionCeilingBps:    5_000,
	}, executor, bank, operatorOnly, nil)
	require.NoError(t, err)

	return compounder, bank
}

func TestCompounderSharePriceGrowth(t *testing.T) {
	compounder, bank := newCompounderHarness(t)

	minted, err := compounder.Deposit("alice", 1_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), minted)

	price, err := compounder.SharePrice()
	require.NoError(t, err)
	assert.Equal(t, ledger.Scale, price)

	// 500 rewards quote to 497 stake units; with no fee all of it compounds.
	require.NoError(t, bank.Mint(vaultAcct, rewardAsset, 500))
	compounded, err := compounder.Compound()
	require.NoError(t, err)
	assert.Equal(t, uint64(497), compounded)

	price, err = compounder.SharePrice()
	require.NoError(t, err)
	assert.Equal(t, uint64(1_497_000_000_000), price)

	state := compounder.VaultState()
	assert.Equal(t, uint64(1_000), state.TotalShares, "compounding must not mint shares")
	assert.Equal(t, uint64(1_497), state.TotalValue)
}

func TestCompounderLateJoinerAndRedemption(t *testing.T) {
	compounder, bank := newCompounderHarness(t)

	_, err := compounder.Deposit("alice", 1_000)
	require.NoError(t, err)
	require.NoError(t, bank.Mint(vaultAcct, rewardAsset, 500))
	_, err = compounder.Compound()
	require.NoError(t, err)

	minted, err := compounder.Deposit("bob", 2_994)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000), minted)

	// Alice's redemption is untouched by Bob's entry.
	value, err := compounder.Withdraw("alice", 1_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_497), value)
}

func TestCompounderGateRefusesDepositsBeforeCompound(t *testing.T) {
	compounder, bank := newCompounderHarness(t)

	_, err := compounder.Deposit("alice", 1_000)
	require.NoError(t, err)

	require.NoError(t, bank.Mint(vaultAcct, rewardAsset, 150))
	_, err = compounder.Deposit("bob", 1_000)
	assert.ErrorIs(t, err, ledger.ErrDistributionRequired)

	_, err = compounder.Compound()
	require.NoError(t, err)

	_, err = compounder.Deposit("bob", 1_000)
	assert.NoError(t, err)
}

func TestCompounderCompoundRequiresShares(t *testing.T) {
	compounder, bank := newCompounderHarness(t)

	require.NoError(t, bank.Mint(vaultAcct, rewardAsset, 150))
	_, err := compounder.Compound()
	assert.ErrorIs(t, err, ledger.ErrInsufficientStake)

	// The failed compound left the vault untouched.
	state := compounder.VaultState()
	assert.Zero(t, state.TotalValue)

	// The rewards were not swapped: the pending balance survives untouched
	// and no stake units were stranded on the vault account.
	pending, err := bank.Balance(vaultAcct, rewardAsset)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), pending)
	stranded, err := bank.Balance(vaultAcct, stakeAsset)
	require.NoError(t, err)
	assert.Zero(t, stranded)
}

func TestCompounderCompoundRequiresPendingRewards(t *testing.T) {
	compounder, _ := newCompounderHarness(t)

	_, err := compounder.Deposit("alice", 1_000)
	require.NoError(t, err)
	_, err = compounder.Compound()
	assert.ErrorIs(t, err, ledger.ErrZeroAmount)
}

func TestCompounderSetEmissionRateRequiresAuthorization(t *testing.T) {
	compounder, _ := newCompounderHarness(t)

	assert.ErrorIs(t, compounder.SetEmissionRate("mallory", 1_000), ErrUnauthorized)
	assert.NoError(t, compounder.SetEmissionRate(operator, 1_000))
}
