/*

This file contains the slippage-bounded swap executor. The realized output is
measured as the vault account's balance delta around the external swap call,
never taken from a value the pool reports about itself.

*/

package amm

import (
	"errors"
	"fmt"

	"github.com/rarefi/yve/internal/fixedmath"
	"github.com/rarefi/yve/internal/logger"
	"github.com/rarefi/yve/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrSlippageExceeded = errors.New("realized swap output below minimum")
	ErrSlippageBound    = errors.New("slippage tolerance exceeds configured ceiling")
)

var swapLogger = logger.GetForComponent("swap_executor")

// Swapper invokes the external pool swap. The call is a nested atomic
// sub-call: on error the enclosing action aborts.
type Swapper interface {
	Swap(from types.AccountID, input types.AssetID, inputAmount uint64, output types.AssetID, minOut uint64) error
}

// BalanceReader reads asset balances held by an account.
type BalanceReader interface {
	Balance(account types.AccountID, asset types.AssetID) (uint64, error)
}

// SwapExecutor converts an asset through the external pool, enforcing a
// slippage bound derived from the quote engine's expected output.
type SwapExecutor struct {
	quotes   *QuoteEngine
	swapper  Swapper
	balances BalanceReader

	vault          types.AccountID
	maxSlippageBps uint64
}

// NewSwapExecutor wires a swap executor for the given vault account.
// maxSlippageBps is the configured ceiling on per-call slippage tolerances.
func NewSwapExecutor(quotes *QuoteEngine, swapper Swapper, balances BalanceReader, vault types.AccountID, maxSlippageBps uint64) (*SwapExecutor, error) {
	if quotes == nil {
		return nil, errors.New("quote engine cannot be nil")
	}
	if swapper == nil {
		return nil, errors.New("swapper cannot be nil")
	}
	if balances == nil {
		return nil, errors.New("balance reader cannot be nil")
	}
	if vault == "" {
		return nil, errors.New("vault account cannot be empty")
	}
	if maxSlippageBps > fixedmath.BpsDenom {
		return nil, fmt.Errorf("slippage ceiling %d exceeds %d bps", maxSlippageBps, fixedmath.BpsDenom)
	}

	return &SwapExecutor{
		quotes:         quotes,
		swapper:        swapper,
		balances:       balances,
		vault:          vault,
		maxSlippageBps: maxSlippageBps,
	}, nil
}

// Execute swaps inputAmount of input for output, rejecting the trade when the
// realized output falls short of the quoted output minus slippageBps. Returns
// the realized output.
func (e *SwapExecutor) Execute(input types.AssetID, inputAmount uint64, output types.AssetID, slippageBps uint64) (uint64, error) {
	if slippageBps > e.maxSlippageBps {
		return 0, errors.Join(ErrSlippageBound,
			fmt.Errorf("requested %d bps, ceiling is %d bps", slippageBps, e.maxSlippageBps))
	}

	expected, err := e.quotes.Quote(input, inputAmount)
	if err != nil {
		return 0, err
	}

	minOut, err := fixedmath.MulDivFloor(expected, fixedmath.BpsDenom-slippageBps, fixedmath.BpsDenom)
	if err != nil {
		return 0, err
	}

	before, err := e.balances.Balance(e.vault, output)
	if err != nil {
		return 0, errors.Join(ErrExternalStateUnreadable, err)
	}

	if err := e.swapper.Swap(e.vault, input, inputAmount, output, minOut); err != nil {
		return 0, err
	}

	after, err := e.balances.Balance(e.vault, output)
	if err != nil {
		return 0, errors.Join(ErrExternalStateUnreadable, err)
	}

	// The balance delta is the source of truth, not whatever the pool claims
	// it paid out.
	realized, err := fixedmath.CheckedSub(after, before)
	if err != nil {
		return 0, err
	}
	if realized < minOut {
		return 0, errors.Join(ErrSlippageExceeded,
			fmt.Errorf("realized %d, minimum %d (expected %d at %d bps tolerance)", realized, minOut, expected, slippageBps))
	}

	swapLogger.Debug().
		Uint64("inputAmount", inputAmount).
		Uint64("expected", expected).
		Uint64("minOut", minOut).
		Uint64("realized", realized).
		Msg("Swap executed within slippage bound")

	return realized, nil
}
