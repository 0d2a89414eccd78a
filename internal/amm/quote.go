/*

This file contains the quote engine: it reads the external pool's reserves and
fee and computes the expected constant-product swap output with the fee
deducted up front. Pool state is fetched fresh for every quote and never
cached.

*/

package amm

import (
	"errors"
	"fmt"

	"github.com/rarefi/yve/internal/fixedmath"
	"github.com/rarefi/yve/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrExternalStateUnreadable = errors.New("external pool state is unreadable")
	ErrZeroOutput              = errors.New("swap output is zero")
	ErrUnknownAsset            = errors.New("asset is not in the pool")
)

// PoolReader exposes the external AMM pool state. The boolean reports whether
// the pool state exists and is readable; callers must never assume presence.
type PoolReader interface {
	Pool() (types.PoolSnapshot, bool)
}

// QuoteEngine computes expected swap output from live pool state.
type QuoteEngine struct {
	pool PoolReader
}

// NewQuoteEngine creates a quote engine over the given pool reader.
func NewQuoteEngine(pool PoolReader) (*QuoteEngine, error) {
	if pool == nil {
		return nil, errors.New("pool reader cannot be nil")
	}
	return &QuoteEngine{pool: pool}, nil
}

// Quote returns the expected output of swapping inputAmount of the input
// asset through the pool: reserveOut * netInput / (reserveIn + netInput),
// where netInput has the pool fee already deducted.
func (q *QuoteEngine) Quote(input types.AssetID, inputAmount uint64) (uint64, error) {
	if inputAmount == 0 {
		return 0, ErrZeroOutput
	}

	snap, ok := q.pool.Pool()
	if !ok {
		return 0, errors.Join(ErrExternalStateUnreadable, errors.New("pool snapshot is absent"))
	}
	if snap.Reserve1 == 0 || snap.Reserve2 == 0 {
		return 0, errors.Join(ErrExternalStateUnreadable,
			fmt.Errorf("pool reports empty reserves: %d / %d", snap.Reserve1, snap.Reserve2))
	}
	if snap.FeeBps >= fixedmath.BpsDenom {
		return 0, errors.Join(ErrExternalStateUnreadable,
			fmt.Errorf("pool reports fee of %d bps", snap.FeeBps))
	}

	// The pool reports its first-listed asset id; the input side is whichever
	// reserve matches it.
	reserveIn, reserveOut := snap.Reserve1, snap.Reserve2
	switch input {
	case snap.Asset1:
		// Already oriented.
	case snap.Asset2:
		reserveIn, reserveOut = snap.Reserve2, snap.Reserve1
	default:
		return 0, errors.Join(ErrUnknownAsset, fmt.Errorf("asset %d not traded by pool", input))
	}

	netInput, err := fixedmath.MulDivFloor(inputAmount, fixedmath.BpsDenom-snap.FeeBps, fixedmath.BpsDenom)
	if err != nil {
		return 0, err
	}

	denom, err := fixedmath.CheckedAdd(reserveIn, netInput)
	if err != nil {
		return 0, err
	}

	expected, err := fixedmath.MulDivFloor(reserveOut, netInput, denom)
	if err != nil {
		return 0, err
	}
	if expected == 0 {
		return 0, errors.Join(ErrZeroOutput,
			fmt.Errorf("input of %d would buy nothing against reserves %d / %d", inputAmount, reserveIn, reserveOut))
	}

	return expected, nil
}
