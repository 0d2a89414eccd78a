/*

This package contains the three yield-accounting ledgers (pull accumulator,
auto-compounding shares, two-stage harvest), the sponsor bonus pool and the
deposit gate. Ledgers mutate the vault record and position map they are
constructed over; the engine owns atomicity by running each action against a
working copy and committing it only on success.

*/

package ledger

import (
	"errors"

	"github.com/rarefi/yve/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrZeroAmount           = errors.New("amount is zero")
	ErrInsufficientStake    = errors.New("stake is insufficient")
	ErrUnknownPosition      = errors.New("no position for account")
	ErrDistributionRequired = errors.New("pending yield must be distributed before depositing")
	ErrEmissionOutOfRange   = errors.New("emission rate outside configured bounds")
)

// Scale is the fixed-point multiplier for yield-per-unit accumulators and
// harvest payout ratios.
const Scale uint64 = 1_000_000_000_000

// ClonePositions deep-copies a position map for copy-on-write commits.
func ClonePositions(positions map[types.AccountID]*types.UserPosition) map[types.AccountID]*types.UserPosition {
	out := make(map[types.AccountID]*types.UserPosition, len(positions))
	for account, pos := range positions {
		copied := *pos
		out[account] = &copied
	}
	return out
}
