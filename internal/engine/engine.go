/*

This package contains the per-model vault engines. Each engine owns the
canonical vault record and position map, and executes every action against a
working copy that is committed only when the whole action succeeds; a failure
anywhere, including inside a nested external call, leaves the ledger exactly
as it was. Committed state is mirrored to the checkpoint store.

*/

package engine

import (
	"errors"

	"github.com/rarefi/yve/internal/fixedmath"
	"github.com/rarefi/yve/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrUnauthorized          = errors.New("caller is not authorized")
	ErrBelowMinimumThreshold = errors.New("amount below minimum threshold")
)

// AuthFunc answers whether a caller may invoke a restricted action. The
// allow-list itself lives with the host platform; the engines consume only
// the boolean.
type AuthFunc func(caller types.AccountID) bool

// Store mirrors committed ledger state to durable storage. Engines treat it
// as a best-effort mirror: the in-process ledger is the source of truth for
// the lifetime of the action.
type Store interface {
	SaveVault(vault types.VaultState, positions map[types.AccountID]*types.UserPosition) error
	RecordHarvest(record types.HarvestRecord) error
}

// splitFee deducts the operator's performance cut from converted proceeds.
func splitFee(total, feeBps uint64) (net, fee uint64, err error) {
	fee, err = fixedmath.MulDivFloor(total, feeBps, fixedmath.BpsDenom)
	if err != nil {
		return 0, 0, err
	}
	return total - fee, fee, nil
}
