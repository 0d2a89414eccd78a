/*

This file contains the external lending protocol interface and the rate
oracle that derives the deposit/receipt exchange rate from it. The rate is
required to be monotone: small dips inside the configured tolerance are
absorbed by holding the previous rate, anything larger is a fault.

*/

package lending

import (
	"errors"
	"fmt"

	"github.com/rarefi/yve/internal/fixedmath"
	"github.com/rarefi/yve/internal/logger"
)

// Error definitions for zero-tolerance error handling
var (
	ErrExternalStateUnreadable = errors.New("external lending state is unreadable")
	ErrRateRegression          = errors.New("lending rate decreased beyond tolerance")
)

// RatePrecision scales the derived exchange rate: a rate of RatePrecision
// means one receipt unit redeems for exactly one deposit unit.
const RatePrecision uint64 = 1_000_000_000_000

var rateLogger = logger.GetForComponent("rate_oracle")

// Protocol is the interface the external lending protocol presents. Deposit
// and Redeem execute as nested atomic sub-calls inside the enclosing action.
type Protocol interface {
	// State reports total deposited assets and circulating receipt units.
	// ok is false when the protocol state does not exist or cannot be read.
	State() (totalDeposits, circulatingReceipts uint64, ok bool)

	// Deposit places amount into the protocol and returns minted receipts.
	Deposit(amount uint64) (receipts uint64, err error)

	// Redeem burns receipts and returns the released amount.
	Redeem(receipts uint64) (amount uint64, err error)
}

// RateOracle derives the exchange rate from protocol state and enforces the
// regression tolerance against a caller-held previous observation.
type RateOracle struct {
	protocol     Protocol
	toleranceBps uint64
}

// NewRateOracle creates a rate oracle with the given regression tolerance.
func NewRateOracle(protocol Protocol, toleranceBps uint64) (*RateOracle, error) {
	if protocol == nil {
		return nil, errors.New("lending protocol cannot be nil")
	}
	if toleranceBps >= fixedmath.BpsDenom {
		return nil, fmt.Errorf("rate tolerance %d bps is not below %d", toleranceBps, fixedmath.BpsDenom)
	}
	return &RateOracle{protocol: protocol, toleranceBps: toleranceBps}, nil
}

// Rate reads the current exchange rate, totalDeposits * RatePrecision /
// circulatingReceipts, and checks it against the previous observation.
// A dip within tolerance returns the previous rate unchanged; a dip beyond
// tolerance fails with ErrRateRegression. Pass previous == 0 on first read.
func (o *RateOracle) Rate(previous uint64) (uint64, error) {
	deposits, receipts, ok := o.protocol.State()
	if !ok {
		return 0, errors.Join(ErrExternalStateUnreadable, errors.New("protocol state is absent"))
	}
	if receipts == 0 {
		return 0, errors.Join(ErrExternalStateUnreadable, errors.New("protocol reports zero circulating receipts"))
	}

	rate, err := fixedmath.MulDivFloor(deposits, RatePrecision, receipts)
	if err != nil {
		return 0, err
	}

	if rate >= previous {
		return rate, nil
	}

	drop := previous - rate
	allowed, err := fixedmath.MulDivFloor(previous, o.toleranceBps, fixedmath.BpsDenom)
	if err != nil {
		return 0, err
	}
	if drop > allowed {
		return 0, errors.Join(ErrRateRegression,
			fmt.Errorf("rate fell from %d to %d, tolerance allows %d", previous, rate, allowed))
	}

	rateLogger.Debug().
		Uint64("previous", previous).
		Uint64("observed", rate).
		Uint64("drop", drop).
		Msg("Rate dip within tolerance, holding previous rate")

	return previous, nil
}
