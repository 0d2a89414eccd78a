package sim

import (
	"fmt"
	"sync"

	"github.com/rarefi/yve/internal/fixedmath"
	"github.com/rarefi/yve/internal/types"
)

// Pool is a two-asset constant-product venue settling through a Bank.
// SetSkimBps makes the pool deliver less than the output it reports, which
// exercises the balance-delta check in the swap executor.
type Pool struct {
	mu        sync.Mutex
	snapshot  types.PoolSnapshot
	bank      *Bank
	skimBps   uint64
	available bool
}

// NewPool creates a pool over the given reserves.
func NewPool(snapshot types.PoolSnapshot, bank *Bank) (*Pool, error) {
	if bank == nil {
		return nil, fmt.Errorf("bank cannot be nil")
	}
	if snapshot.Reserve1 == 0 || snapshot.Reserve2 == 0 {
		return nil, fmt.Errorf("pool reserves cannot be zero")
	}
	if snapshot.Asset1 == snapshot.Asset2 {
		return nil, fmt.Errorf("pool assets must differ")
	}
	return &Pool{snapshot: snapshot, bank: bank, available: true}, nil
}

// Pool reports the current reserves. ok is false when the venue is down.
func (p *Pool) Pool() (types.PoolSnapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot, p.available
}

// SetAvailable toggles whether the venue is reachable.
func (p *Pool) SetAvailable(available bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available = available
}

// SetSkimBps makes subsequent swaps deliver bps less than the computed
// output. The pool still checks minOut against the unskimmed output, so the
// shortfall is only visible to callers that measure their own balance.
func (p *Pool) SetSkimBps(bps uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.skimBps = bps
}

// Swap executes a constant-product trade, debiting the input and crediting
// the output through the bank.
func (p *Pool) Swap(from types.AccountID, input types.AssetID, inputAmount uint64, output types.AssetID, minOut uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.available {
		return ErrProtocolUnavailable
	}
	if inputAmount == 0 {
		return fmt.Errorf("swap input cannot be zero")
	}

	reserveIn, reserveOut := p.snapshot.Reserve1, p.snapshot.Reserve2
	switch {
	case input == p.snapshot.Asset1 && output == p.snapshot.Asset2:
	case input == p.snapshot.Asset2 && output == p.snapshot.Asset1:
		reserveIn, reserveOut = reserveOut, reserveIn
	default:
		return fmt.Errorf("pool does not trade %d for %d", input, output)
	}

	netInput, err := fixedmath.MulDivFloor(inputAmount, fixedmath.BpsDenom-p.snapshot.FeeBps, fixedmath.BpsDenom)
	if err != nil {
		return err
	}
	newReserveIn, err := fixedmath.CheckedAdd(reserveIn, netInput)
	if err != nil {
		return err
	}
	out, err := fixedmath.MulDivFloor(reserveOut, netInput, newReserveIn)
	if err != nil {
		return err
	}
	if out < minOut {
		return fmt.Errorf("pool output %d below requested minimum %d", out, minOut)
	}

	delivered := out
	if p.skimBps > 0 {
		skim, err := fixedmath.MulDivFloor(out, p.skimBps, fixedmath.BpsDenom)
		if err != nil {
			return err
		}
		delivered = out - skim
	}

	if err := p.bank.Burn(from, input, inputAmount); err != nil {
		return err
	}
	if err := p.bank.Mint(from, output, delivered); err != nil {
		return err
	}

	if input == p.snapshot.Asset1 {
		p.snapshot.Reserve1 += inputAmount
		p.snapshot.Reserve2 -= delivered
	} else {
		p.snapshot.Reserve2 += inputAmount
		p.snapshot.Reserve1 -= delivered
	}
	return nil
}
