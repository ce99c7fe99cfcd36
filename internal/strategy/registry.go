package strategy

import (
	"context"
	"fmt"
	"log"
	"time"

	"theta_trading/internal/models"
)

// Capability is one pluggable strategy arm: given a snapshot it may
// propose a trade. Returning (nil, nil) means "no signal this cycle".
// Implementations are black boxes to the engine; their trading logic is
// not part of this contract.
type Capability interface {
	Name() string
	Evaluate(ctx context.Context, snap *models.MarketSnapshot) (*models.Signal, error)
}

// Registry is a fixed-size arm table indexed by arm id. The size is set
// at construction and never changes; the allocation policy's action
// space is defined by it.
type Registry struct {
	arms []Capability
}

// NewRegistry creates a registry with n empty slots.
func NewRegistry(n int) *Registry {
	return &Registry{arms: make([]Capability, n)}
}

// Register installs a capability at the given arm index.
func (r *Registry) Register(arm int, c Capability) error {
	if arm < 0 || arm >= len(r.arms) {
		return fmt.Errorf("strategy: arm %d out of range [0,%d)", arm, len(r.arms))
	}
	r.arms[arm] = c
	return nil
}

// Len returns the arm count.
func (r *Registry) Len() int { return len(r.arms) }

// Evaluate invokes one arm under a hard timeout. A slow, failing or
// panicking capability yields "no signal" for this cycle; it is never
// retried within the cycle. Every failure is logged with the arm id.
func (r *Registry) Evaluate(ctx context.Context, arm int, snap *models.MarketSnapshot, timeout time.Duration) *models.Signal {
	if arm < 0 || arm >= len(r.arms) || r.arms[arm] == nil {
		log.Printf("[strategy] arm=%d has no registered capability", arm)
		return nil
	}
	capability := r.arms[arm]

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		sig *models.Signal
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- result{err: fmt.Errorf("panic: %v", rec)}
			}
		}()
		sig, err := capability.Evaluate(cctx, snap)
		ch <- result{sig: sig, err: err}
	}()

	select {
	case <-cctx.Done():
		log.Printf("[strategy] arm=%d (%s) timed out after %s, treating as no signal", arm, capability.Name(), timeout)
		return nil
	case res := <-ch:
		if res.err != nil {
			log.Printf("[strategy] arm=%d (%s) evaluation failed: %v", arm, capability.Name(), res.err)
			return nil
		}
		if res.sig != nil {
			res.sig.Arm = arm
			if err := res.sig.Validate(); err != nil {
				log.Printf("[strategy] arm=%d (%s) produced invalid signal: %v", arm, capability.Name(), err)
				return nil
			}
		}
		return res.sig
	}
}
