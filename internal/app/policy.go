package app

import (
	"context"
	"fmt"

	"github.com/hylla/splitledger/internal/domain"
)

// AllocationRequest is what an AllocationPolicy inspects before a revision is written.
type AllocationRequest struct {
	WorkID      string
	RequesterID string
	OwnerID     string
	Entries     []domain.AllocationEntry
	Initial     bool
}

// AllocationPolicy gates which allocations a requester may create.
type AllocationPolicy interface {
	Allow(context.Context, AllocationRequest) error
}

// AllowAllPolicy accepts every allocation.
type AllowAllPolicy struct{}

// Allow implements AllocationPolicy.
func (AllowAllPolicy) Allow(context.Context, AllocationRequest) error {
	return nil
}

// FreeTierPolicy restricts non-paying requesters to a single owner split at the full rate.
type FreeTierPolicy struct {
	Tiers TierResolver
}

// Allow implements AllocationPolicy.
func (p FreeTierPolicy) Allow(ctx context.Context, req AllocationRequest) error {
	if p.Tiers == nil {
		return nil
	}
	paying, err := p.Tiers.IsPaying(ctx, req.RequesterID)
	if err != nil {
		return fmt.Errorf("resolve tier for %s: %w", req.RequesterID, err)
	}
	if paying {
		return nil
	}
	if len(req.Entries) == 1 && req.Entries[0].HolderID == req.OwnerID && req.Entries[0].Rate.Equal(domain.FullRate) {
		return nil
	}
	return fmt.Errorf("%w: free tier allows only a single owner split at rate 1", ErrPolicyRejected)
}
