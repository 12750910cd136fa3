package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RatePlaces is the number of fractional digits a split rate may carry.
const RatePlaces = 4

// FullRate is the rate sum every revision must reach.
var FullRate = decimal.NewFromInt(1)

// AllocationEntry requests one split in a new revision. Exactly one of HolderID and
// Invite identifies the party; a known holder may still carry contact details.
type AllocationEntry struct {
	HolderID string
	Invite   InviteInfo
	Rate     decimal.Decimal
}

// ParseRate parses a decimal rate and validates its range and precision.
func ParseRate(raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidRate, raw)
	}
	if err := ValidateRate(rate); err != nil {
		return decimal.Decimal{}, err
	}
	return rate, nil
}

// ValidateRate checks 0 < rate <= 1 with at most RatePlaces fractional digits.
func ValidateRate(rate decimal.Decimal) error {
	if !rate.IsPositive() || rate.GreaterThan(FullRate) {
		return fmt.Errorf("%w: %s must be in (0, 1]", ErrInvalidRate, rate.String())
	}
	if !rate.Equal(rate.Truncate(RatePlaces)) {
		return fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidRate, rate.String(), RatePlaces)
	}
	return nil
}

// SumRates adds rates exactly.
func SumRates(rates ...decimal.Decimal) decimal.Decimal {
	return decimal.Sum(decimal.Zero, rates...)
}

// ValidateAllocation checks a requested allocation before anything is written.
// ownerID is the resolved owner identity, which must appear exactly once.
func ValidateAllocation(entries []AllocationEntry, ownerID string) error {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return ErrInvalidID
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: allocation has no entries", ErrInvalidEntry)
	}

	rates := make([]decimal.Decimal, 0, len(entries))
	seen := map[string]struct{}{}
	owners := 0
	for idx, entry := range entries {
		holder := strings.TrimSpace(entry.HolderID)
		if holder == "" && entry.Invite.IsZero() {
			return fmt.Errorf("%w: entry %d names neither a holder nor an invitee", ErrInvalidEntry, idx)
		}
		if err := ValidateRate(entry.Rate); err != nil {
			return fmt.Errorf("entry %d: %w", idx, err)
		}
		rates = append(rates, entry.Rate)
		if holder == "" {
			continue
		}
		if _, ok := seen[holder]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateHolder, holder)
		}
		seen[holder] = struct{}{}
		if holder == ownerID {
			owners++
		}
	}
	if owners == 0 {
		return fmt.Errorf("%w: %s", ErrMissingOwner, ownerID)
	}
	if sum := SumRates(rates...); !sum.Equal(FullRate) {
		return fmt.Errorf("%w: got %s", ErrRateSum, sum.String())
	}
	return nil
}
