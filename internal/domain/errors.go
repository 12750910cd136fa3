package domain

import "errors"

var (
	ErrInvalidID       = errors.New("invalid id")
	ErrInvalidRate     = errors.New("invalid rate")
	ErrRateSum         = errors.New("split rates must sum to exactly 1")
	ErrDuplicateHolder = errors.New("duplicate holder in revision")
	ErrMultipleOwners  = errors.New("more than one owner split")
	ErrMissingOwner    = errors.New("owner split is missing")
	ErrInvalidEntry    = errors.New("invalid allocation entry")
	ErrInvalidStatus   = errors.New("invalid status")
)

// validationErrors lists errors rejected synchronously before anything is written.
var validationErrors = []error{
	ErrInvalidID,
	ErrInvalidRate,
	ErrRateSum,
	ErrDuplicateHolder,
	ErrMultipleOwners,
	ErrMissingOwner,
	ErrInvalidEntry,
}

// IsValidation reports whether err belongs to the allocation validation family.
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
