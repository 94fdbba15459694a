package domain

import (
	"errors"
	"fmt"
)

// Contention and validation failures of the acceptance path. All of them are
// non-fatal: the caller gets a specific reason and nothing is retried by the
// core.
var (
	// ErrOfferUnavailable means the offer row is locked by a concurrent
	// caller or does not belong to the requesting master.
	ErrOfferUnavailable = errors.New("offer unavailable")
	// ErrOrderUnavailable means the order row is locked: a concurrent winner
	// is already proceeding.
	ErrOrderUnavailable = errors.New("order unavailable")
	// ErrOrderTaken means the order is no longer assignable.
	ErrOrderTaken = errors.New("order already taken")

	ErrOfferExpired         = errors.New("offer expired")
	ErrOfferDeclined        = errors.New("offer already declined")
	ErrOfferAlreadyAccepted = errors.New("offer already accepted")
)

// UnmappedCategoryError is a validation failure: the order's category has no
// configured skill. The order is skipped for the tick, never crashed on.
type UnmappedCategoryError struct {
	Category string
}

func (e *UnmappedCategoryError) Error() string {
	return fmt.Sprintf("no skill mapped for category %q", e.Category)
}

// IsContention reports whether err is one of the acceptance-path refusals
// that a master-facing caller should see as a plain rejection rather than an
// infrastructure failure.
func IsContention(err error) bool {
	return errors.Is(err, ErrOfferUnavailable) ||
		errors.Is(err, ErrOrderUnavailable) ||
		errors.Is(err, ErrOrderTaken) ||
		errors.Is(err, ErrOfferExpired) ||
		errors.Is(err, ErrOfferDeclined) ||
		errors.Is(err, ErrOfferAlreadyAccepted)
}
