package domain

import "time"

// OfferState is the state machine of a single time-boxed offer.
//
//	SENT -> VIEWED -> ACCEPTED | DECLINED
//	SENT | VIEWED -> EXPIRED (reaper) | CANCELED (sibling accepted)
type OfferState string

const (
	OfferSent     OfferState = "SENT"
	OfferViewed   OfferState = "VIEWED"
	OfferAccepted OfferState = "ACCEPTED"
	OfferDeclined OfferState = "DECLINED"
	OfferExpired  OfferState = "EXPIRED"
	OfferCanceled OfferState = "CANCELED"
)

// Pending reports whether the offer still awaits the master's answer.
func (s OfferState) Pending() bool {
	return s == OfferSent || s == OfferViewed
}

// Terminal reports whether the state can never change again.
func (s OfferState) Terminal() bool {
	return !s.Pending()
}

// Offer is one proposal of one order to one master, bounded by an SLA.
// At most one pending offer may exist per (order, master) pair, and at most
// one offer per order ever reaches ACCEPTED.
type Offer struct {
	ID          string // uuid
	OrderID     int64
	MasterID    int64
	Round       int
	State       OfferState
	SentAt      time.Time
	ExpiresAt   time.Time
	RespondedAt *time.Time
}

// Overdue reports whether the SLA has run out. A deadline exactly equal to
// now counts as expired.
func (o *Offer) Overdue(now time.Time) bool {
	return !o.ExpiresAt.After(now)
}

// AcceptableAt validates that the offer can transition to ACCEPTED at the
// given instant, returning the state-specific refusal otherwise.
func (o *Offer) AcceptableAt(now time.Time) error {
	switch o.State {
	case OfferSent, OfferViewed:
		if o.Overdue(now) {
			return ErrOfferExpired
		}
		return nil
	case OfferExpired:
		return ErrOfferExpired
	case OfferDeclined:
		return ErrOfferDeclined
	case OfferAccepted:
		return ErrOfferAlreadyAccepted
	default: // CANCELED: a sibling won
		return ErrOrderTaken
	}
}
