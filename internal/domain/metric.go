package domain

import "time"

// DistributionMetric is an append-only, write-once fact recorded after a
// successful assignment. Observability only: a lost metric never fails the
// assignment that produced it.
type DistributionMetric struct {
	OrderID         int64
	MasterID        int64
	Round           int           // round the winning offer belonged to
	CandidatesSeen  int           // offers created for the order across all rounds
	TimeToAssign    time.Duration // order creation to assignment commit
	Preferred       bool          // winner was the order's preferred master
	EscalatedLogist bool
	EscalatedAdmin  bool
	RecordedAt      time.Time
}
