package domain

import (
	"context"
	"time"
)

// OrderRepository is the distribution core's window onto the orders table.
type OrderRepository interface {
	// DistributionQueue fetches up to limit undistributed orders in priority
	// order: escalated-to-admin first, then guarantee orders, then elapsed
	// timeslots, then escalated-to-logist, then oldest created_at.
	DistributionQueue(ctx context.Context, limit int) ([]Order, error)

	// MarkEscalatedLogist stamps escalated_logist_at if it is still null.
	MarkEscalatedLogist(ctx context.Context, orderID int64, now time.Time) error
	// MarkEscalatedAdmin stamps escalated_admin_at if it is still null.
	MarkEscalatedAdmin(ctx context.Context, orderID int64, now time.Time) error

	// ClaimLogistNotice conditionally stamps notified_logist_at and reports
	// whether this caller won the claim. Combined with the tick lock it is
	// the exactly-once gate for the logist notification.
	ClaimLogistNotice(ctx context.Context, orderID int64, now time.Time) (bool, error)
	// ClaimAdminNotice is the same gate for the admin notification.
	ClaimAdminNotice(ctx context.Context, orderID int64, now time.Time) (bool, error)
}

// MasterRepository exposes Directory snapshots of technicians.
type MasterRepository interface {
	// ListByCity returns every master registered in the city, including
	// districts, skills and the derived active-order count.
	ListByCity(ctx context.Context, city string) ([]Master, error)
}

// OfferRepository owns the offers table.
type OfferRepository interface {
	// ExpireOverdue flips the order's overdue pending offers to EXPIRED.
	// Idempotent; returns the number of offers swept.
	ExpireOverdue(ctx context.Context, orderID int64, now time.Time, sla time.Duration) (int64, error)
	// CurrentRound returns max(round) over the order's offers, 0 when none.
	CurrentRound(ctx context.Context, orderID int64) (int, error)
	// HasPending reports whether a SENT or VIEWED offer exists for the order.
	HasPending(ctx context.Context, orderID int64) (bool, error)
	// OfferedMasters returns the ids of every master ever offered this
	// order, in any state. Used to enforce one offer per (order, master).
	OfferedMasters(ctx context.Context, orderID int64) (map[int64]struct{}, error)
	// Create inserts a new SENT offer and, in the same transaction, clears
	// the order's four escalation timestamps (regained momentum forgives
	// prior stalls).
	Create(ctx context.Context, offer *Offer) error
}

// AcceptResult describes a committed assignment, with the inputs the metric
// recorder needs.
type AcceptResult struct {
	OrderID         int64
	MasterID        int64
	Round           int
	OffersTotal     int // offers created for the order across all rounds
	SiblingsCancel  int
	OrderCreatedAt  time.Time
	Preferred       bool
	EscalatedLogist bool
	EscalatedAdmin  bool
}

// AcceptanceStore runs the race-free acceptance transaction: pessimistic row
// locks (FOR UPDATE SKIP LOCKED) to fail fast under contention, plus a final
// optimistic version check on the assignment update.
type AcceptanceStore interface {
	// AcceptOffer atomically assigns the order to the master, flips the
	// winning offer to ACCEPTED, cancels pending siblings and appends a
	// status-history record. Contention surfaces as the sentinel errors in
	// errors.go; the core never retries.
	AcceptOffer(ctx context.Context, offerID string, masterID int64, now time.Time) (*AcceptResult, error)
	// DeclineOffer conditionally flips the offer to DECLINED. A zero-row
	// update is an already-resolved no-op and returns false.
	DeclineOffer(ctx context.Context, offerID string, masterID int64, now time.Time) (bool, error)
}

// SettingsRepository is the persistent key-value store behind the cached
// tunables provider.
type SettingsRepository interface {
	Load(ctx context.Context) (Tunables, error)
	// Put upserts one setting. Administrative writes go through here and
	// must be followed by a cache invalidation.
	Put(ctx context.Context, key, value string) error
}

// MetricRepository appends assignment facts. Best-effort: failures are
// logged, never propagated into the acceptance path.
type MetricRepository interface {
	Append(ctx context.Context, m *DistributionMetric) error
}

// Recipient is a resolved notification target.
type Recipient struct {
	ChatID int64
	Role   string // "master", "logist" or "admin"
}

// StaffDirectory resolves escalation recipients for a city. Global admins
// are always included regardless of city; the result is deduplicated.
type StaffDirectory interface {
	EscalationRecipients(ctx context.Context, city string, adminsOnly bool) ([]Recipient, error)
}

// NotificationPort delivers outbound events. Strictly best-effort: a failed
// Send is logged by the caller and never rolls back or blocks core logic.
type NotificationPort interface {
	Send(ctx context.Context, to Recipient, event string, payload any) error
}

// Outbound event names published through the notification port.
const (
	EventOfferNew         = "offer.new"
	EventEscalationLogist = "escalation.logist"
	EventEscalationAdmin  = "escalation.admin"
)
