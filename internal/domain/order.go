package domain

import "time"

// OrderStatus is the lifecycle state of an order. The distribution core only
// writes ASSIGNED and the escalation timestamps; every other transition is
// owned by external collaborators and must be tolerated here.
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "CREATED"
	OrderStatusSearching OrderStatus = "SEARCHING"
	OrderStatusDeferred  OrderStatus = "DEFERRED"
	OrderStatusGuarantee OrderStatus = "GUARANTEE"
	OrderStatusAssigned  OrderStatus = "ASSIGNED"
	OrderStatusEnRoute   OrderStatus = "EN_ROUTE"
	OrderStatusWorking   OrderStatus = "WORKING"
	OrderStatusPayment   OrderStatus = "PAYMENT"
	OrderStatusClosed    OrderStatus = "CLOSED"
	OrderStatusCanceled  OrderStatus = "CANCELED"
)

// Assignable reports whether an order in this status may still be claimed by
// a master. Anything else means a winner already exists or the order left the
// search pipeline.
func (s OrderStatus) Assignable() bool {
	switch s {
	case OrderStatusCreated, OrderStatusSearching, OrderStatusGuarantee, OrderStatusDeferred:
		return true
	}
	return false
}

// InProgress reports whether the order occupies a slot of the assigned
// master's capacity.
func (s OrderStatus) InProgress() bool {
	switch s {
	case OrderStatusAssigned, OrderStatusEnRoute, OrderStatusWorking, OrderStatusPayment:
		return true
	}
	return false
}

// OrderType distinguishes regular orders from guarantee (warranty revisit)
// orders, which are prioritised by the distribution queue.
type OrderType string

const (
	OrderTypeNormal    OrderType = "NORMAL"
	OrderTypeGuarantee OrderType = "GUARANTEE"
)

// Order is the snapshot of a field-service job as seen by the distribution
// core. The Orders collaborator owns the row; the core mutates only
// assignment, status and the four escalation timestamps.
type Order struct {
	ID                int64
	City              string
	District          string // empty means city-wide search
	NoDistrict        bool   // explicitly flagged for manual routing, never auto-matched
	Category          string
	Type              OrderType
	Status            OrderStatus
	AssignedMasterID  *int64
	PreferredMasterID *int64
	Version           int64
	TimeslotStart     *time.Time
	CreatedAt         time.Time

	// Escalation memory. notified_* is never set without the matching
	// escalated_*; all four are cleared when a new offer reaches SENT.
	EscalatedLogistAt *time.Time
	NotifiedLogistAt  *time.Time
	EscalatedAdminAt  *time.Time
	NotifiedAdminAt   *time.Time
}

// TimeslotElapsed reports whether the order's agreed visit window has already
// started, which bumps it up the distribution queue.
func (o *Order) TimeslotElapsed(now time.Time) bool {
	return o.TimeslotStart != nil && !o.TimeslotStart.After(now)
}
