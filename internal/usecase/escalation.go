package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dattelon/field-service-sub000/internal/domain"
	"github.com/Dattelon/field-service-sub000/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// EscalationService hands stuck orders to humans: logists first, admins once
// the logist escalation ages past the configured threshold. Notifications are
// exactly-once per stage, gated by a conditional update under the tick lock.
// The state is four nullable timestamps on the order; a new SENT offer clears
// all of them (reset is done by the broadcaster, not here).
type EscalationService struct {
	orders   domain.OrderRepository
	staff    domain.StaffDirectory
	notifier domain.NotificationPort
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewEscalationService wires the escalation path.
func NewEscalationService(orders domain.OrderRepository, staff domain.StaffDirectory, notifier domain.NotificationPort, logger *slog.Logger) *EscalationService {
	return &EscalationService{
		orders:   orders,
		staff:    staff,
		notifier: notifier,
		logger:   logger.With("component", "escalation"),
		tracer:   otel.Tracer("field-service-escalation"),
	}
}

// Escalate advances the order's escalation state for this tick. Called when
// no offer could be broadcast (no candidates, or rounds exhausted). Mutates
// the passed order snapshot so the caller sees the stamps it set.
func (e *EscalationService) Escalate(ctx context.Context, order *domain.Order, tun domain.Tunables, now time.Time) error {
	ctx, span := e.tracer.Start(ctx, "escalation.Escalate",
		trace.WithAttributes(attribute.Int64("order.id", order.ID)))
	defer span.End()

	if order.EscalatedLogistAt == nil {
		if err := e.orders.MarkEscalatedLogist(ctx, order.ID, now); err != nil {
			return fmt.Errorf("mark escalated to logist: %w", err)
		}
		t := now
		order.EscalatedLogistAt = &t
		e.logger.Info("order escalated to logist", "order_id", order.ID, "city", order.City)
	}

	if order.NotifiedLogistAt == nil {
		claimed, err := e.orders.ClaimLogistNotice(ctx, order.ID, now)
		if err != nil {
			return fmt.Errorf("claim logist notice: %w", err)
		}
		if claimed {
			t := now
			order.NotifiedLogistAt = &t
			e.notify(ctx, order, domain.EventEscalationLogist, false)
			metrics.EscalationsTotal.WithLabelValues("logist").Inc()
		}
	}

	if now.Sub(*order.EscalatedLogistAt) < tun.EscalateToAdminAfter {
		return nil
	}

	if order.EscalatedAdminAt == nil {
		if err := e.orders.MarkEscalatedAdmin(ctx, order.ID, now); err != nil {
			return fmt.Errorf("mark escalated to admin: %w", err)
		}
		t := now
		order.EscalatedAdminAt = &t
		e.logger.Info("order escalated to admin", "order_id", order.ID, "city", order.City)
	}

	if order.NotifiedAdminAt == nil {
		claimed, err := e.orders.ClaimAdminNotice(ctx, order.ID, now)
		if err != nil {
			return fmt.Errorf("claim admin notice: %w", err)
		}
		if claimed {
			t := now
			order.NotifiedAdminAt = &t
			e.notify(ctx, order, domain.EventEscalationAdmin, true)
			metrics.EscalationsTotal.WithLabelValues("admin").Inc()
		}
	}

	return nil
}

// notify resolves recipients and pushes the escalation event to each of
// them. Delivery is best-effort: the claim above is already committed, so a
// failed send is logged and forgotten.
func (e *EscalationService) notify(ctx context.Context, order *domain.Order, event string, adminsOnly bool) {
	recipients, err := e.staff.EscalationRecipients(ctx, order.City, adminsOnly)
	if err != nil {
		e.logger.Error("resolve escalation recipients", "order_id", order.ID, "error", err)
		return
	}
	payload := map[string]any{
		"order_id": order.ID,
		"city":     order.City,
		"district": order.District,
		"category": order.Category,
		"type":     order.Type,
	}
	for _, r := range recipients {
		if err := e.notifier.Send(ctx, r, event, payload); err != nil {
			e.logger.Error("escalation notification failed", "order_id", order.ID, "chat_id", r.ChatID, "error", err)
		}
	}
}
