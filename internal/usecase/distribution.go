package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dattelon/field-service-sub000/internal/domain"
	"github.com/Dattelon/field-service-sub000/internal/metrics"
	"github.com/Dattelon/field-service-sub000/internal/settings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// distributionBatchLimit caps how many orders one tick examines.
const distributionBatchLimit = 100

// DistributionService is the tick coordinator: it owns the cluster-wide tick
// lock, the prioritized backlog fetch and the per-order pipeline
// (reap -> recompute round -> broadcast or escalate).
type DistributionService struct {
	locker     domain.Locker
	settings   *settings.Cache
	orders     domain.OrderRepository
	offers     domain.OfferRepository
	matcher    *Matcher
	escalation *EscalationService
	notifier   domain.NotificationPort
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewDistributionService wires the tick pipeline.
func NewDistributionService(
	locker domain.Locker,
	cache *settings.Cache,
	orders domain.OrderRepository,
	offers domain.OfferRepository,
	matcher *Matcher,
	escalation *EscalationService,
	notifier domain.NotificationPort,
	logger *slog.Logger,
) *DistributionService {
	return &DistributionService{
		locker:     locker,
		settings:   cache,
		orders:     orders,
		offers:     offers,
		matcher:    matcher,
		escalation: escalation,
		notifier:   notifier,
		logger:     logger.With("component", "distribution"),
		tracer:     otel.Tracer("field-service-distribution"),
		now:        time.Now,
	}
}

// RunTick executes one distribution pass. Concurrent ticks degrade to a
// no-op skip: if the cluster lock is held elsewhere, RunTick returns nil
// immediately. One order's failure never rolls back or stops the others;
// only infrastructure failures (queue fetch, settings with no snapshot)
// abort the tick, and the next tick retries the whole batch from scratch.
func (s *DistributionService) RunTick(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "distribution.RunTick")
	defer span.End()

	lock, err := s.locker.Lock(ctx, domain.TickLockName)
	if err != nil {
		if errors.Is(err, domain.ErrLockNotAcquired) {
			metrics.TicksTotal.WithLabelValues("skipped").Inc()
			s.logger.Debug("tick lock held elsewhere, skipping")
			return nil
		}
		metrics.TicksTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		return fmt.Errorf("acquire tick lock: %w", err)
	}
	defer func() {
		if err := lock.Unlock(ctx); err != nil {
			s.logger.Error("release tick lock", "error", err)
		}
	}()

	tun, err := s.settings.Get(ctx)
	if err != nil {
		metrics.TicksTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		return fmt.Errorf("load tunables: %w", err)
	}

	queue, err := s.orders.DistributionQueue(ctx, distributionBatchLimit)
	if err != nil {
		metrics.TicksTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "distribution queue fetch failed")
		return fmt.Errorf("fetch distribution queue: %w", err)
	}
	span.SetAttributes(attribute.Int("queue.size", len(queue)))

	for i := range queue {
		if i < tun.TopLogN {
			s.logger.Debug("queue entry",
				"position", i, "order_id", queue[i].ID,
				"status", queue[i].Status, "type", queue[i].Type)
		}
	}

	for i := range queue {
		order := &queue[i]
		metrics.OrdersExamined.Inc()
		if err := s.processOrder(ctx, order, tun); err != nil {
			s.logger.Error("order pipeline failed", "order_id", order.ID, "error", err)
		}
	}

	metrics.TicksTotal.WithLabelValues("ok").Inc()
	return nil
}

// processOrder runs the per-order pipeline: sweep overdue offers, recompute
// the round, then either wait on a pending offer, broadcast the next round,
// or escalate.
func (s *DistributionService) processOrder(ctx context.Context, order *domain.Order, tun domain.Tunables) error {
	now := s.now()

	expired, err := s.offers.ExpireOverdue(ctx, order.ID, now, tun.SLA)
	if err != nil {
		return fmt.Errorf("expire overdue offers: %w", err)
	}
	if expired > 0 {
		metrics.OffersExpiredTotal.Add(float64(expired))
		s.logger.Info("offers expired", "order_id", order.ID, "count", expired)
	}

	pending, err := s.offers.HasPending(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("check pending offer: %w", err)
	}
	if pending {
		// A master is still deciding; nothing to do until the SLA runs out.
		return nil
	}

	round, err := s.offers.CurrentRound(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("recompute round: %w", err)
	}
	if round >= tun.MaxRounds {
		// Rounds exhausted with no acceptance: the order is stuck.
		return s.escalation.Escalate(ctx, order, tun, now)
	}

	candidates, err := s.matcher.EligibleMasters(ctx, order, tun, now)
	if err != nil {
		var unmapped *domain.UnmappedCategoryError
		if errors.As(err, &unmapped) {
			// Validation failure: skip this tick, the order stays queued.
			s.logger.Warn("order skipped", "order_id", order.ID, "reason", unmapped.Error())
			return nil
		}
		return fmt.Errorf("match candidates: %w", err)
	}
	if len(candidates) == 0 {
		return s.escalation.Escalate(ctx, order, tun, now)
	}

	return s.broadcast(ctx, order, candidates[0], round+1, tun, now)
}

// broadcast creates the next-round offer for the chosen candidate. One
// candidate per round, strict round-robin. The insert clears the order's
// escalation stamps in the same transaction; the "new offer" notification
// goes out afterwards and is best-effort.
func (s *DistributionService) broadcast(ctx context.Context, order *domain.Order, cand Candidate, round int, tun domain.Tunables, now time.Time) error {
	offer := &domain.Offer{
		ID:        uuid.New().String(),
		OrderID:   order.ID,
		MasterID:  cand.Master.ID,
		Round:     round,
		State:     domain.OfferSent,
		SentAt:    now,
		ExpiresAt: now.Add(tun.SLA),
	}

	if err := s.offers.Create(ctx, offer); err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	metrics.OffersSentTotal.Inc()
	s.logger.Info("offer sent",
		"order_id", order.ID, "master_id", cand.Master.ID,
		"round", round, "preferred", cand.Preferred,
		"expires_at", offer.ExpiresAt)

	payload := map[string]any{
		"offer_id":   offer.ID,
		"order_id":   order.ID,
		"city":       order.City,
		"district":   order.District,
		"category":   order.Category,
		"round":      round,
		"expires_at": offer.ExpiresAt,
	}
	to := domain.Recipient{ChatID: cand.Master.ChatID, Role: "master"}
	if err := s.notifier.Send(ctx, to, domain.EventOfferNew, payload); err != nil {
		// The offer row is committed; delivery is best-effort.
		s.logger.Error("offer notification failed", "offer_id", offer.ID, "master_id", cand.Master.ID, "error", err)
	}
	return nil
}
