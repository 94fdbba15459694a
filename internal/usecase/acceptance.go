package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/Dattelon/field-service-sub000/internal/domain"
	"github.com/Dattelon/field-service-sub000/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AcceptanceService fronts the race-free acceptance path. The transactional
// body lives in the AcceptanceStore; this layer adds metrics, tracing and the
// best-effort assignment fact, and is what master-facing callers invoke,
// fully decoupled from the tick loop.
type AcceptanceService struct {
	store  domain.AcceptanceStore
	facts  domain.MetricRepository
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewAcceptanceService wires the acceptance path.
func NewAcceptanceService(store domain.AcceptanceStore, facts domain.MetricRepository, logger *slog.Logger) *AcceptanceService {
	return &AcceptanceService{
		store:  store,
		facts:  facts,
		logger: logger.With("component", "acceptance"),
		tracer: otel.Tracer("field-service-acceptance"),
		now:    time.Now,
	}
}

// AcceptOffer atomically assigns the offer's order to the master. Contention
// surfaces as the domain sentinel errors; the caller sees a specific reason
// and nothing is retried here.
func (s *AcceptanceService) AcceptOffer(ctx context.Context, offerID string, masterID int64) (*domain.AcceptResult, error) {
	ctx, span := s.tracer.Start(ctx, "acceptance.AcceptOffer",
		trace.WithAttributes(
			attribute.String("offer.id", offerID),
			attribute.Int64("master.id", masterID),
		))
	defer span.End()

	now := s.now()
	res, err := s.store.AcceptOffer(ctx, offerID, masterID, now)
	if err != nil {
		if domain.IsContention(err) {
			metrics.AcceptFailuresTotal.WithLabelValues(err.Error()).Inc()
			s.logger.Info("accept refused", "offer_id", offerID, "master_id", masterID, "reason", err.Error())
		} else {
			span.RecordError(err)
			s.logger.Error("accept failed", "offer_id", offerID, "master_id", masterID, "error", err)
		}
		return nil, err
	}

	metrics.AssignmentsTotal.Inc()
	s.logger.Info("order assigned",
		"order_id", res.OrderID, "master_id", res.MasterID,
		"round", res.Round, "siblings_canceled", res.SiblingsCancel)

	// Outside the transaction, write-once and best-effort.
	s.recordFact(ctx, res, now)

	return res, nil
}

// DeclineOffer flips the offer to DECLINED. An already-resolved offer is a
// no-op, not an error.
func (s *AcceptanceService) DeclineOffer(ctx context.Context, offerID string, masterID int64) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "acceptance.DeclineOffer",
		trace.WithAttributes(
			attribute.String("offer.id", offerID),
			attribute.Int64("master.id", masterID),
		))
	defer span.End()

	declined, err := s.store.DeclineOffer(ctx, offerID, masterID, s.now())
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if declined {
		metrics.DeclinesTotal.Inc()
		s.logger.Info("offer declined", "offer_id", offerID, "master_id", masterID)
	} else {
		s.logger.Debug("decline ignored, offer already resolved", "offer_id", offerID)
	}
	return declined, nil
}

func (s *AcceptanceService) recordFact(ctx context.Context, res *domain.AcceptResult, now time.Time) {
	fact := &domain.DistributionMetric{
		OrderID:         res.OrderID,
		MasterID:        res.MasterID,
		Round:           res.Round,
		CandidatesSeen:  res.OffersTotal,
		TimeToAssign:    now.Sub(res.OrderCreatedAt),
		Preferred:       res.Preferred,
		EscalatedLogist: res.EscalatedLogist,
		EscalatedAdmin:  res.EscalatedAdmin,
		RecordedAt:      now,
	}
	if err := s.facts.Append(ctx, fact); err != nil {
		s.logger.Error("distribution metric append failed", "order_id", res.OrderID, "error", err)
	}
}
