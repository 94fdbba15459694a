package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Dattelon/field-service-sub000/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type metricRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewMetricRepository creates the append-only assignment-fact store.
func NewMetricRepository(pool *pgxpool.Pool, logger *slog.Logger) domain.MetricRepository {
	return &metricRepository{pool: pool, logger: logger.With("component", "metric-repo")}
}

// Append writes one assignment fact. Rows are never updated or deleted.
func (r *metricRepository) Append(ctx context.Context, m *domain.DistributionMetric) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO distribution_metrics
			(order_id, master_id, round_number, candidates_seen,
			 seconds_to_assign, preferred, escalated_logist, escalated_admin, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.OrderID, m.MasterID, m.Round, m.CandidatesSeen,
		int64(m.TimeToAssign.Seconds()), m.Preferred,
		m.EscalatedLogist, m.EscalatedAdmin, m.RecordedAt)
	if err != nil {
		return fmt.Errorf("append distribution metric: %w", err)
	}
	return nil
}
