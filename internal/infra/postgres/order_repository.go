package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dattelon/field-service-sub000/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type orderRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewOrderRepository creates the Postgres-backed order repository.
func NewOrderRepository(pool *pgxpool.Pool, logger *slog.Logger) domain.OrderRepository {
	return &orderRepository{pool: pool, logger: logger.With("component", "order-repo")}
}

const orderColumns = `
	id, city, district, no_district, category, type, status,
	assigned_master_id, preferred_master_id, version, timeslot_start,
	created_at, escalated_logist_at, notified_logist_at,
	escalated_admin_at, notified_admin_at`

// DistributionQueue returns undistributed orders in priority order:
// escalated-to-admin, guarantee type, elapsed timeslot, escalated-to-logist,
// then FIFO by created_at. DEFERRED orders ride along only while an active
// offer keeps them in play.
func (r *orderRepository) DistributionQueue(ctx context.Context, limit int) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		WHERE o.assigned_master_id IS NULL
		  AND (
			o.status IN ('SEARCHING', 'GUARANTEE')
			OR (o.status = 'DEFERRED' AND EXISTS (
				SELECT 1 FROM offers f
				WHERE f.order_id = o.id AND f.state IN ('SENT', 'VIEWED', 'ACCEPTED')
			))
		  )
		ORDER BY
			(o.escalated_admin_at IS NOT NULL) DESC,
			(o.type = 'GUARANTEE') DESC,
			(o.timeslot_start IS NOT NULL AND o.timeslot_start <= now()) DESC,
			(o.escalated_logist_at IS NOT NULL) DESC,
			o.created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query distribution queue: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *orderRepository) MarkEscalatedLogist(ctx context.Context, orderID int64, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE orders SET escalated_logist_at = $2, updated_at = now()
		WHERE id = $1 AND escalated_logist_at IS NULL`, orderID, now)
	return err
}

func (r *orderRepository) MarkEscalatedAdmin(ctx context.Context, orderID int64, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE orders SET escalated_admin_at = $2, updated_at = now()
		WHERE id = $1 AND escalated_admin_at IS NULL AND escalated_logist_at IS NOT NULL`, orderID, now)
	return err
}

// ClaimLogistNotice is the exactly-once gate: only the caller whose UPDATE
// returns a row owns the notification.
func (r *orderRepository) ClaimLogistNotice(ctx context.Context, orderID int64, now time.Time) (bool, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		UPDATE orders SET notified_logist_at = $2, updated_at = now()
		WHERE id = $1 AND notified_logist_at IS NULL AND escalated_logist_at IS NOT NULL
		RETURNING id`, orderID, now).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r *orderRepository) ClaimAdminNotice(ctx context.Context, orderID int64, now time.Time) (bool, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		UPDATE orders SET notified_admin_at = $2, updated_at = now()
		WHERE id = $1 AND notified_admin_at IS NULL AND escalated_admin_at IS NOT NULL
		RETURNING id`, orderID, now).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID, &o.City, &o.District, &o.NoDistrict, &o.Category, &o.Type, &o.Status,
		&o.AssignedMasterID, &o.PreferredMasterID, &o.Version, &o.TimeslotStart,
		&o.CreatedAt, &o.EscalatedLogistAt, &o.NotifiedLogistAt,
		&o.EscalatedAdminAt, &o.NotifiedAdminAt,
	)
	if err != nil {
		return domain.Order{}, fmt.Errorf("scan order: %w", err)
	}
	return o, nil
}
