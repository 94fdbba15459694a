package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dattelon/field-service-sub000/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type offerRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewOfferRepository creates the Postgres-backed offer repository.
func NewOfferRepository(pool *pgxpool.Pool, logger *slog.Logger) domain.OfferRepository {
	return &offerRepository{pool: pool, logger: logger.With("component", "offer-repo")}
}

// ExpireOverdue flips the order's overdue pending offers to EXPIRED. Legacy
// rows without expires_at fall back to sent_at + sla. A deadline exactly equal
// to now counts as overdue. Idempotent: a second run matches nothing.
func (r *offerRepository) ExpireOverdue(ctx context.Context, orderID int64, now time.Time, sla time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE offers
		SET state = 'EXPIRED', responded_at = $2
		WHERE order_id = $1
		  AND state IN ('SENT', 'VIEWED')
		  AND COALESCE(expires_at, sent_at + $3) <= $2`,
		orderID, now, sla)
	if err != nil {
		return 0, fmt.Errorf("expire overdue offers: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *offerRepository) CurrentRound(ctx context.Context, orderID int64) (int, error) {
	var round int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(max(round_number), 0) FROM offers WHERE order_id = $1`,
		orderID).Scan(&round)
	if err != nil {
		return 0, fmt.Errorf("current round: %w", err)
	}
	return round, nil
}

func (r *offerRepository) HasPending(ctx context.Context, orderID int64) (bool, error) {
	var pending bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM offers WHERE order_id = $1 AND state IN ('SENT', 'VIEWED'))`,
		orderID).Scan(&pending)
	if err != nil {
		return false, fmt.Errorf("check pending offer: %w", err)
	}
	return pending, nil
}

func (r *offerRepository) OfferedMasters(ctx context.Context, orderID int64) (map[int64]struct{}, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT master_id FROM offers WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query offered masters: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan offered master: %w", err)
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// Create inserts the SENT offer and clears the order's escalation stamps in
// one transaction: a new offer means regained momentum, prior stalls are
// forgiven. The partial unique index on pending (order, master) pairs is the
// final guard against a duplicate unresolved offer.
func (r *offerRepository) Create(ctx context.Context, offer *domain.Offer) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin offer tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO offers (id, order_id, master_id, round_number, state, sent_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		offer.ID, offer.OrderID, offer.MasterID, offer.Round,
		offer.State, offer.SentAt, offer.ExpiresAt,
	); err != nil {
		return fmt.Errorf("insert offer: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE orders
		SET escalated_logist_at = NULL, notified_logist_at = NULL,
		    escalated_admin_at = NULL, notified_admin_at = NULL,
		    updated_at = now()
		WHERE id = $1`, offer.OrderID,
	); err != nil {
		return fmt.Errorf("reset escalation stamps: %w", err)
	}

	return tx.Commit(ctx)
}
