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

type acceptanceStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewAcceptanceStore creates the transactional acceptance path.
func NewAcceptanceStore(pool *pgxpool.Pool, logger *slog.Logger) domain.AcceptanceStore {
	return &acceptanceStore{pool: pool, logger: logger.With("component", "acceptance-store")}
}

// AcceptOffer runs the whole acceptance in one transaction:
//
//  1. lock the offer row (SKIP LOCKED; a locked or foreign row fails fast)
//  2. validate offer state and SLA
//  3. lock the order row (SKIP LOCKED)
//  4. validate the order is still assignable
//  5. conditional assignment update with a version check, closing any
//     visibility gap the row locks leave under weaker isolation
//  6. winner -> ACCEPTED
//  7. pending siblings -> CANCELED
//  8. status-history record
//
// Contention at any step surfaces as the domain sentinels; nothing retries.
func (s *acceptanceStore) AcceptOffer(ctx context.Context, offerID string, masterID int64, now time.Time) (*domain.AcceptResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin accept tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var offer domain.Offer
	offer.ID = offerID
	offer.MasterID = masterID
	var expiresAt *time.Time
	err = tx.QueryRow(ctx, `
		SELECT order_id, round_number, state, sent_at, expires_at
		FROM offers
		WHERE id = $1 AND master_id = $2
		FOR UPDATE SKIP LOCKED`, offerID, masterID,
	).Scan(&offer.OrderID, &offer.Round, &offer.State, &offer.SentAt, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Locked by a concurrent caller, or not this master's offer.
		return nil, domain.ErrOfferUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("lock offer: %w", err)
	}

	// Legacy rows have no expires_at; only the reaper, which knows the SLA,
	// can expire those. Everything else is validated right here.
	if expiresAt != nil {
		offer.ExpiresAt = *expiresAt
	} else {
		offer.ExpiresAt = now.Add(time.Second)
	}
	if err := offer.AcceptableAt(now); err != nil {
		return nil, err
	}

	var (
		status            domain.OrderStatus
		assignedMasterID  *int64
		preferredMasterID *int64
		version           int64
		createdAt         time.Time
		escLogist         *time.Time
		escAdmin          *time.Time
	)
	err = tx.QueryRow(ctx, `
		SELECT status, assigned_master_id, preferred_master_id, version,
		       created_at, escalated_logist_at, escalated_admin_at
		FROM orders
		WHERE id = $1
		FOR UPDATE SKIP LOCKED`, offer.OrderID,
	).Scan(&status, &assignedMasterID, &preferredMasterID, &version, &createdAt, &escLogist, &escAdmin)
	if errors.Is(err, pgx.ErrNoRows) {
		// A concurrent winner holds the order row and is proceeding.
		return nil, domain.ErrOrderUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}

	if assignedMasterID != nil || !status.Assignable() {
		return nil, domain.ErrOrderTaken
	}

	// The update only lands if the row still matches the validated snapshot.
	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET assigned_master_id = $2, status = 'ASSIGNED',
		    version = version + 1, updated_at = now()
		WHERE id = $1
		  AND assigned_master_id IS NULL
		  AND status = $3
		  AND version = $4`,
		offer.OrderID, masterID, status, version)
	if err != nil {
		return nil, fmt.Errorf("assign order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrOrderTaken
	}

	if _, err := tx.Exec(ctx, `
		UPDATE offers SET state = 'ACCEPTED', responded_at = $2 WHERE id = $1`,
		offerID, now); err != nil {
		return nil, fmt.Errorf("accept offer: %w", err)
	}

	siblings, err := tx.Exec(ctx, `
		UPDATE offers SET state = 'CANCELED', responded_at = $3
		WHERE order_id = $1 AND id <> $2 AND state IN ('SENT', 'VIEWED')`,
		offer.OrderID, offerID, now)
	if err != nil {
		return nil, fmt.Errorf("cancel sibling offers: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO order_status_log (order_id, old_status, new_status, actor, reason, changed_at)
		VALUES ($1, $2, 'ASSIGNED', $3, 'accepted_by_master', $4)`,
		offer.OrderID, status, fmt.Sprintf("master:%d", masterID), now); err != nil {
		return nil, fmt.Errorf("append status history: %w", err)
	}

	var offersTotal int
	if err := tx.QueryRow(ctx,
		`SELECT count(*) FROM offers WHERE order_id = $1`, offer.OrderID,
	).Scan(&offersTotal); err != nil {
		return nil, fmt.Errorf("count offers: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit accept: %w", err)
	}

	return &domain.AcceptResult{
		OrderID:         offer.OrderID,
		MasterID:        masterID,
		Round:           offer.Round,
		OffersTotal:     offersTotal,
		SiblingsCancel:  int(siblings.RowsAffected()),
		OrderCreatedAt:  createdAt,
		Preferred:       preferredMasterID != nil && *preferredMasterID == masterID,
		EscalatedLogist: escLogist != nil,
		EscalatedAdmin:  escAdmin != nil,
	}, nil
}

// DeclineOffer is a single conditional update; zero rows affected means the
// offer was already resolved and the decline is a no-op.
func (s *acceptanceStore) DeclineOffer(ctx context.Context, offerID string, masterID int64, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE offers SET state = 'DECLINED', responded_at = $3
		WHERE id = $1 AND master_id = $2 AND state IN ('SENT', 'VIEWED')`,
		offerID, masterID, now)
	if err != nil {
		return false, fmt.Errorf("decline offer: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
