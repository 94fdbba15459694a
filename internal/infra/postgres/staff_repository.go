package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Dattelon/field-service-sub000/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type staffRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStaffRepository creates the city-scoped staff directory.
func NewStaffRepository(pool *pgxpool.Pool, logger *slog.Logger) domain.StaffDirectory {
	return &staffRepository{pool: pool, logger: logger.With("component", "staff-repo")}
}

// EscalationRecipients resolves the deduplicated set of staff chat ids for a
// city. Logists and admins of the city are included; admins with no city
// (global admins) are always included. adminsOnly narrows the set for the
// admin escalation stage.
func (r *staffRepository) EscalationRecipients(ctx context.Context, city string, adminsOnly bool) ([]domain.Recipient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (chat_id) chat_id, role
		FROM staff
		WHERE active
		  AND (city = $1 OR city IS NULL)
		  AND (role = 'admin' OR ($2 = FALSE AND role = 'logist'))
		ORDER BY chat_id, role`, city, adminsOnly)
	if err != nil {
		return nil, fmt.Errorf("query staff for city %s: %w", city, err)
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		var rec domain.Recipient
		if err := rows.Scan(&rec.ChatID, &rec.Role); err != nil {
			return nil, fmt.Errorf("scan staff recipient: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
