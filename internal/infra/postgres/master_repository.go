package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Dattelon/field-service-sub000/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type masterRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewMasterRepository creates the Postgres-backed Directory snapshot reader.
func NewMasterRepository(pool *pgxpool.Pool, logger *slog.Logger) domain.MasterRepository {
	return &masterRepository{pool: pool, logger: logger.With("component", "master-repo")}
}

// ListByCity returns every master in the city with districts, skills and the
// derived active-order count. The hard eligibility filters run in the
// matcher, over this snapshot.
func (r *masterRepository) ListByCity(ctx context.Context, city string) ([]domain.Master, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT
			m.id, m.chat_id, m.city, m.shift_status, m.break_until,
			m.verified, m.active, m.blocked, m.rating, m.max_active_orders,
			COALESCE(array_agg(DISTINCT md.district) FILTER (WHERE md.district IS NOT NULL), '{}'),
			COALESCE(array_agg(DISTINCT ms.skill) FILTER (WHERE ms.skill IS NOT NULL), '{}'),
			(SELECT count(*) FROM orders o
			 WHERE o.assigned_master_id = m.id
			   AND o.status IN ('ASSIGNED', 'EN_ROUTE', 'WORKING', 'PAYMENT'))
		FROM masters m
		LEFT JOIN master_districts md ON md.master_id = m.id
		LEFT JOIN master_skills ms ON ms.master_id = m.id
		WHERE m.city = $1
		GROUP BY m.id`, city)
	if err != nil {
		return nil, fmt.Errorf("query masters for city %s: %w", city, err)
	}
	defer rows.Close()

	var out []domain.Master
	for rows.Next() {
		var m domain.Master
		var activeOrders int64
		if err := rows.Scan(
			&m.ID, &m.ChatID, &m.City, &m.Shift, &m.BreakUntil,
			&m.Verified, &m.Active, &m.Blocked, &m.Rating, &m.MaxActiveOrders,
			&m.Districts, &m.Skills, &activeOrders,
		); err != nil {
			return nil, fmt.Errorf("scan master: %w", err)
		}
		m.ActiveOrders = int(activeOrders)
		out = append(out, m)
	}
	return out, rows.Err()
}

// LoadSkillMap reads the static category -> skill mapping.
func LoadSkillMap(ctx context.Context, pool *pgxpool.Pool) (domain.SkillMap, error) {
	rows, err := pool.Query(ctx, `SELECT category, skill FROM category_skills`)
	if err != nil {
		return nil, fmt.Errorf("query category skills: %w", err)
	}
	defer rows.Close()

	m := make(domain.SkillMap)
	for rows.Next() {
		var category, skill string
		if err := rows.Scan(&category, &skill); err != nil {
			return nil, fmt.Errorf("scan category skill: %w", err)
		}
		m[category] = skill
	}
	return m, rows.Err()
}
