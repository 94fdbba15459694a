package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Dattelon/field-service-sub000/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Setting keys understood by the distribution core. Unknown keys are ignored;
// missing keys fall back to the defaults.
const (
	KeyTickSeconds          = "tick_seconds"
	KeySLASeconds           = "sla_seconds"
	KeyRounds               = "rounds"
	KeyTopLogN              = "top_log_n"
	KeyEscalateToAdminAfter = "escalate_to_admin_after_min"
	KeyMaxActiveOrders      = "max_active_orders"
)

type settingsRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewSettingsRepository creates the Postgres-backed settings store.
func NewSettingsRepository(pool *pgxpool.Pool, logger *slog.Logger) domain.SettingsRepository {
	return &settingsRepository{pool: pool, logger: logger.With("component", "settings-repo")}
}

// Load reads all settings rows and folds them over the defaults. A malformed
// value is logged and the default kept; a broken knob must not stop ticking.
func (r *settingsRepository) Load(ctx context.Context) (domain.Tunables, error) {
	tun := domain.DefaultTunables()

	rows, err := r.pool.Query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return tun, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return tun, fmt.Errorf("scan setting: %w", err)
		}
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			r.logger.Warn("ignoring malformed setting", "key", key, "value", value)
			continue
		}
		switch key {
		case KeyTickSeconds:
			tun.TickInterval = time.Duration(n) * time.Second
		case KeySLASeconds:
			tun.SLA = time.Duration(n) * time.Second
		case KeyRounds:
			tun.MaxRounds = n
		case KeyTopLogN:
			tun.TopLogN = n
		case KeyEscalateToAdminAfter:
			tun.EscalateToAdminAfter = time.Duration(n) * time.Minute
		case KeyMaxActiveOrders:
			tun.MaxActiveOrders = n
		}
	}
	return tun, rows.Err()
}

func (r *settingsRepository) Put(ctx context.Context, key, value string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("put setting %s: %w", key, err)
	}
	return nil
}
