package limiter

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is a PostgreSQL-backed fixed-window limiter. The counter row per actor
// is bumped with a single upsert, so concurrent requests cannot double-count
// or miss the window roll-over.
type PG struct {
	pool   pgxQuerier
	window time.Duration
	max    int
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter allowing max attempts per window.
func NewPG(pool *pgxpool.Pool, window time.Duration, max int) *PG {
	return &PG{pool: pool, window: window, max: max}
}

// NewPGWithQuerier constructs a PostgreSQL-backed limiter over any querier.
func NewPGWithQuerier(q pgxQuerier, window time.Duration, max int) *PG {
	return &PG{pool: q, window: window, max: max}
}

// Allow bumps the actor's counter for the current window and reports whether
// the attempt is within the limit.
func (l *PG) Allow(ctx context.Context, actorID uuid.UUID) (bool, time.Duration, error) {
	now := time.Now()
	windowStart := now.Truncate(l.window)

	const q = `
INSERT INTO scan_limiter (actor_id, window_start, attempts, updated_at)
VALUES ($1,$2,1,now())
ON CONFLICT (actor_id) DO UPDATE
SET
  attempts = CASE WHEN scan_limiter.window_start = $2 THEN scan_limiter.attempts + 1 ELSE 1 END,
  window_start = $2,
  updated_at = now()
RETURNING attempts`
	var attempts int
	if err := l.pool.QueryRow(ctx, q, actorID, windowStart).Scan(&attempts); err != nil {
		return false, 0, err
	}
	if attempts > l.max {
		return false, windowStart.Add(l.window).Sub(now), nil
	}
	return true, 0, nil
}
