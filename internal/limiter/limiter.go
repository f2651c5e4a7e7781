// Package limiter bounds per-actor scan attempt rates.
package limiter

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Limiter is an atomic windowed counter keyed by actor id. Exceeding the
// limit yields a rate-limited outcome without consuming a ledger decision.
type Limiter interface {
	// Allow records one attempt and reports whether it is within the limit,
	// with a retry-after hint when it is not.
	Allow(ctx context.Context, actorID uuid.UUID) (bool, time.Duration, error)
}
