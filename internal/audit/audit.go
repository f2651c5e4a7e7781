// Package audit emits structured audit events for the scanning engine.
// Events carry identities, outcomes, and counts; never ticket contents or
// holder data.
package audit

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Kind identifies the audited action.
type Kind string

const (
	KindManifestIssued Kind = "manifest_issued"
	KindCheckInDecided Kind = "checkin_decided"
	KindAccessDenied   Kind = "access_denied"
	KindRateLimited    Kind = "rate_limited"
	KindStatsServed    Kind = "stats_served"
)

// Event is a single audit record.
type Event struct {
	Kind       Kind
	ActorID    uuid.UUID
	DeviceID   string
	EventID    uuid.UUID
	TicketID   uuid.UUID
	Outcome    string // decision or deny reason; internal use only
	EntryCount int
	At         time.Time
}

// Emitter is the sink for audit events. Implementations must not block the
// request path for long.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// ZapEmitter writes audit events to a zap logger.
type ZapEmitter struct{ log *zap.Logger }

// NewZapEmitter constructs a zap-backed audit sink.
func NewZapEmitter(log *zap.Logger) *ZapEmitter {
	return &ZapEmitter{log: log.Named("audit")}
}

// Emit logs the event with structured fields.
func (z *ZapEmitter) Emit(_ context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	fields := []zap.Field{
		zap.String("kind", string(e.Kind)),
		zap.Stringer("actor", e.ActorID),
		zap.Time("at", e.At),
	}
	if e.DeviceID != "" {
		fields = append(fields, zap.String("device", e.DeviceID))
	}
	if e.EventID != uuid.Nil {
		fields = append(fields, zap.Stringer("event", e.EventID))
	}
	if e.TicketID != uuid.Nil {
		fields = append(fields, zap.Stringer("ticket", e.TicketID))
	}
	if e.Outcome != "" {
		fields = append(fields, zap.String("outcome", e.Outcome))
	}
	if e.EntryCount > 0 {
		fields = append(fields, zap.Int("entries", e.EntryCount))
	}
	z.log.Info("audit", fields...)
}

// Nop discards all events; useful in tests.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(context.Context, Event) {}
