// Package manifest builds and verifies signed, expiring, permission-filtered
// snapshots of ticket-validity data for offline scanning.
package manifest

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/tixgate/tixgate/internal/audit"
	"github.com/tixgate/tixgate/internal/errs"
	"github.com/tixgate/tixgate/internal/grant"
	"github.com/tixgate/tixgate/internal/model"
	"github.com/tixgate/tixgate/internal/repository"
)

// DefaultTTL is the expiry horizon for issued manifests. It bounds how long a
// revoked grant keeps working on a disconnected device.
const DefaultTTL = 6 * time.Hour

// MaxTTL caps operator-configured horizons.
const MaxTTL = 24 * time.Hour

// Builder produces manifests for authorized actors.
type Builder struct {
	grants  *grant.Resolver
	tickets repository.TicketRepository
	signer  *Signer
	ttl     time.Duration
	audit   audit.Emitter
	now     func() time.Time
}

// NewBuilder constructs a Builder. A non-positive or excessive ttl falls back
// to the default horizon.
func NewBuilder(grants *grant.Resolver, tickets repository.TicketRepository, signer *Signer, ttl time.Duration, sink audit.Emitter) *Builder {
	if ttl <= 0 || ttl > MaxTTL {
		ttl = DefaultTTL
	}
	return &Builder{grants: grants, tickets: tickets, signer: signer, ttl: ttl, audit: sink, now: time.Now}
}

// Build resolves the actor's grant, projects the event's tickets to minimal
// entries, and signs the result. Permission is checked before any ticket data
// is touched.
func (b *Builder) Build(ctx context.Context, sc model.ScanContext, eventID uuid.UUID) (*model.Manifest, error) {
	scope, err := b.grants.ResolveScope(ctx, sc.ActorID, eventID)
	if err != nil {
		return nil, err
	}
	if !scope.Allowed {
		b.audit.Emit(ctx, audit.Event{
			Kind: audit.KindAccessDenied, ActorID: sc.ActorID, DeviceID: sc.DeviceID,
			EventID: eventID, Outcome: string(scope.Reason),
		})
		return nil, errs.ErrPermissionDenied
	}

	tickets, err := b.tickets.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	issued := b.now()
	m := &model.Manifest{
		EventID:   eventID,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(b.ttl),
		Entries:   make([]model.ManifestEntry, 0, len(tickets)),
	}
	for _, t := range tickets {
		m.Entries = append(m.Entries, model.ManifestEntry{
			CodeHash:   t.CodeHash,
			Status:     t.Status,
			ValidFrom:  t.ValidFrom,
			ValidUntil: t.ValidUntil,
		})
	}
	if err := b.signer.Sign(m); err != nil {
		return nil, err
	}

	b.audit.Emit(ctx, audit.Event{
		Kind: audit.KindManifestIssued, ActorID: sc.ActorID, DeviceID: sc.DeviceID,
		EventID: eventID, EntryCount: len(m.Entries),
	})
	return m, nil
}
