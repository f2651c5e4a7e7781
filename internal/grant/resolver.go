// Package grant decides whether an actor may scan an event and with what scope.
//
// All privilege checks in the engine funnel through one evaluation order:
// organizer-owner bypass, then explicit grant, then deny. Denial reasons are
// for audit logging only and must never reach unauthorized callers verbatim.
package grant

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/tixgate/tixgate/internal/errs"
	"github.com/tixgate/tixgate/internal/repository"
)

// DenyReason explains a denial for the audit trail.
type DenyReason string

const (
	ReasonNone         DenyReason = ""
	ReasonNoGrant      DenyReason = "no_grant"
	ReasonInactive     DenyReason = "inactive"
	ReasonExpired      DenyReason = "expired"
	ReasonCannotScan   DenyReason = "cannot_scan"
	ReasonNotPermitted DenyReason = "event_not_permitted"
)

// Scope is the resolver's answer for one actor.
type Scope struct {
	Allowed   bool
	AllEvents bool
	EventIDs  []uuid.UUID
	Reason    DenyReason
}

// Resolver evaluates scanning permissions. A missing grant is a normal,
// reported outcome, never an error.
type Resolver struct {
	events repository.EventRepository
	grants repository.GrantRepository
	now    func() time.Time
}

// NewResolver constructs a Resolver.
func NewResolver(events repository.EventRepository, grants repository.GrantRepository) *Resolver {
	return &Resolver{events: events, grants: grants, now: time.Now}
}

// ResolveScope decides whether the actor may scan the given event.
func (r *Resolver) ResolveScope(ctx context.Context, actorID, eventID uuid.UUID) (Scope, error) {
	ev, err := r.events.GetEvent(ctx, eventID)
	if err != nil {
		return Scope{}, err
	}

	sc, err := r.ResolveOrganizerScope(ctx, actorID, ev.OrganizerID)
	if err != nil {
		return Scope{}, err
	}
	if !sc.Allowed {
		return sc, nil
	}
	if sc.AllEvents {
		return sc, nil
	}
	for _, id := range sc.EventIDs {
		if id == eventID {
			return Scope{Allowed: true, EventIDs: []uuid.UUID{eventID}}, nil
		}
	}
	return Scope{Reason: ReasonNotPermitted}, nil
}

// ResolveOrganizerScope decides the actor's scannable scope across an
// organizer's events: the owner bypass first, then the explicit grant.
func (r *Resolver) ResolveOrganizerScope(ctx context.Context, actorID, organizerID uuid.UUID) (Scope, error) {
	owns, err := r.grants.OwnsOrganizer(ctx, actorID, organizerID)
	if err != nil {
		return Scope{}, err
	}
	if owns {
		return Scope{Allowed: true, AllEvents: true}, nil
	}

	g, err := r.grants.GetGrant(ctx, actorID, organizerID)
	if errors.Is(err, errs.ErrNotFound) {
		return Scope{Reason: ReasonNoGrant}, nil
	}
	if err != nil {
		return Scope{}, err
	}

	switch {
	case !g.Active:
		return Scope{Reason: ReasonInactive}, nil
	case g.ValidUntil != nil && !g.ValidUntil.After(r.now()):
		return Scope{Reason: ReasonExpired}, nil
	case !g.CanScan:
		return Scope{Reason: ReasonCannotScan}, nil
	}

	if g.AllEvents {
		return Scope{Allowed: true, AllEvents: true}, nil
	}
	ids := make([]uuid.UUID, len(g.EventIDs))
	copy(ids, g.EventIDs)
	return Scope{Allowed: true, EventIDs: ids}, nil
}
