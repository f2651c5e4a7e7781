package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/tixgate/tixgate/internal/errs"
	"github.com/tixgate/tixgate/internal/model"
)

// GrantRepo implements GrantRepository and EventRepository reads over PostgreSQL.
type GrantRepo struct{ db *DB }

// NewGrantRepo constructs a grant repository.
func NewGrantRepo(db *DB) *GrantRepo { return &GrantRepo{db: db} }

// GetGrant returns the actor's grant for the organizer.
func (r *GrantRepo) GetGrant(ctx context.Context, actorID, organizerID uuid.UUID) (*model.Grant, error) {
	const q = `
SELECT actor_id, organizer_id, all_events, event_ids, can_scan, active, valid_until
FROM scan_grants WHERE actor_id=$1 AND organizer_id=$2`
	var g model.Grant
	err := r.db.Pool.QueryRow(ctx, q, actorID, organizerID).Scan(
		&g.ActorID, &g.OrganizerID, &g.AllEvents, &g.EventIDs, &g.CanScan, &g.Active, &g.ValidUntil,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// OwnsOrganizer reports whether the actor owns the organizer. Ownership is an
// implicit all-events grant this subsystem cannot revoke.
func (r *GrantRepo) OwnsOrganizer(ctx context.Context, actorID, organizerID uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM organizers WHERE id=$1 AND owner_actor_id=$2)`
	var owns bool
	if err := r.db.Pool.QueryRow(ctx, q, organizerID, actorID).Scan(&owns); err != nil {
		return false, err
	}
	return owns, nil
}

// EventRepo implements EventRepository using PostgreSQL.
type EventRepo struct{ db *DB }

// NewEventRepo constructs an event repository.
func NewEventRepo(db *DB) *EventRepo { return &EventRepo{db: db} }

// GetEvent returns the event by id.
func (r *EventRepo) GetEvent(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	const q = `SELECT id, organizer_id, name FROM events WHERE id=$1`
	var e model.Event
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(&e.ID, &e.OrganizerID, &e.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
