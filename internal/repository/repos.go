// Package repository declares storage interfaces consumed by services.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/tixgate/tixgate/internal/model"
)

// EventRepository reads event records produced upstream.
type EventRepository interface {
	// GetEvent returns the event or errs.ErrNotFound.
	GetEvent(ctx context.Context, id uuid.UUID) (*model.Event, error)
}

// GrantRepository reads scan grants and organizer ownership. Grants are
// created and revoked by organizer management, outside this subsystem.
type GrantRepository interface {
	// GetGrant returns the actor's grant for the organizer, or errs.ErrNotFound.
	GetGrant(ctx context.Context, actorID, organizerID uuid.UUID) (*model.Grant, error)
	// OwnsOrganizer reports whether the actor owns the organizer.
	OwnsOrganizer(ctx context.Context, actorID, organizerID uuid.UUID) (bool, error)
}

// TicketRepository reads ticket validity data. Tickets enter this subsystem
// read-only; the valid->used transition happens in CheckInRepository.Admit.
type TicketRepository interface {
	// GetTicket returns a ticket by id, or errs.ErrNotFound.
	GetTicket(ctx context.Context, id uuid.UUID) (*model.Ticket, error)
	// GetTicketByCodeHash returns the event's ticket with the given code hash,
	// or errs.ErrNotFound.
	GetTicketByCodeHash(ctx context.Context, eventID uuid.UUID, codeHash string) (*model.Ticket, error)
	// ListByEvent returns all tickets of an event for manifest projection.
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]model.Ticket, error)
	// Stats aggregates check-in progress for an event.
	Stats(ctx context.Context, eventID uuid.UUID) (model.EventStats, error)
}

// CheckInAttempt is one request to admit a ticket.
type CheckInAttempt struct {
	TicketID   uuid.UUID
	EventID    uuid.UUID
	ActorID    uuid.UUID
	DeviceID   string
	ObservedAt time.Time
	Origin     model.Origin
}

// CheckInRepository is the ledger behind the check-in authority.
type CheckInRepository interface {
	// Admit atomically performs the valid->used transition keyed by ticket id
	// and records the attempt. The first writer wins; later attempts get
	// OutcomeDuplicate with the canonical record, without altering state.
	// Tickets in a terminal non-valid state yield OutcomeRejected.
	Admit(ctx context.Context, att CheckInAttempt) (model.CheckInDecision, error)
}

// DeviceRepository reads provisioned scanner device credentials.
type DeviceRepository interface {
	// GetDevice returns the device by id, or errs.ErrNotFound.
	GetDevice(ctx context.Context, id string) (*model.Device, error)
}
