package service

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/tixgate/tixgate/internal/errs"
	"github.com/tixgate/tixgate/internal/model"
	"github.com/tixgate/tixgate/internal/repository"
)

// Shared fakes for service tests.

type fakeEvents struct{ events map[uuid.UUID]*model.Event }

func (f *fakeEvents) GetEvent(_ context.Context, id uuid.UUID) (*model.Event, error) {
	if e, ok := f.events[id]; ok {
		return e, nil
	}
	return nil, errs.ErrNotFound
}

type fakeGrants struct {
	owner  uuid.UUID
	grants map[uuid.UUID]*model.Grant
}

func (f *fakeGrants) GetGrant(_ context.Context, actorID, _ uuid.UUID) (*model.Grant, error) {
	if g, ok := f.grants[actorID]; ok {
		return g, nil
	}
	return nil, errs.ErrNotFound
}
func (f *fakeGrants) OwnsOrganizer(_ context.Context, actorID, _ uuid.UUID) (bool, error) {
	return actorID == f.owner, nil
}

type fakeTickets struct {
	byID   map[uuid.UUID]*model.Ticket
	byHash map[string]*model.Ticket
	stats  model.EventStats
}

func (f *fakeTickets) GetTicket(_ context.Context, id uuid.UUID) (*model.Ticket, error) {
	if t, ok := f.byID[id]; ok {
		return t, nil
	}
	return nil, errs.ErrNotFound
}
func (f *fakeTickets) GetTicketByCodeHash(_ context.Context, eventID uuid.UUID, hash string) (*model.Ticket, error) {
	if t, ok := f.byHash[hash]; ok && t.EventID == eventID {
		return t, nil
	}
	return nil, errs.ErrNotFound
}
func (f *fakeTickets) ListByEvent(_ context.Context, eventID uuid.UUID) ([]model.Ticket, error) {
	var out []model.Ticket
	for _, t := range f.byID {
		if t.EventID == eventID {
			out = append(out, *t)
		}
	}
	return out, nil
}
func (f *fakeTickets) Stats(context.Context, uuid.UUID) (model.EventStats, error) {
	return f.stats, nil
}

// fakeLedger implements at-most-once admission in memory; first writer per
// ticket wins, the rest observe duplicate.
type fakeLedger struct {
	mu       sync.Mutex
	seq      int64
	won      map[uuid.UUID]*model.CheckInRecord
	attempts []repository.CheckInAttempt
	statuses map[uuid.UUID]model.TicketStatus
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		won:      map[uuid.UUID]*model.CheckInRecord{},
		statuses: map[uuid.UUID]model.TicketStatus{},
	}
}

func (f *fakeLedger) Admit(_ context.Context, att repository.CheckInAttempt) (model.CheckInDecision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, att)
	f.seq++

	if st, ok := f.statuses[att.TicketID]; ok && st != model.TicketValid && st != model.TicketUsed {
		return model.CheckInDecision{Outcome: model.OutcomeRejected}, nil
	}
	if canonical, ok := f.won[att.TicketID]; ok {
		return model.CheckInDecision{Outcome: model.OutcomeDuplicate, Canonical: canonical}, nil
	}
	rec := &model.CheckInRecord{
		ID:         uuid.Must(uuid.NewV4()),
		Seq:        f.seq,
		TicketID:   att.TicketID,
		EventID:    att.EventID,
		ActorID:    att.ActorID,
		DeviceID:   att.DeviceID,
		ObservedAt: att.ObservedAt,
		Origin:     att.Origin,
		Outcome:    model.OutcomeAccepted,
		CreatedAt:  time.Now(),
	}
	f.won[att.TicketID] = rec
	f.statuses[att.TicketID] = model.TicketUsed
	return model.CheckInDecision{Outcome: model.OutcomeAccepted, Canonical: rec}, nil
}

var (
	_ repository.EventRepository   = (*fakeEvents)(nil)
	_ repository.GrantRepository   = (*fakeGrants)(nil)
	_ repository.TicketRepository  = (*fakeTickets)(nil)
	_ repository.CheckInRepository = (*fakeLedger)(nil)
)
