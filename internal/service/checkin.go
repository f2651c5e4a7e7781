package service

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

// CheckInService is the check-in authority: the single source of truth for
// ticket usage state. It re-validates the grant at call time (a device's
// cached permission may be stale) and delegates the atomic valid->used
// transition to the ledger.
type CheckInService interface {
	// CheckIn decides admission for a ticket by id.
	CheckIn(ctx context.Context, sc model.ScanContext, ticketID uuid.UUID, observedAt time.Time, origin model.Origin) (model.CheckInDecision, error)
	// CheckInByCode decides admission for a ticket identified by its
	// presentable code or code hash within an event.
	CheckInByCode(ctx context.Context, sc model.ScanContext, eventID uuid.UUID, codeOrHash string, observedAt time.Time, origin model.Origin) (model.CheckInDecision, error)
}

type CheckInServiceImpl struct {
	grants  *grant.Resolver
	tickets repository.TicketRepository
	ledger  repository.CheckInRepository
	audit   audit.Emitter
	now     func() time.Time
}

// NewCheckInService constructs the check-in authority.
func NewCheckInService(grants *grant.Resolver, tickets repository.TicketRepository, ledger repository.CheckInRepository, sink audit.Emitter) *CheckInServiceImpl {
	return &CheckInServiceImpl{grants: grants, tickets: tickets, ledger: ledger, audit: sink, now: time.Now}
}

// CheckIn looks up the ticket and decides admission.
func (s *CheckInServiceImpl) CheckIn(ctx context.Context, sc model.ScanContext, ticketID uuid.UUID, observedAt time.Time, origin model.Origin) (model.CheckInDecision, error) {
	t, err := s.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return model.CheckInDecision{}, err
	}
	return s.decide(ctx, sc, t, observedAt, origin)
}

// CheckInByCode resolves the ticket within the event by code hash first;
// scanners hold codes, not ticket ids.
func (s *CheckInServiceImpl) CheckInByCode(ctx context.Context, sc model.ScanContext, eventID uuid.UUID, codeOrHash string, observedAt time.Time, origin model.Origin) (model.CheckInDecision, error) {
	t, err := s.tickets.GetTicketByCodeHash(ctx, eventID, model.NormalizeCodeHash(codeOrHash))
	if err != nil {
		return model.CheckInDecision{}, err
	}
	return s.decide(ctx, sc, t, observedAt, origin)
}

func (s *CheckInServiceImpl) decide(ctx context.Context, sc model.ScanContext, t *model.Ticket, observedAt time.Time, origin model.Origin) (model.CheckInDecision, error) {
	scope, err := s.grants.ResolveScope(ctx, sc.ActorID, t.EventID)
	if err != nil {
		return model.CheckInDecision{}, err
	}
	if !scope.Allowed {
		s.audit.Emit(ctx, audit.Event{
			Kind: audit.KindAccessDenied, ActorID: sc.ActorID, DeviceID: sc.DeviceID,
			EventID: t.EventID, TicketID: t.ID, Outcome: string(scope.Reason),
		})
		return model.CheckInDecision{}, errs.ErrPermissionDenied
	}

	// observedAt is the untrusted client clock, stored for reporting only;
	// server arrival order decides ties.
	if observedAt.IsZero() {
		observedAt = s.now()
	}
	if origin == "" {
		origin = model.OriginOnline
	}

	dec, err := s.ledger.Admit(ctx, repository.CheckInAttempt{
		TicketID:   t.ID,
		EventID:    t.EventID,
		ActorID:    sc.ActorID,
		DeviceID:   sc.DeviceID,
		ObservedAt: observedAt,
		Origin:     origin,
	})
	if err != nil {
		return model.CheckInDecision{}, err
	}

	s.audit.Emit(ctx, audit.Event{
		Kind: audit.KindCheckInDecided, ActorID: sc.ActorID, DeviceID: sc.DeviceID,
		EventID: t.EventID, TicketID: t.ID, Outcome: string(dec.Outcome),
	})
	return dec, nil
}
