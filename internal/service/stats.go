package service

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/tixgate/tixgate/internal/audit"
	"github.com/tixgate/tixgate/internal/errs"
	"github.com/tixgate/tixgate/internal/grant"
	"github.com/tixgate/tixgate/internal/model"
	"github.com/tixgate/tixgate/internal/repository"
)

// StatsService serves aggregate check-in progress behind the same grant
// check as the manifest endpoint.
type StatsService interface {
	Stats(ctx context.Context, sc model.ScanContext, eventID uuid.UUID) (model.EventStats, error)
}

type StatsServiceImpl struct {
	grants  *grant.Resolver
	tickets repository.TicketRepository
	audit   audit.Emitter
}

// NewStatsService constructs StatsService.
func NewStatsService(grants *grant.Resolver, tickets repository.TicketRepository, sink audit.Emitter) *StatsServiceImpl {
	return &StatsServiceImpl{grants: grants, tickets: tickets, audit: sink}
}

// Stats returns scanned/remaining counts for the event.
func (s *StatsServiceImpl) Stats(ctx context.Context, sc model.ScanContext, eventID uuid.UUID) (model.EventStats, error) {
	scope, err := s.grants.ResolveScope(ctx, sc.ActorID, eventID)
	if err != nil {
		return model.EventStats{}, err
	}
	if !scope.Allowed {
		s.audit.Emit(ctx, audit.Event{
			Kind: audit.KindAccessDenied, ActorID: sc.ActorID, DeviceID: sc.DeviceID,
			EventID: eventID, Outcome: string(scope.Reason),
		})
		return model.EventStats{}, errs.ErrPermissionDenied
	}
	st, err := s.tickets.Stats(ctx, eventID)
	if err != nil {
		return model.EventStats{}, err
	}
	s.audit.Emit(ctx, audit.Event{
		Kind: audit.KindStatsServed, ActorID: sc.ActorID, DeviceID: sc.DeviceID, EventID: eventID,
	})
	return st, nil
}
