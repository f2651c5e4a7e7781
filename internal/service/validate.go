package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/tixgate/tixgate/internal/errs"
	"github.com/tixgate/tixgate/internal/grant"
	"github.com/tixgate/tixgate/internal/model"
	"github.com/tixgate/tixgate/internal/repository"
)

// ValidateService answers real-time, connected validation queries. It never
// changes ticket state; admission goes through CheckInService.
type ValidateService interface {
	// Validate reports the current status of one code within an event.
	Validate(ctx context.Context, sc model.ScanContext, eventID uuid.UUID, codeOrHash string) (model.ValidationStatus, error)
	// BatchValidate is the bounded array form of Validate.
	BatchValidate(ctx context.Context, sc model.ScanContext, eventID uuid.UUID, codes []string) ([]model.ValidationStatus, error)
}

type ValidateServiceImpl struct {
	grants   *grant.Resolver
	tickets  repository.TicketRepository
	maxBatch int
	now      func() time.Time
}

// NewValidateService constructs ValidateService with a batch bound.
func NewValidateService(grants *grant.Resolver, tickets repository.TicketRepository, maxBatch int) *ValidateServiceImpl {
	if maxBatch <= 0 {
		maxBatch = 100
	}
	return &ValidateServiceImpl{grants: grants, tickets: tickets, maxBatch: maxBatch, now: time.Now}
}

// Validate checks permission, then looks the code up in the event.
func (s *ValidateServiceImpl) Validate(ctx context.Context, sc model.ScanContext, eventID uuid.UUID, codeOrHash string) (model.ValidationStatus, error) {
	scope, err := s.grants.ResolveScope(ctx, sc.ActorID, eventID)
	if err != nil {
		return "", err
	}
	if !scope.Allowed {
		return "", errs.ErrPermissionDenied
	}
	return s.lookup(ctx, eventID, codeOrHash)
}

// BatchValidate resolves permission once and validates each code; results
// keep input order.
func (s *ValidateServiceImpl) BatchValidate(ctx context.Context, sc model.ScanContext, eventID uuid.UUID, codes []string) ([]model.ValidationStatus, error) {
	if len(codes) == 0 {
		return []model.ValidationStatus{}, nil
	}
	if len(codes) > s.maxBatch {
		return nil, fmt.Errorf("validation: batch too large (%d > %d)", len(codes), s.maxBatch)
	}
	scope, err := s.grants.ResolveScope(ctx, sc.ActorID, eventID)
	if err != nil {
		return nil, err
	}
	if !scope.Allowed {
		return nil, errs.ErrPermissionDenied
	}

	out := make([]model.ValidationStatus, 0, len(codes))
	for _, code := range codes {
		st, err := s.lookup(ctx, eventID, code)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *ValidateServiceImpl) lookup(ctx context.Context, eventID uuid.UUID, codeOrHash string) (model.ValidationStatus, error) {
	t, err := s.tickets.GetTicketByCodeHash(ctx, eventID, model.NormalizeCodeHash(codeOrHash))
	if errors.Is(err, errs.ErrNotFound) {
		return model.ValidationNotFound, nil
	}
	if err != nil {
		return "", err
	}
	return model.StatusOf(t, s.now()), nil
}
