package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/tixgate/tixgate/internal/errs"
	"github.com/tixgate/tixgate/internal/grant"
	"github.com/tixgate/tixgate/internal/model"
)

func newValidateFixture(t *testing.T) (*ValidateServiceImpl, *fakeGrants, uuid.UUID, *fakeTickets) {
	t.Helper()
	org := uuid.Must(uuid.NewV4())
	event := uuid.Must(uuid.NewV4())
	events := &fakeEvents{events: map[uuid.UUID]*model.Event{event: {ID: event, OrganizerID: org}}}
	grants := &fakeGrants{owner: uuid.Must(uuid.NewV4()), grants: map[uuid.UUID]*model.Grant{}}
	tickets := &fakeTickets{byID: map[uuid.UUID]*model.Ticket{}, byHash: map[string]*model.Ticket{}}
	svc := NewValidateService(grant.NewResolver(events, grants), tickets, 3)
	return svc, grants, event, tickets
}

func addTicket(tickets *fakeTickets, eventID uuid.UUID, code string, status model.TicketStatus, from, until time.Time) *model.Ticket {
	t := &model.Ticket{
		ID:       uuid.Must(uuid.NewV4()),
		EventID:  eventID,
		CodeHash: model.HashCode(code),
		Status:   status, ValidFrom: from, ValidUntil: until,
	}
	tickets.byID[t.ID] = t
	tickets.byHash[t.CodeHash] = t
	return t
}

func TestValidate_Statuses(t *testing.T) {
	t.Parallel()
	svc, grants, event, tickets := newValidateFixture(t)
	ctx := context.Background()
	sc := model.ScanContext{ActorID: grants.owner}

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	addTicket(tickets, event, "ok", model.TicketValid, past, future)
	addTicket(tickets, event, "used", model.TicketUsed, past, future)
	addTicket(tickets, event, "cancelled", model.TicketCancelled, past, future)
	addTicket(tickets, event, "transferred", model.TicketTransferred, past, future)
	addTicket(tickets, event, "expired", model.TicketValid, past.Add(-time.Hour), past)
	addTicket(tickets, event, "early", model.TicketValid, future, future.Add(time.Hour))

	cases := []struct {
		code string
		want model.ValidationStatus
	}{
		{"ok", model.ValidationOK},
		{"used", model.ValidationAlreadyUsed},
		{"cancelled", model.ValidationCancelled},
		{"transferred", model.ValidationTransferred},
		{"expired", model.ValidationExpired},
		{"early", model.ValidationNotYetValid},
		{"nope", model.ValidationNotFound},
	}
	for _, tc := range cases {
		got, err := svc.Validate(ctx, sc, event, tc.code)
		if err != nil {
			t.Fatalf("Validate(%q): %v", tc.code, err)
		}
		if got != tc.want {
			t.Fatalf("Validate(%q) = %s, want %s", tc.code, got, tc.want)
		}
	}

	// validation by pre-derived hash behaves identically
	got, err := svc.Validate(ctx, sc, event, model.HashCode("ok"))
	if err != nil || got != model.ValidationOK {
		t.Fatalf("Validate(hash) = %s, %v", got, err)
	}
}

func TestValidate_PermissionDenied(t *testing.T) {
	t.Parallel()
	svc, _, event, _ := newValidateFixture(t)

	stranger := uuid.Must(uuid.NewV4())
	_, err := svc.Validate(context.Background(), model.ScanContext{ActorID: stranger}, event, "ok")
	if !errors.Is(err, errs.ErrPermissionDenied) {
		t.Fatalf("want permission denied, got %v", err)
	}
}

func TestBatchValidate_BoundedAndOrdered(t *testing.T) {
	t.Parallel()
	svc, grants, event, tickets := newValidateFixture(t)
	ctx := context.Background()
	sc := model.ScanContext{ActorID: grants.owner}

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	addTicket(tickets, event, "a", model.TicketValid, past, future)
	addTicket(tickets, event, "b", model.TicketUsed, past, future)

	out, err := svc.BatchValidate(ctx, sc, event, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("BatchValidate: %v", err)
	}
	want := []model.ValidationStatus{model.ValidationOK, model.ValidationAlreadyUsed, model.ValidationNotFound}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("result[%d] = %s, want %s", i, out[i], want[i])
		}
	}

	if _, err := svc.BatchValidate(ctx, sc, event, []string{"a", "b", "c", "d"}); err == nil {
		t.Fatalf("want error on batch over bound")
	}

	empty, err := svc.BatchValidate(ctx, sc, event, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty batch: out=%v err=%v", empty, err)
	}
}
