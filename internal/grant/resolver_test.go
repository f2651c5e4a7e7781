package grant

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/tixgate/tixgate/internal/errs"
	"github.com/tixgate/tixgate/internal/model"
	"github.com/tixgate/tixgate/internal/repository"
)

type fakeEvents struct {
	events map[uuid.UUID]*model.Event
}

func (f *fakeEvents) GetEvent(_ context.Context, id uuid.UUID) (*model.Event, error) {
	if e, ok := f.events[id]; ok {
		return e, nil
	}
	return nil, errs.ErrNotFound
}

type fakeGrants struct {
	owner  uuid.UUID
	grants map[uuid.UUID]*model.Grant // actor -> grant
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

var (
	_ repository.EventRepository = (*fakeEvents)(nil)
	_ repository.GrantRepository = (*fakeGrants)(nil)
)

func TestResolver_ResolveScope(t *testing.T) {
	t.Parallel()

	owner := uuid.Must(uuid.NewV4())
	org := uuid.Must(uuid.NewV4())
	e1 := uuid.Must(uuid.NewV4())
	e2 := uuid.Must(uuid.NewV4())
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	events := &fakeEvents{events: map[uuid.UUID]*model.Event{
		e1: {ID: e1, OrganizerID: org},
		e2: {ID: e2, OrganizerID: org},
	}}

	mkActor := func(g *model.Grant) (uuid.UUID, *Resolver) {
		actor := uuid.Must(uuid.NewV4())
		grants := &fakeGrants{owner: owner, grants: map[uuid.UUID]*model.Grant{}}
		if g != nil {
			g.ActorID, g.OrganizerID = actor, org
			grants.grants[actor] = g
		}
		return actor, NewResolver(events, grants)
	}

	t.Run("owner bypass", func(t *testing.T) {
		_, r := mkActor(nil)
		sc, err := r.ResolveScope(context.Background(), owner, e1)
		if err != nil {
			t.Fatalf("ResolveScope: %v", err)
		}
		if !sc.Allowed || !sc.AllEvents {
			t.Fatalf("owner must get unconditional all-events scope, got %+v", sc)
		}
	})

	t.Run("no grant", func(t *testing.T) {
		actor, r := mkActor(nil)
		sc, err := r.ResolveScope(context.Background(), actor, e1)
		if err != nil {
			t.Fatalf("missing grant must not be an error, got %v", err)
		}
		if sc.Allowed || sc.Reason != ReasonNoGrant {
			t.Fatalf("want denied/no_grant, got %+v", sc)
		}
	})

	t.Run("inactive grant", func(t *testing.T) {
		actor, r := mkActor(&model.Grant{AllEvents: true, CanScan: true, Active: false})
		sc, _ := r.ResolveScope(context.Background(), actor, e1)
		if sc.Allowed || sc.Reason != ReasonInactive {
			t.Fatalf("want denied/inactive, got %+v", sc)
		}
	})

	t.Run("expired grant", func(t *testing.T) {
		actor, r := mkActor(&model.Grant{AllEvents: true, CanScan: true, Active: true, ValidUntil: &past})
		sc, _ := r.ResolveScope(context.Background(), actor, e1)
		if sc.Allowed || sc.Reason != ReasonExpired {
			t.Fatalf("want denied/expired, got %+v", sc)
		}
	})

	t.Run("grant without scan right", func(t *testing.T) {
		actor, r := mkActor(&model.Grant{AllEvents: true, CanScan: false, Active: true})
		sc, _ := r.ResolveScope(context.Background(), actor, e1)
		if sc.Allowed || sc.Reason != ReasonCannotScan {
			t.Fatalf("want denied/cannot_scan, got %+v", sc)
		}
	})

	t.Run("explicit set contains event", func(t *testing.T) {
		actor, r := mkActor(&model.Grant{EventIDs: []uuid.UUID{e1}, CanScan: true, Active: true, ValidUntil: &future})
		sc, err := r.ResolveScope(context.Background(), actor, e1)
		if err != nil || !sc.Allowed {
			t.Fatalf("want allowed, got %+v err=%v", sc, err)
		}
	})

	t.Run("explicit set excludes event", func(t *testing.T) {
		actor, r := mkActor(&model.Grant{EventIDs: []uuid.UUID{e1}, CanScan: true, Active: true})
		sc, _ := r.ResolveScope(context.Background(), actor, e2)
		if sc.Allowed || sc.Reason != ReasonNotPermitted {
			t.Fatalf("want denied/event_not_permitted, got %+v", sc)
		}
	})

	t.Run("unknown event", func(t *testing.T) {
		actor, r := mkActor(&model.Grant{AllEvents: true, CanScan: true, Active: true})
		if _, err := r.ResolveScope(context.Background(), actor, uuid.Must(uuid.NewV4())); err == nil {
			t.Fatalf("want not-found error for unknown event")
		}
	})
}

func TestResolver_ResolveOrganizerScope_AllEvents(t *testing.T) {
	t.Parallel()

	org := uuid.Must(uuid.NewV4())
	actor := uuid.Must(uuid.NewV4())
	grants := &fakeGrants{grants: map[uuid.UUID]*model.Grant{
		actor: {ActorID: actor, OrganizerID: org, AllEvents: true, CanScan: true, Active: true},
	}}
	r := NewResolver(&fakeEvents{}, grants)

	sc, err := r.ResolveOrganizerScope(context.Background(), actor, org)
	if err != nil {
		t.Fatalf("ResolveOrganizerScope: %v", err)
	}
	if !sc.Allowed || !sc.AllEvents {
		t.Fatalf("want all-events scope, got %+v", sc)
	}
}
