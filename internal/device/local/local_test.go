package local

import (
	"context"
	"crypto/ed25519"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/tixgate/tixgate/internal/errs"
	"github.com/tixgate/tixgate/internal/manifest"
	"github.com/tixgate/tixgate/internal/model"
)

var clock = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store  *Store
	queue  *Queue
	signer *manifest.Signer
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := Open(ctx, filepath.Join(t.TempDir(), "device.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	fx := &fixture{
		signer: manifest.NewSigner(priv),
		now:    clock,
	}
	fx.store = NewStore(db, manifest.NewVerifier(pub))
	fx.store.now = func() time.Time { return fx.now }
	fx.queue = NewQueue(db, "gate-7", 3)
	fx.queue.now = func() time.Time { return fx.now }
	return fx
}

func (fx *fixture) manifest(t *testing.T, eventID uuid.UUID, entries []model.ManifestEntry) *model.Manifest {
	t.Helper()
	m := &model.Manifest{
		EventID:   eventID,
		IssuedAt:  fx.now,
		ExpiresAt: fx.now.Add(6 * time.Hour),
		Entries:   entries,
	}
	require.NoError(t, fx.signer.Sign(m))
	return m
}

func entry(code string, status model.TicketStatus, now time.Time) model.ManifestEntry {
	return model.ManifestEntry{
		CodeHash:   model.HashCode(code),
		Status:     status,
		ValidFrom:  now.Add(-time.Hour),
		ValidUntil: now.Add(12 * time.Hour),
	}
}

func TestStore_LoadAndValidate(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	eventID := uuid.Must(uuid.NewV4())

	m := fx.manifest(t, eventID, []model.ManifestEntry{
		entry("TIX-001", model.TicketValid, fx.now),
		entry("TIX-002", model.TicketUsed, fx.now),
		entry("TIX-003", model.TicketCancelled, fx.now),
	})
	require.NoError(t, fx.store.LoadManifest(ctx, m))

	cases := []struct {
		code string
		want model.ValidationStatus
	}{
		{"TIX-001", model.ValidationOK},
		{"TIX-002", model.ValidationAlreadyUsed},
		{"TIX-003", model.ValidationCancelled},
		{"TIX-404", model.ValidationNotFound},
	}
	for _, tc := range cases {
		got, err := fx.store.Validate(ctx, eventID, tc.code)
		require.NoError(t, err, tc.code)
		require.Equal(t, tc.want, got, tc.code)
	}

	// hash input resolves the same as the raw code
	got, err := fx.store.Validate(ctx, eventID, model.HashCode("TIX-001"))
	require.NoError(t, err)
	require.Equal(t, model.ValidationOK, got)
}

func TestStore_RejectsTamperedManifest(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	eventID := uuid.Must(uuid.NewV4())

	m := fx.manifest(t, eventID, []model.ManifestEntry{entry("TIX-001", model.TicketCancelled, fx.now)})
	m.Entries[0].Status = model.TicketValid

	err := fx.store.LoadManifest(ctx, m)
	require.ErrorIs(t, err, errs.ErrManifestInvalid)

	_, err = fx.store.Validate(ctx, eventID, "TIX-001")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestStore_ExpiredManifestDeniesService(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	eventID := uuid.Must(uuid.NewV4())

	m := fx.manifest(t, eventID, []model.ManifestEntry{entry("TIX-001", model.TicketValid, fx.now)})
	require.NoError(t, fx.store.LoadManifest(ctx, m))

	fx.now = fx.now.Add(7 * time.Hour)
	_, err := fx.store.Validate(ctx, eventID, "TIX-001")
	require.ErrorIs(t, err, errs.ErrManifestExpired)

	n, err := fx.store.PruneExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	infos, err := fx.store.Manifests(ctx)
	require.NoError(t, err)
	require.Empty(t, infos)
}

func TestStore_ReloadReplacesSnapshot(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	eventID := uuid.Must(uuid.NewV4())

	require.NoError(t, fx.store.LoadManifest(ctx, fx.manifest(t, eventID,
		[]model.ManifestEntry{entry("TIX-001", model.TicketValid, fx.now)})))
	require.NoError(t, fx.store.LoadManifest(ctx, fx.manifest(t, eventID,
		[]model.ManifestEntry{entry("TIX-001", model.TicketCancelled, fx.now)})))

	got, err := fx.store.Validate(ctx, eventID, "TIX-001")
	require.NoError(t, err)
	require.Equal(t, model.ValidationCancelled, got)

	infos, err := fx.store.Manifests(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, 1, infos[0].Entries)
}

func TestQueue_EnqueueIdempotentAndFlipsLocalStatus(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	eventID := uuid.Must(uuid.NewV4())
	hash := model.HashCode("TIX-001")

	require.NoError(t, fx.store.LoadManifest(ctx, fx.manifest(t, eventID,
		[]model.ManifestEntry{entry("TIX-001", model.TicketValid, fx.now)})))

	rec, existed, err := fx.queue.Enqueue(ctx, eventID, hash, fx.now)
	require.NoError(t, err)
	require.False(t, existed)
	require.Equal(t, model.SyncPending, rec.SyncState)
	require.Equal(t, "gate-7", rec.DeviceID)
	require.Equal(t, model.OriginOffline, rec.Origin)

	// second scan of the same ticket: no new record
	again, existed, err := fx.queue.Enqueue(ctx, eventID, hash, fx.now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, existed)
	require.Equal(t, rec.LocalID, again.LocalID)

	// and the cached entry now reads used
	got, err := fx.store.Validate(ctx, eventID, "TIX-001")
	require.NoError(t, err)
	require.Equal(t, model.ValidationAlreadyUsed, got)
}

func TestQueue_PendingLifecycle(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	eventID := uuid.Must(uuid.NewV4())

	var ids []int64
	for _, code := range []string{"A", "B", "C"} {
		rec, _, err := fx.queue.Enqueue(ctx, eventID, model.HashCode(code), fx.now)
		require.NoError(t, err)
		ids = append(ids, rec.LocalID)
	}

	pending, err := fx.queue.ListPending(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	// cursor pagination
	page, err := fx.queue.ListPending(ctx, ids[0], 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, ids[1], page[0].LocalID)

	require.NoError(t, fx.queue.MarkSynced(ctx, ids[0], false))
	require.NoError(t, fx.queue.MarkSynced(ctx, ids[1], true))
	require.NoError(t, fx.queue.MarkRejected(ctx, ids[2]))

	pending, err = fx.queue.ListPending(ctx, 0, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	c, err := fx.queue.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, Counts{Pending: 0, Synced: 2, Conflicts: 1, NeedsReview: 1}, c)

	review, err := fx.queue.ListNeedsReview(ctx)
	require.NoError(t, err)
	require.Len(t, review, 1)
	require.Equal(t, model.SyncRejected, review[0].SyncState)
}

func TestQueue_FailuresParkAfterBound(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	eventID := uuid.Must(uuid.NewV4())

	rec, _, err := fx.queue.Enqueue(ctx, eventID, model.HashCode("A"), fx.now)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		parked, err := fx.queue.RecordFailure(ctx, rec.LocalID)
		require.NoError(t, err)
		require.False(t, parked)
	}
	parked, err := fx.queue.RecordFailure(ctx, rec.LocalID)
	require.NoError(t, err)
	require.True(t, parked)

	pending, err := fx.queue.ListPending(ctx, 0, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	review, err := fx.queue.ListNeedsReview(ctx)
	require.NoError(t, err)
	require.Len(t, review, 1)
	require.Equal(t, 3, review[0].Attempts)
}
