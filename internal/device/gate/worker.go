package gate

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/tixgate/tixgate/internal/device/local"
	"github.com/tixgate/tixgate/internal/device/reconcile"
	"github.com/tixgate/tixgate/internal/model"
)

// Worker owns the device database exclusively. All reads and writes of the
// manifest cache and the queue happen on its goroutine, one message at a
// time, so offline decisions are serialized without locks around SQLite.
type Worker struct {
	store      *local.Store
	queue      *local.Queue
	reconciler *reconcile.Reconciler
	log        *zap.Logger
	interval   time.Duration
	msgs       chan any
	kick       chan struct{}
}

// Each message carries the caller's context so per-request deadlines bind
// the database work, not just the handoff into the mailbox.
type validateMsg struct {
	ctx     context.Context
	eventID uuid.UUID
	code    string
	reply   chan validateReply
}

type validateReply struct {
	status model.ValidationStatus
	err    error
}

type checkInMsg struct {
	ctx        context.Context
	eventID    uuid.UUID
	code       string
	observedAt time.Time
	reply      chan checkInReply
}

type checkInReply struct {
	res Result
	err error
}

type loadManifestMsg struct {
	ctx   context.Context
	m     *model.Manifest
	reply chan error
}

type pendingMsg struct {
	ctx   context.Context
	reply chan pendingReply
}

type pendingReply struct {
	counts local.Counts
	err    error
}

type syncMsg struct {
	ctx   context.Context
	reply chan syncReply
}

type syncReply struct {
	report reconcile.Report
	err    error
}

// NewWorker constructs a Worker. interval is the periodic sync cadence; the
// worker also syncs when kicked by TriggerSync.
func NewWorker(store *local.Store, queue *local.Queue, rec *reconcile.Reconciler, log *zap.Logger, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &Worker{
		store:      store,
		queue:      queue,
		reconciler: rec,
		log:        log,
		interval:   interval,
		msgs:       make(chan any),
		kick:       make(chan struct{}, 1),
	}
}

// Run processes messages until the context is canceled. Call it on its own
// goroutine before using the Gate.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-w.msgs:
			w.handle(m)
		case <-ticker.C:
			w.backgroundSync(ctx)
		case <-w.kick:
			w.backgroundSync(ctx)
		}
	}
}

// TriggerSync requests a sync without blocking; a kick is coalesced with any
// already pending.
func (w *Worker) TriggerSync() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

func (w *Worker) handle(m any) {
	switch msg := m.(type) {
	case validateMsg:
		st, err := w.store.Validate(msg.ctx, msg.eventID, msg.code)
		msg.reply <- validateReply{status: st, err: err}
	case checkInMsg:
		res, err := w.decideOffline(msg.ctx, msg)
		msg.reply <- checkInReply{res: res, err: err}
	case loadManifestMsg:
		msg.reply <- w.store.LoadManifest(msg.ctx, msg.m)
	case pendingMsg:
		c, err := w.queue.Count(msg.ctx)
		msg.reply <- pendingReply{counts: c, err: err}
	case syncMsg:
		rep, err := w.reconciler.Sync(msg.ctx)
		msg.reply <- syncReply{report: rep, err: err}
	}
}

// decideOffline admits against the cached manifest. Only an entry that reads
// valid right now is queued; everything else is answered from the cache.
func (w *Worker) decideOffline(ctx context.Context, msg checkInMsg) (Result, error) {
	st, err := w.store.Validate(ctx, msg.eventID, msg.code)
	if err != nil {
		return Result{}, err
	}

	switch st {
	case model.ValidationOK:
		_, existed, err := w.queue.Enqueue(ctx, msg.eventID, model.NormalizeCodeHash(msg.code), msg.observedAt)
		if err != nil {
			return Result{}, err
		}
		if existed {
			return Result{Outcome: model.OutcomeDuplicate, Duplicate: true, Offline: true, Queued: true}, nil
		}
		return Result{Outcome: model.OutcomeAccepted, Offline: true, Queued: true}, nil

	case model.ValidationAlreadyUsed:
		return Result{Outcome: model.OutcomeDuplicate, Duplicate: true, Offline: true}, nil

	default:
		return Result{Outcome: model.OutcomeRejected, Status: st, Offline: true}, nil
	}
}

func (w *Worker) backgroundSync(ctx context.Context) {
	rep, err := w.reconciler.Sync(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		w.log.Error("background sync failed", zap.Error(err))
		return
	}
	if rep.Synced+rep.Conflicts+rep.Rejected+rep.Parked > 0 {
		w.log.Info("background sync finished",
			zap.Int("synced", rep.Synced),
			zap.Int("conflicts", rep.Conflicts),
			zap.Int("rejected", rep.Rejected),
			zap.Int("parked", rep.Parked))
	}
}

func (w *Worker) validate(ctx context.Context, eventID uuid.UUID, code string) (model.ValidationStatus, error) {
	reply := make(chan validateReply, 1)
	if err := w.post(ctx, validateMsg{ctx: ctx, eventID: eventID, code: code, reply: reply}); err != nil {
		return "", err
	}
	r := <-reply
	return r.status, r.err
}

func (w *Worker) checkIn(ctx context.Context, eventID uuid.UUID, code string, observedAt time.Time) (Result, error) {
	reply := make(chan checkInReply, 1)
	if err := w.post(ctx, checkInMsg{ctx: ctx, eventID: eventID, code: code, observedAt: observedAt, reply: reply}); err != nil {
		return Result{}, err
	}
	r := <-reply
	return r.res, r.err
}

func (w *Worker) loadManifest(ctx context.Context, m *model.Manifest) error {
	reply := make(chan error, 1)
	if err := w.post(ctx, loadManifestMsg{ctx: ctx, m: m, reply: reply}); err != nil {
		return err
	}
	return <-reply
}

func (w *Worker) pending(ctx context.Context) (local.Counts, error) {
	reply := make(chan pendingReply, 1)
	if err := w.post(ctx, pendingMsg{ctx: ctx, reply: reply}); err != nil {
		return local.Counts{}, err
	}
	r := <-reply
	return r.counts, r.err
}

func (w *Worker) syncNow(ctx context.Context) (reconcile.Report, error) {
	reply := make(chan syncReply, 1)
	if err := w.post(ctx, syncMsg{ctx: ctx, reply: reply}); err != nil {
		return reconcile.Report{}, err
	}
	r := <-reply
	return r.report, r.err
}

func (w *Worker) post(ctx context.Context, m any) error {
	select {
	case w.msgs <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
