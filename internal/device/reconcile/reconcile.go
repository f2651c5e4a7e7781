// Package reconcile drains the device's offline check-in queue against the
// gate server once connectivity returns.
package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/tixgate/tixgate/internal/device/client"
	"github.com/tixgate/tixgate/internal/device/local"
	"github.com/tixgate/tixgate/internal/errs"
	"github.com/tixgate/tixgate/internal/model"
)

// API is the slice of the gate server the reconciler needs.
type API interface {
	CheckIn(ctx context.Context, req client.CheckInRequest) (client.CheckInResult, error)
}

// Queue is the durable queue surface the reconciler drives.
type Queue interface {
	ListPending(ctx context.Context, afterID int64, limit int) ([]local.Record, error)
	MarkSynced(ctx context.Context, localID int64, conflict bool) error
	MarkRejected(ctx context.Context, localID int64) error
	RecordFailure(ctx context.Context, localID int64) (bool, error)
}

// Report summarizes one sync run.
type Report struct {
	Synced    int // accepted by the server
	Conflicts int // another device holds the canonical check-in
	Rejected  int // refused on ticket state, parked for review
	Requeued  int // retryable failure, still pending
	Parked    int // retryable failures exhausted, parked for review
}

// Done reports whether the run left nothing pending behind it.
func (r Report) Done() bool { return r.Requeued == 0 }

// Reconciler uploads queued check-ins in bounded batches. Each record's final
// state is committed individually, so an interrupted run is resumable from
// whatever is still pending; nothing is ever dropped without a durable mark.
type Reconciler struct {
	queue        Queue
	api          API
	log          *zap.Logger
	batchSize    int
	batchTimeout time.Duration
}

// New constructs a Reconciler.
func New(queue Queue, api API, log *zap.Logger) *Reconciler {
	return &Reconciler{
		queue:        queue,
		api:          api,
		log:          log,
		batchSize:    50,
		batchTimeout: 30 * time.Second,
	}
}

// Sync drains the pending queue. It stops early when the server becomes
// unreachable mid-run, returning what it managed; remaining records stay
// pending and the next run picks them up.
func (r *Reconciler) Sync(ctx context.Context) (Report, error) {
	var (
		rep     Report
		afterID int64
	)
	for {
		batch, err := r.queue.ListPending(ctx, afterID, r.batchSize)
		if err != nil {
			return rep, err
		}
		if len(batch) == 0 {
			return rep, nil
		}

		bctx, cancel := context.WithTimeout(ctx, r.batchTimeout)
		stopped, err := r.drain(bctx, batch, &rep)
		cancel()
		if err != nil {
			return rep, err
		}
		if stopped {
			return rep, nil
		}
		afterID = batch[len(batch)-1].LocalID
	}
}

// drain uploads one batch. stopped is set when the link died mid-batch: the
// whole run must end rather than hammering a dead server with the remaining
// batches.
func (r *Reconciler) drain(ctx context.Context, batch []local.Record, rep *Report) (stopped bool, err error) {
	for _, rec := range batch {
		res, err := r.submit(ctx, rec)
		switch {
		case err == nil:
			if err := r.settle(ctx, rec, res, rep); err != nil {
				return false, err
			}

		case client.IsOffline(err) || errors.Is(err, context.DeadlineExceeded):
			// Link is gone; leave everything from here on pending.
			r.log.Info("sync interrupted, queue remains pending",
				zap.Int64("local_id", rec.LocalID), zap.Error(err))
			rep.Requeued++
			return true, nil

		default:
			// Server answered with a denial (permissions, throttling after
			// retries). Count the attempt; park for review once exhausted.
			parked, ferr := r.queue.RecordFailure(ctx, rec.LocalID)
			if ferr != nil {
				return false, ferr
			}
			if parked {
				rep.Parked++
				r.log.Warn("queued check-in parked for review",
					zap.Int64("local_id", rec.LocalID), zap.Error(err))
			} else {
				rep.Requeued++
			}
		}
	}
	return false, nil
}

// submit uploads one record, retrying locally on throttling with fibonacci
// backoff. The replay carries the original observation time and offline
// origin so the server's ledger reflects what happened at the gate.
func (r *Reconciler) submit(ctx context.Context, rec local.Record) (client.CheckInResult, error) {
	req := client.CheckInRequest{
		EventID:          rec.EventID,
		Code:             rec.CodeHash,
		Origin:           model.OriginOffline,
		OfflineTimestamp: &rec.ObservedAt,
	}

	var res client.CheckInResult
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		res, err = r.api.CheckIn(ctx, req)
		if errors.Is(err, errs.ErrRateLimited) {
			return retry.RetryableError(err)
		}
		return err
	})
	return res, err
}

func (r *Reconciler) settle(ctx context.Context, rec local.Record, res client.CheckInResult, rep *Report) error {
	switch res.Outcome {
	case model.OutcomeAccepted:
		rep.Synced++
		return r.queue.MarkSynced(ctx, rec.LocalID, false)

	case model.OutcomeDuplicate:
		rep.Conflicts++
		if res.Canonical != nil && res.Canonical.DeviceID != rec.DeviceID {
			r.log.Info("check-in conflict: another device was first",
				zap.Int64("local_id", rec.LocalID),
				zap.String("canonical_device", res.Canonical.DeviceID))
		}
		return r.queue.MarkSynced(ctx, rec.LocalID, true)

	default: // rejected: the ticket turned out cancelled or transferred
		rep.Rejected++
		r.log.Warn("queued check-in rejected by server",
			zap.Int64("local_id", rec.LocalID),
			zap.String("event_id", rec.EventID.String()))
		return r.queue.MarkRejected(ctx, rec.LocalID)
	}
}
