// Package gate is the scanner device's decision front-end. Online it defers
// to the server; when the server is unreachable it falls back to the cached
// manifest and the durable queue, and flags every such decision as offline.
package gate

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/tixgate/tixgate/internal/device/client"
	"github.com/tixgate/tixgate/internal/device/local"
	"github.com/tixgate/tixgate/internal/device/reconcile"
	"github.com/tixgate/tixgate/internal/model"
)

// OnlineAPI is the slice of the server client the gate uses.
type OnlineAPI interface {
	Validate(ctx context.Context, eventID uuid.UUID, code string) (model.ValidationStatus, error)
	CheckIn(ctx context.Context, req client.CheckInRequest) (client.CheckInResult, error)
	Manifest(ctx context.Context, eventID uuid.UUID) (*model.Manifest, error)
}

// ValidateResult is a validation answer plus where it came from.
type ValidateResult struct {
	Status  model.ValidationStatus
	Offline bool
}

// Result is a check-in decision. Queued means the admission is provisional:
// captured locally, awaiting upload, and may still come back a duplicate.
type Result struct {
	Outcome   model.CheckInOutcome
	Status    model.ValidationStatus // set when the outcome is rejected
	Duplicate bool
	Offline   bool
	Queued    bool
	Canonical *client.CanonicalRecord
}

// Gate routes scans between the online client and the offline worker. A
// server denial (permissions, throttling) is returned as-is and never
// downgraded to an offline decision; only transport failure flips the path.
type Gate struct {
	api     OnlineAPI
	worker  *Worker
	log     *zap.Logger
	offline atomic.Bool
}

// New constructs a Gate over a started worker.
func New(api OnlineAPI, worker *Worker, log *zap.Logger) *Gate {
	return &Gate{api: api, worker: worker, log: log}
}

// Validate answers from the server when reachable, else from the cached
// manifest.
func (g *Gate) Validate(ctx context.Context, eventID uuid.UUID, code string) (ValidateResult, error) {
	st, err := g.api.Validate(ctx, eventID, code)
	if err == nil {
		g.cameOnline()
		return ValidateResult{Status: st}, nil
	}
	if !client.IsOffline(err) {
		return ValidateResult{}, err
	}
	g.wentOffline(err)

	st, err = g.worker.validate(ctx, eventID, code)
	if err != nil {
		return ValidateResult{}, err
	}
	return ValidateResult{Status: st, Offline: true}, nil
}

// CheckIn admits a ticket by event and code. Offline, an admissible ticket is
// queued durably and locally marked used before the result is returned, so a
// crash cannot lose an admitted holder.
func (g *Gate) CheckIn(ctx context.Context, eventID uuid.UUID, code string, observedAt time.Time) (Result, error) {
	res, err := g.api.CheckIn(ctx, client.CheckInRequest{
		EventID: eventID,
		Code:    code,
		Origin:  model.OriginOnline,
	})
	if err == nil {
		g.cameOnline()
		out := Result{
			Outcome:   res.Outcome,
			Duplicate: res.Duplicate,
			Canonical: res.Canonical,
		}
		return out, nil
	}
	if !client.IsOffline(err) {
		return Result{}, err
	}
	g.wentOffline(err)

	return g.worker.checkIn(ctx, eventID, code, observedAt)
}

// PullManifest fetches a fresh manifest and hands it to the worker for
// verified persistence. Online only.
func (g *Gate) PullManifest(ctx context.Context, eventID uuid.UUID) error {
	m, err := g.api.Manifest(ctx, eventID)
	if err != nil {
		return err
	}
	return g.worker.loadManifest(ctx, m)
}

// Sync drains the offline queue now.
func (g *Gate) Sync(ctx context.Context) (reconcile.Report, error) {
	return g.worker.syncNow(ctx)
}

// Pending summarizes the offline queue.
func (g *Gate) Pending(ctx context.Context) (local.Counts, error) {
	return g.worker.pending(ctx)
}

func (g *Gate) wentOffline(err error) {
	if !g.offline.Swap(true) {
		g.log.Warn("gate server unreachable, operating offline", zap.Error(err))
	}
}

// cameOnline kicks a background sync the first time the link returns after
// an offline stretch.
func (g *Gate) cameOnline() {
	if g.offline.Swap(false) {
		g.log.Info("connectivity restored, scheduling sync")
		g.worker.TriggerSync()
	}
}
