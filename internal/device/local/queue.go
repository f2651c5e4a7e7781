package local

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/tixgate/tixgate/internal/model"
)

// Record is one locally captured check-in awaiting (or done with) upload.
type Record struct {
	LocalID     int64
	EventID     uuid.UUID
	CodeHash    string
	DeviceID    string
	ObservedAt  time.Time
	Origin      model.Origin
	SyncState   model.SyncState
	Attempts    int
	Conflict    bool
	NeedsReview bool
	CreatedAt   time.Time
}

// Queue is the durable offline check-in queue. Enqueue is idempotent per
// (event, code): scanning the same ticket twice on one device yields a single
// queued record, and the second scan is reported as a duplicate locally.
type Queue struct {
	db          *sql.DB
	deviceID    string
	maxAttempts int
	now         func() time.Time
}

// NewQueue constructs a Queue. maxAttempts bounds retries per record before
// it is parked for operator review.
func NewQueue(db *sql.DB, deviceID string, maxAttempts int) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Queue{db: db, deviceID: deviceID, maxAttempts: maxAttempts, now: time.Now}
}

const recordCols = `local_id, event_id, code_hash, device_id, observed_at, origin, sync_state, attempts, conflict, needs_review, created_at`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var (
		r                   Record
		eventID             string
		observed, created   int64
		conflict, needsRevw int
	)
	err := row.Scan(&r.LocalID, &eventID, &r.CodeHash, &r.DeviceID, &observed,
		&r.Origin, &r.SyncState, &r.Attempts, &conflict, &needsRevw, &created)
	if err != nil {
		return Record{}, err
	}
	if r.EventID, err = uuid.FromString(eventID); err != nil {
		return Record{}, err
	}
	r.ObservedAt = time.Unix(observed, 0)
	r.CreatedAt = time.Unix(created, 0)
	r.Conflict = conflict != 0
	r.NeedsReview = needsRevw != 0
	return r, nil
}

// Enqueue captures an offline check-in and flips the cached manifest entry to
// used in the same transaction. The returned existed flag is true when the
// ticket was already queued (or already uploaded) from this device; no second
// record is written then.
func (q *Queue) Enqueue(ctx context.Context, eventID uuid.UUID, codeHash string, observedAt time.Time) (rec Record, existed bool, err error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	row := tx.QueryRowContext(ctx,
		`SELECT `+recordCols+` FROM checkin_queue WHERE event_id=? AND code_hash=?`,
		eventID.String(), codeHash)
	rec, err = scanRecord(row)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, err
	}

	now := q.now()
	res, err := tx.ExecContext(ctx, `
INSERT INTO checkin_queue (event_id, code_hash, device_id, observed_at, origin, sync_state, created_at)
VALUES (?,?,?,?,?,?,?)`,
		eventID.String(), codeHash, q.deviceID, observedAt.Unix(),
		string(model.OriginOffline), string(model.SyncPending), now.Unix())
	if err != nil {
		return Record{}, false, err
	}
	localID, err := res.LastInsertId()
	if err != nil {
		return Record{}, false, err
	}
	if err = markUsed(ctx, tx, eventID, codeHash); err != nil {
		return Record{}, false, err
	}

	return Record{
		LocalID:    localID,
		EventID:    eventID,
		CodeHash:   codeHash,
		DeviceID:   q.deviceID,
		ObservedAt: observedAt,
		Origin:     model.OriginOffline,
		SyncState:  model.SyncPending,
		CreatedAt:  now,
	}, false, nil
}

// ListPending returns up to limit pending records with local_id beyond
// afterID, oldest first. Records parked for review are excluded.
func (q *Queue) ListPending(ctx context.Context, afterID int64, limit int) ([]Record, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT `+recordCols+` FROM checkin_queue
WHERE sync_state=? AND needs_review=0 AND local_id>?
ORDER BY local_id LIMIT ?`,
		string(model.SyncPending), afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkSynced finalizes a record after the server accepted the upload.
// conflict is set when the server reported another device as the canonical
// check-in; the record is done either way.
func (q *Queue) MarkSynced(ctx context.Context, localID int64, conflict bool) error {
	c := 0
	if conflict {
		c = 1
	}
	_, err := q.db.ExecContext(ctx,
		`UPDATE checkin_queue SET sync_state=?, conflict=? WHERE local_id=?`,
		string(model.SyncSynced), c, localID)
	return err
}

// MarkRejected finalizes a record the server refused on ticket state (not
// permissions). These always need operator attention: the holder is inside.
func (q *Queue) MarkRejected(ctx context.Context, localID int64) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE checkin_queue SET sync_state=?, needs_review=1 WHERE local_id=?`,
		string(model.SyncRejected), localID)
	return err
}

// RecordFailure bumps the attempt counter after a retryable upload failure
// and reports whether the record was parked for review on reaching the
// attempt bound.
func (q *Queue) RecordFailure(ctx context.Context, localID int64) (parked bool, err error) {
	var attempts int
	err = q.db.QueryRowContext(ctx,
		`UPDATE checkin_queue SET attempts=attempts+1 WHERE local_id=? RETURNING attempts`,
		localID).Scan(&attempts)
	if err != nil {
		return false, err
	}
	if attempts < q.maxAttempts {
		return false, nil
	}
	_, err = q.db.ExecContext(ctx,
		`UPDATE checkin_queue SET needs_review=1 WHERE local_id=?`, localID)
	return true, err
}

// Counts summarizes the queue for status display.
type Counts struct {
	Pending     int64
	Synced      int64
	Conflicts   int64
	NeedsReview int64
}

// Count returns the queue summary.
func (q *Queue) Count(ctx context.Context) (Counts, error) {
	var c Counts
	err := q.db.QueryRowContext(ctx, `
SELECT
  count(*) FILTER (WHERE sync_state='pending' AND needs_review=0),
  count(*) FILTER (WHERE sync_state='synced'),
  count(*) FILTER (WHERE conflict=1),
  count(*) FILTER (WHERE needs_review=1)
FROM checkin_queue`).Scan(&c.Pending, &c.Synced, &c.Conflicts, &c.NeedsReview)
	return c, err
}

// ListNeedsReview returns records parked for operator review, oldest first.
func (q *Queue) ListNeedsReview(ctx context.Context) ([]Record, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+recordCols+` FROM checkin_queue WHERE needs_review=1 ORDER BY local_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
