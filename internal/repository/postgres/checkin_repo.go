package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/tixgate/tixgate/internal/errs"
	"github.com/tixgate/tixgate/internal/model"
	"github.com/tixgate/tixgate/internal/repository"
)

// CheckInRepo implements the check-in ledger over PostgreSQL.
type CheckInRepo struct{ db *DB }

// NewCheckInRepo constructs a check-in repository.
func NewCheckInRepo(db *DB) *CheckInRepo { return &CheckInRepo{db: db} }

const recordCols = `id, seq, ticket_id, event_id, actor_id, device_id, observed_at, origin, outcome, created_at`

const insertRecord = `
INSERT INTO checkin_records (id, ticket_id, event_id, actor_id, device_id, observed_at, origin, outcome)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING seq, created_at`

// Admit performs the valid->used transition as a single conditional update
// keyed by ticket id, then records the attempt in the same transaction. Two
// concurrent calls for one ticket cannot both observe valid: the row update
// serializes them, and only the winner's UPDATE reports an affected row.
func (r *CheckInRepo) Admit(ctx context.Context, att repository.CheckInAttempt) (dec model.CheckInDecision, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.CheckInDecision{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	rec := model.CheckInRecord{
		TicketID:   att.TicketID,
		EventID:    att.EventID,
		ActorID:    att.ActorID,
		DeviceID:   att.DeviceID,
		ObservedAt: att.ObservedAt,
		Origin:     att.Origin,
	}
	if rec.ID, err = uuid.NewV4(); err != nil {
		return model.CheckInDecision{}, err
	}

	const cas = `UPDATE tickets SET status='used' WHERE id=$1 AND status='valid'`
	tag, err := tx.Exec(ctx, cas, att.TicketID)
	if err != nil {
		return model.CheckInDecision{}, err
	}

	if tag.RowsAffected() == 1 {
		rec.Outcome = model.OutcomeAccepted
		err = tx.QueryRow(ctx, insertRecord,
			rec.ID, rec.TicketID, rec.EventID, rec.ActorID, rec.DeviceID, rec.ObservedAt, rec.Origin, rec.Outcome,
		).Scan(&rec.Seq, &rec.CreatedAt)
		if err != nil {
			return model.CheckInDecision{}, err
		}
		return model.CheckInDecision{Outcome: model.OutcomeAccepted, Canonical: &rec}, nil
	}

	// Lost the race or the ticket was never admittable; find out which.
	var status model.TicketStatus
	err = tx.QueryRow(ctx, `SELECT status FROM tickets WHERE id=$1`, att.TicketID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		err = errs.ErrNotFound
		return model.CheckInDecision{}, err
	}
	if err != nil {
		return model.CheckInDecision{}, err
	}

	if status == model.TicketUsed {
		rec.Outcome = model.OutcomeDuplicate
		err = tx.QueryRow(ctx, insertRecord,
			rec.ID, rec.TicketID, rec.EventID, rec.ActorID, rec.DeviceID, rec.ObservedAt, rec.Origin, rec.Outcome,
		).Scan(&rec.Seq, &rec.CreatedAt)
		if err != nil {
			return model.CheckInDecision{}, err
		}
		canonical, cerr := r.canonical(ctx, tx, att.TicketID)
		if cerr != nil {
			err = cerr
			return model.CheckInDecision{}, err
		}
		return model.CheckInDecision{Outcome: model.OutcomeDuplicate, Canonical: canonical}, nil
	}

	// cancelled or transferred: terminal for admission purposes.
	rec.Outcome = model.OutcomeRejected
	err = tx.QueryRow(ctx, insertRecord,
		rec.ID, rec.TicketID, rec.EventID, rec.ActorID, rec.DeviceID, rec.ObservedAt, rec.Origin, rec.Outcome,
	).Scan(&rec.Seq, &rec.CreatedAt)
	if err != nil {
		return model.CheckInDecision{}, err
	}
	return model.CheckInDecision{Outcome: model.OutcomeRejected}, nil
}

// canonical returns the single accepted record for the ticket, if any. The
// partial unique index on (ticket_id) WHERE outcome='accepted' guarantees at
// most one exists.
func (r *CheckInRepo) canonical(ctx context.Context, tx pgx.Tx, ticketID uuid.UUID) (*model.CheckInRecord, error) {
	const q = `SELECT ` + recordCols + ` FROM checkin_records WHERE ticket_id=$1 AND outcome='accepted'`
	var c model.CheckInRecord
	err := tx.QueryRow(ctx, q, ticketID).Scan(
		&c.ID, &c.Seq, &c.TicketID, &c.EventID, &c.ActorID, &c.DeviceID, &c.ObservedAt, &c.Origin, &c.Outcome, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		// used was set outside the ledger; duplicate stands, no canonical record.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
