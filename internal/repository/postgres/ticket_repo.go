package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/tixgate/tixgate/internal/errs"
	"github.com/tixgate/tixgate/internal/model"
)

// TicketRepo implements TicketRepository using PostgreSQL.
type TicketRepo struct{ db *DB }

// NewTicketRepo constructs a ticket repository.
func NewTicketRepo(db *DB) *TicketRepo { return &TicketRepo{db: db} }

const ticketCols = `id, event_id, code_hash, status, valid_from, valid_until`

func scanTicket(row pgx.Row) (*model.Ticket, error) {
	var t model.Ticket
	err := row.Scan(&t.ID, &t.EventID, &t.CodeHash, &t.Status, &t.ValidFrom, &t.ValidUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTicket returns a ticket by id.
func (r *TicketRepo) GetTicket(ctx context.Context, id uuid.UUID) (*model.Ticket, error) {
	const q = `SELECT ` + ticketCols + ` FROM tickets WHERE id=$1`
	return scanTicket(r.db.Pool.QueryRow(ctx, q, id))
}

// GetTicketByCodeHash returns the event's ticket with the given code hash.
func (r *TicketRepo) GetTicketByCodeHash(ctx context.Context, eventID uuid.UUID, codeHash string) (*model.Ticket, error) {
	const q = `SELECT ` + ticketCols + ` FROM tickets WHERE event_id=$1 AND code_hash=$2`
	return scanTicket(r.db.Pool.QueryRow(ctx, q, eventID, codeHash))
}

// ListByEvent returns all tickets of an event ordered by code hash.
func (r *TicketRepo) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]model.Ticket, error) {
	const q = `SELECT ` + ticketCols + ` FROM tickets WHERE event_id=$1 ORDER BY code_hash`
	rows, err := r.db.Pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Ticket
	for rows.Next() {
		var t model.Ticket
		if err = rows.Scan(&t.ID, &t.EventID, &t.CodeHash, &t.Status, &t.ValidFrom, &t.ValidUntil); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Stats aggregates scanned/remaining counts plus the origin breakdown of
// accepted check-ins.
func (r *TicketRepo) Stats(ctx context.Context, eventID uuid.UUID) (model.EventStats, error) {
	const q = `
SELECT
  count(*),
  count(*) FILTER (WHERE status='used'),
  (SELECT count(*) FROM checkin_records c WHERE c.event_id=$1 AND c.outcome='accepted' AND c.origin='online'),
  (SELECT count(*) FROM checkin_records c WHERE c.event_id=$1 AND c.outcome='accepted' AND c.origin='offline')
FROM tickets WHERE event_id=$1`
	var s model.EventStats
	if err := r.db.Pool.QueryRow(ctx, q, eventID).Scan(&s.Total, &s.Scanned, &s.Online, &s.Offline); err != nil {
		return model.EventStats{}, err
	}
	s.Remaining = s.Total - s.Scanned
	return s, nil
}
