package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/tixgate/tixgate/internal/errs"
	"github.com/tixgate/tixgate/internal/manifest"
	"github.com/tixgate/tixgate/internal/model"
)

// Store caches signed manifests and answers validation lookups without the
// network. Every manifest is re-verified before it is persisted, so the cache
// only ever holds data that carried a good signature at load time.
type Store struct {
	db       *sql.DB
	verifier *manifest.Verifier
	now      func() time.Time
}

// NewStore constructs a Store over an opened device database.
func NewStore(db *sql.DB, verifier *manifest.Verifier) *Store {
	return &Store{db: db, verifier: verifier, now: time.Now}
}

// LoadManifest verifies and persists a manifest, replacing any previous
// snapshot for the same event. A manifest that fails signature or expiry
// checks never touches the cache.
func (s *Store) LoadManifest(ctx context.Context, m *model.Manifest) (err error) {
	if err = s.verifier.Verify(m, s.now()); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	eventID := m.EventID.String()
	if _, err = tx.ExecContext(ctx, `DELETE FROM manifests WHERE event_id=?`, eventID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO manifests (event_id, issued_at, expires_at, signature, loaded_at) VALUES (?,?,?,?,?)`,
		eventID, m.IssuedAt.Unix(), m.ExpiresAt.Unix(), m.Signature, s.now().Unix(),
	)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO manifest_entries (event_id, code_hash, status, valid_from, valid_until) VALUES (?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, e := range m.Entries {
		if _, err = stmt.ExecContext(ctx, eventID, e.CodeHash, string(e.Status), e.ValidFrom.Unix(), e.ValidUntil.Unix()); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a code against the cached manifest for the event. It
// returns errs.ErrNotFound when no manifest is cached and
// errs.ErrManifestExpired when the cached one has passed its horizon; an
// expired manifest must deny service, not degrade to stale answers.
func (s *Store) Validate(ctx context.Context, eventID uuid.UUID, codeOrHash string) (model.ValidationStatus, error) {
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT expires_at FROM manifests WHERE event_id=?`, eventID.String(),
	).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: no manifest for event", errs.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	now := s.now()
	if !now.Before(time.Unix(expiresAt, 0)) {
		return "", errs.ErrManifestExpired
	}

	var (
		status               model.TicketStatus
		validFrom, validTill int64
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT status, valid_from, valid_until FROM manifest_entries WHERE event_id=? AND code_hash=?`,
		eventID.String(), model.NormalizeCodeHash(codeOrHash),
	).Scan(&status, &validFrom, &validTill)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ValidationNotFound, nil
	}
	if err != nil {
		return "", err
	}

	t := model.Ticket{
		Status:     status,
		ValidFrom:  time.Unix(validFrom, 0),
		ValidUntil: time.Unix(validTill, 0),
	}
	return model.StatusOf(&t, now), nil
}

// ManifestInfo summarizes a cached manifest for status display.
type ManifestInfo struct {
	EventID   uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
	Entries   int
}

// Manifests lists the cached manifests.
func (s *Store) Manifests(ctx context.Context) ([]ManifestInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT m.event_id, m.issued_at, m.expires_at,
       (SELECT count(*) FROM manifest_entries e WHERE e.event_id = m.event_id)
FROM manifests m ORDER BY m.event_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ManifestInfo
	for rows.Next() {
		var (
			id             string
			issued, expiry int64
			info           ManifestInfo
		)
		if err := rows.Scan(&id, &issued, &expiry, &info.Entries); err != nil {
			return nil, err
		}
		if info.EventID, err = uuid.FromString(id); err != nil {
			return nil, err
		}
		info.IssuedAt = time.Unix(issued, 0)
		info.ExpiresAt = time.Unix(expiry, 0)
		out = append(out, info)
	}
	return out, rows.Err()
}

// PruneExpired drops manifests whose horizon has passed, along with their
// entries. Queued check-ins are untouched.
func (s *Store) PruneExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM manifests WHERE expires_at <= ?`, s.now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// markUsed flips the cached entry to used so a second presentation of the
// same code on this device is refused before sync. Shared with Queue, which
// calls it inside the enqueue transaction.
func markUsed(ctx context.Context, tx *sql.Tx, eventID uuid.UUID, codeHash string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE manifest_entries SET status='used' WHERE event_id=? AND code_hash=?`,
		eventID.String(), codeHash)
	return err
}
