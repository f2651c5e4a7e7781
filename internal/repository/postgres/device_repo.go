package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/tixgate/tixgate/internal/errs"
	"github.com/tixgate/tixgate/internal/model"
)

// DeviceRepo implements DeviceRepository using PostgreSQL.
type DeviceRepo struct{ db *DB }

// NewDeviceRepo constructs a device repository.
func NewDeviceRepo(db *DB) *DeviceRepo { return &DeviceRepo{db: db} }

// GetDevice returns a provisioned scanner device by id.
func (r *DeviceRepo) GetDevice(ctx context.Context, id string) (*model.Device, error) {
	const q = `SELECT id, actor_id, key_hash, key_salt, active FROM scanner_devices WHERE id=$1`
	var d model.Device
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(&d.ID, &d.ActorID, &d.KeyHash, &d.KeySalt, &d.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}
