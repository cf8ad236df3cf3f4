package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FlagSQLite implements StateStore over the device_flags table.
type FlagSQLite struct {
	db       *sql.DB
	deviceID string
	now      func() time.Time
}

func NewFlagSQLite(db *sql.DB, deviceID string) *FlagSQLite {
	return &FlagSQLite{db: db, deviceID: deviceID, now: func() time.Time { return time.Now().UTC() }}
}

var _ StateStore = (*FlagSQLite)(nil)

const (
	selectFlagSQL = `SELECT value FROM device_flags WHERE device_id = ? AND key = ?`

	upsertFlagSQL = `
		INSERT INTO device_flags (device_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(device_id, key) DO UPDATE SET
			value=excluded.value,
			updated_at=excluded.updated_at
	`

	deleteFlagSQL = `DELETE FROM device_flags WHERE device_id = ? AND key = ?`

	swapFlagSQL = `
		UPDATE device_flags SET value = ?, updated_at = ?
		WHERE device_id = ? AND key = ? AND value = ?
	`

	// insertIfEmptySQL covers CAS from a missing or empty value.
	insertIfEmptySQL = `
		INSERT INTO device_flags (device_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(device_id, key) DO UPDATE SET
			value=excluded.value,
			updated_at=excluded.updated_at
		WHERE device_flags.value = ''
	`
)

// Get returns the stored value for key.
func (r *FlagSQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, selectFlagSQL, r.deviceID, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get flag %q: %w", key, err)
	}
	return value, true, nil
}

// Set inserts or replaces the value for key.
func (r *FlagSQLite) Set(ctx context.Context, key, value string) error {
	if _, err := r.db.ExecContext(ctx, upsertFlagSQL, r.deviceID, key, value, r.now()); err != nil {
		return fmt.Errorf("set flag %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (r *FlagSQLite) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, deleteFlagSQL, r.deviceID, key); err != nil {
		return fmt.Errorf("delete flag %q: %w", key, err)
	}
	return nil
}

// CompareAndSwap replaces prev with next in one statement.
func (r *FlagSQLite) CompareAndSwap(ctx context.Context, key, prev, next string) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if prev == "" {
		res, err = r.db.ExecContext(ctx, insertIfEmptySQL, r.deviceID, key, next, r.now())
	} else {
		res, err = r.db.ExecContext(ctx, swapFlagSQL, next, r.now(), r.deviceID, key, prev)
	}
	if err != nil {
		return false, fmt.Errorf("swap flag %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("swap flag %q rows affected: %w", key, err)
	}
	return n == 1, nil
}
