package repository

import (
	"context"
	"database/sql"
	"time"

	"house_screens/internal/models"
)

type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// StateStore is the per-device, restart-durable flag store. Missing keys
// report ok=false rather than an error.
type StateStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// CompareAndSwap stores next only if the current value equals prev. An
	// empty prev matches a missing key.
	CompareAndSwap(ctx context.Context, key, prev, next string) (bool, error)
}

type EventRepo interface {
	Append(ctx context.Context, e models.ReconcileEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.ReconcileEvent, error)
}

type Repository struct {
	Flags     StateStore
	EventRepo EventRepo
	Auth      Authorization
}

// NewRepository wires the SQLite-backed repositories. deviceID scopes the
// flag rows so several devices can share one database file.
func NewRepository(db *sql.DB, deviceID string) *Repository {
	return &Repository{
		Flags:     NewFlagSQLite(db, deviceID),
		EventRepo: NewEventSQLite(db),
		Auth:      NewOperatorRepository(db),
	}
}
