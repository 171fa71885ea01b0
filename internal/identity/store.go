package identity

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by FindByID when no record has the ID.
	ErrNotFound = errors.New("identity record not found")

	// ErrUniqueViolation is returned by Save when another record already
	// holds the same email or phone number.
	ErrUniqueViolation = errors.New("identity unique constraint violation")
)

// Store persists identity records.
//
// Implementations must enforce uniqueness of non-empty Email and non-empty
// PhoneNumber and report violations as ErrUniqueViolation (wrapped is fine).
// The FindAllBy* lookups are set-based: they return every match and never
// fail because of multiple matches.
type Store interface {
	// Save inserts the record, or replaces the stored record with the same ID.
	// An empty ID is assigned a new one. CreatedAt/UpdatedAt are maintained by
	// the store. A failed Save leaves rec unmodified, so an empty ID still
	// means the record was never stored.
	Save(ctx context.Context, rec *Record) error

	// FindByID returns ErrNotFound if no record has the ID.
	FindByID(ctx context.Context, id string) (*Record, error)

	FindAllByEmail(ctx context.Context, email string) ([]*Record, error)
	FindAllByPhone(ctx context.Context, phone string) ([]*Record, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}
