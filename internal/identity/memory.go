package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/miraassistant/mira/internal/logging"
)

// MemoryStore is an in-process Store. It enforces the same uniqueness rules
// as the database backends and is used for tests and single-node development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	// order keeps insertion order so lookups are deterministic.
	order  []string
	now    func() time.Time
	logger *slog.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		records: make(map[string]*Record),
		now:     time.Now,
		logger:  logger,
	}
}

// Save inserts or replaces rec. rec is left untouched when Save fails.
func (s *MemoryStore) Save(_ context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("cannot save nil record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := rec.ID
	if id == "" {
		id = NewID()
	}

	for otherID, other := range s.records {
		if otherID == id {
			continue
		}
		if rec.Email != "" && other.Email == rec.Email {
			return fmt.Errorf("email: %w", ErrUniqueViolation)
		}
		if rec.PhoneNumber != "" && other.PhoneNumber == rec.PhoneNumber {
			return fmt.Errorf("phone_number: %w", ErrUniqueViolation)
		}
	}

	rec.ID = id
	now := s.now().UTC()
	existing, ok := s.records[rec.ID]
	if ok {
		rec.CreatedAt = existing.CreatedAt
	} else {
		rec.CreatedAt = now
		s.order = append(s.order, rec.ID)
	}
	if rec.CalendarID == "" {
		rec.CalendarID = DefaultCalendarID
	}
	rec.UpdatedAt = now

	s.records[rec.ID] = rec.Clone()

	s.logger.Debug("saved identity record",
		slog.String("record_id", rec.ID),
		slog.String("phase", string(rec.Phase())),
		logging.UserHash(rec.Email))

	return nil
}

// FindByID returns a copy of the record with the given ID.
func (s *MemoryStore) FindByID(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// FindAllByEmail returns every record holding email.
func (s *MemoryStore) FindAllByEmail(_ context.Context, email string) ([]*Record, error) {
	return s.filter(func(r *Record) bool { return email != "" && r.Email == email }), nil
}

// FindAllByPhone returns every record holding phone.
func (s *MemoryStore) FindAllByPhone(_ context.Context, phone string) ([]*Record, error) {
	return s.filter(func(r *Record) bool { return phone != "" && r.PhoneNumber == phone }), nil
}

func (s *MemoryStore) filter(match func(*Record) bool) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Record
	for _, id := range s.order {
		if rec := s.records[id]; match(rec) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
