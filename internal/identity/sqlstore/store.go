package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/miraassistant/mira/internal/identity"
	"github.com/miraassistant/mira/internal/logging"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

const selectColumns = `id, email, phone_number, access_token, refresh_token, token_expiry, calendar_id, created_at, updated_at`

// Store is an identity.Store backed by database/sql. It supports SQLite
// (modernc.org/sqlite) and Postgres (lib/pq).
type Store struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
	logger  *slog.Logger
}

var _ identity.Store = (*Store)(nil)

// Open connects to the database and applies pending migrations.
// For SQLite, dsn is a file path; the parent directory is created.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var d dialect
	switch driver {
	case DriverSQLite:
		d = sqliteDialect
		if dsn == "" {
			return nil, fmt.Errorf("sqlite path is required")
		}
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		d = postgresDialect
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if d.driver == DriverSQLite {
		// A single connection serialises writers and avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	s := &Store{
		db:      db,
		dialect: d,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "identity_store"), slog.String("driver", d.driver)),
	}

	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Migrate applies embedded NNN_name.up.sql files newer than the recorded
// schema version.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.migrationsTable); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	row := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	sub, err := fs.Sub(migrationsFS, s.dialect.migrationsDir)
	if err != nil {
		return fmt.Errorf("opening migrations: %w", err)
	}
	entries, err := fs.ReadDir(sub, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}

		content, err := fs.ReadFile(sub, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, s.dialect.rebind("INSERT INTO schema_migrations (version) VALUES (?)"), version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		s.logger.Info("applied migration", slog.String("migration", name))
	}

	return nil
}

// Save upserts rec by ID. ID, CalendarID and the timestamps are written
// back to rec only after the statement succeeds.
func (s *Store) Save(ctx context.Context, rec *identity.Record) error {
	if rec == nil {
		return fmt.Errorf("cannot save nil record")
	}
	id := rec.ID
	if id == "" {
		id = identity.NewID()
	}
	calendarID := rec.CalendarID
	if calendarID == "" {
		calendarID = identity.DefaultCalendarID
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO identities (id, email, phone_number, access_token, refresh_token, token_expiry, calendar_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			phone_number = excluded.phone_number,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_expiry = excluded.token_expiry,
			calendar_id = excluded.calendar_id,
			updated_at = excluded.updated_at
	`), id, nullString(rec.Email), nullString(rec.PhoneNumber),
		nullString(rec.AccessToken), nullString(rec.RefreshToken),
		nullTime(rec.TokenExpiry), calendarID, createdAt, now)
	if err != nil {
		if s.dialect.uniqueViolation(err) {
			return fmt.Errorf("saving identity: %w", identity.ErrUniqueViolation)
		}
		return fmt.Errorf("saving identity: %w", err)
	}

	rec.ID = id
	rec.CalendarID = calendarID
	rec.CreatedAt = createdAt
	rec.UpdatedAt = now

	s.logger.Debug("saved identity record",
		slog.String("record_id", rec.ID),
		slog.String("phase", string(rec.Phase())),
		logging.UserHash(rec.Email))
	return nil
}

// FindByID returns identity.ErrNotFound when the ID is unknown.
func (s *Store) FindByID(ctx context.Context, id string) (*identity.Record, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+selectColumns+` FROM identities WHERE id = ?`), id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, identity.ErrNotFound
		}
		return nil, fmt.Errorf("finding identity: %w", err)
	}
	return rec, nil
}

// FindAllByEmail returns every record holding email.
func (s *Store) FindAllByEmail(ctx context.Context, email string) ([]*identity.Record, error) {
	if email == "" {
		return nil, nil
	}
	return s.findAll(ctx, `SELECT `+selectColumns+` FROM identities WHERE email = ? ORDER BY created_at, id`, email)
}

// FindAllByPhone returns every record holding phone.
func (s *Store) FindAllByPhone(ctx context.Context, phone string) ([]*identity.Record, error) {
	if phone == "" {
		return nil, nil
	}
	return s.findAll(ctx, `SELECT `+selectColumns+` FROM identities WHERE phone_number = ? ORDER BY created_at, id`, phone)
}

func (s *Store) findAll(ctx context.Context, query string, arg string) ([]*identity.Record, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), arg)
	if err != nil {
		return nil, fmt.Errorf("querying identities: %w", err)
	}
	defer rows.Close()

	var out []*identity.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning identity: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating identities: %w", err)
	}
	return out, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*identity.Record, error) {
	var (
		rec                           identity.Record
		email, phone, access, refresh sql.NullString
		expiry, createdAt, updatedAt  sql.NullTime
	)
	if err := row.Scan(&rec.ID, &email, &phone, &access, &refresh, &expiry,
		&rec.CalendarID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	rec.Email = email.String
	rec.PhoneNumber = phone.String
	rec.AccessToken = access.String
	rec.RefreshToken = refresh.String
	if expiry.Valid {
		rec.TokenExpiry = expiry.Time.UTC()
	}
	if createdAt.Valid {
		rec.CreatedAt = createdAt.Time.UTC()
	}
	if updatedAt.Valid {
		rec.UpdatedAt = updatedAt.Time.UTC()
	}
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}
