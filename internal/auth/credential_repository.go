package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/nerrad567/keyrhythm-core/internal/rhythm"
)

// CredentialRepository persists credential records keyed by username.
type CredentialRepository interface {
	// Create stores a new record. It returns ErrUserExists if a record for
	// the same username already exists; the check and the insert are one
	// atomic operation.
	Create(ctx context.Context, rec *CredentialRecord) error
	GetByUsername(ctx context.Context, username string) (*CredentialRecord, error)
	Exists(ctx context.Context, username string) (bool, error)
	Count(ctx context.Context) (int, error)
}

// SQLiteCredentialRepository implements CredentialRepository using SQLite.
type SQLiteCredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new SQLite-backed credential repository.
func NewCredentialRepository(db *sql.DB) *SQLiteCredentialRepository {
	return &SQLiteCredentialRepository{db: db}
}

// Create inserts a new record. The username primary key makes concurrent
// creates for the same name resolve to exactly one row.
func (r *SQLiteCredentialRepository) Create(ctx context.Context, rec *CredentialRecord) error {
	timings := rec.Timings
	if timings == nil {
		timings = rhythm.Vector{}
	}
	encoded, err := json.Marshal(timings)
	if err != nil {
		return fmt.Errorf("encoding timings: %w", err)
	}

	if rec.CreatedAt.IsZero() {
		now := time.Now().UTC().Format(time.RFC3339)
		rec.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO credentials (username, credential_hash, timings, created_at) VALUES (?, ?, ?, ?)`,
		rec.Username, rec.CredentialHash, string(encoded), rec.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("creating credential: %w", err)
	}
	return nil
}

// GetByUsername retrieves the record for username.
func (r *SQLiteCredentialRepository) GetByUsername(ctx context.Context, username string) (*CredentialRecord, error) {
	var (
		rec       CredentialRecord
		timings   string
		createdAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT username, credential_hash, timings, created_at FROM credentials WHERE username = ?`, username,
	).Scan(&rec.Username, &rec.CredentialHash, &timings, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("getting credential: %w", err)
	}

	if err := json.Unmarshal([]byte(timings), &rec.Timings); err != nil {
		return nil, fmt.Errorf("decoding timings for %s: %w", username, err)
	}
	if rec.Timings == nil {
		rec.Timings = rhythm.Vector{}
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &rec, nil
}

// Exists reports whether a record for username is stored.
func (r *SQLiteCredentialRepository) Exists(ctx context.Context, username string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM credentials WHERE username = ?`, username,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking credential: %w", err)
	}
	return n > 0, nil
}

// Count returns the number of stored records.
func (r *SQLiteCredentialRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM credentials").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting credentials: %w", err)
	}
	return n, nil
}

// isUniqueViolation reports whether err is a SQLite PRIMARY KEY or UNIQUE
// constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
