package auth

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/keyrhythm-core/internal/infrastructure/config"
	"github.com/nerrad567/keyrhythm-core/internal/infrastructure/logging"
)

// testDB creates a temporary SQLite database with the credentials table.
// The database file is removed when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Temp file rather than :memory: so WAL mode and multiple connections work.
	f, err := os.CreateTemp("", "auth-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE credentials (
			username TEXT PRIMARY KEY,
			credential_hash TEXT NOT NULL,
			timings TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL
		) STRICT;
	`)
	if err != nil {
		t.Fatalf("creating credentials table: %v", err)
	}
	return db
}

// testLogger discards all output.
func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error", Format: "text"}, "test")
}

// memRecorder collects attempts in memory.
type memRecorder struct {
	mu       sync.Mutex
	attempts []Attempt
}

func (r *memRecorder) Record(a Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
}

func (r *memRecorder) last(t *testing.T) Attempt {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.attempts) == 0 {
		t.Fatal("no attempt recorded")
	}
	return r.attempts[len(r.attempts)-1]
}

// failingRepo returns err from every method.
type failingRepo struct {
	err error
}

func (f failingRepo) Create(context.Context, *CredentialRecord) error { return f.err }

func (f failingRepo) GetByUsername(context.Context, string) (*CredentialRecord, error) {
	return nil, f.err
}

func (f failingRepo) Exists(context.Context, string) (bool, error) { return false, f.err }

func (f failingRepo) Count(context.Context) (int, error) { return 0, f.err }

var errDiskFull = errors.New("disk I/O error")
