// Package audit stores register and login attempts in the auth_attempts
// table and serves paginated history queries over them.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/keyrhythm-core/internal/auth"
)

// Page size bounds for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Filter controls which attempts List returns.
type Filter struct {
	Action   auth.Action // optional: register or login
	Username string      // optional
	Limit    int         // default 50, max 200
	Offset   int
}

// ListResult is one page of attempts, newest first.
type ListResult struct {
	Attempts []auth.Attempt `json:"attempts"`
	Total    int            `json:"total"`
	Limit    int            `json:"limit"`
	Offset   int            `json:"offset"`
}

// Repository persists and queries attempts.
type Repository interface {
	Create(ctx context.Context, a *auth.Attempt) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository implements Repository on the auth_attempts table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new attempt repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a. ID and Timestamp are filled in when empty.
func (r *SQLiteRepository) Create(ctx context.Context, a *auth.Attempt) error {
	if a.ID == "" {
		a.ID = "att-" + uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auth_attempts
		   (id, action, username, ok, message, keystrokes, deviation_index, max_deviation, remote_addr, user_agent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Action), a.Username, boolToInt(a.OK), a.Message,
		a.Keystrokes, a.DeviationIndex, a.MaxDeviation,
		nullableString(a.RemoteAddr), nullableString(a.UserAgent),
		a.Timestamp.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting attempt: %w", err)
	}
	return nil
}

// List returns attempts matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	filter = clamp(filter)

	var conditions []string
	var args []any
	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, string(filter.Action))
	}
	if filter.Username != "" {
		conditions = append(conditions, "username = ?")
		args = append(args, filter.Username)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM auth_attempts " + where //nolint:gosec // WHERE built from parameterised conditions
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting attempts: %w", err)
	}

	query := `SELECT id, action, username, ok, message, keystrokes, deviation_index, max_deviation,
		remote_addr, user_agent, created_at FROM auth_attempts ` + where + //nolint:gosec // WHERE built from parameterised conditions
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying attempts: %w", err)
	}
	defer rows.Close()

	attempts := []auth.Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attempts: %w", err)
	}

	return &ListResult{
		Attempts: attempts,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}, nil
}

func clamp(f Filter) Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func scanAttempt(rows *sql.Rows) (auth.Attempt, error) {
	var (
		a                     auth.Attempt
		action, createdAt     string
		ok                    int
		remoteAddr, userAgent sql.NullString
	)
	if err := rows.Scan(&a.ID, &action, &a.Username, &ok, &a.Message, &a.Keystrokes,
		&a.DeviationIndex, &a.MaxDeviation, &remoteAddr, &userAgent, &createdAt); err != nil {
		return a, fmt.Errorf("scanning attempt: %w", err)
	}

	a.Action = auth.Action(action)
	a.OK = ok == 1
	a.RemoteAddr = remoteAddr.String
	a.UserAgent = userAgent.String

	ts, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return a, fmt.Errorf("parsing attempt timestamp %q: %w", createdAt, err)
	}
	a.Timestamp = ts
	return a, nil
}

// nullableString maps "" to NULL for optional TEXT columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
