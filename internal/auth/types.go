package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nerrad567/keyrhythm-core/internal/rhythm"
)

// CredentialRecord is the stored identity of one user: the password hash and
// the reference timing vector captured at registration.
//
// Records are created once and never updated in place.
type CredentialRecord struct {
	Username       string        `json:"id"`
	CredentialHash string        `json:"credentialHash"`
	Timings        rhythm.Vector `json:"timings"`
	CreatedAt      time.Time     `json:"created_at"`
}

// TimingData is the "times" field of a submission.
//
// A missing field decodes to an empty, valid vector. Anything that is not an
// array of numbers, including null, marks the data invalid instead of
// failing the whole decode, so the request can still be checked field by
// field in a fixed order.
type TimingData struct {
	Vector  rhythm.Vector
	Invalid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *TimingData) UnmarshalJSON(data []byte) error {
	d.Vector = nil
	d.Invalid = false

	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		d.Invalid = true
		return nil
	}
	var v rhythm.Vector
	if err := json.Unmarshal(data, &v); err != nil {
		d.Invalid = true
		return nil //nolint:nilerr // recorded as Invalid and reported by Validate
	}
	d.Vector = v
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d TimingData) MarshalJSON() ([]byte, error) {
	if d.Vector == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(d.Vector)
}

// Times wraps a vector as valid timing data.
func Times(v rhythm.Vector) TimingData {
	return TimingData{Vector: v}
}

// Submission is the payload of a register or login request.
type Submission struct {
	Username string     `json:"username"`
	Password string     `json:"password"`
	Times    TimingData `json:"times"`

	// RemoteAddr and UserAgent describe the caller for the attempt log.
	RemoteAddr string `json:"-"`
	UserAgent  string `json:"-"`
}

// Validate checks the submission in a fixed order and returns the first
// problem found. Username and password are trimmed in place.
func (s *Submission) Validate() error {
	s.Username = strings.TrimSpace(s.Username)
	s.Password = strings.TrimSpace(s.Password)

	switch {
	case s.Username == "":
		return ErrUsernameRequired
	case s.Password == "":
		return ErrPasswordRequired
	case s.Times.Invalid:
		return ErrInvalidTimingData
	}
	return nil
}

// Action names the operation an Attempt describes.
type Action string

const (
	ActionRegister Action = "register"
	ActionLogin    Action = "login"
)

// Attempt describes the outcome of one register or login request. Attempts
// are counted and published but never block or lock out a user.
type Attempt struct {
	ID         string    `json:"id"`
	Action     Action    `json:"action"`
	Username   string    `json:"username"`
	OK         bool      `json:"ok"`
	Message    string    `json:"message"`
	Keystrokes int       `json:"keystrokes"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Timestamp  time.Time `json:"timestamp"`

	// DeviationIndex is the first keystroke outside tolerance, or -1.
	DeviationIndex int `json:"deviation_index"`

	// MaxDeviation is the largest per-keystroke difference in seconds.
	// It is only set when both vectors have the same length.
	MaxDeviation float64 `json:"max_deviation"`
}

// Recorder receives every Attempt. Implementations must not block.
type Recorder interface {
	Record(a Attempt)
}

// Sentinel errors for auth operations.
var (
	ErrNoData            = errors.New("no data provided")
	ErrUsernameRequired  = errors.New("username is required")
	ErrPasswordRequired  = errors.New("password is required")
	ErrInvalidTimingData = errors.New("invalid timing data")
	ErrUserExists        = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidPassword   = errors.New("invalid password")

	// ErrSaveFailed wraps storage failures while creating a record.
	ErrSaveFailed = errors.New("failed to save user data")

	// ErrRegistrationFailed and ErrLoginFailed wrap any other internal
	// failure of the respective operation.
	ErrRegistrationFailed = errors.New("registration failed")
	ErrLoginFailed        = errors.New("login failed")

	ErrTokenInvalid = errors.New("invalid token")
)

// SuccessMessage returns the text shown when action succeeds.
func SuccessMessage(action Action) string {
	if action == ActionRegister {
		return "Signup successful"
	}
	return "Authentication successful"
}

// Message returns the fixed user-facing text for an error returned by
// Service. Internal details are never exposed.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoData):
		return "No data provided"
	case errors.Is(err, ErrUsernameRequired):
		return "Username is required"
	case errors.Is(err, ErrPasswordRequired):
		return "Password is required"
	case errors.Is(err, ErrInvalidTimingData):
		return "Invalid timing data"
	case errors.Is(err, ErrUserExists):
		return "User already exists"
	case errors.Is(err, ErrSaveFailed):
		return "Failed to save user data"
	case errors.Is(err, ErrUserNotFound):
		return "User not found"
	case errors.Is(err, ErrInvalidPassword):
		return "Invalid password"
	case errors.Is(err, rhythm.ErrNoTimingData):
		return "No timing data"
	case errors.Is(err, rhythm.ErrRhythmMismatch):
		return "Typing rhythm does not match"
	case errors.Is(err, ErrRegistrationFailed):
		return "Registration failed"
	default:
		return "Login failed"
	}
}
