package auth

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nerrad567/keyrhythm-core/internal/rhythm"
)

func newTestService(t *testing.T) (*Service, *memRecorder) {
	t.Helper()
	rec := &memRecorder{}
	svc := NewService(NewCredentialRepository(testDB(t)), testLogger(), WithRecorder(rec))
	return svc, rec
}

func submission(username, password string, times ...float64) Submission {
	return Submission{Username: username, Password: password, Times: Times(rhythm.Vector(times))}
}

func TestService_RegisterThenAuthenticate(t *testing.T) {
	svc, attempts := newTestService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, submission("alice", "abc", 0, 0.15, 0.30)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if a := attempts.last(t); !a.OK || a.Message != "Signup successful" || a.Action != ActionRegister {
		t.Errorf("register attempt = %+v", a)
	}

	rec, err := svc.Authenticate(ctx, submission("alice", "abc", 0, 0.15, 0.30))
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if rec.Username != "alice" {
		t.Errorf("Username = %q, want alice", rec.Username)
	}
	if a := attempts.last(t); !a.OK || a.Message != "Authentication successful" || a.Keystrokes != 3 {
		t.Errorf("login attempt = %+v", a)
	}
}

func TestService_RegisterValidation(t *testing.T) {
	tests := []struct {
		name    string
		sub     Submission
		wantErr error
		wantMsg string
	}{
		{"empty username", submission("", "pw", 0), ErrUsernameRequired, "Username is required"},
		{"blank username", submission("   ", "pw", 0), ErrUsernameRequired, "Username is required"},
		{"empty password", submission("bob", "", 0), ErrPasswordRequired, "Password is required"},
		{"blank password", submission("bob", " \t", 0), ErrPasswordRequired, "Password is required"},
		{"username checked first", submission("", "", 0), ErrUsernameRequired, "Username is required"},
		{
			"invalid times",
			Submission{Username: "bob", Password: "pw", Times: TimingData{Invalid: true}},
			ErrInvalidTimingData, "Invalid timing data",
		},
		{
			"password checked before times",
			Submission{Username: "bob", Times: TimingData{Invalid: true}},
			ErrPasswordRequired, "Password is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)
			err := svc.Register(context.Background(), tt.sub)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Register() error = %v, want %v", err, tt.wantErr)
			}
			if got := Message(err); got != tt.wantMsg {
				t.Errorf("Message() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestService_RegisterStoresVectorVerbatim(t *testing.T) {
	db := testDB(t)
	repo := NewCredentialRepository(db)
	svc := NewService(repo, testLogger())
	ctx := context.Background()

	// Vector length need not match the password length.
	if err := svc.Register(ctx, submission("  dave ", " secret ", 0, 0.5)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	rec, err := repo.GetByUsername(ctx, "dave")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	if len(rec.Timings) != 2 || rec.Timings[1] != 0.5 {
		t.Errorf("Timings = %v, want [0 0.5]", rec.Timings)
	}
	if ok, _ := VerifyPassword("secret", rec.CredentialHash); !ok {
		t.Error("stored hash should verify the trimmed password")
	}
}

func TestService_RegisterDuplicate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, submission("erin", "pw", 0, 0.1)); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	err := svc.Register(ctx, submission("erin", "other", 0))
	if !errors.Is(err, ErrUserExists) {
		t.Fatalf("second Register() error = %v, want ErrUserExists", err)
	}
	if Message(err) != "User already exists" {
		t.Errorf("Message() = %q", Message(err))
	}
}

func TestService_RegisterStorageFailure(t *testing.T) {
	tests := []struct {
		name    string
		repo    CredentialRepository
		wantMsg string
	}{
		{"lookup fails", failingRepo{err: errDiskFull}, "Registration failed"},
		{"insert fails", existsOKRepo{failingRepo{err: errDiskFull}}, "Failed to save user data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.repo, testLogger())
			err := svc.Register(context.Background(), submission("frank", "pw", 0))
			if !errors.Is(err, errDiskFull) {
				t.Errorf("error = %v, want it to wrap the storage error", err)
			}
			if got := Message(err); got != tt.wantMsg {
				t.Errorf("Message() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

// existsOKRepo reports every username as free but fails everything else.
type existsOKRepo struct {
	failingRepo
}

func (existsOKRepo) Exists(context.Context, string) (bool, error) { return false, nil }

func TestService_Authenticate(t *testing.T) {
	reference := []float64{0, 0.15, 0.30}

	tests := []struct {
		name      string
		sub       Submission
		wantErr   error
		wantMsg   string
		wantIndex int
	}{
		{"identical rhythm", submission("grace", "pw1", reference...), nil, "", -1},
		{"within tolerance", submission("grace", "pw1", 0.5, 0.6, 0.1), nil, "", -1},
		{"unknown user", submission("nobody", "pw1", reference...), ErrUserNotFound, "User not found", -1},
		{"wrong password", submission("grace", "pw2", reference...), ErrInvalidPassword, "Invalid password", -1},
		{"wrong password and wrong rhythm", submission("grace", "pw2", 9, 9, 9), ErrInvalidPassword, "Invalid password", -1},
		{"no timings submitted", submission("grace", "pw1"), rhythm.ErrNoTimingData, "No timing data", -1},
		{"one keystroke off", submission("grace", "pw1", 0, 0.90, 0.30), rhythm.ErrRhythmMismatch, "Typing rhythm does not match", 1},
		{"fewer keystrokes", submission("grace", "pw1", 0, 0.15), rhythm.ErrRhythmMismatch, "Typing rhythm does not match", -1},
		{"trimmed credentials", submission(" grace ", " pw1 ", reference...), nil, "", -1},
	}

	svc, attempts := newTestService(t)
	ctx := context.Background()
	if err := svc.Register(ctx, submission("grace", "pw1", reference...)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Authenticate(ctx, tt.sub)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Authenticate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Authenticate() error = %v, want %v", err, tt.wantErr)
			}
			if got := Message(err); got != tt.wantMsg {
				t.Errorf("Message() = %q, want %q", got, tt.wantMsg)
			}
			a := attempts.last(t)
			if a.OK || a.Message != tt.wantMsg {
				t.Errorf("attempt = %+v, want rejected with %q", a, tt.wantMsg)
			}
			if a.DeviationIndex != tt.wantIndex {
				t.Errorf("DeviationIndex = %d, want %d", a.DeviationIndex, tt.wantIndex)
			}
		})
	}
}

func TestService_AuthenticateEmptyReference(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, submission("henry", "pw")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	_, err := svc.Authenticate(ctx, submission("henry", "pw", 0, 0.1))
	if !errors.Is(err, rhythm.ErrNoTimingData) {
		t.Errorf("Authenticate() error = %v, want ErrNoTimingData", err)
	}
}

func TestService_AuthenticateStorageFailure(t *testing.T) {
	svc := NewService(failingRepo{err: errDiskFull}, testLogger())

	_, err := svc.Authenticate(context.Background(), submission("ivy", "pw", 0))
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("error = %v, want ErrLoginFailed", err)
	}
	if Message(err) != "Login failed" {
		t.Errorf("Message() = %q, want Login failed", Message(err))
	}
}

func TestService_AttemptMaxDeviation(t *testing.T) {
	svc, attempts := newTestService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, submission("jack", "pw", 0, 0.2)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := svc.Authenticate(ctx, submission("jack", "pw", 0.1, 0.45)); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if got := attempts.last(t).MaxDeviation; got != 0.25 {
		t.Errorf("MaxDeviation = %v, want 0.25", got)
	}
}

func TestSubmission_DecodeTimes(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantInvalid bool
		wantLen     int
	}{
		{"array", `{"username":"a","password":"b","times":[0,0.1,0.25]}`, false, 3},
		{"empty array", `{"username":"a","password":"b","times":[]}`, false, 0},
		{"missing", `{"username":"a","password":"b"}`, false, 0},
		{"null", `{"username":"a","password":"b","times":null}`, true, 0},
		{"string", `{"username":"a","password":"b","times":"0,0.1"}`, true, 0},
		{"object", `{"username":"a","password":"b","times":{"0":0}}`, true, 0},
		{"non-numeric element", `{"username":"a","password":"b","times":[0,"x"]}`, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sub Submission
			if err := json.Unmarshal([]byte(tt.body), &sub); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if sub.Times.Invalid != tt.wantInvalid {
				t.Errorf("Invalid = %v, want %v", sub.Times.Invalid, tt.wantInvalid)
			}
			if len(sub.Times.Vector) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(sub.Times.Vector), tt.wantLen)
			}
		})
	}
}

func TestMessage_Unknown(t *testing.T) {
	if got := Message(errors.New("boom")); got != "Login failed" {
		t.Errorf("Message() = %q, want Login failed", got)
	}
	if got := Message(nil); got != "" {
		t.Errorf("Message(nil) = %q, want empty", got)
	}
}
