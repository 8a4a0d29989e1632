package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/keyrhythm-core/internal/infrastructure/logging"
	"github.com/nerrad567/keyrhythm-core/internal/rhythm"
)

// Service is the verification engine. It registers credential records and
// authenticates submissions against them.
//
// Service holds no per-request state and is safe for concurrent use.
type Service struct {
	repo     CredentialRepository
	logger   *logging.Logger
	recorder Recorder
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder sends every Attempt to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithClock overrides the time source used for attempt timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service backed by repo.
func NewService(repo CredentialRepository, logger *logging.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: logger.With("component", "auth"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates sub and stores a new credential record for it.
//
// The timing vector is stored verbatim. Its length is not checked against
// the password: the capture side guarantees one sample per character.
func (s *Service) Register(ctx context.Context, sub Submission) error {
	att := s.newAttempt(ActionRegister, &sub)

	err := s.register(ctx, &sub)
	att.Username = sub.Username
	s.finish(att, err)

	if err == nil {
		s.logger.Info("user registered", "username", sub.Username, "keystrokes", len(sub.Times.Vector))
	}
	return err
}

func (s *Service) register(ctx context.Context, sub *Submission) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	exists, err := s.repo.Exists(ctx, sub.Username)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}
	if exists {
		return ErrUserExists
	}

	hash, err := HashPassword(sub.Password)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}

	rec := &CredentialRecord{
		Username:       sub.Username,
		CredentialHash: hash,
		Timings:        sub.Times.Vector.Clone(),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrUserExists) {
			return ErrUserExists
		}
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	return nil
}

// Authenticate checks sub against the stored record for its username.
//
// The password is verified first; the timing vector is only compared when
// the password matches. On success the stored record is returned.
func (s *Service) Authenticate(ctx context.Context, sub Submission) (*CredentialRecord, error) {
	att := s.newAttempt(ActionLogin, &sub)

	rec, err := s.authenticate(ctx, &sub, &att)
	att.Username = sub.Username
	s.finish(att, err)

	if err == nil {
		s.logger.Info("user authenticated", "username", sub.Username)
	}
	return rec, err
}

func (s *Service) authenticate(ctx context.Context, sub *Submission, att *Attempt) (*CredentialRecord, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	rec, err := s.repo.GetByUsername(ctx, sub.Username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}

	ok, err := VerifyPassword(sub.Password, rec.CredentialHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	if !ok {
		return nil, ErrInvalidPassword
	}

	att.MaxDeviation = rhythm.MaxDeviation(rec.Timings, sub.Times.Vector)
	if err := rhythm.Compare(rec.Timings, sub.Times.Vector); err != nil {
		var dev *rhythm.Deviation
		if errors.As(err, &dev) {
			att.DeviationIndex = dev.Index
			s.logger.Debug("keystroke outside tolerance",
				"username", sub.Username,
				"index", dev.Index,
				"reference", dev.Reference,
				"submitted", dev.Submitted,
				"diff", dev.Diff,
			)
		}
		return nil, err
	}
	return rec, nil
}

func (s *Service) newAttempt(action Action, sub *Submission) Attempt {
	return Attempt{
		ID:             uuid.NewString(),
		Action:         action,
		Keystrokes:     len(sub.Times.Vector),
		RemoteAddr:     sub.RemoteAddr,
		UserAgent:      sub.UserAgent,
		Timestamp:      s.now().UTC(),
		DeviationIndex: -1,
	}
}

// finish logs a rejected attempt and hands the attempt to the recorder.
func (s *Service) finish(att Attempt, err error) {
	att.OK = err == nil
	att.Message = Message(err)
	if att.OK {
		att.Message = SuccessMessage(att.Action)
	}

	switch {
	case err == nil:
	case errors.Is(err, ErrSaveFailed), errors.Is(err, ErrRegistrationFailed), errors.Is(err, ErrLoginFailed):
		s.logger.Error("auth attempt failed", "action", att.Action, "username", att.Username, "error", err)
	default:
		s.logger.Info("auth attempt rejected", "action", att.Action, "username", att.Username, "reason", att.Message)
	}

	if s.recorder != nil {
		s.recorder.Record(att)
	}
}
