package capture

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/nerrad567/keyrhythm-core/internal/rhythm"
)

// Mode selects which form the user is filling in.
type Mode string

const (
	// ModeLogin captures a single password field.
	ModeLogin Mode = "login"

	// ModeRegister captures a password field and its confirmation.
	ModeRegister Mode = "register"
)

// IsValid reports whether m is a known mode.
func (m Mode) IsValid() bool {
	return m == ModeLogin || m == ModeRegister
}

// Field identifies one password input of the form.
type Field string

const (
	// FieldPassword is the primary password input.
	FieldPassword Field = "password"

	// FieldConfirm is the confirmation input shown when registering.
	FieldConfirm Field = "confirm"
)

// Errors returned by Form. All of them are raised locally, before anything
// is sent to the verification side.
var (
	ErrUnknownField     = errors.New("unknown input field")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrTimingMismatch   = errors.New("timing mismatch between password entries")
	ErrInvalidTiming    = errors.New("invalid timing data")
)

// Form owns the capture sessions of one login or registration form.
//
// Both sessions always exist. In login mode the confirmation session is
// never fed and stays empty.
type Form struct {
	mode    Mode
	primary *Session
	confirm *Session
}

// NewForm creates a form in the given mode with both sessions empty.
func NewForm(mode Mode, ceiling time.Duration) *Form {
	if !mode.IsValid() {
		mode = ModeLogin
	}
	return &Form{
		mode:    mode,
		primary: NewSession(ceiling),
		confirm: NewSession(ceiling),
	}
}

// Mode returns the current mode.
func (f *Form) Mode() Mode {
	return f.mode
}

// SetMode switches between login and registration. Switching always resets
// both sessions, even when the mode does not change.
func (f *Form) SetMode(mode Mode) {
	if mode.IsValid() {
		f.mode = mode
	}
	f.Reset()
}

// Session returns the session behind a field. The confirmation field is only
// available while registering.
func (f *Form) Session(field Field) (*Session, error) {
	switch {
	case field == FieldPassword:
		return f.primary, nil
	case field == FieldConfirm && f.mode == ModeRegister:
		return f.confirm, nil
	default:
		return nil, fmt.Errorf("%w: %q in %s mode", ErrUnknownField, field, f.mode)
	}
}

// Reset clears both sessions.
func (f *Form) Reset() {
	f.primary.Reset()
	f.confirm.Reset()
}

// Reduce turns the captured sessions into the single vector that is sent
// with the submission.
//
// In login mode the primary vector is used as-is. When registering, the two
// passwords must be equal; an empty confirmation timeline leaves the primary
// vector unchanged, otherwise both timelines are merged and must have the
// same length. Either way the result must hold exactly one sample per
// password character.
func (f *Form) Reduce(password, confirm string) (rhythm.Vector, error) {
	final := f.primary.Vector()

	if f.mode == ModeRegister {
		if password != confirm {
			return nil, ErrPasswordMismatch
		}
		if f.confirm.Len() > 0 {
			merged, err := rhythm.Merge(final, f.confirm.Vector())
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrTimingMismatch, err)
			}
			final = merged
		}
	}

	if want := utf8.RuneCountInString(password); len(final) != want {
		return nil, fmt.Errorf("%w: %d samples for %d characters", ErrInvalidTiming, len(final), want)
	}
	return final, nil
}
