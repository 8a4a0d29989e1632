package capture

import (
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/nerrad567/keyrhythm-core/internal/rhythm"
)

// DefaultCeiling is how long a capture session may run, measured from its
// first accepted keystroke.
const DefaultCeiling = 15 * time.Second

// Result reports what a single event did to a Session.
type Result struct {
	// Accepted is true when a keystroke was appended to the vector.
	Accepted bool

	// Elapsed is the time since the first accepted keystroke. Zero before
	// the session has started.
	Elapsed time.Duration

	// LimitReached is true only for the event that crossed the ceiling.
	// Later events on an expired session report false.
	LimitReached bool
}

// Session tracks the timing capture of one input field.
//
// The zero value is not usable; create sessions with NewSession.
// A Session is not safe for concurrent use: it is owned by the single
// goroutine that processes its field's events.
type Session struct {
	ceiling time.Duration
	start   time.Time
	last    time.Time
	started bool
	expired bool
	vector  rhythm.Vector
	held    map[string]struct{}
}

// NewSession creates an empty session. A non-positive ceiling falls back to
// DefaultCeiling.
func NewSession(ceiling time.Duration) *Session {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return &Session{
		ceiling: ceiling,
		held:    make(map[string]struct{}),
	}
}

// KeyDown processes a key press observed at the given instant.
//
// The key is accepted only if it is a single printable character and is not
// already held down. The first accepted key starts the session clock. A key
// arriving at or after the ceiling expires the session instead of being
// recorded; an expired session ignores all further input until Reset.
// An instant earlier than the previous accepted key is treated as
// simultaneous with it, so the vector never decreases.
func (s *Session) KeyDown(key string, at time.Time) Result {
	if s.expired {
		return Result{Elapsed: s.ceiling}
	}
	if !isPrintableKey(key) {
		return Result{Elapsed: s.elapsed(at)}
	}
	if _, down := s.held[key]; down {
		return Result{Elapsed: s.elapsed(at)}
	}
	s.held[key] = struct{}{}

	if !s.started {
		s.start, s.last = at, at
		s.started = true
	}
	if at.Before(s.last) {
		at = s.last
	}

	elapsed := at.Sub(s.start)
	if elapsed >= s.ceiling {
		s.expired = true
		return Result{Elapsed: elapsed, LimitReached: true}
	}

	s.last = at
	s.vector = append(s.vector, rhythm.Seconds(elapsed))
	return Result{Accepted: true, Elapsed: elapsed}
}

// KeyUp clears the held marker for key so that its next press counts again.
func (s *Session) KeyUp(key string) {
	delete(s.held, key)
}

// Tick refreshes the elapsed-time readout. It never changes the vector but
// enforces the ceiling the same way a keystroke does.
func (s *Session) Tick(at time.Time) Result {
	if !s.started || s.expired {
		return Result{Elapsed: s.elapsed(at)}
	}

	elapsed := max(at.Sub(s.start), 0)
	if elapsed >= s.ceiling {
		s.expired = true
		return Result{Elapsed: elapsed, LimitReached: true}
	}
	return Result{Elapsed: elapsed}
}

// Active reports whether the session has started and has not expired.
// Only active sessions drive the display refresh.
func (s *Session) Active() bool {
	return s.started && !s.expired
}

// Expired reports whether the ceiling has been reached.
func (s *Session) Expired() bool {
	return s.expired
}

// Len returns the number of accepted keystrokes.
func (s *Session) Len() int {
	return len(s.vector)
}

// Vector returns a copy of the captured timings.
func (s *Session) Vector() rhythm.Vector {
	return s.vector.Clone()
}

// Reset discards everything captured so far.
func (s *Session) Reset() {
	s.start, s.last = time.Time{}, time.Time{}
	s.started = false
	s.expired = false
	s.vector = nil
	clear(s.held)
}

func (s *Session) elapsed(at time.Time) time.Duration {
	switch {
	case !s.started:
		return 0
	case s.expired:
		return s.ceiling
	default:
		return max(at.Sub(s.start), 0)
	}
}

// isPrintableKey reports whether a key identifier names a single printable
// character. Named keys such as "Shift" or "Backspace" are longer than one
// rune and are rejected.
func isPrintableKey(key string) bool {
	if utf8.RuneCountInString(key) != 1 {
		return false
	}
	r, _ := utf8.DecodeRuneInString(key)
	return r != utf8.RuneError && unicode.IsPrint(r)
}
