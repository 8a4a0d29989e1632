package capture

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/keyrhythm-core/internal/rhythm"
)

// Loop defaults.
const (
	DefaultRefresh    = 50 * time.Millisecond
	DefaultResetDelay = 2 * time.Second
)

// EventKind names the kinds of input a Loop consumes.
type EventKind string

const (
	EventKeyDown EventKind = "keydown"
	EventKeyUp   EventKind = "keyup"
	EventRetry   EventKind = "retry"
	EventMode    EventKind = "mode"
	EventSubmit  EventKind = "submit"
)

// Event is one input to a Loop. Which fields are meaningful depends on Kind.
type Event struct {
	Kind  EventKind
	Field Field
	Key   string

	// At is when the key event happened. A zero At is stamped with the
	// loop clock on arrival.
	At time.Time

	Mode       Mode
	Submission Submission
}

// Submission carries the form values typed by the user.
type Submission struct {
	Username string
	Password string
	Confirm  string
}

// Outcome is what the user is shown after a submission.
type Outcome struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Submitter sends a reduced submission to the verification side.
type Submitter interface {
	Submit(ctx context.Context, mode Mode, username, password string, times rhythm.Vector) Outcome
}

// Observer receives everything a Loop wants to display.
type Observer interface {
	// Elapsed reports the running time of an open session.
	Elapsed(field Field, elapsed time.Duration)

	// LimitReached fires once when a session hits its ceiling.
	LimitReached(field Field)

	// Result reports the outcome of a submission.
	Result(outcome Outcome)

	// Reset tells the display to clear both inputs and readouts.
	Reset()
}

// LoopConfig tunes a Loop. Zero values fall back to the package defaults.
type LoopConfig struct {
	Mode       Mode
	Ceiling    time.Duration
	Refresh    time.Duration
	ResetDelay time.Duration
	Now        func() time.Time
}

// Loop processes the events of one form strictly in arrival order.
type Loop struct {
	cfg       LoopConfig
	form      *Form
	submitter Submitter
	observer  Observer

	// showing is true between a result and the reset that follows it.
	showing bool
}

// NewLoop creates a loop around a fresh Form.
func NewLoop(cfg LoopConfig, submitter Submitter, observer Observer) *Loop {
	if cfg.Refresh <= 0 {
		cfg.Refresh = DefaultRefresh
	}
	if cfg.ResetDelay <= 0 {
		cfg.ResetDelay = DefaultResetDelay
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Loop{
		cfg:       cfg,
		form:      NewForm(cfg.Mode, cfg.Ceiling),
		submitter: submitter,
		observer:  observer,
	}
}

// Form exposes the form driven by the loop. It must only be touched from
// the goroutine running Run.
func (l *Loop) Form() *Form {
	return l.form
}

// Run consumes events until the channel is closed or ctx is cancelled.
// It returns ctx.Err() on cancellation and nil when the events run out.
func (l *Loop) Run(ctx context.Context, events <-chan Event) error {
	ticker := time.NewTicker(l.cfg.Refresh)
	defer ticker.Stop()

	var (
		resetTimer *time.Timer
		resetC     <-chan time.Time
	)
	stopReset := func() {
		if resetTimer != nil {
			resetTimer.Stop()
			resetTimer, resetC = nil, nil
		}
	}
	defer stopReset()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.At.IsZero() {
				ev.At = l.cfg.Now()
			}
			switch ev.Kind {
			case EventRetry, EventMode:
				stopReset()
			}
			if l.handle(ctx, ev) {
				stopReset()
				resetTimer = time.NewTimer(l.cfg.ResetDelay)
				resetC = resetTimer.C
			}

		case <-ticker.C:
			l.tick(l.cfg.Now())

		case <-resetC:
			resetTimer, resetC = nil, nil
			l.reset()
		}
	}
}

// handle applies one event and reports whether a result was shown.
func (l *Loop) handle(ctx context.Context, ev Event) bool {
	switch ev.Kind {
	case EventRetry:
		l.reset()
	case EventMode:
		l.form.SetMode(ev.Mode)
		l.showing = false
		l.observer.Reset()
	case EventKeyDown:
		if l.showing {
			return false
		}
		s, err := l.form.Session(ev.Field)
		if err != nil {
			return false
		}
		if res := s.KeyDown(ev.Key, ev.At); res.LimitReached {
			l.observer.LimitReached(ev.Field)
		}
	case EventKeyUp:
		if s, err := l.form.Session(ev.Field); err == nil {
			s.KeyUp(ev.Key)
		}
	case EventSubmit:
		if l.showing {
			return false
		}
		l.observer.Result(l.submit(ctx, ev.Submission))
		l.showing = true
		return true
	}
	return false
}

func (l *Loop) submit(ctx context.Context, sub Submission) Outcome {
	times, err := l.form.Reduce(sub.Password, sub.Confirm)
	if err != nil {
		return Outcome{Message: Message(err)}
	}
	return l.submitter.Submit(ctx, l.form.Mode(), sub.Username, sub.Password, times)
}

func (l *Loop) tick(at time.Time) {
	if l.showing {
		return
	}
	for _, field := range []Field{FieldPassword, FieldConfirm} {
		s, err := l.form.Session(field)
		if err != nil || !s.Active() {
			continue
		}
		res := s.Tick(at)
		if res.LimitReached {
			l.observer.LimitReached(field)
			continue
		}
		l.observer.Elapsed(field, res.Elapsed)
	}
}

func (l *Loop) reset() {
	l.form.Reset()
	l.showing = false
	l.observer.Reset()
}

// Message maps a Form error to the text shown to the user.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrPasswordMismatch):
		return "Passwords do not match"
	case errors.Is(err, ErrTimingMismatch):
		return "Timing mismatch between password entries"
	case errors.Is(err, ErrInvalidTiming):
		return "Invalid timing data"
	default:
		return "Capture failed"
	}
}
