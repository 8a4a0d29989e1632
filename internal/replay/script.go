package replay

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/keyrhythm-core/internal/capture"
	"github.com/nerrad567/keyrhythm-core/internal/rhythm"
)

// ErrInvalidScript is returned for scripts that cannot be replayed.
var ErrInvalidScript = errors.New("invalid replay script")

// Script is one recorded form submission.
type Script struct {
	Server     string       `yaml:"server"`
	Mode       capture.Mode `yaml:"mode"`
	Username   string       `yaml:"username"`
	Password   string       `yaml:"password"`
	Confirm    string       `yaml:"confirm"`
	CeilingMS  int          `yaml:"ceiling_ms"`
	Keystrokes []Keystroke  `yaml:"keystrokes"`
}

// Keystroke is one key press on one field.
type Keystroke struct {
	Field capture.Field `yaml:"field"`
	Key   string        `yaml:"key"`
	At    int           `yaml:"at"`
	Up    int           `yaml:"up"`
}

// Load reads a script from a YAML file.
func Load(path string) (*Script, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("opening script: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and validates a script.
func Parse(r io.Reader) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScript, err)
	}
	if s.Mode == "" {
		s.Mode = capture.ModeLogin
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the script shape. It does not check that the keystrokes
// spell the password; the capture engine reports that on replay.
func (s *Script) Validate() error {
	if !s.Mode.IsValid() {
		return fmt.Errorf("%w: mode %q", ErrInvalidScript, s.Mode)
	}
	if s.CeilingMS < 0 {
		return fmt.Errorf("%w: negative ceiling_ms", ErrInvalidScript)
	}
	for i, k := range s.Keystrokes {
		switch {
		case k.Field != capture.FieldPassword && k.Field != capture.FieldConfirm:
			return fmt.Errorf("%w: keystroke %d: unknown field %q", ErrInvalidScript, i, k.Field)
		case k.At < 0:
			return fmt.Errorf("%w: keystroke %d: negative at", ErrInvalidScript, i)
		case k.Up != 0 && k.Up < k.At:
			return fmt.Errorf("%w: keystroke %d: released before pressed", ErrInvalidScript, i)
		}
	}
	return nil
}

// keyEvent is a press or release on the replay timeline.
type keyEvent struct {
	at    int
	seq   int
	down  bool
	field capture.Field
	key   string
}

// Vector replays the keystrokes through a capture form and returns the
// reduced vector exactly as the capture page would send it.
func (s *Script) Vector() (rhythm.Vector, error) {
	form := capture.NewForm(s.Mode, time.Duration(s.CeilingMS)*time.Millisecond)

	events := make([]keyEvent, 0, 2*len(s.Keystrokes))
	for i, k := range s.Keystrokes {
		up := k.Up
		if up == 0 {
			up = k.At
		}
		events = append(events,
			keyEvent{at: k.At, seq: 2 * i, down: true, field: k.Field, key: k.Key},
			keyEvent{at: up, seq: 2*i + 1, field: k.Field, key: k.Key},
		)
	}
	// Time order; at equal times, script order, with each press before
	// its own release.
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].at != events[j].at {
			return events[i].at < events[j].at
		}
		return events[i].seq < events[j].seq
	})

	origin := time.Unix(0, 0)
	for _, ev := range events {
		session, err := form.Session(ev.field)
		if err != nil {
			return nil, err
		}
		if ev.down {
			session.KeyDown(ev.key, origin.Add(time.Duration(ev.at)*time.Millisecond))
		} else {
			session.KeyUp(ev.key)
		}
	}

	return form.Reduce(s.Password, s.Confirm)
}
