package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/keyrhythm-core/internal/rhythm"
)

type recordingObserver struct {
	mu      sync.Mutex
	elapsed map[Field]time.Duration
	limits  []Field
	results []Outcome
	resets  int
	resetCh chan struct{}
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		elapsed: make(map[Field]time.Duration),
		resetCh: make(chan struct{}, 16),
	}
}

func (o *recordingObserver) Elapsed(field Field, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.elapsed[field] = d
}

func (o *recordingObserver) LimitReached(field Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.limits = append(o.limits, field)
}

func (o *recordingObserver) Result(out Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, out)
}

func (o *recordingObserver) Reset() {
	o.mu.Lock()
	o.resets++
	o.mu.Unlock()
	o.resetCh <- struct{}{}
}

type submitCall struct {
	mode     Mode
	username string
	password string
	times    rhythm.Vector
}

type recordingSubmitter struct {
	mu    sync.Mutex
	calls []submitCall
	out   Outcome
}

func (s *recordingSubmitter) Submit(_ context.Context, mode Mode, username, password string, times rhythm.Vector) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, submitCall{mode, username, password, times})
	return s.out
}

// runLoop feeds events to a loop and waits for it to finish.
func runLoop(t *testing.T, cfg LoopConfig, sub Submitter, obs Observer, events []Event) {
	t.Helper()

	ch := make(chan Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := NewLoop(cfg, sub, obs).Run(ctx, ch); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func keys(field Field, text string, startMs, step int) []Event {
	var events []Event
	ms := startMs
	for _, r := range text {
		events = append(events,
			Event{Kind: EventKeyDown, Field: field, Key: string(r), At: at(ms)},
			Event{Kind: EventKeyUp, Field: field, Key: string(r), At: at(ms + 20)},
		)
		ms += step
	}
	return events
}

func TestLoop_LoginSubmitsReducedVector(t *testing.T) {
	sub := &recordingSubmitter{out: Outcome{OK: true, Message: "Authentication successful"}}
	obs := newRecordingObserver()

	events := keys(FieldPassword, "abc", 0, 150)
	events = append(events, Event{Kind: EventSubmit, Submission: Submission{Username: "alice", Password: "abc"}})

	runLoop(t, LoopConfig{Mode: ModeLogin, Refresh: time.Hour, ResetDelay: time.Hour}, sub, obs, events)

	if len(sub.calls) != 1 {
		t.Fatalf("Submit called %d times, want 1", len(sub.calls))
	}
	call := sub.calls[0]
	if call.mode != ModeLogin || call.username != "alice" || call.password != "abc" {
		t.Errorf("Submit(%s, %q, %q), want (login, alice, abc)", call.mode, call.username, call.password)
	}
	if err := rhythm.Compare(rhythm.Vector{0, 0.15, 0.3}, call.times); err != nil {
		t.Errorf("times = %v, want [0 0.15 0.3]", call.times)
	}
	if len(obs.results) != 1 || !obs.results[0].OK {
		t.Errorf("results = %+v, want one OK result", obs.results)
	}
}

func TestLoop_LocalFailureSkipsSubmitter(t *testing.T) {
	sub := &recordingSubmitter{}
	obs := newRecordingObserver()

	events := []Event{{Kind: EventMode, Mode: ModeRegister}}
	events = append(events, keys(FieldPassword, "abcd", 0, 100)...)
	events = append(events, keys(FieldConfirm, "abc", 0, 100)...)
	events = append(events, Event{Kind: EventSubmit, Submission: Submission{Username: "bob", Password: "abcd", Confirm: "abcd"}})

	runLoop(t, LoopConfig{Refresh: time.Hour, ResetDelay: time.Hour}, sub, obs, events)

	if len(sub.calls) != 0 {
		t.Errorf("Submit called %d times, want 0", len(sub.calls))
	}
	want := Outcome{Message: "Timing mismatch between password entries"}
	if len(obs.results) != 1 || obs.results[0] != want {
		t.Errorf("results = %+v, want [%+v]", obs.results, want)
	}
}

func TestLoop_IgnoresInputWhileResultIsShown(t *testing.T) {
	sub := &recordingSubmitter{out: Outcome{Message: "Invalid password"}}
	obs := newRecordingObserver()

	events := keys(FieldPassword, "ab", 0, 100)
	events = append(events, Event{Kind: EventSubmit, Submission: Submission{Username: "u", Password: "ab"}})
	events = append(events, keys(FieldPassword, "cd", 500, 100)...)
	events = append(events, Event{Kind: EventSubmit, Submission: Submission{Username: "u", Password: "ab"}})

	runLoop(t, LoopConfig{Refresh: time.Hour, ResetDelay: time.Hour}, sub, obs, events)

	if len(sub.calls) != 1 {
		t.Errorf("Submit called %d times, want 1", len(sub.calls))
	}
}

func TestLoop_RetryResets(t *testing.T) {
	sub := &recordingSubmitter{out: Outcome{OK: true}}
	obs := newRecordingObserver()

	events := keys(FieldPassword, "xyz", 0, 100)
	events = append(events, Event{Kind: EventRetry})
	events = append(events, keys(FieldPassword, "ab", 1000, 200)...)
	events = append(events, Event{Kind: EventSubmit, Submission: Submission{Username: "u", Password: "ab"}})

	runLoop(t, LoopConfig{Refresh: time.Hour, ResetDelay: time.Hour}, sub, obs, events)

	if len(sub.calls) != 1 {
		t.Fatalf("Submit called %d times, want 1", len(sub.calls))
	}
	if got := sub.calls[0].times; len(got) != 2 || got[1] != 0.2 {
		t.Errorf("times = %v, want [0 0.2]", got)
	}
	if obs.resets != 1 {
		t.Errorf("resets = %d, want 1", obs.resets)
	}
}

func TestLoop_ResetsAfterDelay(t *testing.T) {
	sub := &recordingSubmitter{out: Outcome{OK: true}}
	obs := newRecordingObserver()
	loop := NewLoop(LoopConfig{Refresh: time.Hour, ResetDelay: 20 * time.Millisecond}, sub, obs)

	ch := make(chan Event, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx, ch) }()

	for _, ev := range keys(FieldPassword, "a", 0, 100) {
		ch <- ev
	}
	ch <- Event{Kind: EventSubmit, Submission: Submission{Username: "u", Password: "a"}}

	select {
	case <-obs.resetCh:
	case <-time.After(2 * time.Second):
		t.Fatal("form was not reset after the display delay")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if loop.Form().primary.Len() != 0 {
		t.Error("primary session not cleared by reset")
	}
}

func TestLoop_TicksReportElapsedAndLimit(t *testing.T) {
	sub := &recordingSubmitter{}
	obs := newRecordingObserver()

	start := time.Now()
	loop := NewLoop(LoopConfig{
		Ceiling: 60 * time.Millisecond,
		Refresh: 5 * time.Millisecond,
	}, sub, obs)

	ch := make(chan Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx, ch) }()

	ch <- Event{Kind: EventKeyDown, Field: FieldPassword, Key: "a", At: start}

	deadline := time.After(2 * time.Second)
	for {
		obs.mu.Lock()
		n := len(obs.limits)
		obs.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatal("ceiling never reported")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.limits) != 1 || obs.limits[0] != FieldPassword {
		t.Errorf("limits = %v, want [password]", obs.limits)
	}
	if _, ok := obs.elapsed[FieldConfirm]; ok {
		t.Error("idle confirm field reported elapsed time")
	}
}
