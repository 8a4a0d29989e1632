package capture

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

// press sends a full keydown/keyup pair.
func press(s *Session, key string, ms int) Result {
	res := s.KeyDown(key, at(ms))
	s.KeyUp(key)
	return res
}

func TestSession_RecordsElapsedFromFirstKey(t *testing.T) {
	s := NewSession(0)

	press(s, "a", 1000)
	press(s, "b", 1150)
	press(s, "c", 1300)

	got := s.Vector()
	want := []float64{0, 0.15, 0.3}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("vector[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSession_VectorIsNonDecreasingAndMatchesAccepted(t *testing.T) {
	s := NewSession(0)
	keys := []string{"p", "Shift", "a", "a", "s", "Backspace", "s", "1", "!"}

	accepted := 0
	for i, k := range keys {
		if press(s, k, i*97).Accepted {
			accepted++
		}
	}

	v := s.Vector()
	if len(v) != accepted {
		t.Errorf("len = %d, want %d accepted keys", len(v), accepted)
	}
	if accepted != 7 {
		t.Errorf("accepted = %d, want 7", accepted)
	}
	for i := 1; i < len(v); i++ {
		if v[i] < v[i-1] {
			t.Errorf("vector decreases at %d: %v", i, v)
		}
	}
}

func TestSession_OutOfOrderTimestamps(t *testing.T) {
	s := NewSession(0)

	press(s, "a", 1000)
	press(s, "b", 1400)
	if res := press(s, "c", 700); !res.Accepted {
		t.Fatalf("earlier-stamped key not accepted: %+v", res)
	}
	press(s, "d", 1500)

	got := s.Vector()
	want := []float64{0, 0.4, 0.4, 0.5}
	if len(got) != len(want) {
		t.Fatalf("vector = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("vector[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if res := s.Tick(at(500)); res.Elapsed < 0 {
		t.Errorf("Tick() before start elapsed = %v, want >= 0", res.Elapsed)
	}
}

func TestSession_RejectsNonPrintableKeys(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"a", true},
		{"Z", true},
		{"7", true},
		{" ", true},
		{"é", true},
		{"", false},
		{"Shift", false},
		{"Enter", false},
		{"F1", false},
		{"\t", false},
		{"\x00", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			s := NewSession(0)
			if got := s.KeyDown(tt.key, t0).Accepted; got != tt.want {
				t.Errorf("KeyDown(%q).Accepted = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestSession_HeldKeyCountsOnce(t *testing.T) {
	s := NewSession(0)

	s.KeyDown("a", at(0))
	for ms := 30; ms <= 300; ms += 30 {
		if s.KeyDown("a", at(ms)).Accepted {
			t.Fatalf("auto-repeat at %dms was accepted", ms)
		}
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}

	s.KeyUp("a")
	if !s.KeyDown("a", at(400)).Accepted {
		t.Error("re-press after release was rejected")
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestSession_HeldKeysAreIndependent(t *testing.T) {
	s := NewSession(0)

	s.KeyDown("a", at(0))
	if !s.KeyDown("b", at(50)).Accepted {
		t.Error("second key rejected while first is held")
	}
	s.KeyUp("b")
	if s.KeyDown("a", at(80)).Accepted {
		t.Error("held key accepted after another key was released")
	}
}

func TestSession_CeilingTerminates(t *testing.T) {
	s := NewSession(0)

	press(s, "a", 0)
	press(s, "b", 14999)

	res := press(s, "c", 15000)
	if res.Accepted {
		t.Error("key at the ceiling was accepted")
	}
	if !res.LimitReached {
		t.Error("LimitReached = false at the ceiling")
	}
	if !s.Expired() {
		t.Error("Expired() = false after ceiling")
	}

	res = press(s, "d", 15100)
	if res.Accepted || res.LimitReached {
		t.Errorf("key after expiry = %+v, want ignored", res)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestSession_TickEnforcesCeiling(t *testing.T) {
	s := NewSession(time.Second)

	if res := s.Tick(at(5000)); res.LimitReached || res.Elapsed != 0 {
		t.Errorf("Tick before start = %+v, want zero", res)
	}

	press(s, "a", 0)
	if res := s.Tick(at(500)); res.Elapsed != 500*time.Millisecond {
		t.Errorf("Tick elapsed = %v, want 500ms", res.Elapsed)
	}
	if res := s.Tick(at(1000)); !res.LimitReached {
		t.Error("Tick at ceiling did not report LimitReached")
	}
	if res := s.Tick(at(1050)); res.LimitReached {
		t.Error("LimitReached reported twice")
	}
	if s.Active() {
		t.Error("Active() = true after expiry")
	}
	if s.Len() != 1 {
		t.Errorf("Tick changed the vector: Len() = %d", s.Len())
	}
}

func TestSession_Reset(t *testing.T) {
	s := NewSession(time.Second)
	s.KeyDown("a", at(0))
	s.KeyDown("b", at(2000))

	s.Reset()

	if s.Len() != 0 || s.Expired() || s.Active() {
		t.Fatalf("after Reset: len=%d expired=%v active=%v", s.Len(), s.Expired(), s.Active())
	}
	if !s.KeyDown("a", at(5000)).Accepted {
		t.Error("held marker survived Reset")
	}
	if v := s.Vector(); v[0] != 0 {
		t.Errorf("first entry after Reset = %v, want 0", v[0])
	}
}

func TestSession_VectorIsCopy(t *testing.T) {
	s := NewSession(0)
	press(s, "a", 0)

	v := s.Vector()
	v[0] = 42

	if s.Vector()[0] != 0 {
		t.Error("Vector() exposes internal storage")
	}
}
