package meeting

import (
	"errors"
	"sync"
	"testing"
)

func TestStoreStartEndRoundTrip(t *testing.T) {
	st := NewStore()

	s, err := st.Start("g1", "vc1", "tc1", "u1")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.MeetingID == "" {
		t.Fatalf("meeting ID should not be empty")
	}
	if s.Status != StatusRecording {
		t.Fatalf("Status = %q, want %q", s.Status, StatusRecording)
	}
	if !st.IsActive("g1") {
		t.Fatalf("IsActive(g1) = false, want true")
	}

	ended, err := st.End("g1")
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != StatusEnded {
		t.Fatalf("ended status = %q, want %q", ended.Status, StatusEnded)
	}
	if ended.EndedAt == nil {
		t.Fatalf("EndedAt should be set after End()")
	}
	if ended.EndedAt.Before(ended.StartedAt) {
		t.Fatalf("EndedAt %v before StartedAt %v", ended.EndedAt, ended.StartedAt)
	}
	if got := ended.Duration(); got != ended.EndedAt.Sub(ended.StartedAt) {
		t.Fatalf("Duration() = %v, want %v", got, ended.EndedAt.Sub(ended.StartedAt))
	}
	if st.IsActive("g1") {
		t.Fatalf("IsActive(g1) = true after End(), want false")
	}
}

func TestStoreRejectsDuplicateSession(t *testing.T) {
	st := NewStore()
	if _, err := st.Start("g1", "vc1", "tc1", "u1"); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	if _, err := st.Start("g1", "vc2", "tc2", "u2"); !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("second Start() error = %v, want ErrDuplicateSession", err)
	}
	// The original session must be untouched by the rejected start.
	s, ok := st.Get("g1")
	if !ok || s.VoiceChannelID != "vc1" || s.InitiatorID != "u1" {
		t.Fatalf("active session changed by rejected start: %+v", s)
	}
}

func TestStoreEndWithoutActiveSession(t *testing.T) {
	st := NewStore()
	if _, err := st.End("g1"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("End() error = %v, want ErrNoActiveSession", err)
	}
	if st.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", st.ActiveCount())
	}
}

func TestStoreGuildsAreIndependent(t *testing.T) {
	st := NewStore()
	if _, err := st.Start("g1", "vc1", "tc1", "u1"); err != nil {
		t.Fatalf("Start(g1) error = %v", err)
	}
	if _, err := st.Start("g2", "vc2", "tc2", "u2"); err != nil {
		t.Fatalf("Start(g2) error = %v", err)
	}
	if st.ActiveCount() != 2 {
		t.Fatalf("ActiveCount() = %d, want 2", st.ActiveCount())
	}
	if _, err := st.End("g1"); err != nil {
		t.Fatalf("End(g1) error = %v", err)
	}
	if !st.IsActive("g2") {
		t.Fatalf("ending g1 should not touch g2")
	}
}

func TestStoreConcurrentStartsSingleWinner(t *testing.T) {
	st := NewStore()

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = st.Start("g1", "vc1", "tc1", "u1")
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else if !errors.Is(err, ErrDuplicateSession) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("winners = %d, want exactly 1", won)
	}
}

func TestStoreGetReturnsCopy(t *testing.T) {
	st := NewStore()
	if _, err := st.Start("g1", "vc1", "tc1", "u1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s, _ := st.Get("g1")
	s.VoiceChannelID = "mutated"
	again, _ := st.Get("g1")
	if again.VoiceChannelID != "vc1" {
		t.Fatalf("store state mutated through returned copy")
	}
}
