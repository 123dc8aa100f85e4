package record

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ent0n29/meetscribe/internal/audio"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	s, err := NewSink("meeting-1", t.TempDir(), audio.DiscordVoice, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}
	return s
}

func TestSinkCreatesStreamLazily(t *testing.T) {
	s := newTestSink(t)

	if got := len(s.Info().Participants); got != 0 {
		t.Fatalf("participants before any frame = %d, want 0", got)
	}

	for i := 0; i < 5; i++ {
		s.Write("111", "alice", []byte{1, 2, 3, 4})
	}
	info := s.Info()
	if len(info.Participants) != 1 || info.Participants[0] != "111" {
		t.Fatalf("participants = %v, want [111]", info.Participants)
	}

	entries, err := os.ReadDir(info.OutputDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("files in output dir = %d, want 1", len(entries))
	}
	if entries[0].Name() != "user_111_alice.wav" {
		t.Fatalf("file name = %q, want user_111_alice.wav", entries[0].Name())
	}

	if err := s.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
}

func TestSinkEmptyWriteIsNoop(t *testing.T) {
	s := newTestSink(t)
	s.Write("111", "alice", nil)
	if got := len(s.Info().Participants); got != 0 {
		t.Fatalf("empty write created a stream: %d participants", got)
	}
	if err := s.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
}

func TestSinkWriteAfterCleanupIsDropped(t *testing.T) {
	s := newTestSink(t)
	s.Write("111", "alice", []byte{1, 2})
	if err := s.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	s.Write("222", "bob", []byte{3, 4})
	if got := len(s.Info().Participants); got != 1 {
		t.Fatalf("participants after cleanup = %d, want 1", got)
	}
}

func TestSinkConcurrentWritesStayAttributable(t *testing.T) {
	s := newTestSink(t)

	payload := func(b byte) []byte {
		out := make([]byte, 64)
		for i := range out {
			out[i] = b
		}
		return out
	}

	var wg sync.WaitGroup
	const frames = 50
	for _, p := range []struct {
		id, name string
		fill     byte
	}{
		{"111", "alice", 0xAA},
		{"222", "bob", 0xBB},
	} {
		wg.Add(1)
		go func(id, name string, fill byte) {
			defer wg.Done()
			for i := 0; i < frames; i++ {
				s.Write(id, name, payload(fill))
			}
		}(p.id, p.name, p.fill)
	}
	wg.Wait()

	info := s.Info()
	if len(info.Participants) != 2 {
		t.Fatalf("participants = %v, want two", info.Participants)
	}
	if err := s.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}

	for file, fill := range map[string]byte{
		"user_111_alice.wav": 0xAA,
		"user_222_bob.wav":   0xBB,
	} {
		data, err := os.ReadFile(filepath.Join(info.OutputDir, file))
		if err != nil {
			t.Fatalf("ReadFile(%s) error = %v", file, err)
		}
		wavInfo, err := audio.ReadInfo(data)
		if err != nil {
			t.Fatalf("ReadInfo(%s) error = %v", file, err)
		}
		if wavInfo.DataSize != frames*64 {
			t.Fatalf("%s data size = %d, want %d", file, wavInfo.DataSize, frames*64)
		}
		for i, b := range data[44:] {
			if b != fill {
				t.Fatalf("%s byte %d = %#x, want %#x", file, i, b, fill)
			}
		}
	}
}

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"alice", "alice"},
		{"Alice Smith", "Alice_Smith"},
		{"../../etc/passwd", "etcpasswd"},
		{"ünïcødé!!", "ncd"},
		{"", "unknown"},
		{"💥💥💥", "unknown"},
	}
	for _, tc := range cases {
		if got := sanitizeName(tc.in); got != tc.want {
			t.Errorf("sanitizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
