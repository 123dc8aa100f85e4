package compress

import (
	"strings"
	"testing"
	"time"
)

func TestFfmpegArgs(t *testing.T) {
	args := ffmpegArgs(Settings{BitrateKbps: 32, SampleRate: 16000, Channels: 1}, "in.wav", "out.mp3")
	joined := strings.Join(args, " ")
	want := "-i in.wav -codec:a libmp3lame -b:a 32k -ar 16000 -ac 1 -y -loglevel error out.mp3"
	if joined != want {
		t.Fatalf("args = %q, want %q", joined, want)
	}
}

func TestSettingsDefaults(t *testing.T) {
	s := Settings{}.withDefaults()
	if s.BitrateKbps != 32 || s.SampleRate != 16000 || s.Channels != 1 {
		t.Fatalf("unexpected defaults: %+v", s)
	}
	s = Settings{BitrateKbps: 64, SampleRate: 44100, Channels: 2}.withDefaults()
	if s.BitrateKbps != 64 || s.SampleRate != 44100 || s.Channels != 2 {
		t.Fatalf("explicit settings overridden: %+v", s)
	}
}

func TestEstimateMP3Size(t *testing.T) {
	// 10 minutes at 32 kbps is 2.4 MB raw, ~2.52 MB with overhead.
	got := EstimateMP3Size(10*time.Minute, 32)
	want := 32.0 * 1000 * 600 / 8 * 1.05
	if got != want {
		t.Fatalf("EstimateMP3Size() = %f, want %f", got, want)
	}
}

func TestCanCompressSafely(t *testing.T) {
	cases := []struct {
		duration time.Duration
		bitrate  int
		want     bool
	}{
		{10 * time.Minute, 32, true},
		{90 * time.Minute, 32, true},
		{100 * time.Hour, 32, false},
		{90 * time.Minute, 320, false},
	}
	for _, tc := range cases {
		if got := CanCompressSafely(tc.duration, tc.bitrate); got != tc.want {
			t.Fatalf("CanCompressSafely(%v, %d) = %v, want %v", tc.duration, tc.bitrate, got, tc.want)
		}
	}
}
