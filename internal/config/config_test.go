package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.RecordingsDir != "recordings" {
		t.Fatalf("RecordingsDir = %q, want recordings", cfg.RecordingsDir)
	}
	if cfg.ReconnectMaxAttempts != 3 {
		t.Fatalf("ReconnectMaxAttempts = %d, want 3", cfg.ReconnectMaxAttempts)
	}
	if cfg.ReconnectBaseDelay != 2*time.Second {
		t.Fatalf("ReconnectBaseDelay = %v, want 2s", cfg.ReconnectBaseDelay)
	}
	if !cfg.CompressRecordings {
		t.Fatalf("CompressRecordings should default to true")
	}
	if cfg.CompressBitrateKbps != 32 || cfg.CompressSampleRate != 16000 || cfg.CompressChannels != 1 {
		t.Fatalf("unexpected compression defaults: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_BIND_ADDR", ":9999")
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "5")
	t.Setenv("RECONNECT_BASE_DELAY", "500ms")
	t.Setenv("COMPRESS_RECORDINGS", "off")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9999" {
		t.Fatalf("BindAddr = %q, want :9999", cfg.BindAddr)
	}
	if cfg.ReconnectMaxAttempts != 5 {
		t.Fatalf("ReconnectMaxAttempts = %d, want 5", cfg.ReconnectMaxAttempts)
	}
	if cfg.ReconnectBaseDelay != 500*time.Millisecond {
		t.Fatalf("ReconnectBaseDelay = %v, want 500ms", cfg.ReconnectBaseDelay)
	}
	if cfg.CompressRecordings {
		t.Fatalf("CompressRecordings = true, want false")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		key, value string
	}{
		{"RECONNECT_MAX_ATTEMPTS", "0"},
		{"RECONNECT_MAX_ATTEMPTS", "abc"},
		{"RECONNECT_BASE_DELAY", "-1s"},
		{"RECONNECT_MAX_DELAY", "1ms"},
		{"COMPRESS_BITRATE_KBPS", "-5"},
		{"COMPRESS_CHANNELS", "7"},
		{"COMPRESS_RECORDINGS", "maybe"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%s should fail", tc.key, tc.value)
			}
		})
	}
}
