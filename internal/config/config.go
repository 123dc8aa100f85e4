package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the meeting recording service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	DiscordToken  string
	RecordingsDir string

	ReconnectMaxAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration

	DatabaseURL string

	CompressRecordings  bool
	CompressBitrateKbps int
	CompressSampleRate  int
	CompressChannels    int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "meetscribe"),
		DiscordToken:     strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN")),
		RecordingsDir:    envOrDefault("RECORDINGS_DIR", "recordings"),
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),

		ShutdownTimeout:      15 * time.Second,
		ReconnectMaxAttempts: 3,
		ReconnectBaseDelay:   2 * time.Second,
		ReconnectMaxDelay:    30 * time.Second,

		CompressRecordings: true,
		// Speech-optimized encode settings; ~21.6 MB for 90 minutes at
		// 32 kbps keeps long meetings under a 25 MB transcription upload cap.
		CompressBitrateKbps: 32,
		CompressSampleRate:  16000,
		CompressChannels:    1,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ReconnectMaxAttempts, err = intFromEnv("RECONNECT_MAX_ATTEMPTS", cfg.ReconnectMaxAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.ReconnectBaseDelay, err = durationFromEnv("RECONNECT_BASE_DELAY", cfg.ReconnectBaseDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.ReconnectMaxDelay, err = durationFromEnv("RECONNECT_MAX_DELAY", cfg.ReconnectMaxDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.CompressRecordings, err = boolFromEnv("COMPRESS_RECORDINGS", cfg.CompressRecordings)
	if err != nil {
		return Config{}, err
	}
	cfg.CompressBitrateKbps, err = intFromEnv("COMPRESS_BITRATE_KBPS", cfg.CompressBitrateKbps)
	if err != nil {
		return Config{}, err
	}
	cfg.CompressSampleRate, err = intFromEnv("COMPRESS_SAMPLE_RATE", cfg.CompressSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.CompressChannels, err = intFromEnv("COMPRESS_CHANNELS", cfg.CompressChannels)
	if err != nil {
		return Config{}, err
	}

	if cfg.ReconnectMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("RECONNECT_MAX_ATTEMPTS must be positive")
	}
	if cfg.ReconnectBaseDelay <= 0 {
		return Config{}, fmt.Errorf("RECONNECT_BASE_DELAY must be positive")
	}
	if cfg.ReconnectMaxDelay < cfg.ReconnectBaseDelay {
		return Config{}, fmt.Errorf("RECONNECT_MAX_DELAY must be at least RECONNECT_BASE_DELAY")
	}
	if cfg.CompressBitrateKbps <= 0 {
		return Config{}, fmt.Errorf("COMPRESS_BITRATE_KBPS must be positive")
	}
	if cfg.CompressSampleRate <= 0 {
		return Config{}, fmt.Errorf("COMPRESS_SAMPLE_RATE must be positive")
	}
	if cfg.CompressChannels != 1 && cfg.CompressChannels != 2 {
		return Config{}, fmt.Errorf("COMPRESS_CHANNELS must be 1 or 2")
	}
	if strings.TrimSpace(cfg.RecordingsDir) == "" {
		return Config{}, fmt.Errorf("RECORDINGS_DIR must not be empty")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
