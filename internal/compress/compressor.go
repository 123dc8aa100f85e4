package compress

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Transcription APIs cap uploads at 25 MB; stay a megabyte under it.
const (
	MaxFileSizeBytes  = 25 * 1024 * 1024
	SafeFileSizeBytes = 24 * 1024 * 1024
)

const (
	ffmpegTimeout  = 5 * time.Minute
	ffprobeTimeout = 30 * time.Second
)

// Settings are the MP3 encode parameters. Defaults favor speech: mono 16 kHz
// at 32 kbps fits a 90 minute meeting under the upload cap.
type Settings struct {
	BitrateKbps int
	SampleRate  int
	Channels    int
}

func (s Settings) withDefaults() Settings {
	if s.BitrateKbps <= 0 {
		s.BitrateKbps = 32
	}
	if s.SampleRate <= 0 {
		s.SampleRate = 16000
	}
	if s.Channels <= 0 {
		s.Channels = 1
	}
	return s
}

// Compressor shells out to ffmpeg to convert finalized WAV recordings to MP3
// and uses ffprobe to verify the result is playable and within budget.
type Compressor struct {
	settings    Settings
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger
}

func NewCompressor(settings Settings, logger *slog.Logger) (*Compressor, error) {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobe, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return &Compressor{
		settings:    settings.withDefaults(),
		ffmpegPath:  ffmpeg,
		ffprobePath: ffprobe,
		logger:      logger,
	}, nil
}

// CompressFile converts one WAV file to MP3 next to it and validates the
// output. The MP3 path is returned; an invalid output is deleted.
func (c *Compressor) CompressFile(ctx context.Context, wavPath string) (string, error) {
	stat, err := os.Stat(wavPath)
	if err != nil {
		return "", fmt.Errorf("input wav: %w", err)
	}
	if stat.IsDir() {
		return "", fmt.Errorf("input wav %s is a directory", wavPath)
	}

	mp3Path := strings.TrimSuffix(wavPath, filepath.Ext(wavPath)) + ".mp3"

	runCtx, cancel := context.WithTimeout(ctx, ffmpegTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.ffmpegPath, ffmpegArgs(c.settings, wavPath, mp3Path)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if runCtx.Err() != nil {
			// exec.CommandContext may surface "signal: killed" instead of
			// context expiry.
			return "", fmt.Errorf("ffmpeg timed out for %s: %w", wavPath, runCtx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("ffmpeg failed: %w: %s", err, msg)
		}
		return "", fmt.Errorf("ffmpeg failed: %w", err)
	}

	if err := c.validate(ctx, mp3Path); err != nil {
		os.Remove(mp3Path)
		return "", err
	}

	if out, err := os.Stat(mp3Path); err == nil {
		c.logger.Info("compressed recording",
			slog.String("wav", filepath.Base(wavPath)),
			slog.String("mp3", filepath.Base(mp3Path)),
			slog.Int64("wav_bytes", stat.Size()),
			slog.Int64("mp3_bytes", out.Size()),
		)
	}
	return mp3Path, nil
}

// CompressDir converts every WAV file in a meeting directory, best-effort
// per file. Compressed paths are returned together with the count of files
// that failed.
func (c *Compressor) CompressDir(ctx context.Context, dir string) (compressed []string, failed int) {
	wavs, err := filepath.Glob(filepath.Join(dir, "*.wav"))
	if err != nil {
		c.logger.Error("bad recordings glob", slog.String("dir", dir), slog.String("error", err.Error()))
		return nil, 0
	}
	for _, wav := range wavs {
		mp3, err := c.CompressFile(ctx, wav)
		if err != nil {
			failed++
			c.logger.Error("failed to compress recording",
				slog.String("wav", wav),
				slog.String("error", err.Error()),
			)
			continue
		}
		compressed = append(compressed, mp3)
	}
	return compressed, failed
}

// validate rejects empty, oversized or unreadable outputs.
func (c *Compressor) validate(ctx context.Context, mp3Path string) error {
	stat, err := os.Stat(mp3Path)
	if err != nil {
		return fmt.Errorf("compressed file missing: %w", err)
	}
	if stat.Size() == 0 {
		return fmt.Errorf("compressed file %s is empty", mp3Path)
	}
	if stat.Size() > MaxFileSizeBytes {
		return fmt.Errorf("compressed file %s is %d bytes, over the %d byte limit", mp3Path, stat.Size(), MaxFileSizeBytes)
	}
	if stat.Size() > SafeFileSizeBytes {
		c.logger.Warn("compressed file approaching size limit",
			slog.String("file", mp3Path),
			slog.Int64("bytes", stat.Size()),
		)
	}

	duration, err := c.probeDuration(ctx, mp3Path)
	if err != nil {
		return fmt.Errorf("integrity check failed for %s: %w", mp3Path, err)
	}
	if duration <= 0 {
		return fmt.Errorf("integrity check failed for %s: non-positive duration %f", mp3Path, duration)
	}
	return nil
}

func (c *Compressor) probeDuration(ctx context.Context, path string) (float64, error) {
	runCtx, cancel := context.WithTimeout(ctx, ffprobeTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if runCtx.Err() != nil {
			return 0, fmt.Errorf("ffprobe timed out: %w", runCtx.Err())
		}
		return 0, fmt.Errorf("ffprobe failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable ffprobe duration %q", strings.TrimSpace(stdout.String()))
	}
	return duration, nil
}

func ffmpegArgs(s Settings, wavPath, mp3Path string) []string {
	return []string{
		"-i", wavPath,
		"-codec:a", "libmp3lame",
		"-b:a", fmt.Sprintf("%dk", s.BitrateKbps),
		"-ar", strconv.Itoa(s.SampleRate),
		"-ac", strconv.Itoa(s.Channels),
		"-y",
		"-loglevel", "error",
		mp3Path,
	}
}

// EstimateMP3Size predicts the encoded size in bytes for a duration at the
// given bitrate, including ~5% container overhead.
func EstimateMP3Size(duration time.Duration, bitrateKbps int) float64 {
	bytes := float64(bitrateKbps) * 1000 * duration.Seconds() / 8
	return bytes * 1.05
}

// CanCompressSafely reports whether audio of the given duration fits under
// the safe size budget at the given bitrate.
func CanCompressSafely(duration time.Duration, bitrateKbps int) bool {
	return EstimateMP3Size(duration, bitrateKbps) < SafeFileSizeBytes
}
