package record

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ent0n29/meetscribe/internal/audio"
	"github.com/ent0n29/meetscribe/internal/observability"
)

// Info is a read-only snapshot of a sink's recording state.
type Info struct {
	SessionID    string   `json:"session_id"`
	OutputDir    string   `json:"output_dir"`
	Participants []string `json:"participants"`
}

// Sink multiplexes raw audio frames into one durable WAV stream per
// participant. Streams are created lazily on a participant's first frame and
// live until Cleanup; a reconnect cycle reuses the sink so streams accumulate
// continuously across the gap.
type Sink struct {
	sessionID string
	dir       string
	format    audio.Format
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu      sync.Mutex
	writers map[string]*audio.Writer
	closed  bool
}

func NewSink(sessionID, baseDir string, format audio.Format, logger *slog.Logger, metrics *observability.Metrics) (*Sink, error) {
	dir := filepath.Join(baseDir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}
	return &Sink{
		sessionID: sessionID,
		dir:       dir,
		format:    format,
		logger:    logger,
		metrics:   metrics,
		writers:   make(map[string]*audio.Writer),
	}, nil
}

func (s *Sink) SessionID() string { return s.sessionID }

// Write appends raw PCM bytes to the participant's stream, creating it on
// first contact. An empty payload is a no-op. A failure for one participant
// is logged and never aborts writes for others.
func (s *Sink) Write(participantID, displayName string, pcm []byte) {
	if len(pcm) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	w, ok := s.writers[participantID]
	if !ok {
		var err error
		w, err = s.openStream(participantID, displayName)
		if err != nil {
			s.logger.Error("failed to open participant stream",
				slog.String("session_id", s.sessionID),
				slog.String("participant_id", participantID),
				slog.String("error", err.Error()),
			)
			if s.metrics != nil {
				s.metrics.FrameWriteErrors.Inc()
			}
			return
		}
		s.writers[participantID] = w
	}

	if err := w.Write(pcm); err != nil {
		s.logger.Error("participant stream write failed",
			slog.String("session_id", s.sessionID),
			slog.String("participant_id", participantID),
			slog.String("error", err.Error()),
		)
		if s.metrics != nil {
			s.metrics.FrameWriteErrors.Inc()
		}
		return
	}
	if s.metrics != nil {
		s.metrics.FramesWritten.Inc()
	}
}

func (s *Sink) openStream(participantID, displayName string) (*audio.Writer, error) {
	name := fmt.Sprintf("user_%s_%s.wav", participantID, sanitizeName(displayName))
	w, err := audio.NewWriter(filepath.Join(s.dir, name), s.format)
	if err != nil {
		return nil, err
	}
	s.logger.Info("started participant stream",
		slog.String("session_id", s.sessionID),
		slog.String("participant_id", participantID),
		slog.String("file", name),
	)
	return w, nil
}

// Cleanup closes every open stream exactly once, best-effort per participant.
// The caller guarantees a single invocation; later writes are dropped.
func (s *Sink) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var failed []string
	for id, w := range s.writers {
		if err := w.Close(); err != nil {
			failed = append(failed, id)
			s.logger.Error("failed to close participant stream",
				slog.String("session_id", s.sessionID),
				slog.String("participant_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to close %d participant stream(s): %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

// Info returns a snapshot of the sink's state with a sorted participant list.
func (s *Sink) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.writers))
	for id := range s.writers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return Info{SessionID: s.sessionID, OutputDir: s.dir, Participants: ids}
}

// sanitizeName reduces a display name to a filesystem-safe charset. The
// participant id keeps filenames collision-free even when names collide.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" {
		out = "unknown"
	}
	const maxLen = 32
	if len(out) > maxLen {
		out = out[:maxLen]
	}
	return out
}
