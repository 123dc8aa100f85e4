package record

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ent0n29/meetscribe/internal/audio"
	"github.com/ent0n29/meetscribe/internal/observability"
	"github.com/ent0n29/meetscribe/internal/voicelink"
)

var (
	ErrAlreadyActive     = errors.New("recording already active for this guild")
	ErrNoActiveRecording = errors.New("no active recording for this guild")
	ErrUnsupported       = errors.New("voice connection does not support frame capture")
	ErrConnectionFailure = errors.New("voice connection failure")
)

// registration binds a guild's sink to its capture attachment. A nil capturer
// means the sink is detached: recording survives a dropped connection and the
// reconnect path reattaches the same sink.
type registration struct {
	sink     *Sink
	capturer voicelink.FrameCapturer
}

// Manager owns at most one sink per guild and bridges voice connections to
// per-participant recordings.
type Manager struct {
	baseDir string
	format  audio.Format
	logger  *slog.Logger
	metrics *observability.Metrics

	mu   sync.Mutex
	regs map[string]*registration
}

func NewManager(baseDir string, logger *slog.Logger, metrics *observability.Metrics) *Manager {
	return &Manager{
		baseDir: baseDir,
		format:  audio.DiscordVoice,
		logger:  logger,
		metrics: metrics,
		regs:    make(map[string]*registration),
	}
}

// Start attaches a sink for the guild to the connection's frame capture.
// When a detached registration exists for the same session id, the original
// sink instance is reused so participant streams accumulate across the gap.
func (m *Manager) Start(guildID string, conn voicelink.Connection, sessionID string) error {
	capturer, ok := conn.(voicelink.FrameCapturer)
	if !ok {
		return ErrUnsupported
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	reg := m.regs[guildID]
	if reg != nil && reg.capturer != nil {
		return ErrAlreadyActive
	}

	var sink *Sink
	fresh := false
	switch {
	case reg != nil && reg.sink.SessionID() == sessionID:
		sink = reg.sink
	case reg != nil:
		// A detached sink from a different session still owns this guild slot.
		return ErrAlreadyActive
	default:
		var err error
		sink, err = NewSink(sessionID, m.baseDir, m.format, m.logger, m.metrics)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConnectionFailure, err)
		}
		fresh = true
	}

	if err := capturer.StartCapture(func(f voicelink.Frame) {
		sink.Write(f.ParticipantID, f.DisplayName, f.PCM)
	}); err != nil {
		if fresh {
			_ = sink.Cleanup()
		}
		return fmt.Errorf("%w: %v", ErrConnectionFailure, err)
	}

	m.regs[guildID] = &registration{sink: sink, capturer: capturer}
	if fresh {
		m.logger.Info("recording started",
			slog.String("guild_id", guildID),
			slog.String("session_id", sessionID),
			slog.String("output_dir", sink.Info().OutputDir),
		)
	} else {
		m.logger.Info("recording reattached",
			slog.String("guild_id", guildID),
			slog.String("session_id", sessionID),
		)
	}
	return nil
}

// Detach stops frame capture after an involuntary disconnect but keeps the
// sink registered so a reconnect can resume into it. It reports whether a
// registration existed.
func (m *Manager) Detach(guildID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg := m.regs[guildID]
	if reg == nil {
		return false
	}
	if reg.capturer != nil {
		reg.capturer.StopCapture()
		reg.capturer = nil
	}
	m.logger.Info("recording detached pending reconnect", slog.String("guild_id", guildID))
	return true
}

// Stop detaches (if attached), finalizes every participant stream and removes
// the registration. The final snapshot is returned for reporting.
func (m *Manager) Stop(guildID string) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg := m.regs[guildID]
	if reg == nil {
		return Info{}, ErrNoActiveRecording
	}
	if reg.capturer != nil {
		reg.capturer.StopCapture()
	}
	delete(m.regs, guildID)

	info := reg.sink.Info()
	if err := reg.sink.Cleanup(); err != nil {
		m.logger.Error("sink cleanup finished with errors",
			slog.String("guild_id", guildID),
			slog.String("error", err.Error()),
		)
	}
	m.logger.Info("recording stopped",
		slog.String("guild_id", guildID),
		slog.String("session_id", info.SessionID),
		slog.Int("participants", len(info.Participants)),
	)
	return info, nil
}

// Active reports whether the guild has a registration, attached or not.
func (m *Manager) Active(guildID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[guildID] != nil
}
