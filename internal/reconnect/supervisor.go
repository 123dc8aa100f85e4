package reconnect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ent0n29/meetscribe/internal/archive"
	"github.com/ent0n29/meetscribe/internal/events"
	"github.com/ent0n29/meetscribe/internal/meeting"
	"github.com/ent0n29/meetscribe/internal/observability"
	"github.com/ent0n29/meetscribe/internal/record"
	"github.com/ent0n29/meetscribe/internal/reliability"
	"github.com/ent0n29/meetscribe/internal/voicelink"
)

// Notifier posts human-readable status messages to the meeting's text channel.
type Notifier interface {
	Notify(ctx context.Context, channelID, message string) error
}

// Outcome is the terminal result of one disconnect-signal handling run.
type Outcome string

const (
	// OutcomeIgnored: no active session, or a run is already in flight.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeRecovered: reconnected and recording resumed into the same sink.
	OutcomeRecovered Outcome = "recovered"
	// OutcomeExhausted: the session was terminated and cleaned up.
	OutcomeExhausted Outcome = "exhausted"
)

type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 2 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	return c
}

// Supervisor reacts to involuntary voice disconnects for guilds with an
// active session. It drives a bounded-retry reconnection sequence with
// exponential backoff, resuming recording into the original sink on success
// and terminating the session safely on exhaustion. At most one run is in
// flight per guild; overlapping signals are dropped.
type Supervisor struct {
	store    *meeting.Store
	recorder *record.Manager
	dialer   voicelink.Dialer
	notifier Notifier
	archive  archive.Store
	bus      *events.Bus
	metrics  *observability.Metrics
	logger   *slog.Logger
	cfg      Config

	mu       sync.Mutex
	inflight map[string]bool
	conns    map[string]voicelink.Connection
}

func NewSupervisor(
	store *meeting.Store,
	recorder *record.Manager,
	dialer voicelink.Dialer,
	notifier Notifier,
	arch archive.Store,
	bus *events.Bus,
	metrics *observability.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Supervisor {
	return &Supervisor{
		store:    store,
		recorder: recorder,
		dialer:   dialer,
		notifier: notifier,
		archive:  arch,
		bus:      bus,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		inflight: make(map[string]bool),
		conns:    make(map[string]voicelink.Connection),
	}
}

// HandleDisconnect runs the full reconnection sequence for one disconnect
// signal. It blocks through backoff waits and returns the terminal outcome;
// callers on an event loop should invoke it from its own goroutine.
func (s *Supervisor) HandleDisconnect(ctx context.Context, guildID string) Outcome {
	sess, ok := s.store.Get(guildID)
	if !ok {
		return OutcomeIgnored
	}

	s.mu.Lock()
	if s.inflight[guildID] {
		s.mu.Unlock()
		s.logger.Info("reconnection already in progress, signal dropped",
			slog.String("guild_id", guildID),
		)
		return OutcomeIgnored
	}
	s.inflight[guildID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inflight, guildID)
		s.mu.Unlock()
	}()

	s.logger.Warn("involuntary voice disconnect, attempting to reconnect",
		slog.String("guild_id", guildID),
		slog.String("meeting_id", sess.MeetingID),
	)
	s.recorder.Detach(guildID)
	s.publish(events.TypeReconnecting, sess, "")

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := backoffDelay(s.cfg, attempt)
			s.logger.Info("waiting before reconnection attempt",
				slog.String("guild_id", guildID),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)
			if !wait(ctx, delay) {
				return s.exhaust(ctx, sess, attempt-1)
			}
		}

		if s.metrics != nil {
			s.metrics.ReconnectAttempts.Inc()
		}
		conn, err := s.dialer.Connect(ctx, guildID, sess.VoiceChannelID)
		if err != nil {
			s.logger.Warn("reconnection attempt failed",
				slog.String("guild_id", guildID),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", s.cfg.MaxAttempts),
				slog.String("error", err.Error()),
			)
			if !reliability.IsRetryableConnectError(err) {
				return s.exhaust(ctx, sess, attempt)
			}
			continue
		}

		if err := s.recorder.Start(guildID, conn, sess.MeetingID); err != nil {
			// The connection is back but recording cannot resume; retrying
			// the same start will not change a capability failure, so give
			// up this cycle entirely.
			s.logger.Error("reconnected but failed to resume recording",
				slog.String("guild_id", guildID),
				slog.String("meeting_id", sess.MeetingID),
				slog.String("error", err.Error()),
			)
			if derr := conn.Disconnect(ctx); derr != nil {
				s.logger.Warn("disconnect after resume failure",
					slog.String("guild_id", guildID),
					slog.String("error", derr.Error()),
				)
			}
			return s.exhaust(ctx, sess, attempt)
		}

		s.logger.Info("reconnected and resumed recording",
			slog.String("guild_id", guildID),
			slog.String("meeting_id", sess.MeetingID),
			slog.Int("attempt", attempt),
		)
		s.notify(ctx, sess.TextChannelID, fmt.Sprintf(
			"✅ **Reconnected successfully**\nMeeting ID: `%s`\nRecording resumed after temporary disconnection.",
			shortID(sess.MeetingID),
		))
		s.publish(events.TypeRecovered, sess, "")
		if s.metrics != nil {
			s.metrics.ReconnectOutcomes.WithLabelValues(string(OutcomeRecovered)).Inc()
		}
		s.mu.Lock()
		s.conns[guildID] = conn
		s.mu.Unlock()
		return OutcomeRecovered
	}

	return s.exhaust(ctx, sess, s.cfg.MaxAttempts)
}

// exhaust terminates the session after the retry budget is spent: residual
// recording is stopped, the session is ended and archived, and the meeting's
// text channel is told why the meeting ended.
func (s *Supervisor) exhaust(ctx context.Context, sess *meeting.Session, attempts int) Outcome {
	s.logger.Error("giving up on reconnection, ending meeting",
		slog.String("guild_id", sess.GuildID),
		slog.String("meeting_id", sess.MeetingID),
		slog.Int("attempts", attempts),
	)

	var info record.Info
	stopped, err := s.recorder.Stop(sess.GuildID)
	if err != nil && !errors.Is(err, record.ErrNoActiveRecording) {
		s.logger.Error("failed to stop residual recording",
			slog.String("guild_id", sess.GuildID),
			slog.String("error", err.Error()),
		)
	} else if err == nil {
		info = stopped
	}

	ended, err := s.store.End(sess.GuildID)
	if err != nil {
		s.logger.Error("failed to end meeting session",
			slog.String("guild_id", sess.GuildID),
			slog.String("error", err.Error()),
		)
	} else {
		if s.metrics != nil {
			s.metrics.ActiveMeetings.Set(float64(s.store.ActiveCount()))
			s.metrics.MeetingEvents.WithLabelValues("connection_lost").Inc()
		}
		if s.archive != nil {
			if aerr := s.archive.SaveMeeting(ctx, ended, info); aerr != nil {
				s.logger.Error("failed to archive ended meeting",
					slog.String("meeting_id", ended.MeetingID),
					slog.String("error", aerr.Error()),
				)
			}
		}
	}

	s.notify(ctx, sess.TextChannelID, fmt.Sprintf(
		"⚠️ **Meeting ended due to connection failure**\nMeeting ID: `%s`\nThe bot was disconnected and could not reconnect after %d attempts.",
		shortID(sess.MeetingID), s.cfg.MaxAttempts,
	))
	s.publish(events.TypeExhausted, sess, fmt.Sprintf("gave up after %d attempts", attempts))
	if s.metrics != nil {
		s.metrics.ReconnectOutcomes.WithLabelValues(string(OutcomeExhausted)).Inc()
	}
	return OutcomeExhausted
}

// Connection returns the connection established by the most recent
// successful recovery for the guild, so the caller can resume ownership
// of its lifecycle. The slot is cleared on return.
func (s *Supervisor) Connection(guildID string) voicelink.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn := s.conns[guildID]
	delete(s.conns, guildID)
	return conn
}

func (s *Supervisor) notify(ctx context.Context, channelID, message string) {
	if s.notifier == nil || channelID == "" {
		return
	}
	if err := s.notifier.Notify(ctx, channelID, message); err != nil {
		s.logger.Warn("failed to notify text channel",
			slog.String("channel_id", channelID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Supervisor) publish(t events.Type, sess *meeting.Session, detail string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{
		Type:      t,
		GuildID:   sess.GuildID,
		MeetingID: sess.MeetingID,
		Detail:    detail,
	})
}

// backoffDelay is the wait before attempt n (n >= 2): BaseDelay * 2^(n-2),
// capped at MaxDelay. There is no delay before attempt 1.
func backoffDelay(cfg Config, attempt int) time.Duration {
	return reliability.ExponentialBackoff(attempt-2, cfg.BaseDelay, cfg.MaxDelay)
}

// wait blocks for d or until ctx is done; it reports whether the full delay
// elapsed.
func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
