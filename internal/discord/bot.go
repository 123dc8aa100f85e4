package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ent0n29/meetscribe/internal/archive"
	"github.com/ent0n29/meetscribe/internal/compress"
	"github.com/ent0n29/meetscribe/internal/config"
	"github.com/ent0n29/meetscribe/internal/events"
	"github.com/ent0n29/meetscribe/internal/meeting"
	"github.com/ent0n29/meetscribe/internal/observability"
	"github.com/ent0n29/meetscribe/internal/record"
	"github.com/ent0n29/meetscribe/internal/reconnect"
	"github.com/ent0n29/meetscribe/internal/voicelink"
)

const (
	cmdMeetingStart = "meeting-start"
	cmdMeetingEnd   = "meeting-end"
)

// Bot wires slash commands and gateway events to the recording core. It
// owns the live voice connection per guild; everything else is delegated.
type Bot struct {
	session    *discordgo.Session
	cfg        config.Config
	store      *meeting.Store
	recorder   *record.Manager
	supervisor *reconnect.Supervisor
	archive    archive.Store
	compressor *compress.Compressor
	bus        *events.Bus
	metrics    *observability.Metrics
	logger     *slog.Logger
	dialer     *Dialer

	mu    sync.Mutex
	conns map[string]voicelink.Connection

	registered []*discordgo.ApplicationCommand
}

type BotDeps struct {
	Store      *meeting.Store
	Recorder   *record.Manager
	Archive    archive.Store
	Compressor *compress.Compressor // nil disables compression
	Bus        *events.Bus
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

func NewBot(cfg config.Config, deps BotDeps) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("create gateway session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages

	b := &Bot{
		session:    session,
		cfg:        cfg,
		store:      deps.Store,
		recorder:   deps.Recorder,
		archive:    deps.Archive,
		compressor: deps.Compressor,
		bus:        deps.Bus,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		conns:      make(map[string]voicelink.Connection),
	}
	b.dialer = NewDialer(session, deps.Logger)

	session.AddHandler(b.onReady)
	session.AddHandler(b.onInteraction)
	session.AddHandler(b.onVoiceStateUpdate)
	return b, nil
}

// Dialer exposes the gateway-backed dialer for the reconnection supervisor.
func (b *Bot) Dialer() voicelink.Dialer { return b.dialer }

// SetSupervisor installs the reconnection supervisor. The supervisor needs
// the bot's dialer and notifier, so it is built second and wired back here
// before the gateway opens.
func (b *Bot) SetSupervisor(sup *reconnect.Supervisor) { b.supervisor = sup }

func (b *Bot) Open() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	return nil
}

func (b *Bot) Close() error {
	b.mu.Lock()
	conns := make(map[string]voicelink.Connection, len(b.conns))
	for g, c := range b.conns {
		conns[g] = c
	}
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for guildID, conn := range conns {
		if _, err := b.recorder.Stop(guildID); err != nil && !errors.Is(err, record.ErrNoActiveRecording) {
			b.logger.Warn("failed to stop recording on shutdown",
				slog.String("guild_id", guildID),
				slog.String("error", err.Error()))
		}
		if err := conn.Disconnect(ctx); err != nil {
			b.logger.Warn("failed to disconnect on shutdown",
				slog.String("guild_id", guildID),
				slog.String("error", err.Error()))
		}
		if _, err := b.store.End(guildID); err != nil && !errors.Is(err, meeting.ErrNoActiveSession) {
			b.logger.Warn("failed to end session on shutdown",
				slog.String("guild_id", guildID),
				slog.String("error", err.Error()))
		}
	}
	return b.session.Close()
}

// Notify implements the supervisor's notifier over the text channel the
// meeting was started from.
func (b *Bot) Notify(_ context.Context, channelID, message string) error {
	_, err := b.session.ChannelMessageSend(channelID, message)
	return err
}

func (b *Bot) onReady(s *discordgo.Session, _ *discordgo.Ready) {
	commands := []*discordgo.ApplicationCommand{
		{
			Name:        cmdMeetingStart,
			Description: "Join your voice channel and start recording the meeting",
		},
		{
			Name:        cmdMeetingEnd,
			Description: "Stop recording and end the meeting",
		},
	}
	for _, cmd := range commands {
		created, err := s.ApplicationCommandCreate(s.State.User.ID, "", cmd)
		if err != nil {
			b.logger.Error("failed to register command",
				slog.String("command", cmd.Name),
				slog.String("error", err.Error()))
			continue
		}
		b.registered = append(b.registered, created)
	}
	b.logger.Info("gateway ready",
		slog.String("bot_user", s.State.User.Username),
		slog.Int("commands", len(b.registered)))
}

func (b *Bot) onInteraction(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	if ic.Type != discordgo.InteractionApplicationCommand {
		return
	}
	switch ic.ApplicationCommandData().Name {
	case cmdMeetingStart:
		b.handleMeetingStart(s, ic)
	case cmdMeetingEnd:
		b.handleMeetingEnd(s, ic)
	}
}

func (b *Bot) handleMeetingStart(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	guildID := ic.GuildID
	if guildID == "" {
		b.reply(s, ic, "This command only works inside a server.")
		return
	}

	voiceChannelID := b.invokerVoiceChannel(s, guildID, interactionUserID(ic))
	if voiceChannelID == "" {
		b.reply(s, ic, "❌ You need to be in a voice channel to start a meeting.")
		return
	}

	sess, err := b.store.Start(guildID, voiceChannelID, ic.ChannelID, interactionUserID(ic))
	if err != nil {
		if errors.Is(err, meeting.ErrDuplicateSession) {
			b.reply(s, ic, "❌ A meeting is already being recorded in this server.")
			return
		}
		b.logger.Error("failed to start session", slog.String("error", err.Error()))
		b.reply(s, ic, "❌ Could not start the meeting. Try again.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := b.dialer.Connect(ctx, guildID, voiceChannelID)
	if err != nil {
		b.rollbackStart(ctx, guildID, nil)
		b.logger.Error("failed to join voice channel",
			slog.String("guild_id", guildID),
			slog.String("error", err.Error()))
		b.reply(s, ic, "❌ Could not join your voice channel.")
		return
	}

	if err := b.recorder.Start(guildID, conn, sess.MeetingID); err != nil {
		b.rollbackStart(ctx, guildID, conn)
		b.logger.Error("failed to start recording",
			slog.String("guild_id", guildID),
			slog.String("error", err.Error()))
		b.reply(s, ic, "❌ Could not start recording.")
		return
	}

	b.mu.Lock()
	b.conns[guildID] = conn
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.ActiveMeetings.Inc()
		b.metrics.MeetingEvents.WithLabelValues("started").Inc()
	}
	b.publish(events.TypeMeetingStarted, sess, "")
	b.logger.Info("meeting started",
		slog.String("guild_id", guildID),
		slog.String("meeting_id", sess.MeetingID),
		slog.String("voice_channel", voiceChannelID))
	b.reply(s, ic, "🎙️ **Meeting recording started.** Use `/meeting-end` when you're done.")
}

func (b *Bot) handleMeetingEnd(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	guildID := ic.GuildID
	if guildID == "" {
		b.reply(s, ic, "This command only works inside a server.")
		return
	}
	if !b.store.IsActive(guildID) {
		b.reply(s, ic, "❌ No meeting is being recorded in this server.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	info, err := b.recorder.Stop(guildID)
	if err != nil && !errors.Is(err, record.ErrNoActiveRecording) {
		b.logger.Warn("failed to stop recording",
			slog.String("guild_id", guildID),
			slog.String("error", err.Error()))
	}

	b.mu.Lock()
	conn := b.conns[guildID]
	delete(b.conns, guildID)
	b.mu.Unlock()
	if conn != nil {
		if err := conn.Disconnect(ctx); err != nil {
			b.logger.Warn("failed to leave voice channel",
				slog.String("guild_id", guildID),
				slog.String("error", err.Error()))
		}
	}

	sess, err := b.store.End(guildID)
	if err != nil {
		b.logger.Error("failed to end session",
			slog.String("guild_id", guildID),
			slog.String("error", err.Error()))
		b.reply(s, ic, "❌ Could not end the meeting cleanly.")
		return
	}

	if err := b.archive.SaveMeeting(ctx, sess, info); err != nil {
		b.logger.Warn("failed to archive meeting",
			slog.String("meeting_id", sess.MeetingID),
			slog.String("error", err.Error()))
	}

	if b.metrics != nil {
		b.metrics.ActiveMeetings.Dec()
		b.metrics.MeetingEvents.WithLabelValues("ended").Inc()
	}
	b.publish(events.TypeMeetingEnded, sess, "")
	b.logger.Info("meeting ended",
		slog.String("guild_id", guildID),
		slog.String("meeting_id", sess.MeetingID),
		slog.Int("participants", len(info.Participants)))

	b.reply(s, ic, fmt.Sprintf(
		"✅ **Meeting ended.** Recorded %d participant(s) over %s.",
		len(info.Participants), sess.Duration().Round(time.Second)))

	if b.compressor != nil && info.OutputDir != "" {
		go b.compressRecordings(sess, info.OutputDir)
	}
}

func (b *Bot) compressRecordings(sess *meeting.Session, dir string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	compressed, failed := b.compressor.CompressDir(ctx, dir)
	b.logger.Info("recordings compressed",
		slog.String("meeting_id", sess.MeetingID),
		slog.Int("compressed", len(compressed)),
		slog.Int("failed", failed))
}

// onVoiceStateUpdate watches for the bot itself being dropped from a voice
// channel while a meeting is active. A deliberate leave clears the tracked
// connection first, so anything that reaches the supervisor was involuntary.
func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if s.State.User == nil || vs.UserID != s.State.User.ID {
		return
	}
	if vs.ChannelID != "" {
		return
	}
	guildID := vs.GuildID
	if b.supervisor == nil || !b.store.IsActive(guildID) {
		return
	}

	b.mu.Lock()
	_, tracked := b.conns[guildID]
	delete(b.conns, guildID)
	b.mu.Unlock()
	if !tracked {
		return
	}

	b.logger.Warn("dropped from voice channel with active meeting",
		slog.String("guild_id", guildID))
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		outcome := b.supervisor.HandleDisconnect(ctx, guildID)
		if outcome == reconnect.OutcomeRecovered {
			b.retrack(guildID)
		}
	}()
}

// retrack re-registers the supervisor's new connection so a later
// /meeting-end or shutdown can disconnect it.
func (b *Bot) retrack(guildID string) {
	conn := b.supervisor.Connection(guildID)
	if conn == nil {
		return
	}
	b.mu.Lock()
	b.conns[guildID] = conn
	b.mu.Unlock()
}

func (b *Bot) rollbackStart(ctx context.Context, guildID string, conn voicelink.Connection) {
	if conn != nil {
		if err := conn.Disconnect(ctx); err != nil {
			b.logger.Warn("rollback disconnect failed",
				slog.String("guild_id", guildID),
				slog.String("error", err.Error()))
		}
	}
	if _, err := b.store.End(guildID); err != nil {
		b.logger.Warn("rollback session end failed",
			slog.String("guild_id", guildID),
			slog.String("error", err.Error()))
	}
}

func (b *Bot) invokerVoiceChannel(s *discordgo.Session, guildID, userID string) string {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return ""
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}

func (b *Bot) publish(t events.Type, sess *meeting.Session, detail string) {
	if b.bus == nil {
		return
	}
	b.bus.Publish(events.Event{
		Type:      t,
		GuildID:   sess.GuildID,
		MeetingID: sess.MeetingID,
		Detail:    detail,
	})
}

func (b *Bot) reply(s *discordgo.Session, ic *discordgo.InteractionCreate, message string) {
	err := s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: message},
	})
	if err != nil {
		b.logger.Warn("failed to respond to interaction", slog.String("error", err.Error()))
	}
}

func interactionUserID(ic *discordgo.InteractionCreate) string {
	if ic.Member != nil && ic.Member.User != nil {
		return ic.Member.User.ID
	}
	if ic.User != nil {
		return ic.User.ID
	}
	return ""
}
