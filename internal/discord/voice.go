package discord

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"

	"github.com/ent0n29/meetscribe/internal/audio"
	"github.com/ent0n29/meetscribe/internal/voicelink"
)

const opusFrameSize = 960 // samples per channel in a 20ms frame at 48kHz

// Dialer joins guild voice channels through a live gateway session. The
// bot joins muted so participants never hear it, and undeafened so it
// receives audio.
type Dialer struct {
	session *discordgo.Session
	logger  *slog.Logger
}

func NewDialer(session *discordgo.Session, logger *slog.Logger) *Dialer {
	return &Dialer{session: session, logger: logger}
}

func (d *Dialer) Connect(ctx context.Context, guildID, channelID string) (voicelink.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vc, err := d.session.ChannelVoiceJoin(guildID, channelID, true, false)
	if err != nil {
		return nil, fmt.Errorf("join voice channel %s: %w", channelID, err)
	}
	return newVoiceConn(d.session, vc, guildID, d.logger), nil
}

// voiceConn adapts a gateway voice connection to the capture interfaces.
// Incoming opus packets carry only an SSRC; speaking updates provide the
// SSRC to user mapping, so frames for an SSRC seen before its speaking
// update are dropped.
type voiceConn struct {
	session *discordgo.Session
	vc      *discordgo.VoiceConnection
	guildID string
	logger  *slog.Logger

	mu       sync.Mutex
	users    map[uint32]string // SSRC -> user ID
	names    map[string]string // user ID -> display name
	decoders map[uint32]*gopus.Decoder
	quit     chan struct{}
	capture  sync.WaitGroup
}

func newVoiceConn(session *discordgo.Session, vc *discordgo.VoiceConnection, guildID string, logger *slog.Logger) *voiceConn {
	c := &voiceConn{
		session:  session,
		vc:       vc,
		guildID:  guildID,
		logger:   logger,
		users:    make(map[uint32]string),
		names:    make(map[string]string),
		decoders: make(map[uint32]*gopus.Decoder),
	}
	vc.AddHandler(c.onSpeakingUpdate)
	return c
}

func (c *voiceConn) onSpeakingUpdate(_ *discordgo.VoiceConnection, vs *discordgo.VoiceSpeakingUpdate) {
	c.mu.Lock()
	c.users[uint32(vs.SSRC)] = vs.UserID
	c.mu.Unlock()
}

func (c *voiceConn) StartCapture(handler voicelink.FrameHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.quit != nil {
		return fmt.Errorf("capture already running for guild %s", c.guildID)
	}
	quit := make(chan struct{})
	c.quit = quit
	c.capture.Add(1)
	go c.captureLoop(handler, quit)
	return nil
}

func (c *voiceConn) StopCapture() {
	c.mu.Lock()
	quit := c.quit
	c.quit = nil
	c.mu.Unlock()
	if quit == nil {
		return
	}
	close(quit)
	c.capture.Wait()
}

func (c *voiceConn) captureLoop(handler voicelink.FrameHandler, quit chan struct{}) {
	defer c.capture.Done()
	for {
		select {
		case <-quit:
			return
		case packet, ok := <-c.vc.OpusRecv:
			if !ok {
				return
			}
			frame, ok := c.decode(packet)
			if !ok {
				continue
			}
			handler(frame)
		}
	}
}

func (c *voiceConn) decode(packet *discordgo.Packet) (voicelink.Frame, bool) {
	c.mu.Lock()
	userID, known := c.users[packet.SSRC]
	dec := c.decoders[packet.SSRC]
	c.mu.Unlock()

	if !known {
		return voicelink.Frame{}, false
	}

	if dec == nil {
		var err error
		dec, err = gopus.NewDecoder(audio.DiscordVoice.SampleRate, audio.DiscordVoice.Channels)
		if err != nil {
			c.logger.Error("failed to create opus decoder",
				slog.String("user_id", userID),
				slog.String("error", err.Error()))
			return voicelink.Frame{}, false
		}
		c.mu.Lock()
		c.decoders[packet.SSRC] = dec
		c.mu.Unlock()
	}

	pcm, err := dec.Decode(packet.Opus, opusFrameSize, false)
	if err != nil {
		c.logger.Warn("opus decode failed, dropping packet",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return voicelink.Frame{}, false
	}

	return voicelink.Frame{
		ParticipantID: userID,
		DisplayName:   c.displayName(userID),
		PCM:           pcmBytes(pcm),
	}, true
}

// displayName resolves and caches a readable name for the user, preferring
// the guild nickname. Resolution failures fall back to the bare user ID.
func (c *voiceConn) displayName(userID string) string {
	c.mu.Lock()
	name, ok := c.names[userID]
	c.mu.Unlock()
	if ok {
		return name
	}

	name = userID
	if member, err := c.session.State.Member(c.guildID, userID); err == nil {
		if member.Nick != "" {
			name = member.Nick
		} else if member.User != nil {
			name = member.User.Username
		}
	} else if user, err := c.session.User(userID); err == nil {
		name = user.Username
	}

	c.mu.Lock()
	c.names[userID] = name
	c.mu.Unlock()
	return name
}

func (c *voiceConn) Disconnect(_ context.Context) error {
	c.StopCapture()
	return c.vc.Disconnect()
}

// ChannelID reports the voice channel this connection is bound to.
func (c *voiceConn) ChannelID() string {
	return c.vc.ChannelID
}

func pcmBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
