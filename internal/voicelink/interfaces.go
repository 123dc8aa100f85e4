package voicelink

import "context"

// Frame is one raw audio packet attributed to a single participant.
type Frame struct {
	ParticipantID string
	DisplayName   string
	PCM           []byte
}

// FrameHandler receives frames on the transport's delivery goroutine.
type FrameHandler func(Frame)

// Connection is an established voice-channel connection.
type Connection interface {
	Disconnect(ctx context.Context) error
}

// FrameCapturer is the optional capture capability of a Connection. A
// transport that cannot deliver per-participant frames simply does not
// implement it, and recording start fails with ErrUnsupported.
type FrameCapturer interface {
	StartCapture(handler FrameHandler) error
	StopCapture()
}

// Dialer joins voice channels on behalf of the bot.
type Dialer interface {
	Connect(ctx context.Context, guildID, channelID string) (Connection, error)
}
