package meeting

import (
	"errors"
	"time"
)

type Status string

const (
	StatusRecording Status = "recording"
	StatusEnded     Status = "ended"
)

var (
	ErrDuplicateSession = errors.New("a meeting is already in progress for this guild")
	ErrNoActiveSession  = errors.New("no active meeting for this guild")
)

// Session is one recording engagement for one guild, from join to leave.
type Session struct {
	MeetingID      string     `json:"meeting_id"`
	GuildID        string     `json:"guild_id"`
	VoiceChannelID string     `json:"voice_channel_id"`
	TextChannelID  string     `json:"text_channel_id"`
	InitiatorID    string     `json:"initiator_id"`
	Status         Status     `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

// Duration reports elapsed recording time. For a session still recording it
// is measured against the current clock.
func (s *Session) Duration() time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return time.Since(s.StartedAt)
}
