package archive

import (
	"context"
	"time"

	"github.com/ent0n29/meetscribe/internal/meeting"
	"github.com/ent0n29/meetscribe/internal/record"
)

// MeetingRecord is the durable row kept for every ended meeting.
type MeetingRecord struct {
	MeetingID        string    `json:"meeting_id"`
	GuildID          string    `json:"guild_id"`
	VoiceChannelID   string    `json:"voice_channel_id"`
	TextChannelID    string    `json:"text_channel_id"`
	InitiatorID      string    `json:"initiator_id"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
	DurationSeconds  float64   `json:"duration_seconds"`
	ParticipantCount int       `json:"participant_count"`
	OutputDir        string    `json:"output_dir"`
}

// Store archives ended meetings for later reporting.
type Store interface {
	SaveMeeting(ctx context.Context, sess *meeting.Session, info record.Info) error
	RecentMeetings(ctx context.Context, limit int) ([]MeetingRecord, error)
	Close() error
}

func newRecord(sess *meeting.Session, info record.Info) MeetingRecord {
	rec := MeetingRecord{
		MeetingID:        sess.MeetingID,
		GuildID:          sess.GuildID,
		VoiceChannelID:   sess.VoiceChannelID,
		TextChannelID:    sess.TextChannelID,
		InitiatorID:      sess.InitiatorID,
		StartedAt:        sess.StartedAt,
		DurationSeconds:  sess.Duration().Seconds(),
		ParticipantCount: len(info.Participants),
		OutputDir:        info.OutputDir,
	}
	if sess.EndedAt != nil {
		rec.EndedAt = *sess.EndedAt
	}
	return rec
}
