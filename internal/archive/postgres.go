package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/meetscribe/internal/meeting"
	"github.com/ent0n29/meetscribe/internal/record"
)

// PostgresStore archives ended meetings in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meetings (
			meeting_id TEXT PRIMARY KEY,
			guild_id TEXT NOT NULL,
			voice_channel_id TEXT NOT NULL,
			text_channel_id TEXT NOT NULL,
			initiator_id TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL,
			duration_seconds DOUBLE PRECISION NOT NULL,
			participant_count INTEGER NOT NULL DEFAULT 0,
			output_dir TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_meetings_guild_ended ON meetings (guild_id, ended_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveMeeting(ctx context.Context, sess *meeting.Session, info record.Info) error {
	rec := newRecord(sess, info)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO meetings (meeting_id, guild_id, voice_channel_id, text_channel_id, initiator_id,
			started_at, ended_at, duration_seconds, participant_count, output_dir)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (meeting_id) DO NOTHING`,
		rec.MeetingID,
		rec.GuildID,
		rec.VoiceChannelID,
		rec.TextChannelID,
		rec.InitiatorID,
		rec.StartedAt,
		rec.EndedAt,
		rec.DurationSeconds,
		rec.ParticipantCount,
		rec.OutputDir,
	)
	if err != nil {
		return fmt.Errorf("save meeting: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentMeetings(ctx context.Context, limit int) ([]MeetingRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx,
		`SELECT meeting_id, guild_id, voice_channel_id, text_channel_id, initiator_id,
			started_at, ended_at, duration_seconds, participant_count, output_dir
		 FROM meetings ORDER BY ended_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent meetings: %w", err)
	}
	defer rows.Close()

	items := make([]MeetingRecord, 0, limit)
	for rows.Next() {
		var r MeetingRecord
		if err := rows.Scan(&r.MeetingID, &r.GuildID, &r.VoiceChannelID, &r.TextChannelID, &r.InitiatorID,
			&r.StartedAt, &r.EndedAt, &r.DurationSeconds, &r.ParticipantCount, &r.OutputDir); err != nil {
			return nil, fmt.Errorf("scan meeting row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meeting rows: %w", err)
	}

	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
