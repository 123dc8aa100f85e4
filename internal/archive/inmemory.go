package archive

import (
	"context"
	"sync"

	"github.com/ent0n29/meetscribe/internal/meeting"
	"github.com/ent0n29/meetscribe/internal/record"
)

// InMemoryStore keeps archived meetings in process memory. It backs local
// runs and tests where no DATABASE_URL is configured.
type InMemoryStore struct {
	mu      sync.Mutex
	records []MeetingRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) SaveMeeting(_ context.Context, sess *meeting.Session, info record.Info) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, newRecord(sess, info))
	return nil
}

func (s *InMemoryStore) RecentMeetings(_ context.Context, limit int) ([]MeetingRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.records)
	if limit > n {
		limit = n
	}
	// Most recent first.
	out := make([]MeetingRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
