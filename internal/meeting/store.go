package meeting

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store tracks the active meeting session for each guild. At most one
// session with StatusRecording exists per guild at any time.
type Store struct {
	mu     sync.RWMutex
	active map[string]*Session
}

func NewStore() *Store {
	return &Store{active: make(map[string]*Session)}
}

// Start registers a new recording session for the guild. It fails with
// ErrDuplicateSession when one is already recording.
func (st *Store) Start(guildID, voiceChannelID, textChannelID, initiatorID string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, exists := st.active[guildID]; exists {
		return nil, ErrDuplicateSession
	}

	s := &Session{
		MeetingID:      uuid.NewString(),
		GuildID:        guildID,
		VoiceChannelID: voiceChannelID,
		TextChannelID:  textChannelID,
		InitiatorID:    initiatorID,
		Status:         StatusRecording,
		StartedAt:      time.Now().UTC(),
	}
	st.active[guildID] = s
	return clone(s), nil
}

// End transitions the guild's active session to StatusEnded and removes it
// from the active index. The finalized record is returned for reporting;
// ended sessions are never mutated again.
func (st *Store) End(guildID string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, exists := st.active[guildID]
	if !exists {
		return nil, ErrNoActiveSession
	}

	now := time.Now().UTC()
	s.Status = StatusEnded
	s.EndedAt = &now
	delete(st.active, guildID)
	return clone(s), nil
}

// IsActive reports whether a recording session exists for the guild.
func (st *Store) IsActive(guildID string) bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	_, exists := st.active[guildID]
	return exists
}

// Get returns a copy of the guild's active session, if any.
func (st *Store) Get(guildID string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, exists := st.active[guildID]
	if !exists {
		return nil, false
	}
	return clone(s), true
}

func (st *Store) ActiveCount() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.active)
}

// Snapshot returns copies of every active session, for the ops surface.
func (st *Store) Snapshot() []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*Session, 0, len(st.active))
	for _, s := range st.active {
		out = append(out, clone(s))
	}
	return out
}

func clone(s *Session) *Session {
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}
