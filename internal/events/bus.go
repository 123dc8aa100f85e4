package events

import (
	"sync"
	"time"
)

type Type string

const (
	TypeMeetingStarted Type = "meeting_started"
	TypeMeetingEnded   Type = "meeting_ended"
	TypeReconnecting   Type = "reconnecting"
	TypeRecovered      Type = "recovered"
	TypeExhausted      Type = "exhausted"
)

// Event is one meeting lifecycle notification for the ops surface.
type Event struct {
	Type      Type      `json:"type"`
	GuildID   string    `json:"guild_id"`
	MeetingID string    `json:"meeting_id"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Bus is a small fan-out of lifecycle events. Slow subscribers drop events
// rather than block the control path.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Publish delivers the event to every subscriber, stamping the time if unset.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a buffered event channel and a cancel func that closes it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, 64)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// SubscriberCount reports the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
