package daemon

import (
	"sync"
	"time"

	"github.com/justestif/go-music-agent/internal/music"
)

// EventKind names what an Event reports.
type EventKind string

const (
	EventState    EventKind = "state"
	EventPoll     EventKind = "poll"
	EventAnalysis EventKind = "analysis"
	EventCommand  EventKind = "command"
)

// Event is published to subscribers as the daemon works.
type Event struct {
	Time    time.Time  `json:"time"`
	Kind    EventKind  `json:"kind"`
	Outcome string     `json:"outcome,omitempty"` // poll outcome, new state or result kind
	Track   *TrackView `json:"track,omitempty"`
	Message string     `json:"message,omitempty"`
}

// subscriberBuffer is how many events a slow subscriber may lag behind
// before events are dropped for it.
const subscriberBuffer = 32

// broadcaster fans events out to subscribers without ever blocking the
// publisher.
type broadcaster struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[chan Event]struct{})}
}

func (b *broadcaster) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *broadcaster) publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func trackEvent(kind EventKind, outcome string, t *music.TrackReference) Event {
	e := Event{Kind: kind, Outcome: outcome}
	if t != nil {
		v := ViewTrack(*t)
		e.Track = &v
	}
	return e
}
