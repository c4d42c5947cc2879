package scheduler

import (
	"sync"
	"time"
)

// Frame is one progress update for a scenario. Terminal frames carry the
// final status and, on failure, the error text.
type Frame struct {
	ScenarioID     string    `json:"scenario_id"`
	Status         Status    `json:"status"`
	Stage          Stage     `json:"stage"`
	Generation     int       `json:"generation"`
	MaxGenerations int       `json:"max_generations"`
	BestComposite  float64   `json:"best_composite"`
	Hypervolume    float64   `json:"hypervolume"`
	Diversity      float64   `json:"diversity"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	ETASeconds     float64   `json:"eta_seconds,omitempty"`
	Error          string    `json:"error,omitempty"`
	Terminal       bool      `json:"terminal"`
	At             time.Time `json:"at"`
}

// broadcaster fans frames out to subscribers with coalescing: each subscriber
// channel holds at most one pending frame, and a newer frame replaces an
// unread one. A slow subscriber therefore sees the latest state, never a
// backlog. The terminal frame is always delivered.
type broadcaster struct {
	mu     sync.Mutex
	last   *Frame
	subs   map[chan Frame]struct{}
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[chan Frame]struct{})}
}

// publish delivers f to every subscriber, evicting a stale pending frame if
// the subscriber has not caught up. After a terminal frame all channels close.
func (b *broadcaster) publish(f Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.last = &f
	for ch := range b.subs {
		select {
		case ch <- f:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- f
		}
	}
	if f.Terminal {
		for ch := range b.subs {
			close(ch)
		}
		b.subs = nil
		b.closed = true
	}
}

// subscribe registers a listener. The latest frame, if any, is delivered
// immediately so late subscribers see current state without waiting a
// generation. The returned cancel is idempotent.
func (b *broadcaster) subscribe() (<-chan Frame, func()) {
	ch := make(chan Frame, 1)

	b.mu.Lock()
	if b.closed {
		if b.last != nil {
			ch <- *b.last
		}
		close(ch)
		b.mu.Unlock()
		return ch, func() {}
	}
	if b.last != nil {
		ch <- *b.last
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}
