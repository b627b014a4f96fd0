package bus

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"tve-auth/internal/platform/metrics"
)

// MemoryBus is the in-process Bus. Handlers run synchronously on the
// publishing goroutine, so a single publisher observes strict ordering.
// Handlers may publish or subscribe re-entrantly.
type MemoryBus struct {
	mu      sync.Mutex
	subs    map[string][]*subscription
	nextID  uint64
	metrics *metrics.Metrics
}

// Option configures a MemoryBus.
type Option func(*MemoryBus)

// WithMetrics records published and dropped events in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *MemoryBus) { b.metrics = m }
}

// NewMemoryBus returns an empty bus.
func NewMemoryBus(opts ...Option) *MemoryBus {
	b := &MemoryBus{subs: make(map[string][]*subscription)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type subscription struct {
	b      *MemoryBus
	id     uint64
	topic  string
	h      Handler
	once   bool
	closed atomic.Bool
}

func (s *subscription) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.b.remove(s)
	return nil
}

// Publish implements Bus.Publish.
func (b *MemoryBus) Publish(topic string, props Properties) Event {
	ev := Event{ID: uuid.NewString(), Topic: topic, Properties: props.clone()}

	b.mu.Lock()
	lst := b.subs[topic]
	targets := make([]*subscription, 0, len(lst))
	keep := lst[:0]
	for _, s := range lst {
		if s.once {
			// Claim the one-shot under the lock so concurrent publishers
			// cannot both fire it.
			if !s.closed.Swap(true) {
				targets = append(targets, s)
			}
			continue
		}
		targets = append(targets, s)
		keep = append(keep, s)
	}
	b.setLocked(topic, keep)
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.IncEventsPublished(topic)
	}
	for _, s := range targets {
		if !s.once && s.closed.Load() {
			continue
		}
		s.h(ev)
	}
	return ev
}

// On implements Bus.On.
func (b *MemoryBus) On(topic string, h Handler) Subscription {
	return b.add(topic, h, false)
}

// Once implements Bus.Once.
func (b *MemoryBus) Once(topic string, h Handler) Subscription {
	return b.add(topic, h, true)
}

// SubscriberCount returns the number of live subscriptions on topic.
func (b *MemoryBus) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

func (b *MemoryBus) add(topic string, h Handler, once bool) *subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := &subscription{b: b, id: b.nextID, topic: topic, h: h, once: once}
	b.subs[topic] = append(b.subs[topic], s)
	return s
}

func (b *MemoryBus) remove(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lst := b.subs[s.topic]
	out := make([]*subscription, 0, len(lst))
	for _, c := range lst {
		if c.id != s.id {
			out = append(out, c)
		}
	}
	b.setLocked(s.topic, out)
}

// setLocked stores lst for topic. Caller must hold b.mu.
func (b *MemoryBus) setLocked(topic string, lst []*subscription) {
	if len(lst) == 0 {
		delete(b.subs, topic)
		return
	}
	b.subs[topic] = lst
}

// Ensure compliance
var _ Bus = (*MemoryBus)(nil)
