package bus

import "sync"

// Stream is a channel-backed subscription over several topics, used by
// transports that forward events to remote consumers. A full buffer drops
// the event for this stream only; publishers never block.
type Stream struct {
	mu     sync.Mutex
	ch     chan Event
	subs   []Subscription
	closed bool
	onDrop func(topic string)
}

// NewStream subscribes to topics on b with the given buffer size.
func NewStream(b Bus, buffer int, topics ...string) *Stream {
	if buffer <= 0 {
		buffer = 1
	}
	s := &Stream{ch: make(chan Event, buffer)}
	if mb, ok := b.(*MemoryBus); ok && mb.metrics != nil {
		s.onDrop = mb.metrics.IncStreamDrops
	}
	for _, topic := range topics {
		s.subs = append(s.subs, b.On(topic, s.deliver))
	}
	return s
}

// C returns the event channel. It is closed by Close.
func (s *Stream) C() <-chan Event {
	return s.ch
}

func (s *Stream) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	default:
		if s.onDrop != nil {
			s.onDrop(ev.Topic)
		}
	}
}

// Close deregisters every topic and closes the channel.
func (s *Stream) Close() error {
	for _, sub := range s.subs {
		_ = sub.Close()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}
