// Package bus provides the ordered, named-topic event bus the auth flows
// publish on. Delivery is a broadcast to the subscribers present at publish
// time; nothing is queued for late subscribers.
package bus

// Properties is the payload of an event. Keys are stable per topic.
type Properties map[string]any

// Event is an immutable notification published on a topic.
type Event struct {
	ID         string     `json:"id"`
	Topic      string     `json:"topic"`
	Properties Properties `json:"properties,omitempty"`
}

// Get returns the raw property value for key.
func (e Event) Get(key string) any {
	return e.Properties[key]
}

// String returns the property as a string, or "" if absent or not a string.
func (e Event) String(key string) string {
	s, _ := e.Properties[key].(string)
	return s
}

// Bool returns the property as a bool, or false if absent or not a bool.
func (e Event) Bool(key string) bool {
	b, _ := e.Properties[key].(bool)
	return b
}

// Handler receives events for a subscription.
type Handler func(Event)

// Subscription is a registration that can be cancelled.
type Subscription interface {
	// Close deregisters the subscription. It is safe to call more than once.
	Close() error
}

// Bus is an ordered publish/subscribe mechanism.
type Bus interface {
	// Publish delivers an event to every current subscriber of topic, in
	// subscription order, before returning. The properties are copied.
	Publish(topic string, props Properties) Event

	// On registers a persistent handler for topic.
	On(topic string, h Handler) Subscription

	// Once registers a handler that fires for the next event on topic and is
	// then deregistered.
	Once(topic string, h Handler) Subscription
}

func (p Properties) clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
