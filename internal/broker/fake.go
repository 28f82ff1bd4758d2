package broker

import "sync"

// Fake is an in-memory Publisher/Subscriber used by tests that exercise
// reconciler and listener logic without a live MQTT broker. It records
// every publish and lets the test deliver inbound messages directly by
// calling Deliver.
type Fake struct {
	mu        sync.Mutex
	Published []Published
	handlers  map[string]func(Message)
}

// Published records one Publish call.
type Published struct {
	Topic   string
	Payload string
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{handlers: make(map[string]func(Message))}
}

// Publish records the call.
func (f *Fake) Publish(topic, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Published = append(f.Published, Published{Topic: topic, Payload: payload})
	return nil
}

// Subscribe records the handler so Deliver can invoke it later.
func (f *Fake) Subscribe(topic string, handler func(Message)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

// Unsubscribe removes a handler.
func (f *Fake) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

// Deliver invokes the handler registered for topic, if any, simulating an
// inbound publish from the broker.
func (f *Fake) Deliver(topic string, payload []byte) {
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	if h != nil {
		h(Message{Topic: topic, Payload: payload})
	}
}

// LastPublished returns the most recent Published record for topic, or
// false if nothing was ever published to it.
func (f *Fake) LastPublished(topic string) (Published, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.Published) - 1; i >= 0; i-- {
		if f.Published[i].Topic == topic {
			return f.Published[i], true
		}
	}
	return Published{}, false
}
