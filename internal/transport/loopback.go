package transport

import (
	"context"
	"sync"
)

// PublishedMessage is one message recorded by a Loopback session.
type PublishedMessage struct {
	Topic   string
	Payload []byte
}

// Loopback is an in-memory Dialer and Transport used by engine tests and
// the agent's offline demo mode. Tests inspect what was published and
// inject inbound messages to drive the response path.
type Loopback struct {
	// DialErr, when set, makes Dial fail; simulates an unreachable
	// endpoint.
	DialErr error

	// PublishErr, when set, makes every Publish fail; simulates a dropped
	// connection mid-session.
	PublishErr error

	// OnPublish, when set, is invoked after each successful publish.
	// Tests use it to respond like the detection service would.
	OnPublish func(topic string, payload []byte)

	mu        sync.Mutex
	published []PublishedMessage
	handlers  map[string]Handler
	closed    bool
}

// NewLoopback returns an empty loopback bus.
func NewLoopback() *Loopback {
	return &Loopback{handlers: make(map[string]Handler)}
}

func (l *Loopback) Dial(_ context.Context, _, _ string, _ Credentials) (Transport, error) {
	if l.DialErr != nil {
		return nil, l.DialErr
	}

	l.mu.Lock()
	l.closed = false
	l.mu.Unlock()

	return l, nil
}

func (l *Loopback) Publish(_ context.Context, topic string, payload []byte) error {
	if l.PublishErr != nil {
		return l.PublishErr
	}

	stored := make([]byte, len(payload))
	copy(stored, payload)

	l.mu.Lock()
	l.published = append(l.published, PublishedMessage{Topic: topic, Payload: stored})
	hook := l.OnPublish
	l.mu.Unlock()

	if hook != nil {
		hook(topic, stored)
	}
	return nil
}

func (l *Loopback) Subscribe(_ context.Context, topic string, h Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[topic] = h
	return nil
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.handlers = make(map[string]Handler)
	return nil
}

// Inject delivers payload to the handler subscribed on topic, if any.
func (l *Loopback) Inject(topic string, payload []byte) {
	l.mu.Lock()
	h := l.handlers[topic]
	l.mu.Unlock()

	if h != nil {
		h(payload)
	}
}

// Published returns a snapshot of every message published so far.
func (l *Loopback) Published() []PublishedMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]PublishedMessage, len(l.published))
	copy(out, l.published)
	return out
}

// Subscribed reports whether a handler is registered on topic.
func (l *Loopback) Subscribed(topic string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.handlers[topic]
	return ok
}

// Closed reports whether the session has been closed.
func (l *Loopback) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
