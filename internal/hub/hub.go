// Package hub is the detection-service stand-in the agent publishes to.
//
// It keeps an in-memory queue per topic, evaluates incoming metrics reports
// and publishes the verdicts back onto the matching accepted/rejected
// topics, where agents pick them up by long-polling.
package hub

import (
	"context"
	"sync"
	"time"
)

// queueDepth bounds each topic queue. A slow or absent consumer loses the
// oldest messages first.
const queueDepth = 16

// Broker routes payloads between topics and long-polling consumers.
type Broker struct {
	mu     sync.Mutex
	queues map[string]chan []byte
}

func NewBroker() *Broker {
	return &Broker{queues: make(map[string]chan []byte)}
}

func (b *Broker) queue(topic string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[topic]
	if !ok {
		q = make(chan []byte, queueDepth)
		b.queues[topic] = q
	}
	return q
}

// Publish enqueues payload on topic without blocking. When the queue is
// full the oldest message is dropped to make room.
func (b *Broker) Publish(topic string, payload []byte) {
	q := b.queue(topic)
	for {
		select {
		case q <- payload:
			return
		default:
		}
		select {
		case <-q:
		default:
		}
	}
}

// Poll dequeues one message from topic, waiting up to wait for one to
// arrive. It returns a nil payload when the wait expires without a message.
func (b *Broker) Poll(ctx context.Context, topic string, wait time.Duration) ([]byte, error) {
	q := b.queue(topic)

	select {
	case payload := <-q:
		return payload, nil
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case payload := <-q:
		return payload, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
