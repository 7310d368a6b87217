// Package transport defines the publish/subscribe contract between the
// agent and the detection service, and the adapters that implement it.
//
// The engine never touches a connection directly: it dials through a Dialer
// at Start, publishes encoded reports to the metrics topic, and receives
// raw response bytes through topic subscriptions. Everything about the
// underlying protocol (TLS material, retries, encodings on the wire) stays
// inside the adapter.
package transport

import (
	"context"
	"fmt"
)

// Credentials is the opaque credential bundle captured from StartConfig and
// handed to the Dialer. The engine never interprets it.
type Credentials struct {
	Username string
	Password string

	// TLS material file paths, passed through to the adapter's client.
	TLSCertFile string
	TLSKeyFile  string
	CACertFile  string

	// SigningKey is the shared HMAC key for report signing; empty disables
	// signing.
	SigningKey string
}

// Handler receives the raw payload of one inbound message. The payload is
// only valid for the duration of the call.
type Handler func(payload []byte)

// Transport is an established pub/sub session.
type Transport interface {
	// Publish sends payload to topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers h for messages arriving on topic.
	Subscribe(ctx context.Context, topic string, h Handler) error

	// Close tears the session down. Safe to call once per session.
	Close() error
}

// Dialer establishes a Transport session against an endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint, clientID string, creds Credentials) (Transport, error)
}

// MetricsTopic is the topic the agent publishes reports to. The format
// segment tells the service which codec produced the payload.
func MetricsTopic(thingName, format string) string {
	return fmt.Sprintf("things/%s/defender/metrics/%s", thingName, format)
}

// AcceptedTopic carries positive evaluations of published reports.
func AcceptedTopic(thingName, format string) string {
	return MetricsTopic(thingName, format) + "/accepted"
}

// RejectedTopic carries negative evaluations of published reports.
func RejectedTopic(thingName, format string) string {
	return MetricsTopic(thingName, format) + "/rejected"
}
