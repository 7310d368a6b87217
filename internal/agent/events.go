package agent

import (
	"github.com/rs/zerolog/log"

	"github.com/devicewatch-io/defender-agent/internal/audit"
)

// EventType classifies the asynchronous outcomes surfaced through the
// callback. Configuration errors are never events; they are returned
// synchronously from the API.
type EventType int

const (
	// EventMetricsAccepted: the service accepted the published report.
	EventMetricsAccepted EventType = iota

	// EventMetricsRejected: the service declined the report. Check
	// Event.Throttled to distinguish rate limiting from a bad report.
	EventMetricsRejected

	// EventNetworkConnectionFailed: the transport could not be
	// established; the agent returned to the stopped state.
	EventNetworkConnectionFailed

	// EventPublishFailed: a report could not be sent this cycle; the
	// agent keeps running and retries next period.
	EventPublishFailed

	// EventInvalidResponse: the service answered with bytes that do not
	// match the response protocol.
	EventInvalidResponse
)

func (t EventType) String() string {
	switch t {
	case EventMetricsAccepted:
		return "metrics_accepted"
	case EventMetricsRejected:
		return "metrics_rejected"
	case EventNetworkConnectionFailed:
		return "network_connection_failed"
	case EventPublishFailed:
		return "publish_failed"
	case EventInvalidResponse:
		return "invalid_response"
	default:
		return "unknown"
	}
}

// Event is delivered to the registered callback.
//
// Payload and Report point into buffers owned by the reporting cycle and
// are only valid for the duration of the callback; a host retaining either
// must copy. The callback must not block indefinitely, and calling
// Start/Stop from inside it is undefined behavior.
type Event struct {
	Type EventType

	// Throttled marks a rejection caused by excessive publish frequency.
	// The agent backs off on its own; the host does not need to react.
	Throttled bool

	// Payload is the raw inbound response, when one exists.
	Payload []byte

	// Report is the encoded report published this cycle, when one exists.
	Report []byte
}

// Callback receives agent events synchronously on the reporting goroutine.
type Callback func(Event)

// dispatch records the event with the audit observers and invokes the host
// callback. Without a callback the event is dropped after auditing.
func (a *Agent) dispatch(cfg StartConfig, event Event) {
	log.Debug().
		Str("event", event.Type.String()).
		Bool("throttled", event.Throttled).
		Str("thing", cfg.ThingName).
		Msg("dispatching agent event")

	if a.audit != nil {
		a.audit.NotifyAll(audit.NewEvent(event.Type.String(), cfg.ThingName, event.Throttled))
	}

	if cfg.Callback == nil {
		return
	}
	cfg.Callback(event)
}
