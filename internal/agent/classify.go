package agent

import (
	"errors"

	"github.com/devicewatch-io/defender-agent/internal/codec"
)

// Response protocol constants of the detection service.
const (
	statusAccepted    = "ACCEPTED"
	errorCodeThrottle = "Throttled"
)

// responseChannel identifies which subscription delivered a payload.
type responseChannel int

const (
	channelAccepted responseChannel = iota
	channelRejected
)

type classification struct {
	event     EventType
	throttled bool
}

// classifyResponse turns inbound response bytes into an event
// classification. Decoding is defensive: a malformed payload classifies as
// an invalid response, absent optional fields never fail.
func classifyResponse(c codec.Codec, channel responseChannel, payload []byte) classification {
	doc, err := codec.DecodeMap(c, payload)
	if err != nil {
		return classification{event: EventInvalidResponse}
	}

	switch channel {
	case channelAccepted:
		status, err := codec.LookupString(doc, "status")
		if err != nil || status != statusAccepted {
			// A message on the accepted channel must carry the accepted
			// status; anything else is a protocol violation.
			return classification{event: EventInvalidResponse}
		}
		return classification{event: EventMetricsAccepted}

	case channelRejected:
		code, err := codec.LookupString(doc, "statusDetails", "ErrorCode")
		if err != nil && !errors.Is(err, codec.ErrNotFound) {
			return classification{event: EventInvalidResponse}
		}
		return classification{
			event:     EventMetricsRejected,
			throttled: code == errorCodeThrottle,
		}

	default:
		return classification{event: EventInvalidResponse}
	}
}
