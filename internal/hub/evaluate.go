package hub

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/devicewatch-io/defender-agent/internal/codec"
	"github.com/devicewatch-io/defender-agent/internal/transport"
)

// Error codes reported through statusDetails on rejected reports.
const (
	ErrorCodeThrottled     = "Throttled"
	ErrorCodeInvalidReport = "InvalidReport"
)

// Evaluator validates published reports and publishes a verdict for each
// one to the thing's accepted or rejected topic.
type Evaluator struct {
	broker      *Broker
	minInterval time.Duration
	now         func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewEvaluator builds an Evaluator that throttles any thing publishing more
// often than minInterval. A zero minInterval disables throttling.
func NewEvaluator(broker *Broker, minInterval time.Duration) *Evaluator {
	return &Evaluator{
		broker:      broker,
		minInterval: minInterval,
		now:         time.Now,
		lastSeen:    make(map[string]time.Time),
	}
}

// Evaluate decodes one report published by thingName in the given format
// and publishes the verdict. Reports in an unknown format are dropped
// because no codec can encode a response the agent would understand.
func (e *Evaluator) Evaluate(thingName, format string, payload []byte) {
	c, err := codec.ByFormat(format)
	if err != nil {
		log.Warn().Str("thing", thingName).Str("format", format).Msg("report in unknown format dropped")
		return
	}

	reportID, err := e.validate(c, payload)
	if err != nil {
		log.Info().Err(err).Str("thing", thingName).Msg("report rejected")
		e.reject(c, thingName, ErrorCodeInvalidReport, err.Error())
		return
	}

	if !e.admit(thingName) {
		log.Info().Str("thing", thingName).Int64("report_id", reportID).Msg("report throttled")
		e.reject(c, thingName, ErrorCodeThrottled, "publish interval below minimum")
		return
	}

	e.accept(c, thingName, reportID)
}

// validate checks the report envelope and returns its report ID.
func (e *Evaluator) validate(c codec.Codec, payload []byte) (int64, error) {
	doc, err := codec.DecodeMap(c, payload)
	if err != nil {
		return 0, err
	}

	reportID, err := codec.LookupInt(doc, "header", "report_id")
	if err != nil {
		return 0, err
	}
	if _, err := codec.LookupString(doc, "header", "version"); err != nil {
		return 0, err
	}
	if _, err := codec.Lookup(doc, "metrics"); err != nil {
		return 0, err
	}
	return reportID, nil
}

// admit records the publish time for thingName and reports whether the
// report arrived no sooner than minInterval after the last admitted one.
func (e *Evaluator) admit(thingName string) bool {
	if e.minInterval <= 0 {
		return true
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if last, ok := e.lastSeen[thingName]; ok && now.Sub(last) < e.minInterval {
		return false
	}
	e.lastSeen[thingName] = now
	return true
}

func (e *Evaluator) accept(c codec.Codec, thingName string, reportID int64) {
	e.respond(c, transport.AcceptedTopic(thingName, c.Format()), map[string]any{
		"status":    "ACCEPTED",
		"report_id": reportID,
	})
}

func (e *Evaluator) reject(c codec.Codec, thingName, errorCode, message string) {
	e.respond(c, transport.RejectedTopic(thingName, c.Format()), map[string]any{
		"statusDetails": map[string]any{
			"ErrorCode":    errorCode,
			"ErrorMessage": message,
		},
	})
}

func (e *Evaluator) respond(c codec.Codec, topic string, verdict map[string]any) {
	payload, err := c.Marshal(verdict)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("failed to encode verdict")
		return
	}
	e.broker.Publish(topic, payload)
}
