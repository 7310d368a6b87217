// Package agent implements the reporting engine: the start/stop lifecycle,
// the background reporting cycle, and the configuration store feeding it.
//
// One Agent owns one transport session and one background goroutine while
// running. Configuration calls (SetMetrics, SetPeriod) are safe from any
// goroutine at any time; Start and Stop serialize on the lifecycle lock.
package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/devicewatch-io/defender-agent/internal/audit"
	"github.com/devicewatch-io/defender-agent/internal/codec"
	"github.com/devicewatch-io/defender-agent/internal/netstat"
	"github.com/devicewatch-io/defender-agent/internal/transport"
)

// ErrAlreadyStarted is returned by Start while the agent is running. The
// running cycle is unaffected.
var ErrAlreadyStarted = errors.New("agent: already started")

// DefaultResponseTimeout bounds the wait for a service response after a
// publish.
const DefaultResponseTimeout = 10 * time.Second

// maxBackoffMultiplier caps the throttle backoff at this multiple of the
// configured period. Each throttled rejection doubles the multiplier; an
// accepted report resets it.
const maxBackoffMultiplier = 4

// State is the observable agent state.
type State int32

const (
	StateStopped State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "stopped"
}

// StartConfig is the per-session bundle captured by Start. Mutating the
// caller's copy after Start has no effect on the running session.
type StartConfig struct {
	// Endpoint of the detection service.
	Endpoint string

	// ThingName identifies this device to the service.
	ThingName string

	// Credentials is passed through to the transport untouched.
	Credentials transport.Credentials

	// Callback receives asynchronous events; nil drops them.
	Callback Callback

	// ResponseTimeout bounds the post-publish response wait. Zero means
	// DefaultResponseTimeout.
	ResponseTimeout time.Duration
}

// Option configures an Agent at construction.
type Option func(*Agent)

// WithAudit attaches an audit subject notified about every dispatched
// event.
func WithAudit(subject *audit.Subject) Option {
	return func(a *Agent) {
		a.audit = subject
	}
}

// Agent is the device-side reporting engine. A host holds at most one live
// instance.
type Agent struct {
	store  *Store
	source netstat.Source
	codec  codec.Codec
	dialer transport.Dialer
	audit  *audit.Subject

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lastReportID atomic.Int64
}

// New builds a stopped agent. The connection source, codec and dialer are
// fixed for the agent's lifetime; reporting configuration stays mutable
// through SetMetrics and SetPeriod.
func New(source netstat.Source, c codec.Codec, dialer transport.Dialer, opts ...Option) *Agent {
	a := &Agent{
		store:  NewStore(),
		source: source,
		codec:  c,
		dialer: dialer,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetMetrics replaces the flags of a metrics group. See Store.SetMetrics.
func (a *Agent) SetMetrics(group MetricsGroup, flags MetricsFlags) error {
	return a.store.SetMetrics(group, flags)
}

// SetPeriod replaces the reporting period. See Store.SetPeriod.
func (a *Agent) SetPeriod(seconds uint32) error {
	return a.store.SetPeriod(seconds)
}

// GetPeriod returns the current reporting period in seconds.
func (a *Agent) GetPeriod() uint32 {
	return a.store.Period()
}

// State returns the current lifecycle state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Start transitions the agent to running and begins cyclic reporting in
// the background. The connection attempt is asynchronous: Start succeeds
// immediately, and a connection failure arrives later as an
// EventNetworkConnectionFailed event, after which the agent is stopped
// again.
func (a *Agent) Start(cfg StartConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateRunning {
		return ErrAlreadyStarted
	}

	// A session that stopped itself may still be unwinding.
	a.wg.Wait()

	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = DefaultResponseTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.state = StateRunning

	log.Info().Str("thing", cfg.ThingName).Str("endpoint", cfg.Endpoint).Msg("starting agent")

	a.wg.Add(1)
	go a.run(ctx, cfg)

	return nil
}

// Stop cancels the pending wait, closes the transport and returns once the
// background goroutine has exited. A report already published is not
// retracted; its response, if any, goes unobserved. No-op when stopped.
func (a *Agent) Stop() {
	a.mu.Lock()
	if a.state != StateRunning {
		a.mu.Unlock()
		return
	}
	a.state = StateStopped
	a.cancel()
	a.mu.Unlock()

	a.wg.Wait()
	log.Info().Msg("agent stopped")
}

// selfStop returns the agent to stopped from inside the run goroutine,
// used when the session cannot be established.
func (a *Agent) selfStop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateRunning {
		a.state = StateStopped
		a.cancel()
	}
}

// inbound is one response payload routed off a subscription.
type inbound struct {
	channel responseChannel
	payload []byte
}

func (a *Agent) run(ctx context.Context, cfg StartConfig) {
	defer a.wg.Done()

	session, err := a.dialer.Dial(ctx, cfg.Endpoint, cfg.ThingName, cfg.Credentials)
	if err != nil {
		log.Error().Err(err).Str("endpoint", cfg.Endpoint).Msg("transport connection failed")
		a.dispatch(cfg, Event{Type: EventNetworkConnectionFailed})
		a.selfStop()
		return
	}
	defer session.Close()

	format := a.codec.Format()
	metricsTopic := transport.MetricsTopic(cfg.ThingName, format)

	// Buffered so subscription handlers never block the transport; a
	// cycle consumes at most one response.
	responses := make(chan inbound, 4)

	subscriptions := map[string]responseChannel{
		transport.AcceptedTopic(cfg.ThingName, format): channelAccepted,
		transport.RejectedTopic(cfg.ThingName, format): channelRejected,
	}
	for topic, channel := range subscriptions {
		channel := channel
		err := session.Subscribe(ctx, topic, func(payload []byte) {
			owned := make([]byte, len(payload))
			copy(owned, payload)
			select {
			case responses <- inbound{channel: channel, payload: owned}:
			default:
				log.Debug().Str("topic", topic).Msg("dropping response, channel full")
			}
		})
		if err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("subscription failed")
			a.dispatch(cfg, Event{Type: EventNetworkConnectionFailed})
			a.selfStop()
			return
		}
	}

	// The first report goes out immediately; afterwards cycles are spaced
	// by the configured period, stretched while the service throttles.
	backoff := 1
	for {
		a.runCycle(ctx, cfg, session, metricsTopic, responses, &backoff)

		timer := time.NewTimer(a.nextWait(backoff))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// nextWait computes the inter-cycle wait from the current period and
// backoff multiplier. The period is re-read every cycle, so SetPeriod
// takes effect on the next wait.
func (a *Agent) nextWait(backoff int) time.Duration {
	return time.Duration(a.store.Period()) * time.Second * time.Duration(backoff)
}

func (a *Agent) runCycle(ctx context.Context, cfg StartConfig, session transport.Transport, metricsTopic string, responses <-chan inbound, backoff *int) {
	reportID := a.nextReportID()
	snapshot := a.store.Snapshot()

	report, err := buildReport(ctx, reportID, cfg.ThingName, snapshot, a.source)
	if err != nil {
		log.Error().Err(err).Msg("skipping cycle, metrics collection failed")
		return
	}

	data, err := a.codec.Marshal(report)
	if err != nil {
		log.Error().Err(err).Msg("skipping cycle, report encoding failed")
		return
	}

	// Responses from previous cycles are stale; only this cycle's answer
	// counts.
	for {
		select {
		case <-responses:
			continue
		default:
		}
		break
	}

	if err := session.Publish(ctx, metricsTopic, data); err != nil {
		log.Error().Err(err).Int64("report_id", reportID).Msg("publish failed")
		a.dispatch(cfg, Event{Type: EventPublishFailed, Report: data})
		return
	}

	log.Debug().Int64("report_id", reportID).Int("size", len(data)).Msg("report published")

	timer := time.NewTimer(cfg.ResponseTimeout)
	defer timer.Stop()

	select {
	case in := <-responses:
		result := classifyResponse(a.codec, in.channel, in.payload)
		*backoff = nextBackoff(*backoff, result)
		a.dispatch(cfg, Event{
			Type:      result.event,
			Throttled: result.throttled,
			Payload:   in.payload,
			Report:    data,
		})

	case <-timer.C:
		log.Debug().Int64("report_id", reportID).Msg("no response within timeout")

	case <-ctx.Done():
	}
}

// nextBackoff applies the throttle policy: double per throttled rejection
// up to maxBackoffMultiplier, reset on acceptance, hold otherwise.
func nextBackoff(current int, result classification) int {
	switch {
	case result.throttled:
		return min(current*2, maxBackoffMultiplier)
	case result.event == EventMetricsAccepted:
		return 1
	default:
		return current
	}
}

// nextReportID returns a strictly increasing report identifier, seeded
// from wall-clock time so identifiers also increase across restarts.
func (a *Agent) nextReportID() int64 {
	for {
		last := a.lastReportID.Load()
		next := time.Now().Unix()
		if next <= last {
			next = last + 1
		}
		if a.lastReportID.CompareAndSwap(last, next) {
			return next
		}
	}
}
