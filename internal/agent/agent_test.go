package agent

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devicewatch-io/defender-agent/internal/codec"
	"github.com/devicewatch-io/defender-agent/internal/netstat"
	"github.com/devicewatch-io/defender-agent/internal/transport"
)

const testThing = "test-device"

// capturedEvent owns copies of the borrowed event buffers so assertions can
// happen after the callback returned.
type capturedEvent struct {
	Type      EventType
	Throttled bool
	Payload   []byte
	Report    []byte
}

func eventRecorder(events chan<- capturedEvent) Callback {
	return func(e Event) {
		captured := capturedEvent{Type: e.Type, Throttled: e.Throttled}
		captured.Payload = append(captured.Payload, e.Payload...)
		captured.Report = append(captured.Report, e.Report...)
		select {
		case events <- captured:
		default:
		}
	}
}

func waitForEvent(t *testing.T, events <-chan capturedEvent) capturedEvent {
	t.Helper()
	select {
	case e := <-events:
		return e
	case <-time.After(3 * time.Second):
		t.Fatal("no event within timeout")
		return capturedEvent{}
	}
}

// acceptAll makes the loopback answer every metrics publish like an
// accepting detection service.
func acceptAll(t *testing.T, loopback *transport.Loopback, c codec.Codec) {
	t.Helper()
	accepted := transport.AcceptedTopic(testThing, c.Format())
	response, err := c.Marshal(map[string]any{"status": "ACCEPTED"})
	require.NoError(t, err)

	loopback.OnPublish = func(topic string, _ []byte) {
		if strings.HasSuffix(topic, "/"+c.Format()) {
			loopback.Inject(accepted, response)
		}
	}
}

func testStartConfig(cb Callback) StartConfig {
	return StartConfig{
		Endpoint:        "loopback://detector",
		ThingName:       testThing,
		Callback:        cb,
		ResponseTimeout: 200 * time.Millisecond,
	}
}

func TestStartWhileRunningFails(t *testing.T) {
	loopback := transport.NewLoopback()
	a := New(&netstat.StaticSource{}, codec.NewJSON(), loopback)
	defer a.Stop()

	require.NoError(t, a.Start(testStartConfig(nil)))
	require.ErrorIs(t, a.Start(testStartConfig(nil)), ErrAlreadyStarted)
	require.Equal(t, StateRunning, a.State())
}

func TestStopIsIdempotent(t *testing.T) {
	loopback := transport.NewLoopback()
	a := New(&netstat.StaticSource{}, codec.NewJSON(), loopback)

	// Stop on a stopped agent is a no-op.
	a.Stop()
	a.Stop()

	require.NoError(t, a.Start(testStartConfig(nil)))
	a.Stop()
	a.Stop()
	require.Equal(t, StateStopped, a.State())
	require.True(t, loopback.Closed())
}

func TestConfigCallsWorkWhileRunning(t *testing.T) {
	loopback := transport.NewLoopback()
	a := New(&netstat.StaticSource{}, codec.NewJSON(), loopback)
	defer a.Stop()

	require.NoError(t, a.Start(testStartConfig(nil)))

	require.NoError(t, a.SetMetrics(GroupTCPConnections, FlagAll))
	require.Equal(t, FlagAll, a.store.Flags(GroupTCPConnections))

	require.NoError(t, a.SetPeriod(600))
	require.Equal(t, uint32(600), a.GetPeriod())

	require.ErrorIs(t, a.SetMetrics(10000, FlagAll), ErrInvalidGroup)
	require.ErrorIs(t, a.SetPeriod(299), ErrPeriodTooShort)
}

func TestDialFailureSurfacesAsEvent(t *testing.T) {
	loopback := transport.NewLoopback()
	loopback.DialErr = errors.New("endpoint unreachable")

	events := make(chan capturedEvent, 8)
	a := New(&netstat.StaticSource{}, codec.NewJSON(), loopback)

	// Start itself succeeds; the failure arrives asynchronously.
	require.NoError(t, a.Start(testStartConfig(eventRecorder(events))))

	e := waitForEvent(t, events)
	require.Equal(t, EventNetworkConnectionFailed, e.Type)

	// The agent wound itself back to stopped and can be stopped again
	// without harm.
	require.Eventually(t, func() bool {
		return a.State() == StateStopped
	}, time.Second, 10*time.Millisecond)
	a.Stop()

	// A later Start with a healthy endpoint works.
	loopback.DialErr = nil
	require.NoError(t, a.Start(testStartConfig(nil)))
	a.Stop()
}

func TestFirstReportIsPublishedImmediately(t *testing.T) {
	loopback := transport.NewLoopback()
	c := codec.NewJSON()
	source := &netstat.StaticSource{
		Connections: []netstat.Connection{{RemoteIP: "203.0.113.9", RemotePort: 443}},
	}

	events := make(chan capturedEvent, 8)
	a := New(source, c, loopback)
	defer a.Stop()

	acceptAll(t, loopback, c)
	require.NoError(t, a.SetMetrics(GroupTCPConnections, FlagEstablishedTotal))
	require.NoError(t, a.Start(testStartConfig(eventRecorder(events))))

	e := waitForEvent(t, events)
	require.Equal(t, EventMetricsAccepted, e.Type)
	require.False(t, e.Throttled)

	doc, err := codec.DecodeMap(c, e.Report)
	require.NoError(t, err)

	total, err := codec.LookupInt(doc, "metrics", "tcp_connections", "established_connections", "total")
	require.NoError(t, err)
	require.Equal(t, int64(1), total)

	_, err = codec.Lookup(doc, "metrics", "tcp_connections", "established_connections", "connections")
	require.ErrorIs(t, err, codec.ErrNotFound)

	// The report went to the format-qualified metrics topic.
	published := loopback.Published()
	require.NotEmpty(t, published)
	require.Equal(t, transport.MetricsTopic(testThing, c.Format()), published[0].Topic)
}

func TestRestartPicksUpNewFlags(t *testing.T) {
	loopback := transport.NewLoopback()
	c := codec.NewJSON()
	source := &netstat.StaticSource{
		Connections: []netstat.Connection{{RemoteIP: "203.0.113.9", RemotePort: 443}},
	}

	events := make(chan capturedEvent, 8)
	a := New(source, c, loopback)
	defer a.Stop()

	acceptAll(t, loopback, c)
	require.NoError(t, a.SetMetrics(GroupTCPConnections, FlagEstablishedTotal))
	require.NoError(t, a.Start(testStartConfig(eventRecorder(events))))

	first := waitForEvent(t, events)
	require.Equal(t, EventMetricsAccepted, first.Type)

	a.Stop()

	require.NoError(t, a.SetMetrics(GroupTCPConnections, FlagAll))
	require.NoError(t, a.Start(testStartConfig(eventRecorder(events))))

	second := waitForEvent(t, events)
	require.Equal(t, EventMetricsAccepted, second.Type)

	doc, err := codec.DecodeMap(c, second.Report)
	require.NoError(t, err)

	entries, err := codec.Lookup(doc, "metrics", "tcp_connections", "established_connections", "connections")
	require.NoError(t, err)
	require.Len(t, entries.([]any), 1)
	require.Equal(t, "203.0.113.9:443",
		entries.([]any)[0].(map[string]any)["remote_addr"])
}

func TestPublishFailureIsNotFatal(t *testing.T) {
	loopback := transport.NewLoopback()
	loopback.PublishErr = errors.New("connection reset")

	events := make(chan capturedEvent, 8)
	a := New(&netstat.StaticSource{}, codec.NewJSON(), loopback)
	defer a.Stop()

	require.NoError(t, a.Start(testStartConfig(eventRecorder(events))))

	e := waitForEvent(t, events)
	require.Equal(t, EventPublishFailed, e.Type)
	require.NotEmpty(t, e.Report)

	// The agent keeps running; the next cycle will retry.
	require.Equal(t, StateRunning, a.State())
}

func TestThrottledRejectionEvent(t *testing.T) {
	loopback := transport.NewLoopback()
	c := codec.NewJSON()

	rejected := transport.RejectedTopic(testThing, c.Format())
	response, err := c.Marshal(map[string]any{
		"statusDetails": map[string]any{"ErrorCode": "Throttled"},
	})
	require.NoError(t, err)

	loopback.OnPublish = func(topic string, _ []byte) {
		if strings.HasSuffix(topic, "/"+c.Format()) {
			loopback.Inject(rejected, response)
		}
	}

	events := make(chan capturedEvent, 8)
	a := New(&netstat.StaticSource{}, c, loopback)
	defer a.Stop()

	require.NoError(t, a.Start(testStartConfig(eventRecorder(events))))

	e := waitForEvent(t, events)
	require.Equal(t, EventMetricsRejected, e.Type)
	require.True(t, e.Throttled)
	require.Equal(t, StateRunning, a.State())
}

func TestNoResponseRaisesNoEvent(t *testing.T) {
	loopback := transport.NewLoopback()

	events := make(chan capturedEvent, 8)
	a := New(&netstat.StaticSource{}, codec.NewJSON(), loopback)
	defer a.Stop()

	cfg := testStartConfig(eventRecorder(events))
	cfg.ResponseTimeout = 50 * time.Millisecond
	require.NoError(t, a.Start(cfg))

	select {
	case e := <-events:
		t.Fatalf("unexpected event %v", e.Type)
	case <-time.After(300 * time.Millisecond):
	}
	require.Equal(t, StateRunning, a.State())
}

func TestNextWaitUsesCurrentPeriodAndBackoff(t *testing.T) {
	a := New(&netstat.StaticSource{}, codec.NewJSON(), transport.NewLoopback())

	require.Equal(t, 300*time.Second, a.nextWait(1))
	require.Equal(t, 1200*time.Second, a.nextWait(4))

	require.NoError(t, a.SetPeriod(600))
	require.Equal(t, 600*time.Second, a.nextWait(1))
}

func TestNextReportIDMonotonic(t *testing.T) {
	a := New(&netstat.StaticSource{}, codec.NewJSON(), transport.NewLoopback())

	previous := a.nextReportID()
	for i := 0; i < 100; i++ {
		id := a.nextReportID()
		require.Greater(t, id, previous)
		previous = id
	}
}
