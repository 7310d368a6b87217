package transport

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"

	"github.com/devicewatch-io/defender-agent/internal/netutil"
	"github.com/devicewatch-io/defender-agent/pkg/hash"
)

// Header names of the HTTP bridge protocol.
const (
	HeaderSignature = "X-Report-Signature"
	HeaderRealIP    = "X-Real-IP"
	HeaderClientID  = "X-Client-ID"
)

const (
	defaultPublishTimeout = 10 * time.Second
	defaultPollWindow     = 25 * time.Second
)

// HTTPDialer dials the detection service's HTTP pub/sub bridge: publishes
// are POSTs to /topics/<topic>, subscriptions are long-poll GETs on the
// same path.
type HTTPDialer struct {
	// PollWindow is the long-poll wait requested per subscription request.
	PollWindow time.Duration
}

// NewHTTPDialer returns a dialer with default timeouts.
func NewHTTPDialer() *HTTPDialer {
	return &HTTPDialer{PollWindow: defaultPollWindow}
}

// Dial probes the endpoint and returns a bridge session. A dead endpoint
// fails here, which the engine surfaces as a network-connection failure.
func (d *HTTPDialer) Dial(ctx context.Context, endpoint, clientID string, creds Credentials) (Transport, error) {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil

	tlsConfig, err := tlsConfigFromCredentials(creds)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		client.HTTPClient.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	}

	base := strings.TrimRight(endpoint, "/")

	localIP, err := netutil.LocalIP()
	if err != nil {
		log.Debug().Err(err).Msg("local ip unavailable, publishing without X-Real-IP")
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	bridge := &HTTPBridge{
		base:       base,
		clientID:   clientID,
		creds:      creds,
		client:     client,
		localIP:    localIP,
		pollWindow: d.PollWindow,
		ctx:        sessionCtx,
		cancel:     cancel,
	}

	if err := bridge.probe(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("endpoint %s unreachable: %w", endpoint, err)
	}

	return bridge, nil
}

// HTTPBridge is one dialed session against the HTTP bridge.
type HTTPBridge struct {
	base       string
	clientID   string
	creds      Credentials
	client     *retryablehttp.Client
	localIP    string
	pollWindow time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (b *HTTPBridge) probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(probeCtx, http.MethodGet, b.base+"/healthz", nil)
	if err != nil {
		return err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected probe status: %d", resp.StatusCode)
	}
	return nil
}

// Publish POSTs payload to the topic path. The body is gzip-compressed; the
// signature header covers the uncompressed payload.
func (b *HTTPBridge) Publish(ctx context.Context, topic string, payload []byte) error {
	var body bytes.Buffer
	gw := gzip.NewWriter(&body)
	if _, err := gw.Write(payload); err != nil {
		return fmt.Errorf("failed to compress payload: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("failed to close gzip writer: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(publishCtx, http.MethodPost, b.topicURL(topic), body.Bytes())
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set(HeaderClientID, b.clientID)
	if b.localIP != "" {
		req.Header.Set(HeaderRealIP, b.localIP)
	}
	if signature := hash.Sign(payload, b.creds.SigningKey); signature != "" {
		req.Header.Set(HeaderSignature, signature)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("publish to %s failed with status %d", topic, resp.StatusCode)
	}
	return nil
}

// Subscribe starts a long-poll loop on the topic. The loop lives until the
// session is closed.
func (b *HTTPBridge) Subscribe(_ context.Context, topic string, h Handler) error {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.pollLoop(topic, h)
	}()
	return nil
}

func (b *HTTPBridge) pollLoop(topic string, h Handler) {
	url := fmt.Sprintf("%s?timeout=%ds", b.topicURL(topic), int(b.pollWindow.Seconds()))

	for {
		if b.ctx.Err() != nil {
			return
		}

		payload, err := b.poll(url)
		if err != nil {
			if b.ctx.Err() != nil {
				return
			}
			log.Debug().Err(err).Str("topic", topic).Msg("poll failed, backing off")
			select {
			case <-time.After(time.Second):
			case <-b.ctx.Done():
				return
			}
			continue
		}

		if payload != nil {
			h(payload)
		}
	}
}

// poll performs one long-poll request. A nil payload with nil error means
// the window elapsed without a message.
func (b *HTTPBridge) poll(url string) ([]byte, error) {
	pollCtx, cancel := context.WithTimeout(b.ctx, b.pollWindow+defaultPublishTimeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(pollCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(HeaderClientID, b.clientID)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return io.ReadAll(resp.Body)
	case http.StatusNoContent:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected poll status: %d", resp.StatusCode)
	}
}

// Close stops the poll loops and waits for them to exit.
func (b *HTTPBridge) Close() error {
	b.cancel()
	b.wg.Wait()
	return nil
}

func (b *HTTPBridge) topicURL(topic string) string {
	return b.base + "/topics/" + topic
}

// tlsConfigFromCredentials builds the client TLS configuration from the
// pass-through credential material. All-empty material returns nil and the
// default transport is used.
func tlsConfigFromCredentials(creds Credentials) (*tls.Config, error) {
	if creds.TLSCertFile == "" && creds.TLSKeyFile == "" && creds.CACertFile == "" {
		return nil, nil
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if creds.CACertFile != "" {
		caCert, err := os.ReadFile(creds.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificates found in %s", creds.CACertFile)
		}
		tlsConfig.RootCAs = caPool
	}

	if creds.TLSCertFile != "" || creds.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(creds.TLSCertFile, creds.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}
