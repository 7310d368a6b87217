package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/devicewatch-io/defender-agent/internal/transport"
	"github.com/devicewatch-io/defender-agent/pkg/hash"
)

func echoBody(t *testing.T, captured *[]byte) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read body: %v", err)
		}
		*captured = body
		w.WriteHeader(http.StatusOK)
	})
}

func TestGzipRequest(t *testing.T) {
	payload := []byte(`{"header":{"report_id":1}}`)

	var compressed bytes.Buffer
	gw := gzip.NewWriter(&compressed)
	if _, err := gw.Write(payload); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}

	var captured []byte
	handler := GzipRequest(echoBody(t, &captured))

	req := httptest.NewRequest(http.MethodPost, "/topics/a", &compressed)
	req.Header.Set("Content-Encoding", "gzip")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !bytes.Equal(captured, payload) {
		t.Errorf("expected decompressed body %q, got %q", payload, captured)
	}

	// Plain bodies pass through untouched.
	captured = nil
	req = httptest.NewRequest(http.MethodPost, "/topics/a", bytes.NewReader(payload))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !bytes.Equal(captured, payload) {
		t.Errorf("expected plain body %q, got %q", payload, captured)
	}

	// A claimed but broken gzip body is rejected.
	req = httptest.NewRequest(http.MethodPost, "/topics/a", bytes.NewReader([]byte("not gzip")))
	req.Header.Set("Content-Encoding", "gzip")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestSignatureValidation(t *testing.T) {
	const key = "test-key"
	payload := []byte(`{"header":{"report_id":1}}`)

	tests := []struct {
		name           string
		key            string
		signature      string
		expectedStatus int
	}{
		{
			name:           "valid signature",
			key:            key,
			signature:      hash.Sign(payload, key),
			expectedStatus: http.StatusOK,
		},
		{
			name:           "invalid signature",
			key:            key,
			signature:      "deadbeef",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unsigned request passes through",
			key:            key,
			signature:      "",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "validation disabled",
			key:            "",
			signature:      "deadbeef",
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured []byte
			handler := SignatureValidation(tt.key)(echoBody(t, &captured))

			req := httptest.NewRequest(http.MethodPost, "/topics/a", bytes.NewReader(payload))
			if tt.signature != "" {
				req.Header.Set(transport.HeaderSignature, tt.signature)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedStatus == http.StatusOK && !bytes.Equal(captured, payload) {
				t.Errorf("expected body %q to reach the handler, got %q", payload, captured)
			}
		})
	}
}

func TestTrustedSubnet(t *testing.T) {
	tests := []struct {
		name           string
		cidr           string
		realIP         string
		expectedStatus int
	}{
		{
			name:           "inside subnet",
			cidr:           "10.0.0.0/8",
			realIP:         "10.1.2.3",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "outside subnet",
			cidr:           "10.0.0.0/8",
			realIP:         "192.168.1.1",
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "missing header",
			cidr:           "10.0.0.0/8",
			realIP:         "",
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "check disabled",
			cidr:           "",
			realIP:         "",
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := TrustedSubnet(tt.cidr)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/topics/a", nil)
			if tt.realIP != "" {
				req.Header.Set(transport.HeaderRealIP, tt.realIP)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}
