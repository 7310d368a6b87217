package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/devicewatch-io/defender-agent/internal/transport"
	"github.com/devicewatch-io/defender-agent/pkg/hash"
)

// SignatureValidation verifies the HMAC-SHA256 report signature carried in
// the X-Report-Signature header. An empty key disables validation; a
// request without a signature passes through so unsigned tooling keeps
// working against a keyed stub.
func SignatureValidation(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			signature := r.Header.Get(transport.HeaderSignature)
			if signature == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "Failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !hash.Verify(body, key, signature) {
				log.Warn().Str("remote", r.RemoteAddr).Msg("invalid report signature")
				http.Error(w, "Invalid report signature", http.StatusBadRequest)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
