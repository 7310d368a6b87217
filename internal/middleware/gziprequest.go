package middleware

import (
	"compress/gzip"
	"net/http"
)

// GzipRequest transparently decompresses gzip-encoded request bodies. The
// agent compresses published reports; handlers downstream see the plain
// payload.
func GzipRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Encoding") == "gzip" {
			g, err := gzip.NewReader(r.Body)
			if err != nil {
				http.Error(w, "Failed to read gzip body", http.StatusBadRequest)
				return
			}
			defer g.Close()
			r.Body = g
			r.Header.Del("Content-Encoding")
		}
		next.ServeHTTP(w, r)
	})
}
