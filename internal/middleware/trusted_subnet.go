package middleware

import (
	"net"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/devicewatch-io/defender-agent/internal/transport"
)

// TrustedSubnet rejects publishes whose X-Real-IP falls outside the given
// CIDR. An empty CIDR disables the check.
func TrustedSubnet(cidr string) func(http.Handler) http.Handler {
	var subnet *net.IPNet
	if cidr != "" {
		var err error
		_, subnet, err = net.ParseCIDR(cidr)
		if err != nil {
			log.Error().Err(err).Str("cidr", cidr).Msg("invalid trusted subnet, check disabled")
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if subnet == nil {
				next.ServeHTTP(w, r)
				return
			}

			ip := net.ParseIP(r.Header.Get(transport.HeaderRealIP))
			if ip == nil || !subnet.Contains(ip) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
