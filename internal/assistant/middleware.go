package assistant

import (
	"net"
	"net/http"
	"strings"

	"github.com/deepgram/coursechat/internal/config"
	"github.com/deepgram/coursechat/pkg/httpext"
	"github.com/deepgram/coursechat/pkg/logger"
	"github.com/deepgram/coursechat/pkg/ratelimit"
)

// RateLimit limits requests per client address. A disabled config passes
// every request through.
func RateLimit(cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := ratelimit.NewLimiter(cfg.Window, cfg.MaxHits)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !limiter.Allow(ip) {
				logger.Warn(logger.ASSISTANT, "Rate limit exceeded for %s on %s", ip, r.URL.Path)
				httpext.JsonError(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop when behind a proxy.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
