package middleware

import (
	"net/http"
	"time"

	"github.com/BradenHooton/cadence/internal/auth"
	pkghttp "github.com/BradenHooton/cadence/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
	// TrustedProxies lists proxy addresses or CIDRs whose forwarding headers are honoured.
	TrustedProxies []string
}

func limitExceeded(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteTooManyRequests(w, "Rate limit exceeded. Please try again later.")
}

// RateLimitByIP creates a middleware that rate limits requests by client IP
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return ClientIP(r, config.TrustedProxies), nil
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}

// RateLimitByUserID rate limits authenticated requests per account. It
// falls back to the client IP when no claims are on the context.
func RateLimitByUserID(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if claims := auth.GetUserFromContext(r); claims != nil && claims.UserID != "" {
				return "user:" + claims.UserID, nil
			}
			return "ip:" + ClientIP(r, config.TrustedProxies), nil
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}

// ClientIP returns the caller's address, honouring forwarding headers only
// from trusted proxies.
func ClientIP(r *http.Request, trustedProxies []string) string {
	return pkghttp.ExtractClientIP(r, &pkghttp.IPConfig{TrustedProxies: trustedProxies})
}
