package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/cadence/internal/auth"
	"github.com/BradenHooton/cadence/internal/models"
	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func withClaims(r *http.Request, userID string) *http.Request {
	claims := &models.TokenClaims{UserID: userID, Type: models.TokenTypeAccess}
	return r.WithContext(context.WithValue(r.Context(), auth.UserContextKey, claims))
}

func TestRateLimitByIP_Returns429AfterLimit(t *testing.T) {
	handler := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 2})(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/api/auth/login", nil)
		req.RemoteAddr = "192.168.1.1:4000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestRateLimitByIP_LimitResponseIsJSON(t *testing.T) {
	handler := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 1})(okHandler())

	var w *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/api/auth/login", nil)
		req.RemoteAddr = "192.168.1.7:4000"
		w = httptest.NewRecorder()
		handler.ServeHTTP(w, req)
	}

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")
}

func TestRateLimitByIP_IgnoresSpoofedForwardedFor(t *testing.T) {
	handler := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 1})(okHandler())

	for i, spoofed := range []string{"1.1.1.1", "2.2.2.2"} {
		req := httptest.NewRequest("POST", "/api/auth/login", nil)
		req.RemoteAddr = "192.168.1.9:4000"
		req.Header.Set("X-Forwarded-For", spoofed)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if i == 1 {
			assert.Equal(t, http.StatusTooManyRequests, w.Code)
		}
	}
}

func TestRateLimitByUserID_IsolatesUserBuckets(t *testing.T) {
	handler := RateLimitByUserID(RateLimitConfig{RequestsPerMinute: 1})(okHandler())

	send := func(userID string) int {
		req := withClaims(httptest.NewRequest("GET", "/api/notifications", nil), userID)
		req.RemoteAddr = "10.1.1.1:5000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, 200, send("user-a"))
	assert.Equal(t, 200, send("user-b"), "same IP, different account")
	assert.Equal(t, 429, send("user-a"))
}

func TestRateLimitByUserID_FallbackToIPWhenNoUserID(t *testing.T) {
	handler := RateLimitByUserID(RateLimitConfig{RequestsPerMinute: 1})(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "192.168.1.1:8080"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
}

func TestClientIP_UsesTrustedProxies(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 198.51.100.1, 10.0.0.2")

	assert.Equal(t, "198.51.100.1", ClientIP(req, []string{"10.0.0.1", "10.0.0.2"}))
	assert.Equal(t, "10.0.0.1", ClientIP(req, nil))
}
