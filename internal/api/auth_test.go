package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"tallybook/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestHTTPAuth_CheckAuth(t *testing.T) {
	auth := NewHTTPAuth(config.APIConfig{
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "X-Custom-Key",
			APIKeys:      []string{" key-1 ", "key-2", ""},
		},
	})

	tests := []struct {
		name string
		key  string
		want error
	}{
		{"Missing", "", errMissingAPIKey},
		{"Invalid", "key-3", errInvalidAPIKey},
		{"TrimmedConfigKey", "key-1", nil},
		{"SecondKey", "key-2", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
			if tt.key != "" {
				req.Header.Set("X-Custom-Key", tt.key)
			}
			assert.Equal(t, tt.want, auth.checkAuth(req))
		})
	}
}

func TestHTTPAuth_ClientKey(t *testing.T) {
	auth := NewHTTPAuth(config.APIConfig{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	assert.Equal(t, "10.0.0.7", auth.clientKey(req))

	req.Header.Set("x-api-key", "key-1")
	assert.Equal(t, "key-1", auth.clientKey(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "garbage"
	assert.Equal(t, clientKeyUnknown, auth.clientKey(req))
}

func TestRateLimiter(t *testing.T) {
	disabled := newRateLimiter(config.RateLimitConfig{})
	for i := 0; i < 100; i++ {
		assert.True(t, disabled.allow("k"))
	}

	limited := newRateLimiter(config.RateLimitConfig{RPS: 0.001, Burst: 2})
	assert.True(t, limited.allow("a"))
	assert.True(t, limited.allow("a"))
	assert.False(t, limited.allow("a"))
	assert.True(t, limited.allow("b"), "buckets are per client")
	assert.Same(t, limited.getLimiter("a"), limited.getLimiter("a"))
}
