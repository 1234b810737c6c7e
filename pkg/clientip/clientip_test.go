package clientip_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/guestkit/pkg/clientip"
)

func TestGetIP(t *testing.T) {
	t.Run("cloudflare header wins", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("CF-Connecting-IP", "203.0.113.7")
		r.Header.Set("X-Forwarded-For", "198.51.100.1")
		r.RemoteAddr = "192.0.2.1:4444"

		assert.Equal(t, "203.0.113.7", clientip.GetIP(r))
	})

	t.Run("true client ip", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("True-Client-IP", "203.0.113.9")

		assert.Equal(t, "203.0.113.9", clientip.GetIP(r))
	})

	t.Run("first valid forwarded entry", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("X-Forwarded-For", "not-an-ip, 198.51.100.23, 10.0.0.1")

		assert.Equal(t, "198.51.100.23", clientip.GetIP(r))
	})

	t.Run("x-real-ip fallback", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("X-Real-IP", "198.51.100.42")

		assert.Equal(t, "198.51.100.42", clientip.GetIP(r))
	})

	t.Run("remote addr fallback", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "192.0.2.33:51000"

		assert.Equal(t, "192.0.2.33", clientip.GetIP(r))
	})

	t.Run("forged header with garbage ignored", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("CF-Connecting-IP", "<script>")
		r.RemoteAddr = "192.0.2.33:51000"

		assert.Equal(t, "192.0.2.33", clientip.GetIP(r))
	})

	t.Run("ipv6 zone stripped", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("X-Real-IP", "fe80::1%eth0")

		assert.Equal(t, "fe80::1", clientip.GetIP(r))
	})
}
