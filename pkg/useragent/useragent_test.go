package useragent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/guestkit/pkg/useragent"
)

const (
	chromeDesktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	safariIPhoneUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	safariIPadUA    = "Mozilla/5.0 (iPad; CPU OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Safari/604.1"
	androidPhoneUA  = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
	googlebotUA     = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

func TestParse(t *testing.T) {
	t.Run("desktop chrome", func(t *testing.T) {
		ua := useragent.Parse(chromeDesktopUA)
		assert.True(t, ua.IsDesktop())
		assert.Equal(t, "Windows", ua.OS())
		assert.Equal(t, "Chrome", ua.Browser())
	})

	t.Run("iphone safari", func(t *testing.T) {
		ua := useragent.Parse(safariIPhoneUA)
		assert.True(t, ua.IsMobile())
		assert.Equal(t, "iOS", ua.OS())
		assert.Equal(t, "Safari", ua.Browser())
	})

	t.Run("ipad is tablet", func(t *testing.T) {
		ua := useragent.Parse(safariIPadUA)
		assert.True(t, ua.IsTablet())
		assert.Equal(t, "iPadOS", ua.OS())
	})

	t.Run("android phone", func(t *testing.T) {
		ua := useragent.Parse(androidPhoneUA)
		assert.True(t, ua.IsMobile())
		assert.Equal(t, "Android", ua.OS())
		assert.Equal(t, "Chrome", ua.Browser())
	})

	t.Run("googlebot", func(t *testing.T) {
		ua := useragent.Parse(googlebotUA)
		assert.True(t, ua.IsBot())
		assert.Equal(t, "Googlebot", ua.Browser())
	})

	t.Run("curl is bot", func(t *testing.T) {
		ua := useragent.Parse("curl/8.4.0")
		assert.True(t, ua.IsBot())
	})

	t.Run("empty string", func(t *testing.T) {
		ua := useragent.Parse("")
		assert.True(t, ua.IsUnknown())
		assert.Equal(t, "Unknown", ua.Browser())
	})

	t.Run("raw preserved", func(t *testing.T) {
		ua := useragent.Parse(chromeDesktopUA)
		assert.Equal(t, chromeDesktopUA, ua.String())
	})
}
