package useragent

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Device type constants returned by DeviceType.
const (
	DeviceTypeMobile  = "mobile"
	DeviceTypeTablet  = "tablet"
	DeviceTypeDesktop = "desktop"
	DeviceTypeBot     = "bot"
	DeviceTypeUnknown = "unknown"
)

// UserAgent holds the parsed classification of a user agent string.
type UserAgent struct {
	raw        string
	deviceType string
	os         string
	browser    string
}

func (ua UserAgent) String() string     { return ua.raw }
func (ua UserAgent) DeviceType() string { return ua.deviceType }
func (ua UserAgent) OS() string         { return ua.os }
func (ua UserAgent) Browser() string    { return ua.browser }

func (ua UserAgent) IsBot() bool     { return ua.deviceType == DeviceTypeBot }
func (ua UserAgent) IsMobile() bool  { return ua.deviceType == DeviceTypeMobile }
func (ua UserAgent) IsTablet() bool  { return ua.deviceType == DeviceTypeTablet }
func (ua UserAgent) IsDesktop() bool { return ua.deviceType == DeviceTypeDesktop }
func (ua UserAgent) IsUnknown() bool {
	return ua.deviceType == DeviceTypeUnknown || ua.deviceType == ""
}

var botMarkers = []string{
	"bot", "spider", "crawler", "slurp", "curl/", "wget/",
	"python-requests", "go-http-client", "headless",
}

// Ordered: more specific markers first. "iPad" must win over "Mac OS",
// "Android" tablets (no "Mobile" token) must win over Android phones.
var osMarkers = []struct {
	marker string
	name   string
}{
	{"ipad", "iPadOS"},
	{"iphone", "iOS"},
	{"android", "Android"},
	{"windows", "Windows"},
	{"mac os", "macOS"},
	{"cros", "ChromeOS"},
	{"linux", "Linux"},
}

var browserMarkers = []struct {
	marker string
	name   string
}{
	// Chromium-family browsers embed "chrome", so check derivatives first.
	{"edg/", "Edge"},
	{"opr/", "Opera"},
	{"samsungbrowser", "Samsung Internet"},
	{"firefox", "Firefox"},
	{"chrome", "Chrome"},
	{"safari", "Safari"},
}

var titleCaser = cases.Title(language.English)

// Parse classifies the given user agent string. It never fails; agents that
// match no marker are reported as unknown.
func Parse(raw string) UserAgent {
	ua := UserAgent{
		raw:        raw,
		deviceType: DeviceTypeUnknown,
		os:         "Unknown",
		browser:    "Unknown",
	}
	if strings.TrimSpace(raw) == "" {
		return ua
	}

	lower := strings.ToLower(raw)

	for _, marker := range botMarkers {
		if strings.Contains(lower, marker) {
			ua.deviceType = DeviceTypeBot
			ua.browser = botName(lower)
			return ua
		}
	}

	for _, m := range osMarkers {
		if strings.Contains(lower, m.marker) {
			ua.os = m.name
			break
		}
	}

	for _, m := range browserMarkers {
		if strings.Contains(lower, m.marker) {
			ua.browser = m.name
			break
		}
	}

	ua.deviceType = deviceType(lower, ua.os)
	return ua
}

func deviceType(lower, os string) string {
	switch {
	case strings.Contains(lower, "ipad"):
		return DeviceTypeTablet
	case strings.Contains(lower, "android") && !strings.Contains(lower, "mobile"):
		return DeviceTypeTablet
	case strings.Contains(lower, "tablet"):
		return DeviceTypeTablet
	case strings.Contains(lower, "mobile") || strings.Contains(lower, "iphone"):
		return DeviceTypeMobile
	case os == "Windows" || os == "macOS" || os == "Linux" || os == "ChromeOS":
		return DeviceTypeDesktop
	default:
		return DeviceTypeUnknown
	}
}

// botName extracts a readable name from a bot user agent, e.g.
// "googlebot/2.1" becomes "Googlebot".
func botName(lower string) string {
	for _, marker := range []string{"bot", "spider", "crawler"} {
		idx := strings.Index(lower, marker)
		if idx < 0 {
			continue
		}
		start := idx
		for start > 0 && isNameChar(lower[start-1]) {
			start--
		}
		name := lower[start : idx+len(marker)]
		if name != marker {
			return titleCaser.String(name)
		}
	}
	return "Bot"
}

func isNameChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-' || c == '_'
}
