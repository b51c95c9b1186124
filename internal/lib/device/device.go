// Package device derives a coarse device descriptor and the client IP from
// request metadata. Extraction is best effort and never fails.
package device

import (
	"net/netip"
	"strings"
)

type Class string

const (
	ClassDesktop Class = "Desktop"
	ClassMobile  Class = "Mobile"
	ClassTablet  Class = "Tablet"
)

const (
	UnknownDevice = "Unknown Device"
	Unknown       = "Unknown"
)

// RequestMetadata is the subset of request data the extractor looks at.
type RequestMetadata struct {
	UserAgent    string
	ForwardedFor string
	RemoteAddr   string
}

type Info struct {
	Class     Class
	OS        string
	Browser   string
	IPAddress string
}

// String returns the descriptor stored on a session.
func (i Info) String() string {
	if i.Class == "" {
		return UnknownDevice
	}
	return string(i.Class) + " - " + i.OS + " - " + i.Browser
}

func Extract(md RequestMetadata) Info {
	info := Info{
		OS:        Unknown,
		Browser:   Unknown,
		IPAddress: clientIP(md),
	}

	ua := strings.ToLower(strings.TrimSpace(md.UserAgent))
	if ua == "" {
		return info
	}

	info.Class = deviceClass(ua)
	info.OS = operatingSystem(ua)
	info.Browser = browser(ua)

	return info
}

func deviceClass(ua string) Class {
	switch {
	case containsAny(ua, "ipad", "tablet", "kindle", "silk/", "playbook"):
		return ClassTablet
	case strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		return ClassTablet
	case containsAny(ua, "mobi", "iphone", "ipod", "android", "blackberry", "windows phone", "opera mini"):
		return ClassMobile
	default:
		return ClassDesktop
	}
}

func operatingSystem(ua string) string {
	switch {
	case strings.Contains(ua, "windows phone"):
		return "Windows Phone"
	case strings.Contains(ua, "windows"):
		return "Windows"
	case containsAny(ua, "iphone", "ipad", "ipod"):
		return "iOS"
	case strings.Contains(ua, "android"):
		return "Android"
	case containsAny(ua, "mac os x", "macintosh"):
		return "macOS"
	case strings.Contains(ua, "cros"):
		return "ChromeOS"
	case strings.Contains(ua, "linux"):
		return "Linux"
	default:
		return Unknown
	}
}

// browser checks tokens in order: most Chromium-based browsers also
// advertise "chrome" and "safari".
func browser(ua string) string {
	switch {
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge/"):
		return "Edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		return "Opera"
	case strings.Contains(ua, "samsungbrowser"):
		return "Samsung Internet"
	case strings.Contains(ua, "firefox") || strings.Contains(ua, "fxios"):
		return "Firefox"
	case strings.Contains(ua, "crios") || strings.Contains(ua, "chrome") || strings.Contains(ua, "chromium"):
		return "Chrome"
	case strings.Contains(ua, "safari"):
		return "Safari"
	case strings.Contains(ua, "msie") || strings.Contains(ua, "trident"):
		return "Internet Explorer"
	default:
		return Unknown
	}
}

func clientIP(md RequestMetadata) string {
	// Leftmost entry is the client as seen by the first proxy.
	for _, candidate := range strings.Split(md.ForwardedFor, ",") {
		if ip, ok := normalizeIP(candidate); ok {
			return ip
		}
	}
	if ip, ok := normalizeIP(md.RemoteAddr); ok {
		return ip
	}
	return Unknown
}

// normalizeIP accepts a bare address or host:port and returns the address
// without port or zone.
func normalizeIP(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if addrPort, err := netip.ParseAddrPort(raw); err == nil {
		return addrPort.Addr().WithZone("").Unmap().String(), true
	}
	if addr, err := netip.ParseAddr(raw); err == nil {
		return addr.WithZone("").Unmap().String(), true
	}
	return "", false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
