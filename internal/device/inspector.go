// Package device classifies visitors from the User-Agent header.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

// Profile describes the visitor's environment as derived from the
// User-Agent string. DeviceType, Browser and OS use ordered substring
// heuristics; the version fields come from full user-agent parsing.
type Profile struct {
	DeviceType     string
	Browser        string
	BrowserVersion string
	OS             string
	OSVersion      string
}

// Inspect derives a Profile from a raw User-Agent string. Pure and
// deterministic; the same input always yields the same profile.
//
// Classification is ordered, first match wins. The ordering matters:
// every Edge UA also contains "Chrome", and every Chrome UA also
// contains "Safari", so the exclusions must be checked before the
// broader matches.
func Inspect(ua string) Profile {
	lower := strings.ToLower(ua)

	p := Profile{
		DeviceType: classifyDevice(lower),
		Browser:    classifyBrowser(lower),
		OS:         classifyOS(lower),
	}

	if ua != "" {
		parsed := useragent.New(ua)
		_, p.BrowserVersion = parsed.Browser()
		p.OSVersion = parsed.OSInfo().Version
	}

	return p
}

func classifyDevice(lower string) string {
	switch {
	case strings.Contains(lower, "mobile"):
		return "mobile"
	case strings.Contains(lower, "tablet"), strings.Contains(lower, "ipad"):
		return "tablet"
	default:
		return "desktop"
	}
}

func classifyBrowser(lower string) string {
	switch {
	case strings.Contains(lower, "edg"):
		return "edge"
	case strings.Contains(lower, "chrome"):
		return "chrome"
	case strings.Contains(lower, "safari"):
		return "safari"
	case strings.Contains(lower, "firefox"):
		return "firefox"
	default:
		return "unknown"
	}
}

func classifyOS(lower string) string {
	switch {
	case strings.Contains(lower, "windows"):
		return "windows"
	case strings.Contains(lower, "android"):
		return "android"
	case strings.Contains(lower, "iphone"), strings.Contains(lower, "ipad"), strings.Contains(lower, "ios"):
		return "ios"
	case strings.Contains(lower, "mac os"), strings.Contains(lower, "macintosh"):
		return "macos"
	case strings.Contains(lower, "linux"):
		return "linux"
	default:
		return "unknown"
	}
}
