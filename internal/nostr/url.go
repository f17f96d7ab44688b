package nostr

import (
	"net/url"
	"strings"
)

// NormalizeRelayURL validates and normalizes a relay URL supplied by an
// operator. Returns empty string if the URL is invalid/malformed.
func NormalizeRelayURL(relayURL string) string {
	relayURL = strings.TrimSpace(relayURL)
	if relayURL == "" {
		return ""
	}

	// Quick reject for obviously bad URLs (no colon = no protocol)
	if !strings.Contains(relayURL, "://") {
		return ""
	}

	// Reject double protocols (wss://https://...)
	if strings.Count(relayURL, "://") > 1 {
		return ""
	}

	parsed, err := url.Parse(relayURL)
	if err != nil {
		return ""
	}

	// Must be ws:// or wss:// (not ww://, http://, etc)
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return ""
	}

	host := parsed.Hostname()
	if host == "" || strings.Contains(host, " ") {
		return ""
	}

	// Normalize: lowercase scheme and host, strip trailing slash
	result := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(host)
	if parsed.Port() != "" {
		result += ":" + parsed.Port()
	}
	if parsed.Path != "" && parsed.Path != "/" {
		result += parsed.Path
	}
	return result
}
