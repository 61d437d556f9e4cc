package scrape

import (
	"net/http"
	"strings"
)

// DetectBlock checks an HTTP response for signs of anti-bot protection.
// The returned string names the block kind for logging.
func DetectBlock(resp *http.Response, body []byte) (bool, string) {
	if resp == nil {
		return false, ""
	}

	// Cloudflare: 403/503 with cf-* headers.
	if resp.StatusCode == 403 || resp.StatusCode == 503 {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("cf-cache-status") != "" {
			return true, "cloudflare"
		}
		if resp.Header.Get("server") == "cloudflare" {
			return true, "cloudflare"
		}
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") {
		return true, "cloudflare"
	}

	if strings.Contains(lower, "captcha") ||
		strings.Contains(lower, "recaptcha") ||
		strings.Contains(lower, "hcaptcha") {
		return true, "captcha"
	}

	// JS-only shell: very small body with noscript or meta refresh.
	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, "js_shell"
		}
		if strings.Contains(lower, `meta http-equiv="refresh"`) {
			return true, "js_shell"
		}
	}

	return false, ""
}
