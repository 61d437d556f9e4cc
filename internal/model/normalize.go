package model

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var termFolder = cases.Fold()

// NormalizeTerm canonicalizes a signal term for set membership and
// frequency merging: Unicode NFKC, case-folded, whitespace collapsed.
func NormalizeTerm(s string) string {
	s = norm.NFKC.String(s)
	s = termFolder.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeURL canonicalizes a request URL for deduplication: scheme and
// host lowercased, default scheme https, fragment dropped, trailing slash
// trimmed. Returns an error for URLs without a host.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", eris.New("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrap(err, "parse url")
	}
	if u.Host == "" {
		return "", eris.Errorf("url has no host: %s", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", eris.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String(), nil
}
