package scrape

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

// LocalScraper fetches HTML via net/http and pulls testimonial blocks out
// of the parsed tree. Free, no API calls; blocked or JS-only pages fall
// through to the Jina reader in the chain.
type LocalScraper struct {
	client      *http.Client
	limiter     *rate.Limiter
	userAgent   string
	minFragment int
}

// LocalOption configures the local scraper.
type LocalOption func(*LocalScraper)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(hc *http.Client) LocalOption {
	return func(s *LocalScraper) { s.client = hc }
}

// WithRateLimit sets an outbound requests-per-second cap.
func WithRateLimit(rps float64) LocalOption {
	return func(s *LocalScraper) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithUserAgent overrides the request User-Agent.
func WithUserAgent(ua string) LocalOption {
	return func(s *LocalScraper) { s.userAgent = ua }
}

// WithMinFragmentLen sets the minimum character length for a fragment.
func WithMinFragmentLen(n int) LocalOption {
	return func(s *LocalScraper) { s.minFragment = n }
}

// NewLocalScraper creates a LocalScraper with sensible defaults.
func NewLocalScraper(opts ...LocalOption) *LocalScraper {
	s := &LocalScraper{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		userAgent:   "Mozilla/5.0 (compatible; icp-analyzer/1.0)",
		minFragment: 40,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LocalScraper) Name() string { return "local_http" }

// Fetch fetches a URL and extracts testimonial fragments from its HTML.
func (s *LocalScraper) Fetch(ctx context.Context, targetURL string) ([]Fragment, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, failErr(FailTimeout, targetURL, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, failErr(FailUnreachable, targetURL, err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, failErr(KindOf(err), targetURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, failErr(FailUnreachable, targetURL, err)
	}

	if blocked, kind := DetectBlock(resp, body); blocked {
		zap.L().Debug("scrape: block detected",
			zap.String("url", targetURL),
			zap.String("block", kind),
		)
		return nil, failErr(FailBlocked, targetURL, nil)
	}

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return nil, failErr(FailBlocked, targetURL, nil)
	case resp.StatusCode >= 400:
		return nil, failErr(FailUnreachable, targetURL, nil)
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, failErr(FailParse, targetURL, err)
	}

	frags := s.extract(doc)
	if len(frags) == 0 {
		return nil, failErr(FailParse, targetURL, nil)
	}
	return frags, nil
}

// testimonialMarkers are class/id substrings that identify testimonial
// containers across common site builders.
var testimonialMarkers = []string{
	"testimonial", "review", "quote", "feedback", "customer-story", "case-study",
}

// extract walks the HTML tree collecting text from <blockquote> elements
// and from containers whose class or id carries a testimonial marker.
func (s *LocalScraper) extract(doc *html.Node) []Fragment {
	var frags []Fragment
	seen := make(map[string]struct{})

	add := func(text string) {
		text = collapseSpace(text)
		if len(text) < s.minFragment {
			return
		}
		if _, dup := seen[text]; dup {
			return
		}
		seen[text] = struct{}{}
		frags = append(frags, Fragment{Text: text, Source: s.Name()})
	}

	var walk func(n *html.Node, inTestimonial bool)
	walk = func(n *html.Node, inTestimonial bool) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "nav", "footer", "noscript":
				return
			case "blockquote":
				add(textContent(n))
				return
			}
			if !inTestimonial && hasTestimonialMarker(n) {
				add(textContent(n))
				inTestimonial = true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inTestimonial)
		}
	}
	walk(doc, false)

	return frags
}

func hasTestimonialMarker(n *html.Node) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" && attr.Key != "id" {
			continue
		}
		val := strings.ToLower(attr.Val)
		for _, marker := range testimonialMarkers {
			if strings.Contains(val, marker) {
				return true
			}
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
