package scrape

import (
	"context"
	"strings"

	"github.com/sells-group/icp-analyzer/pkg/jina"
)

// JinaScraper reads a URL through the Jina AI Reader and mines the
// returned markdown for testimonial fragments. Used as the chain fallback
// for pages the local scraper cannot handle (blocks, JS-rendered sites).
type JinaScraper struct {
	client      jina.Client
	minFragment int
}

// NewJinaScraper creates a JinaScraper.
func NewJinaScraper(client jina.Client, minFragmentLen int) *JinaScraper {
	if minFragmentLen <= 0 {
		minFragmentLen = 40
	}
	return &JinaScraper{client: client, minFragment: minFragmentLen}
}

func (s *JinaScraper) Name() string { return "jina" }

// Fetch reads the URL via Jina and extracts fragments from the markdown.
func (s *JinaScraper) Fetch(ctx context.Context, targetURL string) ([]Fragment, error) {
	resp, err := s.client.Read(ctx, targetURL)
	if err != nil {
		return nil, failErr(KindOf(err), targetURL, err)
	}
	if resp.Data.Content == "" {
		return nil, failErr(FailParse, targetURL, nil)
	}

	frags := s.fromMarkdown(resp.Data.Content)
	if len(frags) == 0 {
		return nil, failErr(FailParse, targetURL, nil)
	}
	return frags, nil
}

// fromMarkdown pulls testimonial candidates out of reader markdown:
// blockquote runs, and quoted paragraphs.
func (s *JinaScraper) fromMarkdown(md string) []Fragment {
	var frags []Fragment
	seen := make(map[string]struct{})

	add := func(text string) {
		text = collapseSpace(text)
		text = strings.Trim(text, `"“”`)
		if len(text) < s.minFragment {
			return
		}
		if _, dup := seen[text]; dup {
			return
		}
		seen[text] = struct{}{}
		frags = append(frags, Fragment{Text: text, Source: s.Name()})
	}

	var quote strings.Builder
	flush := func() {
		if quote.Len() > 0 {
			add(quote.String())
			quote.Reset()
		}
	}

	for _, para := range strings.Split(md, "\n\n") {
		lines := strings.Split(para, "\n")
		isQuote := true
		for _, line := range lines {
			if !strings.HasPrefix(strings.TrimSpace(line), ">") {
				isQuote = false
				break
			}
		}

		switch {
		case isQuote && strings.TrimSpace(para) != "":
			for _, line := range lines {
				quote.WriteString(strings.TrimPrefix(strings.TrimSpace(line), ">"))
				quote.WriteByte(' ')
			}
			flush()
		case looksQuoted(para):
			add(para)
		}
	}
	flush()

	return frags
}

// looksQuoted reports whether a paragraph is wrapped in quotation marks,
// the common rendering for inline testimonials.
func looksQuoted(para string) bool {
	p := strings.TrimSpace(para)
	if len(p) < 2 {
		return false
	}
	openers := []string{`"`, "“"}
	closers := []string{`"`, "”"}
	for _, o := range openers {
		if strings.HasPrefix(p, o) {
			for _, c := range closers {
				if strings.Contains(p[len(o):], c) {
					return true
				}
			}
		}
	}
	return false
}
