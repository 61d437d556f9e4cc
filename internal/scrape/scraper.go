// Package scrape extracts customer-testimonial text from websites. A
// Chain tries scrapers in priority order: the free local HTTP scraper
// first, then the Jina reader fallback when configured.
package scrape

import (
	"context"

	"go.uber.org/zap"
)

// Fragment is one block of testimonial text pulled from a page.
type Fragment struct {
	Text   string `json:"text"`
	Source string `json:"source"` // scraper name that produced it
}

// Scraper fetches one URL and returns its testimonial fragments. Failures
// are *Error values carrying a FailKind.
type Scraper interface {
	Fetch(ctx context.Context, url string) ([]Fragment, error)
	Name() string
}

// Chain tries scrapers in order, returning the first non-empty result.
type Chain struct {
	scrapers []Scraper
}

// NewChain creates a Chain. Scrapers are tried in the given order.
func NewChain(scrapers ...Scraper) *Chain {
	return &Chain{scrapers: scrapers}
}

func (c *Chain) Name() string { return "chain" }

// Fetch tries each scraper in order. A scraper that succeeds but finds no
// fragments is treated the same as a failure so the next one gets a shot.
func (c *Chain) Fetch(ctx context.Context, url string) ([]Fragment, error) {
	var lastErr error
	for _, s := range c.scrapers {
		frags, err := s.Fetch(ctx, url)
		if err == nil && len(frags) > 0 {
			return frags, nil
		}
		if err != nil {
			zap.L().Debug("scrape: scraper failed, trying next",
				zap.String("scraper", s.Name()),
				zap.String("url", url),
				zap.Error(err),
			)
			lastErr = err
		}
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, failErr(FailParse, url, nil)
}
