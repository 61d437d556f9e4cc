// Package analyze runs the per-URL scrape+extract unit of work and
// combines unit results into mode-dependent aggregate profiles.
package analyze

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/icp-analyzer/internal/model"
	"github.com/sells-group/icp-analyzer/internal/nlp"
	"github.com/sells-group/icp-analyzer/internal/scrape"
)

// Unit analyzes a single URL end to end. It is a total function over
// its input: failures are encoded in the returned URLResult's status,
// never as an error, so one bad URL cannot abort a whole job.
type Unit struct {
	scraper   scrape.Scraper
	extractor *nlp.Extractor
}

// NewUnit wires a scraper (usually a fallback chain) to the extractor.
func NewUnit(scraper scrape.Scraper, extractor *nlp.Extractor) *Unit {
	return &Unit{scraper: scraper, extractor: extractor}
}

// Analyze fetches testimonial fragments for url and extracts features.
func (u *Unit) Analyze(ctx context.Context, url string) model.URLResult {
	res := model.URLResult{URL: url, FetchedAt: time.Now().UTC()}

	frags, err := u.scraper.Fetch(ctx, url)
	if err != nil {
		res.Status = model.URLStatusFetchFailed
		res.Error = err.Error()
		zap.L().Warn("fetch failed",
			zap.String("url", url),
			zap.String("kind", string(scrape.KindOf(err))))
		return res
	}

	texts := make([]string, len(frags))
	for i, f := range frags {
		texts[i] = f.Text
	}

	features, err := u.extractor.Extract(texts)
	if err != nil {
		res.Status = model.URLStatusExtractFailed
		res.Error = err.Error()
		zap.L().Warn("extraction failed",
			zap.String("url", url),
			zap.Int("fragments", len(frags)))
		return res
	}

	res.Status = model.URLStatusOK
	res.Features = features
	zap.L().Debug("url analyzed",
		zap.String("url", url),
		zap.Int("testimonials", features.TestimonialCount),
		zap.Float64("sentiment", features.SentimentScore))
	return res
}
