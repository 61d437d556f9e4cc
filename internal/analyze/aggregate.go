package analyze

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/icp-analyzer/internal/model"
	"github.com/sells-group/icp-analyzer/internal/nlp"
)

// SnapshotSource supplies the most recent stored per-URL feature sets
// within a trailing window, used as the competitive-trend baseline.
type SnapshotSource interface {
	LatestSnapshots(ctx context.Context, urls []string, since time.Time) (map[string]model.Snapshot, error)
}

// Aggregator combines per-URL results into the mode-dependent profile.
type Aggregator struct {
	snapshots SnapshotSource
	now       func() time.Time
}

// NewAggregator builds an aggregator. snapshots may be nil, in which
// case competitive runs simply omit the trend section.
func NewAggregator(snapshots SnapshotSource) *Aggregator {
	return &Aggregator{snapshots: snapshots, now: time.Now}
}

// Aggregate builds the profile for the given mode from per-URL results.
// Returns nil when no URL succeeded; the caller encodes that as a job
// with no aggregate rather than an error.
func (a *Aggregator) Aggregate(ctx context.Context, mode model.Mode, daysBack int, perURL []model.URLResult) (*model.AggregateProfile, error) {
	ok := successful(perURL)
	if len(ok) == 0 {
		return nil, nil
	}

	profile := &model.AggregateProfile{Mode: mode}
	switch mode {
	case model.ModeSingle:
		profile.Single = ok[0].Features
	case model.ModeComparative:
		profile.Comparison = buildComparison(ok)
	case model.ModeCompetitive:
		profile.Comparison = buildComparison(ok)
		trend, err := a.buildTrend(ctx, daysBack, ok)
		if err != nil {
			return nil, err
		}
		profile.Trend = trend
	default:
		return nil, eris.Errorf("analyze: unknown mode %q", mode)
	}
	return profile, nil
}

// MergeFeatures unions signals across successful results into a single
// feature set, for report rendering and advanced-insight prompting.
func MergeFeatures(perURL []model.URLResult) *model.Features {
	ok := successful(perURL)
	if len(ok) == 0 {
		return nil
	}
	if len(ok) == 1 {
		return ok[0].Features
	}

	merged := &model.Features{
		AudienceTerms:      unionSet(ok, func(f *model.Features) []string { return f.AudienceTerms }),
		IndustryTerms:      unionSet(ok, func(f *model.Features) []string { return f.IndustryTerms }),
		CompanySizeSignals: unionSet(ok, func(f *model.Features) []string { return f.CompanySizeSignals }),
		GeographyTerms:     unionSet(ok, func(f *model.Features) []string { return f.GeographyTerms }),
		PainPoints:         rankedNames(mergeRanked(ok, func(f *model.Features) []string { return f.PainPoints })),
		ValueProps:         rankedNames(mergeRanked(ok, func(f *model.Features) []string { return f.ValueProps })),
	}
	for _, r := range ok {
		merged.TestimonialCount += r.Features.TestimonialCount
		merged.SentimentScore += r.Features.SentimentScore
	}
	merged.SentimentScore /= float64(len(ok))
	return merged
}

func unionSet(ok []model.URLResult, pick func(*model.Features) []string) []string {
	seen := make(map[string]struct{})
	for _, r := range ok {
		for _, t := range pick(r.Features) {
			seen[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func successful(perURL []model.URLResult) []model.URLResult {
	out := make([]model.URLResult, 0, len(perURL))
	for _, r := range perURL {
		if r.Status == model.URLStatusOK && r.Features != nil {
			out = append(out, r)
		}
	}
	return out
}

func buildComparison(ok []model.URLResult) *model.Comparison {
	cmp := &model.Comparison{
		Categories: map[string]model.CategoryOverlap{
			"audience":     overlap(ok, func(f *model.Features) []string { return f.AudienceTerms }),
			"industry":     overlap(ok, func(f *model.Features) []string { return f.IndustryTerms }),
			"company_size": overlap(ok, func(f *model.Features) []string { return f.CompanySizeSignals }),
			"geography":    overlap(ok, func(f *model.Features) []string { return f.GeographyTerms }),
		},
		PainPoints: mergeRanked(ok, func(f *model.Features) []string { return f.PainPoints }),
		ValueProps: mergeRanked(ok, func(f *model.Features) []string { return f.ValueProps }),
	}

	m := model.ComparativeMetrics{MinTestimonials: ok[0].Features.TestimonialCount}
	var total int
	for _, r := range ok {
		n := r.Features.TestimonialCount
		total += n
		if n < m.MinTestimonials {
			m.MinTestimonials = n
		}
		if n > m.MaxTestimonials {
			m.MaxTestimonials = n
		}
	}
	m.AvgTestimonials = float64(total) / float64(len(ok))
	m.MostPositiveURL, m.LeastPositiveURL = sentimentExtremes(ok)
	cmp.Metrics = m
	return cmp
}

// sentimentExtremes picks the most and least positive URLs. Ties go to
// the lexicographically smaller URL so output is stable across runs.
func sentimentExtremes(ok []model.URLResult) (most, least string) {
	most, least = ok[0].URL, ok[0].URL
	hi, lo := ok[0].Features.SentimentScore, ok[0].Features.SentimentScore
	for _, r := range ok[1:] {
		s := r.Features.SentimentScore
		if s > hi || (s == hi && r.URL < most) {
			hi, most = s, r.URL
		}
		if s < lo || (s == lo && r.URL < least) {
			lo, least = s, r.URL
		}
	}
	return most, least
}

// overlap splits one category into terms shared by every URL and terms
// unique to exactly one.
func overlap(ok []model.URLResult, pick func(*model.Features) []string) model.CategoryOverlap {
	counts := make(map[string]int)
	for _, r := range ok {
		for _, t := range pick(r.Features) {
			counts[t]++
		}
	}

	var shared []string
	for t, n := range counts {
		if n == len(ok) {
			shared = append(shared, t)
		}
	}
	sort.Strings(shared)

	unique := make(map[string][]string)
	for _, r := range ok {
		var only []string
		for _, t := range pick(r.Features) {
			if counts[t] == 1 {
				only = append(only, t)
			}
		}
		if len(only) > 0 {
			sort.Strings(only)
			unique[r.URL] = only
		}
	}
	if len(unique) == 0 {
		unique = nil
	}
	return model.CategoryOverlap{Shared: shared, Unique: unique}
}

// mergeRanked counts how many URLs mention each term and orders by
// count descending, term ascending.
func mergeRanked(ok []model.URLResult, pick func(*model.Features) []string) []model.RankedTerm {
	counts := make(map[string]int)
	for _, r := range ok {
		for _, t := range pick(r.Features) {
			counts[t]++
		}
	}
	out := make([]model.RankedTerm, 0, len(counts))
	for t, n := range counts {
		out = append(out, model.RankedTerm{Term: t, Count: n})
	}
	nlp.SortRanked(out)
	return out
}

func rankedNames(terms []model.RankedTerm) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = t.Term
	}
	return out
}

// buildTrend compares current sentiment and pain points against stored
// snapshots inside the trailing window. A missing baseline is not an
// error: first-ever runs return no trend section at all.
func (a *Aggregator) buildTrend(ctx context.Context, daysBack int, ok []model.URLResult) (*model.TrendSummary, error) {
	if a.snapshots == nil {
		return nil, nil
	}
	urls := make([]string, len(ok))
	for i, r := range ok {
		urls[i] = r.URL
	}
	since := a.now().UTC().AddDate(0, 0, -daysBack)
	baseline, err := a.snapshots.LatestSnapshots(ctx, urls, since)
	if err != nil {
		return nil, eris.Wrap(err, "analyze: loading baseline snapshots")
	}
	if len(baseline) == 0 {
		zap.L().Info("no baseline snapshots in window, skipping trend",
			zap.Int("days_back", daysBack),
			zap.Int("urls", len(urls)))
		return nil, nil
	}

	var curSent, baseSent float64
	var matched int
	curPains := make(map[string]struct{})
	basePains := make(map[string]struct{})
	var baselineAt time.Time
	for _, r := range ok {
		snap, found := baseline[r.URL]
		if !found {
			continue
		}
		matched++
		curSent += r.Features.SentimentScore
		baseSent += snap.Features.SentimentScore
		for _, p := range r.Features.PainPoints {
			curPains[p] = struct{}{}
		}
		for _, p := range snap.Features.PainPoints {
			basePains[p] = struct{}{}
		}
		if snap.CreatedAt.After(baselineAt) {
			baselineAt = snap.CreatedAt
		}
	}
	if matched == 0 {
		return nil, nil
	}

	t := &model.TrendSummary{
		WindowDays:     daysBack,
		BaselineAt:     baselineAt,
		SentimentDelta: (curSent - baseSent) / float64(matched),
	}
	for p := range curPains {
		if _, had := basePains[p]; !had {
			t.NewPainPoints = append(t.NewPainPoints, p)
		}
	}
	for p := range basePains {
		if _, has := curPains[p]; !has {
			t.ResolvedPainPoints = append(t.ResolvedPainPoints, p)
		}
	}
	sort.Strings(t.NewPainPoints)
	sort.Strings(t.ResolvedPainPoints)
	return t, nil
}
