package model

import "time"

// Features holds the structured signals extracted from one URL's
// testimonial text. Term slices are sorted lexicographically; PainPoints
// and ValueProps are ranked by salience (frequency desc, then term asc).
// Produced once by the feature extractor and never mutated afterward.
type Features struct {
	AudienceTerms      []string `json:"audience_terms,omitempty"`
	IndustryTerms      []string `json:"industry_terms,omitempty"`
	CompanySizeSignals []string `json:"company_size_signals,omitempty"`
	GeographyTerms     []string `json:"geography_terms,omitempty"`
	PainPoints         []string `json:"pain_points,omitempty"`
	ValueProps         []string `json:"value_propositions,omitempty"`
	SentimentScore     float64  `json:"sentiment_score"`
	TestimonialCount   int      `json:"testimonial_count"`
}

// RankedTerm is a term with its merged occurrence count across URLs.
type RankedTerm struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// CategoryOverlap holds the shared/unique split for one signal category
// across the successful URLs of a comparative analysis.
type CategoryOverlap struct {
	Shared []string            `json:"shared,omitempty"`
	Unique map[string][]string `json:"unique,omitempty"`
}

// ComparativeMetrics summarizes testimonial volume and sentiment spread.
type ComparativeMetrics struct {
	MinTestimonials  int     `json:"min_testimonials"`
	MaxTestimonials  int     `json:"max_testimonials"`
	AvgTestimonials  float64 `json:"avg_testimonials"`
	MostPositiveURL  string  `json:"most_positive_url,omitempty"`
	LeastPositiveURL string  `json:"least_positive_url,omitempty"`
}

// Comparison is the side-by-side view over all successful URL results.
type Comparison struct {
	Categories map[string]CategoryOverlap `json:"categories"`
	PainPoints []RankedTerm               `json:"pain_points,omitempty"`
	ValueProps []RankedTerm               `json:"value_propositions,omitempty"`
	Metrics    ComparativeMetrics         `json:"metrics"`
}

// TrendSummary compares the current run against the most recent stored
// snapshots within the trailing days_back window.
type TrendSummary struct {
	WindowDays         int       `json:"window_days"`
	BaselineAt         time.Time `json:"baseline_at"`
	SentimentDelta     float64   `json:"sentiment_delta"`
	NewPainPoints      []string  `json:"new_pain_points,omitempty"`
	ResolvedPainPoints []string  `json:"resolved_pain_points,omitempty"`
}

// AdvancedInsights is the optional LLM-derived section attached when the
// request sets include_advanced and an Anthropic key is configured.
type AdvancedInsights struct {
	Summary          string   `json:"summary,omitempty"`
	KeyThemes        []string `json:"key_themes,omitempty"`
	CustomerSegments []string `json:"customer_segments,omitempty"`
}

// AggregateProfile is the mode-dependent combined view. Exactly one of
// Single or Comparison is set; Trend only appears for competitive mode
// when a baseline snapshot exists.
type AggregateProfile struct {
	Mode       Mode              `json:"mode"`
	Single     *Features         `json:"single,omitempty"`
	Comparison *Comparison       `json:"comparison,omitempty"`
	Trend      *TrendSummary     `json:"trend,omitempty"`
	Advanced   *AdvancedInsights `json:"advanced,omitempty"`
}

// Snapshot is a stored per-URL feature set from a previous run, used as
// the competitive-trend baseline.
type Snapshot struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Features  Features  `json:"features"`
	CreatedAt time.Time `json:"created_at"`
}
