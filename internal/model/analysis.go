// Package model defines the core data types shared across the analysis
// pipeline: requests, per-URL results, aggregate profiles, and jobs.
package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Mode selects how per-URL results are combined.
type Mode string

const (
	ModeSingle      Mode = "single"
	ModeComparative Mode = "comparative"
	ModeCompetitive Mode = "competitive"
)

// Valid reports whether m is a known analysis mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeSingle, ModeComparative, ModeCompetitive:
		return true
	}
	return false
}

// DefaultDaysBack is the trailing window for competitive trend analysis
// when the request does not specify one.
const DefaultDaysBack = 30

// ErrValidation marks request validation failures. These are surfaced
// synchronously to the caller; no Job is ever created for them.
var ErrValidation = eris.New("model: invalid analysis request")

// AnalysisRequest describes one analysis submission.
type AnalysisRequest struct {
	URLs            []string `json:"urls"`
	Mode            Mode     `json:"mode"`
	DaysBack        int      `json:"days_back,omitempty"`
	IncludeAdvanced bool     `json:"include_advanced,omitempty"`

	// WebhookURL optionally overrides the registered webhook for this job.
	WebhookURL string `json:"webhook_url,omitempty"`
}

// Normalize validates the request in place: URLs are canonicalized and
// deduplicated (first occurrence wins, order preserved), the mode/URL-count
// invariant is enforced, and defaults are applied. Returns an error
// wrapping ErrValidation on any violation.
func (r *AnalysisRequest) Normalize() error {
	if !r.Mode.Valid() {
		return eris.Wrapf(ErrValidation, "unknown mode %q", r.Mode)
	}
	if len(r.URLs) == 0 {
		return eris.Wrap(ErrValidation, "at least one url is required")
	}
	if r.DaysBack < 0 {
		return eris.Wrapf(ErrValidation, "days_back must be >= 0, got %d", r.DaysBack)
	}
	if r.DaysBack == 0 {
		r.DaysBack = DefaultDaysBack
	}

	seen := make(map[string]struct{}, len(r.URLs))
	deduped := make([]string, 0, len(r.URLs))
	for _, raw := range r.URLs {
		u, err := NormalizeURL(raw)
		if err != nil {
			return eris.Wrapf(ErrValidation, "url %q: %v", raw, err)
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		deduped = append(deduped, u)
	}
	r.URLs = deduped

	switch r.Mode {
	case ModeSingle:
		if len(r.URLs) != 1 {
			return eris.Wrapf(ErrValidation, "mode single requires exactly one url, got %d", len(r.URLs))
		}
	case ModeComparative, ModeCompetitive:
		if len(r.URLs) < 2 {
			return eris.Wrapf(ErrValidation, "mode %s requires at least two urls, got %d", r.Mode, len(r.URLs))
		}
	}

	return nil
}

// URLStatus is the per-URL outcome within a job.
type URLStatus string

const (
	URLStatusOK            URLStatus = "ok"
	URLStatusFetchFailed   URLStatus = "fetch_failed"
	URLStatusExtractFailed URLStatus = "extract_failed"
)

// URLResult is the immutable outcome of analyzing one URL. Features is nil
// unless Status is ok.
type URLResult struct {
	URL       string    `json:"url"`
	Status    URLStatus `json:"status"`
	Features  *Features `json:"features,omitempty"`
	Error     string    `json:"error,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// AnalysisResult is the canonical output of one job. PerURL preserves
// request-submission order and always has one entry per requested URL.
// Aggregate is nil only when every URL failed.
type AnalysisResult struct {
	Mode        Mode              `json:"mode"`
	PerURL      []URLResult       `json:"per_url"`
	Aggregate   *AggregateProfile `json:"aggregate,omitempty"`
	FailedURLs  []string          `json:"failed_urls,omitempty"`
	CompletedAt time.Time         `json:"completed_at"`
}

// Result lookup by URL.
func (r *AnalysisResult) ResultFor(url string) *URLResult {
	for i := range r.PerURL {
		if r.PerURL[i].URL == url {
			return &r.PerURL[i]
		}
	}
	return nil
}
