// Package report renders completed jobs into shareable artifacts. The
// excel format is rendered natively; document formats (pdf, pptx, docx)
// are emitted as structured JSON payloads for the downstream document
// service to typeset.
package report

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/icp-analyzer/internal/model"
)

// Format selects the artifact type.
type Format string

const (
	FormatExcel Format = "excel"
	FormatPDF   Format = "pdf"
	FormatPPTX  Format = "pptx"
	FormatDOCX  Format = "docx"
)

// Valid reports whether f is a known report format.
func (f Format) Valid() bool {
	switch f {
	case FormatExcel, FormatPDF, FormatPPTX, FormatDOCX:
		return true
	}
	return false
}

// Branding customizes report headers.
type Branding struct {
	CompanyName string `json:"company_name,omitempty"`
	AccentColor string `json:"accent_color,omitempty"`
}

// Options controls what goes into a report.
type Options struct {
	Format   Format   `json:"format"`
	Branding Branding `json:"branding,omitempty"`

	// Sections limits output to the named sections. Empty means all.
	Sections []string `json:"sections,omitempty"`
}

// Section names accepted in Options.Sections.
const (
	SectionOverview   = "overview"
	SectionProfile    = "profile"
	SectionPainPoints = "pain_points"
	SectionValueProps = "value_propositions"
	SectionMetrics    = "metrics"
	SectionTrend      = "trend"
	SectionAdvanced   = "advanced"
)

// Document is the renderer-independent report content.
type Document struct {
	Title       string        `json:"title"`
	JobID       string        `json:"job_id"`
	Mode        model.Mode    `json:"mode"`
	GeneratedAt time.Time     `json:"generated_at"`
	Branding    Branding      `json:"branding,omitempty"`
	Sections    []Section     `json:"sections"`
}

// Section is one titled table of the report.
type Section struct {
	Name    string     `json:"name"`
	Heading string     `json:"heading"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Build assembles a Document from a terminal job. Jobs that are still
// in flight, or that produced no result at all, cannot be reported on.
func Build(job *model.Job, opts Options) (*Document, error) {
	if !job.State.Terminal() {
		return nil, eris.Errorf("report: job %s is %s, not terminal", job.ID, job.State)
	}
	if job.Result == nil {
		return nil, eris.Errorf("report: job %s has no result", job.ID)
	}

	title := "ICP Analysis"
	if opts.Branding.CompanyName != "" {
		title = opts.Branding.CompanyName + " — ICP Analysis"
	}

	doc := &Document{
		Title:       title,
		JobID:       job.ID,
		Mode:        job.Result.Mode,
		GeneratedAt: time.Now().UTC(),
		Branding:    opts.Branding,
	}

	include := func(name string) bool {
		if len(opts.Sections) == 0 {
			return true
		}
		for _, s := range opts.Sections {
			if s == name {
				return true
			}
		}
		return false
	}

	res := job.Result
	if include(SectionOverview) {
		doc.Sections = append(doc.Sections, overviewSection(res))
	}
	merged := mergedProfile(res)
	if include(SectionProfile) && merged != nil {
		doc.Sections = append(doc.Sections, profileSection(merged))
	}
	if include(SectionPainPoints) && merged != nil {
		doc.Sections = append(doc.Sections, termSection(SectionPainPoints, "Pain Points", merged.PainPoints))
	}
	if include(SectionValueProps) && merged != nil {
		doc.Sections = append(doc.Sections, termSection(SectionValueProps, "Value Propositions", merged.ValueProps))
	}
	if agg := res.Aggregate; agg != nil {
		if include(SectionMetrics) && agg.Comparison != nil {
			doc.Sections = append(doc.Sections, metricsSection(agg.Comparison))
		}
		if include(SectionTrend) && agg.Trend != nil {
			doc.Sections = append(doc.Sections, trendSection(agg.Trend))
		}
		if include(SectionAdvanced) && agg.Advanced != nil {
			doc.Sections = append(doc.Sections, advancedSection(agg.Advanced))
		}
	}

	return doc, nil
}

// mergedProfile picks the feature set the profile sections describe:
// the single URL's features, or the union across successful URLs.
func mergedProfile(res *model.AnalysisResult) *model.Features {
	if res.Aggregate != nil && res.Aggregate.Single != nil {
		return res.Aggregate.Single
	}
	var ok []model.URLResult
	for _, r := range res.PerURL {
		if r.Status == model.URLStatusOK {
			ok = append(ok, r)
		}
	}
	if len(ok) == 0 {
		return nil
	}
	if len(ok) == 1 {
		return ok[0].Features
	}
	// Union via the same merge the pipeline uses for advanced insights.
	merged := &model.Features{}
	for _, r := range ok {
		merged.AudienceTerms = appendUnique(merged.AudienceTerms, r.Features.AudienceTerms)
		merged.IndustryTerms = appendUnique(merged.IndustryTerms, r.Features.IndustryTerms)
		merged.CompanySizeSignals = appendUnique(merged.CompanySizeSignals, r.Features.CompanySizeSignals)
		merged.GeographyTerms = appendUnique(merged.GeographyTerms, r.Features.GeographyTerms)
		merged.PainPoints = appendUnique(merged.PainPoints, r.Features.PainPoints)
		merged.ValueProps = appendUnique(merged.ValueProps, r.Features.ValueProps)
		merged.TestimonialCount += r.Features.TestimonialCount
		merged.SentimentScore += r.Features.SentimentScore
	}
	merged.SentimentScore /= float64(len(ok))
	return merged
}

func appendUnique(dst, src []string) []string {
	for _, s := range src {
		found := false
		for _, d := range dst {
			if d == s {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, s)
		}
	}
	return dst
}

func overviewSection(res *model.AnalysisResult) Section {
	s := Section{
		Name:    SectionOverview,
		Heading: "Analyzed URLs",
		Columns: []string{"URL", "Status", "Testimonials", "Sentiment", "Error"},
	}
	for _, r := range res.PerURL {
		row := []string{r.URL, string(r.Status), "", "", r.Error}
		if r.Features != nil {
			row[2] = strconv.Itoa(r.Features.TestimonialCount)
			row[3] = formatScore(r.Features.SentimentScore)
		}
		s.Rows = append(s.Rows, row)
	}
	return s
}

func profileSection(f *model.Features) Section {
	s := Section{
		Name:    SectionProfile,
		Heading: "Ideal Customer Profile",
		Columns: []string{"Category", "Signals"},
	}
	add := func(label string, terms []string) {
		if len(terms) > 0 {
			s.Rows = append(s.Rows, []string{label, joinTerms(terms)})
		}
	}
	add("Audience", f.AudienceTerms)
	add("Industry", f.IndustryTerms)
	add("Company Size", f.CompanySizeSignals)
	add("Geography", f.GeographyTerms)
	s.Rows = append(s.Rows, []string{"Testimonials", strconv.Itoa(f.TestimonialCount)})
	s.Rows = append(s.Rows, []string{"Sentiment", formatScore(f.SentimentScore)})
	return s
}

func termSection(name, heading string, terms []string) Section {
	s := Section{Name: name, Heading: heading, Columns: []string{"Rank", "Term"}}
	for i, t := range terms {
		s.Rows = append(s.Rows, []string{strconv.Itoa(i + 1), t})
	}
	return s
}

func metricsSection(cmp *model.Comparison) Section {
	m := cmp.Metrics
	return Section{
		Name:    SectionMetrics,
		Heading: "Comparative Metrics",
		Columns: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Min testimonials", strconv.Itoa(m.MinTestimonials)},
			{"Max testimonials", strconv.Itoa(m.MaxTestimonials)},
			{"Avg testimonials", fmt.Sprintf("%.1f", m.AvgTestimonials)},
			{"Most positive", m.MostPositiveURL},
			{"Least positive", m.LeastPositiveURL},
		},
	}
}

func trendSection(t *model.TrendSummary) Section {
	return Section{
		Name:    SectionTrend,
		Heading: fmt.Sprintf("Trend vs. prior %d days", t.WindowDays),
		Columns: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Baseline", t.BaselineAt.Format(time.RFC3339)},
			{"Sentiment delta", formatScore(t.SentimentDelta)},
			{"New pain points", joinTerms(t.NewPainPoints)},
			{"Resolved pain points", joinTerms(t.ResolvedPainPoints)},
		},
	}
}

func advancedSection(a *model.AdvancedInsights) Section {
	return Section{
		Name:    SectionAdvanced,
		Heading: "Advanced Insights",
		Columns: []string{"Field", "Value"},
		Rows: [][]string{
			{"Summary", a.Summary},
			{"Key themes", joinTerms(a.KeyThemes)},
			{"Customer segments", joinTerms(a.CustomerSegments)},
		},
	}
}

func joinTerms(terms []string) string {
	out := ""
	for i, t := range terms {
		if i > 0 {
			out += ", "
		}
		out += t
	}
	return out
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
