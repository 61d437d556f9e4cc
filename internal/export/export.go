// Package export pushes completed ICP profiles into CRM platforms.
package export

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/icp-analyzer/internal/analyze"
	"github.com/sells-group/icp-analyzer/internal/model"
)

// ErrUnknownPlatform marks export requests naming a platform no
// exporter is registered for. Surfaced to callers as a validation
// failure, not a server error.
var ErrUnknownPlatform = eris.New("export: unknown platform")

// Exporter pushes one job's profile to a CRM.
type Exporter interface {
	Platform() string
	Export(ctx context.Context, job *model.Job) (*model.ExportConfirmation, error)
}

// Registry holds the configured exporters by platform name.
type Registry struct {
	exporters map[string]Exporter
}

// NewRegistry builds a registry from the enabled exporters.
func NewRegistry(exporters ...Exporter) *Registry {
	r := &Registry{exporters: make(map[string]Exporter, len(exporters))}
	for _, e := range exporters {
		r.exporters[e.Platform()] = e
	}
	return r
}

// Get returns the exporter for platform, or ErrUnknownPlatform.
func (r *Registry) Get(platform string) (Exporter, error) {
	e, ok := r.exporters[strings.ToLower(platform)]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownPlatform, "%q (configured: %s)",
			platform, strings.Join(r.Platforms(), ", "))
	}
	return e, nil
}

// Platforms lists the registered platform names in sorted order.
func (r *Registry) Platforms() []string {
	out := make([]string, 0, len(r.exporters))
	for name := range r.exporters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// profileFields flattens a terminal job into the field set both CRMs
// receive. Returns an error for jobs with nothing to export.
func profileFields(job *model.Job) (map[string]string, error) {
	if !job.State.Terminal() {
		return nil, eris.Errorf("export: job %s is %s, not terminal", job.ID, job.State)
	}
	if job.Result == nil {
		return nil, eris.Errorf("export: job %s has no result", job.ID)
	}
	merged := analyze.MergeFeatures(job.Result.PerURL)
	if merged == nil {
		return nil, eris.Errorf("export: job %s has no successful urls", job.ID)
	}

	return map[string]string{
		"job_id":             job.ID,
		"mode":               string(job.Result.Mode),
		"audience":           sortedJoin(merged.AudienceTerms),
		"industry":           sortedJoin(merged.IndustryTerms),
		"company_size":       sortedJoin(merged.CompanySizeSignals),
		"geography":          sortedJoin(merged.GeographyTerms),
		"pain_points":        strings.Join(merged.PainPoints, "; "),
		"value_propositions": strings.Join(merged.ValueProps, "; "),
		"sentiment_score":    strconv.FormatFloat(merged.SentimentScore, 'f', 2, 64),
		"testimonial_count":  strconv.Itoa(merged.TestimonialCount),
	}, nil
}

// sortedJoin joins set-valued categories in lexical order. Single-URL
// jobs hand back the unit's feature slices directly, so sort a copy
// rather than the shared slice. Ranked categories keep their salience
// order and never pass through here.
func sortedJoin(terms []string) string {
	out := append([]string(nil), terms...)
	sort.Strings(out)
	return strings.Join(out, "; ")
}
