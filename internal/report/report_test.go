package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/icp-analyzer/internal/model"
)

func reportableJob() *model.Job {
	return &model.Job{
		ID:    "job-42",
		State: model.JobStateCompleted,
		Result: &model.AnalysisResult{
			Mode: model.ModeComparative,
			PerURL: []model.URLResult{
				{
					URL:    "https://a.example.com",
					Status: model.URLStatusOK,
					Features: &model.Features{
						AudienceTerms:    []string{"sales teams"},
						PainPoints:       []string{"manual work", "pricing"},
						ValueProps:       []string{"efficiency"},
						SentimentScore:   0.6,
						TestimonialCount: 4,
					},
				},
				{URL: "https://b.example.com", Status: model.URLStatusFetchFailed, Error: "unreachable"},
			},
			Aggregate: &model.AggregateProfile{
				Mode: model.ModeComparative,
				Comparison: &model.Comparison{
					Categories: map[string]model.CategoryOverlap{},
					Metrics: model.ComparativeMetrics{
						MinTestimonials: 4, MaxTestimonials: 4, AvgTestimonials: 4,
						MostPositiveURL: "https://a.example.com", LeastPositiveURL: "https://a.example.com",
					},
				},
			},
			FailedURLs:  []string{"https://b.example.com"},
			CompletedAt: time.Now().UTC(),
		},
	}
}

func TestBuild_Sections(t *testing.T) {
	doc, err := Build(reportableJob(), Options{Format: FormatExcel})
	require.NoError(t, err)

	var names []string
	for _, s := range doc.Sections {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{SectionOverview, SectionProfile, SectionPainPoints, SectionValueProps, SectionMetrics}, names)

	overview := doc.Sections[0]
	require.Len(t, overview.Rows, 2)
	assert.Equal(t, "https://a.example.com", overview.Rows[0][0])
	assert.Equal(t, "4", overview.Rows[0][2])
	assert.Equal(t, "unreachable", overview.Rows[1][4])
}

func TestBuild_SectionFilter(t *testing.T) {
	doc, err := Build(reportableJob(), Options{
		Format:   FormatExcel,
		Sections: []string{SectionPainPoints},
	})
	require.NoError(t, err)
	require.Len(t, doc.Sections, 1)
	assert.Equal(t, SectionPainPoints, doc.Sections[0].Name)
	assert.Equal(t, [][]string{{"1", "manual work"}, {"2", "pricing"}}, doc.Sections[0].Rows)
}

func TestBuild_Branding(t *testing.T) {
	doc, err := Build(reportableJob(), Options{
		Format:   FormatPDF,
		Branding: Branding{CompanyName: "Sells Group"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Sells Group — ICP Analysis", doc.Title)
}

func TestBuild_RejectsNonTerminalJob(t *testing.T) {
	job := reportableJob()
	job.State = model.JobStateRunning
	_, err := Build(job, Options{Format: FormatExcel})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not terminal")
}

func TestExcelRenderer_RoundTrip(t *testing.T) {
	doc, err := Build(reportableJob(), Options{Format: FormatExcel})
	require.NoError(t, err)

	data, err := (&ExcelRenderer{}).Render(doc)
	require.NoError(t, err)

	f, err := xlsx.OpenBinary(data)
	require.NoError(t, err)
	require.Len(t, f.Sheets, len(doc.Sections))
	assert.Equal(t, "Analyzed URLs", f.Sheets[0].Name)

	// Header row plus one row per URL.
	require.Len(t, f.Sheets[0].Rows, 3)
	assert.Equal(t, "URL", f.Sheets[0].Rows[0].Cells[0].String())
	assert.Equal(t, "https://a.example.com", f.Sheets[0].Rows[1].Cells[0].String())
}

func TestPayloadRenderer_TargetFormat(t *testing.T) {
	doc, err := Build(reportableJob(), Options{Format: FormatPPTX})
	require.NoError(t, err)

	r, err := RendererFor(FormatPPTX)
	require.NoError(t, err)
	data, err := r.Render(doc)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "pptx", decoded["target_format"])
	assert.Equal(t, "job-42", decoded["job_id"])
	assert.Equal(t, "application/json", r.ContentType())
}

func TestService_GenerateToLocalStore(t *testing.T) {
	dir := t.TempDir()
	st, err := NewLocalStore(filepath.Join(dir, "artifacts"))
	require.NoError(t, err)

	ref, err := NewService(st).Generate(context.Background(), reportableJob(), Options{Format: FormatExcel})
	require.NoError(t, err)
	assert.Contains(t, ref.Filename, "icp-job-42")
	assert.Greater(t, ref.Size, 0)

	data, err := os.ReadFile(filepath.Join(dir, "artifacts", ref.Filename))
	require.NoError(t, err)
	assert.Len(t, data, ref.Size)
}

func TestService_UnknownFormat(t *testing.T) {
	st, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	_, err = NewService(st).Generate(context.Background(), reportableJob(), Options{Format: "csv"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}
