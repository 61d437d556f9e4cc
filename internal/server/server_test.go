package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/icp-analyzer/internal/analyze"
	"github.com/sells-group/icp-analyzer/internal/export"
	"github.com/sells-group/icp-analyzer/internal/model"
	"github.com/sells-group/icp-analyzer/internal/nlp"
	"github.com/sells-group/icp-analyzer/internal/pipeline"
	"github.com/sells-group/icp-analyzer/internal/report"
	"github.com/sells-group/icp-analyzer/internal/scrape"
	"github.com/sells-group/icp-analyzer/internal/store"
)

const testToken = "test-token"

type fixtureScraper struct {
	pages map[string][]scrape.Fragment
}

func (s *fixtureScraper) Name() string { return "fixture" }

func (s *fixtureScraper) Fetch(_ context.Context, url string) ([]scrape.Fragment, error) {
	frags, ok := s.pages[url]
	if !ok {
		return nil, eris.Errorf("no fixture for %s", url)
	}
	return frags, nil
}

type stubExporter struct{}

func (stubExporter) Platform() string { return "salesforce" }

func (stubExporter) Export(_ context.Context, job *model.Job) (*model.ExportConfirmation, error) {
	return &model.ExportConfirmation{
		Platform:   "salesforce",
		RecordID:   "rec-" + job.ID,
		ExportedAt: time.Now().UTC(),
	}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	lex, err := nlp.DefaultLexicon()
	require.NoError(t, err)

	scraper := &fixtureScraper{pages: map[string][]scrape.Fragment{
		"https://a.example.com": {
			{Text: "Our sales team loves the automation, we save time every week.", Source: "blockquote"},
			{Text: "Great product, easy to use and the support is fantastic.", Source: "blockquote"},
		},
		"https://b.example.com": {
			{Text: "The marketing team finally has visibility, dashboards everywhere.", Source: "blockquote"},
		},
	}}

	orch := pipeline.New(st,
		analyze.NewUnit(scraper, nlp.NewExtractor(lex, 3)),
		analyze.NewAggregator(st))
	artifacts, err := report.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	reports := report.NewService(artifacts)
	exports := export.NewRegistry(stubExporter{})

	srv := httptest.NewServer(New(orch, st, reports, exports, testToken).Router())
	t.Cleanup(srv.Close)
	return srv, st
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth_NoAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth_Rejected(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/jobs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/jobs", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAnalyze_Sync(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/analyze", model.AnalysisRequest{
		URLs: []string{"https://a.example.com"},
		Mode: model.ModeSingle,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	job := decode[model.Job](t, resp)
	assert.Equal(t, model.JobStateCompleted, job.State)
	require.NotNil(t, job.Result)
	require.Len(t, job.Result.PerURL, 1)
	assert.NotNil(t, job.Result.Aggregate)
}

func TestAnalyze_ValidationError(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/analyze", model.AnalysisRequest{
		URLs: []string{"https://a.example.com"},
		Mode: "sideways",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decode[map[string]string](t, resp)
	assert.Contains(t, body["error"], "sideways")
}

func TestAnalyze_Async(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/analyze?async=true", model.AnalysisRequest{
		URLs: []string{"https://a.example.com", "https://b.example.com"},
		Mode: model.ModeComparative,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	job := decode[model.Job](t, resp)
	require.NotEmpty(t, job.ID)

	deadline := time.Now().Add(10 * time.Second)
	for {
		resp := doJSON(t, http.MethodGet, srv.URL+"/api/jobs/"+job.ID, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decode[model.Job](t, resp)
		if got.State.Terminal() {
			assert.Equal(t, model.JobStateCompleted, got.State)
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s never settled, state %s", job.ID, got.State)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/jobs/missing", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancel_UnknownJob(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/jobs/missing/cancel", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancel_TerminalJobIsNoOp(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/analyze", model.AnalysisRequest{
		URLs: []string{"https://a.example.com"},
		Mode: model.ModeSingle,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	job := decode[model.Job](t, resp)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/jobs/"+job.ID+"/cancel", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestRegisterWebhook(t *testing.T) {
	srv, st := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/webhook", map[string]string{
		"url":    "https://hooks.example.com/icp",
		"secret": "s3cret",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	reg := decode[model.WebhookRegistration](t, resp)
	assert.Equal(t, "https://hooks.example.com/icp", reg.URL)
	assert.Empty(t, reg.Secret) // never serialized

	stored, err := st.CurrentWebhook(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "s3cret", stored.Secret)
}

func TestRegisterWebhook_MissingSecret(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/webhook", map[string]string{
		"url": "https://hooks.example.com/icp",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReport_Excel(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/analyze", model.AnalysisRequest{
		URLs: []string{"https://a.example.com"},
		Mode: model.ModeSingle,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	job := decode[model.Job](t, resp)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/report", map[string]any{
		"job_id": job.ID,
		"format": "excel",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	ref := decode[model.ArtifactRef](t, resp)
	assert.Contains(t, ref.Filename, job.ID)
	assert.Greater(t, ref.Size, 0)
}

func TestReport_UnknownFormat(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/report", map[string]any{
		"job_id": "whatever",
		"format": "csv",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExport_Flow(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/analyze", model.AnalysisRequest{
		URLs: []string{"https://a.example.com"},
		Mode: model.ModeSingle,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	job := decode[model.Job](t, resp)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/export", map[string]string{
		"job_id":   job.ID,
		"platform": "salesforce",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	conf := decode[model.ExportConfirmation](t, resp)
	assert.Equal(t, "rec-"+job.ID, conf.RecordID)
}

func TestExport_UnknownPlatform(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/export", map[string]string{
		"job_id":   "whatever",
		"platform": "pipedrive",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
