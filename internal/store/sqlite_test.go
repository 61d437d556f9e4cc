package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/icp-analyzer/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testRequest() model.AnalysisRequest {
	return model.AnalysisRequest{
		URLs:     []string{"https://a.example.com", "https://b.example.com"},
		Mode:     model.ModeComparative,
		DaysBack: 30,
	}
}

// --- Jobs ---

func TestSQLite_JobLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, testRequest(), "https://hooks.example.com/icp")
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobStateQueued, job.State)

	require.NoError(t, st.UpdateJobState(ctx, job.ID, model.JobStateRunning, ""))

	result := &model.AnalysisResult{
		Mode: model.ModeComparative,
		PerURL: []model.URLResult{
			{URL: "https://a.example.com", Status: model.URLStatusOK, Features: &model.Features{TestimonialCount: 3}},
			{URL: "https://b.example.com", Status: model.URLStatusFetchFailed, Error: "unreachable"},
		},
		FailedURLs:  []string{"https://b.example.com"},
		CompletedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CompleteJob(ctx, job.ID, model.JobStatePartiallyFailed, result))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatePartiallyFailed, got.State)
	assert.Equal(t, testRequest().URLs, got.Request.URLs)
	require.NotNil(t, got.Result)
	require.Len(t, got.Result.PerURL, 2)
	assert.Equal(t, "https://a.example.com", got.Result.PerURL[0].URL)
	assert.Equal(t, 3, got.Result.PerURL[0].Features.TestimonialCount)
	assert.Equal(t, []string{"https://b.example.com"}, got.Result.FailedURLs)
}

func TestSQLite_JobNotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetJob(ctx, "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))

	err = st.UpdateJobState(ctx, "missing", model.JobStateRunning, "")
	assert.True(t, eris.Is(err, ErrNotFound))

	err = st.CompleteJob(ctx, "missing", model.JobStateCompleted, &model.AnalysisResult{})
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_TerminalJobIsImmutable(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, testRequest(), "")
	require.NoError(t, err)
	result := &model.AnalysisResult{Mode: model.ModeComparative, CompletedAt: time.Now().UTC()}
	require.NoError(t, st.CompleteJob(ctx, job.ID, model.JobStateCompleted, result))

	err = st.UpdateJobState(ctx, job.ID, model.JobStateRunning, "")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrTerminal))

	err = st.CompleteJob(ctx, job.ID, model.JobStateFailed, result)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrTerminal))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateCompleted, got.State)
}

func TestSQLite_JobCancelledMarker(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, testRequest(), "")
	require.NoError(t, err)
	require.NoError(t, st.UpdateJobState(ctx, job.ID, model.JobStateFailed, model.CancelledMarker))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateFailed, got.State)
	assert.Equal(t, model.CancelledMarker, got.Marker)
}

func TestSQLite_ListJobsByState(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.CreateJob(ctx, testRequest(), "")
	require.NoError(t, err)
	_, err = st.CreateJob(ctx, testRequest(), "")
	require.NoError(t, err)
	require.NoError(t, st.UpdateJobState(ctx, a.ID, model.JobStateRunning, ""))

	queued, err := st.ListJobs(ctx, JobFilter{State: model.JobStateQueued})
	require.NoError(t, err)
	require.Len(t, queued, 1)

	all, err := st.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	limited, err := st.ListJobs(ctx, JobFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// --- Snapshots ---

func TestSQLite_LatestSnapshots(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.SaveSnapshot(ctx, "https://a.example.com", model.Features{SentimentScore: 0.1})
	require.NoError(t, err)
	// Second snapshot for the same URL must win.
	time.Sleep(10 * time.Millisecond)
	_, err = st.SaveSnapshot(ctx, "https://a.example.com", model.Features{SentimentScore: 0.9})
	require.NoError(t, err)
	_, err = st.SaveSnapshot(ctx, "https://b.example.com", model.Features{SentimentScore: 0.5})
	require.NoError(t, err)

	snaps, err := st.LatestSnapshots(ctx,
		[]string{"https://a.example.com", "https://b.example.com", "https://c.example.com"},
		time.Now().UTC().Add(-time.Hour),
	)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.InDelta(t, 0.9, snaps["https://a.example.com"].Features.SentimentScore, 1e-9)
	assert.InDelta(t, 0.5, snaps["https://b.example.com"].Features.SentimentScore, 1e-9)
}

func TestSQLite_LatestSnapshots_WindowExcludesOld(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.SaveSnapshot(ctx, "https://a.example.com", model.Features{})
	require.NoError(t, err)

	snaps, err := st.LatestSnapshots(ctx, []string{"https://a.example.com"}, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestSQLite_LatestSnapshots_NoURLs(t *testing.T) {
	st := newTestSQLiteStore(t)
	snaps, err := st.LatestSnapshots(context.Background(), nil, time.Now())
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

// --- Webhooks ---

func TestSQLite_WebhookRegistration(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	none, err := st.CurrentWebhook(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = st.RegisterWebhook(ctx, "https://hooks.example.com/old", "s1")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = st.RegisterWebhook(ctx, "https://hooks.example.com/new", "s2")
	require.NoError(t, err)

	cur, err := st.CurrentWebhook(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, "https://hooks.example.com/new", cur.URL)
	assert.Equal(t, "s2", cur.Secret)
}

func TestSQLite_Deliveries(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, testRequest(), "")
	require.NoError(t, err)

	base := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, st.RecordDelivery(ctx, model.DeliveryRecord{
		JobID:     job.ID,
		URL:       "https://hooks.example.com/icp",
		Attempts:  3,
		Success:   true,
		CreatedAt: base,
	}))
	require.NoError(t, st.RecordDelivery(ctx, model.DeliveryRecord{
		JobID:     job.ID,
		URL:       "https://hooks.example.com/icp",
		Attempts:  1,
		Success:   false,
		Permanent: true,
		Error:     "404 Not Found",
		CreatedAt: base.Add(time.Second),
	}))

	recs, err := st.ListDeliveries(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.True(t, recs[0].Success)
	assert.Equal(t, 3, recs[0].Attempts)
	assert.True(t, recs[1].Permanent)
	assert.NotEmpty(t, recs[0].ID)
}
