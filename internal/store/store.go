// Package store persists jobs, feature snapshots, webhook registrations
// and delivery records. Two backends implement the same interface:
// SQLite for single-node deployments and Postgres for shared ones.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/icp-analyzer/internal/model"
)

// ErrNotFound marks lookups of missing rows. Callers distinguish it
// from infrastructure failures with eris.Is.
var ErrNotFound = eris.New("store: not found")

// ErrTerminal marks attempted transitions of a job that has already
// settled. Terminal states are immutable.
var ErrTerminal = eris.New("store: job already terminal")

// nonTerminalGuard keeps job updates from touching settled rows. Both
// backends append it to their UPDATE statements.
const nonTerminalGuard = ` AND state NOT IN ('completed', 'partially_failed', 'failed')`

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	State  model.JobState `json:"state,omitempty"`
	Limit  int            `json:"limit,omitempty"`
	Offset int            `json:"offset,omitempty"`
}

// Store defines the persistence interface for the analysis pipeline.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, req model.AnalysisRequest, webhookURL string) (*model.Job, error)
	UpdateJobState(ctx context.Context, jobID string, state model.JobState, marker string) error
	CompleteJob(ctx context.Context, jobID string, state model.JobState, result *model.AnalysisResult) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)

	// Feature snapshots (competitive-trend baseline)
	SaveSnapshot(ctx context.Context, url string, features model.Features) (*model.Snapshot, error)
	LatestSnapshots(ctx context.Context, urls []string, since time.Time) (map[string]model.Snapshot, error)

	// Webhooks
	RegisterWebhook(ctx context.Context, url, secret string) (*model.WebhookRegistration, error)
	CurrentWebhook(ctx context.Context) (*model.WebhookRegistration, error)
	RecordDelivery(ctx context.Context, rec model.DeliveryRecord) error
	ListDeliveries(ctx context.Context, jobID string) ([]model.DeliveryRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
