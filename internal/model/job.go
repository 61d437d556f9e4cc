package model

import "time"

// JobState is the lifecycle state of an admitted analysis request.
type JobState string

const (
	JobStateQueued          JobState = "queued"
	JobStateRunning         JobState = "running"
	JobStateCompleted       JobState = "completed"
	JobStatePartiallyFailed JobState = "partially_failed"
	JobStateFailed          JobState = "failed"
)

// Terminal reports whether the state permits no further transitions.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateCompleted, JobStatePartiallyFailed, JobStateFailed:
		return true
	}
	return false
}

// CancelledMarker is recorded on jobs that failed due to caller
// cancellation rather than per-URL errors.
const CancelledMarker = "cancelled"

// Job is one admitted analysis request and its lifecycle state. Only the
// orchestrator mutates a Job; once a terminal state is reached the job is
// immutable.
type Job struct {
	ID         string          `json:"id"`
	Request    AnalysisRequest `json:"request"`
	State      JobState        `json:"state"`
	Result     *AnalysisResult `json:"result,omitempty"`
	Marker     string          `json:"marker,omitempty"`
	WebhookURL string          `json:"webhook_url,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// JobSummary is the payload posted to the registered webhook on every
// terminal transition.
type JobSummary struct {
	JobID       string    `json:"job_id"`
	State       JobState  `json:"state"`
	CompletedAt time.Time `json:"completed_at"`
	FailedURLs  []string  `json:"failed_urls,omitempty"`
}

// Summary builds the webhook payload for a terminal job.
func (j *Job) Summary() JobSummary {
	s := JobSummary{
		JobID: j.ID,
		State: j.State,
	}
	if j.Result != nil {
		s.CompletedAt = j.Result.CompletedAt
		s.FailedURLs = j.Result.FailedURLs
	}
	return s
}

// WebhookRegistration is a stored webhook endpoint. The secret signs the
// delivery payload.
type WebhookRegistration struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// DeliveryRecord is the stored outcome of one webhook notification,
// written whether delivery eventually succeeded or not.
type DeliveryRecord struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	URL       string    `json:"url"`
	Attempts  int       `json:"attempts"`
	Success   bool      `json:"success"`
	Permanent bool      `json:"permanent,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ArtifactRef points at a generated report artifact.
type ArtifactRef struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	URL         string    `json:"url,omitempty"`
	Size        int       `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExportConfirmation is returned by CRM exporters on success.
type ExportConfirmation struct {
	Platform   string    `json:"platform"`
	RecordID   string    `json:"record_id,omitempty"`
	ExportedAt time.Time `json:"exported_at"`
}
