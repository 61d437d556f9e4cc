// Package pipeline orchestrates analysis jobs: admission, concurrent
// per-URL fan-out, aggregation, snapshot persistence, and terminal
// webhook notification.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/icp-analyzer/internal/analyze"
	"github.com/sells-group/icp-analyzer/internal/model"
	"github.com/sells-group/icp-analyzer/internal/nlp"
	"github.com/sells-group/icp-analyzer/internal/store"
)

// DefaultMaxInFlight caps concurrent per-URL units within one job.
const DefaultMaxInFlight = 4

// ErrNotRunning marks cancellation of a job that is not currently
// executing in this process.
var ErrNotRunning = eris.New("pipeline: job not running")

// Notifier posts terminal-state notifications. Satisfied by
// webhook.Dispatcher.
type Notifier interface {
	Notify(ctx context.Context, job *model.Job) error
}

// Orchestrator owns the job lifecycle. One instance serves both the
// CLI one-shot path and the HTTP server's async path.
type Orchestrator struct {
	store       store.Store
	unit        *analyze.Unit
	aggregator  *analyze.Aggregator
	advanced    *nlp.AdvancedAnalyzer
	notifier    Notifier
	maxInFlight int

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxInFlight overrides the per-job URL concurrency limit.
func WithMaxInFlight(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxInFlight = n
		}
	}
}

// WithAdvancedAnalyzer enables model-backed insight generation for
// requests that ask for it. Without this option include_advanced is
// silently a no-op.
func WithAdvancedAnalyzer(a *nlp.AdvancedAnalyzer) Option {
	return func(o *Orchestrator) { o.advanced = a }
}

// WithNotifier sets the terminal-state notifier.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// New wires the orchestrator.
func New(st store.Store, unit *analyze.Unit, agg *analyze.Aggregator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       st,
		unit:        unit,
		aggregator:  agg,
		maxInFlight: DefaultMaxInFlight,
		running:     make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit validates the request and persists a queued job. Validation
// failures are returned synchronously and never create a job.
func (o *Orchestrator) Submit(ctx context.Context, req model.AnalysisRequest) (*model.Job, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	job, err := o.store.CreateJob(ctx, req, req.WebhookURL)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create job")
	}
	zap.L().Info("job submitted",
		zap.String("job_id", job.ID),
		zap.String("mode", string(req.Mode)),
		zap.Int("urls", len(req.URLs)))
	return job, nil
}

// Run executes a queued job synchronously and returns it in its
// terminal state.
func (o *Orchestrator) Run(ctx context.Context, job *model.Job) (*model.Job, error) {
	runCtx, cancel := context.WithCancel(ctx)
	o.register(job.ID, cancel)
	defer o.unregister(job.ID)
	return o.run(runCtx, job)
}

// Start executes a queued job in the background. Cancel stops it;
// Wait blocks until all started jobs settle.
func (o *Orchestrator) Start(job *model.Job) {
	runCtx, cancel := context.WithCancel(context.Background())
	o.register(job.ID, cancel)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.unregister(job.ID)
		if _, err := o.run(runCtx, job); err != nil {
			zap.L().Error("job run failed",
				zap.String("job_id", job.ID),
				zap.Error(err))
		}
	}()
}

// Cancel aborts a running job; it settles as failed with the
// cancelled marker. Cancelling an already-terminal job is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	o.mu.Lock()
	cancel, ok := o.running[jobID]
	o.mu.Unlock()
	if ok {
		cancel()
		return nil
	}

	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.State.Terminal() {
		return nil
	}
	return eris.Wrapf(ErrNotRunning, "job %s is %s but not executing here", jobID, job.State)
}

// Wait blocks until all background jobs have settled.
func (o *Orchestrator) Wait() { o.wg.Wait() }

func (o *Orchestrator) register(jobID string, cancel context.CancelFunc) {
	o.mu.Lock()
	o.running[jobID] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) unregister(jobID string) {
	o.mu.Lock()
	if cancel, ok := o.running[jobID]; ok {
		cancel()
		delete(o.running, jobID)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) run(ctx context.Context, job *model.Job) (*model.Job, error) {
	log := zap.L().With(zap.String("job_id", job.ID))
	req := job.Request

	if err := o.store.UpdateJobState(ctx, job.ID, model.JobStateRunning, ""); err != nil {
		return nil, eris.Wrap(err, "pipeline: mark running")
	}
	job.State = model.JobStateRunning
	start := time.Now()

	// Fan out per-URL units. Results land at their request index so
	// per_url order always matches submission order.
	perURL := make([]model.URLResult, len(req.URLs))
	g, gCtx := errgroup.WithContext(ctx)
	limit := o.maxInFlight
	if len(req.URLs) < limit {
		limit = len(req.URLs)
	}
	g.SetLimit(limit)

	for i, url := range req.URLs {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			perURL[i] = o.unit.Analyze(gCtx, url)
			return nil
		})
	}
	runErr := g.Wait()

	// Persistence and notification must outlive a cancelled run context.
	settleCtx := context.WithoutCancel(ctx)

	if runErr != nil || ctx.Err() != nil {
		return o.settleCancelled(settleCtx, job, log)
	}

	result := &model.AnalysisResult{
		Mode:        req.Mode,
		PerURL:      perURL,
		CompletedAt: time.Now().UTC(),
	}
	for _, r := range perURL {
		if r.Status != model.URLStatusOK {
			result.FailedURLs = append(result.FailedURLs, r.URL)
		}
	}

	aggregate, err := o.aggregator.Aggregate(ctx, req.Mode, req.DaysBack, perURL)
	if err != nil {
		return o.settleFaulted(settleCtx, job, eris.Wrap(err, "pipeline: aggregate"), log)
	}
	result.Aggregate = aggregate

	if aggregate != nil && req.IncludeAdvanced && o.advanced != nil {
		insights, advErr := o.advanced.Insights(ctx, analyze.MergeFeatures(perURL))
		if advErr != nil {
			// Advanced insight is best-effort: a model failure never
			// fails a job that has valid lexical results.
			log.Warn("advanced insights failed", zap.Error(advErr))
		} else {
			aggregate.Advanced = insights
		}
	}

	// New snapshots become the baseline for future competitive runs.
	for _, r := range perURL {
		if r.Status != model.URLStatusOK {
			continue
		}
		if _, snapErr := o.store.SaveSnapshot(settleCtx, r.URL, *r.Features); snapErr != nil {
			log.Warn("snapshot save failed",
				zap.String("url", r.URL),
				zap.Error(snapErr))
		}
	}

	state := terminalState(perURL)
	if err := o.store.CompleteJob(settleCtx, job.ID, state, result); err != nil {
		return o.settleFaulted(settleCtx, job, eris.Wrap(err, "pipeline: complete job"), log)
	}
	job.State = state
	job.Result = result

	log.Info("job settled",
		zap.String("state", string(state)),
		zap.Int("urls", len(perURL)),
		zap.Int("failed", len(result.FailedURLs)),
		zap.Duration("elapsed", time.Since(start)))

	o.notify(settleCtx, job)
	return job, nil
}

// settleFaulted marks a job that hit a fatal internal fault (store or
// aggregation failure) as failed, so callers never observe a job stuck
// in running. The terminal notification still fires; the original
// fault is returned alongside the settled job.
func (o *Orchestrator) settleFaulted(ctx context.Context, job *model.Job, cause error, log *zap.Logger) (*model.Job, error) {
	log.Error("job faulted", zap.Error(cause))

	if err := o.store.UpdateJobState(ctx, job.ID, model.JobStateFailed, ""); err != nil {
		log.Error("faulted job could not be settled", zap.Error(err))
		return nil, cause
	}
	job.State = model.JobStateFailed
	job.Result = nil

	o.notify(ctx, job)
	return job, cause
}

// settleCancelled records a cancelled job as failed with the cancelled
// marker. In-flight unit results are discarded; no partial result or
// aggregate is persisted.
func (o *Orchestrator) settleCancelled(ctx context.Context, job *model.Job, log *zap.Logger) (*model.Job, error) {
	if err := o.store.UpdateJobState(ctx, job.ID, model.JobStateFailed, model.CancelledMarker); err != nil {
		return nil, eris.Wrap(err, "pipeline: settle cancelled job")
	}
	job.State = model.JobStateFailed
	job.Marker = model.CancelledMarker
	job.Result = nil

	log.Info("job cancelled")
	o.notify(ctx, job)
	return job, nil
}

func (o *Orchestrator) notify(ctx context.Context, job *model.Job) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(ctx, job); err != nil {
		zap.L().Error("terminal notification failed",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}
}

// terminalState maps per-URL outcomes to the job's final state.
func terminalState(perURL []model.URLResult) model.JobState {
	failed := 0
	for _, r := range perURL {
		if r.Status != model.URLStatusOK {
			failed++
		}
	}
	switch {
	case failed == 0:
		return model.JobStateCompleted
	case failed == len(perURL):
		return model.JobStateFailed
	default:
		return model.JobStatePartiallyFailed
	}
}
