package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/icp-analyzer/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies
// it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	request     JSONB NOT NULL,
	state       TEXT NOT NULL DEFAULT 'queued',
	result      JSONB,
	marker      TEXT NOT NULL DEFAULT '',
	webhook_url TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	features   JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS webhooks (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	secret     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS deliveries (
	id         TEXT PRIMARY KEY,
	job_id     TEXT NOT NULL REFERENCES jobs(id),
	url        TEXT NOT NULL,
	attempts   INTEGER NOT NULL,
	success    BOOLEAN NOT NULL,
	permanent  BOOLEAN NOT NULL DEFAULT false,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);
CREATE INDEX IF NOT EXISTS idx_snapshots_url_created ON snapshots(url, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_webhooks_created ON webhooks(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_deliveries_job_id ON deliveries(job_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) CreateJob(ctx context.Context, req model.AnalysisRequest, webhookURL string) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal request")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, request, state, webhook_url, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, reqJSON, string(model.JobStateQueued), webhookURL, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}

	return &model.Job{
		ID:         id,
		Request:    req,
		State:      model.JobStateQueued,
		WebhookURL: webhookURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *PostgresStore) UpdateJobState(ctx context.Context, jobID string, state model.JobState, marker string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET state = $1, marker = $2, updated_at = $3 WHERE id = $4`+nonTerminalGuard,
		string(state), marker, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job state %s", jobID)
	}
	return s.checkJobUpdated(ctx, tag, jobID)
}

func (s *PostgresStore) CompleteJob(ctx context.Context, jobID string, state model.JobState, result *model.AnalysisResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET result = $1, state = $2, updated_at = $3 WHERE id = $4`+nonTerminalGuard,
		resultJSON, string(state), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete job %s", jobID)
	}
	return s.checkJobUpdated(ctx, tag, jobID)
}

// checkJobUpdated disambiguates a zero-row job update: the row is
// either missing or already settled in a terminal state.
func (s *PostgresStore) checkJobUpdated(ctx context.Context, tag pgconn.CommandTag, jobID string) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return err
	}
	return eris.Wrapf(ErrTerminal, "job %s", jobID)
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	var j model.Job
	var reqJSON []byte
	var resultNull *[]byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, request, state, result, marker, webhook_url, created_at, updated_at FROM jobs WHERE id = $1`,
		jobID,
	).Scan(&j.ID, &reqJSON, &j.State, &resultNull, &j.Marker, &j.WebhookURL, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "job %s", jobID)
		}
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}

	if err := json.Unmarshal(reqJSON, &j.Request); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal request")
	}
	if resultNull != nil {
		j.Result = &model.AnalysisResult{}
		if err := json.Unmarshal(*resultNull, j.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT id, request, state, result, marker, webhook_url, created_at, updated_at FROM jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.State != "" {
		query += fmt.Sprintf(` AND state = $%d`, argIdx)
		args = append(args, string(filter.State))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var j model.Job
		var reqJSON []byte
		var resultNull *[]byte

		if err := rows.Scan(&j.ID, &reqJSON, &j.State, &resultNull, &j.Marker, &j.WebhookURL, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		if err := json.Unmarshal(reqJSON, &j.Request); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal request")
		}
		if resultNull != nil {
			j.Result = &model.AnalysisResult{}
			if err := json.Unmarshal(*resultNull, j.Result); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal result")
			}
		}
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, url string, features model.Features) (*model.Snapshot, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	featJSON, err := json.Marshal(features)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal features")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO snapshots (id, url, features, created_at) VALUES ($1, $2, $3, $4)`,
		id, url, featJSON, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert snapshot")
	}

	return &model.Snapshot{ID: id, URL: url, Features: features, CreatedAt: now}, nil
}

func (s *PostgresStore) LatestSnapshots(ctx context.Context, urls []string, since time.Time) (map[string]model.Snapshot, error) {
	if len(urls) == 0 {
		return map[string]model.Snapshot{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (url) id, url, features, created_at FROM snapshots
		 WHERE url = ANY($1) AND created_at >= $2
		 ORDER BY url, created_at DESC`,
		urls, since,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest snapshots")
	}
	defer rows.Close()

	out := make(map[string]model.Snapshot)
	for rows.Next() {
		var snap model.Snapshot
		var featJSON []byte
		if err := rows.Scan(&snap.ID, &snap.URL, &featJSON, &snap.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		if err := json.Unmarshal(featJSON, &snap.Features); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal snapshot features")
		}
		out[snap.URL] = snap
	}
	return out, eris.Wrap(rows.Err(), "postgres: latest snapshots iterate")
}

func (s *PostgresStore) RegisterWebhook(ctx context.Context, url, secret string) (*model.WebhookRegistration, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO webhooks (id, url, secret, created_at) VALUES ($1, $2, $3, $4)`,
		id, url, secret, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert webhook")
	}

	return &model.WebhookRegistration{ID: id, URL: url, Secret: secret, CreatedAt: now}, nil
}

func (s *PostgresStore) CurrentWebhook(ctx context.Context) (*model.WebhookRegistration, error) {
	var w model.WebhookRegistration
	err := s.pool.QueryRow(ctx,
		`SELECT id, url, secret, created_at FROM webhooks ORDER BY created_at DESC, id LIMIT 1`,
	).Scan(&w.ID, &w.URL, &w.Secret, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: current webhook")
	}
	return &w, nil
}

func (s *PostgresStore) RecordDelivery(ctx context.Context, rec model.DeliveryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO deliveries (id, job_id, url, attempts, success, permanent, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.JobID, rec.URL, rec.Attempts, rec.Success, rec.Permanent, rec.Error, rec.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert delivery")
}

func (s *PostgresStore) ListDeliveries(ctx context.Context, jobID string) ([]model.DeliveryRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, url, attempts, success, permanent, error, created_at
		 FROM deliveries WHERE job_id = $1 ORDER BY created_at`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list deliveries")
	}
	defer rows.Close()

	var recs []model.DeliveryRecord
	for rows.Next() {
		var r model.DeliveryRecord
		if err := rows.Scan(&r.ID, &r.JobID, &r.URL, &r.Attempts, &r.Success, &r.Permanent, &r.Error, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan delivery")
		}
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list deliveries iterate")
}
