package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/icp-analyzer/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	request     TEXT NOT NULL,
	state       TEXT NOT NULL DEFAULT 'queued',
	result      TEXT,
	marker      TEXT NOT NULL DEFAULT '',
	webhook_url TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	features   TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS webhooks (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	secret     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS deliveries (
	id         TEXT PRIMARY KEY,
	job_id     TEXT NOT NULL REFERENCES jobs(id),
	url        TEXT NOT NULL,
	attempts   INTEGER NOT NULL,
	success    INTEGER NOT NULL,
	permanent  INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);
CREATE INDEX IF NOT EXISTS idx_snapshots_url_created ON snapshots(url, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_webhooks_created ON webhooks(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_deliveries_job_id ON deliveries(job_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, req model.AnalysisRequest, webhookURL string) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal request")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, request, state, webhook_url, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(reqJSON), string(model.JobStateQueued), webhookURL, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
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

func (s *SQLiteStore) UpdateJobState(ctx context.Context, jobID string, state model.JobState, marker string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET state = ?, marker = ?, updated_at = ? WHERE id = ?`+nonTerminalGuard,
		string(state), marker, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job state %s", jobID)
	}
	return s.checkJobUpdated(ctx, res, jobID)
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, jobID string, state model.JobState, result *model.AnalysisResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET result = ?, state = ?, updated_at = ? WHERE id = ?`+nonTerminalGuard,
		string(resultJSON), string(state), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete job %s", jobID)
	}
	return s.checkJobUpdated(ctx, res, jobID)
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, request, state, result, marker, webhook_url, created_at, updated_at FROM jobs WHERE id = ?`,
		jobID,
	)
	return scanJob(row)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT id, request, state, result, marker, webhook_url, created_at, updated_at FROM jobs WHERE 1=1`
	var args []any

	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, url string, features model.Features) (*model.Snapshot, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	featJSON, err := json.Marshal(features)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal features")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, url, features, created_at) VALUES (?, ?, ?, ?)`,
		id, url, string(featJSON), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert snapshot")
	}

	return &model.Snapshot{ID: id, URL: url, Features: features, CreatedAt: now}, nil
}

func (s *SQLiteStore) LatestSnapshots(ctx context.Context, urls []string, since time.Time) (map[string]model.Snapshot, error) {
	if len(urls) == 0 {
		return map[string]model.Snapshot{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(urls)), ",")
	args := make([]any, 0, len(urls)+1)
	for _, u := range urls {
		args = append(args, u)
	}
	args = append(args, since)

	// Window over (url, created_at) keeps only the newest row per URL.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, features, created_at FROM snapshots
		 WHERE url IN (`+placeholders+`) AND created_at >= ?
		 ORDER BY url, created_at DESC`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest snapshots")
	}
	defer rows.Close()

	out := make(map[string]model.Snapshot)
	for rows.Next() {
		var snap model.Snapshot
		var featJSON string
		if err := rows.Scan(&snap.ID, &snap.URL, &featJSON, &snap.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}
		if _, seen := out[snap.URL]; seen {
			continue
		}
		if err := json.Unmarshal([]byte(featJSON), &snap.Features); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal snapshot features")
		}
		out[snap.URL] = snap
	}
	return out, eris.Wrap(rows.Err(), "sqlite: latest snapshots iterate")
}

func (s *SQLiteStore) RegisterWebhook(ctx context.Context, url, secret string) (*model.WebhookRegistration, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO webhooks (id, url, secret, created_at) VALUES (?, ?, ?, ?)`,
		id, url, secret, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert webhook")
	}

	return &model.WebhookRegistration{ID: id, URL: url, Secret: secret, CreatedAt: now}, nil
}

func (s *SQLiteStore) CurrentWebhook(ctx context.Context) (*model.WebhookRegistration, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, secret, created_at FROM webhooks ORDER BY created_at DESC, id LIMIT 1`,
	)

	var w model.WebhookRegistration
	err := row.Scan(&w.ID, &w.URL, &w.Secret, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: current webhook")
	}
	return &w, nil
}

func (s *SQLiteStore) RecordDelivery(ctx context.Context, rec model.DeliveryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries (id, job_id, url, attempts, success, permanent, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.JobID, rec.URL, rec.Attempts, rec.Success, rec.Permanent, rec.Error, rec.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert delivery")
}

func (s *SQLiteStore) ListDeliveries(ctx context.Context, jobID string) ([]model.DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, url, attempts, success, permanent, error, created_at
		 FROM deliveries WHERE job_id = ? ORDER BY created_at`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list deliveries")
	}
	defer rows.Close()

	var recs []model.DeliveryRecord
	for rows.Next() {
		var r model.DeliveryRecord
		if err := rows.Scan(&r.ID, &r.JobID, &r.URL, &r.Attempts, &r.Success, &r.Permanent, &r.Error, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan delivery")
		}
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list deliveries iterate")
}

// helpers

// checkJobUpdated disambiguates a zero-row job update: the row is
// either missing or already settled in a terminal state.
func (s *SQLiteStore) checkJobUpdated(ctx context.Context, res sql.Result, jobID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return err
	}
	return eris.Wrapf(ErrTerminal, "job %s", jobID)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.Job, error) {
	var j model.Job
	var reqJSON string
	var resultJSON sql.NullString

	err := row.Scan(&j.ID, &reqJSON, &j.State, &resultJSON, &j.Marker, &j.WebhookURL, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "job")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan job")
	}

	if err := json.Unmarshal([]byte(reqJSON), &j.Request); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal request")
	}
	if resultJSON.Valid {
		j.Result = &model.AnalysisResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), j.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &j, nil
}
