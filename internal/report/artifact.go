package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/icp-analyzer/internal/model"
)

// ArtifactStore persists rendered report bytes and returns a reference
// the API can hand back to callers.
type ArtifactStore interface {
	Put(ctx context.Context, filename, contentType string, data []byte) (*model.ArtifactRef, error)
}

// LocalStore writes artifacts to a directory on disk.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "report: creating artifact dir %s", dir)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Put(_ context.Context, filename, contentType string, data []byte) (*model.ArtifactRef, error) {
	path := filepath.Join(s.dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, eris.Wrapf(err, "report: writing %s", path)
	}
	return &model.ArtifactRef{
		ID:          uuid.New().String(),
		Filename:    filename,
		ContentType: contentType,
		URL:         "file://" + path,
		Size:        len(data),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Service builds, renders and stores reports.
type Service struct {
	artifacts ArtifactStore
}

// NewService wires the artifact backend.
func NewService(artifacts ArtifactStore) *Service {
	return &Service{artifacts: artifacts}
}

// Generate produces an artifact for a terminal job.
func (s *Service) Generate(ctx context.Context, job *model.Job, opts Options) (*model.ArtifactRef, error) {
	if !opts.Format.Valid() {
		return nil, eris.Errorf("report: unknown format %q", opts.Format)
	}

	doc, err := Build(job, opts)
	if err != nil {
		return nil, err
	}

	renderer, err := RendererFor(opts.Format)
	if err != nil {
		return nil, err
	}
	data, err := renderer.Render(doc)
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("icp-%s-%s.%s",
		job.ID, doc.GeneratedAt.Format("20060102T150405Z"), renderer.Extension())
	ref, err := s.artifacts.Put(ctx, filename, renderer.ContentType(), data)
	if err != nil {
		return nil, err
	}

	zap.L().Info("report generated",
		zap.String("job_id", job.ID),
		zap.String("format", string(opts.Format)),
		zap.String("filename", ref.Filename),
		zap.Int("size", ref.Size))
	return ref, nil
}
