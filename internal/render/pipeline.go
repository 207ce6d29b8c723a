package render

import (
	"context"
	"fmt"
	"os"

	"github.com/quillwork/worksheets-backend/internal/fingerprint"
	"github.com/quillwork/worksheets-backend/internal/usage"
	"github.com/quillwork/worksheets-backend/internal/worksheet"
	"github.com/quillwork/worksheets-backend/pkg/logger"
	"github.com/quillwork/worksheets-backend/pkg/storage"
	"go.uber.org/multierr"
)

// Pipeline renders a document into a scratch directory and publishes the
// files to storage under deterministic keys.
type Pipeline struct {
	renderer  Renderer
	store     storage.Storage
	keyPrefix string
	tempDir   string
	logg      *logger.Logger
}

type PipelineParams struct {
	Renderer  Renderer
	Store     storage.Storage
	KeyPrefix string
	TempDir   string
	Logger    *logger.Logger
}

func NewPipeline(params PipelineParams) (*Pipeline, error) {
	if params.Renderer == nil {
		return nil, fmt.Errorf("renderer required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("storage required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Pipeline{
		renderer:  params.Renderer,
		store:     params.Store,
		keyPrefix: params.KeyPrefix,
		tempDir:   params.TempDir,
		logg:      logg,
	}, nil
}

// Produce renders doc and returns where the published files live.
func (p *Pipeline) Produce(ctx context.Context, userID string, fp fingerprint.Fingerprint, doc *worksheet.Document) (urls usage.URLs, err error) {
	dir, err := os.MkdirTemp(p.tempDir, "export-*")
	if err != nil {
		return usage.URLs{}, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			p.logg.Warn(p.logg.WithField(ctx, "dir", dir), "failed to remove scratch dir")
		}
	}()

	out, err := p.renderer.Render(ctx, doc, dir)
	if err != nil {
		return usage.URLs{}, err
	}
	if err := ctx.Err(); err != nil {
		return usage.URLs{}, err
	}

	urls.Worksheet, err = p.publish(ctx, userID, fp, WorksheetFile, out.WorksheetPath)
	if err != nil {
		return usage.URLs{}, err
	}
	if out.AnswerKeyPath != "" {
		urls.AnswerKey, err = p.publish(ctx, userID, fp, AnswerKeyFile, out.AnswerKeyPath)
		if err != nil {
			return usage.URLs{}, err
		}
	}
	return urls, nil
}

func (p *Pipeline) publish(ctx context.Context, userID string, fp fingerprint.Fingerprint, name, path string) (_ string, err error) {
	key := storage.ArtifactKey(p.keyPrefix, userID, fp.String(), name)

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open rendered file: %w", err)
	}
	defer func() {
		err = multierr.Append(err, file.Close())
	}()

	if err := p.store.Put(ctx, key, file, storage.ContentTypePDF); err != nil {
		return "", err
	}
	return p.store.URL(ctx, key)
}
