package cron

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/quillwork/worksheets-backend/pkg/logger"
	"go.uber.org/multierr"
)

const (
	scratchDirPrefix     = "export-"
	defaultScratchMaxAge = 6 * time.Hour
)

type ScratchCleanupJobParams struct {
	Logger *logger.Logger
	Dir    string
	MaxAge time.Duration
}

// NewScratchCleanupJob removes render scratch directories left behind by
// crashed or killed API processes.
func NewScratchCleanupJob(params ScratchCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	dir := params.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	maxAge := params.MaxAge
	if maxAge <= 0 {
		maxAge = defaultScratchMaxAge
	}
	return &scratchCleanupJob{logg: params.Logger, dir: dir, maxAge: maxAge, now: time.Now}, nil
}

type scratchCleanupJob struct {
	logg   *logger.Logger
	dir    string
	maxAge time.Duration
	now    func() time.Time
}

func (j *scratchCleanupJob) Name() string { return "scratch-cleanup" }

func (j *scratchCleanupJob) Run(ctx context.Context) error {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read scratch dir: %w", err)
	}

	cutoff := j.now().Add(-j.maxAge)
	var (
		errs    error
		removed int
	)
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), scratchDirPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(j.dir, entry.Name())); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		removed++
	}
	j.logg.Info(j.logg.WithField(ctx, "removed", removed), "scratch cleanup complete")
	return errs
}
