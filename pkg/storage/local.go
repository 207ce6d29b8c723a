package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/quillwork/worksheets-backend/pkg/config"
	"github.com/quillwork/worksheets-backend/pkg/logger"
)

// Local writes artifacts under a directory and serves them over HTTP.
type Local struct {
	root    string
	baseURL string
	logg    *logger.Logger
}

func NewLocal(ctx context.Context, cfg config.StorageConfig, logg *logger.Logger) (*Local, error) {
	root, err := filepath.Abs(cfg.LocalRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving storage root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	if logg == nil {
		logg = logger.Nop()
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"root": root, "base_url": cfg.PublicBaseURL}), "local storage initialized")
	return &Local{
		root:    root,
		baseURL: strings.TrimSpace(cfg.PublicBaseURL),
		logg:    logg,
	}, nil
}

func (s *Local) Put(ctx context.Context, key string, body io.Reader, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.resolve(key)
	if err != nil {
		return &Error{Op: "put", Key: key, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return &Error{Op: "put", Key: key, Err: err}
	}

	// write to a sibling temp file so readers never observe a partial artifact
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return &Error{Op: "put", Key: key, Err: err}
	}
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &Error{Op: "put", Key: key, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &Error{Op: "put", Key: key, Err: err}
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return &Error{Op: "put", Key: key, Err: err}
	}
	return nil
}

func (s *Local) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.resolve(key)
	if err != nil {
		return &Error{Op: "delete", Key: key, Err: err}
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &Error{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func (s *Local) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	target, err := s.resolve(key)
	if err != nil {
		return false, &Error{Op: "exists", Key: key, Err: err}
	}
	if _, err := os.Stat(target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, &Error{Op: "exists", Key: key, Err: err}
	}
	return true, nil
}

func (s *Local) URL(_ context.Context, key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", &Error{Op: "url", Key: key, Err: err}
	}
	return joinURL(s.baseURL, key), nil
}

// Handler serves stored artifacts; mount it under the public base path.
func (s *Local) Handler(prefix string) http.Handler {
	return http.StripPrefix(prefix, http.FileServer(http.Dir(s.root)))
}

func (s *Local) resolve(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	target := filepath.Join(s.root, filepath.FromSlash(key))
	if !strings.HasPrefix(target, s.root+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return target, nil
}
