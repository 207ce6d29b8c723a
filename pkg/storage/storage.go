// Package storage persists rendered export artifacts and hands back the
// locations clients download them from.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/quillwork/worksheets-backend/pkg/config"
	"github.com/quillwork/worksheets-backend/pkg/logger"
)

const ContentTypePDF = "application/pdf"

var (
	ErrNotFound     = errors.New("object not found")
	ErrInvalidKey   = errors.New("invalid storage key")
	ErrAccessDenied = errors.New("access denied")
)

// Storage is the artifact store used by the render pipeline.
type Storage interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	URL(ctx context.Context, key string) (string, error)
}

// Error records the operation and key that failed.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// New builds the provider selected in cfg.
func New(ctx context.Context, cfg config.StorageConfig, logg *logger.Logger) (Storage, error) {
	if cfg.IsLocal() {
		return NewLocal(ctx, cfg, logg)
	}
	return NewS3(ctx, cfg, logg)
}

// ArtifactKey lays out keys as <prefix>/<user>/<fingerprint>/<name>.
func ArtifactKey(prefix, userID, fingerprint, name string) string {
	parts := make([]string, 0, 4)
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, sanitizeSegment(userID), fingerprint, name)
	return path.Join(parts...)
}

// joinURL appends key to base, tolerating a trailing slash on base.
func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}

func sanitizeSegment(value string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, value)
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" || strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." || segment == "." || segment == "" {
			return ErrInvalidKey
		}
	}
	return nil
}
