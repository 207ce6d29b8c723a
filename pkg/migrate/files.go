package migrate

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/pressly/goose/v3"
)

const versionLayout = "20060102150405"

var (
	fileNameRe   = regexp.MustCompile(`^\d{14}_[a-z0-9_]+\.sql$`)
	slugStripRe  = regexp.MustCompile(`[^a-z0-9]+`)
	requiredTags = []string{"-- +goose Up", "-- +goose Down"}
)

var sqlTemplate = template.Must(template.New("migration").Parse(`-- +goose Up
-- +goose StatementBegin
-- {{.Slug}}
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- revert {{.Slug}}
-- +goose StatementEnd
`))

// slug turns a free-form migration title into the snake_case part of a file name.
func slug(name string) string {
	s := slugStripRe.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(s, "_")
}

// CreateSQLMigration writes an empty goose migration named
// <dir>/<UTC timestamp>_<slug>.sql and returns its path.
func CreateSQLMigration(dir, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	s := slug(name)
	if s == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create migrations dir: %w", err)
	}

	path := filepath.Join(dir, time.Now().UTC().Format(versionLayout)+"_"+s+".sql")
	var buf bytes.Buffer
	if err := sqlTemplate.Execute(&buf, struct{ Slug string }{s}); err != nil {
		return "", fmt.Errorf("render migration template: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(buf.Bytes()); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// ValidateDir checks that goose can order the migrations in dir and that each
// file follows the naming scheme and declares both directions.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	found, err := goose.CollectMigrations(dir, 0, math.MaxInt64)
	if err != nil {
		return fmt.Errorf("collect migrations in %s: %w", dir, err)
	}

	for _, m := range found {
		name := filepath.Base(m.Source)
		if !fileNameRe.MatchString(name) {
			return fmt.Errorf("migration %s: expected <YYYYMMDDHHMMSS>_<snake_name>.sql", name)
		}
		body, err := os.ReadFile(m.Source)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		for _, tag := range requiredTags {
			if !bytes.Contains(body, []byte(tag)) {
				return fmt.Errorf("migration %s: missing %q", name, tag)
			}
		}
	}
	return nil
}
