package usage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quillwork/worksheets-backend/pkg/db/models"
)

// URLs locate the rendered artifacts of an export.
type URLs struct {
	Worksheet string `json:"worksheet"`
	AnswerKey string `json:"answerKey"`
}

// Metadata is the opaque blob stored with each usage record.
type Metadata struct {
	URLs          URLs            `json:"urls"`
	Title         string          `json:"title,omitempty"`
	ProblemCount  int             `json:"problemCount"`
	Configuration json.RawMessage `json:"configuration,omitempty"`
}

// DecodeMetadata reads the metadata blob of record.
func DecodeMetadata(record *models.UsageRecord) (Metadata, error) {
	var meta Metadata
	if record == nil || len(record.Metadata) == 0 {
		return meta, nil
	}
	if err := json.Unmarshal(record.Metadata, &meta); err != nil {
		return Metadata{}, fmt.Errorf("decode usage metadata: %w", err)
	}
	return meta, nil
}

// HistoryItem is one export in a user's history.
type HistoryItem struct {
	ExportID     uuid.UUID `json:"exportId"`
	Fingerprint  string    `json:"fingerprint"`
	Title        string    `json:"title,omitempty"`
	ProblemCount int       `json:"problemCount"`
	URLs         URLs      `json:"urls"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HistoryPage is a newest-first page of exports.
type HistoryPage struct {
	Items      []HistoryItem `json:"items"`
	NextCursor string        `json:"nextCursor,omitempty"`
}
