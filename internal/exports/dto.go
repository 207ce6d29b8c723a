package exports

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/quillwork/worksheets-backend/internal/quota"
	"github.com/quillwork/worksheets-backend/internal/usage"
)

// Outcome is the terminal state of one export request.
type Outcome string

const (
	OutcomeCached  Outcome = "cached"
	OutcomeCreated Outcome = "created"
	OutcomeDenied  Outcome = "denied"
)

func (o Outcome) String() string { return string(o) }

// Request is a single export ask. Configuration is the raw client payload and
// is fingerprinted as sent.
type Request struct {
	Configuration json.RawMessage
	Title         string
	Subtitle      string
	Instructions  string
}

// Result describes what happened to a request. Quota is set for created and
// denied outcomes only.
type Result struct {
	Outcome  Outcome
	ExportID uuid.UUID
	URLs     usage.URLs
	Quota    *quota.Decision
}

func (r *Result) Cached() bool { return r != nil && r.Outcome == OutcomeCached }
