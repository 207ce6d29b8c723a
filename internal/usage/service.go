package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quillwork/worksheets-backend/internal/fingerprint"
	"github.com/quillwork/worksheets-backend/pkg/db/models"
	pkgerrors "github.com/quillwork/worksheets-backend/pkg/errors"
	"github.com/quillwork/worksheets-backend/pkg/pagination"
)

// Ledger is the append-only record of completed exports.
type Ledger interface {
	FindByUserAndFingerprint(ctx context.Context, userID string, fp fingerprint.Fingerprint) (*models.UsageRecord, error)
	CountInPeriod(ctx context.Context, userID string, start, end time.Time) (int64, error)
	// Append records a completed export. created is false when another writer
	// already recorded the same (user, fingerprint); the existing record is returned.
	Append(ctx context.Context, userID string, fp fingerprint.Fingerprint, meta Metadata) (record *models.UsageRecord, created bool, err error)
	History(ctx context.Context, userID string, params pagination.Params) (*HistoryPage, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires a ledger with the provided repository.
func NewService(repo Repository) (Ledger, error) {
	if repo == nil {
		return nil, fmt.Errorf("usage repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) FindByUserAndFingerprint(ctx context.Context, userID string, fp fingerprint.Fingerprint) (*models.UsageRecord, error) {
	if err := validateKey(userID, fp); err != nil {
		return nil, err
	}
	record, err := s.repo.FindByUserAndFingerprint(ctx, userID, fp.String())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find usage record")
	}
	return record, nil
}

func (s *service) CountInPeriod(ctx context.Context, userID string, start, end time.Time) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !start.Before(end) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "period start must be before period end")
	}
	count, err := s.repo.CountInPeriod(ctx, userID, start, end)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count usage records")
	}
	return count, nil
}

func (s *service) Append(ctx context.Context, userID string, fp fingerprint.Fingerprint, meta Metadata) (*models.UsageRecord, bool, error) {
	if err := validateKey(userID, fp); err != nil {
		return nil, false, err
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode usage metadata")
	}

	record := &models.UsageRecord{
		UserID:      userID,
		Fingerprint: fp.String(),
		Metadata:    raw,
		CreatedAt:   s.now().UTC(),
	}
	err = s.repo.Create(ctx, record)
	if err == nil {
		return record, true, nil
	}
	if !errors.Is(err, ErrDuplicate) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append usage record")
	}

	existing, findErr := s.repo.FindByUserAndFingerprint(ctx, userID, fp.String())
	if findErr != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, findErr, "reload duplicated usage record")
	}
	if existing == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeInternal, "usage record reported duplicate but was not found")
	}
	return existing, false, nil
}

func (s *service) History(ctx context.Context, userID string, params pagination.Params) (*HistoryPage, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	records, err := s.repo.ListByUser(ctx, userID, limit+1, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list usage records")
	}

	page := &HistoryPage{Items: make([]HistoryItem, 0, limit)}
	if len(records) > limit {
		last := records[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		records = records[:limit]
	}
	for i := range records {
		meta, err := DecodeMetadata(&records[i])
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode usage record")
		}
		page.Items = append(page.Items, HistoryItem{
			ExportID:     records[i].ID,
			Fingerprint:  records[i].Fingerprint,
			Title:        meta.Title,
			ProblemCount: meta.ProblemCount,
			URLs:         meta.URLs,
			CreatedAt:    records[i].CreatedAt,
		})
	}
	return page, nil
}

func validateKey(userID string, fp fingerprint.Fingerprint) error {
	if strings.TrimSpace(userID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !fp.Valid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "fingerprint is malformed")
	}
	return nil
}
