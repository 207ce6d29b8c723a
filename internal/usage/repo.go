package usage

import (
	"context"
	"errors"
	"time"

	"github.com/quillwork/worksheets-backend/pkg/db"
	"github.com/quillwork/worksheets-backend/pkg/db/models"
	"github.com/quillwork/worksheets-backend/pkg/pagination"
	"gorm.io/gorm"
)

// ErrDuplicate reports that a record for the same (user, fingerprint) already exists.
var ErrDuplicate = errors.New("usage record already exists")

// Repository manages persistence for usage records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByUserAndFingerprint(ctx context.Context, userID, fingerprint string) (*models.UsageRecord, error)
	CountInPeriod(ctx context.Context, userID string, start, end time.Time) (int64, error)
	Create(ctx context.Context, record *models.UsageRecord) error
	ListByUser(ctx context.Context, userID string, limit int, cursor *pagination.Cursor) ([]models.UsageRecord, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a usage repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByUserAndFingerprint(ctx context.Context, userID, fingerprint string) (*models.UsageRecord, error) {
	var record models.UsageRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND fingerprint = ?", userID, fingerprint).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) CountInPeriod(ctx context.Context, userID string, start, end time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.UsageRecord{}).
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, start.UTC(), end.UTC()).
		Count(&count).Error
	return count, err
}

// Create inserts record; the storage-level unique index decides concurrent duplicates.
func (r *repository) Create(ctx context.Context, record *models.UsageRecord) error {
	err := r.db.WithContext(ctx).Create(record).Error
	if db.IsUniqueViolation(err, models.UsageRecordUniqueConstraint) {
		return ErrDuplicate
	}
	return err
}

func (r *repository) ListByUser(ctx context.Context, userID string, limit int, cursor *pagination.Cursor) ([]models.UsageRecord, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID)
	if cursor != nil {
		createdAt := cursor.CreatedAt.UTC()
		query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))", createdAt, createdAt, cursor.ID)
	}
	var records []models.UsageRecord
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
