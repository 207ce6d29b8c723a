package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UsageRecordUniqueConstraint guards one record per (user, fingerprint).
const UsageRecordUniqueConstraint = "ux_usage_records_user_fingerprint"

// UsageRecord is one completed export. Rows are append-only.
type UsageRecord struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	UserID      string          `gorm:"column:user_id;type:text;not null;uniqueIndex:ux_usage_records_user_fingerprint,priority:1;index:ix_usage_records_user_created,priority:1"`
	Fingerprint string          `gorm:"column:fingerprint;type:char(64);not null;uniqueIndex:ux_usage_records_user_fingerprint,priority:2"`
	Metadata    json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time       `gorm:"column:created_at;not null;autoCreateTime;index:ix_usage_records_user_created,priority:2"`
}

func (UsageRecord) TableName() string { return "usage_records" }

// BeforeCreate assigns the primary key and normalizes the timestamp to UTC.
func (r *UsageRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return nil
}
