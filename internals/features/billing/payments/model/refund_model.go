package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RefundStatusPending   = "pending"
	RefundStatusProcessed = "processed"
	RefundStatusFailed    = "failed"
	RefundStatusCancelled = "cancelled"
)

// Refund membalikkan sebagian/seluruh payment yang completed.
// Jumlah seluruh refund tidak boleh melebihi payment_amount.
type Refund struct {
	RefundID        uuid.UUID `gorm:"column:refund_id;type:uuid;default:gen_random_uuid();primaryKey" json:"refund_id"`
	RefundPaymentID uuid.UUID `gorm:"column:refund_payment_id;type:uuid;not null;index" json:"refund_payment_id"`

	RefundAmount int64  `gorm:"column:refund_amount;not null;check:refund_amount > 0" json:"refund_amount"`
	RefundStatus string `gorm:"column:refund_status;type:varchar(16);not null;default:'processed'" json:"refund_status"`
	RefundReason string `gorm:"column:refund_reason;not null" json:"refund_reason"`

	RefundProcessedByUserID *uuid.UUID `gorm:"column:refund_processed_by_user_id;type:uuid" json:"refund_processed_by_user_id,omitempty"`
	RefundProcessedAt       *time.Time `gorm:"column:refund_processed_at" json:"refund_processed_at,omitempty"`

	CreatedAt time.Time      `gorm:"column:refund_created_at;autoCreateTime" json:"refund_created_at"`
	UpdatedAt time.Time      `gorm:"column:refund_updated_at;autoUpdateTime" json:"refund_updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:refund_deleted_at;index" json:"refund_deleted_at,omitempty"`
}

func (Refund) TableName() string { return "refunds" }
