package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

/* ===================== Enums (string) ===================== */
/* Selaras dengan CHECK constraint di PostgreSQL:
   payment_status, payment_channel
*/

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusCancelled = "cancelled"
	PaymentStatusRefunded  = "refunded"
)

const (
	PaymentChannelManual  = "manual"
	PaymentChannelGateway = "gateway"
)

const (
	PaymentMethodCash         = "cash"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodMobileMoney  = "mobile_money"
	PaymentMethodCard         = "card"
	PaymentMethodCheckout     = "checkout"
)

const (
	ProviderMpesa    = "mpesa"
	ProviderCardPro  = "cardpro"
	ProviderMidtrans = "midtrans"
)

// FailReasonTimeout dipakai reconciler saat payment pending melewati max age.
const FailReasonTimeout = "TIMEOUT"

/* ===================== Model ===================== */

type Payment struct {
	PaymentID        uuid.UUID `gorm:"column:payment_id;type:uuid;default:gen_random_uuid();primaryKey" json:"payment_id"`
	PaymentReference string    `gorm:"column:payment_reference;type:varchar(64);not null;uniqueIndex" json:"payment_reference"`

	// NULL untuk orphaned payment (gateway confirm tapi invoice tidak valid lagi)
	PaymentInvoiceID *uuid.UUID `gorm:"column:payment_invoice_id;type:uuid;index" json:"payment_invoice_id,omitempty"`

	// Nominal yang dikonfirmasi provider vs yang benar-benar masuk ke invoice.
	// Berbeda hanya saat gateway overpayment di-clamp.
	PaymentAmount        int64  `gorm:"column:payment_amount;not null;check:payment_amount > 0" json:"payment_amount"`
	PaymentAppliedAmount int64  `gorm:"column:payment_applied_amount;not null;default:0" json:"payment_applied_amount"`
	PaymentCurrency      string `gorm:"column:payment_currency;type:varchar(8);not null;default:UGX" json:"payment_currency"`

	PaymentMethod  string `gorm:"column:payment_method;type:varchar(24);not null" json:"payment_method"`
	PaymentChannel string `gorm:"column:payment_channel;type:varchar(16);not null;default:'manual'" json:"payment_channel"`
	PaymentStatus  string `gorm:"column:payment_status;type:varchar(16);not null;default:'pending'" json:"payment_status"`

	// Info gateway (nil untuk pembayaran manual)
	PaymentProvider    *string `gorm:"column:payment_provider;type:varchar(24)" json:"payment_provider,omitempty"`
	PaymentExternalID  *string `gorm:"column:payment_external_id;type:varchar(128)" json:"payment_external_id,omitempty"` // idempotency key dari provider
	PaymentProviderRef *string `gorm:"column:payment_provider_ref;type:varchar(128)" json:"payment_provider_ref,omitempty"`

	PaymentPayerUserID      *uuid.UUID `gorm:"column:payment_payer_user_id;type:uuid" json:"payment_payer_user_id,omitempty"`
	PaymentReceivedByUserID *uuid.UUID `gorm:"column:payment_received_by_user_id;type:uuid" json:"payment_received_by_user_id,omitempty"`

	PaymentNeedsReview bool    `gorm:"column:payment_needs_review;not null;default:false" json:"payment_needs_review"`
	PaymentReviewNote  *string `gorm:"column:payment_review_note" json:"payment_review_note,omitempty"`
	PaymentFailReason  *string `gorm:"column:payment_fail_reason" json:"payment_fail_reason,omitempty"`

	PaymentPaidAt   *time.Time `gorm:"column:payment_paid_at" json:"payment_paid_at,omitempty"`
	PaymentFailedAt *time.Time `gorm:"column:payment_failed_at" json:"payment_failed_at,omitempty"`

	CreatedAt time.Time      `gorm:"column:payment_created_at;autoCreateTime" json:"payment_created_at"`
	UpdatedAt time.Time      `gorm:"column:payment_updated_at;autoUpdateTime" json:"payment_updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:payment_deleted_at;index" json:"payment_deleted_at,omitempty"`
}

func (Payment) TableName() string { return "payments" }

/* ===================== Helpers ===================== */

func (p *Payment) IsGateway() bool {
	return p.PaymentChannel == PaymentChannelGateway
}

// IsTerminal: tidak ada transisi keluar dari state ini,
// kecuali completed → refunded.
func (p *Payment) IsTerminal() bool {
	switch p.PaymentStatus {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

func (p *Payment) IsCompleted() bool {
	return p.PaymentStatus == PaymentStatusCompleted || p.PaymentStatus == PaymentStatusRefunded
}
