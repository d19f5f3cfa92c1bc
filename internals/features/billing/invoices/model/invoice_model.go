package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

/* ===================== Enums (string) ===================== */

const (
	InvoiceStatusPending   = "pending"
	InvoiceStatusPartial   = "partial"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusOverdue   = "overdue"
	InvoiceStatusCancelled = "cancelled"
)

/* ===================== Model ===================== */

// FeeInvoice adalah tagihan untuk satu enrollment. paid/balance/status hanya
// boleh dimutasi oleh payment applicator (atau cancel eksplisit).
type FeeInvoice struct {
	InvoiceID     uuid.UUID `gorm:"column:invoice_id;type:uuid;default:gen_random_uuid();primaryKey" json:"invoice_id"`
	InvoiceNumber string    `gorm:"column:invoice_number;type:varchar(40);not null;uniqueIndex" json:"invoice_number"`

	InvoiceEnrollmentID   uuid.UUID `gorm:"column:invoice_enrollment_id;type:uuid;not null;index" json:"invoice_enrollment_id"`
	InvoiceFeeStructureID uuid.UUID `gorm:"column:invoice_fee_structure_id;type:uuid;not null" json:"invoice_fee_structure_id"`
	InvoicePeriod         string    `gorm:"column:invoice_period;type:varchar(24);not null" json:"invoice_period"`

	InvoiceIssueDate time.Time `gorm:"column:invoice_issue_date;not null" json:"invoice_issue_date"`
	InvoiceDueDate   time.Time `gorm:"column:invoice_due_date;not null" json:"invoice_due_date"`

	InvoiceTotalAmount   int64  `gorm:"column:invoice_total_amount;not null;check:invoice_total_amount > 0" json:"invoice_total_amount"`
	InvoicePaidAmount    int64  `gorm:"column:invoice_paid_amount;not null;default:0" json:"invoice_paid_amount"`
	InvoiceBalanceAmount int64  `gorm:"column:invoice_balance_amount;not null" json:"invoice_balance_amount"`
	InvoiceCurrency      string `gorm:"column:invoice_currency;type:varchar(8);not null;default:UGX" json:"invoice_currency"`

	InvoiceStatus       string  `gorm:"column:invoice_status;type:varchar(16);not null;default:'pending'" json:"invoice_status"`
	InvoiceCancelReason *string `gorm:"column:invoice_cancel_reason" json:"invoice_cancel_reason,omitempty"`

	CreatedAt time.Time      `gorm:"column:invoice_created_at;autoCreateTime" json:"invoice_created_at"`
	UpdatedAt time.Time      `gorm:"column:invoice_updated_at;autoUpdateTime" json:"invoice_updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:invoice_deleted_at;index" json:"invoice_deleted_at,omitempty"`
}

func (FeeInvoice) TableName() string { return "fee_invoices" }

/* ===================== Status ===================== */

// ComputeStatus adalah fungsi murni dari (paid, total, dueDate, now):
//   - paid == total        → paid
//   - balance>0 & lewat due → overdue
//   - 0 < paid < total     → partial
//   - selain itu           → pending
func ComputeStatus(paid, total int64, dueDate, now time.Time) string {
	if paid >= total {
		return InvoiceStatusPaid
	}
	if now.After(dueDate) {
		return InvoiceStatusOverdue
	}
	if paid > 0 {
		return InvoiceStatusPartial
	}
	return InvoiceStatusPending
}

// Recompute menyelaraskan balance dan status dari paid/total.
// Invoice cancelled tidak pernah berubah status lagi.
func (inv *FeeInvoice) Recompute(now time.Time) {
	inv.InvoiceBalanceAmount = inv.InvoiceTotalAmount - inv.InvoicePaidAmount
	if inv.InvoiceBalanceAmount < 0 {
		inv.InvoiceBalanceAmount = 0
	}
	if inv.InvoiceStatus == InvoiceStatusCancelled {
		return
	}
	inv.InvoiceStatus = ComputeStatus(inv.InvoicePaidAmount, inv.InvoiceTotalAmount, inv.InvoiceDueDate, now)
}

// IsOpen true selama invoice masih bisa menerima pembayaran.
func (inv *FeeInvoice) IsOpen() bool {
	switch inv.InvoiceStatus {
	case InvoiceStatusPending, InvoiceStatusPartial, InvoiceStatusOverdue:
		return true
	default:
		return false
	}
}
