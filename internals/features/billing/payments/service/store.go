package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	invmodel "schoolbill_backend/internals/features/billing/invoices/model"
	model "schoolbill_backend/internals/features/billing/payments/model"
)

/* =========================================================
   Store adalah batas storage untuk ledger.
   Applicator tidak tahu-menahu soal GORM; implementasi gorm
   ada di gorm_store.go, test pakai fake in-memory.
========================================================= */

type Store interface {
	// Transaction menjalankan fn atomically; Store yang diterima fn
	// terikat pada transaksi tersebut.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	// GetInvoiceForUpdate mengambil invoice dengan row lock
	// (SELECT ... FOR UPDATE pada implementasi SQL).
	GetInvoiceForUpdate(ctx context.Context, id uuid.UUID) (*invmodel.FeeInvoice, error)
	SaveInvoice(ctx context.Context, inv *invmodel.FeeInvoice) error

	GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	// GetPaymentByExternalID mengembalikan apperr.NotFound jika tidak ada.
	GetPaymentByExternalID(ctx context.Context, externalID string) (*model.Payment, error)
	// CreatePayment mengembalikan apperr.Conflict saat reference/external id duplikat.
	CreatePayment(ctx context.Context, p *model.Payment) error
	SavePayment(ctx context.Context, p *model.Payment) error

	CreateRefund(ctx context.Context, r *model.Refund) error
	// RefundedTotal menjumlahkan refund processed untuk satu payment.
	RefundedTotal(ctx context.Context, paymentID uuid.UUID) (int64, error)

	// ListStalePendingPayments: payment gateway berstatus pending yang dibuat
	// sebelum cutoff — kandidat reconciliation.
	ListStalePendingPayments(ctx context.Context, before time.Time, limit int) ([]model.Payment, error)
}
