package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	fsmodel "schoolbill_backend/internals/features/billing/feestructure/model"
	model "schoolbill_backend/internals/features/billing/invoices/model"
	"schoolbill_backend/internals/helpers/apperr"
)

/* =========================================================
   InvoiceService — lifecycle invoice DI LUAR pembayaran.
   Mutasi paid/balance sepenuhnya milik payment applicator;
   di sini cuma create, cancel, query, dan sweep overdue.
========================================================= */

type InvoiceService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewInvoiceService(db *gorm.DB) *InvoiceService {
	return &InvoiceService{db: db, now: time.Now}
}

type CreateInvoiceInput struct {
	EnrollmentID   uuid.UUID
	FeeStructureID uuid.UUID
	Period         string
	DueDate        time.Time
	// Override nominal; default ambil dari fee structure.
	Amount *int64
}

// CreateInvoice menerbitkan invoice dari fee structure yang masih billable.
// Duplikat (enrollment, structure, period) yang masih terbuka ditolak.
func (s *InvoiceService) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*model.FeeInvoice, error) {
	if strings.TrimSpace(in.Period) == "" {
		return nil, apperr.Validation("period wajib diisi")
	}
	now := s.now()
	if in.DueDate.Before(now) {
		return nil, apperr.Validation("due date tidak boleh di masa lalu")
	}

	var fs fsmodel.FeeStructure
	if err := s.db.WithContext(ctx).
		First(&fs, "fee_structure_id = ?", in.FeeStructureID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("fee structure tidak ditemukan")
		}
		return nil, err
	}
	if !fs.BillableAt(now) {
		return nil, apperr.Validation("fee structure tidak aktif atau di luar validity window")
	}

	amount := fs.FeeStructureAmount
	if in.Amount != nil {
		if *in.Amount <= 0 {
			return nil, apperr.Validation("amount harus > 0")
		}
		amount = *in.Amount
	}

	// MAX+1 bisa bentrok kalau dua create jalan paralel; uq_invoice_number
	// yang jadi wasit. Kalah race → ambil nomor baru dan coba lagi.
	var inv *model.FeeInvoice
	for attempt := 0; attempt < invoiceNumberMaxTries; attempt++ {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// Satu invoice terbuka per (enrollment, structure, period).
			var dup int64
			if err := tx.Model(&model.FeeInvoice{}).
				Where("invoice_enrollment_id = ? AND invoice_fee_structure_id = ? AND invoice_period = ?",
					in.EnrollmentID, in.FeeStructureID, in.Period).
				Where("invoice_status <> ?", model.InvoiceStatusCancelled).
				Count(&dup).Error; err != nil {
				return err
			}
			if dup > 0 {
				return apperr.Conflict("invoice untuk enrollment+structure+period tersebut sudah ada")
			}

			number, err := s.nextInvoiceNumber(tx, now)
			if err != nil {
				return err
			}

			inv = &model.FeeInvoice{
				InvoiceID:             uuid.New(),
				InvoiceNumber:         number,
				InvoiceEnrollmentID:   in.EnrollmentID,
				InvoiceFeeStructureID: in.FeeStructureID,
				InvoicePeriod:         in.Period,
				InvoiceIssueDate:      now,
				InvoiceDueDate:        in.DueDate,
				InvoiceTotalAmount:    amount,
				InvoicePaidAmount:     0,
				InvoiceBalanceAmount:  amount,
				InvoiceCurrency:       fs.FeeStructureCurrency,
				InvoiceStatus:         model.InvoiceStatusPending,
			}
			return tx.Create(inv).Error
		})
		if err == nil {
			return inv, nil
		}
		if isUniqueViolation(err) {
			continue
		}
		return nil, err
	}
	return nil, apperr.Conflict("penomoran invoice bentrok terus-menerus; coba lagi")
}

const invoiceNumberMaxTries = 3

// nextInvoiceNumber: INV-<tahun>-<seq 6 digit>, seq per tahun.
func (s *InvoiceService) nextInvoiceNumber(tx *gorm.DB, now time.Time) (string, error) {
	prefix := fmt.Sprintf("INV-%d-", now.Year())
	var last string
	err := tx.Model(&model.FeeInvoice{}).
		Where("invoice_number LIKE ?", prefix+"%").
		Select("COALESCE(MAX(invoice_number), '')").
		Scan(&last).Error
	if err != nil {
		return "", err
	}
	return nextNumberInSeries(prefix, last), nil
}

// nextNumberInSeries menaikkan seq dari nomor terakhir dalam satu prefix.
// Nomor yang tidak bisa diparse dianggap awal seri.
func nextNumberInSeries(prefix, last string) string {
	seq := 1
	if last != "" {
		var n int
		if _, err := fmt.Sscanf(strings.TrimPrefix(last, prefix), "%d", &n); err == nil {
			seq = n + 1
		}
	}
	return fmt.Sprintf("%s%06d", prefix, seq)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CancelInvoice membatalkan invoice yang belum menerima pembayaran sama sekali.
func (s *InvoiceService) CancelInvoice(ctx context.Context, id uuid.UUID, reason string) (*model.FeeInvoice, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperr.Validation("cancel wajib punya reason")
	}

	var inv model.FeeInvoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&inv, "invoice_id = ?", id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.NotFound("invoice tidak ditemukan")
			}
			return err
		}
		if inv.InvoiceStatus == model.InvoiceStatusCancelled {
			return nil // idempotent
		}
		if inv.InvoicePaidAmount > 0 {
			return apperr.Conflict("invoice sudah menerima pembayaran; tidak bisa dibatalkan")
		}
		inv.InvoiceStatus = model.InvoiceStatusCancelled
		inv.InvoiceCancelReason = &reason
		return tx.Save(&inv).Error
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// SweepOverdue menandai invoice pending/partial yang lewat due date.
// Dipanggil periodik oleh scheduler.
func (s *InvoiceService) SweepOverdue(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Exec(`
		UPDATE fee_invoices
		SET invoice_status = ?, invoice_updated_at = NOW()
		WHERE invoice_status IN (?, ?)
		  AND invoice_due_date < NOW()
		  AND invoice_deleted_at IS NULL`,
		model.InvoiceStatusOverdue, model.InvoiceStatusPending, model.InvoiceStatusPartial)
	return res.RowsAffected, res.Error
}

func (s *InvoiceService) GetByID(ctx context.Context, id uuid.UUID) (*model.FeeInvoice, error) {
	var inv model.FeeInvoice
	if err := s.db.WithContext(ctx).First(&inv, "invoice_id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("invoice tidak ditemukan")
		}
		return nil, err
	}
	return &inv, nil
}

func (s *InvoiceService) ListByEnrollment(ctx context.Context, enrollmentID uuid.UUID, status string) ([]model.FeeInvoice, error) {
	q := s.db.WithContext(ctx).
		Where("invoice_enrollment_id = ?", enrollmentID).
		Order("invoice_issue_date DESC")
	if status != "" {
		q = q.Where("invoice_status = ?", status)
	}
	var out []model.FeeInvoice
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
