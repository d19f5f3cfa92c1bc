package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	invmodel "schoolbill_backend/internals/features/billing/invoices/model"
	model "schoolbill_backend/internals/features/billing/payments/model"
	"schoolbill_backend/internals/helpers/apperr"
)

/* =========================================================
   GormStore — implementasi Store di atas GORM/Postgres.
========================================================= */

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) GetInvoiceForUpdate(ctx context.Context, id uuid.UUID) (*invmodel.FeeInvoice, error) {
	var inv invmodel.FeeInvoice
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&inv, "invoice_id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("invoice tidak ditemukan")
		}
		return nil, err
	}
	return &inv, nil
}

func (s *GormStore) SaveInvoice(ctx context.Context, inv *invmodel.FeeInvoice) error {
	return translatePgErr(s.db.WithContext(ctx).Save(inv).Error)
}

func (s *GormStore) GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	var p model.Payment
	err := s.db.WithContext(ctx).First(&p, "payment_id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("payment tidak ditemukan")
		}
		return nil, err
	}
	return &p, nil
}

func (s *GormStore) GetPaymentByExternalID(ctx context.Context, externalID string) (*model.Payment, error) {
	var p model.Payment
	err := s.db.WithContext(ctx).First(&p, "payment_external_id = ?", externalID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("payment dengan external id tersebut tidak ditemukan")
		}
		return nil, err
	}
	return &p, nil
}

func (s *GormStore) CreatePayment(ctx context.Context, p *model.Payment) error {
	return translatePgErr(s.db.WithContext(ctx).Create(p).Error)
}

func (s *GormStore) SavePayment(ctx context.Context, p *model.Payment) error {
	return translatePgErr(s.db.WithContext(ctx).Save(p).Error)
}

func (s *GormStore) CreateRefund(ctx context.Context, r *model.Refund) error {
	return translatePgErr(s.db.WithContext(ctx).Create(r).Error)
}

func (s *GormStore) RefundedTotal(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).
		Model(&model.Refund{}).
		Where("refund_payment_id = ? AND refund_status = ?", paymentID, model.RefundStatusProcessed).
		Select("COALESCE(SUM(refund_amount), 0)").
		Scan(&total).Error
	return total, err
}

func (s *GormStore) ListStalePendingPayments(ctx context.Context, before time.Time, limit int) ([]model.Payment, error) {
	var out []model.Payment
	err := s.db.WithContext(ctx).
		Where("payment_channel = ? AND payment_status = ? AND payment_created_at < ?",
			model.PaymentChannelGateway, model.PaymentStatusPending, before).
		Order("payment_created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// translatePgErr memetakan unique violation (23505) ke apperr.Conflict
// supaya applicator bisa mendeteksi race duplicate delivery.
func translatePgErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Conflict("duplikat: " + pgErr.ConstraintName)
	}
	return err
}
