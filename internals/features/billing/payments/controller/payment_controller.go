package controller

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"schoolbill_backend/internals/features/billing/payments/dto"
	model "schoolbill_backend/internals/features/billing/payments/model"
	"schoolbill_backend/internals/features/billing/payments/service"
	helper "schoolbill_backend/internals/helpers"
	"schoolbill_backend/internals/helpers/apperr"
)

type PaymentController struct {
	DB         *gorm.DB
	Applicator *service.Applicator
	Validate   *validator.Validate
}

func NewPaymentController(db *gorm.DB, app *service.Applicator) *PaymentController {
	return &PaymentController{
		DB:         db,
		Applicator: app,
		Validate:   validator.New(),
	}
}

// 🟢 POST /billing/payments — pencatatan pembayaran manual (cash/transfer).
func (ctl *PaymentController) CreateManual(c *fiber.Ctx) error {
	var req dto.ManualPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "body tidak valid")
	}
	if err := ctl.Validate.Struct(req); err != nil {
		return helper.JsonValidationError(c, err)
	}

	invoiceID, _ := uuid.Parse(req.InvoiceID)
	var payerID *uuid.UUID
	if req.PayerUserID != nil {
		id, err := uuid.Parse(*req.PayerUserID)
		if err == nil {
			payerID = &id
		}
	}

	payment, err := ctl.Applicator.ApplyPayment(c.Context(), service.ApplyInput{
		InvoiceID:        &invoiceID,
		Amount:           req.Amount,
		Method:           req.Method,
		Channel:          model.PaymentChannelManual,
		PayerUserID:      payerID,
		ReceivedByUserID: currentUserID(c),
		Note:             req.Note,
	})
	if err != nil {
		return helper.JsonAppError(c, err)
	}
	return helper.JsonCreated(c, "Pembayaran dicatat", payment)
}

// 🟢 GET /billing/payments/:id
func (ctl *PaymentController) GetByID(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "payment id tidak valid")
	}
	var p model.Payment
	if err := ctl.DB.First(&p, "payment_id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return helper.JsonAppError(c, apperr.NotFound("payment tidak ditemukan"))
		}
		return helper.JsonError(c, fiber.StatusInternalServerError, "gagal memuat payment")
	}
	return helper.JsonOK(c, "OK", p)
}

// 🟢 GET /billing/invoices/:id/payments
func (ctl *PaymentController) ListByInvoice(c *fiber.Ctx) error {
	invoiceID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invoice id tidak valid")
	}
	var out []model.Payment
	if err := ctl.DB.
		Where("payment_invoice_id = ?", invoiceID).
		Order("payment_created_at ASC").
		Find(&out).Error; err != nil {
		return helper.JsonError(c, fiber.StatusInternalServerError, "gagal memuat payments")
	}
	return helper.JsonOK(c, "OK", out)
}

// 🟢 GET /billing/payments/review — antrian needs_review (clamp/orphan/late success).
func (ctl *PaymentController) ListNeedsReview(c *fiber.Ctx) error {
	var out []model.Payment
	if err := ctl.DB.
		Where("payment_needs_review = TRUE").
		Order("payment_created_at ASC").
		Find(&out).Error; err != nil {
		return helper.JsonError(c, fiber.StatusInternalServerError, "gagal memuat review queue")
	}
	return helper.JsonOK(c, "OK", out)
}

// 🟢 POST /billing/payments/:id/resolve-review
func (ctl *PaymentController) ResolveReview(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "payment id tidak valid")
	}
	var req dto.ResolveReviewRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "body tidak valid")
	}
	if err := ctl.Validate.Struct(req); err != nil {
		return helper.JsonValidationError(c, err)
	}

	var p model.Payment
	if err := ctl.DB.First(&p, "payment_id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return helper.JsonAppError(c, apperr.NotFound("payment tidak ditemukan"))
		}
		return helper.JsonError(c, fiber.StatusInternalServerError, "gagal memuat payment")
	}
	if !p.PaymentNeedsReview {
		return helper.JsonAppError(c, apperr.Conflict("payment tidak sedang menunggu review"))
	}

	p.PaymentNeedsReview = false
	p.PaymentReviewNote = &req.Note
	if err := ctl.DB.Save(&p).Error; err != nil {
		return helper.JsonError(c, fiber.StatusInternalServerError, "gagal update payment")
	}
	return helper.JsonUpdated(c, "Review ditutup", p)
}

// 🟢 POST /billing/payments/:id/refunds
func (ctl *PaymentController) Refund(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "payment id tidak valid")
	}
	var req dto.RefundRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "body tidak valid")
	}
	if err := ctl.Validate.Struct(req); err != nil {
		return helper.JsonValidationError(c, err)
	}

	refund, err := ctl.Applicator.RefundPayment(c.Context(), id, req.Amount, req.Reason, currentUserID(c))
	if err != nil {
		return helper.JsonAppError(c, err)
	}
	return helper.JsonCreated(c, "Refund diproses", refund)
}

/* ===================== helpers ===================== */

// currentUserID ambil user id dari JWT claims yang ditaruh auth middleware.
func currentUserID(c *fiber.Ctx) *uuid.UUID {
	raw, ok := c.Locals("user_id").(string)
	if !ok || raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
