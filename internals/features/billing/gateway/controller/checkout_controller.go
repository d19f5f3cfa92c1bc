package controller

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"schoolbill_backend/internals/features/billing/gateway"
	invmodel "schoolbill_backend/internals/features/billing/invoices/model"
	paymodel "schoolbill_backend/internals/features/billing/payments/model"
	paysvc "schoolbill_backend/internals/features/billing/payments/service"
	helper "schoolbill_backend/internals/helpers"
	"schoolbill_backend/internals/helpers/apperr"
)

/* =========================================================
   CheckoutController
   POST /billing/invoices/:id/checkout
   Membuat payment PENDING + initiate di provider. Payment baru
   benar-benar diterapkan ke invoice saat callback/reconcile
   melaporkan SUCCESS.
========================================================= */

type CheckoutController struct {
	DB       *gorm.DB
	Registry *gateway.Registry
	Validate *validator.Validate
}

func NewCheckoutController(db *gorm.DB, reg *gateway.Registry) *CheckoutController {
	return &CheckoutController{
		DB:       db,
		Registry: reg,
		Validate: validator.New(),
	}
}

type CheckoutRequest struct {
	Provider    string `json:"provider" validate:"required,oneof=mpesa cardpro midtrans"`
	Amount      *int64 `json:"amount" validate:"omitempty,gt=0"` // default: sisa balance
	PayerMsisdn string `json:"payer_msisdn" validate:"required_if=Provider mpesa"`
	PayerEmail  string `json:"payer_email" validate:"omitempty,email"`
}

type CheckoutResponse struct {
	Payment     *paymodel.Payment `json:"payment"`
	RedirectURL string            `json:"redirect_url,omitempty"`
	ProviderRef string            `json:"provider_ref,omitempty"`
}

func (ctl *CheckoutController) Checkout(c *fiber.Ctx) error {
	invoiceID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invoice id tidak valid")
	}

	var req CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "body tidak valid")
	}
	if err := ctl.Validate.Struct(req); err != nil {
		return helper.JsonValidationError(c, err)
	}

	provider, err := ctl.Registry.Get(req.Provider)
	if err != nil {
		return helper.JsonAppError(c, err)
	}

	var inv invmodel.FeeInvoice
	if err := ctl.DB.First(&inv, "invoice_id = ?", invoiceID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return helper.JsonAppError(c, apperr.NotFound("invoice tidak ditemukan"))
		}
		return helper.JsonError(c, fiber.StatusInternalServerError, "gagal memuat invoice")
	}
	if !inv.IsOpen() {
		return helper.JsonAppError(c, apperr.Conflict("invoice berstatus "+inv.InvoiceStatus))
	}

	amount := inv.InvoiceBalanceAmount
	if req.Amount != nil {
		amount = *req.Amount
	}
	if amount <= 0 || amount > inv.InvoiceBalanceAmount {
		return helper.JsonAppError(c, apperr.Validation("amount harus di antara 1 dan sisa balance"))
	}

	externalID := gateway.GenExternalID(req.Provider)
	res, err := gateway.InitiateWithRetry(c.Context(), provider, gateway.InitiateRequest{
		InvoiceID:   inv.InvoiceID,
		ExternalID:  externalID,
		Amount:      amount,
		Currency:    inv.InvoiceCurrency,
		PayerMsisdn: req.PayerMsisdn,
		PayerEmail:  req.PayerEmail,
		Description: "Pembayaran " + inv.InvoiceNumber,
		AccountRef:  externalID,
	})
	if err != nil {
		return helper.JsonAppError(c, err)
	}

	now := time.Now()
	payment := &paymodel.Payment{
		PaymentID:          uuid.New(),
		PaymentReference:   paysvc.GenReference("PAY"),
		PaymentInvoiceID:   &inv.InvoiceID,
		PaymentAmount:      amount,
		PaymentCurrency:    inv.InvoiceCurrency,
		PaymentMethod:      paymodel.PaymentMethodCheckout,
		PaymentChannel:     paymodel.PaymentChannelGateway,
		PaymentStatus:      paymodel.PaymentStatusPending,
		PaymentProvider:    &req.Provider,
		PaymentExternalID:  &externalID,
		PaymentProviderRef: strOrNil(res.ProviderRef),
		CreatedAt:          now,
	}
	if err := ctl.DB.Create(payment).Error; err != nil {
		return helper.JsonError(c, fiber.StatusInternalServerError, "gagal menyimpan payment pending")
	}

	return helper.JsonCreated(c, "Checkout dibuat", CheckoutResponse{
		Payment:     payment,
		RedirectURL: res.RedirectURL,
		ProviderRef: res.ProviderRef,
	})
}

func strOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
