package dto

/* ===================== Request DTO ===================== */

// ManualPaymentRequest: kas/transfer yang dicatat bursar.
type ManualPaymentRequest struct {
	InvoiceID   string  `json:"invoice_id" validate:"required,uuid"`
	Amount      int64   `json:"amount" validate:"required,gt=0"`
	Method      string  `json:"method" validate:"required,oneof=cash bank_transfer"`
	PayerUserID *string `json:"payer_user_id" validate:"omitempty,uuid"`
	Note        *string `json:"note" validate:"omitempty,max=255"`
}

type RefundRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"required,max=255"`
}

// ResolveReviewRequest menutup flag needs_review setelah diperiksa manual.
type ResolveReviewRequest struct {
	Note string `json:"note" validate:"required,max=255"`
}
