package dto

import "time"

/* ===================== Request DTO ===================== */

type CreateInvoiceRequest struct {
	EnrollmentID   string    `json:"enrollment_id" validate:"required,uuid"`
	FeeStructureID string    `json:"fee_structure_id" validate:"required,uuid"`
	Period         string    `json:"period" validate:"required,max=24"`
	DueDate        time.Time `json:"due_date" validate:"required"`
	Amount         *int64    `json:"amount" validate:"omitempty,gt=0"`
}

type CancelInvoiceRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}
