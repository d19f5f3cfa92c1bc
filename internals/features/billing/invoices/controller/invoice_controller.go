package controller

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"schoolbill_backend/internals/features/billing/invoices/dto"
	"schoolbill_backend/internals/features/billing/invoices/service"
	helper "schoolbill_backend/internals/helpers"
)

type InvoiceController struct {
	Service  *service.InvoiceService
	Validate *validator.Validate
}

func NewInvoiceController(db *gorm.DB) *InvoiceController {
	return &InvoiceController{
		Service:  service.NewInvoiceService(db),
		Validate: validator.New(),
	}
}

// 🟢 POST /billing/invoices
func (ctl *InvoiceController) Create(c *fiber.Ctx) error {
	var req dto.CreateInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "body tidak valid")
	}
	if err := ctl.Validate.Struct(req); err != nil {
		return helper.JsonValidationError(c, err)
	}

	enrollmentID, _ := uuid.Parse(req.EnrollmentID)
	structureID, _ := uuid.Parse(req.FeeStructureID)

	inv, err := ctl.Service.CreateInvoice(c.Context(), service.CreateInvoiceInput{
		EnrollmentID:   enrollmentID,
		FeeStructureID: structureID,
		Period:         req.Period,
		DueDate:        req.DueDate,
		Amount:         req.Amount,
	})
	if err != nil {
		return helper.JsonAppError(c, err)
	}
	return helper.JsonCreated(c, "Invoice diterbitkan", inv)
}

// 🟢 GET /billing/invoices/:id
func (ctl *InvoiceController) GetByID(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invoice id tidak valid")
	}
	inv, err := ctl.Service.GetByID(c.Context(), id)
	if err != nil {
		return helper.JsonAppError(c, err)
	}
	return helper.JsonOK(c, "OK", inv)
}

// 🟢 GET /billing/enrollments/:id/invoices?status=
func (ctl *InvoiceController) ListByEnrollment(c *fiber.Ctx) error {
	enrollmentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "enrollment id tidak valid")
	}
	invoices, err := ctl.Service.ListByEnrollment(c.Context(), enrollmentID, c.Query("status"))
	if err != nil {
		return helper.JsonAppError(c, err)
	}
	return helper.JsonOK(c, "OK", invoices)
}

// 🟢 POST /billing/invoices/:id/cancel
func (ctl *InvoiceController) Cancel(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invoice id tidak valid")
	}
	var req dto.CancelInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "body tidak valid")
	}
	if err := ctl.Validate.Struct(req); err != nil {
		return helper.JsonValidationError(c, err)
	}

	inv, err := ctl.Service.CancelInvoice(c.Context(), id, req.Reason)
	if err != nil {
		return helper.JsonAppError(c, err)
	}
	return helper.JsonUpdated(c, "Invoice dibatalkan", inv)
}
