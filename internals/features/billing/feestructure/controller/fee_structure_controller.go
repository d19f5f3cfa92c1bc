package controller

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"schoolbill_backend/internals/configs"
	"schoolbill_backend/internals/features/billing/feestructure/dto"
	model "schoolbill_backend/internals/features/billing/feestructure/model"
	invmodel "schoolbill_backend/internals/features/billing/invoices/model"
	helper "schoolbill_backend/internals/helpers"
	"schoolbill_backend/internals/helpers/apperr"
)

/* =========================================================
   FeeStructureController — CRUD template biaya.
   Begitu ada invoice yang terbit dari sebuah structure,
   nominal & frekuensinya dikunci; hanya deaktivasi yang boleh.
========================================================= */

type FeeStructureController struct {
	DB       *gorm.DB
	Validate *validator.Validate
}

func NewFeeStructureController(db *gorm.DB) *FeeStructureController {
	return &FeeStructureController{DB: db, Validate: validator.New()}
}

// 🟢 POST /billing/fee-structures
func (ctl *FeeStructureController) Create(c *fiber.Ctx) error {
	var req dto.CreateFeeStructureRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "body tidak valid")
	}
	if err := ctl.Validate.Struct(req); err != nil {
		return helper.JsonValidationError(c, err)
	}

	schoolID, _ := uuid.Parse(req.SchoolID)
	var classID *uuid.UUID
	if req.ClassID != nil {
		id, _ := uuid.Parse(*req.ClassID)
		classID = &id
	}

	currency := req.Currency
	if currency == "" {
		currency = configs.DefaultCurrency
	}
	mandatory := true
	if req.Mandatory != nil {
		mandatory = *req.Mandatory
	}

	fs := model.FeeStructure{
		FeeStructureID:           uuid.New(),
		FeeStructureSchoolID:     schoolID,
		FeeStructureClassID:      classID,
		FeeStructureAcademicYear: req.AcademicYear,
		FeeStructureName:         req.Name,
		FeeStructureCode:         req.Code,
		FeeStructureAmount:       req.Amount,
		FeeStructureCurrency:     currency,
		FeeStructureFrequency:    req.Frequency,
		FeeStructureMandatory:    mandatory,
		FeeStructureValidFrom:    req.ValidFrom,
		FeeStructureValidUntil:   req.ValidUntil,
		FeeStructureIsActive:     true,
	}
	if err := ctl.DB.Create(&fs).Error; err != nil {
		return helper.JsonError(c, fiber.StatusInternalServerError, "gagal menyimpan fee structure")
	}
	return helper.JsonCreated(c, "Fee structure dibuat", fs)
}

// 🟢 GET /billing/fee-structures?school_id=&academic_year=
func (ctl *FeeStructureController) List(c *fiber.Ctx) error {
	q := ctl.DB.Model(&model.FeeStructure{}).Order("fee_structure_created_at DESC")
	if v := c.Query("school_id"); v != "" {
		q = q.Where("fee_structure_school_id = ?", v)
	}
	if v := c.Query("academic_year"); v != "" {
		q = q.Where("fee_structure_academic_year = ?", v)
	}

	var out []model.FeeStructure
	if err := q.Find(&out).Error; err != nil {
		return helper.JsonError(c, fiber.StatusInternalServerError, "gagal memuat fee structures")
	}
	return helper.JsonOK(c, "OK", out)
}

// 🟢 GET /billing/fee-structures/:id
func (ctl *FeeStructureController) GetByID(c *fiber.Ctx) error {
	fs, err := ctl.load(c)
	if err != nil {
		return helper.JsonAppError(c, err)
	}
	return helper.JsonOK(c, "OK", fs)
}

// 🟢 PUT /billing/fee-structures/:id
func (ctl *FeeStructureController) Update(c *fiber.Ctx) error {
	fs, err := ctl.load(c)
	if err != nil {
		return helper.JsonAppError(c, err)
	}

	var req dto.UpdateFeeStructureRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "body tidak valid")
	}
	if err := ctl.Validate.Struct(req); err != nil {
		return helper.JsonValidationError(c, err)
	}

	invoiced, err := ctl.hasInvoices(fs.FeeStructureID)
	if err != nil {
		return helper.JsonError(c, fiber.StatusInternalServerError, "gagal cek pemakaian structure")
	}
	if invoiced && (req.Amount != nil || req.Frequency != nil) {
		return helper.JsonAppError(c, apperr.Conflict(
			"fee structure sudah dipakai invoice; amount/frequency terkunci"))
	}

	if req.Name != nil {
		fs.FeeStructureName = *req.Name
	}
	if req.Amount != nil {
		fs.FeeStructureAmount = *req.Amount
	}
	if req.Frequency != nil {
		fs.FeeStructureFrequency = *req.Frequency
	}
	if req.Mandatory != nil {
		fs.FeeStructureMandatory = *req.Mandatory
	}
	if req.ValidFrom != nil {
		fs.FeeStructureValidFrom = req.ValidFrom
	}
	if req.ValidUntil != nil {
		fs.FeeStructureValidUntil = req.ValidUntil
	}
	if req.IsActive != nil {
		fs.FeeStructureIsActive = *req.IsActive
	}

	if err := ctl.DB.Save(fs).Error; err != nil {
		return helper.JsonError(c, fiber.StatusInternalServerError, "gagal update fee structure")
	}
	return helper.JsonUpdated(c, "Fee structure diupdate", fs)
}

// 🟢 DELETE /billing/fee-structures/:id (soft delete)
func (ctl *FeeStructureController) Delete(c *fiber.Ctx) error {
	fs, err := ctl.load(c)
	if err != nil {
		return helper.JsonAppError(c, err)
	}

	invoiced, err := ctl.hasInvoices(fs.FeeStructureID)
	if err != nil {
		return helper.JsonError(c, fiber.StatusInternalServerError, "gagal cek pemakaian structure")
	}
	if invoiced {
		return helper.JsonAppError(c, apperr.Conflict(
			"fee structure sudah dipakai invoice; nonaktifkan saja (is_active=false)"))
	}

	if err := ctl.DB.Delete(fs).Error; err != nil {
		return helper.JsonError(c, fiber.StatusInternalServerError, "gagal hapus fee structure")
	}
	return helper.JsonOK(c, "Fee structure dihapus", nil)
}

/* ===================== helpers ===================== */

func (ctl *FeeStructureController) load(c *fiber.Ctx) (*model.FeeStructure, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, apperr.Validation("fee structure id tidak valid")
	}
	var fs model.FeeStructure
	if err := ctl.DB.First(&fs, "fee_structure_id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("fee structure tidak ditemukan")
		}
		return nil, err
	}
	return &fs, nil
}

func (ctl *FeeStructureController) hasInvoices(id uuid.UUID) (bool, error) {
	var n int64
	err := ctl.DB.Model(&invmodel.FeeInvoice{}).
		Where("invoice_fee_structure_id = ?", id).
		Count(&n).Error
	return n > 0, err
}
