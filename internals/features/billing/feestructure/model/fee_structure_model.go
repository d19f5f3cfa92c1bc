package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

/* ===================== Enums (string) ===================== */

const (
	FrequencyOnce     = "once"
	FrequencyPerTerm  = "per_term"
	FrequencyPerYear  = "per_year"
	FrequencyOnDemand = "on_demand"
)

/* ===================== Model ===================== */

// FeeStructure adalah template definisi biaya. Sekali ada invoice yang
// terbit darinya, strukturnya dikunci (immutable).
type FeeStructure struct {
	FeeStructureID uuid.UUID `gorm:"column:fee_structure_id;type:uuid;default:gen_random_uuid();primaryKey" json:"fee_structure_id"`

	FeeStructureSchoolID uuid.UUID  `gorm:"column:fee_structure_school_id;type:uuid;not null" json:"fee_structure_school_id"`
	FeeStructureClassID  *uuid.UUID `gorm:"column:fee_structure_class_id;type:uuid" json:"fee_structure_class_id,omitempty"`

	FeeStructureAcademicYear string `gorm:"column:fee_structure_academic_year;type:varchar(16);not null" json:"fee_structure_academic_year"`
	FeeStructureName         string `gorm:"column:fee_structure_name;type:varchar(120);not null" json:"fee_structure_name"`
	FeeStructureCode         string `gorm:"column:fee_structure_code;type:varchar(40);not null" json:"fee_structure_code"`

	FeeStructureAmount   int64  `gorm:"column:fee_structure_amount;not null;check:fee_structure_amount > 0" json:"fee_structure_amount"`
	FeeStructureCurrency string `gorm:"column:fee_structure_currency;type:varchar(8);not null;default:UGX" json:"fee_structure_currency"`

	FeeStructureFrequency string `gorm:"column:fee_structure_frequency;type:varchar(16);not null;default:'per_term'" json:"fee_structure_frequency"`
	FeeStructureMandatory bool   `gorm:"column:fee_structure_mandatory;not null;default:true" json:"fee_structure_mandatory"`

	FeeStructureValidFrom  *time.Time `gorm:"column:fee_structure_valid_from" json:"fee_structure_valid_from,omitempty"`
	FeeStructureValidUntil *time.Time `gorm:"column:fee_structure_valid_until" json:"fee_structure_valid_until,omitempty"`
	FeeStructureIsActive   bool       `gorm:"column:fee_structure_is_active;not null;default:true" json:"fee_structure_is_active"`

	CreatedAt time.Time      `gorm:"column:fee_structure_created_at;autoCreateTime" json:"fee_structure_created_at"`
	UpdatedAt time.Time      `gorm:"column:fee_structure_updated_at;autoUpdateTime" json:"fee_structure_updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:fee_structure_deleted_at;index" json:"fee_structure_deleted_at,omitempty"`
}

func (FeeStructure) TableName() string { return "fee_structures" }

/* ===================== Helpers ===================== */

// BillableAt melaporkan apakah struktur aktif dan masih dalam validity window.
func (fs *FeeStructure) BillableAt(now time.Time) bool {
	if !fs.FeeStructureIsActive {
		return false
	}
	if fs.FeeStructureValidFrom != nil && now.Before(*fs.FeeStructureValidFrom) {
		return false
	}
	if fs.FeeStructureValidUntil != nil && now.After(*fs.FeeStructureValidUntil) {
		return false
	}
	return true
}
