package dto

import "time"

/* ===================== Request DTO ===================== */

type CreateFeeStructureRequest struct {
	SchoolID     string     `json:"school_id" validate:"required,uuid"`
	ClassID      *string    `json:"class_id" validate:"omitempty,uuid"`
	AcademicYear string     `json:"academic_year" validate:"required,max=16"`
	Name         string     `json:"name" validate:"required,max=120"`
	Code         string     `json:"code" validate:"required,max=40"`
	Amount       int64      `json:"amount" validate:"required,gt=0"`
	Currency     string     `json:"currency" validate:"omitempty,len=3"`
	Frequency    string     `json:"frequency" validate:"required,oneof=once per_term per_year on_demand"`
	Mandatory    *bool      `json:"mandatory"`
	ValidFrom    *time.Time `json:"valid_from"`
	ValidUntil   *time.Time `json:"valid_until"`
}

type UpdateFeeStructureRequest struct {
	Name       *string    `json:"name" validate:"omitempty,max=120"`
	Amount     *int64     `json:"amount" validate:"omitempty,gt=0"`
	Frequency  *string    `json:"frequency" validate:"omitempty,oneof=once per_term per_year on_demand"`
	Mandatory  *bool      `json:"mandatory"`
	ValidFrom  *time.Time `json:"valid_from"`
	ValidUntil *time.Time `json:"valid_until"`
	IsActive   *bool      `json:"is_active"`
}
