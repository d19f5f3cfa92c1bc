package apperr

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

/* =========================================================
   Error taxonomy untuk operasi billing.
   Semua error yang menyentuh uang harus lewat sini supaya
   controller bisa memetakan ke HTTP status secara konsisten.
========================================================= */

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindConflict
	KindOverpayment
	KindGateway
	KindSignature
)

// GatewayReason adalah subkind machine-readable untuk kegagalan gateway.
type GatewayReason string

const (
	GatewayAuth      GatewayReason = "AUTH"
	GatewayTransient GatewayReason = "TRANSIENT"
	GatewayRejected  GatewayReason = "REJECTED"
)

type Error struct {
	Kind   Kind
	Reason GatewayReason // hanya terisi untuk KindGateway
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func NotFound(msg string) *Error    { return &Error{Kind: KindNotFound, Msg: msg} }
func Validation(msg string) *Error  { return &Error{Kind: KindValidation, Msg: msg} }
func Conflict(msg string) *Error    { return &Error{Kind: KindConflict, Msg: msg} }
func Overpayment(msg string) *Error { return &Error{Kind: KindOverpayment, Msg: msg} }
func Signature(msg string) *Error   { return &Error{Kind: KindSignature, Msg: msg} }

func Gateway(reason GatewayReason, msg string, err error) *Error {
	return &Error{Kind: KindGateway, Reason: reason, Msg: msg, Err: err}
}

func Gatewayf(reason GatewayReason, format string, args ...interface{}) *Error {
	return &Error{Kind: KindGateway, Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

// KindOf mengembalikan Kind dari err (KindUnknown jika bukan *Error).
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// IsTransient true jika err adalah GatewayError{TRANSIENT} — boleh di-retry.
func IsTransient(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == KindGateway && ae.Reason == GatewayTransient
	}
	return false
}

func Is(err error, kind Kind) bool { return KindOf(err) == kind }

// HTTPStatus memetakan error ke status code untuk response JSON.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return fiber.StatusNotFound
	case KindValidation:
		return fiber.StatusBadRequest
	case KindConflict:
		return fiber.StatusConflict
	case KindOverpayment:
		return fiber.StatusUnprocessableEntity
	case KindSignature:
		return fiber.StatusUnauthorized
	case KindGateway:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
