package details

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	fsController "schoolbill_backend/internals/features/billing/feestructure/controller"
	"schoolbill_backend/internals/features/billing/gateway"
	gwController "schoolbill_backend/internals/features/billing/gateway/controller"
	invController "schoolbill_backend/internals/features/billing/invoices/controller"
	payController "schoolbill_backend/internals/features/billing/payments/controller"
	paysvc "schoolbill_backend/internals/features/billing/payments/service"
	"schoolbill_backend/internals/middlewares"
)

// BillingAdminRoutes: seluruh surface admin/bursar (sudah di belakang JWT + role check).
func BillingAdminRoutes(api fiber.Router, db *gorm.DB, applicator *paysvc.Applicator, registry *gateway.Registry) {
	feeCtl := fsController.NewFeeStructureController(db)
	invCtl := invController.NewInvoiceController(db)
	payCtl := payController.NewPaymentController(db, applicator)
	checkoutCtl := gwController.NewCheckoutController(db, registry)

	// ===================== FEE STRUCTURES =====================
	fees := api.Group("/fee-structures")
	fees.Post("/", feeCtl.Create)
	fees.Get("/", feeCtl.List)
	fees.Get("/:id", feeCtl.GetByID)
	fees.Put("/:id", feeCtl.Update)
	fees.Delete("/:id", feeCtl.Delete)

	// ===================== INVOICES =====================
	invoices := api.Group("/invoices")
	invoices.Post("/", invCtl.Create)
	invoices.Get("/:id", invCtl.GetByID)
	invoices.Post("/:id/cancel", invCtl.Cancel)
	invoices.Get("/:id/payments", payCtl.ListByInvoice)
	invoices.Post("/:id/checkout", middlewares.CheckoutRateLimiter(), checkoutCtl.Checkout)

	api.Get("/enrollments/:id/invoices", invCtl.ListByEnrollment)

	// ===================== PAYMENTS =====================
	payments := api.Group("/payments")
	payments.Post("/", payCtl.CreateManual)
	payments.Get("/review", payCtl.ListNeedsReview)
	payments.Get("/:id", payCtl.GetByID)
	payments.Post("/:id/resolve-review", payCtl.ResolveReview)
	payments.Post("/:id/refunds", payCtl.Refund)
}
