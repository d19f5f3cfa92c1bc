// file: internals/route/index.go
package routes

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"schoolbill_backend/internals/features/billing/gateway"
	paysvc "schoolbill_backend/internals/features/billing/payments/service"
	authMiddleware "schoolbill_backend/internals/middlewares/auth"
	routeDetails "schoolbill_backend/internals/route/details"
)

// SetupRoutes memasang seluruh route billing.
//
//   - /api/billing/webhooks/* → PUBLIC, diverifikasi signature per provider
//   - /api/a/billing/*        → JWT + role admin/bursar
func SetupRoutes(app *fiber.App, db *gorm.DB, applicator *paysvc.Applicator, registry *gateway.Registry) {
	// ===================== PUBLIC (webhook) =====================
	log.Println("[INFO] Setting up WebhookRoutes...")
	public := app.Group("/api/billing")
	routeDetails.WebhookRoutes(public, db, applicator, registry)

	// ===================== ADMIN / BURSAR =====================
	log.Println("[INFO] Setting up BillingAdminRoutes...")
	admin := app.Group("/api/a/billing",
		authMiddleware.AuthMiddleware(),
		authMiddleware.RequireRoles("admin", "bursar"),
	)
	routeDetails.BillingAdminRoutes(admin, db, applicator, registry)
}
