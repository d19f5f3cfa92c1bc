package details

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"schoolbill_backend/internals/features/billing/gateway"
	gwController "schoolbill_backend/internals/features/billing/gateway/controller"
	paysvc "schoolbill_backend/internals/features/billing/payments/service"
	"schoolbill_backend/internals/middlewares"
)

// WebhookRoutes: endpoint callback provider. Tanpa JWT — keamanan lewat
// verifikasi signature di masing-masing adapter.
func WebhookRoutes(api fiber.Router, db *gorm.DB, applicator *paysvc.Applicator, registry *gateway.Registry) {
	ctl := gwController.NewWebhookController(db, registry, applicator)

	webhooks := api.Group("/webhooks", middlewares.WebhookRateLimiter())
	webhooks.Post("/:provider", ctl.Handle)
}
