package observability

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PaymentsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_payments_applied_total",
		Help: "Payments committed to invoices, by channel.",
	}, []string{"channel"})

	PaymentsFlagged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_payments_flagged_total",
		Help: "Payments flagged for manual review (clamped or orphaned).",
	})

	WebhooksRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_webhooks_rejected_total",
		Help: "Webhook callbacks rejected before reaching the ledger.",
	}, []string{"provider", "reason"})

	ReconcileCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_reconcile_cycles_total",
		Help: "Completed reconciliation sweeps.",
	})

	ReconcileRecovered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_reconcile_recovered_total",
		Help: "Pending payments resolved by polling after a lost callback.",
	})

	InvoicesOverdue = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_invoices_overdue_total",
		Help: "Invoices flipped to overdue by the periodic sweep.",
	})
)

func init() {
	prometheus.MustRegister(
		PaymentsApplied,
		PaymentsFlagged,
		WebhooksRejected,
		ReconcileCycles,
		ReconcileRecovered,
		InvoicesOverdue,
	)
}

// MetricsHandler expose /metrics lewat adaptor net/http → fiber.
func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
