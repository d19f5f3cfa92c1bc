package notify

import "log"

// Event names yang di-emit billing core. Pengiriman sebenarnya (email/SMS)
// hidup di subsistem notifikasi; di sini cuma hook fire-and-forget.
type Event string

const (
	EventPaymentCompleted     Event = "payment.completed"
	EventPaymentFlagged       Event = "payment.flagged"
	EventInvoiceStatusChanged Event = "invoice.status_changed"
)

// Notifier dipanggil fire-and-forget: gagal kirim tidak pernah
// membatalkan operasi ledger.
type Notifier interface {
	Notify(event Event, payload map[string]interface{})
}

// LogNotifier adalah implementasi default (log saja).
type LogNotifier struct{}

func (LogNotifier) Notify(event Event, payload map[string]interface{}) {
	log.Printf("[NOTIFY] %s %v", event, payload)
}

// NopNotifier untuk test.
type NopNotifier struct{}

func (NopNotifier) Notify(Event, map[string]interface{}) {}
