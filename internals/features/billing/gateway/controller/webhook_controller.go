package controller

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/bytedance/sonic"

	"schoolbill_backend/internals/features/billing/gateway"
	paymodel "schoolbill_backend/internals/features/billing/payments/model"
	paysvc "schoolbill_backend/internals/features/billing/payments/service"
	helper "schoolbill_backend/internals/helpers"
	"schoolbill_backend/internals/helpers/apperr"
	"schoolbill_backend/internals/observability"
)

/* =========================================================
   WebhookController
   POST /billing/webhooks/:provider
   verify signature → log event → terapkan lewat applicator.
   Delivery duplikat aman: applicator idempotent by external id.
========================================================= */

type WebhookController struct {
	DB         *gorm.DB
	Registry   *gateway.Registry
	Applicator *paysvc.Applicator
}

func NewWebhookController(db *gorm.DB, reg *gateway.Registry, app *paysvc.Applicator) *WebhookController {
	return &WebhookController{DB: db, Registry: reg, Applicator: app}
}

func (ctl *WebhookController) Handle(c *fiber.Ctx) error {
	providerName := c.Params("provider")
	provider, err := ctl.Registry.Get(providerName)
	if err != nil {
		observability.WebhooksRejected.WithLabelValues(providerName, "unknown_provider").Inc()
		return helper.JsonAppError(c, err)
	}

	body := append([]byte(nil), c.Body()...)
	headers := map[string]string{}
	c.Request().Header.VisitAll(func(k, v []byte) {
		headers[string(k)] = string(v)
	})

	ev, err := provider.VerifyCallback(headers, body)
	if err != nil {
		if apperr.Is(err, apperr.KindSignature) {
			observability.WebhooksRejected.WithLabelValues(provider.Name(), "bad_signature").Inc()
			ctl.logEvent(provider.Name(), nil, headers, body, paymodel.GatewayEventStatusFailed, err.Error())
			return helper.JsonAppError(c, err)
		}
		observability.WebhooksRejected.WithLabelValues(provider.Name(), "bad_payload").Inc()
		return helper.JsonAppError(c, err)
	}

	event := ctl.logEvent(provider.Name(), ev, headers, body, paymodel.GatewayEventStatusReceived, "")

	switch ev.Status {
	case gateway.StatusSuccess:
		payerRef := ev.ProviderRef
		_, err = ctl.Applicator.ApplyPayment(c.Context(), paysvc.ApplyInput{
			Amount:      ev.Amount,
			Method:      paymodel.PaymentMethodCheckout,
			Channel:     paymodel.PaymentChannelGateway,
			Provider:    provider.Name(),
			ExternalID:  &ev.ExternalID,
			ProviderRef: strOrNil(payerRef),
		})
	case gateway.StatusFailed:
		reason := ev.FailReason
		if reason == "" {
			reason = "gateway melaporkan gagal"
		}
		_, err = ctl.Applicator.MarkFailed(c.Context(), ev.ExternalID, reason)
		if err != nil && apperr.Is(err, apperr.KindNotFound) {
			// Failure untuk payment yang tidak kita kenal: catat saja.
			ctl.markEvent(event, paymodel.GatewayEventStatusIgnored, err.Error())
			return helper.JsonOK(c, "event diabaikan", nil)
		}
	default:
		// Event pending/interim tidak menyentuh ledger.
		ctl.markEvent(event, paymodel.GatewayEventStatusIgnored, "")
		return helper.JsonOK(c, "event diterima", nil)
	}

	if err != nil {
		ctl.markEvent(event, paymodel.GatewayEventStatusFailed, err.Error())
		return helper.JsonAppError(c, err)
	}

	ctl.markEvent(event, paymodel.GatewayEventStatusProcessed, "")
	return helper.JsonOK(c, "event diproses", nil)
}

/* ===================== event log ===================== */

// logEvent menyimpan raw webhook untuk audit/replay. Gagal nyatet log
// tidak boleh menggagalkan processing.
func (ctl *WebhookController) logEvent(provider string, ev *gateway.ParsedEvent, headers map[string]string, body []byte, status, errMsg string) *paymodel.GatewayEvent {
	headerJSON, _ := sonic.Marshal(headers)

	event := &paymodel.GatewayEvent{
		GatewayEventProvider:   provider,
		GatewayEventHeaders:    datatypes.JSON(headerJSON),
		GatewayEventPayload:    datatypes.JSON(body),
		GatewayEventStatus:     status,
		GatewayEventReceivedAt: time.Now(),
	}
	if ev != nil {
		event.GatewayEventExternalID = &ev.ExternalID
		if ev.EventType != "" {
			t := ev.EventType
			event.GatewayEventType = &t
		}
	}
	if errMsg != "" {
		event.GatewayEventError = &errMsg
	}

	if err := ctl.DB.Create(event).Error; err != nil {
		// Duplikat (provider, external id, type) → event sudah pernah dicatat.
		log.Printf("[WEBHOOK] gagal mencatat event %s: %v", provider, err)
		return nil
	}
	return event
}

func (ctl *WebhookController) markEvent(event *paymodel.GatewayEvent, status, errMsg string) {
	if event == nil {
		return
	}
	now := time.Now()
	updates := map[string]interface{}{
		"gateway_event_status":       status,
		"gateway_event_processed_at": now,
	}
	if errMsg != "" {
		updates["gateway_event_error"] = errMsg
	}
	if err := ctl.DB.Model(&paymodel.GatewayEvent{}).
		Where("gateway_event_id = ?", event.GatewayEventID).
		Updates(updates).Error; err != nil {
		log.Printf("[WEBHOOK] gagal update status event: %v", err)
	}
}
