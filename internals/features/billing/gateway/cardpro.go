package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"schoolbill_backend/internals/configs"
	"schoolbill_backend/internals/helpers/apperr"
)

/* =========================================================
   CardPro adapter — card processor dengan REST payment intents.
   Webhook ditandatangani HMAC-SHA512 hex atas raw body.
========================================================= */

const cardproSignatureHeader = "X-CardPro-Signature"

type CardProProvider struct {
	cfg    configs.CardProConfig
	client *http.Client
}

func NewCardProProvider(cfg configs.CardProConfig, timeout time.Duration) *CardProProvider {
	return &CardProProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *CardProProvider) Name() string { return "cardpro" }

/* ===================== Initiate ===================== */

func (c *CardProProvider) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	payload := map[string]interface{}{
		"reference":   req.ExternalID,
		"amount":      req.Amount,
		"currency":    req.Currency,
		"description": req.Description,
		"customer": map[string]string{
			"email": req.PayerEmail,
		},
		"metadata": map[string]string{
			"invoice_id":  req.InvoiceID.String(),
			"account_ref": req.AccountRef,
		},
	}

	raw, status, err := c.do(ctx, http.MethodPost, "/v1/payment_intents", payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, apperr.Gatewayf(apperr.GatewayRejected, "cardpro: create intent %d: %s", status, string(raw))
	}

	var out struct {
		ID          string `json:"id"`
		CheckoutURL string `json:"checkout_url"`
	}
	if err := sonic.Unmarshal(raw, &out); err != nil || out.ID == "" {
		return nil, apperr.Gateway(apperr.GatewayTransient, "cardpro: intent response tidak valid", err)
	}

	var rawMap map[string]interface{}
	_ = sonic.Unmarshal(raw, &rawMap)
	return &InitiateResult{
		ExternalID:  req.ExternalID,
		ProviderRef: out.ID,
		RedirectURL: out.CheckoutURL,
		Raw:         rawMap,
	}, nil
}

/* ===================== QueryStatus ===================== */

func (c *CardProProvider) QueryStatus(ctx context.Context, externalID string) (*StatusResult, error) {
	raw, status, err := c.do(ctx, http.MethodGet, "/v1/payment_intents?reference="+externalID, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, apperr.NotFound("cardpro: intent tidak ditemukan untuk " + externalID)
	}
	if status != http.StatusOK {
		return nil, apperr.Gatewayf(apperr.GatewayRejected, "cardpro: query status %d", status)
	}

	var out struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		Amount        int64  `json:"amount"`
		FailureReason string `json:"failure_reason"`
	}
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return nil, apperr.Gateway(apperr.GatewayTransient, "cardpro: query response tidak valid", err)
	}

	res := &StatusResult{Amount: out.Amount, ProviderRef: out.ID, FailReason: out.FailureReason}
	switch out.Status {
	case "succeeded":
		res.Status = StatusSuccess
	case "failed", "canceled", "cancelled", "expired":
		res.Status = StatusFailed
	default:
		res.Status = StatusPending
	}
	return res, nil
}

/* ===================== VerifyCallback ===================== */

// SignCardProPayload menghitung HMAC-SHA512 hex atas body — juga
// dipakai test untuk membangun webhook valid.
func SignCardProPayload(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *CardProProvider) VerifyCallback(headers map[string]string, body []byte) (*ParsedEvent, error) {
	sig := headerGet(headers, cardproSignatureHeader)
	if sig == "" {
		return nil, apperr.Signature("cardpro: signature header kosong")
	}
	expected := SignCardProPayload(c.cfg.WebhookSecret, body)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sig))) {
		return nil, apperr.Signature("cardpro: signature tidak cocok")
	}

	var ev struct {
		Type string `json:"type"`
		Data struct {
			ID            string `json:"id"`
			Reference     string `json:"reference"`
			Amount        int64  `json:"amount"`
			FailureReason string `json:"failure_reason"`
		} `json:"data"`
	}
	if err := sonic.Unmarshal(body, &ev); err != nil {
		return nil, apperr.Validation("cardpro: body webhook tidak valid")
	}
	if strings.TrimSpace(ev.Data.Reference) == "" {
		return nil, apperr.Validation("cardpro: reference kosong di webhook")
	}

	out := &ParsedEvent{
		ExternalID:  ev.Data.Reference,
		Amount:      ev.Data.Amount,
		ProviderRef: ev.Data.ID,
		EventType:   ev.Type,
		FailReason:  ev.Data.FailureReason,
	}
	switch ev.Type {
	case "payment_intent.succeeded":
		out.Status = StatusSuccess
	case "payment_intent.failed":
		out.Status = StatusFailed
	default:
		out.Status = StatusPending
	}
	return out, nil
}

/* ===================== helpers ===================== */

func (c *CardProProvider) do(ctx context.Context, method, path string, payload interface{}) ([]byte, int, error) {
	var body io.Reader
	if payload != nil {
		b, err := sonic.Marshal(payload)
		if err != nil {
			return nil, 0, apperr.Gateway(apperr.GatewayTransient, "cardpro: marshal payload", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, 0, apperr.Gateway(apperr.GatewayTransient, "cardpro: build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, apperr.Gateway(apperr.GatewayTransient, "cardpro: request gagal", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, resp.StatusCode, apperr.Gatewayf(apperr.GatewayAuth, "cardpro: auth ditolak (%d)", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, resp.StatusCode, apperr.Gatewayf(apperr.GatewayTransient, "cardpro: server error %d", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, resp.StatusCode, apperr.Gatewayf(apperr.GatewayTransient, "cardpro: rate limited")
	}
	return raw, resp.StatusCode, nil
}
