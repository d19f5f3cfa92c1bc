package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"schoolbill_backend/internals/configs"
	"schoolbill_backend/internals/helpers/apperr"
)

/* =========================================================
   M-Pesa STK Push adapter.
   Initiate menembak push ke HP payer; konfirmasi datang async
   lewat callback (resultCode 0 = sukses). Callback ditandatangani
   HMAC-SHA256 atas raw body.
========================================================= */

const (
	mpesaTimestampLayout = "20060102150405"
	mpesaSignatureHeader = "X-Mpesa-Signature"
)

type MpesaProvider struct {
	cfg    configs.MpesaConfig
	client *http.Client

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewMpesaProvider(cfg configs.MpesaConfig, timeout time.Duration) *MpesaProvider {
	return &MpesaProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (m *MpesaProvider) Name() string { return "mpesa" }

/* ===================== OAuth token ===================== */

func (m *MpesaProvider) token(ctx context.Context) (string, error) {
	m.tokenMu.Lock()
	defer m.tokenMu.Unlock()

	if m.accessToken != "" && time.Now().Before(m.tokenExpiry) {
		return m.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		m.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", apperr.Gateway(apperr.GatewayTransient, "mpesa: build token request", err)
	}
	req.SetBasicAuth(m.cfg.ConsumerKey, m.cfg.ConsumerSecret)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", apperr.Gateway(apperr.GatewayTransient, "mpesa: token request gagal", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", apperr.Gatewayf(apperr.GatewayAuth, "mpesa: credential ditolak (%d)", resp.StatusCode)
	case resp.StatusCode >= 500:
		return "", apperr.Gatewayf(apperr.GatewayTransient, "mpesa: token endpoint %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", apperr.Gatewayf(apperr.GatewayRejected, "mpesa: token endpoint %d: %s", resp.StatusCode, string(body))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := sonic.Unmarshal(body, &tok); err != nil || tok.AccessToken == "" {
		return "", apperr.Gateway(apperr.GatewayTransient, "mpesa: token response tidak valid", err)
	}

	m.accessToken = tok.AccessToken
	// Safaricom kasih 3599 detik; refresh lebih awal.
	m.tokenExpiry = time.Now().Add(50 * time.Minute)
	return m.accessToken, nil
}

/* ===================== Initiate (STK push) ===================== */

// StkPassword = base64(shortcode + passkey + timestamp).
func StkPassword(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

func (m *MpesaProvider) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if strings.TrimSpace(req.PayerMsisdn) == "" {
		return nil, apperr.Validation("mpesa: payer msisdn wajib diisi")
	}

	tok, err := m.token(ctx)
	if err != nil {
		return nil, err
	}

	ts := time.Now().Format(mpesaTimestampLayout)
	payload := map[string]interface{}{
		"shortCode":      m.cfg.ShortCode,
		"timestamp":      ts,
		"hashedPassword": StkPassword(m.cfg.ShortCode, m.cfg.Passkey, ts),
		"amount":         req.Amount,
		"payerMsisdn":    req.PayerMsisdn,
		"callbackUrl":    m.cfg.CallbackURL,
		"accountRef":     req.AccountRef,
		"description":    req.Description,
	}

	raw, status, err := m.post(ctx, "/stkpush/v1/processrequest", tok, payload)
	if err != nil {
		return nil, err
	}

	var out struct {
		CheckoutRequestID   string `json:"checkoutRequestId"`
		MerchantRequestID   string `json:"merchantRequestId"`
		ResponseCode        string `json:"responseCode"`
		ResponseDescription string `json:"responseDescription"`
	}
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return nil, apperr.Gateway(apperr.GatewayTransient, "mpesa: stkpush response tidak valid", err)
	}
	if status != http.StatusOK || out.ResponseCode != "0" {
		return nil, apperr.Gatewayf(apperr.GatewayRejected,
			"mpesa: stkpush ditolak (%s): %s", out.ResponseCode, out.ResponseDescription)
	}

	var rawMap map[string]interface{}
	_ = sonic.Unmarshal(raw, &rawMap)
	return &InitiateResult{
		ExternalID:  req.ExternalID,
		ProviderRef: out.CheckoutRequestID,
		Raw:         rawMap,
	}, nil
}

/* ===================== QueryStatus ===================== */

func (m *MpesaProvider) QueryStatus(ctx context.Context, externalID string) (*StatusResult, error) {
	tok, err := m.token(ctx)
	if err != nil {
		return nil, err
	}

	ts := time.Now().Format(mpesaTimestampLayout)
	payload := map[string]interface{}{
		"shortCode":      m.cfg.ShortCode,
		"timestamp":      ts,
		"hashedPassword": StkPassword(m.cfg.ShortCode, m.cfg.Passkey, ts),
		"accountRef":     externalID,
	}

	raw, status, err := m.post(ctx, "/stkpushquery/v1/query", tok, payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, apperr.Gatewayf(apperr.GatewayRejected, "mpesa: query status %d", status)
	}

	var out struct {
		ResultCode *int   `json:"resultCode"`
		ResultDesc string `json:"resultDesc"`
		Amount     int64  `json:"amount"`
		Receipt    string `json:"mpesaReceiptNumber"`
	}
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return nil, apperr.Gateway(apperr.GatewayTransient, "mpesa: query response tidak valid", err)
	}

	res := &StatusResult{Amount: out.Amount, ProviderRef: out.Receipt}
	switch {
	case out.ResultCode == nil:
		res.Status = StatusPending
	case *out.ResultCode == 0:
		res.Status = StatusSuccess
	default:
		res.Status = StatusFailed
		res.FailReason = fmt.Sprintf("resultCode %d: %s", *out.ResultCode, out.ResultDesc)
	}
	return res, nil
}

/* ===================== VerifyCallback ===================== */

func (m *MpesaProvider) VerifyCallback(headers map[string]string, body []byte) (*ParsedEvent, error) {
	sig := headerGet(headers, mpesaSignatureHeader)
	if sig == "" {
		return nil, apperr.Signature("mpesa: signature header kosong")
	}

	mac := hmac.New(sha256.New, []byte(m.cfg.CallbackSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sig))) {
		return nil, apperr.Signature("mpesa: signature tidak cocok")
	}

	var cb struct {
		AccountRef string `json:"accountRef"`
		ResultCode int    `json:"resultCode"`
		ResultDesc string `json:"resultDesc"`
		Amount     int64  `json:"amount"`
		Receipt    string `json:"mpesaReceiptNumber"`
	}
	if err := sonic.Unmarshal(body, &cb); err != nil {
		return nil, apperr.Validation("mpesa: body callback tidak valid")
	}
	if strings.TrimSpace(cb.AccountRef) == "" {
		return nil, apperr.Validation("mpesa: accountRef kosong di callback")
	}

	ev := &ParsedEvent{
		ExternalID:  cb.AccountRef,
		Amount:      cb.Amount,
		ProviderRef: cb.Receipt,
		EventType:   "stk.callback",
	}
	if cb.ResultCode == 0 {
		ev.Status = StatusSuccess
	} else {
		ev.Status = StatusFailed
		ev.FailReason = fmt.Sprintf("resultCode %d: %s", cb.ResultCode, cb.ResultDesc)
	}
	return ev, nil
}

/* ===================== helpers ===================== */

func (m *MpesaProvider) post(ctx context.Context, path, token string, payload interface{}) ([]byte, int, error) {
	body, err := sonic.Marshal(payload)
	if err != nil {
		return nil, 0, apperr.Gateway(apperr.GatewayTransient, "mpesa: marshal payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, apperr.Gateway(apperr.GatewayTransient, "mpesa: build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, 0, apperr.Gateway(apperr.GatewayTransient, "mpesa: request gagal", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, resp.StatusCode, apperr.Gatewayf(apperr.GatewayAuth, "mpesa: auth ditolak (%d)", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, resp.StatusCode, apperr.Gatewayf(apperr.GatewayTransient, "mpesa: server error %d", resp.StatusCode)
	}
	return raw, resp.StatusCode, nil
}

func headerGet(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
