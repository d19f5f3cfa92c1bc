package gateway

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"

	"schoolbill_backend/internals/configs"
	"schoolbill_backend/internals/helpers/apperr"
)

/* =========================================================
   Midtrans adapter (Snap checkout).
   Notifikasi diverifikasi dengan signature_key:
   sha512(order_id + status_code + gross_amount + server_key).
========================================================= */

type MidtransProvider struct {
	cfg  configs.MidtransConfig
	snap snap.Client
	core coreapi.Client
}

func NewMidtransProvider(cfg configs.MidtransConfig) *MidtransProvider {
	env := midtrans.Sandbox
	if cfg.Production {
		env = midtrans.Production
	}
	p := &MidtransProvider{cfg: cfg}
	p.snap.New(cfg.ServerKey, env)
	p.core.New(cfg.ServerKey, env)
	return p
}

func (m *MidtransProvider) Name() string { return "midtrans" }

/* ===================== Initiate (Snap) ===================== */

func (m *MidtransProvider) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.ExternalID,
			GrossAmt: req.Amount,
		},
		Items: &[]midtrans.ItemDetails{{
			ID:    req.InvoiceID.String(),
			Name:  truncate(req.Description, 50),
			Price: req.Amount,
			Qty:   1,
		}},
		CustomerDetail: &midtrans.CustomerDetails{
			Email: req.PayerEmail,
		},
	}

	res, err := m.snap.CreateTransaction(snapReq)
	if err != nil {
		return nil, mapMidtransError(err)
	}

	return &InitiateResult{
		ExternalID:  req.ExternalID,
		ProviderRef: res.Token,
		RedirectURL: res.RedirectURL,
	}, nil
}

/* ===================== QueryStatus ===================== */

func (m *MidtransProvider) QueryStatus(ctx context.Context, externalID string) (*StatusResult, error) {
	res, err := m.core.CheckTransaction(externalID)
	if err != nil {
		return nil, mapMidtransError(err)
	}
	if res == nil {
		return nil, apperr.NotFound("midtrans: transaksi tidak ditemukan untuk " + externalID)
	}

	out := &StatusResult{
		ProviderRef: res.TransactionID,
		Amount:      parseGrossAmount(res.GrossAmount),
	}
	out.Status, out.FailReason = MapMidtransStatus(res.TransactionStatus, res.FraudStatus)
	return out, nil
}

// MapMidtransStatus menerjemahkan transaction_status + fraud_status ke
// status internal.
func MapMidtransStatus(txStatus, fraudStatus string) (Status, string) {
	switch txStatus {
	case "capture":
		if fraudStatus == "challenge" {
			return StatusPending, ""
		}
		return StatusSuccess, ""
	case "settlement":
		return StatusSuccess, ""
	case "deny", "cancel", "expire", "failure":
		return StatusFailed, "transaction_status " + txStatus
	default: // pending, authorize
		return StatusPending, ""
	}
}

/* ===================== VerifyCallback ===================== */

// MidtransSignature = sha512 hex dari orderID + statusCode + grossAmount + serverKey.
func MidtransSignature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func (m *MidtransProvider) VerifyCallback(headers map[string]string, body []byte) (*ParsedEvent, error) {
	var notif struct {
		OrderID           string `json:"order_id"`
		StatusCode        string `json:"status_code"`
		GrossAmount       string `json:"gross_amount"`
		SignatureKey      string `json:"signature_key"`
		TransactionID     string `json:"transaction_id"`
		TransactionStatus string `json:"transaction_status"`
		FraudStatus       string `json:"fraud_status"`
	}
	if err := sonic.Unmarshal(body, &notif); err != nil {
		return nil, apperr.Validation("midtrans: body notifikasi tidak valid")
	}
	if notif.OrderID == "" || notif.SignatureKey == "" {
		return nil, apperr.Signature("midtrans: order_id / signature_key kosong")
	}

	expected := MidtransSignature(notif.OrderID, notif.StatusCode, notif.GrossAmount, m.cfg.ServerKey)
	if !strings.EqualFold(expected, notif.SignatureKey) {
		return nil, apperr.Signature("midtrans: signature_key tidak cocok")
	}

	ev := &ParsedEvent{
		ExternalID:  notif.OrderID,
		Amount:      parseGrossAmount(notif.GrossAmount),
		ProviderRef: notif.TransactionID,
		EventType:   "transaction." + notif.TransactionStatus,
	}
	ev.Status, ev.FailReason = MapMidtransStatus(notif.TransactionStatus, notif.FraudStatus)
	return ev, nil
}

/* ===================== helpers ===================== */

func mapMidtransError(err *midtrans.Error) error {
	if err == nil {
		return nil
	}
	switch {
	case err.StatusCode == 401 || err.StatusCode == 403:
		return apperr.Gateway(apperr.GatewayAuth, "midtrans: auth ditolak", err)
	case err.StatusCode >= 500 || err.StatusCode == 0:
		return apperr.Gateway(apperr.GatewayTransient, "midtrans: server error", err)
	default:
		return apperr.Gateway(apperr.GatewayRejected, "midtrans: request ditolak", err)
	}
}

// gross_amount dikirim Midtrans sebagai string desimal ("10000.00").
func parseGrossAmount(s string) int64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(f)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
