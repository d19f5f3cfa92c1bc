package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"schoolbill_backend/internals/helpers/apperr"
)

/* =========================================================
   Provider abstraction.
   Tiga implementasi: mpesa (STK push), cardpro (card REST),
   midtrans (Snap). Core billing hanya bicara lewat interface
   ini; detail wire format hidup di masing-masing adapter.
========================================================= */

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

type InitiateRequest struct {
	InvoiceID   uuid.UUID
	ExternalID  string // idempotency key yang kita generate untuk checkout ini
	Amount      int64
	Currency    string
	PayerMsisdn string // khusus mpesa
	PayerEmail  string
	Description string
	AccountRef  string // correlation ref yang ikut ke provider (dipakai matching callback)
}

type InitiateResult struct {
	ExternalID  string
	ProviderRef string // id sisi provider (checkout request / order id)
	RedirectURL string // halaman pembayaran, kosong untuk STK push
	Raw         map[string]interface{}
}

type StatusResult struct {
	Status      Status
	Amount      int64 // nominal terkonfirmasi provider (0 jika tidak dilaporkan)
	ProviderRef string
	FailReason  string
}

// ParsedEvent adalah hasil verifikasi + parse satu callback webhook.
type ParsedEvent struct {
	ExternalID  string
	Status      Status
	Amount      int64
	ProviderRef string
	FailReason  string
	EventType   string
}

type Provider interface {
	Name() string
	// Initiate memulai satu pembayaran di provider. Error transient
	// (timeout, 5xx) dibungkus apperr.Gateway{TRANSIENT} supaya caller
	// bisa retry; auth/rejected tidak di-retry.
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	// QueryStatus menanyakan status pembayaran by external id (untuk reconciler).
	QueryStatus(ctx context.Context, externalID string) (*StatusResult, error)
	// VerifyCallback memvalidasi signature lalu mem-parse body webhook.
	// Signature salah → apperr.Signature.
	VerifyCallback(headers map[string]string, body []byte) (*ParsedEvent, error)
}

/* ===================== Registry ===================== */

type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, apperr.NotFound("provider tidak dikenal: " + name)
	}
	return p, nil
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	return out
}

/* ===================== Retry ===================== */

const maxInitiateTries = 3

// InitiateWithRetry membungkus Initiate dengan exponential backoff.
// Hanya error TRANSIENT yang di-retry; AUTH/REJECTED langsung menyerah.
func InitiateWithRetry(ctx context.Context, p Provider, req InitiateRequest) (*InitiateResult, error) {
	op := func() (*InitiateResult, error) {
		res, err := p.Initiate(ctx, req)
		if err != nil {
			if apperr.IsTransient(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return res, nil
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxInitiateTries),
	)
}

// QueryStatusWithRetry: retry policy yang sama untuk polling reconciler.
func QueryStatusWithRetry(ctx context.Context, p Provider, externalID string) (*StatusResult, error) {
	op := func() (*StatusResult, error) {
		res, err := p.QueryStatus(ctx, externalID)
		if err != nil {
			if apperr.IsTransient(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return res, nil
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxInitiateTries),
	)
}

// GenExternalID membuat idempotency key untuk satu checkout.
func GenExternalID(provider string) string {
	now := time.Now().Format("20060102-150405")
	u := uuid.New().String()
	if len(u) > 8 {
		u = u[:8]
	}
	return strings.ToUpper(provider) + "-" + now + "-" + strings.ToUpper(u)
}
