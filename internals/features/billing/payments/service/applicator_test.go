package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	invmodel "schoolbill_backend/internals/features/billing/invoices/model"
	model "schoolbill_backend/internals/features/billing/payments/model"
	"schoolbill_backend/internals/features/billing/notify"
	"schoolbill_backend/internals/helpers/apperr"
)

/* =========================================================
   In-memory Store fake. Semantik copy-on-read/copy-on-write
   meniru row database: mutasi baru terlihat setelah Save.
========================================================= */

type memStore struct {
	mu         sync.Mutex
	invoices   map[uuid.UUID]invmodel.FeeInvoice
	payments   map[uuid.UUID]model.Payment
	byExternal map[string]uuid.UUID
	refunds    []model.Refund
}

func newMemStore() *memStore {
	return &memStore{
		invoices:   make(map[uuid.UUID]invmodel.FeeInvoice),
		payments:   make(map[uuid.UUID]model.Payment),
		byExternal: make(map[string]uuid.UUID),
	}
}

func (s *memStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return fn(s)
}

func (s *memStore) GetInvoiceForUpdate(ctx context.Context, id uuid.UUID) (*invmodel.FeeInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, apperr.NotFound("invoice tidak ditemukan")
	}
	cp := inv
	return &cp, nil
}

func (s *memStore) SaveInvoice(ctx context.Context, inv *invmodel.FeeInvoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices[inv.InvoiceID] = *inv
	return nil
}

func (s *memStore) GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, apperr.NotFound("payment tidak ditemukan")
	}
	cp := p
	return &cp, nil
}

func (s *memStore) GetPaymentByExternalID(ctx context.Context, externalID string) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byExternal[externalID]
	if !ok {
		return nil, apperr.NotFound("payment dengan external id tersebut tidak ditemukan")
	}
	cp := s.payments[id]
	return &cp, nil
}

func (s *memStore) CreatePayment(ctx context.Context, p *model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.PaymentExternalID != nil {
		if _, dup := s.byExternal[*p.PaymentExternalID]; dup {
			return apperr.Conflict("duplikat: uq_payment_external_id")
		}
		s.byExternal[*p.PaymentExternalID] = p.PaymentID
	}
	s.payments[p.PaymentID] = *p
	return nil
}

func (s *memStore) SavePayment(ctx context.Context, p *model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.PaymentID] = *p
	if p.PaymentExternalID != nil {
		s.byExternal[*p.PaymentExternalID] = p.PaymentID
	}
	return nil
}

func (s *memStore) CreateRefund(ctx context.Context, r *model.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refunds = append(s.refunds, *r)
	return nil
}

func (s *memStore) RefundedTotal(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, r := range s.refunds {
		if r.RefundPaymentID == paymentID && r.RefundStatus == model.RefundStatusProcessed {
			total += r.RefundAmount
		}
	}
	return total, nil
}

func (s *memStore) ListStalePendingPayments(ctx context.Context, before time.Time, limit int) ([]model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Payment
	for _, p := range s.payments {
		if p.PaymentChannel == model.PaymentChannelGateway &&
			p.PaymentStatus == model.PaymentStatusPending &&
			p.CreatedAt.Before(before) {
			out = append(out, p)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) invoice(id uuid.UUID) invmodel.FeeInvoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invoices[id]
}

/* ===================== fixtures ===================== */

var testNow = time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

func newTestApplicator(store *memStore) *Applicator {
	a := NewApplicator(store, notify.NopNotifier{})
	a.now = func() time.Time { return testNow }
	return a
}

func seedInvoice(store *memStore, total int64) uuid.UUID {
	inv := invmodel.FeeInvoice{
		InvoiceID:            uuid.New(),
		InvoiceNumber:        "INV-2026-000001",
		InvoiceEnrollmentID:  uuid.New(),
		InvoicePeriod:        "2026-T1",
		InvoiceIssueDate:     testNow.AddDate(0, 0, -5),
		InvoiceDueDate:       testNow.AddDate(0, 1, 0),
		InvoiceTotalAmount:   total,
		InvoiceBalanceAmount: total,
		InvoiceCurrency:      "UGX",
		InvoiceStatus:        invmodel.InvoiceStatusPending,
	}
	store.invoices[inv.InvoiceID] = inv
	return inv.InvoiceID
}

func seedPendingGateway(store *memStore, invoiceID uuid.UUID, amount int64, externalID string) uuid.UUID {
	provider := model.ProviderMpesa
	p := model.Payment{
		PaymentID:         uuid.New(),
		PaymentReference:  GenReference("PAY"),
		PaymentInvoiceID:  &invoiceID,
		PaymentAmount:     amount,
		PaymentCurrency:   "UGX",
		PaymentMethod:     model.PaymentMethodCheckout,
		PaymentChannel:    model.PaymentChannelGateway,
		PaymentStatus:     model.PaymentStatusPending,
		PaymentProvider:   &provider,
		PaymentExternalID: &externalID,
		CreatedAt:         testNow.Add(-10 * time.Minute),
	}
	store.payments[p.PaymentID] = p
	store.byExternal[externalID] = p.PaymentID
	return p.PaymentID
}

func gatewayInput(amount int64, externalID string) ApplyInput {
	return ApplyInput{
		Amount:     amount,
		Method:     model.PaymentMethodCheckout,
		Channel:    model.PaymentChannelGateway,
		Provider:   model.ProviderMpesa,
		ExternalID: &externalID,
	}
}

func assertLedgerInvariant(t *testing.T, inv invmodel.FeeInvoice) {
	t.Helper()
	assert.Equal(t, inv.InvoiceTotalAmount-inv.InvoicePaidAmount, inv.InvoiceBalanceAmount,
		"balance harus = total - paid")
	assert.GreaterOrEqual(t, inv.InvoiceBalanceAmount, int64(0))
}

/* ===================== ApplyPayment ===================== */

func TestApplyManualPayment(t *testing.T) {
	store := newMemStore()
	a := newTestApplicator(store)
	invoiceID := seedInvoice(store, 5000)

	p, err := a.ApplyPayment(context.Background(), ApplyInput{
		InvoiceID: &invoiceID,
		Amount:    2000,
		Method:    model.PaymentMethodCash,
		Channel:   model.PaymentChannelManual,
	})
	require.NoError(t, err)

	assert.Equal(t, model.PaymentStatusCompleted, p.PaymentStatus)
	assert.Equal(t, int64(2000), p.PaymentAppliedAmount)
	assert.False(t, p.PaymentNeedsReview)

	inv := store.invoice(invoiceID)
	assert.Equal(t, int64(2000), inv.InvoicePaidAmount)
	assert.Equal(t, int64(3000), inv.InvoiceBalanceAmount)
	assert.Equal(t, invmodel.InvoiceStatusPartial, inv.InvoiceStatus)
	assertLedgerInvariant(t, inv)
}

func TestApplyManualOverpaymentRejected(t *testing.T) {
	store := newMemStore()
	a := newTestApplicator(store)
	invoiceID := seedInvoice(store, 5000)

	_, err := a.ApplyPayment(context.Background(), ApplyInput{
		InvoiceID: &invoiceID,
		Amount:    6000,
		Method:    model.PaymentMethodCash,
		Channel:   model.PaymentChannelManual,
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindOverpayment))

	inv := store.invoice(invoiceID)
	assert.Equal(t, int64(0), inv.InvoicePaidAmount)
	assert.Equal(t, invmodel.InvoiceStatusPending, inv.InvoiceStatus)
}

func TestApplyGatewayOverpaymentClamped(t *testing.T) {
	store := newMemStore()
	a := newTestApplicator(store)
	invoiceID := seedInvoice(store, 5000)

	p, err := a.ApplyPayment(context.Background(), gatewayInputFor(invoiceID, 6000, "MPESA-X1"))
	require.NoError(t, err)

	// Provider konfirmasi 6000, hanya 5000 yang masuk ledger.
	assert.Equal(t, int64(6000), p.PaymentAmount)
	assert.Equal(t, int64(5000), p.PaymentAppliedAmount)
	assert.True(t, p.PaymentNeedsReview)
	require.NotNil(t, p.PaymentReviewNote)

	inv := store.invoice(invoiceID)
	assert.Equal(t, int64(5000), inv.InvoicePaidAmount)
	assert.Equal(t, invmodel.InvoiceStatusPaid, inv.InvoiceStatus)
	assertLedgerInvariant(t, inv)
}

func gatewayInputFor(invoiceID uuid.UUID, amount int64, externalID string) ApplyInput {
	in := gatewayInput(amount, externalID)
	in.InvoiceID = &invoiceID
	return in
}

func TestApplyGatewayReplayIsNoop(t *testing.T) {
	store := newMemStore()
	a := newTestApplicator(store)
	invoiceID := seedInvoice(store, 5000)

	first, err := a.ApplyPayment(context.Background(), gatewayInputFor(invoiceID, 3000, "MPESA-X2"))
	require.NoError(t, err)

	// Provider mengirim ulang callback yang sama.
	second, err := a.ApplyPayment(context.Background(), gatewayInputFor(invoiceID, 3000, "MPESA-X2"))
	require.NoError(t, err)
	assert.Equal(t, first.PaymentID, second.PaymentID)

	inv := store.invoice(invoiceID)
	assert.Equal(t, int64(3000), inv.InvoicePaidAmount, "replay tidak boleh double-apply")
	assertLedgerInvariant(t, inv)
}

func TestApplyUpgradesPendingPayment(t *testing.T) {
	store := newMemStore()
	a := newTestApplicator(store)
	invoiceID := seedInvoice(store, 5000)
	pendingID := seedPendingGateway(store, invoiceID, 3000, "MPESA-X3")

	// Callback tanpa invoice id: di-resolve dari payment pending.
	p, err := a.ApplyPayment(context.Background(), gatewayInput(3000, "MPESA-X3"))
	require.NoError(t, err)

	assert.Equal(t, pendingID, p.PaymentID, "payment pending di-upgrade, bukan bikin baru")
	assert.Equal(t, model.PaymentStatusCompleted, p.PaymentStatus)

	inv := store.invoice(invoiceID)
	assert.Equal(t, int64(3000), inv.InvoicePaidAmount)
	assertLedgerInvariant(t, inv)
}

func TestApplyOrphanWhenInvoiceUnknown(t *testing.T) {
	store := newMemStore()
	a := newTestApplicator(store)

	p, err := a.ApplyPayment(context.Background(), gatewayInput(4000, "MPESA-X4"))
	require.NoError(t, err)

	assert.Nil(t, p.PaymentInvoiceID)
	assert.Equal(t, model.PaymentStatusCompleted, p.PaymentStatus)
	assert.Equal(t, int64(0), p.PaymentAppliedAmount)
	assert.True(t, p.PaymentNeedsReview, "uang yang sudah masuk tidak boleh dibuang diam-diam")
}

func TestApplyOrphanWhenInvoiceMissing(t *testing.T) {
	store := newMemStore()
	a := newTestApplicator(store)
	missing := uuid.New()

	p, err := a.ApplyPayment(context.Background(), gatewayInputFor(missing, 4000, "MPESA-X5"))
	require.NoError(t, err)
	assert.True(t, p.PaymentNeedsReview)
	assert.Equal(t, int64(0), p.PaymentAppliedAmount)
}

func TestApplyGatewayToCancelledInvoice(t *testing.T) {
	store := newMemStore()
	a := newTestApplicator(store)
	invoiceID := seedInvoice(store, 5000)

	inv := store.invoices[invoiceID]
	inv.InvoiceStatus = invmodel.InvoiceStatusCancelled
	store.invoices[invoiceID] = inv

	p, err := a.ApplyPayment(context.Background(), gatewayInputFor(invoiceID, 3000, "MPESA-X6"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.PaymentAppliedAmount)
	assert.True(t, p.PaymentNeedsReview)

	got := store.invoice(invoiceID)
	assert.Equal(t, int64(0), got.InvoicePaidAmount, "invoice cancelled tidak boleh tersentuh")
}

func TestApplyManualToCancelledInvoiceConflicts(t *testing.T) {
	store := newMemStore()
	a := newTestApplicator(store)
	invoiceID := seedInvoice(store, 5000)

	inv := store.invoices[invoiceID]
	inv.InvoiceStatus = invmodel.InvoiceStatusCancelled
	store.invoices[invoiceID] = inv

	_, err := a.ApplyPayment(context.Background(), ApplyInput{
		InvoiceID: &invoiceID,
		Amount:    1000,
		Method:    model.PaymentMethodCash,
		Channel:   model.PaymentChannelManual,
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestApplySuccessAfterFailedFlagsOnly(t *testing.T) {
	store := newMemStore()
	a := newTestApplicator(store)
	invoiceID := seedInvoice(store, 5000)
	paymentID := seedPendingGateway(store, invoiceID, 3000, "MPESA-X7")

	_, err := a.MarkFailed(context.Background(), "MPESA-X7", "TIMEOUT")
	require.NoError(t, err)

	// SUCCESS datang terlambat setelah kita tutup sebagai failed.
	p, err := a.ApplyPayment(context.Background(), gatewayInput(3000, "MPESA-X7"))
	require.NoError(t, err)
	assert.Equal(t, paymentID, p.PaymentID)
	assert.Equal(t, model.PaymentStatusFailed, p.PaymentStatus, "tidak ada transisi keluar dari terminal")
	assert.True(t, p.PaymentNeedsReview)

	inv := store.invoice(invoiceID)
	assert.Equal(t, int64(0), inv.InvoicePaidAmount)
}

func TestApplyValidation(t *testing.T) {
	store := newMemStore()
	a := newTestApplicator(store)

	_, err := a.ApplyPayment(context.Background(), ApplyInput{Amount: 0, Channel: model.PaymentChannelManual})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = a.ApplyPayment(context.Background(), ApplyInput{Amount: 100, Channel: model.PaymentChannelGateway})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "gateway tanpa external id ditolak")

	_, err = a.ApplyPayment(context.Background(), ApplyInput{Amount: 100, Channel: model.PaymentChannelManual})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "manual tanpa invoice id ditolak")
}

func TestConcurrentAppliesSumExactly(t *testing.T) {
	store := newMemStore()
	a := newTestApplicator(store)
	invoiceID := seedInvoice(store, 10000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.ApplyPayment(context.Background(), ApplyInput{
				InvoiceID: &invoiceID,
				Amount:    1000,
				Method:    model.PaymentMethodCash,
				Channel:   model.PaymentChannelManual,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	inv := store.invoice(invoiceID)
	assert.Equal(t, int64(10000), inv.InvoicePaidAmount)
	assert.Equal(t, int64(0), inv.InvoiceBalanceAmount)
	assert.Equal(t, invmodel.InvoiceStatusPaid, inv.InvoiceStatus)
	assertLedgerInvariant(t, inv)
}

// Skenario campuran: invoice 5000 dilunasi 2000 manual + 3000 gateway,
// lalu callback gateway dikirim ulang.
func TestMixedChannelsScenario(t *testing.T) {
	store := newMemStore()
	a := newTestApplicator(store)
	invoiceID := seedInvoice(store, 5000)

	_, err := a.ApplyPayment(context.Background(), ApplyInput{
		InvoiceID: &invoiceID,
		Amount:    2000,
		Method:    model.PaymentMethodBankTransfer,
		Channel:   model.PaymentChannelManual,
	})
	require.NoError(t, err)

	_, err = a.ApplyPayment(context.Background(), gatewayInputFor(invoiceID, 3000, "CARDPRO-Z1"))
	require.NoError(t, err)

	// redelivery
	_, err = a.ApplyPayment(context.Background(), gatewayInputFor(invoiceID, 3000, "CARDPRO-Z1"))
	require.NoError(t, err)

	inv := store.invoice(invoiceID)
	assert.Equal(t, int64(5000), inv.InvoicePaidAmount)
	assert.Equal(t, int64(0), inv.InvoiceBalanceAmount)
	assert.Equal(t, invmodel.InvoiceStatusPaid, inv.InvoiceStatus)
}

// staleReadStore membungkus memStore dan menjalankan hook sekali, tepat
// setelah pembacaan by-external-id pertama tapi sebelum hasilnya
// dikembalikan. Meniru jeda antara read pra-lock dan transaksi:
// dunia boleh berubah di tengah jeda itu. Transaction didelegasikan ke
// memStore, jadi pembacaan DI DALAM transaksi selalu segar.
type staleReadStore struct {
	*memStore
	once   sync.Once
	onRead func()
}

func (s *staleReadStore) GetPaymentByExternalID(ctx context.Context, externalID string) (*model.Payment, error) {
	p, err := s.memStore.GetPaymentByExternalID(ctx, externalID)
	s.once.Do(func() {
		if s.onRead != nil {
			s.onRead()
		}
	})
	return p, err
}

// Webhook dan reconciler membawa konfirmasi yang sama hampir bersamaan.
// Hanya satu yang boleh menaikkan paid.
func TestConcurrentRedeliveryAppliesOnce(t *testing.T) {
	store := newMemStore()
	a := newTestApplicator(store)
	invoiceID := seedInvoice(store, 10000)
	pendingID := seedPendingGateway(store, invoiceID, 3000, "MPESA-D1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := a.ApplyPayment(context.Background(), gatewayInput(3000, "MPESA-D1"))
			assert.NoError(t, err)
			assert.Equal(t, pendingID, p.PaymentID)
		}()
	}
	wg.Wait()

	inv := store.invoice(invoiceID)
	assert.Equal(t, int64(3000), inv.InvoicePaidAmount, "konfirmasi yang sama hanya boleh masuk sekali")
	assertLedgerInvariant(t, inv)

	got, _ := store.GetPayment(context.Background(), pendingID)
	assert.Equal(t, model.PaymentStatusCompleted, got.PaymentStatus)
	assert.Equal(t, int64(3000), got.PaymentAppliedAmount)
}

// Read pra-lock boleh basi; keputusan dedup harus diambil dari pembacaan
// ulang di dalam transaksi. Di sini jalur lain menyelesaikan payment persis
// di antara read pra-lock dan transaksi.
func TestApplyStaleDedupReadStillAppliesOnce(t *testing.T) {
	store := newMemStore()
	invoiceID := seedInvoice(store, 10000)
	pendingID := seedPendingGateway(store, invoiceID, 3000, "MPESA-D2")

	other := newTestApplicator(store)
	wrapped := &staleReadStore{memStore: store, onRead: func() {
		_, err := other.ApplyPayment(context.Background(), gatewayInput(3000, "MPESA-D2"))
		require.NoError(t, err)
	}}
	a := NewApplicator(wrapped, notify.NopNotifier{})
	a.now = func() time.Time { return testNow }

	p, err := a.ApplyPayment(context.Background(), gatewayInput(3000, "MPESA-D2"))
	require.NoError(t, err)
	assert.Equal(t, pendingID, p.PaymentID)
	assert.Equal(t, model.PaymentStatusCompleted, p.PaymentStatus)

	inv := store.invoice(invoiceID)
	assert.Equal(t, int64(3000), inv.InvoicePaidAmount, "delivery kedua harus jadi no-op")
	assertLedgerInvariant(t, inv)
}

/* ===================== MarkFailed ===================== */

func TestMarkFailed(t *testing.T) {
	store := newMemStore()
	a := newTestApplicator(store)
	invoiceID := seedInvoice(store, 5000)
	seedPendingGateway(store, invoiceID, 3000, "MPESA-F1")

	p, err := a.MarkFailed(context.Background(), "MPESA-F1", "resultCode 1032: cancelled by user")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusFailed, p.PaymentStatus)
	require.NotNil(t, p.PaymentFailReason)

	// idempotent
	again, err := a.MarkFailed(context.Background(), "MPESA-F1", "TIMEOUT")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusFailed, again.PaymentStatus)
	assert.Equal(t, *p.PaymentFailReason, *again.PaymentFailReason, "reason pertama dipertahankan")

	inv := store.invoice(invoiceID)
	assert.Equal(t, int64(0), inv.InvoicePaidAmount, "failed tidak menyentuh invoice")
}

func TestMarkFailedNeverDowngradesCompleted(t *testing.T) {
	store := newMemStore()
	a := newTestApplicator(store)
	invoiceID := seedInvoice(store, 5000)

	_, err := a.ApplyPayment(context.Background(), gatewayInputFor(invoiceID, 3000, "MPESA-F2"))
	require.NoError(t, err)

	p, err := a.MarkFailed(context.Background(), "MPESA-F2", "late failure")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, p.PaymentStatus)
}

// Failure report membaca payment yang masih pending, tapi sebelum ditulis
// jalur lain keburu menyelesaikannya. Cek terminal di dalam transaksi harus
// menangkap itu; completed tidak boleh turun jadi failed.
func TestMarkFailedIgnoresStaleReadBeforeLock(t *testing.T) {
	store := newMemStore()
	invoiceID := seedInvoice(store, 5000)
	seedPendingGateway(store, invoiceID, 3000, "MPESA-F3")

	other := newTestApplicator(store)
	wrapped := &staleReadStore{memStore: store, onRead: func() {
		_, err := other.ApplyPayment(context.Background(), gatewayInput(3000, "MPESA-F3"))
		require.NoError(t, err)
	}}
	a := NewApplicator(wrapped, notify.NopNotifier{})
	a.now = func() time.Time { return testNow }

	p, err := a.MarkFailed(context.Background(), "MPESA-F3", "resultCode 1037: timeout")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, p.PaymentStatus)
	assert.Nil(t, p.PaymentFailReason)

	inv := store.invoice(invoiceID)
	assert.Equal(t, int64(3000), inv.InvoicePaidAmount, "pembayaran yang sudah masuk tetap di ledger")
}

/* ===================== RefundPayment ===================== */

func TestRefundPartialThenFull(t *testing.T) {
	store := newMemStore()
	a := newTestApplicator(store)
	invoiceID := seedInvoice(store, 5000)

	p, err := a.ApplyPayment(context.Background(), gatewayInputFor(invoiceID, 5000, "MPESA-R1"))
	require.NoError(t, err)

	// Partial refund: payment tetap completed, invoice turun.
	r1, err := a.RefundPayment(context.Background(), p.PaymentID, 2000, "salah nominal", nil)
	require.NoError(t, err)
	assert.Equal(t, model.RefundStatusProcessed, r1.RefundStatus)

	inv := store.invoice(invoiceID)
	assert.Equal(t, int64(3000), inv.InvoicePaidAmount)
	assert.Equal(t, invmodel.InvoiceStatusPartial, inv.InvoiceStatus)
	assertLedgerInvariant(t, inv)

	got, _ := store.GetPayment(context.Background(), p.PaymentID)
	assert.Equal(t, model.PaymentStatusCompleted, got.PaymentStatus)

	// Sisa direfund semua: payment jadi refunded.
	_, err = a.RefundPayment(context.Background(), p.PaymentID, 3000, "dibatalkan", nil)
	require.NoError(t, err)

	got, _ = store.GetPayment(context.Background(), p.PaymentID)
	assert.Equal(t, model.PaymentStatusRefunded, got.PaymentStatus)

	inv = store.invoice(invoiceID)
	assert.Equal(t, int64(0), inv.InvoicePaidAmount)
	assertLedgerInvariant(t, inv)
}

func TestRefundCannotExceedPaymentAmount(t *testing.T) {
	store := newMemStore()
	a := newTestApplicator(store)
	invoiceID := seedInvoice(store, 5000)

	p, err := a.ApplyPayment(context.Background(), gatewayInputFor(invoiceID, 3000, "MPESA-R2"))
	require.NoError(t, err)

	_, err = a.RefundPayment(context.Background(), p.PaymentID, 2000, "sebagian", nil)
	require.NoError(t, err)

	_, err = a.RefundPayment(context.Background(), p.PaymentID, 1500, "kebanyakan", nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

// Payment yang di-clamp hanya menyumbang applied_amount ke ledger.
// Refund penuh atas payment itu tidak boleh ikut mengurangi porsi
// pembayaran lain di invoice yang sama.
func TestRefundClampedPaymentOnlyReversesAppliedPortion(t *testing.T) {
	store := newMemStore()
	a := newTestApplicator(store)
	invoiceID := seedInvoice(store, 10000)

	_, err := a.ApplyPayment(context.Background(), ApplyInput{
		InvoiceID: &invoiceID,
		Amount:    5000,
		Method:    model.PaymentMethodCash,
		Channel:   model.PaymentChannelManual,
	})
	require.NoError(t, err)

	// Balance tinggal 5000; konfirmasi 6000 di-clamp ke 5000.
	p, err := a.ApplyPayment(context.Background(), gatewayInputFor(invoiceID, 6000, "MPESA-R4"))
	require.NoError(t, err)
	require.Equal(t, int64(5000), p.PaymentAppliedAmount)

	_, err = a.RefundPayment(context.Background(), p.PaymentID, 6000, "salah bayar", nil)
	require.NoError(t, err)

	inv := store.invoice(invoiceID)
	assert.Equal(t, int64(5000), inv.InvoicePaidAmount, "pembayaran manual 5000 harus tetap utuh")
	assert.Equal(t, invmodel.InvoiceStatusPartial, inv.InvoiceStatus)
	assertLedgerInvariant(t, inv)

	got, _ := store.GetPayment(context.Background(), p.PaymentID)
	assert.Equal(t, model.PaymentStatusRefunded, got.PaymentStatus)
}

// Refund bertahap atas payment yang di-clamp: hanya 5000 pertama yang
// pernah masuk ledger, jadi total pengurangan invoice maksimal 5000.
func TestRefundClampedPaymentInSteps(t *testing.T) {
	store := newMemStore()
	a := newTestApplicator(store)
	invoiceID := seedInvoice(store, 10000)

	_, err := a.ApplyPayment(context.Background(), ApplyInput{
		InvoiceID: &invoiceID,
		Amount:    5000,
		Method:    model.PaymentMethodBankTransfer,
		Channel:   model.PaymentChannelManual,
	})
	require.NoError(t, err)

	p, err := a.ApplyPayment(context.Background(), gatewayInputFor(invoiceID, 6000, "MPESA-R5"))
	require.NoError(t, err)

	_, err = a.RefundPayment(context.Background(), p.PaymentID, 4000, "sebagian", nil)
	require.NoError(t, err)

	inv := store.invoice(invoiceID)
	assert.Equal(t, int64(6000), inv.InvoicePaidAmount)

	_, err = a.RefundPayment(context.Background(), p.PaymentID, 2000, "sisanya", nil)
	require.NoError(t, err)

	inv = store.invoice(invoiceID)
	assert.Equal(t, int64(5000), inv.InvoicePaidAmount)
	assertLedgerInvariant(t, inv)

	got, _ := store.GetPayment(context.Background(), p.PaymentID)
	assert.Equal(t, model.PaymentStatusRefunded, got.PaymentStatus)
}

func TestRefundRequiresCompletedPayment(t *testing.T) {
	store := newMemStore()
	a := newTestApplicator(store)
	invoiceID := seedInvoice(store, 5000)
	paymentID := seedPendingGateway(store, invoiceID, 3000, "MPESA-R3")

	_, err := a.RefundPayment(context.Background(), paymentID, 1000, "belum selesai", nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}
