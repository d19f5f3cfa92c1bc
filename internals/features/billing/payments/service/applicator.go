package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	invmodel "schoolbill_backend/internals/features/billing/invoices/model"
	model "schoolbill_backend/internals/features/billing/payments/model"
	"schoolbill_backend/internals/features/billing/notify"
	"schoolbill_backend/internals/helpers/apperr"
	"schoolbill_backend/internals/observability"
)

/* =========================================================
   Payment Applicator
   Satu-satunya komponen yang boleh memutasi paid/balance/status
   invoice sebagai respons payment event. Semua jalur (manual,
   webhook, reconciler) masuk lewat sini dan diserialisasi
   per invoice.
========================================================= */

type ApplyInput struct {
	InvoiceID *uuid.UUID // boleh nil untuk gateway event; di-resolve dari payment pending
	Amount    int64
	Currency  string
	Method    string
	Channel   string // manual | gateway
	Provider  string // wajib untuk channel gateway

	// ExternalID = idempotency key dari provider (checkout/request id).
	ExternalID  *string
	ProviderRef *string // receipt / transaction id dari provider

	PayerUserID      *uuid.UUID
	ReceivedByUserID *uuid.UUID
	Note             *string
}

type Applicator struct {
	store    Store
	locks    *invoiceLocks
	notifier notify.Notifier
	now      func() time.Time
}

func NewApplicator(store Store, notifier notify.Notifier) *Applicator {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Applicator{
		store:    store,
		locks:    newInvoiceLocks(),
		notifier: notifier,
		now:      time.Now,
	}
}

// ApplyPayment menerapkan satu pembayaran ke satu invoice, exactly once.
//
//   - manual: amount > balance ditolak (Overpayment).
//   - gateway: uangnya sudah pindah di dunia nyata, jadi amount > balance
//     di-clamp ke balance dan payment di-flag untuk review manual;
//     invoice yang tidak valid lagi menghasilkan orphaned payment,
//     bukan event yang dibuang.
//   - replay external id yang sudah completed adalah no-op yang
//     mengembalikan payment lama. Keputusan dedup diambil DI DALAM
//     lock + transaksi: webhook dan reconciler bisa membawa konfirmasi
//     yang sama hampir bersamaan, dan dua-duanya tidak boleh sama-sama
//     menaikkan paid.
func (a *Applicator) ApplyPayment(ctx context.Context, in ApplyInput) (*model.Payment, error) {
	if in.Amount <= 0 {
		return nil, apperr.Validation("amount harus > 0")
	}
	gateway := in.Channel == model.PaymentChannelGateway
	extID := ""
	if in.ExternalID != nil {
		extID = strings.TrimSpace(*in.ExternalID)
	}
	if gateway && extID == "" {
		return nil, apperr.Validation("gateway payment wajib punya external id")
	}

	// Resolusi invoice dari payment pending hasil checkout. Ini HANYA
	// resolusi routing ke lock yang benar; dedup diulang di dalam transaksi.
	invoiceID := in.InvoiceID
	if invoiceID == nil && extID != "" {
		p, err := a.store.GetPaymentByExternalID(ctx, extID)
		switch {
		case err == nil:
			invoiceID = p.PaymentInvoiceID
		case !apperr.Is(err, apperr.KindNotFound):
			return nil, err
		}
	}
	if invoiceID == nil {
		if !gateway {
			return nil, apperr.Validation("invoice_id wajib untuk pembayaran manual")
		}
		return a.persistOrphan(ctx, in, extID, "invoice tidak diketahui untuk konfirmasi gateway")
	}

	unlock := a.locks.Lock(*invoiceID)
	defer unlock()

	var (
		out           *model.Payment
		applied       bool // transaksi ini benar-benar menaikkan paid
		flagged       bool
		flagReason    string
		invSnapshot   *invmodel.FeeInvoice
		statusChanged bool
	)

	err := a.store.Transaction(ctx, func(tx Store) error {
		inv, invErr := tx.GetInvoiceForUpdate(ctx, *invoiceID)
		if invErr != nil && !apperr.Is(invErr, apperr.KindNotFound) {
			return invErr
		}

		// Dedup otoritatif: baca ulang payment by external id SETELAH row
		// lock invoice dipegang, bukan memakai hasil baca pra-lock yang
		// bisa basi.
		var existing *model.Payment
		if extID != "" {
			p, err := tx.GetPaymentByExternalID(ctx, extID)
			switch {
			case err == nil && p.IsCompleted():
				// Provider retransmission → no-op.
				out = p
				return nil
			case err == nil && p.IsTerminal():
				// SUCCESS datang setelah payment kita tandai failed/cancelled.
				// Tidak ada transisi keluar dari terminal state; uang yang
				// sudah terkonfirmasi di-flag untuk rekonsiliasi manual.
				p.PaymentNeedsReview = true
				p.PaymentReviewNote = strPtr(fmt.Sprintf(
					"gateway melaporkan sukses %d setelah payment berstatus %s", in.Amount, p.PaymentStatus))
				if err := tx.SavePayment(ctx, p); err != nil {
					return err
				}
				out = p
				flagged = true
				flagReason = "success_after_terminal"
				return nil
			case err == nil:
				existing = p // pending → di-upgrade di bawah
			case !apperr.Is(err, apperr.KindNotFound):
				return err
			}
		}

		if invErr != nil {
			if !gateway {
				return invErr
			}
			p, oerr := a.recordUnappliedTx(ctx, tx, in, existing, uuid.Nil,
				"invoice hilang saat konfirmasi gateway")
			out, flagged, flagReason = p, true, "orphaned"
			return oerr
		}

		if !inv.IsOpen() {
			if !gateway {
				return apperr.Conflict("invoice berstatus " + inv.InvoiceStatus)
			}
			// Invoice keburu cancelled/paid; uang tetap dicatat, applied 0.
			p, oerr := a.recordUnappliedTx(ctx, tx, in, existing, inv.InvoiceID,
				fmt.Sprintf("invoice %s saat konfirmasi gateway; butuh review", inv.InvoiceStatus))
			out, flagged, flagReason = p, true, "unapplied"
			return oerr
		}

		balance := inv.InvoiceTotalAmount - inv.InvoicePaidAmount
		appliedAmount := in.Amount
		var reviewNote *string
		if in.Amount > balance {
			if !gateway {
				return apperr.Overpayment(fmt.Sprintf(
					"amount %d melebihi balance %d", in.Amount, balance))
			}
			appliedAmount = balance
			reviewNote = strPtr(fmt.Sprintf(
				"gateway konfirmasi %d, balance tinggal %d; selisih %d di-clamp, butuh review manual",
				in.Amount, balance, in.Amount-balance))
		}

		now := a.now()
		var p *model.Payment
		if existing != nil {
			p = existing
			p.PaymentStatus = model.PaymentStatusCompleted
			p.PaymentAppliedAmount = appliedAmount
			p.PaymentPaidAt = &now
			if in.ProviderRef != nil {
				p.PaymentProviderRef = in.ProviderRef
			}
			if reviewNote != nil {
				p.PaymentNeedsReview = true
				p.PaymentReviewNote = reviewNote
			}
			if err := tx.SavePayment(ctx, p); err != nil {
				return err
			}
		} else {
			p = a.buildPayment(in, *invoiceID, appliedAmount, now)
			if reviewNote != nil {
				p.PaymentNeedsReview = true
				p.PaymentReviewNote = reviewNote
			}
			if err := tx.CreatePayment(ctx, p); err != nil {
				// Race dengan delivery duplikat: baris lain menang, pakai miliknya.
				if apperr.Is(err, apperr.KindConflict) && extID != "" {
					winner, gerr := tx.GetPaymentByExternalID(ctx, extID)
					if gerr == nil {
						out = winner
						return nil
					}
				}
				return err
			}
		}

		prev := inv.InvoiceStatus
		inv.InvoicePaidAmount += appliedAmount
		inv.Recompute(now)
		if err := tx.SaveInvoice(ctx, inv); err != nil {
			return err
		}

		out = p
		applied = true
		flagged = reviewNote != nil
		if flagged {
			flagReason = "clamped"
		}
		invSnapshot = inv
		statusChanged = prev != inv.InvoiceStatus
		return nil
	})
	if err != nil {
		return nil, err
	}

	if applied {
		observability.PaymentsApplied.WithLabelValues(in.Channel).Inc()
		a.fireNotify(notify.EventPaymentCompleted, map[string]interface{}{
			"payment_id": out.PaymentID,
			"amount":     out.PaymentAmount,
		})
	}
	if flagged {
		observability.PaymentsFlagged.Inc()
		a.fireNotify(notify.EventPaymentFlagged, map[string]interface{}{
			"payment_id": out.PaymentID, "reason": flagReason,
		})
	}
	if statusChanged && invSnapshot != nil {
		a.fireNotify(notify.EventInvoiceStatusChanged, map[string]interface{}{
			"invoice_id": invSnapshot.InvoiceID,
			"status":     invSnapshot.InvoiceStatus,
		})
	}
	return out, nil
}

// MarkFailed menandai payment (by external id) sebagai failed tanpa pernah
// menyentuh invoice. Idempotent: terminal state dibiarkan apa adanya.
// Cek terminal diulang di dalam lock + transaksi supaya failure report yang
// telat tidak menimpa payment yang keburu completed lewat jalur lain.
func (a *Applicator) MarkFailed(ctx context.Context, externalID, reason string) (*model.Payment, error) {
	p, err := a.store.GetPaymentByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if p.PaymentInvoiceID != nil {
		unlock := a.locks.Lock(*p.PaymentInvoiceID)
		defer unlock()
	}

	var out *model.Payment
	err = a.store.Transaction(ctx, func(tx Store) error {
		cur, err := tx.GetPaymentByExternalID(ctx, externalID)
		if err != nil {
			return err
		}
		if cur.IsTerminal() {
			out = cur
			return nil
		}
		now := a.now()
		cur.PaymentStatus = model.PaymentStatusFailed
		cur.PaymentFailReason = &reason
		cur.PaymentFailedAt = &now
		if err := tx.SavePayment(ctx, cur); err != nil {
			return err
		}
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RefundPayment membalikkan sebagian/seluruh payment completed lewat scope
// lock yang sama dengan ApplyPayment.
func (a *Applicator) RefundPayment(ctx context.Context, paymentID uuid.UUID, amount int64, reason string, processedBy *uuid.UUID) (*model.Refund, error) {
	if amount <= 0 {
		return nil, apperr.Validation("refund amount harus > 0")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, apperr.Validation("refund wajib punya reason")
	}

	pre, err := a.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if pre.PaymentStatus != model.PaymentStatusCompleted {
		return nil, apperr.Conflict("hanya payment completed yang bisa direfund (status: " + pre.PaymentStatus + ")")
	}

	if pre.PaymentInvoiceID != nil {
		unlock := a.locks.Lock(*pre.PaymentInvoiceID)
		defer unlock()
	}

	var (
		out           *model.Refund
		invSnapshot   *invmodel.FeeInvoice
		statusChanged bool
	)

	err = a.store.Transaction(ctx, func(tx Store) error {
		p, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.PaymentStatus != model.PaymentStatusCompleted {
			return apperr.Conflict("hanya payment completed yang bisa direfund (status: " + p.PaymentStatus + ")")
		}

		refunded, err := tx.RefundedTotal(ctx, p.PaymentID)
		if err != nil {
			return err
		}
		if refunded+amount > p.PaymentAmount {
			return apperr.Validation(fmt.Sprintf(
				"refund %d melebihi sisa refundable %d", amount, p.PaymentAmount-refunded))
		}

		now := a.now()
		r := &model.Refund{
			RefundID:                uuid.New(),
			RefundPaymentID:         p.PaymentID,
			RefundAmount:            amount,
			RefundStatus:            model.RefundStatusProcessed,
			RefundReason:            reason,
			RefundProcessedByUserID: processedBy,
			RefundProcessedAt:       &now,
		}
		if err := tx.CreateRefund(ctx, r); err != nil {
			return err
		}

		// Dari invoice hanya dibalikkan porsi refund yang dulu benar-benar
		// masuk ledger (applied_amount). Payment yang di-clamp: selisih di
		// atas applied tidak pernah menaikkan paid, jadi tidak ada yang
		// perlu dikurangi untuknya. Refund dihitung first-applied-first:
		// [0, applied) kena ledger, sisanya tidak.
		deduct := minInt64(refunded+amount, p.PaymentAppliedAmount) - minInt64(refunded, p.PaymentAppliedAmount)
		if p.PaymentInvoiceID != nil && deduct > 0 {
			inv, err := tx.GetInvoiceForUpdate(ctx, *p.PaymentInvoiceID)
			if err != nil {
				return err
			}
			if deduct > inv.InvoicePaidAmount {
				deduct = inv.InvoicePaidAmount
			}
			prev := inv.InvoiceStatus
			inv.InvoicePaidAmount -= deduct
			inv.Recompute(now)
			if err := tx.SaveInvoice(ctx, inv); err != nil {
				return err
			}
			invSnapshot = inv
			statusChanged = prev != inv.InvoiceStatus
		}

		if refunded+amount == p.PaymentAmount {
			p.PaymentStatus = model.PaymentStatusRefunded
			if err := tx.SavePayment(ctx, p); err != nil {
				return err
			}
		}

		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if statusChanged && invSnapshot != nil {
		a.fireNotify(notify.EventInvoiceStatusChanged, map[string]interface{}{
			"invoice_id": invSnapshot.InvoiceID,
			"status":     invSnapshot.InvoiceStatus,
		})
	}
	return out, nil
}

/* =========================================================
   Orphan / unapplied payments
========================================================= */

// persistOrphan mencatat konfirmasi gateway yang tidak bisa dirutekan ke
// invoice manapun. Dedup by external id tetap dilakukan di dalam transaksi.
func (a *Applicator) persistOrphan(ctx context.Context, in ApplyInput, extID, note string) (*model.Payment, error) {
	var (
		out   *model.Payment
		wrote bool
	)
	err := a.store.Transaction(ctx, func(tx Store) error {
		var existing *model.Payment
		if extID != "" {
			p, err := tx.GetPaymentByExternalID(ctx, extID)
			switch {
			case err == nil && p.IsTerminal():
				out = p
				return nil
			case err == nil:
				existing = p
			case !apperr.Is(err, apperr.KindNotFound):
				return err
			}
		}
		p, err := a.recordUnappliedTx(ctx, tx, in, existing, uuid.Nil, note)
		out = p
		wrote = err == nil
		return err
	})
	if err != nil {
		return nil, err
	}
	if wrote {
		observability.PaymentsFlagged.Inc()
		a.fireNotify(notify.EventPaymentFlagged, map[string]interface{}{
			"payment_id": out.PaymentID, "reason": "orphaned",
		})
	}
	return out, nil
}

// recordUnappliedTx mencatat pembayaran gateway yang terkonfirmasi tapi tidak
// bisa diterapkan (invoice hilang / sudah tertutup). applied = 0, flag review.
func (a *Applicator) recordUnappliedTx(ctx context.Context, tx Store, in ApplyInput, existing *model.Payment, invoiceID uuid.UUID, note string) (*model.Payment, error) {
	now := a.now()
	if existing != nil {
		existing.PaymentStatus = model.PaymentStatusCompleted
		existing.PaymentAppliedAmount = 0
		existing.PaymentPaidAt = &now
		existing.PaymentNeedsReview = true
		existing.PaymentReviewNote = &note
		if in.ProviderRef != nil {
			existing.PaymentProviderRef = in.ProviderRef
		}
		if err := tx.SavePayment(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	var invID *uuid.UUID
	if invoiceID != uuid.Nil {
		invID = &invoiceID
	}
	p := a.buildPayment(in, uuid.Nil, 0, now)
	p.PaymentInvoiceID = invID
	p.PaymentNeedsReview = true
	p.PaymentReviewNote = &note
	if err := tx.CreatePayment(ctx, p); err != nil {
		if apperr.Is(err, apperr.KindConflict) && in.ExternalID != nil {
			return tx.GetPaymentByExternalID(ctx, *in.ExternalID)
		}
		return nil, err
	}
	return p, nil
}

/* =========================================================
   Helpers
========================================================= */

func (a *Applicator) buildPayment(in ApplyInput, invoiceID uuid.UUID, applied int64, now time.Time) *model.Payment {
	currency := in.Currency
	if currency == "" {
		currency = "UGX"
	}
	var provider *string
	if in.Provider != "" {
		provider = &in.Provider
	}
	var invID *uuid.UUID
	if invoiceID != uuid.Nil {
		invID = &invoiceID
	}
	return &model.Payment{
		PaymentID:               uuid.New(),
		PaymentReference:        GenReference("PAY"),
		PaymentInvoiceID:        invID,
		PaymentAmount:           in.Amount,
		PaymentAppliedAmount:    applied,
		PaymentCurrency:         currency,
		PaymentMethod:           in.Method,
		PaymentChannel:          in.Channel,
		PaymentStatus:           model.PaymentStatusCompleted,
		PaymentProvider:         provider,
		PaymentExternalID:       in.ExternalID,
		PaymentProviderRef:      in.ProviderRef,
		PaymentPayerUserID:      in.PayerUserID,
		PaymentReceivedByUserID: in.ReceivedByUserID,
		PaymentReviewNote:       in.Note,
		PaymentPaidAt:           &now,
	}
}

func (a *Applicator) fireNotify(event notify.Event, payload map[string]interface{}) {
	n := a.notifier
	go n.Notify(event, payload)
}

// GenReference membuat reference unik dengan prefix tertentu.
func GenReference(prefix string) string {
	now := time.Now().Format("20060102-150405")
	u := uuid.New().String()
	if len(u) > 8 {
		u = u[:8]
	}
	return prefix + "-" + now + "-" + strings.ToUpper(u)
}

func strPtr(s string) *string { return &s }

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
