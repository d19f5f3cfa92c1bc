package reconcile

import (
	"context"
	"log"
	"time"

	"schoolbill_backend/internals/configs"
	"schoolbill_backend/internals/features/billing/gateway"
	paymodel "schoolbill_backend/internals/features/billing/payments/model"
	paysvc "schoolbill_backend/internals/features/billing/payments/service"
	"schoolbill_backend/internals/observability"
)

/* =========================================================
   Reconciliation scheduler.
   Webhook bisa hilang; payment gateway yang keburu PENDING
   terlalu lama di-poll langsung ke provider lalu diselesaikan
   lewat jalur applicator yang sama (idempotent, jadi race
   dengan callback yang telat tetap aman).
========================================================= */

const pendingBatchSize = 100

type PendingLister interface {
	ListStalePendingPayments(ctx context.Context, before time.Time, limit int) ([]paymodel.Payment, error)
}

type Applier interface {
	ApplyPayment(ctx context.Context, in paysvc.ApplyInput) (*paymodel.Payment, error)
	MarkFailed(ctx context.Context, externalID, reason string) (*paymodel.Payment, error)
}

type ProviderLookup interface {
	Get(name string) (gateway.Provider, error)
}

// SweepOverdueFunc menjalankan satu sweep invoice overdue dan
// mengembalikan jumlah row yang berubah.
type SweepOverdueFunc func(ctx context.Context) (int64, error)

type Scheduler struct {
	store     PendingLister
	applier   Applier
	providers ProviderLookup
	sweep     SweepOverdueFunc
	cfg       configs.BillingConfig
	now       func() time.Time
}

func NewScheduler(store PendingLister, applier Applier, providers ProviderLookup, sweep SweepOverdueFunc, cfg configs.BillingConfig) *Scheduler {
	return &Scheduler{
		store:     store,
		applier:   applier,
		providers: providers,
		sweep:     sweep,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Start menjalankan dua ticker sampai ctx selesai:
// reconcile payment pending + sweep invoice overdue.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx, s.cfg.ReconcileInterval, func() {
		if err := s.ReconcilePending(ctx); err != nil {
			log.Printf("[RECONCILE] sweep gagal: %v", err)
		}
	})
	if s.sweep != nil {
		go s.loop(ctx, s.cfg.OverdueInterval, func() {
			n, err := s.sweep(ctx)
			if err != nil {
				log.Printf("[RECONCILE] overdue sweep gagal: %v", err)
				return
			}
			if n > 0 {
				observability.InvoicesOverdue.Add(float64(n))
				log.Printf("[RECONCILE] %d invoice jadi overdue", n)
			}
		})
	}
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// ReconcilePending memproses satu batch payment gateway yang masih pending.
func (s *Scheduler) ReconcilePending(ctx context.Context) error {
	now := s.now()
	cutoff := now.Add(-s.cfg.PendingStaleAfter)

	pendings, err := s.store.ListStalePendingPayments(ctx, cutoff, pendingBatchSize)
	if err != nil {
		return err
	}

	for i := range pendings {
		p := &pendings[i]
		if err := s.reconcileOne(ctx, p, now); err != nil {
			log.Printf("[RECONCILE] payment %s: %v", p.PaymentReference, err)
		}
	}

	observability.ReconcileCycles.Inc()
	return nil
}

func (s *Scheduler) reconcileOne(ctx context.Context, p *paymodel.Payment, now time.Time) error {
	if p.PaymentExternalID == nil || p.PaymentProvider == nil {
		return nil
	}
	externalID := *p.PaymentExternalID

	// Lewat max age → tutup sebagai failed supaya tidak di-poll selamanya.
	if now.Sub(p.CreatedAt) > s.cfg.PendingMaxAge {
		_, err := s.applier.MarkFailed(ctx, externalID, paymodel.FailReasonTimeout)
		return err
	}

	provider, err := s.providers.Get(*p.PaymentProvider)
	if err != nil {
		return err
	}

	qctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	res, err := gateway.QueryStatusWithRetry(qctx, provider, externalID)
	if err != nil {
		return err
	}

	switch res.Status {
	case gateway.StatusSuccess:
		amount := res.Amount
		if amount <= 0 {
			amount = p.PaymentAmount
		}
		_, err := s.applier.ApplyPayment(ctx, paysvc.ApplyInput{
			Amount:      amount,
			Method:      p.PaymentMethod,
			Channel:     paymodel.PaymentChannelGateway,
			Provider:    provider.Name(),
			ExternalID:  &externalID,
			ProviderRef: refOrNil(res.ProviderRef),
		})
		if err == nil {
			observability.ReconcileRecovered.Inc()
		}
		return err
	case gateway.StatusFailed:
		reason := res.FailReason
		if reason == "" {
			reason = "provider melaporkan gagal saat reconcile"
		}
		_, err := s.applier.MarkFailed(ctx, externalID, reason)
		return err
	default:
		// Masih pending di provider; coba lagi sweep berikutnya.
		return nil
	}
}

func refOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
