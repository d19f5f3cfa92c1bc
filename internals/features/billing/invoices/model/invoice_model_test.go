package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeStatus(t *testing.T) {
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	before := due.AddDate(0, 0, -10)
	after := due.AddDate(0, 0, 10)

	cases := []struct {
		name  string
		paid  int64
		total int64
		now   time.Time
		want  string
	}{
		{"belum bayar, belum due", 0, 5000, before, InvoiceStatusPending},
		{"bayar sebagian, belum due", 2000, 5000, before, InvoiceStatusPartial},
		{"lunas", 5000, 5000, before, InvoiceStatusPaid},
		{"lunas walau lewat due", 5000, 5000, after, InvoiceStatusPaid},
		{"belum bayar, lewat due", 0, 5000, after, InvoiceStatusOverdue},
		{"bayar sebagian, lewat due", 2000, 5000, after, InvoiceStatusOverdue},
		{"paid melebihi total tetap paid", 6000, 5000, after, InvoiceStatusPaid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ComputeStatus(tc.paid, tc.total, due, tc.now))
		})
	}
}

func TestRecompute(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("balance mengikuti paid", func(t *testing.T) {
		inv := FeeInvoice{
			InvoiceTotalAmount: 5000,
			InvoicePaidAmount:  2000,
			InvoiceDueDate:     now.AddDate(0, 1, 0),
			InvoiceStatus:      InvoiceStatusPending,
		}
		inv.Recompute(now)
		assert.Equal(t, int64(3000), inv.InvoiceBalanceAmount)
		assert.Equal(t, InvoiceStatusPartial, inv.InvoiceStatus)
	})

	t.Run("balance tidak pernah negatif", func(t *testing.T) {
		inv := FeeInvoice{
			InvoiceTotalAmount: 5000,
			InvoicePaidAmount:  7000,
			InvoiceDueDate:     now.AddDate(0, 1, 0),
			InvoiceStatus:      InvoiceStatusPartial,
		}
		inv.Recompute(now)
		assert.Equal(t, int64(0), inv.InvoiceBalanceAmount)
		assert.Equal(t, InvoiceStatusPaid, inv.InvoiceStatus)
	})

	t.Run("cancelled tidak pernah berubah status", func(t *testing.T) {
		inv := FeeInvoice{
			InvoiceTotalAmount: 5000,
			InvoicePaidAmount:  0,
			InvoiceDueDate:     now.AddDate(0, -1, 0), // sudah lewat due
			InvoiceStatus:      InvoiceStatusCancelled,
		}
		inv.Recompute(now)
		assert.Equal(t, InvoiceStatusCancelled, inv.InvoiceStatus)
	})
}

func TestIsOpen(t *testing.T) {
	assert.True(t, (&FeeInvoice{InvoiceStatus: InvoiceStatusPending}).IsOpen())
	assert.True(t, (&FeeInvoice{InvoiceStatus: InvoiceStatusPartial}).IsOpen())
	assert.True(t, (&FeeInvoice{InvoiceStatus: InvoiceStatusOverdue}).IsOpen())
	assert.False(t, (&FeeInvoice{InvoiceStatus: InvoiceStatusPaid}).IsOpen())
	assert.False(t, (&FeeInvoice{InvoiceStatus: InvoiceStatusCancelled}).IsOpen())
}
