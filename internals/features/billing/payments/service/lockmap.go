package service

import (
	"sync"

	"github.com/google/uuid"
)

/* =========================================================
   Keyed lock per invoice.
   Critical section "baca balance → putuskan → tulis balance"
   diserialisasi per invoice, BUKAN global — dua invoice
   berbeda tetap jalan paralel.
========================================================= */

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

type invoiceLocks struct {
	mu    sync.Mutex
	table map[uuid.UUID]*lockEntry
}

func newInvoiceLocks() *invoiceLocks {
	return &invoiceLocks{table: make(map[uuid.UUID]*lockEntry)}
}

// Lock mengambil mutex untuk invoiceID dan mengembalikan fungsi unlock.
// Entry di-refcount supaya table tidak tumbuh tanpa batas.
func (l *invoiceLocks) Lock(invoiceID uuid.UUID) func() {
	l.mu.Lock()
	e, ok := l.table[invoiceID]
	if !ok {
		e = &lockEntry{}
		l.table[invoiceID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.table, invoiceID)
		}
		l.mu.Unlock()
	}
}
