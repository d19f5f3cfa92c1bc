package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestNextNumberInSeries(t *testing.T) {
	tests := []struct {
		name string
		last string
		want string
	}{
		{"awal seri", "", "INV-2026-000001"},
		{"lanjut seri", "INV-2026-000041", "INV-2026-000042"},
		{"nomor korup dianggap awal seri", "INV-2026-xyz", "INV-2026-000001"},
		{"seq panjang tetap naik", "INV-2026-999999", "INV-2026-1000000"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, nextNumberInSeries("INV-2026-", tc.last))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	uq := &pgconn.PgError{Code: "23505", ConstraintName: "uq_invoice_number"}
	assert.True(t, isUniqueViolation(uq))
	assert.True(t, isUniqueViolation(fmt.Errorf("create gagal: %w", uq)),
		"error terbungkus tetap terdeteksi")

	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("koneksi putus")))
	assert.False(t, isUniqueViolation(nil))
}
