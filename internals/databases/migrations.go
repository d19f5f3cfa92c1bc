package database

import (
	"log"

	"gorm.io/gorm"
)

// RunMigrations menjalankan DDL billing secara idempotent (IF NOT EXISTS).
// Invariant saldo dijaga juga di level schema: paid/balance tidak boleh
// negatif, external id & nomor invoice unik.
func RunMigrations(db *gorm.DB) error {
	log.Println("Running billing migrations...")

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fee_structures (
			fee_structure_id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			fee_structure_school_id     UUID NOT NULL,
			fee_structure_class_id      UUID,
			fee_structure_academic_year VARCHAR(16) NOT NULL,
			fee_structure_name          VARCHAR(120) NOT NULL,
			fee_structure_code          VARCHAR(40) NOT NULL,
			fee_structure_amount        BIGINT NOT NULL CHECK (fee_structure_amount > 0),
			fee_structure_currency      VARCHAR(8) NOT NULL DEFAULT 'UGX',
			fee_structure_frequency     VARCHAR(16) NOT NULL DEFAULT 'per_term'
				CHECK (fee_structure_frequency IN ('once','per_term','per_year','on_demand')),
			fee_structure_mandatory     BOOLEAN NOT NULL DEFAULT true,
			fee_structure_valid_from    TIMESTAMPTZ,
			fee_structure_valid_until   TIMESTAMPTZ,
			fee_structure_is_active     BOOLEAN NOT NULL DEFAULT true,
			fee_structure_created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			fee_structure_updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			fee_structure_deleted_at    TIMESTAMPTZ
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_fee_structure_school_code
			ON fee_structures (fee_structure_school_id, fee_structure_code)
			WHERE fee_structure_deleted_at IS NULL`,

		`CREATE TABLE IF NOT EXISTS fee_invoices (
			invoice_id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			invoice_number           VARCHAR(40) NOT NULL,
			invoice_enrollment_id    UUID NOT NULL,
			invoice_fee_structure_id UUID NOT NULL REFERENCES fee_structures (fee_structure_id),
			invoice_period           VARCHAR(24) NOT NULL,
			invoice_issue_date       TIMESTAMPTZ NOT NULL DEFAULT now(),
			invoice_due_date         TIMESTAMPTZ NOT NULL,
			invoice_total_amount     BIGINT NOT NULL CHECK (invoice_total_amount > 0),
			invoice_paid_amount      BIGINT NOT NULL DEFAULT 0
				CHECK (invoice_paid_amount >= 0 AND invoice_paid_amount <= invoice_total_amount),
			invoice_balance_amount   BIGINT NOT NULL
				CHECK (invoice_balance_amount >= 0),
			invoice_currency         VARCHAR(8) NOT NULL DEFAULT 'UGX',
			invoice_status           VARCHAR(16) NOT NULL DEFAULT 'pending'
				CHECK (invoice_status IN ('pending','partial','paid','overdue','cancelled')),
			invoice_cancel_reason    TEXT,
			invoice_created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			invoice_updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			invoice_deleted_at       TIMESTAMPTZ
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_invoice_number
			ON fee_invoices (invoice_number)`,
		`CREATE INDEX IF NOT EXISTS ix_invoice_enrollment
			ON fee_invoices (invoice_enrollment_id)`,

		`CREATE TABLE IF NOT EXISTS payments (
			payment_id                 UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			payment_reference          VARCHAR(64) NOT NULL,
			payment_invoice_id         UUID REFERENCES fee_invoices (invoice_id),
			payment_amount             BIGINT NOT NULL CHECK (payment_amount > 0),
			payment_applied_amount     BIGINT NOT NULL DEFAULT 0
				CHECK (payment_applied_amount >= 0 AND payment_applied_amount <= payment_amount),
			payment_currency           VARCHAR(8) NOT NULL DEFAULT 'UGX',
			payment_method             VARCHAR(24) NOT NULL,
			payment_channel            VARCHAR(16) NOT NULL DEFAULT 'manual'
				CHECK (payment_channel IN ('manual','gateway')),
			payment_provider           VARCHAR(24),
			payment_external_id        VARCHAR(128),
			payment_provider_ref       VARCHAR(128),
			payment_status             VARCHAR(16) NOT NULL DEFAULT 'pending'
				CHECK (payment_status IN ('pending','completed','failed','cancelled','refunded')),
			payment_payer_user_id      UUID,
			payment_received_by_user_id UUID,
			payment_needs_review       BOOLEAN NOT NULL DEFAULT false,
			payment_review_note        TEXT,
			payment_fail_reason        TEXT,
			payment_paid_at            TIMESTAMPTZ,
			payment_failed_at          TIMESTAMPTZ,
			payment_created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
			payment_updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
			payment_deleted_at         TIMESTAMPTZ
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_payment_reference
			ON payments (payment_reference)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_payment_external_id
			ON payments (payment_external_id)
			WHERE payment_external_id IS NOT NULL AND payment_deleted_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS ix_payment_invoice
			ON payments (payment_invoice_id)`,
		`CREATE INDEX IF NOT EXISTS ix_payment_pending_gateway
			ON payments (payment_created_at)
			WHERE payment_status = 'pending' AND payment_channel = 'gateway'`,

		`CREATE TABLE IF NOT EXISTS refunds (
			refund_id                  UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			refund_payment_id          UUID NOT NULL REFERENCES payments (payment_id),
			refund_amount              BIGINT NOT NULL CHECK (refund_amount > 0),
			refund_status              VARCHAR(16) NOT NULL DEFAULT 'processed'
				CHECK (refund_status IN ('pending','processed','failed','cancelled')),
			refund_reason              TEXT NOT NULL,
			refund_processed_by_user_id UUID,
			refund_processed_at        TIMESTAMPTZ,
			refund_created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
			refund_updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
			refund_deleted_at          TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS ix_refund_payment
			ON refunds (refund_payment_id)`,

		`CREATE TABLE IF NOT EXISTS payment_gateway_events (
			gateway_event_id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			gateway_event_payment_id   UUID,
			gateway_event_provider     VARCHAR(24) NOT NULL,
			gateway_event_type         VARCHAR(64),
			gateway_event_external_id  VARCHAR(128),
			gateway_event_headers      JSONB,
			gateway_event_payload      JSONB,
			gateway_event_signature    TEXT,
			gateway_event_status       VARCHAR(16) NOT NULL DEFAULT 'received'
				CHECK (gateway_event_status IN ('received','processed','ignored','failed')),
			gateway_event_error        TEXT,
			gateway_event_received_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			gateway_event_processed_at TIMESTAMPTZ,
			gateway_event_created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			gateway_event_updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			gateway_event_deleted_at   TIMESTAMPTZ
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_gw_event_provider_extid_type
			ON payment_gateway_events (gateway_event_provider, gateway_event_external_id, gateway_event_type)
			WHERE gateway_event_external_id IS NOT NULL AND gateway_event_deleted_at IS NULL`,
	}

	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			log.Printf("migration failed: %v", err)
			return err
		}
	}

	log.Println("Billing migrations completed")
	return nil
}
