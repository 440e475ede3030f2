package seeders

import (
	"context"
	"database/sql"
	"log"

	"github.com/cradoe/gopass"
)

// seedDemoMerchant creates a merchant with a funded wallet for local
// development. Running it twice is a no-op.
func (seeder *Seeder) seedDemoMerchant() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	tx, err := seeder.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		log.Fatalf("Failed to start transaction: %v", err)
	}

	hashedPassword, err := gopass.Hash("Trocopix@Demo1")
	if err != nil {
		tx.Rollback()
		log.Fatalf("Failed to hash demo password: %v", err)
	}

	var accountID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO accounts (business_name, tax_id, email, hashed_password)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO NOTHING
		RETURNING id;`,
		"Padaria do Zé", "12345678000195", "demo@trocopix.local", hashedPassword,
	).Scan(&accountID)

	if err == sql.ErrNoRows {
		// Already seeded.
		tx.Rollback()
		return
	}
	if err != nil {
		tx.Rollback()
		log.Fatalf("Failed to insert demo merchant: %v", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sub_accounts (account_id, balance)
		VALUES ($1, $2);`,
		accountID, "250.00",
	)
	if err != nil {
		tx.Rollback()
		log.Fatalf("Failed to insert demo wallet: %v", err)
	}

	if err = tx.Commit(); err != nil {
		log.Fatalf("Failed to commit transaction: %v", err)
	}
}
