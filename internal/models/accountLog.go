package models

import "time"

const (
	AccountLogAccountEntity     = "account"
	AccountLogTransactionEntity = "pix_transaction"

	AccountLogRegisteredDescription      = "Account registered"
	AccountLogPayoutInitiatedDescription = "Payout initiated"
	AccountLogPayoutCompletedDescription = "Payout completed"
	AccountLogPayoutFailedDescription    = "Payout failed"
	AccountLogPayoutCancelledDescription = "Payout cancelled"
)

// AccountLog is an append-only audit row for merchant-visible events.
type AccountLog struct {
	ID          string    `db:"id"`
	AccountID   string    `db:"account_id"`
	Entity      string    `db:"entity"`
	EntityID    string    `db:"entity_id"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}
