package models

import (
	"database/sql"
	"time"

	"github.com/trocopix/trocopix/internal/money"
	"github.com/trocopix/trocopix/internal/pixkey"
)

// Lifecycle states of a payout. Completed and cancelled are terminal;
// failed can return to pending through an explicit retry.
const (
	TxStatusPending    = "pending"
	TxStatusProcessing = "processing"
	TxStatusCompleted  = "completed"
	TxStatusFailed     = "failed"
	TxStatusCancelled  = "cancelled"
)

const (
	TxSourceWeb    = "web"
	TxSourceDevice = "device"
)

// MaxRetries bounds how many times a failed payout may be re-driven.
const MaxRetries = 3

// PixTransaction is one payout attempt against a SubAccount.
type PixTransaction struct {
	ID           string         `db:"id"`
	SubAccountID string         `db:"sub_account_id"`
	AccountID    string         `db:"account_id"`
	PixKey       string         `db:"pix_key"`
	KeyType      pixkey.KeyType `db:"key_type"`
	Amount       money.Money    `db:"amount"`
	Status       string         `db:"status"`
	GatewayTxID  sql.NullString `db:"gateway_tx_id"`
	LastError    sql.NullString `db:"last_error"`
	RetryCount   int            `db:"retry_count"`
	Source       string         `db:"source"`
	Description  sql.NullString `db:"description"`
	DebitedAt    sql.NullTime   `db:"debited_at"`
	CreatedAt    time.Time      `db:"created_at"`
	ProcessedAt  sql.NullTime   `db:"processed_at"`
}

// IsTerminal reports whether the transaction can never change again.
func (t *PixTransaction) IsTerminal() bool {
	return t.Status == TxStatusCompleted || t.Status == TxStatusCancelled
}
