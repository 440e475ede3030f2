package models

import (
	"database/sql"
	"time"

	"github.com/trocopix/trocopix/internal/money"
)

const (
	SubAccountActiveStatus = "active"
	SubAccountOnHoldStatus = "on-hold"
)

// SubAccount is the merchant's virtual wallet. Balance and the daily
// counters are mutated exclusively through the payout orchestrator's
// conditional updates.
type SubAccount struct {
	ID                string       `db:"id"`
	AccountID         string       `db:"account_id"`
	Balance           money.Money  `db:"balance"`
	MaxPerTransaction money.Money  `db:"max_per_transaction"`
	DailyLimit        money.Money  `db:"daily_limit"`
	DailyUsed         money.Money  `db:"daily_used"`
	DailyCount        int          `db:"daily_count"`
	Status            string       `db:"status"`
	LastResetAt       time.Time    `db:"last_reset_at"`
	CreatedAt         time.Time    `db:"created_at"`
	UpdatedAt         sql.NullTime `db:"updated_at"`
}

// Counters is the snapshot of the mutable wallet fields used by the
// ledger store's compare-and-swap update.
type Counters struct {
	Balance    money.Money
	DailyUsed  money.Money
	DailyCount int
}

func (s *SubAccount) Counters() Counters {
	return Counters{
		Balance:    s.Balance,
		DailyUsed:  s.DailyUsed,
		DailyCount: s.DailyCount,
	}
}
