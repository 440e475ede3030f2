package limits

import (
	"time"

	"github.com/trocopix/trocopix/internal/models"
	"github.com/trocopix/trocopix/internal/money"
)

// Denial is the stable reason code returned to callers when a payout is
// not admissible.
type Denial string

const (
	DenialAccountInactive     Denial = "ACCOUNT_INACTIVE"
	DenialExceedsTxLimit      Denial = "EXCEEDS_TX_LIMIT"
	DenialExceedsDailyLimit   Denial = "EXCEEDS_DAILY_LIMIT"
	DenialInsufficientBalance Denial = "INSUFFICIENT_BALANCE"
)

// ApplyDailyReset zeroes the daily counters the first time the wallet is
// touched on a new calendar day. Pure on the snapshot; the write happens
// together with the debit's conditional update.
func ApplyDailyReset(sub *models.SubAccount, now time.Time) {
	lastY, lastM, lastD := sub.LastResetAt.Date()
	nowY, nowM, nowD := now.Date()

	if lastY == nowY && lastM == nowM && lastD == nowD {
		return
	}

	sub.DailyUsed = money.NewFromCents(0)
	sub.DailyCount = 0
	sub.LastResetAt = now
}

// CanPayout evaluates whether the amount is admissible for the wallet
// snapshot. Checks run in a fixed order and the first failing reason is
// returned; callers depend on this priority.
func CanPayout(sub *models.SubAccount, amount money.Money) (Denial, bool) {
	if sub.Status != models.SubAccountActiveStatus {
		return DenialAccountInactive, false
	}

	if amount.GreaterThan(sub.MaxPerTransaction) {
		return DenialExceedsTxLimit, false
	}

	if sub.DailyUsed.Add(amount).GreaterThan(sub.DailyLimit) {
		return DenialExceedsDailyLimit, false
	}

	if amount.GreaterThan(sub.Balance) {
		return DenialInsufficientBalance, false
	}

	return "", true
}
