package payout

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/trocopix/trocopix/internal/gateway"
	"github.com/trocopix/trocopix/internal/limits"
	"github.com/trocopix/trocopix/internal/models"
	"github.com/trocopix/trocopix/internal/money"
	"github.com/trocopix/trocopix/internal/pixkey"
	"github.com/trocopix/trocopix/internal/repository"
)

const defaultGatewayTimeout = 10 * time.Second

// Notifier receives lifecycle events once a payout reaches completed or
// failed. Implementations must not block.
type Notifier interface {
	PayoutCompleted(transaction *models.PixTransaction)
	PayoutFailed(transaction *models.PixTransaction)
}

// Orchestrator drives a PixTransaction through
// pending → processing → {completed | failed | cancelled}, enforcing
// at-most-one-successful-debit against the wallet. It holds no lock
// across I/O; correctness comes from the store's conditional updates.
type Orchestrator struct {
	store          Store
	gw             gateway.Client
	notifier       Notifier
	logger         *slog.Logger
	now            func() time.Time
	gatewayTimeout time.Duration
	maxRetries     int
}

func New(store Store, gw gateway.Client, notifier Notifier, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:          store,
		gw:             gw,
		notifier:       notifier,
		logger:         logger,
		now:            time.Now,
		gatewayTimeout: defaultGatewayTimeout,
		maxRetries:     models.MaxRetries,
	}
}

// ComputeChange derives the change due from the paid and owed amounts.
// Zero change is a valid no-op for the caller; negative change is a
// validation error reported before any record exists.
func ComputeChange(paid, owed money.Money) (money.Money, error) {
	change := paid.Sub(owed)
	if change.IsNegative() {
		return money.Money{}, &ValidationError{
			Code:    CodeNegativeChange,
			Message: "paid amount is less than the amount owed",
		}
	}

	return change, nil
}

type InitiateInput struct {
	SubAccountID string
	PixKey       string
	KeyType      pixkey.KeyType // inferred from the key when empty
	Amount       money.Money
	Description  string
	Source       string
}

// Initiate validates the request, records a pending transaction as the
// durable audit anchor, submits the payout to the bank and settles the
// outcome. The returned transaction is never left mid-flight without an
// attempt at completion or failure, though an ambiguous gateway error
// legitimately leaves it processing for later reconciliation.
func (o *Orchestrator) Initiate(ctx context.Context, input *InitiateInput) (*models.PixTransaction, error) {
	keyType := input.KeyType
	if keyType == "" {
		classified, ok := pixkey.Classify(input.PixKey)
		if !ok {
			return nil, &ValidationError{Code: CodeInvalidKey, Message: "pix key matches no known format"}
		}
		keyType = classified
	} else if err := pixkey.Validate(input.PixKey, keyType); err != nil {
		return nil, &ValidationError{Code: CodeInvalidKey, Message: err.Error()}
	}

	if input.Amount.LessThan(money.MinPayout) || input.Amount.GreaterThan(money.MaxPayout) {
		return nil, &ValidationError{
			Code:    CodeInvalidAmount,
			Message: "amount " + input.Amount.String() + " is outside the allowed payout bounds",
		}
	}

	sub, err := o.loadSubAccount(input.SubAccountID)
	if err != nil {
		return nil, err
	}

	if reason, ok := limits.CanPayout(sub, input.Amount); !ok {
		return nil, &PolicyError{Reason: reason}
	}

	source := input.Source
	if source == "" {
		source = models.TxSourceWeb
	}

	transaction, err := o.store.CreateTransaction(&models.PixTransaction{
		SubAccountID: sub.ID,
		AccountID:    sub.AccountID,
		PixKey:       input.PixKey,
		KeyType:      keyType,
		Amount:       input.Amount,
		Source:       source,
		Description:  nullString(input.Description),
	})
	if err != nil {
		return nil, err
	}

	if err := o.markProcessing(transaction); err != nil {
		return nil, err
	}

	return o.submit(ctx, transaction, sub)
}

// GetStatus returns the transaction, first reconciling a processing
// record against the bank when a gateway id exists. Upstream errors
// during reconciliation are swallowed: a status query never fails the
// caller because the bank is flaky.
func (o *Orchestrator) GetStatus(ctx context.Context, id string) (*models.PixTransaction, error) {
	transaction, found, err := o.store.GetTransaction(id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	if transaction.Status != models.TxStatusProcessing || !transaction.GatewayTxID.Valid {
		return transaction, nil
	}

	gctx, cancel := context.WithTimeout(ctx, o.gatewayTimeout)
	defer cancel()

	status, err := o.gw.CheckStatus(gctx, transaction.GatewayTxID.String)
	if err != nil {
		o.logger.Warn("status reconciliation failed", "transaction_id", id, "error", err)
		return transaction, nil
	}

	switch status {
	case gateway.StatusSettled:
		if err := o.settle(transaction); err != nil {
			o.logger.Warn("settling reconciled payout", "transaction_id", id, "error", err)
			return transaction, nil
		}
	case gateway.StatusRemovedByReceiver:
		update := &repository.StatusUpdate{ProcessedAt: nullTime(o.now())}
		if err := o.store.UpdateTransactionStatus(id, models.TxStatusProcessing, models.TxStatusCancelled, update); err != nil {
			o.logger.Warn("cancelling removed payout", "transaction_id", id, "error", err)
			return transaction, nil
		}
	}

	fresh, found, err := o.store.GetTransaction(id)
	if err != nil || !found {
		return transaction, nil
	}

	return fresh, nil
}

type CancelResult struct {
	Transaction *models.PixTransaction

	// UpstreamFailed is set when the gateway-side cancel did not go
	// through. The local record is cancelled regardless; operators
	// reconcile the provider side manually.
	UpstreamFailed bool
}

// Cancel marks a non-terminal transaction cancelled, attempting a
// best-effort cancellation at the bank first.
func (o *Orchestrator) Cancel(ctx context.Context, id, reason string) (*CancelResult, error) {
	transaction, found, err := o.store.GetTransaction(id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	if transaction.IsTerminal() {
		return nil, &TransitionError{Code: CodeAlreadyTerminal, Status: transaction.Status}
	}

	upstreamFailed := false
	if transaction.GatewayTxID.Valid {
		gctx, cancel := context.WithTimeout(ctx, o.gatewayTimeout)
		defer cancel()

		if err := o.gw.Cancel(gctx, transaction.GatewayTxID.String, reason); err != nil {
			upstreamFailed = true
			o.logger.Warn("gateway-side cancel failed", "transaction_id", id, "error", err)
		}
	}

	update := &repository.StatusUpdate{
		LastError:   nullString(reason),
		ProcessedAt: nullTime(o.now()),
	}

	err = o.store.UpdateTransactionStatus(id, transaction.Status, models.TxStatusCancelled, update)
	if errors.Is(err, repository.ErrConflict) {
		fresh, found, freshErr := o.store.GetTransaction(id)
		if freshErr != nil || !found {
			return nil, ErrTransient
		}
		if fresh.IsTerminal() {
			return nil, &TransitionError{Code: CodeAlreadyTerminal, Status: fresh.Status}
		}
		if err := o.store.UpdateTransactionStatus(id, fresh.Status, models.TxStatusCancelled, update); err != nil {
			return nil, ErrTransient
		}
	} else if err != nil {
		return nil, err
	}

	transaction.Status = models.TxStatusCancelled
	transaction.ProcessedAt = update.ProcessedAt

	return &CancelResult{Transaction: transaction, UpstreamFailed: upstreamFailed}, nil
}

// Retry re-drives a failed transaction. It re-validates the limit
// policy against current wallet state, and when the failed attempt left
// a gateway id it checks the bank first so a payout that actually went
// through is settled instead of submitted twice.
func (o *Orchestrator) Retry(ctx context.Context, id string) (*models.PixTransaction, error) {
	transaction, found, err := o.store.GetTransaction(id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	if transaction.Status != models.TxStatusFailed || transaction.RetryCount >= o.maxRetries {
		return nil, &TransitionError{Code: CodeNotRetryable, Status: transaction.Status}
	}

	if transaction.GatewayTxID.Valid {
		gctx, cancel := context.WithTimeout(ctx, o.gatewayTimeout)
		status, err := o.gw.CheckStatus(gctx, transaction.GatewayTxID.String)
		cancel()

		if err != nil {
			return nil, ErrTransient
		}

		if status == gateway.StatusSettled {
			if err := o.store.UpdateTransactionStatus(id, models.TxStatusFailed, models.TxStatusProcessing, nil); err != nil {
				return nil, ErrTransient
			}
			transaction.Status = models.TxStatusProcessing

			if err := o.settle(transaction); err != nil {
				return transaction, ErrTransient
			}

			fresh, _, err := o.store.GetTransaction(id)
			if err != nil || fresh == nil {
				return transaction, nil
			}
			return fresh, nil
		}
	}

	sub, err := o.loadSubAccount(transaction.SubAccountID)
	if err != nil {
		return nil, err
	}

	if reason, ok := limits.CanPayout(sub, transaction.Amount); !ok {
		return nil, &PolicyError{Reason: reason}
	}

	retries := transaction.RetryCount + 1
	update := &repository.StatusUpdate{RetryCount: &retries}
	if err := o.store.UpdateTransactionStatus(id, models.TxStatusFailed, models.TxStatusPending, update); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrTransient
		}
		return nil, err
	}
	transaction.RetryCount = retries
	transaction.Status = models.TxStatusPending

	if err := o.markProcessing(transaction); err != nil {
		return nil, err
	}

	return o.submit(ctx, transaction, sub)
}

// loadSubAccount reads the wallet and persists the lazy daily reset
// when the calendar day rolled over since the wallet was last touched.
func (o *Orchestrator) loadSubAccount(id string) (*models.SubAccount, error) {
	for attempt := 0; attempt < 2; attempt++ {
		sub, found, err := o.store.GetSubAccount(id)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, ErrNotFound
		}

		before := sub.Counters()
		beforeReset := sub.LastResetAt
		limits.ApplyDailyReset(sub, o.now())
		if sub.LastResetAt.Equal(beforeReset) {
			return sub, nil
		}

		err = o.store.ConditionalUpdateSubAccount(id, before, sub.Counters(), sub.LastResetAt)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, err
		}
	}

	return nil, ErrTransient
}

func (o *Orchestrator) markProcessing(transaction *models.PixTransaction) error {
	err := o.store.UpdateTransactionStatus(transaction.ID, models.TxStatusPending, models.TxStatusProcessing, nil)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrTransient
		}
		return err
	}

	transaction.Status = models.TxStatusProcessing
	return nil
}

func (o *Orchestrator) submit(ctx context.Context, transaction *models.PixTransaction, sub *models.SubAccount) (*models.PixTransaction, error) {
	account, found, err := o.store.GetAccount(transaction.AccountID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	gctx, cancel := context.WithTimeout(ctx, o.gatewayTimeout)
	defer cancel()

	result, err := o.gw.SubmitPayout(gctx, &gateway.SubmitRequest{
		PixKey:      transaction.PixKey,
		KeyType:     string(transaction.KeyType),
		Amount:      transaction.Amount,
		Description: transaction.Description.String,
		Debtor: gateway.Debtor{
			Name:  account.BusinessName,
			TaxID: account.TaxID,
		},
	})
	if err != nil {
		return o.recordSubmitFailure(transaction, err)
	}

	return o.completeWithDebit(transaction, sub, result.GatewayTxID)
}

func (o *Orchestrator) recordSubmitFailure(transaction *models.PixTransaction, submitErr error) (*models.PixTransaction, error) {
	var gwErr *gateway.Error
	confirmed := errors.As(submitErr, &gwErr) || errors.Is(submitErr, gateway.ErrAuth)

	if !confirmed {
		// The request may have reached the bank even though no response
		// was read. The transaction stays processing until a status
		// check resolves it; marking it failed here would invite a
		// retry that submits the same payout twice.
		update := &repository.StatusUpdate{LastError: nullString(submitErr.Error())}
		if err := o.store.UpdateTransactionStatus(transaction.ID, models.TxStatusProcessing, models.TxStatusProcessing, update); err != nil {
			o.logger.Error("recording ambiguous gateway error", "transaction_id", transaction.ID, "error", err)
		}
		transaction.LastError = nullString(submitErr.Error())

		o.logger.Warn("payout left processing after ambiguous gateway error",
			"transaction_id", transaction.ID, "error", submitErr)

		return transaction, nil
	}

	update := &repository.StatusUpdate{
		LastError:   nullString(submitErr.Error()),
		ProcessedAt: nullTime(o.now()),
	}
	if err := o.store.UpdateTransactionStatus(transaction.ID, models.TxStatusProcessing, models.TxStatusFailed, update); err != nil {
		return nil, err
	}

	transaction.Status = models.TxStatusFailed
	transaction.LastError = update.LastError
	transaction.ProcessedAt = update.ProcessedAt

	if o.notifier != nil {
		o.notifier.PayoutFailed(transaction)
	}

	return transaction, nil
}

// completeWithDebit applies the wallet debit and the completed mark as
// one atomic pair. The conditional update re-asserts the counters read
// before submission, so a concurrent debit forces a re-read and a
// policy re-check instead of overdrawing the wallet.
func (o *Orchestrator) completeWithDebit(transaction *models.PixTransaction, sub *models.SubAccount, gatewayTxID string) (*models.PixTransaction, error) {
	for attempt := 0; attempt < 2; attempt++ {
		next := models.Counters{
			Balance:    sub.Balance.Sub(transaction.Amount),
			DailyUsed:  sub.DailyUsed.Add(transaction.Amount),
			DailyCount: sub.DailyCount + 1,
		}

		err := o.store.DebitAndComplete(transaction.ID, sub.ID, sub.Counters(), next, gatewayTxID)
		if err == nil {
			now := o.now()
			transaction.Status = models.TxStatusCompleted
			transaction.GatewayTxID = nullString(gatewayTxID)
			transaction.DebitedAt = nullTime(now)
			transaction.ProcessedAt = nullTime(now)
			transaction.LastError = sql.NullString{}

			if o.notifier != nil {
				o.notifier.PayoutCompleted(transaction)
			}

			return transaction, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, err
		}

		fresh, found, err := o.store.GetTransaction(transaction.ID)
		if err == nil && found && fresh.IsTerminal() {
			return fresh, nil
		}

		sub, err = o.loadSubAccount(transaction.SubAccountID)
		if err != nil {
			return transaction, ErrTransient
		}

		// The money already moved at the bank; the re-check only guards
		// against driving the balance negative. A denial here leaves
		// the row processing for operator reconciliation.
		if reason, ok := limits.CanPayout(sub, transaction.Amount); !ok {
			o.logger.Error("settled payout cannot be debited",
				"transaction_id", transaction.ID, "reason", string(reason))
			return transaction, ErrTransient
		}
	}

	return transaction, ErrTransient
}

// settle upgrades a processing transaction whose payout the bank
// reports as settled, performing the debit if it has not happened yet.
func (o *Orchestrator) settle(transaction *models.PixTransaction) error {
	if transaction.DebitedAt.Valid {
		update := &repository.StatusUpdate{ProcessedAt: nullTime(o.now())}
		return o.store.UpdateTransactionStatus(transaction.ID, models.TxStatusProcessing, models.TxStatusCompleted, update)
	}

	sub, err := o.loadSubAccount(transaction.SubAccountID)
	if err != nil {
		return err
	}

	_, err = o.completeWithDebit(transaction, sub, transaction.GatewayTxID.String)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}
