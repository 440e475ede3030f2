package payout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/trocopix/trocopix/internal/gateway"
	"github.com/trocopix/trocopix/internal/limits"
	"github.com/trocopix/trocopix/internal/mocks"
	"github.com/trocopix/trocopix/internal/models"
	"github.com/trocopix/trocopix/internal/money"
	"github.com/trocopix/trocopix/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func mustMoney(t *testing.T, value string) money.Money {
	t.Helper()
	m, err := money.New(value)
	require.NoError(t, err)
	return m
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSubAccount(t *testing.T) *models.SubAccount {
	return &models.SubAccount{
		ID:                "sub-1",
		AccountID:         "acc-1",
		Balance:           mustMoney(t, "50.00"),
		MaxPerTransaction: mustMoney(t, "99.99"),
		DailyLimit:        mustMoney(t, "500.00"),
		DailyUsed:         mustMoney(t, "0.00"),
		Status:            models.SubAccountActiveStatus,
		LastResetAt:       time.Now(),
	}
}

func testAccount() *models.Account {
	return &models.Account{
		ID:           "acc-1",
		BusinessName: "Loja da Ana",
		TaxID:        "12345678000195",
		Status:       models.AccountActiveStatus,
	}
}

func newTestOrchestrator(store Store, gw gateway.Client, notifier Notifier) *Orchestrator {
	return New(store, gw, notifier, testLogger())
}

func countersMatch(t *testing.T, balance, dailyUsed string, dailyCount int) any {
	return mock.MatchedBy(func(c models.Counters) bool {
		return c.Balance.String() == balance &&
			c.DailyUsed.String() == dailyUsed &&
			c.DailyCount == dailyCount
	})
}

// Scenario: balance 50.00, cap 99.99, daily limit 500.00, gateway
// succeeds. The payout completes and debits 10.50.
func TestInitiate_Success(t *testing.T) {
	store := new(mocks.MockLedgerStore)
	gw := new(mocks.MockGatewayClient)
	notifier := new(mocks.MockNotifier)

	sub := testSubAccount(t)
	pending := &models.PixTransaction{
		ID:           "tx-1",
		SubAccountID: "sub-1",
		AccountID:    "acc-1",
		PixKey:       "a@b.com",
		KeyType:      "email",
		Amount:       mustMoney(t, "10.50"),
		Status:       models.TxStatusPending,
	}

	store.On("GetSubAccount", "sub-1").Return(sub, true, nil)
	store.On("CreateTransaction", mock.Anything).Return(pending, nil)
	store.On("UpdateTransactionStatus", "tx-1", models.TxStatusPending, models.TxStatusProcessing, mock.Anything).Return(nil)
	store.On("GetAccount", "acc-1").Return(testAccount(), true, nil)
	store.On("DebitAndComplete", "tx-1", "sub-1",
		countersMatch(t, "50.00", "0.00", 0),
		countersMatch(t, "39.50", "10.50", 1),
		"gw-123",
	).Return(nil)

	gw.On("SubmitPayout", mock.Anything, mock.Anything).Return(&gateway.SubmitResult{GatewayTxID: "gw-123"}, nil)

	o := newTestOrchestrator(store, gw, notifier)

	transaction, err := o.Initiate(context.Background(), &InitiateInput{
		SubAccountID: "sub-1",
		PixKey:       "a@b.com",
		Amount:       mustMoney(t, "10.50"),
	})
	require.NoError(t, err)

	assert.Equal(t, models.TxStatusCompleted, transaction.Status)
	assert.Equal(t, "gw-123", transaction.GatewayTxID.String)
	assert.True(t, transaction.DebitedAt.Valid)
	assert.Equal(t, []string{"tx-1"}, notifier.Completed)
	store.AssertExpectations(t)
	gw.AssertExpectations(t)
}

func TestInitiate_InvalidKey(t *testing.T) {
	store := new(mocks.MockLedgerStore)
	o := newTestOrchestrator(store, new(mocks.MockGatewayClient), nil)

	_, err := o.Initiate(context.Background(), &InitiateInput{
		SubAccountID: "sub-1",
		PixKey:       "not a key",
		Amount:       mustMoney(t, "10.00"),
	})

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, CodeInvalidKey, valErr.Code)
	store.AssertNotCalled(t, "CreateTransaction", mock.Anything)
}

func TestInitiate_KeyTypeMismatch(t *testing.T) {
	store := new(mocks.MockLedgerStore)
	o := newTestOrchestrator(store, new(mocks.MockGatewayClient), nil)

	_, err := o.Initiate(context.Background(), &InitiateInput{
		SubAccountID: "sub-1",
		PixKey:       "a@b.com",
		KeyType:      "cpf",
		Amount:       mustMoney(t, "10.00"),
	})

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, CodeInvalidKey, valErr.Code)
}

func TestInitiate_AmountOutOfBounds(t *testing.T) {
	store := new(mocks.MockLedgerStore)
	o := newTestOrchestrator(store, new(mocks.MockGatewayClient), nil)

	for _, amount := range []string{"0.00", "100.00"} {
		_, err := o.Initiate(context.Background(), &InitiateInput{
			SubAccountID: "sub-1",
			PixKey:       "a@b.com",
			Amount:       mustMoney(t, amount),
		})

		var valErr *ValidationError
		require.ErrorAs(t, err, &valErr, "amount %s", amount)
		assert.Equal(t, CodeInvalidAmount, valErr.Code)
	}
	store.AssertNotCalled(t, "CreateTransaction", mock.Anything)
}

// Scenario: amount above the per-transaction cap is denied before any
// record is created.
func TestInitiate_ExceedsTxLimit(t *testing.T) {
	store := new(mocks.MockLedgerStore)
	sub := testSubAccount(t)
	sub.MaxPerTransaction = mustMoney(t, "20.00")
	store.On("GetSubAccount", "sub-1").Return(sub, true, nil)

	o := newTestOrchestrator(store, new(mocks.MockGatewayClient), nil)

	_, err := o.Initiate(context.Background(), &InitiateInput{
		SubAccountID: "sub-1",
		PixKey:       "a@b.com",
		Amount:       mustMoney(t, "25.00"),
	})

	var polErr *PolicyError
	require.ErrorAs(t, err, &polErr)
	assert.Equal(t, limits.DenialExceedsTxLimit, polErr.Reason)
	store.AssertNotCalled(t, "CreateTransaction", mock.Anything)
}

// Scenario: balance 5.00, initiate 10.00 → INSUFFICIENT_BALANCE.
func TestInitiate_InsufficientBalance(t *testing.T) {
	store := new(mocks.MockLedgerStore)
	sub := testSubAccount(t)
	sub.Balance = mustMoney(t, "5.00")
	store.On("GetSubAccount", "sub-1").Return(sub, true, nil)

	o := newTestOrchestrator(store, new(mocks.MockGatewayClient), nil)

	_, err := o.Initiate(context.Background(), &InitiateInput{
		SubAccountID: "sub-1",
		PixKey:       "a@b.com",
		Amount:       mustMoney(t, "10.00"),
	})

	var polErr *PolicyError
	require.ErrorAs(t, err, &polErr)
	assert.Equal(t, limits.DenialInsufficientBalance, polErr.Reason)
}

func TestInitiate_ConfirmedGatewayRejectionMarksFailed(t *testing.T) {
	store := new(mocks.MockLedgerStore)
	gw := new(mocks.MockGatewayClient)
	notifier := new(mocks.MockNotifier)

	pending := &models.PixTransaction{
		ID: "tx-1", SubAccountID: "sub-1", AccountID: "acc-1",
		PixKey: "a@b.com", KeyType: "email",
		Amount: mustMoney(t, "10.00"), Status: models.TxStatusPending,
	}

	store.On("GetSubAccount", "sub-1").Return(testSubAccount(t), true, nil)
	store.On("CreateTransaction", mock.Anything).Return(pending, nil)
	store.On("UpdateTransactionStatus", "tx-1", models.TxStatusPending, models.TxStatusProcessing, mock.Anything).Return(nil)
	store.On("GetAccount", "acc-1").Return(testAccount(), true, nil)
	store.On("UpdateTransactionStatus", "tx-1", models.TxStatusProcessing, models.TxStatusFailed, mock.Anything).Return(nil)

	gw.On("SubmitPayout", mock.Anything, mock.Anything).
		Return(nil, &gateway.Error{Message: "key not found", HTTPStatus: 422})

	o := newTestOrchestrator(store, gw, notifier)

	transaction, err := o.Initiate(context.Background(), &InitiateInput{
		SubAccountID: "sub-1",
		PixKey:       "a@b.com",
		Amount:       mustMoney(t, "10.00"),
	})
	require.NoError(t, err)

	assert.Equal(t, models.TxStatusFailed, transaction.Status)
	assert.Contains(t, transaction.LastError.String, "key not found")
	assert.Equal(t, []string{"tx-1"}, notifier.Failed)
	store.AssertNotCalled(t, "DebitAndComplete", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// A transport error after the request was sent is ambiguous: the payout
// may have gone through. The transaction stays processing instead of
// being marked failed and retried blindly.
func TestInitiate_AmbiguousGatewayErrorLeavesProcessing(t *testing.T) {
	store := new(mocks.MockLedgerStore)
	gw := new(mocks.MockGatewayClient)
	notifier := new(mocks.MockNotifier)

	pending := &models.PixTransaction{
		ID: "tx-1", SubAccountID: "sub-1", AccountID: "acc-1",
		PixKey: "a@b.com", KeyType: "email",
		Amount: mustMoney(t, "10.00"), Status: models.TxStatusPending,
	}

	store.On("GetSubAccount", "sub-1").Return(testSubAccount(t), true, nil)
	store.On("CreateTransaction", mock.Anything).Return(pending, nil)
	store.On("UpdateTransactionStatus", "tx-1", models.TxStatusPending, models.TxStatusProcessing, mock.Anything).Return(nil)
	store.On("GetAccount", "acc-1").Return(testAccount(), true, nil)
	store.On("UpdateTransactionStatus", "tx-1", models.TxStatusProcessing, models.TxStatusProcessing, mock.Anything).Return(nil)

	gw.On("SubmitPayout", mock.Anything, mock.Anything).
		Return(nil, &net.OpError{Op: "read", Err: errors.New("connection reset")})

	o := newTestOrchestrator(store, gw, notifier)

	transaction, err := o.Initiate(context.Background(), &InitiateInput{
		SubAccountID: "sub-1",
		PixKey:       "a@b.com",
		Amount:       mustMoney(t, "10.00"),
	})
	require.NoError(t, err)

	assert.Equal(t, models.TxStatusProcessing, transaction.Status)
	assert.Empty(t, notifier.Failed)
	store.AssertNotCalled(t, "UpdateTransactionStatus", "tx-1", models.TxStatusProcessing, models.TxStatusFailed, mock.Anything)
	store.AssertNotCalled(t, "DebitAndComplete", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// The wallet's daily counters reset lazily on the first touch of a new
// calendar day, persisted through the conditional update.
func TestInitiate_LazyDailyReset(t *testing.T) {
	store := new(mocks.MockLedgerStore)
	gw := new(mocks.MockGatewayClient)

	sub := testSubAccount(t)
	sub.DailyUsed = mustMoney(t, "480.00")
	sub.DailyCount = 12
	sub.LastResetAt = time.Now().AddDate(0, 0, -1)

	pending := &models.PixTransaction{
		ID: "tx-1", SubAccountID: "sub-1", AccountID: "acc-1",
		PixKey: "a@b.com", KeyType: "email",
		Amount: mustMoney(t, "40.00"), Status: models.TxStatusPending,
	}

	store.On("GetSubAccount", "sub-1").Return(sub, true, nil)
	store.On("ConditionalUpdateSubAccount", "sub-1",
		countersMatch(t, "50.00", "480.00", 12),
		countersMatch(t, "50.00", "0.00", 0),
		mock.Anything,
	).Return(nil)
	store.On("CreateTransaction", mock.Anything).Return(pending, nil)
	store.On("UpdateTransactionStatus", "tx-1", models.TxStatusPending, models.TxStatusProcessing, mock.Anything).Return(nil)
	store.On("GetAccount", "acc-1").Return(testAccount(), true, nil)
	store.On("DebitAndComplete", "tx-1", "sub-1",
		countersMatch(t, "50.00", "0.00", 0),
		countersMatch(t, "10.00", "40.00", 1),
		"gw-9",
	).Return(nil)

	gw.On("SubmitPayout", mock.Anything, mock.Anything).Return(&gateway.SubmitResult{GatewayTxID: "gw-9"}, nil)

	o := newTestOrchestrator(store, gw, nil)

	// Yesterday's usage would have denied this payout; the reset makes
	// it admissible again.
	transaction, err := o.Initiate(context.Background(), &InitiateInput{
		SubAccountID: "sub-1",
		PixKey:       "a@b.com",
		Amount:       mustMoney(t, "40.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusCompleted, transaction.Status)
	store.AssertExpectations(t)
}

func TestGetStatus_TerminalIsIdempotent(t *testing.T) {
	store := new(mocks.MockLedgerStore)
	gw := new(mocks.MockGatewayClient)

	completed := &models.PixTransaction{
		ID: "tx-1", Status: models.TxStatusCompleted,
		GatewayTxID: sql.NullString{String: "gw-1", Valid: true},
	}
	store.On("GetTransaction", "tx-1").Return(completed, true, nil)

	o := newTestOrchestrator(store, gw, nil)

	for range 3 {
		transaction, err := o.GetStatus(context.Background(), "tx-1")
		require.NoError(t, err)
		assert.Equal(t, models.TxStatusCompleted, transaction.Status)
	}

	gw.AssertNotCalled(t, "CheckStatus", mock.Anything, mock.Anything)
}

func TestGetStatus_SettledUpgradesAndDebits(t *testing.T) {
	store := new(mocks.MockLedgerStore)
	gw := new(mocks.MockGatewayClient)

	processing := &models.PixTransaction{
		ID: "tx-1", SubAccountID: "sub-1", AccountID: "acc-1",
		Amount: mustMoney(t, "10.50"), Status: models.TxStatusProcessing,
		GatewayTxID: sql.NullString{String: "gw-1", Valid: true},
	}
	completed := &models.PixTransaction{
		ID: "tx-1", Status: models.TxStatusCompleted,
		GatewayTxID: sql.NullString{String: "gw-1", Valid: true},
	}

	store.On("GetTransaction", "tx-1").Return(processing, true, nil).Once()
	store.On("GetSubAccount", "sub-1").Return(testSubAccount(t), true, nil)
	store.On("DebitAndComplete", "tx-1", "sub-1",
		countersMatch(t, "50.00", "0.00", 0),
		countersMatch(t, "39.50", "10.50", 1),
		"gw-1",
	).Return(nil)
	store.On("GetTransaction", "tx-1").Return(completed, true, nil).Once()

	gw.On("CheckStatus", mock.Anything, "gw-1").Return(gateway.StatusSettled, nil)

	o := newTestOrchestrator(store, gw, nil)

	transaction, err := o.GetStatus(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusCompleted, transaction.Status)
	store.AssertExpectations(t)
}

func TestGetStatus_RemovedByReceiverCancels(t *testing.T) {
	store := new(mocks.MockLedgerStore)
	gw := new(mocks.MockGatewayClient)

	processing := &models.PixTransaction{
		ID: "tx-1", SubAccountID: "sub-1", Status: models.TxStatusProcessing,
		GatewayTxID: sql.NullString{String: "gw-1", Valid: true},
	}
	cancelled := &models.PixTransaction{ID: "tx-1", Status: models.TxStatusCancelled}

	store.On("GetTransaction", "tx-1").Return(processing, true, nil).Once()
	store.On("UpdateTransactionStatus", "tx-1", models.TxStatusProcessing, models.TxStatusCancelled, mock.Anything).Return(nil)
	store.On("GetTransaction", "tx-1").Return(cancelled, true, nil).Once()

	gw.On("CheckStatus", mock.Anything, "gw-1").Return(gateway.StatusRemovedByReceiver, nil)

	o := newTestOrchestrator(store, gw, nil)

	transaction, err := o.GetStatus(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusCancelled, transaction.Status)
}

// Upstream flakiness is swallowed; the caller sees the last known
// local status.
func TestGetStatus_GatewayErrorSwallowed(t *testing.T) {
	store := new(mocks.MockLedgerStore)
	gw := new(mocks.MockGatewayClient)

	processing := &models.PixTransaction{
		ID: "tx-1", Status: models.TxStatusProcessing,
		GatewayTxID: sql.NullString{String: "gw-1", Valid: true},
	}
	store.On("GetTransaction", "tx-1").Return(processing, true, nil)
	gw.On("CheckStatus", mock.Anything, "gw-1").Return(gateway.StatusUnknown, errors.New("bank is down"))

	o := newTestOrchestrator(store, gw, nil)

	transaction, err := o.GetStatus(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusProcessing, transaction.Status)
}

func TestGetStatus_NotFound(t *testing.T) {
	store := new(mocks.MockLedgerStore)
	store.On("GetTransaction", "missing").Return(nil, false, nil)

	o := newTestOrchestrator(store, new(mocks.MockGatewayClient), nil)

	_, err := o.GetStatus(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCancel_TerminalRejected(t *testing.T) {
	store := new(mocks.MockLedgerStore)
	completed := &models.PixTransaction{ID: "tx-1", Status: models.TxStatusCompleted}
	store.On("GetTransaction", "tx-1").Return(completed, true, nil)

	o := newTestOrchestrator(store, new(mocks.MockGatewayClient), nil)

	_, err := o.Cancel(context.Background(), "tx-1", "changed my mind")

	var trErr *TransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, CodeAlreadyTerminal, trErr.Code)
}

// Scenario: the gateway-side cancel times out. The local record is
// still cancelled, with the warning flag set for manual reconciliation.
func TestCancel_UpstreamFailureStillCancelsLocally(t *testing.T) {
	store := new(mocks.MockLedgerStore)
	gw := new(mocks.MockGatewayClient)

	processing := &models.PixTransaction{
		ID: "tx-1", Status: models.TxStatusProcessing,
		GatewayTxID: sql.NullString{String: "gw-1", Valid: true},
	}
	store.On("GetTransaction", "tx-1").Return(processing, true, nil)
	store.On("UpdateTransactionStatus", "tx-1", models.TxStatusProcessing, models.TxStatusCancelled, mock.Anything).Return(nil)

	gw.On("Cancel", mock.Anything, "gw-1", "device jam").Return(context.DeadlineExceeded)

	o := newTestOrchestrator(store, gw, nil)

	result, err := o.Cancel(context.Background(), "tx-1", "device jam")
	require.NoError(t, err)
	assert.True(t, result.UpstreamFailed)
	assert.Equal(t, models.TxStatusCancelled, result.Transaction.Status)
}

func TestCancel_PendingWithoutGatewayID(t *testing.T) {
	store := new(mocks.MockLedgerStore)
	gw := new(mocks.MockGatewayClient)

	pending := &models.PixTransaction{ID: "tx-1", Status: models.TxStatusPending}
	store.On("GetTransaction", "tx-1").Return(pending, true, nil)
	store.On("UpdateTransactionStatus", "tx-1", models.TxStatusPending, models.TxStatusCancelled, mock.Anything).Return(nil)

	o := newTestOrchestrator(store, gw, nil)

	result, err := o.Cancel(context.Background(), "tx-1", "typo in amount")
	require.NoError(t, err)
	assert.False(t, result.UpstreamFailed)
	gw.AssertNotCalled(t, "Cancel", mock.Anything, mock.Anything, mock.Anything)
}

// Scenario: a failed transaction at the retry cap is not retryable.
func TestRetry_MaxRetriesRejected(t *testing.T) {
	store := new(mocks.MockLedgerStore)
	failed := &models.PixTransaction{
		ID: "tx-1", Status: models.TxStatusFailed, RetryCount: models.MaxRetries,
	}
	store.On("GetTransaction", "tx-1").Return(failed, true, nil)

	o := newTestOrchestrator(store, new(mocks.MockGatewayClient), nil)

	_, err := o.Retry(context.Background(), "tx-1")

	var trErr *TransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, CodeNotRetryable, trErr.Code)
}

func TestRetry_NonFailedRejected(t *testing.T) {
	store := new(mocks.MockLedgerStore)
	pending := &models.PixTransaction{ID: "tx-1", Status: models.TxStatusPending}
	store.On("GetTransaction", "tx-1").Return(pending, true, nil)

	o := newTestOrchestrator(store, new(mocks.MockGatewayClient), nil)

	_, err := o.Retry(context.Background(), "tx-1")

	var trErr *TransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, CodeNotRetryable, trErr.Code)
}

// A failed attempt that left a gateway id is reconciled before any
// resubmission: when the bank reports it settled, the retry settles it
// instead of paying twice.
func TestRetry_ReconciliationPreventsDoubleSubmit(t *testing.T) {
	store := new(mocks.MockLedgerStore)
	gw := new(mocks.MockGatewayClient)

	failed := &models.PixTransaction{
		ID: "tx-1", SubAccountID: "sub-1", AccountID: "acc-1",
		Amount: mustMoney(t, "10.50"), Status: models.TxStatusFailed, RetryCount: 1,
		GatewayTxID: sql.NullString{String: "gw-1", Valid: true},
	}
	completed := &models.PixTransaction{ID: "tx-1", Status: models.TxStatusCompleted}

	store.On("GetTransaction", "tx-1").Return(failed, true, nil).Once()
	store.On("UpdateTransactionStatus", "tx-1", models.TxStatusFailed, models.TxStatusProcessing, mock.Anything).Return(nil)
	store.On("GetSubAccount", "sub-1").Return(testSubAccount(t), true, nil)
	store.On("DebitAndComplete", "tx-1", "sub-1", mock.Anything, mock.Anything, "gw-1").Return(nil)
	store.On("GetTransaction", "tx-1").Return(completed, true, nil).Once()

	gw.On("CheckStatus", mock.Anything, "gw-1").Return(gateway.StatusSettled, nil)

	o := newTestOrchestrator(store, gw, nil)

	transaction, err := o.Retry(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusCompleted, transaction.Status)
	gw.AssertNotCalled(t, "SubmitPayout", mock.Anything, mock.Anything)
}

func TestRetry_PolicyRecheckedAgainstCurrentState(t *testing.T) {
	store := new(mocks.MockLedgerStore)
	failed := &models.PixTransaction{
		ID: "tx-1", SubAccountID: "sub-1", Amount: mustMoney(t, "40.00"),
		Status: models.TxStatusFailed, RetryCount: 1,
	}
	sub := testSubAccount(t)
	sub.Balance = mustMoney(t, "5.00")

	store.On("GetTransaction", "tx-1").Return(failed, true, nil)
	store.On("GetSubAccount", "sub-1").Return(sub, true, nil)

	o := newTestOrchestrator(store, new(mocks.MockGatewayClient), nil)

	_, err := o.Retry(context.Background(), "tx-1")

	var polErr *PolicyError
	require.ErrorAs(t, err, &polErr)
	assert.Equal(t, limits.DenialInsufficientBalance, polErr.Reason)
}

func TestRetry_ResubmitsAndIncrementsCount(t *testing.T) {
	store := new(mocks.MockLedgerStore)
	gw := new(mocks.MockGatewayClient)

	failed := &models.PixTransaction{
		ID: "tx-1", SubAccountID: "sub-1", AccountID: "acc-1",
		PixKey: "a@b.com", KeyType: "email",
		Amount: mustMoney(t, "10.50"), Status: models.TxStatusFailed, RetryCount: 1,
	}

	store.On("GetTransaction", "tx-1").Return(failed, true, nil)
	store.On("GetSubAccount", "sub-1").Return(testSubAccount(t), true, nil)
	store.On("UpdateTransactionStatus", "tx-1", models.TxStatusFailed, models.TxStatusPending,
		mock.MatchedBy(func(fields *repository.StatusUpdate) bool {
			return fields != nil && fields.RetryCount != nil && *fields.RetryCount == 2
		})).Return(nil)
	store.On("UpdateTransactionStatus", "tx-1", models.TxStatusPending, models.TxStatusProcessing, mock.Anything).Return(nil)
	store.On("GetAccount", "acc-1").Return(testAccount(), true, nil)
	store.On("DebitAndComplete", "tx-1", "sub-1", mock.Anything, mock.Anything, "gw-2").Return(nil)

	gw.On("SubmitPayout", mock.Anything, mock.Anything).Return(&gateway.SubmitResult{GatewayTxID: "gw-2"}, nil)

	o := newTestOrchestrator(store, gw, nil)

	transaction, err := o.Retry(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusCompleted, transaction.Status)
	assert.Equal(t, 2, transaction.RetryCount)
	store.AssertExpectations(t)
}

// Losing the conditional update once triggers a re-read and one more
// attempt; losing it when the wallet can no longer cover the amount
// leaves the row processing and reports a transient failure.
func TestCompleteWithDebit_ConflictRetriedOnce(t *testing.T) {
	store := new(mocks.MockLedgerStore)
	gw := new(mocks.MockGatewayClient)

	pending := &models.PixTransaction{
		ID: "tx-1", SubAccountID: "sub-1", AccountID: "acc-1",
		PixKey: "a@b.com", KeyType: "email",
		Amount: mustMoney(t, "10.00"), Status: models.TxStatusPending,
	}
	processing := &models.PixTransaction{
		ID: "tx-1", SubAccountID: "sub-1", Status: models.TxStatusProcessing,
	}

	first := testSubAccount(t)
	refreshed := testSubAccount(t)
	refreshed.Balance = mustMoney(t, "30.00")

	store.On("GetSubAccount", "sub-1").Return(first, true, nil).Once()
	store.On("CreateTransaction", mock.Anything).Return(pending, nil)
	store.On("UpdateTransactionStatus", "tx-1", models.TxStatusPending, models.TxStatusProcessing, mock.Anything).Return(nil)
	store.On("GetAccount", "acc-1").Return(testAccount(), true, nil)
	store.On("DebitAndComplete", "tx-1", "sub-1",
		countersMatch(t, "50.00", "0.00", 0), mock.Anything, "gw-1",
	).Return(repository.ErrConflict).Once()
	store.On("GetTransaction", "tx-1").Return(processing, true, nil)
	store.On("GetSubAccount", "sub-1").Return(refreshed, true, nil).Once()
	store.On("DebitAndComplete", "tx-1", "sub-1",
		countersMatch(t, "30.00", "0.00", 0),
		countersMatch(t, "20.00", "10.00", 1),
		"gw-1",
	).Return(nil).Once()

	gw.On("SubmitPayout", mock.Anything, mock.Anything).Return(&gateway.SubmitResult{GatewayTxID: "gw-1"}, nil)

	o := newTestOrchestrator(store, gw, nil)

	transaction, err := o.Initiate(context.Background(), &InitiateInput{
		SubAccountID: "sub-1",
		PixKey:       "a@b.com",
		Amount:       mustMoney(t, "10.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusCompleted, transaction.Status)
	store.AssertExpectations(t)
}

func TestComputeChange(t *testing.T) {
	change, err := ComputeChange(mustMoney(t, "20.00"), mustMoney(t, "12.50"))
	require.NoError(t, err)
	assert.Equal(t, "7.50", change.String())

	change, err = ComputeChange(mustMoney(t, "10.00"), mustMoney(t, "10.00"))
	require.NoError(t, err)
	assert.True(t, change.IsZero())

	_, err = ComputeChange(mustMoney(t, "9.00"), mustMoney(t, "10.00"))
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, CodeNegativeChange, valErr.Code)
}

// fakeLedger implements Store with real compare-and-swap semantics so
// two concurrent initiates can race the way they would against the
// database.
type fakeLedger struct {
	mu           sync.Mutex
	sub          *models.SubAccount
	account      *models.Account
	transactions map[string]*models.PixTransaction
	nextID       int
}

func newFakeLedger(sub *models.SubAccount, account *models.Account) *fakeLedger {
	return &fakeLedger{
		sub:          sub,
		account:      account,
		transactions: make(map[string]*models.PixTransaction),
	}
}

func (f *fakeLedger) GetAccount(id string) (*models.Account, bool, error) {
	return f.account, true, nil
}

func (f *fakeLedger) GetSubAccount(id string) (*models.SubAccount, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *f.sub
	return &copied, true, nil
}

func (f *fakeLedger) ConditionalUpdateSubAccount(id string, expected, next models.Counters, lastResetAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.sub.Balance.Equal(expected.Balance) || !f.sub.DailyUsed.Equal(expected.DailyUsed) || f.sub.DailyCount != expected.DailyCount {
		return repository.ErrConflict
	}
	f.sub.Balance = next.Balance
	f.sub.DailyUsed = next.DailyUsed
	f.sub.DailyCount = next.DailyCount
	f.sub.LastResetAt = lastResetAt
	return nil
}

func (f *fakeLedger) CreateTransaction(transaction *models.PixTransaction) (*models.PixTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	copied := *transaction
	copied.ID = fmt.Sprintf("tx-%d", f.nextID)
	copied.Status = models.TxStatusPending
	f.transactions[copied.ID] = &copied
	stored := copied
	return &stored, nil
}

func (f *fakeLedger) GetTransaction(id string) (*models.PixTransaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	transaction, ok := f.transactions[id]
	if !ok {
		return nil, false, nil
	}
	copied := *transaction
	return &copied, true, nil
}

func (f *fakeLedger) UpdateTransactionStatus(id, fromStatus, toStatus string, fields *repository.StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	transaction, ok := f.transactions[id]
	if !ok || transaction.Status != fromStatus {
		return repository.ErrConflict
	}
	transaction.Status = toStatus
	if fields != nil && fields.RetryCount != nil {
		transaction.RetryCount = *fields.RetryCount
	}
	return nil
}

func (f *fakeLedger) DebitAndComplete(id, subAccountID string, expected, next models.Counters, gatewayTxID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	transaction, ok := f.transactions[id]
	if !ok || transaction.Status != models.TxStatusProcessing {
		return repository.ErrConflict
	}
	if !f.sub.Balance.Equal(expected.Balance) || !f.sub.DailyUsed.Equal(expected.DailyUsed) || f.sub.DailyCount != expected.DailyCount {
		return repository.ErrConflict
	}
	f.sub.Balance = next.Balance
	f.sub.DailyUsed = next.DailyUsed
	f.sub.DailyCount = next.DailyCount
	transaction.Status = models.TxStatusCompleted
	transaction.GatewayTxID = sql.NullString{String: gatewayTxID, Valid: true}
	transaction.DebitedAt = sql.NullTime{Time: time.Now(), Valid: true}
	return nil
}

// Scenario: two concurrent 40.00 payouts against a 50.00 wallet.
// Exactly one debits; the balance never goes negative.
func TestInitiate_ConcurrentDebitsNeverOvershoot(t *testing.T) {
	sub := testSubAccount(t)
	ledger := newFakeLedger(sub, testAccount())

	gw := new(mocks.MockGatewayClient)
	gw.On("SubmitPayout", mock.Anything, mock.Anything).Return(&gateway.SubmitResult{GatewayTxID: "gw-any"}, nil)

	o := newTestOrchestrator(ledger, gw, nil)

	var wg sync.WaitGroup
	results := make([]*models.PixTransaction, 2)
	errs := make([]error, 2)

	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = o.Initiate(context.Background(), &InitiateInput{
				SubAccountID: "sub-1",
				PixKey:       "a@b.com",
				Amount:       mustMoney(t, "40.00"),
			})
		}()
	}
	wg.Wait()

	completedCount := 0
	for i := range 2 {
		if errs[i] == nil && results[i] != nil && results[i].Status == models.TxStatusCompleted {
			completedCount++
		}
	}

	assert.LessOrEqual(t, completedCount, 1, "at most one payout may debit")
	assert.False(t, ledger.sub.Balance.IsNegative(), "balance must never go negative")

	if completedCount == 1 {
		assert.Equal(t, "10.00", ledger.sub.Balance.String())
	} else {
		assert.Equal(t, "50.00", ledger.sub.Balance.String())
	}
}
