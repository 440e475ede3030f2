package mocks

import (
	"time"

	"github.com/trocopix/trocopix/internal/models"
	"github.com/trocopix/trocopix/internal/repository"

	"github.com/stretchr/testify/mock"
)

type MockLedgerStore struct {
	mock.Mock
}

func (m *MockLedgerStore) GetAccount(id string) (*models.Account, bool, error) {
	args := m.Called(id)
	account, _ := args.Get(0).(*models.Account)
	return account, args.Bool(1), args.Error(2)
}

func (m *MockLedgerStore) GetSubAccount(id string) (*models.SubAccount, bool, error) {
	args := m.Called(id)
	sub, _ := args.Get(0).(*models.SubAccount)
	return sub, args.Bool(1), args.Error(2)
}

func (m *MockLedgerStore) ConditionalUpdateSubAccount(id string, expected, next models.Counters, lastResetAt time.Time) error {
	args := m.Called(id, expected, next, lastResetAt)
	return args.Error(0)
}

func (m *MockLedgerStore) CreateTransaction(transaction *models.PixTransaction) (*models.PixTransaction, error) {
	args := m.Called(transaction)
	created, _ := args.Get(0).(*models.PixTransaction)
	return created, args.Error(1)
}

func (m *MockLedgerStore) GetTransaction(id string) (*models.PixTransaction, bool, error) {
	args := m.Called(id)
	transaction, _ := args.Get(0).(*models.PixTransaction)
	return transaction, args.Bool(1), args.Error(2)
}

func (m *MockLedgerStore) UpdateTransactionStatus(id, fromStatus, toStatus string, fields *repository.StatusUpdate) error {
	args := m.Called(id, fromStatus, toStatus, fields)
	return args.Error(0)
}

func (m *MockLedgerStore) DebitAndComplete(id, subAccountID string, expected, next models.Counters, gatewayTxID string) error {
	args := m.Called(id, subAccountID, expected, next, gatewayTxID)
	return args.Error(0)
}
