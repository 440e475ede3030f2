package payout

import (
	"time"

	"github.com/trocopix/trocopix/internal/models"
	"github.com/trocopix/trocopix/internal/repository"
)

// Store is the slice of the ledger store the orchestrator drives. The
// conditional methods return repository.ErrConflict when the row moved
// underneath the caller's snapshot.
type Store interface {
	GetAccount(id string) (*models.Account, bool, error)
	GetSubAccount(id string) (*models.SubAccount, bool, error)
	ConditionalUpdateSubAccount(id string, expected, next models.Counters, lastResetAt time.Time) error

	CreateTransaction(transaction *models.PixTransaction) (*models.PixTransaction, error)
	GetTransaction(id string) (*models.PixTransaction, bool, error)
	UpdateTransactionStatus(id, fromStatus, toStatus string, fields *repository.StatusUpdate) error
	DebitAndComplete(id, subAccountID string, expected, next models.Counters, gatewayTxID string) error
}

type ledgerStore struct {
	db repository.Database
}

// NewStore adapts the repository layer to the orchestrator's contract.
func NewStore(db repository.Database) Store {
	return &ledgerStore{db: db}
}

func (s *ledgerStore) GetAccount(id string) (*models.Account, bool, error) {
	return s.db.Account().GetOne(id)
}

func (s *ledgerStore) GetSubAccount(id string) (*models.SubAccount, bool, error) {
	return s.db.SubAccount().GetOne(id)
}

func (s *ledgerStore) ConditionalUpdateSubAccount(id string, expected, next models.Counters, lastResetAt time.Time) error {
	return s.db.SubAccount().ConditionalUpdate(id, expected, next, lastResetAt)
}

func (s *ledgerStore) CreateTransaction(transaction *models.PixTransaction) (*models.PixTransaction, error) {
	return s.db.Transaction().Insert(transaction)
}

func (s *ledgerStore) GetTransaction(id string) (*models.PixTransaction, bool, error) {
	return s.db.Transaction().GetOne(id)
}

func (s *ledgerStore) UpdateTransactionStatus(id, fromStatus, toStatus string, fields *repository.StatusUpdate) error {
	return s.db.Transaction().UpdateStatus(id, fromStatus, toStatus, fields)
}

func (s *ledgerStore) DebitAndComplete(id, subAccountID string, expected, next models.Counters, gatewayTxID string) error {
	return s.db.Transaction().DebitAndComplete(id, subAccountID, expected, next, gatewayTxID)
}
