package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/trocopix/trocopix/internal/models"

	"github.com/jmoiron/sqlx"
)

// StatusUpdate carries the optional fields written alongside a status
// transition. Invalid (null) members leave the column untouched.
type StatusUpdate struct {
	GatewayTxID sql.NullString
	LastError   sql.NullString
	DebitedAt   sql.NullTime
	ProcessedAt sql.NullTime
	RetryCount  *int
}

type TransactionRepository interface {
	Insert(transaction *models.PixTransaction) (*models.PixTransaction, error)
	GetOne(id string) (*models.PixTransaction, bool, error)
	ListBySubAccount(subAccountID string) ([]models.PixTransaction, error)
	ListStuckProcessing(olderThan time.Time) ([]models.PixTransaction, error)
	UpdateStatus(id, fromStatus, toStatus string, fields *StatusUpdate) error
	DebitAndComplete(id string, subAccountID string, expected models.Counters, next models.Counters, gatewayTxID string) error
}

type TransactionRepositoryImpl struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) TransactionRepository {
	return &TransactionRepositoryImpl{db: db}
}

const transactionColumns = `
	id, sub_account_id, account_id, pix_key, key_type, amount, status,
	gateway_tx_id, last_error, retry_count, source, description, debited_at,
	created_at, processed_at`

func (repo *TransactionRepositoryImpl) Insert(transaction *models.PixTransaction) (*models.PixTransaction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var created models.PixTransaction

	query := `
		INSERT INTO pix_transactions (sub_account_id, account_id, pix_key, key_type, amount, source, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + transactionColumns

	err := repo.db.GetContext(ctx, &created, query,
		transaction.SubAccountID,
		transaction.AccountID,
		transaction.PixKey,
		transaction.KeyType,
		transaction.Amount,
		transaction.Source,
		transaction.Description,
	)
	if err != nil {
		return nil, err
	}

	return &created, nil
}

func (repo *TransactionRepositoryImpl) GetOne(id string) (*models.PixTransaction, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var transaction models.PixTransaction

	query := `SELECT ` + transactionColumns + ` FROM pix_transactions WHERE id=$1`

	err := repo.db.GetContext(ctx, &transaction, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &transaction, true, nil
}

func (repo *TransactionRepositoryImpl) ListBySubAccount(subAccountID string) ([]models.PixTransaction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var transactions []models.PixTransaction

	query := `SELECT ` + transactionColumns + ` FROM pix_transactions WHERE sub_account_id=$1 ORDER BY created_at DESC`

	err := repo.db.SelectContext(ctx, &transactions, query, subAccountID)
	if err != nil {
		return nil, err
	}

	return transactions, nil
}

// ListStuckProcessing returns processing rows older than the cutoff,
// candidates for gateway reconciliation.
func (repo *TransactionRepositoryImpl) ListStuckProcessing(olderThan time.Time) ([]models.PixTransaction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var transactions []models.PixTransaction

	query := `SELECT ` + transactionColumns + `
		FROM pix_transactions
		WHERE status=$1 AND gateway_tx_id IS NOT NULL AND created_at < $2`

	err := repo.db.SelectContext(ctx, &transactions, query, models.TxStatusProcessing, olderThan)
	if err != nil {
		return nil, err
	}

	return transactions, nil
}

// UpdateStatus moves a transaction from one status to another. The
// fromStatus predicate is part of the WHERE clause, so a stale caller
// whose snapshot no longer matches gets ErrConflict instead of blindly
// overwriting a newer state.
func (repo *TransactionRepositoryImpl) UpdateStatus(id, fromStatus, toStatus string, fields *StatusUpdate) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if fields == nil {
		fields = &StatusUpdate{}
	}

	query := `
		UPDATE pix_transactions
		SET status=$1,
			gateway_tx_id=COALESCE($2, gateway_tx_id),
			last_error=COALESCE($3, last_error),
			debited_at=COALESCE($4, debited_at),
			processed_at=COALESCE($5, processed_at),
			retry_count=COALESCE($6, retry_count)
		WHERE id=$7 AND status=$8`

	result, err := repo.db.ExecContext(ctx, query,
		toStatus,
		fields.GatewayTxID,
		fields.LastError,
		fields.DebitedAt,
		fields.ProcessedAt,
		fields.RetryCount,
		id,
		fromStatus,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrConflict
	}

	return nil
}

// DebitAndComplete applies the wallet debit and the completed mark as
// one database transaction. Either both rows move or neither does, so a
// crash between the two writes cannot leave a debit without a completed
// transaction or the reverse.
func (repo *TransactionRepositoryImpl) DebitAndComplete(id string, subAccountID string, expected models.Counters, next models.Counters, gatewayTxID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		UPDATE sub_accounts
		SET balance=$1, daily_used=$2, daily_count=$3, updated_at=NOW()
		WHERE id=$4 AND balance=$5 AND daily_used=$6 AND daily_count=$7`

	result, err := tx.ExecContext(ctx, query,
		next.Balance,
		next.DailyUsed,
		next.DailyCount,
		subAccountID,
		expected.Balance,
		expected.DailyUsed,
		expected.DailyCount,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrConflict
	}

	query = `
		UPDATE pix_transactions
		SET status=$1, gateway_tx_id=$2, debited_at=NOW(), processed_at=NOW(), last_error=NULL
		WHERE id=$3 AND status=$4`

	result, err = tx.ExecContext(ctx, query,
		models.TxStatusCompleted,
		gatewayTxID,
		id,
		models.TxStatusProcessing,
	)
	if err != nil {
		return err
	}

	rows, err = result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrConflict
	}

	return tx.Commit()
}
