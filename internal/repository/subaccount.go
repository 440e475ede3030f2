package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/trocopix/trocopix/internal/models"
	"github.com/trocopix/trocopix/internal/money"

	"github.com/jmoiron/sqlx"
)

type SubAccountRepository interface {
	Insert(sub *models.SubAccount, tx *sqlx.Tx) (string, error)
	GetOne(id string) (*models.SubAccount, bool, error)
	GetByAccount(accountID string) (*models.SubAccount, bool, error)
	ConditionalUpdate(id string, expected, next models.Counters, lastResetAt time.Time) error
	Credit(id string, amount money.Money) (bool, error)
	UpdateLimits(id string, maxPerTransaction, dailyLimit money.Money) error
}

type SubAccountRepositoryImpl struct {
	db *sqlx.DB
}

func NewSubAccountRepository(db *sqlx.DB) SubAccountRepository {
	return &SubAccountRepositoryImpl{db: db}
}

func (repo *SubAccountRepositoryImpl) Insert(sub *models.SubAccount, tx *sqlx.Tx) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var id string

	query := `
		INSERT INTO sub_accounts (account_id)
		VALUES ($1)
		RETURNING id`
	if tx != nil {
		err := tx.QueryRowContext(ctx, query, sub.AccountID).Scan(&id)
		if err != nil {
			return "", err
		}
	} else {
		err := repo.db.GetContext(ctx, &id, query, sub.AccountID)
		if err != nil {
			return "", err
		}
	}

	return id, nil
}

const subAccountColumns = `
	id, account_id, balance, max_per_transaction, daily_limit, daily_used,
	daily_count, status, last_reset_at, created_at, updated_at`

func (repo *SubAccountRepositoryImpl) GetOne(id string) (*models.SubAccount, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var sub models.SubAccount

	query := `SELECT ` + subAccountColumns + ` FROM sub_accounts WHERE id=$1`

	err := repo.db.GetContext(ctx, &sub, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &sub, true, nil
}

func (repo *SubAccountRepositoryImpl) GetByAccount(accountID string) (*models.SubAccount, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var sub models.SubAccount

	query := `SELECT ` + subAccountColumns + ` FROM sub_accounts WHERE account_id=$1`

	err := repo.db.GetContext(ctx, &sub, query, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &sub, true, nil
}

// ConditionalUpdate writes new wallet counters only when the row still
// holds the counters the caller read. A mismatch means another request
// debited or credited the wallet in the meantime, and ErrConflict is
// returned so the caller can re-read and re-check its limits.
func (repo *SubAccountRepositoryImpl) ConditionalUpdate(id string, expected, next models.Counters, lastResetAt time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
		UPDATE sub_accounts
		SET balance=$1, daily_used=$2, daily_count=$3, last_reset_at=$4, updated_at=NOW()
		WHERE id=$5 AND balance=$6 AND daily_used=$7 AND daily_count=$8`

	result, err := repo.db.ExecContext(ctx, query,
		next.Balance,
		next.DailyUsed,
		next.DailyCount,
		lastResetAt,
		id,
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

	return nil
}

// Credit tops up the wallet balance under a row lock.
func (repo *SubAccountRepositoryImpl) Credit(id string, amount money.Money) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var sub models.SubAccount

	query := `
		SELECT id, balance FROM sub_accounts WHERE id=$1 FOR UPDATE`

	err = tx.GetContext(ctx, &sub, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	query = `
		UPDATE sub_accounts SET balance=balance+$1, updated_at=NOW() WHERE id=$2`

	_, err = tx.ExecContext(ctx, query, amount, id)
	if err != nil {
		return false, err
	}

	err = tx.Commit()
	if err != nil {
		return false, err
	}

	return true, nil
}

func (repo *SubAccountRepositoryImpl) UpdateLimits(id string, maxPerTransaction, dailyLimit money.Money) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
		UPDATE sub_accounts SET max_per_transaction=$1, daily_limit=$2, updated_at=NOW() WHERE id=$3`

	_, err := repo.db.ExecContext(ctx, query, maxPerTransaction, dailyLimit, id)
	return err
}
