package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/trocopix/trocopix/internal/models"

	"github.com/jmoiron/sqlx"
)

type AccountRepository interface {
	Insert(account *models.Account, tx *sqlx.Tx) (string, error)
	GetOne(id string) (*models.Account, bool, error)
	GetByEmail(email string) (*models.Account, bool, error)
	GetByDeviceKey(deviceKey string) (*models.Account, bool, error)
	Deactivate(id string) error
}

type AccountRepositoryImpl struct {
	db *sqlx.DB
}

func NewAccountRepository(db *sqlx.DB) AccountRepository {
	return &AccountRepositoryImpl{db: db}
}

func (repo *AccountRepositoryImpl) Insert(account *models.Account, tx *sqlx.Tx) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var id string

	query := `
		INSERT INTO accounts (business_name, tax_id, email, phone, hashed_password)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if tx != nil {
		err := tx.QueryRowContext(ctx, query,
			account.BusinessName,
			account.TaxID,
			account.Email,
			account.Phone,
			account.HashedPassword,
		).Scan(&id)
		if err != nil {
			return "", err
		}
	} else {
		err := repo.db.GetContext(ctx, &id, query,
			account.BusinessName,
			account.TaxID,
			account.Email,
			account.Phone,
			account.HashedPassword,
		)
		if err != nil {
			return "", err
		}
	}

	return id, nil
}

func (repo *AccountRepositoryImpl) GetOne(id string) (*models.Account, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var account models.Account

	query := `
        SELECT id, business_name, tax_id, email, phone, hashed_password, device_key, status, created_at, updated_at, deactivated_at
        FROM accounts WHERE id=$1`

	err := repo.db.GetContext(ctx, &account, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &account, true, nil
}

func (repo *AccountRepositoryImpl) GetByEmail(email string) (*models.Account, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var account models.Account

	query := `
        SELECT id, business_name, tax_id, email, phone, hashed_password, device_key, status, created_at, updated_at, deactivated_at
        FROM accounts WHERE email=$1`

	err := repo.db.GetContext(ctx, &account, query, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &account, true, nil
}

func (repo *AccountRepositoryImpl) GetByDeviceKey(deviceKey string) (*models.Account, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var account models.Account

	query := `
        SELECT id, business_name, tax_id, email, phone, hashed_password, device_key, status, created_at, updated_at, deactivated_at
        FROM accounts WHERE device_key=$1 AND status=$2`

	err := repo.db.GetContext(ctx, &account, query, deviceKey, models.AccountActiveStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &account, true, nil
}

func (repo *AccountRepositoryImpl) Deactivate(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	query := `
		UPDATE accounts SET status=$1, deactivated_at=NOW(), updated_at=NOW() WHERE id=$2`

	_, err := repo.db.ExecContext(ctx, query, models.AccountInactiveStatus, id)
	return err
}
