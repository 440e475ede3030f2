package repository

import (
	"context"

	"github.com/trocopix/trocopix/internal/models"

	"github.com/jmoiron/sqlx"
)

type AccountLogRepository interface {
	Insert(log *models.AccountLog) (*models.AccountLog, error)
	ListByAccount(accountID string) ([]models.AccountLog, error)
}

type AccountLogRepositoryImpl struct {
	db *sqlx.DB
}

func NewAccountLogRepository(db *sqlx.DB) AccountLogRepository {
	return &AccountLogRepositoryImpl{db: db}
}

func (repo *AccountLogRepositoryImpl) Insert(log *models.AccountLog) (*models.AccountLog, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var created models.AccountLog

	query := `
		INSERT INTO account_logs (account_id, entity, entity_id, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id, account_id, entity, entity_id, description, created_at`

	err := repo.db.GetContext(ctx, &created, query,
		log.AccountID,
		log.Entity,
		log.EntityID,
		log.Description,
	)
	if err != nil {
		return nil, err
	}

	return &created, nil
}

func (repo *AccountLogRepositoryImpl) ListByAccount(accountID string) ([]models.AccountLog, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var logs []models.AccountLog

	query := `
		SELECT id, account_id, entity, entity_id, description, created_at
		FROM account_logs WHERE account_id=$1 ORDER BY created_at DESC`

	err := repo.db.SelectContext(ctx, &logs, query, accountID)
	if err != nil {
		return nil, err
	}

	return logs, nil
}
