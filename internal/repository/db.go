package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/trocopix/trocopix/assets"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/lib/pq"
)

const defaultTimeout = 3 * time.Second

// ErrConflict is returned when a conditional update loses an optimistic
// race: the row's counters or status changed between read and write.
var ErrConflict = errors.New("conditional update conflict")

// Database is the ledger store: every persistence concern the core
// touches goes through one of these repositories.
type Database interface {
	Account() AccountRepository
	SubAccount() SubAccountRepository
	Transaction() TransactionRepository
	AccountLog() AccountLogRepository

	Close() error
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type DatabaseImpl struct {
	db              *sqlx.DB
	accountRepo     AccountRepository
	subAccountRepo  SubAccountRepository
	transactionRepo TransactionRepository
	accountLogRepo  AccountLogRepository

	mu sync.Mutex
}

// New initializes a database connection and runs migrations if enabled
func New(dsn string, automigrate bool) (Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", "postgres://"+dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(2 * time.Hour)

	if automigrate {
		iofsDriver, err := iofs.New(assets.EmbeddedFiles, "migrations")
		if err != nil {
			return nil, err
		}

		migrator, err := migrate.NewWithSourceInstance("iofs", iofsDriver, "postgres://"+dsn)
		if err != nil {
			return nil, err
		}

		if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return nil, err
		}
	}

	return &DatabaseImpl{db: db}, nil
}

func (d *DatabaseImpl) Close() error {
	return d.db.Close()
}

func (d *DatabaseImpl) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return d.db.BeginTxx(ctx, opts)
}

func (d *DatabaseImpl) Account() AccountRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.accountRepo == nil {
		d.accountRepo = NewAccountRepository(d.db)
	}
	return d.accountRepo
}

func (d *DatabaseImpl) SubAccount() SubAccountRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.subAccountRepo == nil {
		d.subAccountRepo = NewSubAccountRepository(d.db)
	}
	return d.subAccountRepo
}

func (d *DatabaseImpl) Transaction() TransactionRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.transactionRepo == nil {
		d.transactionRepo = NewTransactionRepository(d.db)
	}
	return d.transactionRepo
}

func (d *DatabaseImpl) AccountLog() AccountLogRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.accountLogRepo == nil {
		d.accountLogRepo = NewAccountLogRepository(d.db)
	}
	return d.accountLogRepo
}
