package models

import (
	"database/sql"
	"time"
)

const (
	AccountActiveStatus   = "active"
	AccountInactiveStatus = "inactive"
)

// Account is a merchant tenant. It owns exactly one SubAccount and is
// deactivated, never hard-deleted.
type Account struct {
	ID             string       `db:"id"`
	BusinessName   string       `db:"business_name"`
	TaxID          string       `db:"tax_id"`
	Email          string       `db:"email"`
	Phone          sql.NullString `db:"phone"`
	HashedPassword string       `db:"hashed_password"`
	DeviceKey      string       `db:"device_key"`
	Status         string       `db:"status"`
	CreatedAt      time.Time    `db:"created_at"`
	UpdatedAt      sql.NullTime `db:"updated_at"`
	DeactivatedAt  sql.NullTime `db:"deactivated_at"`
}
