package models

import (
	"time"
)

// Company is the tenant boundary: every account, transaction and invoice
// belongs to exactly one company. The currency is a display tag (ISO 4217);
// changing it never converts historical amounts.
type Company struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Currency  string    `json:"currency" db:"currency"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
