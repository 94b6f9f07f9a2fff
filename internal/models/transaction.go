package models

import (
	"time"
)

// Transaction is an immutable, balanced group of journal entries recorded on
// one date. Corrections are new offsetting transactions, never edits.
type Transaction struct {
	ID          int64     `json:"id" db:"id"`
	CompanyID   int64     `json:"companyId" db:"company_id"`
	Description string    `json:"description" db:"description"`
	Date        time.Time `json:"date" db:"date"`
	Currency    string    `json:"currency" db:"currency"`
	Entries     []Entry   `json:"entries"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// Entry is one signed line of a transaction, in minor currency units (cents).
// Positive = debit, negative = credit. The sum of a transaction's entries is
// always zero.
type Entry struct {
	ID            int64 `json:"id" db:"id"`
	TransactionID int64 `json:"transactionId" db:"transaction_id"`
	AccountID     int64 `json:"accountId" db:"account_id"`
	Amount        int64 `json:"amount" db:"amount"` // in cents
}

// LedgerLine is an entry annotated with its parent transaction's date and
// description, as shown on the general ledger report.
type LedgerLine struct {
	EntryID       int64     `json:"entryId" db:"entry_id"`
	TransactionID int64     `json:"transactionId" db:"transaction_id"`
	AccountID     int64     `json:"accountId" db:"account_id"`
	Amount        int64     `json:"amount" db:"amount"`
	Date          time.Time `json:"date" db:"date"`
	Description   string    `json:"description" db:"description"`
}
