package models

import (
	"time"
)

type AccountType string

const (
	AccountAsset     AccountType = "ASSET"
	AccountLiability AccountType = "LIABILITY"
	AccountEquity    AccountType = "EQUITY"
	AccountRevenue   AccountType = "REVENUE"
	AccountExpense   AccountType = "EXPENSE"
)

// Account is a ledger account in a company's chart of accounts. Accounts are
// never deleted once referenced by an entry; Active soft-disables them for
// new postings.
type Account struct {
	ID        int64       `json:"id" db:"id"`
	CompanyID int64       `json:"companyId" db:"company_id"`
	Name      string      `json:"name" db:"name"`
	Type      AccountType `json:"type" db:"type"`
	Active    bool        `json:"active" db:"active"`
	CreatedAt time.Time   `json:"createdAt" db:"created_at"`
}
