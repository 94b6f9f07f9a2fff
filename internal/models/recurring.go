package models

import (
	"time"
)

// RecurringItem describes a monthly automated posting (payroll, rent,
// maintenance). Each firing produces exactly one transaction per calendar
// month, claimed through the recurring_runs (item, period) unique constraint.
type RecurringItem struct {
	ID              int64      `json:"id" db:"id"`
	CompanyID       int64      `json:"companyId" db:"company_id"`
	Name            string     `json:"name" db:"name"`
	Description     string     `json:"description" db:"description"`
	Category        string     `json:"category" db:"category"` // "TEAM", "BUILDING", "MACHINE"
	Amount          int64      `json:"amount" db:"amount"`     // in cents
	DayOfMonth      int        `json:"dayOfMonth" db:"day_of_month"`
	DebitAccountID  int64      `json:"debitAccountId" db:"debit_account_id"`
	CreditAccountID int64      `json:"creditAccountId" db:"credit_account_id"`
	StartDate       *time.Time `json:"startDate,omitempty" db:"start_date"`
	EndDate         *time.Time `json:"endDate,omitempty" db:"end_date"`
	Active          bool       `json:"active" db:"active"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
}
