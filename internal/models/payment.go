package models

import (
	"time"
)

// Payment settles part or all of a POSTED invoice. Each payment posts its own
// two-entry transaction (debit cash, credit A/R) and is immutable once
// created.
type Payment struct {
	ID            int64     `json:"id" db:"id"`
	CompanyID     int64     `json:"companyId" db:"company_id"`
	InvoiceID     int64     `json:"invoiceId" db:"invoice_id"`
	Amount        int64     `json:"amount" db:"amount"` // in cents
	CashAccountID int64     `json:"cashAccountId" db:"cash_account_id"`
	PaymentDate   time.Time `json:"paymentDate" db:"payment_date"`
	Method        string    `json:"paymentMethod" db:"method"`
	Reference     string    `json:"reference,omitempty" db:"reference"`
	TransactionID int64     `json:"transactionId" db:"transaction_id"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}
