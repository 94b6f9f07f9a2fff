package models

import (
	"time"
)

type InvoiceStatus string

const (
	InvoiceDraft  InvoiceStatus = "DRAFT"
	InvoicePosted InvoiceStatus = "POSTED"
	InvoicePaid   InvoiceStatus = "PAID"
)

// Invoice moves DRAFT -> POSTED -> PAID and never backwards. Line items are
// mutable only while DRAFT. TransactionID and ARAccountID are set at
// approval and identify the journal transaction and receivable account the
// invoice was posted against.
type Invoice struct {
	ID            int64         `json:"id" db:"id"`
	CompanyID     int64         `json:"companyId" db:"company_id"`
	CustomerID    int64         `json:"customerId" db:"customer_id"`
	InvoiceNumber string        `json:"invoiceNumber" db:"invoice_number"`
	Date          time.Time     `json:"date" db:"date"`
	DueDate       time.Time     `json:"dueDate" db:"due_date"`
	Currency      string        `json:"currency" db:"currency"`
	Status        InvoiceStatus `json:"status" db:"status"`
	TotalAmount   int64         `json:"totalAmount" db:"total_amount"` // in cents
	TransactionID *int64        `json:"transactionId,omitempty" db:"transaction_id"`
	ARAccountID   *int64        `json:"arAccountId,omitempty" db:"ar_account_id"`
	Items         []LineItem    `json:"items"`
	CreatedAt     time.Time     `json:"createdAt" db:"created_at"`
}

// LineItem belongs to exactly one invoice. Amount = Quantity * UnitPrice,
// computed server-side.
type LineItem struct {
	ID               int64  `json:"id" db:"id"`
	InvoiceID        int64  `json:"invoiceId" db:"invoice_id"`
	Description      string `json:"description" db:"description"`
	Quantity         int64  `json:"quantity" db:"quantity"`
	UnitPrice        int64  `json:"unitPrice" db:"unit_price"` // in cents
	Amount           int64  `json:"amount" db:"amount"`
	RevenueAccountID int64  `json:"revenueAccountId" db:"revenue_account_id"`
	ProductID        *int64 `json:"productId,omitempty" db:"product_id"`
}
