package services

import (
	"database/sql"
	"fmt"
	"net/http"
	"strings"

	"github.com/balancesheet/backend/internal/models"
	"github.com/google/uuid"
)

// PaymentService records customer payments against POSTED invoices. Every
// payment posts its own ledger transaction (debit cash, credit A/R); the
// invoice flips to PAID when the sum of payments reaches the total.
type PaymentService struct {
	db        *sql.DB
	ledger    *LedgerService
	validator *ValidationHelper
	audit     *AuditLogger
}

func NewPaymentService(db *sql.DB, ledger *LedgerService) *PaymentService {
	return &PaymentService{
		db:        db,
		ledger:    ledger,
		validator: NewValidationHelper(),
		audit:     NewAuditLogger(),
	}
}

// RecordPayment records a payment against a POSTED invoice
// @Summary Record a payment
// @Description Post a cash receipt (debit the cash account, credit the invoice's A/R account) and mark the invoice PAID once fully settled
// @Tags payments
// @Accept json
// @Produce json
// @Param payment body object{invoiceId=int,amount=int,cashAccountId=int,paymentDate=string,paymentMethod=string,reference=string} true "Payment data"
// @Success 201 {object} models.Payment
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /payments [post]
func (ps *PaymentService) RecordPayment(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	var req struct {
		InvoiceID     int64  `json:"invoiceId" validate:"required"`
		Amount        int64  `json:"amount" validate:"required,gt=0"`
		CashAccountID int64  `json:"cashAccountId" validate:"required"`
		PaymentDate   string `json:"paymentDate" validate:"required"`
		PaymentMethod string `json:"paymentMethod" validate:"required"`
		Reference     string `json:"reference"`
	}
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := ps.validator.ValidateStruct(&req); err != nil {
		WriteError(w, err)
		return
	}

	paymentDate, err := parseDate(req.PaymentDate)
	if err != nil {
		WriteError(w, NewValidationError("invalid payment date %q, expected YYYY-MM-DD", req.PaymentDate))
		return
	}

	if err := accountsBelongToCompany(ps.db, companyID, req.CashAccountID); err != nil {
		WriteError(w, err)
		return
	}

	reference := req.Reference
	if reference == "" {
		reference = "PAY-" + strings.ToUpper(uuid.NewString()[:8])
	}

	dbTx, err := ps.db.Begin()
	if err != nil {
		WriteError(w, storeError(err))
		return
	}
	defer dbTx.Rollback()

	invoice, err := lockInvoiceTx(dbTx, req.InvoiceID, companyID)
	if err != nil {
		WriteError(w, err)
		return
	}
	if invoice.Status == models.InvoiceDraft {
		WriteError(w, NewStateError("invoice %s is DRAFT, approve it before recording payments", invoice.InvoiceNumber))
		return
	}

	var paid int64
	err = dbTx.QueryRow(`
		SELECT COALESCE(SUM(amount), 0) FROM payments WHERE invoice_id = $1`,
		invoice.ID,
	).Scan(&paid)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}
	outstanding := invoice.TotalAmount - paid
	if req.Amount > outstanding {
		WriteError(w, NewValidationError("payment of %d exceeds the outstanding balance of %d", req.Amount, outstanding))
		return
	}

	if invoice.ARAccountID == nil {
		// A POSTED invoice always records its receivable account at
		// approval time; a missing one means the row was tampered with.
		WriteError(w, &DataIntegrityError{Message: fmt.Sprintf("invoice %s is %s but has no receivable account", invoice.InvoiceNumber, invoice.Status)})
		return
	}

	description := fmt.Sprintf("Payment for Invoice #%s - Ref: %s", invoice.InvoiceNumber, reference)
	entries := []models.Entry{
		{AccountID: req.CashAccountID, Amount: req.Amount},
		{AccountID: *invoice.ARAccountID, Amount: -req.Amount},
	}
	tx, err := ps.ledger.PostEntriesTx(dbTx, companyID, description, paymentDate, invoice.Currency, entries)
	if err != nil {
		ps.audit.LogError(companyID, "PAYMENT", err)
		WriteError(w, err)
		return
	}

	payment := models.Payment{
		CompanyID:     companyID,
		InvoiceID:     invoice.ID,
		Amount:        req.Amount,
		CashAccountID: req.CashAccountID,
		PaymentDate:   paymentDate,
		Method:        req.PaymentMethod,
		Reference:     reference,
		TransactionID: tx.ID,
	}
	err = dbTx.QueryRow(`
		INSERT INTO payments (company_id, invoice_id, amount, cash_account_id, payment_date, method, reference, transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		companyID, invoice.ID, req.Amount, req.CashAccountID, paymentDate, req.PaymentMethod, reference, tx.ID,
	).Scan(&payment.ID, &payment.CreatedAt)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}

	if paid+req.Amount == invoice.TotalAmount {
		_, err := dbTx.Exec(`
			UPDATE invoices SET status = 'PAID' WHERE id = $1 AND status = 'POSTED'`,
			invoice.ID)
		if err != nil {
			WriteError(w, storeError(err))
			return
		}
	}

	if err := dbTx.Commit(); err != nil {
		WriteError(w, storeError(err))
		return
	}

	ps.audit.LogPosting(companyID, tx.ID, "PAYMENT", description, req.Amount)

	WriteJSON(w, http.StatusCreated, payment)
}

// ListPayments lists the company's payments
// @Summary List payments
// @Tags payments
// @Produce json
// @Success 200 {array} models.Payment
// @Router /payments [get]
func (ps *PaymentService) ListPayments(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	rows, err := ps.db.Query(`
		SELECT id, company_id, invoice_id, amount, cash_account_id, payment_date, method, reference, transaction_id, created_at
		FROM payments
		WHERE company_id = $1
		ORDER BY payment_date DESC, id DESC`,
		companyID)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}
	defer rows.Close()

	payments := []models.Payment{}
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.InvoiceID, &p.Amount, &p.CashAccountID, &p.PaymentDate, &p.Method, &p.Reference, &p.TransactionID, &p.CreatedAt); err != nil {
			WriteError(w, storeError(err))
			return
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		WriteError(w, storeError(err))
		return
	}

	WriteJSON(w, http.StatusOK, payments)
}
