package services

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/balancesheet/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// InvoiceService owns the invoice state machine:
// DRAFT -> POSTED -> PAID, never backwards. Drafts are freely editable and
// have no ledger impact; approval posts the journal transaction atomically
// with the status flip.
type InvoiceService struct {
	db        *sql.DB
	ledger    *LedgerService
	validator *ValidationHelper
	audit     *AuditLogger
}

func NewInvoiceService(db *sql.DB, ledger *LedgerService) *InvoiceService {
	return &InvoiceService{
		db:        db,
		ledger:    ledger,
		validator: NewValidationHelper(),
		audit:     NewAuditLogger(),
	}
}

type invoiceItemRequest struct {
	Description      string `json:"description" validate:"required"`
	Quantity         int64  `json:"quantity" validate:"required,gt=0"`
	UnitPrice        int64  `json:"unitPrice" validate:"gte=0"`
	RevenueAccountID int64  `json:"revenueAccountId"`
	ProductID        *int64 `json:"productId,omitempty"`
}

type invoiceRequest struct {
	CustomerID    int64                `json:"customerId" validate:"required"`
	InvoiceNumber string               `json:"invoiceNumber"`
	Date          string               `json:"date" validate:"required"`
	DueDate       string               `json:"dueDate" validate:"required"`
	Currency      string               `json:"currency" validate:"omitempty,len=3"`
	Items         []invoiceItemRequest `json:"items" validate:"dive"`
}

// CreateInvoice creates a DRAFT invoice
// @Summary Create a draft invoice
// @Description Create an invoice in DRAFT status; totals are computed server-side
// @Tags invoices
// @Accept json
// @Produce json
// @Param invoice body invoiceRequest true "Invoice data"
// @Success 201 {object} models.Invoice
// @Failure 400 {object} ErrorResponse
// @Router /invoices [post]
func (is *InvoiceService) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	req, date, dueDate, err := is.decodeInvoice(w, r)
	if err != nil {
		WriteError(w, err)
		return
	}

	if err := is.customerBelongsToCompany(companyID, req.CustomerID); err != nil {
		WriteError(w, err)
		return
	}

	currency := req.Currency
	if currency == "" {
		if currency, err = is.companyCurrency(companyID); err != nil {
			WriteError(w, err)
			return
		}
	}

	number := req.InvoiceNumber
	if number == "" {
		number = newInvoiceNumber()
	}

	items, total := buildLineItems(req.Items)

	dbTx, err := is.db.Begin()
	if err != nil {
		WriteError(w, storeError(err))
		return
	}
	defer dbTx.Rollback()

	invoice := models.Invoice{
		CompanyID:     companyID,
		CustomerID:    req.CustomerID,
		InvoiceNumber: number,
		Date:          date,
		DueDate:       dueDate,
		Currency:      currency,
		Status:        models.InvoiceDraft,
		TotalAmount:   total,
		Items:         items,
	}
	err = dbTx.QueryRow(`
		INSERT INTO invoices (company_id, customer_id, invoice_number, date, due_date, currency, status, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6, 'DRAFT', $7)
		RETURNING id, created_at`,
		companyID, req.CustomerID, number, date, dueDate, currency, total,
	).Scan(&invoice.ID, &invoice.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "invoices_company_number_key") {
			WriteError(w, NewValidationError("invoice number %q already in use", number))
			return
		}
		WriteError(w, storeError(err))
		return
	}

	if err := insertLineItemsTx(dbTx, invoice.ID, invoice.Items); err != nil {
		WriteError(w, err)
		return
	}

	if err := dbTx.Commit(); err != nil {
		WriteError(w, storeError(err))
		return
	}

	WriteJSON(w, http.StatusCreated, invoice)
}

// UpdateInvoice fully replaces a DRAFT invoice's line items
// @Summary Replace a draft invoice
// @Description Replace the line items of a DRAFT invoice and recompute its total; POSTED and PAID invoices are immutable
// @Tags invoices
// @Accept json
// @Produce json
// @Param id path int true "Invoice ID"
// @Param invoice body invoiceRequest true "Invoice data"
// @Success 200 {object} models.Invoice
// @Failure 400 {object} ErrorResponse
// @Router /invoices/{id} [put]
func (is *InvoiceService) UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	invoiceID, err := pathID(r, "id")
	if err != nil {
		WriteError(w, &NotFoundError{Resource: "invoice"})
		return
	}

	req, date, dueDate, err := is.decodeInvoice(w, r)
	if err != nil {
		WriteError(w, err)
		return
	}

	if err := is.customerBelongsToCompany(companyID, req.CustomerID); err != nil {
		WriteError(w, err)
		return
	}

	items, total := buildLineItems(req.Items)

	dbTx, err := is.db.Begin()
	if err != nil {
		WriteError(w, storeError(err))
		return
	}
	defer dbTx.Rollback()

	invoice, err := lockInvoiceTx(dbTx, invoiceID, companyID)
	if err != nil {
		WriteError(w, err)
		return
	}
	if invoice.Status != models.InvoiceDraft {
		WriteError(w, NewValidationError("line items of a %s invoice are immutable", invoice.Status))
		return
	}

	if _, err := dbTx.Exec(`DELETE FROM invoice_items WHERE invoice_id = $1`, invoiceID); err != nil {
		WriteError(w, storeError(err))
		return
	}
	if err := insertLineItemsTx(dbTx, invoiceID, items); err != nil {
		WriteError(w, err)
		return
	}

	_, err = dbTx.Exec(`
		UPDATE invoices SET customer_id = $1, date = $2, due_date = $3, total_amount = $4
		WHERE id = $5`,
		req.CustomerID, date, dueDate, total, invoiceID)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}

	if err := dbTx.Commit(); err != nil {
		WriteError(w, storeError(err))
		return
	}

	invoice.CustomerID = req.CustomerID
	invoice.Date = date
	invoice.DueDate = dueDate
	invoice.TotalAmount = total
	invoice.Items = items
	WriteJSON(w, http.StatusOK, invoice)
}

// ApproveInvoice posts a DRAFT invoice to the ledger
// @Summary Approve an invoice
// @Description Post one balanced transaction (debit A/R for the total, credit each line's revenue account) and flip the invoice to POSTED
// @Tags invoices
// @Accept json
// @Produce json
// @Param id path int true "Invoice ID"
// @Param approval body object{arAccountId=int} true "Approval data"
// @Success 200 {object} models.Invoice
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /invoices/{id}/approve [post]
func (is *InvoiceService) ApproveInvoice(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	invoiceID, err := pathID(r, "id")
	if err != nil {
		WriteError(w, &NotFoundError{Resource: "invoice"})
		return
	}

	var req struct {
		ARAccountID int64 `json:"arAccountId" validate:"required"`
	}
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := is.validator.ValidateStruct(&req); err != nil {
		WriteError(w, err)
		return
	}

	dbTx, err := is.db.Begin()
	if err != nil {
		WriteError(w, storeError(err))
		return
	}
	defer dbTx.Rollback()

	invoice, err := lockInvoiceTx(dbTx, invoiceID, companyID)
	if err != nil {
		WriteError(w, err)
		return
	}
	if invoice.Status != models.InvoiceDraft {
		WriteError(w, NewStateError("invoice %s is %s, only DRAFT invoices can be approved", invoice.InvoiceNumber, invoice.Status))
		return
	}

	items, err := lineItemsTx(dbTx, invoiceID)
	if err != nil {
		WriteError(w, err)
		return
	}
	if len(items) == 0 {
		WriteError(w, NewValidationError("invoice %s has no line items", invoice.InvoiceNumber))
		return
	}
	var missing []string
	for _, item := range items {
		if item.RevenueAccountID == 0 {
			missing = append(missing, item.Description)
		}
	}
	if len(missing) > 0 {
		WriteError(w, NewValidationError("line items missing a revenue account: %s", strings.Join(missing, ", ")))
		return
	}

	customerName, err := is.customerNameTx(dbTx, invoice.CustomerID)
	if err != nil {
		WriteError(w, err)
		return
	}

	// One debit on A/R for the total, one credit per line item. The ledger
	// re-checks balance and company scope before writing.
	entries := []models.Entry{{AccountID: req.ARAccountID, Amount: invoice.TotalAmount}}
	for _, item := range items {
		entries = append(entries, models.Entry{AccountID: item.RevenueAccountID, Amount: -item.Amount})
	}

	description := fmt.Sprintf("Invoice #%s - %s", invoice.InvoiceNumber, customerName)
	tx, err := is.ledger.PostEntriesTx(dbTx, companyID, description, invoice.Date, invoice.Currency, entries)
	if err != nil {
		is.audit.LogError(companyID, "INVOICE_APPROVAL", err)
		WriteError(w, err)
		return
	}

	result, err := dbTx.Exec(`
		UPDATE invoices SET status = 'POSTED', transaction_id = $1, ar_account_id = $2
		WHERE id = $3 AND status = 'DRAFT'`,
		tx.ID, req.ARAccountID, invoiceID)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		WriteError(w, NewStateError("invoice %s is no longer DRAFT", invoice.InvoiceNumber))
		return
	}

	// Inventory hook: approved product lines reduce quantity on hand.
	for _, item := range items {
		if item.ProductID == nil {
			continue
		}
		_, err := dbTx.Exec(`
			UPDATE products SET quantity_on_hand = quantity_on_hand - $1
			WHERE id = $2 AND company_id = $3`,
			item.Quantity, *item.ProductID, companyID)
		if err != nil {
			WriteError(w, storeError(err))
			return
		}
	}

	if err := dbTx.Commit(); err != nil {
		WriteError(w, storeError(err))
		return
	}

	is.audit.LogPosting(companyID, tx.ID, "INVOICE_APPROVAL", description, invoice.TotalAmount)

	invoice.Status = models.InvoicePosted
	invoice.TransactionID = &tx.ID
	invoice.ARAccountID = &req.ARAccountID
	invoice.Items = items
	WriteJSON(w, http.StatusOK, invoice)
}

// ListInvoices lists the company's invoices with their line items
// @Summary List invoices
// @Tags invoices
// @Produce json
// @Success 200 {array} models.Invoice
// @Router /invoices [get]
func (is *InvoiceService) ListInvoices(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	rows, err := is.db.Query(`
		SELECT id, company_id, customer_id, invoice_number, date, due_date, currency, status, total_amount, transaction_id, ar_account_id, created_at
		FROM invoices
		WHERE company_id = $1
		ORDER BY date DESC, id DESC`,
		companyID)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}
	defer rows.Close()

	invoices := []models.Invoice{}
	ids := []int64{}
	for rows.Next() {
		var inv models.Invoice
		if err := rows.Scan(&inv.ID, &inv.CompanyID, &inv.CustomerID, &inv.InvoiceNumber, &inv.Date, &inv.DueDate, &inv.Currency, &inv.Status, &inv.TotalAmount, &inv.TransactionID, &inv.ARAccountID, &inv.CreatedAt); err != nil {
			WriteError(w, storeError(err))
			return
		}
		inv.Items = []models.LineItem{}
		invoices = append(invoices, inv)
		ids = append(ids, inv.ID)
	}
	if err := rows.Err(); err != nil {
		WriteError(w, storeError(err))
		return
	}

	if len(ids) > 0 {
		itemRows, err := is.db.Query(`
			SELECT id, invoice_id, description, quantity, unit_price, amount, revenue_account_id, product_id
			FROM invoice_items
			WHERE invoice_id = ANY($1)
			ORDER BY id`,
			pq.Array(ids))
		if err != nil {
			WriteError(w, storeError(err))
			return
		}
		defer itemRows.Close()

		byInvoice := make(map[int64]*models.Invoice, len(invoices))
		for i := range invoices {
			byInvoice[invoices[i].ID] = &invoices[i]
		}
		for itemRows.Next() {
			var item models.LineItem
			if err := itemRows.Scan(&item.ID, &item.InvoiceID, &item.Description, &item.Quantity, &item.UnitPrice, &item.Amount, &item.RevenueAccountID, &item.ProductID); err != nil {
				WriteError(w, storeError(err))
				return
			}
			if inv, ok := byInvoice[item.InvoiceID]; ok {
				inv.Items = append(inv.Items, item)
			}
		}
		if err := itemRows.Err(); err != nil {
			WriteError(w, storeError(err))
			return
		}
	}

	WriteJSON(w, http.StatusOK, invoices)
}

// ListInvoicePayments lists payments recorded against one invoice
// @Summary List payments for an invoice
// @Tags invoices
// @Produce json
// @Param id path int true "Invoice ID"
// @Success 200 {array} models.Payment
// @Failure 404 {object} ErrorResponse
// @Router /invoices/{id}/payments [get]
func (is *InvoiceService) ListInvoicePayments(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	invoiceID, err := pathID(r, "id")
	if err != nil {
		WriteError(w, &NotFoundError{Resource: "invoice"})
		return
	}

	var exists bool
	err = is.db.QueryRow(`
		SELECT EXISTS (SELECT 1 FROM invoices WHERE id = $1 AND company_id = $2)`,
		invoiceID, companyID,
	).Scan(&exists)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}
	if !exists {
		WriteError(w, &NotFoundError{Resource: "invoice"})
		return
	}

	rows, err := is.db.Query(`
		SELECT id, company_id, invoice_id, amount, cash_account_id, payment_date, method, reference, transaction_id, created_at
		FROM payments
		WHERE invoice_id = $1
		ORDER BY payment_date, id`,
		invoiceID)
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

func (is *InvoiceService) decodeInvoice(w http.ResponseWriter, r *http.Request) (*invoiceRequest, time.Time, time.Time, error) {
	var req invoiceRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		return nil, time.Time{}, time.Time{}, err
	}
	if err := is.validator.ValidateStruct(&req); err != nil {
		return nil, time.Time{}, time.Time{}, err
	}

	date, err := parseDate(req.Date)
	if err != nil {
		return nil, time.Time{}, time.Time{}, NewValidationError("invalid date %q, expected YYYY-MM-DD", req.Date)
	}
	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		return nil, time.Time{}, time.Time{}, NewValidationError("invalid due date %q, expected YYYY-MM-DD", req.DueDate)
	}
	if dueDate.Before(date) {
		return nil, time.Time{}, time.Time{}, NewValidationError("due date cannot precede the invoice date")
	}
	return &req, date, dueDate, nil
}

func (is *InvoiceService) customerBelongsToCompany(companyID, customerID int64) error {
	var exists bool
	err := is.db.QueryRow(`
		SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1 AND company_id = $2)`,
		customerID, companyID,
	).Scan(&exists)
	if err != nil {
		return storeError(err)
	}
	if !exists {
		return &NotFoundError{Resource: "customer"}
	}
	return nil
}

func (is *InvoiceService) companyCurrency(companyID int64) (string, error) {
	var currency string
	err := is.db.QueryRow(`SELECT currency FROM companies WHERE id = $1`, companyID).Scan(&currency)
	if err == sql.ErrNoRows {
		return "", &NotFoundError{Resource: "company"}
	}
	if err != nil {
		return "", storeError(err)
	}
	return currency, nil
}

func (is *InvoiceService) customerNameTx(dbTx *sql.Tx, customerID int64) (string, error) {
	var name string
	err := dbTx.QueryRow(`SELECT name FROM customers WHERE id = $1`, customerID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", &NotFoundError{Resource: "customer"}
	}
	if err != nil {
		return "", storeError(err)
	}
	return name, nil
}

// lockInvoiceTx loads the invoice header FOR UPDATE so concurrent approvals
// and payments serialize on the row.
func lockInvoiceTx(dbTx *sql.Tx, invoiceID, companyID int64) (*models.Invoice, error) {
	var inv models.Invoice
	err := dbTx.QueryRow(`
		SELECT id, company_id, customer_id, invoice_number, date, due_date, currency, status, total_amount, transaction_id, ar_account_id, created_at
		FROM invoices
		WHERE id = $1 AND company_id = $2
		FOR UPDATE`,
		invoiceID, companyID,
	).Scan(&inv.ID, &inv.CompanyID, &inv.CustomerID, &inv.InvoiceNumber, &inv.Date, &inv.DueDate, &inv.Currency, &inv.Status, &inv.TotalAmount, &inv.TransactionID, &inv.ARAccountID, &inv.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "invoice"}
	}
	if err != nil {
		return nil, storeError(err)
	}
	return &inv, nil
}

func lineItemsTx(dbTx *sql.Tx, invoiceID int64) ([]models.LineItem, error) {
	rows, err := dbTx.Query(`
		SELECT id, invoice_id, description, quantity, unit_price, amount, revenue_account_id, product_id
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY id`,
		invoiceID)
	if err != nil {
		return nil, storeError(err)
	}
	defer rows.Close()

	items := []models.LineItem{}
	for rows.Next() {
		var item models.LineItem
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.Description, &item.Quantity, &item.UnitPrice, &item.Amount, &item.RevenueAccountID, &item.ProductID); err != nil {
			return nil, storeError(err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(err)
	}
	return items, nil
}

func insertLineItemsTx(dbTx *sql.Tx, invoiceID int64, items []models.LineItem) error {
	for i := range items {
		items[i].InvoiceID = invoiceID
		err := dbTx.QueryRow(`
			INSERT INTO invoice_items (invoice_id, description, quantity, unit_price, amount, revenue_account_id, product_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			invoiceID, items[i].Description, items[i].Quantity, items[i].UnitPrice, items[i].Amount, items[i].RevenueAccountID, items[i].ProductID,
		).Scan(&items[i].ID)
		if err != nil {
			return storeError(err)
		}
	}
	return nil
}

func buildLineItems(reqs []invoiceItemRequest) ([]models.LineItem, int64) {
	items := make([]models.LineItem, 0, len(reqs))
	var total int64
	for _, it := range reqs {
		amount := it.Quantity * it.UnitPrice
		items = append(items, models.LineItem{
			Description:      it.Description,
			Quantity:         it.Quantity,
			UnitPrice:        it.UnitPrice,
			Amount:           amount,
			RevenueAccountID: it.RevenueAccountID,
			ProductID:        it.ProductID,
		})
		total += amount
	}
	return items, total
}

func newInvoiceNumber() string {
	return "INV-" + strings.ToUpper(uuid.NewString()[:8])
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
