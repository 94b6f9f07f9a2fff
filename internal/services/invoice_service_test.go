package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/balancesheet/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func invoiceRouter(service *InvoiceService) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/invoices", service.CreateInvoice)
	r.Put("/invoices/{id}", service.UpdateInvoice)
	r.Post("/invoices/{id}/approve", service.ApproveInvoice)
	r.Get("/invoices/{id}/payments", service.ListInvoicePayments)
	return r
}

func TestInvoiceService_CreateInvoice(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewInvoiceService(db, NewLedgerService(db))
	router := invoiceRouter(service)

	t.Run("creates a draft with computed totals", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(int64(3), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO invoices").
			WithArgs(int64(1), int64(3), "INV-001", sqlmock.AnyArg(), sqlmock.AnyArg(), "USD", int64(50000)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(5), time.Now()))
		mock.ExpectQuery("INSERT INTO invoice_items").
			WithArgs(int64(5), "Consulting", int64(5), int64(10000), int64(50000), int64(30), nil).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
		mock.ExpectCommit()

		body := `{"customerId":3,"invoiceNumber":"INV-001","date":"2026-03-01","dueDate":"2026-03-31","currency":"USD",
			"items":[{"description":"Consulting","quantity":5,"unitPrice":10000,"revenueAccountId":30}]}`
		w := httptest.NewRecorder()
		router.ServeHTTP(w, scopedRequest(http.MethodPost, "/invoices", 1, body))

		assert.Equal(t, http.StatusCreated, w.Code)
		var invoice models.Invoice
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&invoice))
		assert.Equal(t, models.InvoiceDraft, invoice.Status)
		assert.Equal(t, int64(50000), invoice.TotalAmount)
		assert.Equal(t, int64(50000), invoice.Items[0].Amount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown customer reads as missing", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(int64(99), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		body := `{"customerId":99,"invoiceNumber":"INV-002","date":"2026-03-01","dueDate":"2026-03-31","currency":"USD","items":[]}`
		w := httptest.NewRecorder()
		router.ServeHTTP(w, scopedRequest(http.MethodPost, "/invoices", 1, body))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("due date before invoice date rejected", func(t *testing.T) {
		body := `{"customerId":3,"invoiceNumber":"INV-003","date":"2026-03-31","dueDate":"2026-03-01","currency":"USD","items":[]}`
		w := httptest.NewRecorder()
		router.ServeHTTP(w, scopedRequest(http.MethodPost, "/invoices", 1, body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestInvoiceService_ApproveInvoice(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewInvoiceService(db, NewLedgerService(db))
	router := invoiceRouter(service)
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	dueDate := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	invoiceColumns := []string{"id", "company_id", "customer_id", "invoice_number", "date", "due_date", "currency", "status", "total_amount", "transaction_id", "ar_account_id", "created_at"}
	itemColumns := []string{"id", "invoice_id", "description", "quantity", "unit_price", "amount", "revenue_account_id", "product_id"}

	t.Run("posts the receivable and flips to POSTED", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM invoices").
			WithArgs(int64(5), int64(1)).
			WillReturnRows(sqlmock.NewRows(invoiceColumns).
				AddRow(int64(5), int64(1), int64(3), "INV-001", date, dueDate, "USD", "DRAFT", int64(50000), nil, nil, time.Now()))
		mock.ExpectQuery("SELECT (.+) FROM invoice_items").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows(itemColumns).
				AddRow(int64(7), int64(5), "Consulting", int64(5), int64(10000), int64(50000), int64(30), nil))
		mock.ExpectQuery("SELECT name FROM customers").
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Acme Corp"))
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM accounts").
			WithArgs(sqlmock.AnyArg(), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectQuery("INSERT INTO transactions").
			WithArgs(int64(1), "Invoice #INV-001 - Acme Corp", date, "USD").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(42), time.Now()))
		mock.ExpectQuery("INSERT INTO journal_entries").
			WithArgs(int64(42), int64(20), int64(50000)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(100)))
		mock.ExpectQuery("INSERT INTO journal_entries").
			WithArgs(int64(42), int64(30), int64(-50000)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(101)))
		mock.ExpectExec("UPDATE invoices SET status = 'POSTED'").
			WithArgs(int64(42), int64(20), int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		w := httptest.NewRecorder()
		router.ServeHTTP(w, scopedRequest(http.MethodPost, "/invoices/5/approve", 1, `{"arAccountId":20}`))

		assert.Equal(t, http.StatusOK, w.Code)
		var invoice models.Invoice
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&invoice))
		assert.Equal(t, models.InvoicePosted, invoice.Status)
		assert.Equal(t, int64(42), *invoice.TransactionID)
		assert.Equal(t, int64(20), *invoice.ARAccountID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("approving a POSTED invoice conflicts", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM invoices").
			WithArgs(int64(5), int64(1)).
			WillReturnRows(sqlmock.NewRows(invoiceColumns).
				AddRow(int64(5), int64(1), int64(3), "INV-001", date, dueDate, "USD", "POSTED", int64(50000), int64(42), int64(20), time.Now()))
		mock.ExpectRollback()

		w := httptest.NewRecorder()
		router.ServeHTTP(w, scopedRequest(http.MethodPost, "/invoices/5/approve", 1, `{"arAccountId":20}`))

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty invoice cannot be approved", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM invoices").
			WithArgs(int64(6), int64(1)).
			WillReturnRows(sqlmock.NewRows(invoiceColumns).
				AddRow(int64(6), int64(1), int64(3), "INV-004", date, dueDate, "USD", "DRAFT", int64(0), nil, nil, time.Now()))
		mock.ExpectQuery("SELECT (.+) FROM invoice_items").
			WithArgs(int64(6)).
			WillReturnRows(sqlmock.NewRows(itemColumns))
		mock.ExpectRollback()

		w := httptest.NewRecorder()
		router.ServeHTTP(w, scopedRequest(http.MethodPost, "/invoices/6/approve", 1, `{"arAccountId":20}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("line item without a revenue account rejected", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM invoices").
			WithArgs(int64(7), int64(1)).
			WillReturnRows(sqlmock.NewRows(invoiceColumns).
				AddRow(int64(7), int64(1), int64(3), "INV-005", date, dueDate, "USD", "DRAFT", int64(50000), nil, nil, time.Now()))
		mock.ExpectQuery("SELECT (.+) FROM invoice_items").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(itemColumns).
				AddRow(int64(8), int64(7), "Consulting", int64(5), int64(10000), int64(50000), int64(0), nil))
		mock.ExpectRollback()

		w := httptest.NewRecorder()
		router.ServeHTTP(w, scopedRequest(http.MethodPost, "/invoices/7/approve", 1, `{"arAccountId":20}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp ErrorResponse
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Contains(t, resp.Error, "revenue account")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestInvoiceService_UpdateInvoice(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewInvoiceService(db, NewLedgerService(db))
	router := invoiceRouter(service)
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	dueDate := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	invoiceColumns := []string{"id", "company_id", "customer_id", "invoice_number", "date", "due_date", "currency", "status", "total_amount", "transaction_id", "ar_account_id", "created_at"}

	t.Run("posted invoices are immutable", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(int64(3), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM invoices").
			WithArgs(int64(5), int64(1)).
			WillReturnRows(sqlmock.NewRows(invoiceColumns).
				AddRow(int64(5), int64(1), int64(3), "INV-001", date, dueDate, "USD", "POSTED", int64(50000), int64(42), int64(20), time.Now()))
		mock.ExpectRollback()

		body := `{"customerId":3,"date":"2026-03-01","dueDate":"2026-03-31",
			"items":[{"description":"Consulting","quantity":1,"unitPrice":100,"revenueAccountId":30}]}`
		w := httptest.NewRecorder()
		router.ServeHTTP(w, scopedRequest(http.MethodPut, "/invoices/5", 1, body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp ErrorResponse
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Contains(t, resp.Error, "immutable")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("replaces draft items and recomputes the total", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(int64(3), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM invoices").
			WithArgs(int64(6), int64(1)).
			WillReturnRows(sqlmock.NewRows(invoiceColumns).
				AddRow(int64(6), int64(1), int64(3), "INV-002", date, dueDate, "USD", "DRAFT", int64(50000), nil, nil, time.Now()))
		mock.ExpectExec("DELETE FROM invoice_items").
			WithArgs(int64(6)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO invoice_items").
			WithArgs(int64(6), "Support retainer", int64(2), int64(15000), int64(30000), int64(30), nil).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))
		mock.ExpectExec("UPDATE invoices SET customer_id").
			WithArgs(int64(3), sqlmock.AnyArg(), sqlmock.AnyArg(), int64(30000), int64(6)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		body := `{"customerId":3,"date":"2026-03-01","dueDate":"2026-03-31",
			"items":[{"description":"Support retainer","quantity":2,"unitPrice":15000,"revenueAccountId":30}]}`
		w := httptest.NewRecorder()
		router.ServeHTTP(w, scopedRequest(http.MethodPut, "/invoices/6", 1, body))

		assert.Equal(t, http.StatusOK, w.Code)
		var invoice models.Invoice
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&invoice))
		assert.Equal(t, int64(30000), invoice.TotalAmount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
