package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/balancesheet/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestPaymentService_RecordPayment(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewPaymentService(db, NewLedgerService(db))
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	dueDate := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	payDate := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)

	invoiceColumns := []string{"id", "company_id", "customer_id", "invoice_number", "date", "due_date", "currency", "status", "total_amount", "transaction_id", "ar_account_id", "created_at"}

	t.Run("full settlement flips the invoice to PAID", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM accounts").
			WithArgs(sqlmock.AnyArg(), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM invoices").
			WithArgs(int64(5), int64(1)).
			WillReturnRows(sqlmock.NewRows(invoiceColumns).
				AddRow(int64(5), int64(1), int64(3), "INV-001", date, dueDate, "USD", "POSTED", int64(50000), int64(42), int64(20), time.Now()))
		mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\) FROM payments").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(0)))
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM accounts").
			WithArgs(sqlmock.AnyArg(), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectQuery("INSERT INTO transactions").
			WithArgs(int64(1), "Payment for Invoice #INV-001 - Ref: WIRE-881", payDate, "USD").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(43), time.Now()))
		mock.ExpectQuery("INSERT INTO journal_entries").
			WithArgs(int64(43), int64(10), int64(50000)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(110)))
		mock.ExpectQuery("INSERT INTO journal_entries").
			WithArgs(int64(43), int64(20), int64(-50000)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(111)))
		mock.ExpectQuery("INSERT INTO payments").
			WithArgs(int64(1), int64(5), int64(50000), int64(10), payDate, "BANK_TRANSFER", "WIRE-881", int64(43)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(60), time.Now()))
		mock.ExpectExec("UPDATE invoices SET status = 'PAID'").
			WithArgs(int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		body := `{"invoiceId":5,"amount":50000,"cashAccountId":10,"paymentDate":"2026-03-20","paymentMethod":"BANK_TRANSFER","reference":"WIRE-881"}`
		w := httptest.NewRecorder()
		service.RecordPayment(w, scopedRequest(http.MethodPost, "/payments", 1, body))

		assert.Equal(t, http.StatusCreated, w.Code)
		var payment models.Payment
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&payment))
		assert.Equal(t, int64(50000), payment.Amount)
		assert.Equal(t, int64(43), payment.TransactionID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("partial payment leaves the invoice POSTED", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM accounts").
			WithArgs(sqlmock.AnyArg(), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM invoices").
			WithArgs(int64(5), int64(1)).
			WillReturnRows(sqlmock.NewRows(invoiceColumns).
				AddRow(int64(5), int64(1), int64(3), "INV-001", date, dueDate, "USD", "POSTED", int64(50000), int64(42), int64(20), time.Now()))
		mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\) FROM payments").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(0)))
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM accounts").
			WithArgs(sqlmock.AnyArg(), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectQuery("INSERT INTO transactions").
			WithArgs(int64(1), "Payment for Invoice #INV-001 - Ref: WIRE-882", payDate, "USD").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(44), time.Now()))
		mock.ExpectQuery("INSERT INTO journal_entries").
			WithArgs(int64(44), int64(10), int64(20000)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(112)))
		mock.ExpectQuery("INSERT INTO journal_entries").
			WithArgs(int64(44), int64(20), int64(-20000)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(113)))
		mock.ExpectQuery("INSERT INTO payments").
			WithArgs(int64(1), int64(5), int64(20000), int64(10), payDate, "BANK_TRANSFER", "WIRE-882", int64(44)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(61), time.Now()))
		mock.ExpectCommit()

		body := `{"invoiceId":5,"amount":20000,"cashAccountId":10,"paymentDate":"2026-03-20","paymentMethod":"BANK_TRANSFER","reference":"WIRE-882"}`
		w := httptest.NewRecorder()
		service.RecordPayment(w, scopedRequest(http.MethodPost, "/payments", 1, body))

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("overpayment rejected", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM accounts").
			WithArgs(sqlmock.AnyArg(), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM invoices").
			WithArgs(int64(5), int64(1)).
			WillReturnRows(sqlmock.NewRows(invoiceColumns).
				AddRow(int64(5), int64(1), int64(3), "INV-001", date, dueDate, "USD", "POSTED", int64(50000), int64(42), int64(20), time.Now()))
		mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\) FROM payments").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(30000)))
		mock.ExpectRollback()

		body := `{"invoiceId":5,"amount":30000,"cashAccountId":10,"paymentDate":"2026-03-20","paymentMethod":"CASH"}`
		w := httptest.NewRecorder()
		service.RecordPayment(w, scopedRequest(http.MethodPost, "/payments", 1, body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp ErrorResponse
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Contains(t, resp.Error, "exceeds the outstanding balance")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("draft invoices cannot receive payments", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM accounts").
			WithArgs(sqlmock.AnyArg(), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM invoices").
			WithArgs(int64(6), int64(1)).
			WillReturnRows(sqlmock.NewRows(invoiceColumns).
				AddRow(int64(6), int64(1), int64(3), "INV-002", date, dueDate, "USD", "DRAFT", int64(50000), nil, nil, time.Now()))
		mock.ExpectRollback()

		body := `{"invoiceId":6,"amount":10000,"cashAccountId":10,"paymentDate":"2026-03-20","paymentMethod":"CASH"}`
		w := httptest.NewRecorder()
		service.RecordPayment(w, scopedRequest(http.MethodPost, "/payments", 1, body))

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
