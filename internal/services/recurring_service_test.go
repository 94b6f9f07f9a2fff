package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"

	"github.com/balancesheet/backend/internal/models"
)

func TestRecurringService_fireItem(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewRecurringService(db, NewLedgerService(db), nil)
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	item := models.RecurringItem{
		ID:              3,
		CompanyID:       1,
		Name:            "Payroll",
		Description:     "Monthly payroll",
		Category:        "TEAM",
		Amount:          200000,
		DayOfMonth:      15,
		DebitAccountID:  40,
		CreditAccountID: 10,
		Active:          true,
	}

	t.Run("fires once for the period", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO recurring_runs").
			WithArgs(int64(3), "2026-03").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM accounts").
			WithArgs(sqlmock.AnyArg(), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectQuery("SELECT currency FROM companies").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"currency"}).AddRow("USD"))
		mock.ExpectQuery("INSERT INTO transactions").
			WithArgs(int64(1), "Auto: Monthly payroll (Payroll)", now, "USD").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(50), time.Now()))
		mock.ExpectQuery("INSERT INTO journal_entries").
			WithArgs(int64(50), int64(40), int64(200000)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(120)))
		mock.ExpectQuery("INSERT INTO journal_entries").
			WithArgs(int64(50), int64(10), int64(-200000)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(121)))
		mock.ExpectExec("UPDATE recurring_runs SET transaction_id").
			WithArgs(int64(50), int64(3), "2026-03").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.fireItem(context.Background(), item, now, "2026-03")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already claimed period posts nothing", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO recurring_runs").
			WithArgs(int64(3), "2026-03").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := service.fireItem(context.Background(), item, now, "2026-03")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRecurringService_fireItemRedisGuard(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	cache, cacheMock := redismock.NewClientMock()
	service := NewRecurringService(db, NewLedgerService(db), cache)
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	item := models.RecurringItem{
		ID:              3,
		CompanyID:       1,
		Name:            "Payroll",
		Description:     "Monthly payroll",
		Amount:          200000,
		DebitAccountID:  40,
		CreditAccountID: 10,
	}

	t.Run("held claim skips the database entirely", func(t *testing.T) {
		cacheMock.ExpectSetNX("recurring:fired:3:2026-03", 1, recurringFiredTTL).SetVal(false)

		err := service.fireItem(context.Background(), item, now, "2026-03")
		assert.NoError(t, err)
		assert.NoError(t, cacheMock.ExpectationsWereMet())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed posting releases the claim so the next tick retries", func(t *testing.T) {
		cacheMock.ExpectSetNX("recurring:fired:3:2026-03", 1, recurringFiredTTL).SetVal(true)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO recurring_runs").
			WithArgs(int64(3), "2026-03").
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()
		cacheMock.ExpectDel("recurring:fired:3:2026-03").SetVal(1)

		err := service.fireItem(context.Background(), item, now, "2026-03")
		assert.Error(t, err)
		assert.NoError(t, cacheMock.ExpectationsWereMet())
		assert.NoError(t, mock.ExpectationsWereMet())

		// The period is not lost: the next tick claims and posts.
		cacheMock.ExpectSetNX("recurring:fired:3:2026-03", 1, recurringFiredTTL).SetVal(true)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO recurring_runs").
			WithArgs(int64(3), "2026-03").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM accounts").
			WithArgs(sqlmock.AnyArg(), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectQuery("SELECT currency FROM companies").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"currency"}).AddRow("USD"))
		mock.ExpectQuery("INSERT INTO transactions").
			WithArgs(int64(1), "Auto: Monthly payroll (Payroll)", now, "USD").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(53), time.Now()))
		mock.ExpectQuery("INSERT INTO journal_entries").
			WithArgs(int64(53), int64(40), int64(200000)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(126)))
		mock.ExpectQuery("INSERT INTO journal_entries").
			WithArgs(int64(53), int64(10), int64(-200000)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(127)))
		mock.ExpectExec("UPDATE recurring_runs SET transaction_id").
			WithArgs(int64(53), int64(3), "2026-03").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err = service.fireItem(context.Background(), item, now, "2026-03")
		assert.NoError(t, err)
		assert.NoError(t, cacheMock.ExpectationsWereMet())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRecurringService_ProcessDue(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewRecurringService(db, NewLedgerService(db), nil)
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	itemColumns := []string{"id", "company_id", "name", "description", "category", "amount", "day_of_month", "debit_account_id", "credit_account_id", "start_date", "end_date", "active"}

	t.Run("fires every item due today", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM recurring_items").
			WithArgs(15, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(itemColumns).
				AddRow(int64(3), int64(1), "Payroll", "Monthly payroll", "TEAM", int64(200000), 15, int64(40), int64(10), nil, nil, true))
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO recurring_runs").
			WithArgs(int64(3), "2026-03").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM accounts").
			WithArgs(sqlmock.AnyArg(), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectQuery("SELECT currency FROM companies").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"currency"}).AddRow("USD"))
		mock.ExpectQuery("INSERT INTO transactions").
			WithArgs(int64(1), "Auto: Monthly payroll (Payroll)", now, "USD").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(51), time.Now()))
		mock.ExpectQuery("INSERT INTO journal_entries").
			WithArgs(int64(51), int64(40), int64(200000)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(122)))
		mock.ExpectQuery("INSERT INTO journal_entries").
			WithArgs(int64(51), int64(10), int64(-200000)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(123)))
		mock.ExpectExec("UPDATE recurring_runs SET transaction_id").
			WithArgs(int64(51), int64(3), "2026-03").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.ProcessDue(context.Background(), now)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no items due is a quiet pass", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM recurring_items").
			WithArgs(15, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(itemColumns))

		err := service.ProcessDue(context.Background(), now)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("window end is compared by calendar day", func(t *testing.T) {
		// An afternoon tick on the window's last day must still match the
		// item, so the due query compares end_date against the tick's date,
		// not its timestamp.
		endDate := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery(`(?s)SELECT (.+) FROM recurring_items.*end_date >= \$2::date`).
			WithArgs(15, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(itemColumns).
				AddRow(int64(5), int64(1), "Lease", "Machine lease", "MACHINE", int64(30000), 15, int64(42), int64(10), nil, endDate, true))
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO recurring_runs").
			WithArgs(int64(5), "2026-03").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM accounts").
			WithArgs(sqlmock.AnyArg(), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectQuery("SELECT currency FROM companies").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"currency"}).AddRow("USD"))
		mock.ExpectQuery("INSERT INTO transactions").
			WithArgs(int64(1), "Auto: Machine lease (Lease)", now, "USD").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(54), time.Now()))
		mock.ExpectQuery("INSERT INTO journal_entries").
			WithArgs(int64(54), int64(42), int64(30000)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(128)))
		mock.ExpectQuery("INSERT INTO journal_entries").
			WithArgs(int64(54), int64(10), int64(-30000)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(129)))
		mock.ExpectExec("UPDATE recurring_runs SET transaction_id").
			WithArgs(int64(54), int64(5), "2026-03").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.ProcessDue(context.Background(), now)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("one failing item does not abort the pass", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM recurring_items").
			WithArgs(15, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(itemColumns).
				AddRow(int64(3), int64(1), "Payroll", "Monthly payroll", "TEAM", int64(200000), 15, int64(40), int64(99), nil, nil, true).
				AddRow(int64(4), int64(1), "Rent", "Office rent", "BUILDING", int64(90000), 15, int64(41), int64(10), nil, nil, true))

		// First item references a foreign credit account and fails.
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO recurring_runs").
			WithArgs(int64(3), "2026-03").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM accounts").
			WithArgs(sqlmock.AnyArg(), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectRollback()

		// Second item still fires.
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO recurring_runs").
			WithArgs(int64(4), "2026-03").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM accounts").
			WithArgs(sqlmock.AnyArg(), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectQuery("SELECT currency FROM companies").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"currency"}).AddRow("USD"))
		mock.ExpectQuery("INSERT INTO transactions").
			WithArgs(int64(1), "Auto: Office rent (Rent)", now, "USD").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(52), time.Now()))
		mock.ExpectQuery("INSERT INTO journal_entries").
			WithArgs(int64(52), int64(41), int64(90000)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(124)))
		mock.ExpectQuery("INSERT INTO journal_entries").
			WithArgs(int64(52), int64(10), int64(-90000)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(125)))
		mock.ExpectExec("UPDATE recurring_runs SET transaction_id").
			WithArgs(int64(52), int64(4), "2026-03").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.ProcessDue(context.Background(), now)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
