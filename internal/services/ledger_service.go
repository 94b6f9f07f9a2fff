package services

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/balancesheet/backend/internal/middleware"
	"github.com/balancesheet/backend/internal/models"
	"github.com/lib/pq"
)

// LedgerService owns the append-only journal and the posting invariant:
// every transaction has at least two entries and its signed amounts sum to
// exactly zero. Postings are atomic; there is no stored balance anywhere,
// balances are always derived by summing entries.
type LedgerService struct {
	db        *sql.DB
	validator *ValidationHelper
	audit     *AuditLogger
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{
		db:        db,
		validator: NewValidationHelper(),
		audit:     NewAuditLogger(),
	}
}

// PostEntries validates and persists one balanced transaction in a single
// database transaction.
func (ls *LedgerService) PostEntries(companyID int64, description string, date time.Time, currency string, entries []models.Entry) (*models.Transaction, error) {
	dbTx, err := ls.db.Begin()
	if err != nil {
		return nil, storeError(err)
	}
	defer dbTx.Rollback()

	tx, err := ls.PostEntriesTx(dbTx, companyID, description, date, currency, entries)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(); err != nil {
		return nil, storeError(err)
	}

	ls.audit.LogPosting(companyID, tx.ID, "LEDGER", tx.Description, sumDebits(tx.Entries))
	return tx, nil
}

// PostEntriesTx runs the posting inside an existing database transaction so
// invoice approval, payment recording and recurring firings stay atomic with
// their own writes. All domain checks happen before the first insert.
func (ls *LedgerService) PostEntriesTx(dbTx *sql.Tx, companyID int64, description string, date time.Time, currency string, entries []models.Entry) (*models.Transaction, error) {
	if len(entries) < 2 {
		return nil, NewValidationError("a transaction needs at least two entries")
	}

	var sum int64
	for _, e := range entries {
		sum += e.Amount
	}
	if sum != 0 {
		return nil, NewValidationError("transaction must balance: debits must equal credits (off by %d)", sum)
	}

	if err := ls.checkAccountsTx(dbTx, companyID, entryAccountIDs(entries)); err != nil {
		return nil, err
	}

	if currency == "" {
		var err error
		currency, err = companyCurrencyTx(dbTx, companyID)
		if err != nil {
			return nil, err
		}
	}

	tx := &models.Transaction{
		CompanyID:   companyID,
		Description: description,
		Date:        date,
		Currency:    currency,
	}

	err := dbTx.QueryRow(`
		INSERT INTO transactions (company_id, description, date, currency)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		companyID, description, date, currency,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return nil, storeError(err)
	}

	for _, e := range entries {
		entry := models.Entry{
			TransactionID: tx.ID,
			AccountID:     e.AccountID,
			Amount:        e.Amount,
		}
		err := dbTx.QueryRow(`
			INSERT INTO journal_entries (transaction_id, account_id, amount)
			VALUES ($1, $2, $3)
			RETURNING id`,
			tx.ID, e.AccountID, e.Amount,
		).Scan(&entry.ID)
		if err != nil {
			return nil, storeError(err)
		}
		tx.Entries = append(tx.Entries, entry)
	}

	return tx, nil
}

// checkAccountsTx verifies every referenced account exists, is active and
// belongs to the posting company. Cross-company references fail as NotFound
// rather than leaking another company's chart.
func (ls *LedgerService) checkAccountsTx(dbTx *sql.Tx, companyID int64, accountIDs []int64) error {
	var count int
	err := dbTx.QueryRow(`
		SELECT COUNT(*) FROM accounts
		WHERE id = ANY($1) AND company_id = $2 AND active`,
		pq.Array(accountIDs), companyID,
	).Scan(&count)
	if err != nil {
		return storeError(err)
	}
	if count != len(accountIDs) {
		return &NotFoundError{Resource: "account"}
	}
	return nil
}

func companyCurrencyTx(dbTx *sql.Tx, companyID int64) (string, error) {
	var currency string
	err := dbTx.QueryRow(`SELECT currency FROM companies WHERE id = $1`, companyID).Scan(&currency)
	if err == sql.ErrNoRows {
		return "", &NotFoundError{Resource: "company"}
	}
	if err != nil {
		return "", storeError(err)
	}
	return currency, nil
}

func entryAccountIDs(entries []models.Entry) []int64 {
	seen := make(map[int64]bool, len(entries))
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		if !seen[e.AccountID] {
			seen[e.AccountID] = true
			ids = append(ids, e.AccountID)
		}
	}
	return ids
}

func sumDebits(entries []models.Entry) int64 {
	var total int64
	for _, e := range entries {
		if e.Amount > 0 {
			total += e.Amount
		}
	}
	return total
}

// CreateTransaction posts a manual journal transaction
// @Summary Post a transaction
// @Description Post a balanced double-entry transaction to the ledger
// @Tags transactions
// @Accept json
// @Produce json
// @Param transaction body object{description=string,date=string,currency=string,entries=[]object{accountId=int,amount=int}} true "Transaction data"
// @Success 201 {object} models.Transaction
// @Failure 400 {object} ErrorResponse
// @Router /transactions [post]
func (ls *LedgerService) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	var req struct {
		Description string `json:"description" validate:"required"`
		Date        string `json:"date"`
		Currency    string `json:"currency" validate:"omitempty,len=3"`
		Entries     []struct {
			AccountID int64 `json:"accountId" validate:"required"`
			Amount    int64 `json:"amount" validate:"required"`
		} `json:"entries" validate:"required,min=2,dive"`
	}

	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := ls.validator.ValidateStruct(&req); err != nil {
		WriteError(w, err)
		return
	}

	date := time.Now()
	if req.Date != "" {
		var err error
		date, err = parseDate(req.Date)
		if err != nil {
			WriteError(w, NewValidationError("invalid date %q, expected YYYY-MM-DD", req.Date))
			return
		}
	}

	entries := make([]models.Entry, 0, len(req.Entries))
	for _, e := range req.Entries {
		entries = append(entries, models.Entry{AccountID: e.AccountID, Amount: e.Amount})
	}

	tx, err := ls.PostEntries(companyID, req.Description, date, req.Currency, entries)
	if err != nil {
		ls.audit.LogError(companyID, "LEDGER", err)
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{
		"success":     true,
		"transaction": tx,
	})
}

// ListTransactions lists the company's transactions for audit display
// @Summary List transactions
// @Description List transactions ordered by date, newest first
// @Tags transactions
// @Produce json
// @Param year query int false "Filter by calendar year"
// @Success 200 {object} object{transactions=[]models.Transaction,count=int}
// @Router /transactions [get]
func (ls *LedgerService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	query := `
		SELECT id, company_id, description, date, currency, created_at
		FROM transactions
		WHERE company_id = $1
		ORDER BY date DESC, id DESC`
	args := []any{companyID}

	if yearStr := r.URL.Query().Get("year"); yearStr != "" {
		year, err := strconv.Atoi(yearStr)
		if err != nil {
			WriteError(w, NewValidationError("invalid year %q", yearStr))
			return
		}
		from, to := yearRange(year)
		query = `
			SELECT id, company_id, description, date, currency, created_at
			FROM transactions
			WHERE company_id = $1 AND date >= $2 AND date < $3
			ORDER BY date DESC, id DESC`
		args = append(args, from, to)
	}

	rows, err := ls.db.Query(query, args...)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	ids := []int64{}
	for rows.Next() {
		var tx models.Transaction
		if err := rows.Scan(&tx.ID, &tx.CompanyID, &tx.Description, &tx.Date, &tx.Currency, &tx.CreatedAt); err != nil {
			WriteError(w, storeError(err))
			return
		}
		tx.Entries = []models.Entry{}
		transactions = append(transactions, tx)
		ids = append(ids, tx.ID)
	}
	if err := rows.Err(); err != nil {
		WriteError(w, storeError(err))
		return
	}

	if err := ls.attachEntries(transactions, ids); err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

func (ls *LedgerService) attachEntries(transactions []models.Transaction, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	rows, err := ls.db.Query(`
		SELECT id, transaction_id, account_id, amount
		FROM journal_entries
		WHERE transaction_id = ANY($1)
		ORDER BY id`,
		pq.Array(ids))
	if err != nil {
		return storeError(err)
	}
	defer rows.Close()

	byTx := make(map[int64]*models.Transaction, len(transactions))
	for i := range transactions {
		byTx[transactions[i].ID] = &transactions[i]
	}

	for rows.Next() {
		var e models.Entry
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.AccountID, &e.Amount); err != nil {
			return storeError(err)
		}
		if tx, ok := byTx[e.TransactionID]; ok {
			tx.Entries = append(tx.Entries, e)
		}
	}
	return rows.Err()
}

// LedgerWalk is a lazy cursor over one account's entries with their parent
// transaction attached, ordered by date then transaction id. Restart by
// calling EntriesForAccount again.
type LedgerWalk struct {
	rows *sql.Rows
	line models.LedgerLine
	err  error
}

// EntriesForAccount opens a walk over the account's entries in [from, to).
func (ls *LedgerService) EntriesForAccount(accountID int64, from, to time.Time) (*LedgerWalk, error) {
	rows, err := ls.db.Query(`
		SELECT e.id, e.transaction_id, e.account_id, e.amount, t.date, t.description
		FROM journal_entries e
		JOIN transactions t ON t.id = e.transaction_id
		WHERE e.account_id = $1 AND t.date >= $2 AND t.date < $3
		ORDER BY t.date ASC, t.id ASC, e.id ASC`,
		accountID, from, to)
	if err != nil {
		return nil, storeError(err)
	}
	return &LedgerWalk{rows: rows}, nil
}

func (w *LedgerWalk) Next() bool {
	if !w.rows.Next() {
		w.err = w.rows.Err()
		return false
	}
	w.err = w.rows.Scan(&w.line.EntryID, &w.line.TransactionID, &w.line.AccountID, &w.line.Amount, &w.line.Date, &w.line.Description)
	return w.err == nil
}

func (w *LedgerWalk) Line() models.LedgerLine { return w.line }

func (w *LedgerWalk) Err() error { return w.err }

func (w *LedgerWalk) Close() error { return w.rows.Close() }

// companyScope pulls the company id set by the scoping middleware.
func companyScope(w http.ResponseWriter, r *http.Request) (int64, bool) {
	companyID, ok := middleware.CompanyID(r.Context())
	if !ok {
		WriteError(w, NewValidationError("missing company scope"))
		return 0, false
	}
	return companyID, true
}

// parseDate accepts YYYY-MM-DD or RFC 3339.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// yearRange returns [Jan 1 of year, Jan 1 of year+1) in UTC.
func yearRange(year int) (time.Time, time.Time) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(1, 0, 0)
}
