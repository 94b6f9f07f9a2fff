package services

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/balancesheet/backend/internal/models"
	"github.com/rs/zerolog/log"
)

// ReportService derives every figure from journal entries at request time.
// Nothing here is cached or stored; the ledger is the single source of truth.
type ReportService struct {
	db     *sql.DB
	ledger *LedgerService
}

func NewReportService(db *sql.DB, ledger *LedgerService) *ReportService {
	return &ReportService{db: db, ledger: ledger}
}

type trialBalanceRow struct {
	AccountID   int64  `json:"accountId"`
	AccountName string `json:"accountName"`
	AccountType string `json:"accountType"`
	Debit       int64  `json:"debit"`
	Credit      int64  `json:"credit"`
}

type trialBalanceReport struct {
	Rows        []trialBalanceRow `json:"rows"`
	TotalDebit  int64             `json:"totalDebit"`
	TotalCredit int64             `json:"totalCredit"`
	Variance    int64             `json:"variance"`
	Balanced    bool              `json:"balanced"`
}

// TrialBalance reports every account with a non-zero balance
// @Summary Trial balance
// @Description Sum each account's entries; net debit balances go in the debit column, net credit balances in the credit column. A non-zero variance indicates corrupted ledger data and is reported, never hidden
// @Tags reports
// @Produce json
// @Success 200 {object} trialBalanceReport
// @Router /reports/trial-balance [get]
func (rs *ReportService) TrialBalance(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	rows, err := rs.db.Query(`
		SELECT a.id, a.name, a.type, SUM(e.amount)
		FROM accounts a
		JOIN journal_entries e ON e.account_id = a.id
		WHERE a.company_id = $1
		GROUP BY a.id, a.name, a.type
		HAVING SUM(e.amount) <> 0
		ORDER BY a.name`,
		companyID)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}
	defer rows.Close()

	report := trialBalanceReport{Rows: []trialBalanceRow{}}
	for rows.Next() {
		var row trialBalanceRow
		var balance int64
		if err := rows.Scan(&row.AccountID, &row.AccountName, &row.AccountType, &balance); err != nil {
			WriteError(w, storeError(err))
			return
		}
		if balance > 0 {
			row.Debit = balance
		} else {
			row.Credit = -balance
		}
		report.TotalDebit += row.Debit
		report.TotalCredit += row.Credit
		report.Rows = append(report.Rows, row)
	}
	if err := rows.Err(); err != nil {
		WriteError(w, storeError(err))
		return
	}

	report.Variance = report.TotalDebit - report.TotalCredit
	report.Balanced = report.Variance == 0
	if !report.Balanced {
		log.Error().
			Int64("company_id", companyID).
			Int64("variance", report.Variance).
			Msg("trial balance does not balance, ledger data is corrupted")
	}

	WriteJSON(w, http.StatusOK, report)
}

type profitAndLossReport struct {
	Year           int   `json:"year"`
	Revenue        int64 `json:"revenue"`
	Expenses       int64 `json:"expenses"`
	NetIncome      int64 `json:"netIncome"`
	PriorRevenue   int64 `json:"priorRevenue"`
	PriorExpenses  int64 `json:"priorExpenses"`
	PriorNetIncome int64 `json:"priorNetIncome"`
}

// ProfitAndLoss reports revenue and expenses for a year with prior-year comparatives
// @Summary Profit and loss
// @Tags reports
// @Produce json
// @Param year query int false "Calendar year, defaults to the current year"
// @Success 200 {object} profitAndLossReport
// @Router /reports/pnl [get]
func (rs *ReportService) ProfitAndLoss(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	year, err := reportYear(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	report := profitAndLossReport{Year: year}
	report.Revenue, report.Expenses, err = rs.yearTotals(companyID, year)
	if err != nil {
		WriteError(w, err)
		return
	}
	report.PriorRevenue, report.PriorExpenses, err = rs.yearTotals(companyID, year-1)
	if err != nil {
		WriteError(w, err)
		return
	}
	report.NetIncome = report.Revenue - report.Expenses
	report.PriorNetIncome = report.PriorRevenue - report.PriorExpenses

	WriteJSON(w, http.StatusOK, report)
}

// yearTotals sums REVENUE and EXPENSE entries for one calendar year. Revenue
// accounts carry credit (negative) balances, so the sign flips to report a
// positive figure; expenses are already debit-positive.
func (rs *ReportService) yearTotals(companyID int64, year int) (revenue, expenses int64, err error) {
	from, to := yearRange(year)
	rows, err := rs.db.Query(`
		SELECT a.type, COALESCE(SUM(e.amount), 0)
		FROM accounts a
		JOIN journal_entries e ON e.account_id = a.id
		JOIN transactions t ON t.id = e.transaction_id
		WHERE a.company_id = $1 AND a.type IN ('REVENUE', 'EXPENSE') AND t.date >= $2 AND t.date < $3
		GROUP BY a.type`,
		companyID, from, to)
	if err != nil {
		return 0, 0, storeError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var accountType string
		var sum int64
		if err := rows.Scan(&accountType, &sum); err != nil {
			return 0, 0, storeError(err)
		}
		switch accountType {
		case string(models.AccountRevenue):
			revenue = -sum
		case string(models.AccountExpense):
			expenses = sum
		}
	}
	return revenue, expenses, rows.Err()
}

type positionAccount struct {
	AccountID   int64  `json:"accountId"`
	AccountName string `json:"accountName"`
	Balance     int64  `json:"balance"`
}

type positionSection struct {
	Accounts []positionAccount `json:"accounts"`
	Total    int64             `json:"total"`
}

type financialPositionReport struct {
	Year        int             `json:"year"`
	Assets      positionSection `json:"assets"`
	Liabilities positionSection `json:"liabilities"`
	Equity      positionSection `json:"equity"`
	Revenue     positionSection `json:"revenue"`
	Expenses    positionSection `json:"expenses"`
	NetIncome   int64           `json:"netIncome"`
}

// DetailedFinancialPosition reports assets, liabilities and equity per account
// @Summary Detailed financial position
// @Description Per-account sums of entries dated within the requested year, grouped by account type. Credit-normal balances are reported as positive numbers; the year's net income closes into equity
// @Tags reports
// @Produce json
// @Param year query int false "Calendar year, defaults to the current year"
// @Success 200 {object} financialPositionReport
// @Router /financial-position/detailed [get]
func (rs *ReportService) DetailedFinancialPosition(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	year, err := reportYear(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	from, to := yearRange(year)

	rows, err := rs.db.Query(`
		SELECT a.id, a.name, a.type, SUM(e.amount)
		FROM accounts a
		JOIN journal_entries e ON e.account_id = a.id
		JOIN transactions t ON t.id = e.transaction_id
		WHERE a.company_id = $1 AND t.date >= $2 AND t.date < $3
		GROUP BY a.id, a.name, a.type
		HAVING SUM(e.amount) <> 0
		ORDER BY a.name`,
		companyID, from, to)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}
	defer rows.Close()

	report := financialPositionReport{
		Year:        year,
		Assets:      positionSection{Accounts: []positionAccount{}},
		Liabilities: positionSection{Accounts: []positionAccount{}},
		Equity:      positionSection{Accounts: []positionAccount{}},
		Revenue:     positionSection{Accounts: []positionAccount{}},
		Expenses:    positionSection{Accounts: []positionAccount{}},
	}
	for rows.Next() {
		var acc positionAccount
		var accountType string
		var balance int64
		if err := rows.Scan(&acc.AccountID, &acc.AccountName, &accountType, &balance); err != nil {
			WriteError(w, storeError(err))
			return
		}
		switch models.AccountType(accountType) {
		case models.AccountAsset:
			acc.Balance = balance
			report.Assets.Accounts = append(report.Assets.Accounts, acc)
			report.Assets.Total += acc.Balance
		case models.AccountLiability:
			acc.Balance = -balance
			report.Liabilities.Accounts = append(report.Liabilities.Accounts, acc)
			report.Liabilities.Total += acc.Balance
		case models.AccountEquity:
			acc.Balance = -balance
			report.Equity.Accounts = append(report.Equity.Accounts, acc)
			report.Equity.Total += acc.Balance
		case models.AccountRevenue:
			acc.Balance = -balance
			report.Revenue.Accounts = append(report.Revenue.Accounts, acc)
			report.Revenue.Total += acc.Balance
		case models.AccountExpense:
			acc.Balance = balance
			report.Expenses.Accounts = append(report.Expenses.Accounts, acc)
			report.Expenses.Total += acc.Balance
		}
	}
	if err := rows.Err(); err != nil {
		WriteError(w, storeError(err))
		return
	}

	report.NetIncome = report.Revenue.Total - report.Expenses.Total
	report.Equity.Total += report.NetIncome

	WriteJSON(w, http.StatusOK, report)
}

type generalLedgerLine struct {
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Debit       int64     `json:"debit"`
	Credit      int64     `json:"credit"`
	Balance     int64     `json:"balance"`
}

type generalLedgerReport struct {
	AccountID   int64               `json:"accountId"`
	AccountName string              `json:"accountName"`
	Year        int                 `json:"year"`
	Lines       []generalLedgerLine `json:"lines"`
	Closing     int64               `json:"closing"`
}

// GeneralLedger reports one account's entries with a running balance
// @Summary General ledger for an account
// @Tags reports
// @Produce json
// @Param accountId path int true "Account ID"
// @Param year query int false "Calendar year, defaults to the current year"
// @Success 200 {object} generalLedgerReport
// @Failure 404 {object} ErrorResponse
// @Router /reports/general-ledger/{accountId} [get]
func (rs *ReportService) GeneralLedger(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	accountID, err := pathID(r, "accountId")
	if err != nil {
		WriteError(w, &NotFoundError{Resource: "account"})
		return
	}

	var accountName string
	err = rs.db.QueryRow(`
		SELECT name FROM accounts WHERE id = $1 AND company_id = $2`,
		accountID, companyID,
	).Scan(&accountName)
	if err == sql.ErrNoRows {
		WriteError(w, &NotFoundError{Resource: "account"})
		return
	}
	if err != nil {
		WriteError(w, storeError(err))
		return
	}

	year, err := reportYear(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	from, to := yearRange(year)

	walk, err := rs.ledger.EntriesForAccount(accountID, from, to)
	if err != nil {
		WriteError(w, err)
		return
	}
	defer walk.Close()

	report := generalLedgerReport{
		AccountID:   accountID,
		AccountName: accountName,
		Year:        year,
		Lines:       []generalLedgerLine{},
	}
	for walk.Next() {
		entry := walk.Line()
		line := generalLedgerLine{
			Date:        entry.Date,
			Description: entry.Description,
		}
		if entry.Amount > 0 {
			line.Debit = entry.Amount
		} else {
			line.Credit = -entry.Amount
		}
		report.Closing += entry.Amount
		line.Balance = report.Closing
		report.Lines = append(report.Lines, line)
	}
	if err := walk.Err(); err != nil {
		WriteError(w, storeError(err))
		return
	}

	WriteJSON(w, http.StatusOK, report)
}

// reportYear reads the optional ?year= query, defaulting to the current year.
func reportYear(r *http.Request) (int, error) {
	yearStr := r.URL.Query().Get("year")
	if yearStr == "" {
		return time.Now().Year(), nil
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return 0, NewValidationError("invalid year %q", yearStr)
	}
	return year, nil
}
