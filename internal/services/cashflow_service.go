package services

import (
	"database/sql"
	"net/http"
	"time"
)

// cashFlowWindowDays is the lookback and lookahead horizon for both endpoints.
const cashFlowWindowDays = 30

// CashFlowService reports the recent cash position and a short-horizon
// forecast. Cash means the sum of ASSET account entries; history is exact,
// the forecast is an estimate built from open invoices and scheduled
// recurring items.
type CashFlowService struct {
	db *sql.DB
}

func NewCashFlowService(db *sql.DB) *CashFlowService {
	return &CashFlowService{db: db}
}

type cashFlowPoint struct {
	Date    string `json:"date"`
	Balance int64  `json:"balance"`
}

type cashFlowHistory struct {
	Points  []cashFlowPoint `json:"points"`
	Current int64           `json:"current"`
}

// History reports the daily cash balance for the last 30 days
// @Summary Cash balance history
// @Description Daily closing balance of all ASSET accounts, derived by walking entry deltas back from the current balance
// @Tags cash-flow
// @Produce json
// @Success 200 {object} cashFlowHistory
// @Router /cash-flow/history [get]
func (cs *CashFlowService) History(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	from := today.AddDate(0, 0, -(cashFlowWindowDays - 1))
	tomorrow := today.AddDate(0, 0, 1)

	// Future-dated postings belong to the forecast, not the history.
	var current int64
	err := cs.db.QueryRow(`
		SELECT COALESCE(SUM(e.amount), 0)
		FROM journal_entries e
		JOIN accounts a ON a.id = e.account_id
		JOIN transactions t ON t.id = e.transaction_id
		WHERE a.company_id = $1 AND a.type = 'ASSET' AND t.date < $2`,
		companyID, tomorrow,
	).Scan(&current)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}

	rows, err := cs.db.Query(`
		SELECT t.date::date, SUM(e.amount)
		FROM journal_entries e
		JOIN accounts a ON a.id = e.account_id
		JOIN transactions t ON t.id = e.transaction_id
		WHERE a.company_id = $1 AND a.type = 'ASSET' AND t.date >= $2 AND t.date < $3
		GROUP BY t.date::date`,
		companyID, from, tomorrow)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}
	defer rows.Close()

	deltas := map[string]int64{}
	for rows.Next() {
		var day time.Time
		var delta int64
		if err := rows.Scan(&day, &delta); err != nil {
			WriteError(w, storeError(err))
			return
		}
		deltas[day.Format("2006-01-02")] = delta
	}
	if err := rows.Err(); err != nil {
		WriteError(w, storeError(err))
		return
	}

	// Walk backwards from today: the closing balance of day d-1 is the
	// closing balance of day d minus day d's delta.
	points := make([]cashFlowPoint, cashFlowWindowDays)
	balance := current
	for i := cashFlowWindowDays - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, i-(cashFlowWindowDays-1))
		key := day.Format("2006-01-02")
		points[i] = cashFlowPoint{Date: key, Balance: balance}
		balance -= deltas[key]
	}

	WriteJSON(w, http.StatusOK, cashFlowHistory{Points: points, Current: current})
}

type forecastItem struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
}

type cashFlowForecast struct {
	Inflows       []forecastItem `json:"inflows"`
	Outflows      []forecastItem `json:"outflows"`
	TotalInflow   int64          `json:"totalInflow"`
	TotalOutflow  int64          `json:"totalOutflow"`
	NetChange     int64          `json:"netChange"`
	HorizonDays   int            `json:"horizonDays"`
	EstimatesOnly bool           `json:"estimatesOnly"`
}

// Forecast estimates cash movement for the next 30 days
// @Summary Cash flow forecast
// @Description Expected inflows are open POSTED invoices due in the window; expected outflows are active recurring items firing in the window. Estimates only, nothing is posted
// @Tags cash-flow
// @Produce json
// @Success 200 {object} cashFlowForecast
// @Router /cash-flow/forecast [get]
func (cs *CashFlowService) Forecast(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	horizon := today.AddDate(0, 0, cashFlowWindowDays)

	forecast := cashFlowForecast{
		Inflows:       []forecastItem{},
		Outflows:      []forecastItem{},
		HorizonDays:   cashFlowWindowDays,
		EstimatesOnly: true,
	}

	rows, err := cs.db.Query(`
		SELECT i.invoice_number, i.due_date, i.total_amount, COALESCE(SUM(p.amount), 0)
		FROM invoices i
		LEFT JOIN payments p ON p.invoice_id = i.id
		WHERE i.company_id = $1 AND i.status = 'POSTED' AND i.due_date >= $2 AND i.due_date < $3
		GROUP BY i.id, i.invoice_number, i.due_date, i.total_amount
		ORDER BY i.due_date, i.id`,
		companyID, today, horizon)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}
	defer rows.Close()

	for rows.Next() {
		var number string
		var dueDate time.Time
		var total, paid int64
		if err := rows.Scan(&number, &dueDate, &total, &paid); err != nil {
			WriteError(w, storeError(err))
			return
		}
		outstanding := total - paid
		if outstanding <= 0 {
			continue
		}
		forecast.Inflows = append(forecast.Inflows, forecastItem{
			Date:        dueDate.Format("2006-01-02"),
			Description: "Invoice #" + number,
			Amount:      outstanding,
		})
		forecast.TotalInflow += outstanding
	}
	if err := rows.Err(); err != nil {
		WriteError(w, storeError(err))
		return
	}

	itemRows, err := cs.db.Query(`
		SELECT r.name, r.amount, r.day_of_month, r.start_date, r.end_date,
		       EXISTS (
		           SELECT 1 FROM recurring_runs run
		           WHERE run.recurring_item_id = r.id AND run.period = $2
		       )
		FROM recurring_items r
		WHERE r.company_id = $1 AND r.active
		ORDER BY r.id`,
		companyID, today.Format("2006-01"))
	if err != nil {
		WriteError(w, storeError(err))
		return
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var name string
		var amount int64
		var dayOfMonth int
		var startDate, endDate *time.Time
		var firedThisPeriod bool
		if err := itemRows.Scan(&name, &amount, &dayOfMonth, &startDate, &endDate, &firedThisPeriod); err != nil {
			WriteError(w, storeError(err))
			return
		}

		next := nextFiring(today, dayOfMonth, firedThisPeriod)
		if !next.Before(horizon) {
			continue
		}
		if startDate != nil && next.Before(*startDate) {
			continue
		}
		if endDate != nil && next.After(*endDate) {
			continue
		}

		forecast.Outflows = append(forecast.Outflows, forecastItem{
			Date:        next.Format("2006-01-02"),
			Description: name,
			Amount:      amount,
		})
		forecast.TotalOutflow += amount
	}
	if err := itemRows.Err(); err != nil {
		WriteError(w, storeError(err))
		return
	}

	forecast.NetChange = forecast.TotalInflow - forecast.TotalOutflow
	WriteJSON(w, http.StatusOK, forecast)
}

// nextFiring returns the item's next scheduled date on or after today. An item
// already fired in the current period waits for next month, as does one whose
// day has passed.
func nextFiring(today time.Time, dayOfMonth int, firedThisPeriod bool) time.Time {
	candidate := time.Date(today.Year(), today.Month(), dayOfMonth, 0, 0, 0, 0, time.UTC)
	if firedThisPeriod || candidate.Before(today) {
		candidate = candidate.AddDate(0, 1, 0)
	}
	return candidate
}
