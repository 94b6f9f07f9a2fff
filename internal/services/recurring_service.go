package services

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/balancesheet/backend/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// recurringFiredTTL keeps the Redis claim alive past the end of the period so
// a tick near midnight on the last day cannot double-fire.
const recurringFiredTTL = 45 * 24 * time.Hour

// RecurringService manages monthly recurring items (payroll, rent, machine
// maintenance) and the scheduler that fires them. Idempotency is owned by the
// recurring_runs (item, period) unique constraint; Redis is only a fast path
// and the service runs fine without it.
type RecurringService struct {
	db        *sql.DB
	ledger    *LedgerService
	cache     *redis.Client
	validator *ValidationHelper
	audit     *AuditLogger
}

func NewRecurringService(db *sql.DB, ledger *LedgerService, cache *redis.Client) *RecurringService {
	return &RecurringService{
		db:        db,
		ledger:    ledger,
		cache:     cache,
		validator: NewValidationHelper(),
		audit:     NewAuditLogger(),
	}
}

// CreateRecurringItem registers a monthly recurring posting
// @Summary Create a recurring item
// @Description Register an item that posts one debit/credit pair on its day of each month
// @Tags recurring
// @Accept json
// @Produce json
// @Param item body object{name=string,description=string,category=string,amount=int,dayOfMonth=int,debitAccountId=int,creditAccountId=int,startDate=string,endDate=string} true "Recurring item data"
// @Success 201 {object} models.RecurringItem
// @Failure 400 {object} ErrorResponse
// @Router /recurring [post]
func (rs *RecurringService) CreateRecurringItem(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	var req struct {
		Name            string `json:"name" validate:"required"`
		Description     string `json:"description"`
		Category        string `json:"category" validate:"required,oneof=TEAM BUILDING MACHINE"`
		Amount          int64  `json:"amount" validate:"required,gt=0"`
		DayOfMonth      int    `json:"dayOfMonth" validate:"required,min=1,max=28"`
		DebitAccountID  int64  `json:"debitAccountId" validate:"required"`
		CreditAccountID int64  `json:"creditAccountId" validate:"required"`
		StartDate       string `json:"startDate"`
		EndDate         string `json:"endDate"`
	}
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := rs.validator.ValidateStruct(&req); err != nil {
		WriteError(w, err)
		return
	}

	if err := accountsBelongToCompany(rs.db, companyID, req.DebitAccountID, req.CreditAccountID); err != nil {
		WriteError(w, err)
		return
	}

	var startDate, endDate *time.Time
	if req.StartDate != "" {
		t, err := parseDate(req.StartDate)
		if err != nil {
			WriteError(w, NewValidationError("invalid start date %q, expected YYYY-MM-DD", req.StartDate))
			return
		}
		startDate = &t
	}
	if req.EndDate != "" {
		t, err := parseDate(req.EndDate)
		if err != nil {
			WriteError(w, NewValidationError("invalid end date %q, expected YYYY-MM-DD", req.EndDate))
			return
		}
		endDate = &t
	}
	if startDate != nil && endDate != nil && endDate.Before(*startDate) {
		WriteError(w, NewValidationError("end date cannot precede the start date"))
		return
	}

	item := models.RecurringItem{
		CompanyID:       companyID,
		Name:            req.Name,
		Description:     req.Description,
		Category:        req.Category,
		Amount:          req.Amount,
		DayOfMonth:      req.DayOfMonth,
		DebitAccountID:  req.DebitAccountID,
		CreditAccountID: req.CreditAccountID,
		StartDate:       startDate,
		EndDate:         endDate,
		Active:          true,
	}
	err := rs.db.QueryRow(`
		INSERT INTO recurring_items (company_id, name, description, category, amount, day_of_month, debit_account_id, credit_account_id, start_date, end_date, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, true)
		RETURNING id, created_at`,
		companyID, req.Name, req.Description, req.Category, req.Amount, req.DayOfMonth, req.DebitAccountID, req.CreditAccountID, startDate, endDate,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}

	WriteJSON(w, http.StatusCreated, item)
}

// ListRecurringItems lists the company's recurring items
// @Summary List recurring items
// @Tags recurring
// @Produce json
// @Success 200 {array} models.RecurringItem
// @Router /recurring [get]
func (rs *RecurringService) ListRecurringItems(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	rows, err := rs.db.Query(`
		SELECT id, company_id, name, description, category, amount, day_of_month, debit_account_id, credit_account_id, start_date, end_date, active, created_at
		FROM recurring_items
		WHERE company_id = $1
		ORDER BY id`,
		companyID)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}
	defer rows.Close()

	items := []models.RecurringItem{}
	for rows.Next() {
		var item models.RecurringItem
		if err := rows.Scan(&item.ID, &item.CompanyID, &item.Name, &item.Description, &item.Category, &item.Amount, &item.DayOfMonth, &item.DebitAccountID, &item.CreditAccountID, &item.StartDate, &item.EndDate, &item.Active, &item.CreatedAt); err != nil {
			WriteError(w, storeError(err))
			return
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		WriteError(w, storeError(err))
		return
	}

	WriteJSON(w, http.StatusOK, items)
}

// DeleteRecurringItem deactivates a recurring item
// @Summary Deactivate a recurring item
// @Description Stop future firings; transactions already posted by the item are kept
// @Tags recurring
// @Param id path int true "Recurring item ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /recurring/{id} [delete]
func (rs *RecurringService) DeleteRecurringItem(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	itemID, err := pathID(r, "id")
	if err != nil {
		WriteError(w, &NotFoundError{Resource: "recurring item"})
		return
	}

	result, err := rs.db.Exec(`
		UPDATE recurring_items SET active = false WHERE id = $1 AND company_id = $2`,
		itemID, companyID)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		WriteError(w, &NotFoundError{Resource: "recurring item"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Run ticks the scheduler until the context is cancelled. One immediate pass,
// then one per interval.
func (rs *RecurringService) Run(ctx context.Context, interval time.Duration) {
	log.Info().Dur("interval", interval).Msg("recurring scheduler started")

	if err := rs.ProcessDue(ctx, time.Now()); err != nil {
		log.Error().Err(err).Msg("recurring pass failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("recurring scheduler stopped")
			return
		case now := <-ticker.C:
			if err := rs.ProcessDue(ctx, now); err != nil {
				log.Error().Err(err).Msg("recurring pass failed")
			}
		}
	}
}

// ProcessDue fires every active item whose day of month matches now and whose
// start/end window contains now. Items that already fired this period are
// skipped; one failing item never blocks the rest.
func (rs *RecurringService) ProcessDue(ctx context.Context, now time.Time) error {
	rows, err := rs.db.Query(`
		SELECT id, company_id, name, description, category, amount, day_of_month, debit_account_id, credit_account_id, start_date, end_date, active
		FROM recurring_items
		WHERE active
		  AND day_of_month = $1
		  AND (start_date IS NULL OR start_date <= $2)
		  AND (end_date IS NULL OR end_date >= $2::date)
		ORDER BY id`,
		now.Day(), now)
	if err != nil {
		return storeError(err)
	}
	defer rows.Close()

	items := []models.RecurringItem{}
	for rows.Next() {
		var item models.RecurringItem
		if err := rows.Scan(&item.ID, &item.CompanyID, &item.Name, &item.Description, &item.Category, &item.Amount, &item.DayOfMonth, &item.DebitAccountID, &item.CreditAccountID, &item.StartDate, &item.EndDate, &item.Active); err != nil {
			return storeError(err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return storeError(err)
	}

	period := now.Format("2006-01")
	for _, item := range items {
		if err := rs.fireItem(ctx, item, now, period); err != nil {
			rs.audit.LogError(item.CompanyID, "RECURRING", err)
		}
	}
	return nil
}

// fireItem posts one debit/credit pair for the item's current period. The
// (item, period) claim row and the posting commit together, so a crash between
// them cannot leave a claimed-but-unposted period. A failed posting releases
// the Redis claim so the next tick retries against the database constraint.
func (rs *RecurringService) fireItem(ctx context.Context, item models.RecurringItem, now time.Time, period string) error {
	var claimKey string
	if rs.cache != nil {
		claimKey = fmt.Sprintf("recurring:fired:%d:%s", item.ID, period)
		set, err := rs.cache.SetNX(ctx, claimKey, 1, recurringFiredTTL).Result()
		if err != nil {
			log.Warn().Err(err).Int64("item", item.ID).Msg("recurring cache unavailable, relying on database claim")
			claimKey = ""
		} else if !set {
			return nil
		}
	}

	err := rs.postItem(item, now, period)
	if err != nil && claimKey != "" {
		if delErr := rs.cache.Del(ctx, claimKey).Err(); delErr != nil {
			log.Warn().Err(delErr).Str("key", claimKey).Msg("failed to release recurring claim")
		}
	}
	return err
}

func (rs *RecurringService) postItem(item models.RecurringItem, now time.Time, period string) error {
	dbTx, err := rs.db.Begin()
	if err != nil {
		return storeError(err)
	}
	defer dbTx.Rollback()

	result, err := dbTx.Exec(`
		INSERT INTO recurring_runs (recurring_item_id, period)
		VALUES ($1, $2)
		ON CONFLICT ON CONSTRAINT recurring_runs_item_period_key DO NOTHING`,
		item.ID, period)
	if err != nil {
		return storeError(err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		// Another tick or instance already owns this period.
		return nil
	}

	description := fmt.Sprintf("Auto: %s (%s)", item.Description, item.Name)
	entries := []models.Entry{
		{AccountID: item.DebitAccountID, Amount: item.Amount},
		{AccountID: item.CreditAccountID, Amount: -item.Amount},
	}
	tx, err := rs.ledger.PostEntriesTx(dbTx, item.CompanyID, description, now, "", entries)
	if err != nil {
		return err
	}

	_, err = dbTx.Exec(`
		UPDATE recurring_runs SET transaction_id = $1
		WHERE recurring_item_id = $2 AND period = $3`,
		tx.ID, item.ID, period)
	if err != nil {
		return storeError(err)
	}

	if err := dbTx.Commit(); err != nil {
		return storeError(err)
	}

	rs.audit.LogPosting(item.CompanyID, tx.ID, "RECURRING", description, item.Amount)
	return nil
}
