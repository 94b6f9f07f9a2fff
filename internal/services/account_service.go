package services

import (
	"database/sql"
	"net/http"

	"github.com/balancesheet/backend/internal/models"
	"github.com/lib/pq"
)

// AccountService owns the chart of accounts. Accounts referenced by journal
// entries are never deleted; there is no delete endpoint at all, only the
// active flag.
type AccountService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewAccountService(db *sql.DB) *AccountService {
	return &AccountService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// CreateAccount adds an account to the company's chart
// @Summary Create an account
// @Description Create a ledger account; names are unique per company
// @Tags accounts
// @Accept json
// @Produce json
// @Param account body object{name=string,type=string} true "Account data"
// @Success 201 {object} models.Account
// @Failure 400 {object} ErrorResponse
// @Router /accounts [post]
func (as *AccountService) CreateAccount(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name" validate:"required"`
		Type string `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	}
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := as.validator.ValidateStruct(&req); err != nil {
		WriteError(w, err)
		return
	}

	account := models.Account{
		CompanyID: companyID,
		Name:      req.Name,
		Type:      models.AccountType(req.Type),
		Active:    true,
	}
	err := as.db.QueryRow(`
		INSERT INTO accounts (company_id, name, type)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		companyID, req.Name, req.Type,
	).Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "accounts_company_name_key") {
			WriteError(w, NewValidationError("account name %q already in use", req.Name))
			return
		}
		WriteError(w, storeError(err))
		return
	}

	WriteJSON(w, http.StatusCreated, account)
}

// ListAccounts lists the company's chart of accounts
// @Summary List accounts
// @Description List all accounts ordered by creation
// @Tags accounts
// @Produce json
// @Success 200 {array} models.Account
// @Router /accounts [get]
func (as *AccountService) ListAccounts(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	rows, err := as.db.Query(`
		SELECT id, company_id, name, type, active, created_at
		FROM accounts
		WHERE company_id = $1
		ORDER BY id`,
		companyID)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.Name, &a.Type, &a.Active, &a.CreatedAt); err != nil {
			WriteError(w, storeError(err))
			return
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		WriteError(w, storeError(err))
		return
	}

	WriteJSON(w, http.StatusOK, accounts)
}

// accountsBelongToCompany verifies a set of accounts against the company
// scope outside a posting transaction.
func accountsBelongToCompany(db *sql.DB, companyID int64, accountIDs ...int64) error {
	ids := make(map[int64]bool, len(accountIDs))
	distinct := make([]int64, 0, len(accountIDs))
	for _, id := range accountIDs {
		if !ids[id] {
			ids[id] = true
			distinct = append(distinct, id)
		}
	}

	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM accounts
		WHERE id = ANY($1) AND company_id = $2 AND active`,
		pq.Array(distinct), companyID,
	).Scan(&count)
	if err != nil {
		return storeError(err)
	}
	if count != len(distinct) {
		return &NotFoundError{Resource: "account"}
	}
	return nil
}
