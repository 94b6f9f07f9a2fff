package services

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"

	"github.com/balancesheet/backend/internal/middleware"
	"github.com/balancesheet/backend/internal/models"
	"github.com/go-chi/chi/v5"
)

type CompanyService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewCompanyService(db *sql.DB) *CompanyService {
	return &CompanyService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// GetCompany returns the scoped company
// @Summary Get company
// @Tags companies
// @Produce json
// @Param id path int true "Company ID"
// @Success 200 {object} models.Company
// @Failure 404 {object} ErrorResponse
// @Router /companies/{id} [get]
func (cs *CompanyService) GetCompany(w http.ResponseWriter, r *http.Request) {
	company, err := cs.fetchCompany(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, company)
}

// UpdateCompany updates the company's display currency
// @Summary Update company currency
// @Description Change the display currency; historical amounts are never converted
// @Tags companies
// @Accept json
// @Produce json
// @Param id path int true "Company ID"
// @Param company body object{currency=string} true "Company data"
// @Success 200 {object} models.Company
// @Failure 400 {object} ErrorResponse
// @Router /companies/{id} [put]
func (cs *CompanyService) UpdateCompany(w http.ResponseWriter, r *http.Request) {
	company, err := cs.fetchCompany(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req struct {
		Currency string `json:"currency" validate:"required,len=3,alpha"`
	}
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := cs.validator.ValidateStruct(&req); err != nil {
		WriteError(w, err)
		return
	}

	currency := strings.ToUpper(req.Currency)
	err = cs.db.QueryRow(`
		UPDATE companies SET currency = $1 WHERE id = $2
		RETURNING currency`,
		currency, company.ID,
	).Scan(&company.Currency)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}

	WriteJSON(w, http.StatusOK, company)
}

// fetchCompany resolves the path id against the company scope; a mismatch is
// indistinguishable from a missing company.
func (cs *CompanyService) fetchCompany(r *http.Request) (*models.Company, error) {
	companyID, ok := middleware.CompanyID(r.Context())
	if !ok {
		return nil, NewValidationError("missing company scope")
	}

	pathID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || pathID != companyID {
		return nil, &NotFoundError{Resource: "company"}
	}

	var company models.Company
	err = cs.db.QueryRow(`
		SELECT id, name, currency, created_at FROM companies WHERE id = $1`,
		companyID,
	).Scan(&company.ID, &company.Name, &company.Currency, &company.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "company"}
	}
	if err != nil {
		return nil, storeError(err)
	}
	return &company, nil
}
