package services

import (
	"database/sql"
	"net/http"

	"github.com/balancesheet/backend/internal/models"
)

type CustomerService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewCustomerService(db *sql.DB) *CustomerService {
	return &CustomerService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// CreateCustomer adds a customer
// @Summary Create a customer
// @Tags customers
// @Accept json
// @Produce json
// @Param customer body object{name=string,email=string} true "Customer data"
// @Success 201 {object} models.Customer
// @Failure 400 {object} ErrorResponse
// @Router /customers [post]
func (cs *CustomerService) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	var req struct {
		Name  string `json:"name" validate:"required"`
		Email string `json:"email" validate:"omitempty,email"`
	}
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := cs.validator.ValidateStruct(&req); err != nil {
		WriteError(w, err)
		return
	}

	customer := models.Customer{
		CompanyID: companyID,
		Name:      req.Name,
		Email:     req.Email,
	}
	err := cs.db.QueryRow(`
		INSERT INTO customers (company_id, name, email)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		companyID, req.Name, req.Email,
	).Scan(&customer.ID, &customer.CreatedAt)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}

	WriteJSON(w, http.StatusCreated, customer)
}

// ListCustomers lists the company's customers
// @Summary List customers
// @Tags customers
// @Produce json
// @Success 200 {array} models.Customer
// @Router /customers [get]
func (cs *CustomerService) ListCustomers(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	rows, err := cs.db.Query(`
		SELECT id, company_id, name, email, created_at
		FROM customers
		WHERE company_id = $1
		ORDER BY id`,
		companyID)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}
	defer rows.Close()

	customers := []models.Customer{}
	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Email, &c.CreatedAt); err != nil {
			WriteError(w, storeError(err))
			return
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		WriteError(w, storeError(err))
		return
	}

	WriteJSON(w, http.StatusOK, customers)
}
