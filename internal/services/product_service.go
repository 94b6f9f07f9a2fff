package services

import (
	"database/sql"
	"net/http"

	"github.com/balancesheet/backend/internal/models"
)

type ProductService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewProductService(db *sql.DB) *ProductService {
	return &ProductService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// CreateProduct adds a product
// @Summary Create a product
// @Description Prices are in minor currency units
// @Tags products
// @Accept json
// @Produce json
// @Param product body object{name=string,sku=string,description=string,sellingPrice=int,costPrice=int,quantityOnHand=int} true "Product data"
// @Success 201 {object} models.Product
// @Failure 400 {object} ErrorResponse
// @Router /products [post]
func (ps *ProductService) CreateProduct(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	var req struct {
		Name           string `json:"name" validate:"required"`
		SKU            string `json:"sku"`
		Description    string `json:"description"`
		SellingPrice   int64  `json:"sellingPrice" validate:"gte=0"`
		CostPrice      int64  `json:"costPrice" validate:"gte=0"`
		QuantityOnHand int64  `json:"quantityOnHand" validate:"gte=0"`
	}
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := ps.validator.ValidateStruct(&req); err != nil {
		WriteError(w, err)
		return
	}

	product := models.Product{
		CompanyID:      companyID,
		Name:           req.Name,
		SKU:            req.SKU,
		Description:    req.Description,
		SellingPrice:   req.SellingPrice,
		CostPrice:      req.CostPrice,
		QuantityOnHand: req.QuantityOnHand,
	}
	err := ps.db.QueryRow(`
		INSERT INTO products (company_id, name, sku, description, selling_price, cost_price, quantity_on_hand)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		companyID, req.Name, req.SKU, req.Description, req.SellingPrice, req.CostPrice, req.QuantityOnHand,
	).Scan(&product.ID, &product.CreatedAt)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}

	WriteJSON(w, http.StatusCreated, product)
}

// ListProducts lists the company's products
// @Summary List products
// @Tags products
// @Produce json
// @Success 200 {array} models.Product
// @Router /products [get]
func (ps *ProductService) ListProducts(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	rows, err := ps.db.Query(`
		SELECT id, company_id, name, sku, description, selling_price, cost_price, quantity_on_hand, created_at
		FROM products
		WHERE company_id = $1
		ORDER BY id`,
		companyID)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Name, &p.SKU, &p.Description, &p.SellingPrice, &p.CostPrice, &p.QuantityOnHand, &p.CreatedAt); err != nil {
			WriteError(w, storeError(err))
			return
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		WriteError(w, storeError(err))
		return
	}

	WriteJSON(w, http.StatusOK, products)
}
