package models

import (
	"time"
)

// Product prices are in minor currency units. QuantityOnHand is decremented
// when an invoice line referencing the product is approved.
type Product struct {
	ID             int64     `json:"id" db:"id"`
	CompanyID      int64     `json:"companyId" db:"company_id"`
	Name           string    `json:"name" db:"name"`
	SKU            string    `json:"sku,omitempty" db:"sku"`
	Description    string    `json:"description,omitempty" db:"description"`
	SellingPrice   int64     `json:"sellingPrice" db:"selling_price"` // in cents
	CostPrice      int64     `json:"costPrice,omitempty" db:"cost_price"`
	QuantityOnHand int64     `json:"quantityOnHand" db:"quantity_on_hand"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}
