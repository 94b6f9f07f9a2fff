package models

import (
	"time"
)

type Customer struct {
	ID        int64     `json:"id" db:"id"`
	CompanyID int64     `json:"companyId" db:"company_id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email,omitempty" db:"email"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
