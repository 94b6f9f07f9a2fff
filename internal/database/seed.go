package database

import (
	"database/sql"

	"github.com/rs/zerolog/log"
)

// SeedDemoData creates a demo company with a starter chart of accounts when
// the database is empty. Controlled by the SEED_DEMO_DATA flag; a no-op on
// non-empty databases.
func SeedDemoData(db *sql.DB) error {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM companies`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var companyID int64
	err = tx.QueryRow(
		`INSERT INTO companies (name, currency) VALUES ($1, $2) RETURNING id`,
		"Demo Company", "USD",
	).Scan(&companyID)
	if err != nil {
		return err
	}

	starter := []struct {
		name string
		typ  string
	}{
		{"Cash", "ASSET"},
		{"Bank Account", "ASSET"},
		{"Accounts Receivable", "ASSET"},
		{"Equipment", "ASSET"},
		{"Accounts Payable", "LIABILITY"},
		{"Owner's Equity", "EQUITY"},
		{"Sales Revenue", "REVENUE"},
		{"Service Revenue", "REVENUE"},
		{"Salaries Expense", "EXPENSE"},
		{"Rent Expense", "EXPENSE"},
		{"Maintenance Expense", "EXPENSE"},
	}
	for _, a := range starter {
		if _, err := tx.Exec(
			`INSERT INTO accounts (company_id, name, type) VALUES ($1, $2, $3)`,
			companyID, a.name, a.typ,
		); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Info().Int64("companyId", companyID).Msg("seeded demo company and chart of accounts")
	return nil
}
