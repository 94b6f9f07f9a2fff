package models

// Template pre-populates a manual transaction form with a known set of
// entry lines. It carries no amounts and never posts on its own.
type Template struct {
	ID          int64           `json:"id" db:"id"`
	CompanyID   int64           `json:"companyId" db:"company_id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Entries     []TemplateEntry `json:"entries"`
}

// TemplateEntry is one pre-filled line of a template. Type is a UI hint
// ("DEBIT" or "CREDIT"), not enforced at posting time.
type TemplateEntry struct {
	ID          int64  `json:"id" db:"id"`
	TemplateID  int64  `json:"templateId" db:"template_id"`
	AccountID   int64  `json:"accountId" db:"account_id"`
	Description string `json:"description" db:"description"`
	Type        string `json:"type" db:"type"`
}
