package services

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/balancesheet/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
)

// TemplateService owns transaction templates: reusable entry skeletons used
// to pre-fill manual transactions. Templates never post anything.
type TemplateService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewTemplateService(db *sql.DB) *TemplateService {
	return &TemplateService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// ListTemplates lists the company's templates with their entries
// @Summary List templates
// @Tags templates
// @Produce json
// @Success 200 {array} models.Template
// @Router /templates [get]
func (ts *TemplateService) ListTemplates(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	rows, err := ts.db.Query(`
		SELECT id, company_id, name, description
		FROM templates
		WHERE company_id = $1
		ORDER BY id`,
		companyID)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}
	defer rows.Close()

	templates := []models.Template{}
	ids := []int64{}
	for rows.Next() {
		var t models.Template
		if err := rows.Scan(&t.ID, &t.CompanyID, &t.Name, &t.Description); err != nil {
			WriteError(w, storeError(err))
			return
		}
		t.Entries = []models.TemplateEntry{}
		templates = append(templates, t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		WriteError(w, storeError(err))
		return
	}

	if len(ids) > 0 {
		entryRows, err := ts.db.Query(`
			SELECT id, template_id, account_id, description, type
			FROM template_entries
			WHERE template_id = ANY($1)
			ORDER BY id`,
			pq.Array(ids))
		if err != nil {
			WriteError(w, storeError(err))
			return
		}
		defer entryRows.Close()

		byTemplate := make(map[int64]*models.Template, len(templates))
		for i := range templates {
			byTemplate[templates[i].ID] = &templates[i]
		}
		for entryRows.Next() {
			var e models.TemplateEntry
			if err := entryRows.Scan(&e.ID, &e.TemplateID, &e.AccountID, &e.Description, &e.Type); err != nil {
				WriteError(w, storeError(err))
				return
			}
			if t, ok := byTemplate[e.TemplateID]; ok {
				t.Entries = append(t.Entries, e)
			}
		}
		if err := entryRows.Err(); err != nil {
			WriteError(w, storeError(err))
			return
		}
	}

	WriteJSON(w, http.StatusOK, templates)
}

// CreateTemplate creates a template with its entry skeleton
// @Summary Create a template
// @Tags templates
// @Accept json
// @Produce json
// @Param template body object{name=string,description=string,entries=[]object{accountId=int,description=string,type=string}} true "Template data"
// @Success 201 {object} models.Template
// @Failure 400 {object} ErrorResponse
// @Router /templates [post]
func (ts *TemplateService) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	var req struct {
		Name        string `json:"name" validate:"required"`
		Description string `json:"description"`
		Entries     []struct {
			AccountID   int64  `json:"accountId" validate:"required"`
			Description string `json:"description"`
			Type        string `json:"type" validate:"required,oneof=DEBIT CREDIT"`
		} `json:"entries" validate:"required,min=1,dive"`
	}
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := ts.validator.ValidateStruct(&req); err != nil {
		WriteError(w, err)
		return
	}

	accountIDs := make([]int64, 0, len(req.Entries))
	for _, e := range req.Entries {
		accountIDs = append(accountIDs, e.AccountID)
	}
	if err := accountsBelongToCompany(ts.db, companyID, accountIDs...); err != nil {
		WriteError(w, err)
		return
	}

	dbTx, err := ts.db.Begin()
	if err != nil {
		WriteError(w, storeError(err))
		return
	}
	defer dbTx.Rollback()

	template := models.Template{
		CompanyID:   companyID,
		Name:        req.Name,
		Description: req.Description,
	}
	err = dbTx.QueryRow(`
		INSERT INTO templates (company_id, name, description)
		VALUES ($1, $2, $3)
		RETURNING id`,
		companyID, req.Name, req.Description,
	).Scan(&template.ID)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}

	for _, e := range req.Entries {
		entry := models.TemplateEntry{
			TemplateID:  template.ID,
			AccountID:   e.AccountID,
			Description: e.Description,
			Type:        e.Type,
		}
		err := dbTx.QueryRow(`
			INSERT INTO template_entries (template_id, account_id, description, type)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			template.ID, e.AccountID, e.Description, e.Type,
		).Scan(&entry.ID)
		if err != nil {
			WriteError(w, storeError(err))
			return
		}
		template.Entries = append(template.Entries, entry)
	}

	if err := dbTx.Commit(); err != nil {
		WriteError(w, storeError(err))
		return
	}

	WriteJSON(w, http.StatusCreated, template)
}

// DeleteTemplate removes a template and its entries
// @Summary Delete a template
// @Tags templates
// @Param id path int true "Template ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /templates/{id} [delete]
func (ts *TemplateService) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyScope(w, r)
	if !ok {
		return
	}

	templateID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		WriteError(w, &NotFoundError{Resource: "template"})
		return
	}

	result, err := ts.db.Exec(`
		DELETE FROM templates WHERE id = $1 AND company_id = $2`,
		templateID, companyID)
	if err != nil {
		WriteError(w, storeError(err))
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		WriteError(w, &NotFoundError{Resource: "template"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
