// Package template models stored per-form XML templates.
package template

import (
	"context"
	"strings"
	"time"
)

// FormTemplate is an administered XML template for one form, legal form and
// tax year.
type FormTemplate struct {
	ID          string    `json:"id"`
	FormType    string    `json:"form_type"`
	LegalForm   string    `json:"legal_form"`
	TaxYear     int       `json:"tax_year"`
	XMLTemplate string    `json:"xml_template"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Key is the composite lookup key of a template.
type Key struct {
	FormType  string
	LegalForm string
	TaxYear   int
}

// NormalizeKey upper-cases the form type and trims both names so lookups are
// insensitive to caller formatting.
func NormalizeKey(formType, legalForm string, taxYear int) Key {
	return Key{
		FormType:  strings.ToUpper(strings.TrimSpace(formType)),
		LegalForm: strings.TrimSpace(legalForm),
		TaxYear:   taxYear,
	}
}

type Repository interface {
	// FindActive returns the active template for the exact key or a NotFound
	// error.
	FindActive(ctx context.Context, key Key) (*FormTemplate, error)
	CountActive(ctx context.Context) (int64, error)
	Save(ctx context.Context, t *FormTemplate) error
}
