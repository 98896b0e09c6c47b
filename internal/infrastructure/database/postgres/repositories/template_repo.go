package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/TaxFlow/internal/domain/template"
	"github.com/turtacn/TaxFlow/internal/infrastructure/database/postgres"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/pkg/errors"
	"github.com/turtacn/TaxFlow/pkg/types/common"
)

type postgresTemplateRepo struct {
	pool   *pgxpool.Pool
	logger logging.Logger
	now    func() time.Time
}

// NewTemplateRepo returns a template.Repository. At most one template per key
// is active; saving an active template deactivates the previous one.
func NewTemplateRepo(pool *pgxpool.Pool, logger logging.Logger) template.Repository {
	return &postgresTemplateRepo{pool: pool, logger: logger, now: time.Now}
}

func (r *postgresTemplateRepo) FindActive(ctx context.Context, key template.Key) (*template.FormTemplate, error) {
	var t template.FormTemplate
	err := postgres.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, form_type, legal_form, tax_year, xml_template, is_active, created_at, updated_at
		FROM form_templates
		WHERE form_type = $1 AND legal_form = $2 AND tax_year = $3 AND is_active`,
		key.FormType, key.LegalForm, key.TaxYear,
	).Scan(&t.ID, &t.FormType, &t.LegalForm, &t.TaxYear, &t.XMLTemplate, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, postgres.MapError(err, errors.ErrCodeTemplateNotFound, "active template")
	}
	t.CreatedAt, t.UpdatedAt = t.CreatedAt.UTC(), t.UpdatedAt.UTC()
	return &t, nil
}

func (r *postgresTemplateRepo) CountActive(ctx context.Context) (int64, error) {
	var n int64
	if err := postgres.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM form_templates WHERE is_active`).Scan(&n); err != nil {
		return 0, postgres.MapError(err, errors.ErrCodeTemplateNotFound, "count active templates")
	}
	return n, nil
}

func (r *postgresTemplateRepo) Save(ctx context.Context, t *template.FormTemplate) error {
	if t == nil || t.XMLTemplate == "" {
		return errors.InvalidParam("template body is required")
	}
	key := template.NormalizeKey(t.FormType, t.LegalForm, t.TaxYear)
	if key.FormType == "" || key.TaxYear == 0 {
		return errors.InvalidParam("template form type and tax year are required")
	}
	now := r.now().UTC()
	if t.ID == "" {
		t.ID = string(common.NewID())
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.FormType, t.LegalForm = key.FormType, key.LegalForm

	return postgres.WithTransaction(ctx, r.pool, func(tx pgx.Tx, txCtx context.Context) error {
		if t.IsActive {
			tag, err := tx.Exec(txCtx, `
				UPDATE form_templates SET is_active = FALSE, updated_at = $5
				WHERE form_type = $1 AND legal_form = $2 AND tax_year = $3 AND id <> $4 AND is_active`,
				key.FormType, key.LegalForm, key.TaxYear, t.ID, now)
			if err != nil {
				return postgres.MapError(err, errors.ErrCodeTemplateNotFound, "deactivate templates")
			}
			if tag.RowsAffected() > 0 {
				r.logger.Info("Deactivated previous template",
					logging.String("form_type", key.FormType),
					logging.String("legal_form", key.LegalForm),
					logging.Int("tax_year", key.TaxYear),
				)
			}
		}
		_, err := tx.Exec(txCtx, `
			INSERT INTO form_templates (id, form_type, legal_form, tax_year, xml_template, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				form_type = EXCLUDED.form_type, legal_form = EXCLUDED.legal_form,
				tax_year = EXCLUDED.tax_year, xml_template = EXCLUDED.xml_template,
				is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at`,
			t.ID, t.FormType, t.LegalForm, t.TaxYear, t.XMLTemplate, t.IsActive, t.CreatedAt, t.UpdatedAt)
		return postgres.MapError(err, errors.ErrCodeTemplateNotFound, "save template")
	})
}
