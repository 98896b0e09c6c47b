package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/TaxFlow/internal/domain/audit"
	"github.com/turtacn/TaxFlow/internal/domain/submission"
	"github.com/turtacn/TaxFlow/internal/infrastructure/database/postgres"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

const submissionColumns = `id, tax_year, form_type, jurisdiction, legal_form, subject_ref, status,
	form_data, xml_content, validation_errors, confidence_score, submission_date,
	transfer_ticket, archived_at, status_changed_at, created_at, updated_at, created_by, version`

type postgresSubmissionRepo struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewSubmissionRepo returns a submission.Repository whose writes share a
// transaction with their audit event.
func NewSubmissionRepo(pool *pgxpool.Pool, logger logging.Logger) submission.Repository {
	return &postgresSubmissionRepo{pool: pool, logger: logger}
}

func (r *postgresSubmissionRepo) Create(ctx context.Context, s *submission.Submission, event *audit.Event) error {
	formData, err := marshalJSON(nonNilFormData(s.FormData), "form data")
	if err != nil {
		return err
	}
	issues, err := marshalJSON(nonNilIssues(s.ValidationErrors), "validation errors")
	if err != nil {
		return err
	}

	return postgres.WithTransaction(ctx, r.pool, func(tx pgx.Tx, txCtx context.Context) error {
		_, err := tx.Exec(txCtx, `
			INSERT INTO submissions (`+submissionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
			s.ID, s.TaxYear, s.FormType, s.Jurisdiction, s.LegalForm, s.SubjectRef, string(s.Status),
			formData, s.XMLContent, issues, s.ConfidenceScore, s.SubmissionDate,
			s.TransferTicket, s.ArchivedAt, s.StatusChangedAt, s.CreatedAt, s.UpdatedAt, s.CreatedBy, s.Version,
		)
		if err != nil {
			return postgres.MapError(err, errors.ErrCodeSubmissionNotFound, "insert submission")
		}
		if event != nil {
			return appendEvent(txCtx, tx, event)
		}
		return nil
	})
}

func (r *postgresSubmissionRepo) GetByID(ctx context.Context, id string) (*submission.Submission, error) {
	row := postgres.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
	s, err := scanSubmission(row)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeSubmissionNotFound) {
			return nil, errors.New(errors.ErrCodeSubmissionNotFound, "submission not found").WithDetail(id)
		}
		return nil, err
	}
	return s, nil
}

func (r *postgresSubmissionRepo) Update(ctx context.Context, s *submission.Submission, expectedVersion int, event *audit.Event) error {
	formData, err := marshalJSON(nonNilFormData(s.FormData), "form data")
	if err != nil {
		return err
	}
	issues, err := marshalJSON(nonNilIssues(s.ValidationErrors), "validation errors")
	if err != nil {
		return err
	}

	return postgres.WithTransaction(ctx, r.pool, func(tx pgx.Tx, txCtx context.Context) error {
		tag, err := tx.Exec(txCtx, `
			UPDATE submissions SET
				status = $3, form_data = $4, xml_content = $5, validation_errors = $6,
				confidence_score = $7, submission_date = $8, transfer_ticket = $9,
				archived_at = $10, status_changed_at = $11, updated_at = $12,
				legal_form = $13, version = version + 1
			WHERE id = $1 AND version = $2`,
			s.ID, expectedVersion, string(s.Status), formData, s.XMLContent, issues,
			s.ConfidenceScore, s.SubmissionDate, s.TransferTicket,
			s.ArchivedAt, s.StatusChangedAt, s.UpdatedAt, s.LegalForm,
		)
		if err != nil {
			return postgres.MapError(err, errors.ErrCodeSubmissionNotFound, "update submission")
		}
		if tag.RowsAffected() == 0 {
			return r.classifyMissedUpdate(txCtx, tx, s.ID, expectedVersion)
		}
		if event != nil {
			if err := appendEvent(txCtx, tx, event); err != nil {
				return err
			}
		}
		s.Version = expectedVersion + 1
		return nil
	})
}

// classifyMissedUpdate tells a missing row from a stale version.
func (r *postgresSubmissionRepo) classifyMissedUpdate(ctx context.Context, q postgres.Querier, id string, expected int) error {
	var current int
	err := q.QueryRow(ctx, `SELECT version FROM submissions WHERE id = $1`, id).Scan(&current)
	if err != nil {
		mapped := postgres.MapError(err, errors.ErrCodeSubmissionNotFound, "submission")
		if errors.IsNotFound(mapped) {
			return errors.New(errors.ErrCodeSubmissionNotFound, "submission not found").WithDetail(id)
		}
		return mapped
	}
	r.logger.Debug("optimistic lock conflict",
		logging.SubmissionID(id),
		logging.Int("expected_version", expected),
		logging.Int("current_version", current),
	)
	return errors.New(errors.ErrCodeVersionConflict, "optimistic lock conflict").
		WithDetail(fmt.Sprintf("%s: expected version %d, found %d", id, expected, current))
}

// listQuery builds the WHERE clause shared by List's count and page queries.
func listQuery(f submission.ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.FormType != "" {
		add("form_type = $%d", strings.ToUpper(strings.TrimSpace(f.FormType)))
	}
	if f.TaxYear != 0 {
		add("tax_year = $%d", f.TaxYear)
	}
	if f.SubjectRef != "" {
		add("subject_ref = $%d", strings.TrimSpace(f.SubjectRef))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *postgresSubmissionRepo) List(ctx context.Context, f submission.ListFilter) ([]*submission.Submission, int64, error) {
	where, args := listQuery(f)
	q := postgres.Conn(ctx, r.pool)

	var total int64
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM submissions`+where, args...).Scan(&total); err != nil {
		return nil, 0, postgres.MapError(err, errors.ErrCodeSubmissionNotFound, "count submissions")
	}

	p := f.Pagination.Normalize()
	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM submissions%s ORDER BY created_at DESC, id ASC LIMIT $%d OFFSET $%d`,
		submissionColumns, where, n+1, n+2)
	args = append(args, p.PageSize, p.Offset())

	items, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *postgresSubmissionRepo) FindLatestAccepted(ctx context.Context, subjectRef, formType string, beforeYear int) (*submission.Submission, error) {
	row := postgres.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+submissionColumns+` FROM submissions
		WHERE status = $1 AND subject_ref = $2 AND form_type = $3 AND tax_year < $4
		ORDER BY tax_year DESC, updated_at DESC
		LIMIT 1`,
		string(submission.StatusAccepted), subjectRef, formType, beforeYear,
	)
	s, err := scanSubmission(row)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeSubmissionNotFound) {
			return nil, errors.New(errors.ErrCodeSubmissionNotFound, "no prior accepted submission")
		}
		return nil, err
	}
	return s, nil
}

func (r *postgresSubmissionRepo) ListAcceptedPeers(ctx context.Context, formType, legalForm, excludeID string, limit int) ([]*submission.Submission, error) {
	query := `
		SELECT ` + submissionColumns + ` FROM submissions
		WHERE status = $1 AND form_type = $2 AND legal_form = $3 AND id <> $4
		ORDER BY tax_year DESC, updated_at DESC`
	args := []any{string(submission.StatusAccepted), formType, legalForm, excludeID}
	if limit > 0 {
		query += ` LIMIT $5`
		args = append(args, limit)
	}
	return r.query(ctx, query, args...)
}

func (r *postgresSubmissionRepo) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	return r.count(ctx, "count recent submissions",
		`SELECT COUNT(*) FROM submissions WHERE created_at >= $1`, since)
}

func (r *postgresSubmissionRepo) CountWithValidationErrors(ctx context.Context) (int64, error) {
	return r.count(ctx, "count submissions with findings",
		`SELECT COUNT(*) FROM submissions WHERE jsonb_array_length(validation_errors) > 0`)
}

func (r *postgresSubmissionRepo) ExistsFiled(ctx context.Context, jurisdiction, formType string, taxYear int) (bool, error) {
	var exists bool
	err := postgres.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM submissions
			WHERE jurisdiction = $1 AND form_type = $2 AND tax_year = $3 AND status IN ($4, $5)
		)`,
		jurisdiction, formType, taxYear, string(submission.StatusSubmitted), string(submission.StatusAccepted),
	).Scan(&exists)
	if err != nil {
		return false, postgres.MapError(err, errors.ErrCodeSubmissionNotFound, "check filed submission")
	}
	return exists, nil
}

func (r *postgresSubmissionRepo) count(ctx context.Context, what, query string, args ...any) (int64, error) {
	var n int64
	if err := postgres.Conn(ctx, r.pool).QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, postgres.MapError(err, errors.ErrCodeSubmissionNotFound, what)
	}
	return n, nil
}

func (r *postgresSubmissionRepo) query(ctx context.Context, query string, args ...any) ([]*submission.Submission, error) {
	rows, err := postgres.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, postgres.MapError(err, errors.ErrCodeSubmissionNotFound, "query submissions")
	}
	defer rows.Close()

	out := []*submission.Submission{}
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, errors.ErrCodeSubmissionNotFound, "query submissions")
	}
	return out, nil
}

func scanSubmission(row scanner) (*submission.Submission, error) {
	var (
		s        submission.Submission
		status   string
		formData []byte
		issues   []byte
	)
	err := row.Scan(
		&s.ID, &s.TaxYear, &s.FormType, &s.Jurisdiction, &s.LegalForm, &s.SubjectRef, &status,
		&formData, &s.XMLContent, &issues, &s.ConfidenceScore, &s.SubmissionDate,
		&s.TransferTicket, &s.ArchivedAt, &s.StatusChangedAt, &s.CreatedAt, &s.UpdatedAt, &s.CreatedBy, &s.Version,
	)
	if err != nil {
		return nil, postgres.MapError(err, errors.ErrCodeSubmissionNotFound, "scan submission")
	}
	s.Status = submission.Status(status)
	s.FormData = submission.FormData{}
	if err := unmarshalJSON(formData, &s.FormData, "form data"); err != nil {
		return nil, err
	}
	s.ValidationErrors = []submission.Issue{}
	if err := unmarshalJSON(issues, &s.ValidationErrors, "validation errors"); err != nil {
		return nil, err
	}
	normaliseTimes(&s)
	return &s, nil
}

func normaliseTimes(s *submission.Submission) {
	s.StatusChangedAt = s.StatusChangedAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	for _, p := range []**time.Time{&s.SubmissionDate, &s.ArchivedAt} {
		if *p != nil {
			t := (*p).UTC()
			*p = &t
		}
	}
}

func nonNilFormData(f submission.FormData) submission.FormData {
	if f == nil {
		return submission.FormData{}
	}
	return f
}

func nonNilIssues(issues []submission.Issue) []submission.Issue {
	if issues == nil {
		return []submission.Issue{}
	}
	return issues
}
