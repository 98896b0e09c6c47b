package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/TaxFlow/internal/domain/audit"
	"github.com/turtacn/TaxFlow/internal/infrastructure/database/postgres"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

type postgresAuditRepo struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewAuditRepo returns an append-only audit.Repository.
func NewAuditRepo(pool *pgxpool.Pool, logger logging.Logger) audit.Repository {
	return &postgresAuditRepo{pool: pool, logger: logger}
}

func (r *postgresAuditRepo) Append(ctx context.Context, e *audit.Event) error {
	return appendEvent(ctx, postgres.Conn(ctx, r.pool), e)
}

// appendEvent inserts e through q so callers can share their transaction.
func appendEvent(ctx context.Context, q postgres.Querier, e *audit.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	meta := e.Metadata
	if meta == nil {
		meta = map[string]interface{}{}
	}
	raw, err := marshalJSON(meta, "audit metadata")
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO audit_events (id, entity_type, entity_id, action, summary, performed_by, performed_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.EntityType, e.EntityID, e.Action, e.Summary, e.PerformedBy, e.PerformedAt, raw,
	)
	return postgres.MapError(err, errors.ErrCodeNotFound, "append audit event")
}

func (r *postgresAuditRepo) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*audit.Event, error) {
	query := `
		SELECT id, entity_type, entity_id, action, summary, performed_by, performed_at, metadata
		FROM audit_events
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY seq ASC`
	args := []any{entityType, entityID}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := postgres.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, postgres.MapError(err, errors.ErrCodeNotFound, "list audit events")
	}
	defer rows.Close()

	var out []*audit.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, errors.ErrCodeNotFound, "list audit events")
	}
	return out, nil
}

func (r *postgresAuditRepo) CountTransitionsSince(ctx context.Context, entityType, status string, since time.Time) (int64, error) {
	var n int64
	err := postgres.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT COUNT(*) FROM audit_events
		WHERE entity_type = $1 AND metadata->>'to' = $2 AND performed_at >= $3`,
		entityType, status, since,
	).Scan(&n)
	if err != nil {
		return 0, postgres.MapError(err, errors.ErrCodeNotFound, "count audit transitions")
	}
	return n, nil
}

func scanEvent(row scanner) (*audit.Event, error) {
	var (
		e    audit.Event
		meta []byte
	)
	if err := row.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &e.Summary,
		&e.PerformedBy, &e.PerformedAt, &meta); err != nil {
		return nil, postgres.MapError(err, errors.ErrCodeNotFound, "scan audit event")
	}
	e.Metadata = map[string]interface{}{}
	if err := unmarshalJSON(meta, &e.Metadata, "audit metadata"); err != nil {
		return nil, err
	}
	e.PerformedAt = e.PerformedAt.UTC()
	return &e, nil
}
