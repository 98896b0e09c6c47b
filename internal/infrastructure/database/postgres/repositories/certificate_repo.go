package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/TaxFlow/internal/domain/certificate"
	"github.com/turtacn/TaxFlow/internal/infrastructure/database/postgres"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

type postgresCertificateRepo struct {
	pool *pgxpool.Pool
}

// NewCertificateRepo returns a read-only certificate.Repository.
func NewCertificateRepo(pool *pgxpool.Pool) certificate.Repository {
	return &postgresCertificateRepo{pool: pool}
}

func (r *postgresCertificateRepo) CountValid(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := postgres.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM certificates WHERE is_active AND valid_until >= $1`, now.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, postgres.MapError(err, errors.ErrCodeNotFound, "count valid certificates")
	}
	return n, nil
}

func (r *postgresCertificateRepo) List(ctx context.Context) ([]*certificate.Certificate, error) {
	rows, err := postgres.Conn(ctx, r.pool).Query(ctx,
		`SELECT id, name, valid_from, valid_until, is_active FROM certificates ORDER BY valid_until ASC, id ASC`)
	if err != nil {
		return nil, postgres.MapError(err, errors.ErrCodeNotFound, "list certificates")
	}
	defer rows.Close()

	out := []*certificate.Certificate{}
	for rows.Next() {
		var c certificate.Certificate
		if err := rows.Scan(&c.ID, &c.Name, &c.ValidFrom, &c.ValidUntil, &c.IsActive); err != nil {
			return nil, postgres.MapError(err, errors.ErrCodeNotFound, "scan certificate")
		}
		c.ValidFrom, c.ValidUntil = c.ValidFrom.UTC(), c.ValidUntil.UTC()
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, errors.ErrCodeNotFound, "list certificates")
	}
	return out, nil
}
