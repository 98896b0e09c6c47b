// Package repositories implements the domain repositories on PostgreSQL.
package repositories

import (
	"encoding/json"

	"github.com/turtacn/TaxFlow/pkg/errors"
)

// scanner abstracts pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func marshalJSON(v any, what string) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode "+what)
	}
	return b, nil
}

func unmarshalJSON(raw []byte, v any, what string) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode "+what)
	}
	return nil
}
