package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ListSigningConditions returns every SigningCondition under a KeyUser.
func (s *Store) ListSigningConditions(ctx context.Context, keyUserID uuid.UUID) ([]SigningCondition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, key_user_id, method, kind_filter, allowed, created_at
		 FROM signing_conditions WHERE key_user_id = $1`,
		keyUserID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing signing conditions: %w", err)
	}
	defer rows.Close()

	var out []SigningCondition
	for rows.Next() {
		var c SigningCondition
		if err := rows.Scan(&c.ID, &c.KeyUserID, &c.Method, &c.KindFilter, &c.Allowed, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning signing condition: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PutSigningCondition inserts or updates the (keyUserId, method, kindFilter)
// condition. Used by the "always"/"never" admin decisions and by the HTTP
// approval handler's blanket-allow write.
func (s *Store) PutSigningCondition(ctx context.Context, keyUserID uuid.UUID, method, kindFilter string, allowed bool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO signing_conditions (key_user_id, method, kind_filter, allowed)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key_user_id, method, kind_filter) DO UPDATE SET allowed = $4`,
		keyUserID, method, kindFilter, allowed,
	)
	if err != nil {
		return fmt.Errorf("writing signing condition: %w", err)
	}
	return nil
}
