package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreatePolicy creates a Policy with its PolicyRules in one transaction.
func (s *Store) CreatePolicy(ctx context.Context, name string, expiresAt *time.Time, rules []PolicyRule) (*Policy, error) {
	var policy Policy
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO policies (name, expires_at) VALUES ($1, $2)
			 RETURNING id, name, expires_at, created_at`,
			name, expiresAt,
		)
		if err := row.Scan(&policy.ID, &policy.Name, &policy.ExpiresAt, &policy.CreatedAt); err != nil {
			return fmt.Errorf("inserting policy: %w", err)
		}

		for _, r := range rules {
			if _, err := tx.Exec(ctx,
				`INSERT INTO policy_rules (policy_id, method, kind_filter, max_usage_count)
				 VALUES ($1, $2, $3, $4)`,
				policy.ID, r.Method, r.KindFilter, r.MaxUsageCount,
			); err != nil {
				return fmt.Errorf("inserting policy rule: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &policy, nil
}

// ListPolicies returns every Policy.
func (s *Store) ListPolicies(ctx context.Context) ([]Policy, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, expires_at, created_at FROM policies ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing policies: %w", err)
	}
	defer rows.Close()

	var out []Policy
	for rows.Next() {
		var p Policy
		if err := rows.Scan(&p.ID, &p.Name, &p.ExpiresAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning policy: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPolicy fetches a Policy by ID, or nil if it does not exist.
func (s *Store) GetPolicy(ctx context.Context, id uuid.UUID) (*Policy, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, name, expires_at, created_at FROM policies WHERE id = $1`, id)
	var p Policy
	if err := row.Scan(&p.ID, &p.Name, &p.ExpiresAt, &p.CreatedAt); err != nil {
		return nil, fmt.Errorf("getting policy: %w", err)
	}
	return &p, nil
}

// ListPolicyRules returns the rule templates for a Policy.
func (s *Store) ListPolicyRules(ctx context.Context, policyID uuid.UUID) ([]PolicyRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, policy_id, method, kind_filter, max_usage_count, current_usage_count
		 FROM policy_rules WHERE policy_id = $1`,
		policyID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing policy rules: %w", err)
	}
	defer rows.Close()

	var out []PolicyRule
	for rows.Next() {
		var r PolicyRule
		if err := rows.Scan(&r.ID, &r.PolicyID, &r.Method, &r.KindFilter, &r.MaxUsageCount, &r.CurrentUsageCount); err != nil {
			return nil, fmt.Errorf("scanning policy rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
