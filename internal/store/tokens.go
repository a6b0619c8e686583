package store

import (
	"errors"
	"fmt"
	"time"

	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Token redemption errors, per spec §4.2.
var (
	ErrTokenNotFound     = errors.New("token-not-found")
	ErrTokenAlreadyUsed  = errors.New("already-redeemed")
	ErrTokenExpired      = errors.New("expired")
	ErrPolicyMissing     = errors.New("policy-missing")
)

// CreateToken mints a new token for (keyName, clientName) against a policy.
func (s *Store) CreateToken(ctx context.Context, secret, keyName, clientName string, policyID uuid.UUID, createdBy string, expiresAt *time.Time) (*Token, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO tokens (secret, key_name, client_name, policy_id, created_by, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, secret, key_name, client_name, policy_id, created_by, expires_at, redeemed_at, key_user_id, created_at`,
		secret, keyName, clientName, policyID, createdBy, expiresAt,
	)
	var t Token
	if err := row.Scan(&t.ID, &t.Secret, &t.KeyName, &t.ClientName, &t.PolicyID, &t.CreatedBy, &t.ExpiresAt, &t.RedeemedAt, &t.KeyUserID, &t.CreatedAt); err != nil {
		return nil, fmt.Errorf("inserting token: %w", err)
	}
	return &t, nil
}

// ListTokensByKey lists every token minted for keyName, newest first.
func (s *Store) ListTokensByKey(ctx context.Context, keyName string) ([]Token, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, secret, key_name, client_name, policy_id, created_by, expires_at, redeemed_at, key_user_id, created_at
		 FROM tokens WHERE key_name = $1 ORDER BY created_at DESC`,
		keyName,
	)
	if err != nil {
		return nil, fmt.Errorf("listing tokens: %w", err)
	}
	defer rows.Close()

	var out []Token
	for rows.Next() {
		var t Token
		if err := rows.Scan(&t.ID, &t.Secret, &t.KeyName, &t.ClientName, &t.PolicyID, &t.CreatedBy, &t.ExpiresAt, &t.RedeemedAt, &t.KeyUserID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning token: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RedeemToken atomically redeems a token against a connecting client
// pubkey: it fetches the token, upserts the KeyUser, inserts a connect
// SigningCondition plus one per PolicyRule, and marks the token redeemed.
// Any failure rolls back the whole transaction.
func (s *Store) RedeemToken(ctx context.Context, secret, clientPubkey string) (*KeyUser, error) {
	var keyUser KeyUser

	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		var t Token
		row := tx.QueryRow(ctx,
			`SELECT id, secret, key_name, client_name, policy_id, created_by, expires_at, redeemed_at, key_user_id, created_at
			 FROM tokens WHERE secret = $1 FOR UPDATE`,
			secret,
		)
		if err := row.Scan(&t.ID, &t.Secret, &t.KeyName, &t.ClientName, &t.PolicyID, &t.CreatedBy, &t.ExpiresAt, &t.RedeemedAt, &t.KeyUserID, &t.CreatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrTokenNotFound
			}
			return fmt.Errorf("fetching token: %w", err)
		}

		if t.RedeemedAt != nil {
			return ErrTokenAlreadyUsed
		}
		if t.ExpiresAt != nil && t.ExpiresAt.Before(time.Now()) {
			return ErrTokenExpired
		}

		var policyExists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM policies WHERE id = $1)`, t.PolicyID).Scan(&policyExists); err != nil {
			return fmt.Errorf("checking policy: %w", err)
		}
		if !policyExists {
			return ErrPolicyMissing
		}

		kuRow := tx.QueryRow(ctx,
			`INSERT INTO key_users (key_name, user_pubkey, description)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (key_name, user_pubkey) DO UPDATE SET last_used_at = now()
			 RETURNING id, key_name, user_pubkey, description, created_at, last_used_at, revoked_at`,
			t.KeyName, clientPubkey, t.ClientName,
		)
		if err := kuRow.Scan(&keyUser.ID, &keyUser.KeyName, &keyUser.UserPubkey, &keyUser.Description, &keyUser.CreatedAt, &keyUser.LastUsedAt, &keyUser.RevokedAt); err != nil {
			return fmt.Errorf("upserting key user: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO signing_conditions (key_user_id, method, kind_filter, allowed)
			 VALUES ($1, 'connect', '', true)
			 ON CONFLICT (key_user_id, method, kind_filter) DO UPDATE SET allowed = true`,
			keyUser.ID,
		); err != nil {
			return fmt.Errorf("inserting connect condition: %w", err)
		}

		rows, err := tx.Query(ctx,
			`SELECT id, policy_id, method, kind_filter, max_usage_count, current_usage_count
			 FROM policy_rules WHERE policy_id = $1`,
			t.PolicyID,
		)
		if err != nil {
			return fmt.Errorf("listing policy rules: %w", err)
		}
		var rules []PolicyRule
		for rows.Next() {
			var r PolicyRule
			if err := rows.Scan(&r.ID, &r.PolicyID, &r.Method, &r.KindFilter, &r.MaxUsageCount, &r.CurrentUsageCount); err != nil {
				rows.Close()
				return fmt.Errorf("scanning policy rule: %w", err)
			}
			rules = append(rules, r)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, r := range rules {
			if _, err := tx.Exec(ctx,
				`INSERT INTO signing_conditions (key_user_id, method, kind_filter, allowed)
				 VALUES ($1, $2, $3, true)
				 ON CONFLICT (key_user_id, method, kind_filter) DO UPDATE SET allowed = true`,
				keyUser.ID, r.Method, r.KindFilter,
			); err != nil {
				return fmt.Errorf("inserting rule condition: %w", err)
			}
		}

		if _, err := tx.Exec(ctx,
			`UPDATE tokens SET redeemed_at = now(), key_user_id = $2 WHERE id = $1`,
			t.ID, keyUser.ID,
		); err != nil {
			return fmt.Errorf("marking token redeemed: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return &keyUser, nil
}
