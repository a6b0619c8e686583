package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/duskline/bunker/internal/auth"
)

// This file satisfies internal/auth.Store, so the Policy Store doubles as
// the persistence backend for the dashboard-auth ambient component (A3).

// FindDashboardAdmin looks up the single local administrator by username.
func (s *Store) FindDashboardAdmin(ctx context.Context, username string) (*auth.DashboardAdminRow, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, must_change_password
		 FROM dashboard_admins WHERE username = $1`,
		username,
	)
	var a auth.DashboardAdminRow
	if err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.MustChange); err != nil {
		return nil, fmt.Errorf("finding dashboard admin: %w", err)
	}
	return &a, nil
}

// GetDashboardAdminPasswordHash fetches the bcrypt hash for adminID.
func (s *Store) GetDashboardAdminPasswordHash(ctx context.Context, adminID uuid.UUID) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx, `SELECT password_hash FROM dashboard_admins WHERE id = $1`, adminID).Scan(&hash)
	if err != nil {
		return "", fmt.Errorf("getting dashboard admin password hash: %w", err)
	}
	return hash, nil
}

// UpdateDashboardAdminPassword rotates the administrator's password.
func (s *Store) UpdateDashboardAdminPassword(ctx context.Context, adminID uuid.UUID, newHash string, mustChange bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE dashboard_admins SET password_hash = $2, must_change_password = $3 WHERE id = $1`,
		adminID, newHash, mustChange,
	)
	if err != nil {
		return fmt.Errorf("updating dashboard admin password: %w", err)
	}
	return nil
}

// UpdateDashboardAdminLastLogin stamps last_login_at.
func (s *Store) UpdateDashboardAdminLastLogin(ctx context.Context, adminID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE dashboard_admins SET last_login_at = now() WHERE id = $1`, adminID)
	if err != nil {
		return fmt.Errorf("updating dashboard admin last login: %w", err)
	}
	return nil
}

// CreateDashboardAdmin installs the single local-administrator credential
// (used by the `setup` CLI subcommand).
func (s *Store) CreateDashboardAdmin(ctx context.Context, username, passwordHash string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`INSERT INTO dashboard_admins (username, password_hash, must_change_password)
		 VALUES ($1, $2, false)
		 ON CONFLICT (username) DO UPDATE SET password_hash = $2
		 RETURNING id`,
		username, passwordHash,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("creating dashboard admin: %w", err)
	}
	return id, nil
}

// GetAPIKeyByHash looks up an API key row by its sha256 hash.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*auth.APIKeyRow, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, key_prefix, role, expires_at FROM api_keys WHERE key_hash = $1`,
		hash,
	)
	var k auth.APIKeyRow
	if err := row.Scan(&k.ID, &k.KeyPrefix, &k.Role, &k.ExpiresAt); err != nil {
		return nil, fmt.Errorf("getting api key: %w", err)
	}
	return &k, nil
}

// UpdateAPIKeyLastUsed stamps last_used_at for an API key.
func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, keyID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, keyID)
	if err != nil {
		return fmt.Errorf("updating api key last used: %w", err)
	}
	return nil
}

// CreateAPIKey inserts a new API key row.
func (s *Store) CreateAPIKey(ctx context.Context, name, prefix, hash, role string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`INSERT INTO api_keys (name, key_prefix, key_hash, role) VALUES ($1, $2, $3, $4) RETURNING id`,
		name, prefix, hash, role,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("creating api key: %w", err)
	}
	return id, nil
}

// ListAPIKeys returns every API key (without the hash).
func (s *Store) ListAPIKeys(ctx context.Context) ([]APIKeyInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_prefix, role, expires_at, last_used_at, created_at FROM api_keys ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var out []APIKeyInfo
	for rows.Next() {
		var k APIKeyInfo
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyPrefix, &k.Role, &k.ExpiresAt, &k.LastUsedAt, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning api key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// DeleteAPIKey removes an API key by ID.
func (s *Store) DeleteAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("api key not found")
	}
	return nil
}

// FindPATByPrefix returns the PAT row and its stored hash for prefix.
func (s *Store) FindPATByPrefix(ctx context.Context, prefix string) (*auth.PATRow, string, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT pat.id, pat.account_id, a.email, a.key_name, pat.role, pat.expires_at, pat.token_hash
		 FROM personal_access_tokens pat
		 JOIN accounts a ON a.id = pat.account_id
		 WHERE pat.prefix = $1`,
		prefix,
	)
	var p auth.PATRow
	var hash string
	if err := row.Scan(&p.ID, &p.AccountID, &p.Email, &p.DisplayName, &p.Role, &p.ExpiresAt, &hash); err != nil {
		return nil, "", fmt.Errorf("finding pat by prefix: %w", err)
	}
	return &p, hash, nil
}

// UpdatePATLastUsed stamps last_used_at for a personal access token.
func (s *Store) UpdatePATLastUsed(ctx context.Context, prefix string) error {
	_, err := s.pool.Exec(ctx, `UPDATE personal_access_tokens SET last_used_at = now() WHERE prefix = $1`, prefix)
	if err != nil {
		return fmt.Errorf("updating pat last used: %w", err)
	}
	return nil
}

// CreatePAT inserts a new personal access token.
func (s *Store) CreatePAT(ctx context.Context, accountID uuid.UUID, name, prefix, hash, role string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`INSERT INTO personal_access_tokens (account_id, name, prefix, token_hash, role)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		accountID, name, prefix, hash, role,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("creating pat: %w", err)
	}
	return id, nil
}

// ListPATsByAccount returns every PAT owned by accountID.
func (s *Store) ListPATsByAccount(ctx context.Context, accountID uuid.UUID) ([]PATInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, prefix, role, expires_at, last_used_at, created_at
		 FROM personal_access_tokens WHERE account_id = $1 ORDER BY created_at DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing pats: %w", err)
	}
	defer rows.Close()

	var out []PATInfo
	for rows.Next() {
		var p PATInfo
		if err := rows.Scan(&p.ID, &p.Name, &p.Prefix, &p.Role, &p.ExpiresAt, &p.LastUsedAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning pat: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePAT removes a PAT by ID, scoped to its owning account.
func (s *Store) DeletePAT(ctx context.Context, id, accountID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM personal_access_tokens WHERE id = $1 AND account_id = $2`, id, accountID)
	if err != nil {
		return fmt.Errorf("deleting pat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("personal access token not found")
	}
	return nil
}
