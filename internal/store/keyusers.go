package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// UpsertKeyUser finds or creates the KeyUser for (keyName, userPubkey).
func (s *Store) UpsertKeyUser(ctx context.Context, keyName, userPubkey, description string) (*KeyUser, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO key_users (key_name, user_pubkey, description)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (key_name, user_pubkey) DO UPDATE SET last_used_at = now()
		 RETURNING id, key_name, user_pubkey, description, created_at, last_used_at, revoked_at`,
		keyName, userPubkey, description,
	)
	return scanKeyUser(row)
}

// GetKeyUser looks up a KeyUser by (keyName, userPubkey).
func (s *Store) GetKeyUser(ctx context.Context, keyName, userPubkey string) (*KeyUser, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, key_name, user_pubkey, description, created_at, last_used_at, revoked_at
		 FROM key_users WHERE key_name = $1 AND user_pubkey = $2`,
		keyName, userPubkey,
	)
	return scanKeyUser(row)
}

// ListKeyUsers returns every non-revoked KeyUser, ordered by created_at descending.
func (s *Store) ListKeyUsers(ctx context.Context) ([]KeyUser, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, key_name, user_pubkey, description, created_at, last_used_at, revoked_at
		 FROM key_users WHERE revoked_at IS NULL ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing key users: %w", err)
	}
	defer rows.Close()

	var out []KeyUser
	for rows.Next() {
		var u KeyUser
		if err := rows.Scan(&u.ID, &u.KeyName, &u.UserPubkey, &u.Description, &u.CreatedAt, &u.LastUsedAt, &u.RevokedAt); err != nil {
			return nil, fmt.Errorf("scanning key user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// RenameKeyUser updates a KeyUser's description.
func (s *Store) RenameKeyUser(ctx context.Context, id uuid.UUID, description string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE key_users SET description = $2 WHERE id = $1`, id, description)
	if err != nil {
		return fmt.Errorf("renaming key user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("key user not found")
	}
	return nil
}

// RevokeKeyUser soft-deletes a KeyUser by setting revoked_at.
func (s *Store) RevokeKeyUser(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE key_users SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoking key user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("key user not found or already revoked")
	}
	return nil
}

// TouchKeyUser updates last_used_at to now.
func (s *Store) TouchKeyUser(ctx context.Context, id uuid.UUID) {
	_, _ = s.pool.Exec(ctx, `UPDATE key_users SET last_used_at = now() WHERE id = $1`, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKeyUser(row rowScanner) (*KeyUser, error) {
	var u KeyUser
	if err := row.Scan(&u.ID, &u.KeyName, &u.UserPubkey, &u.Description, &u.CreatedAt, &u.LastUsedAt, &u.RevokedAt); err != nil {
		return nil, fmt.Errorf("scanning key user: %w", err)
	}
	return &u, nil
}
