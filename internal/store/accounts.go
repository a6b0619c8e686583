package store

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// CreateAccount creates the password-holding owner of a provisioned key.
func (s *Store) CreateAccount(ctx context.Context, keyName, email, password string) (*Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO accounts (key_name, email, password_hash) VALUES ($1, $2, $3)
		 RETURNING id, key_name, email, password_hash, created_at`,
		keyName, email, string(hash),
	)
	var a Account
	if err := row.Scan(&a.ID, &a.KeyName, &a.Email, &a.PasswordHash, &a.CreatedAt); err != nil {
		return nil, fmt.Errorf("inserting account: %w", err)
	}
	return &a, nil
}

// GetAccountByKeyName fetches the Account that owns a StoredKey.
func (s *Store) GetAccountByKeyName(ctx context.Context, keyName string) (*Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, key_name, email, password_hash, created_at FROM accounts WHERE key_name = $1`,
		keyName,
	)
	var a Account
	if err := row.Scan(&a.ID, &a.KeyName, &a.Email, &a.PasswordHash, &a.CreatedAt); err != nil {
		return nil, fmt.Errorf("getting account: %w", err)
	}
	return &a, nil
}

// VerifyAccountPassword checks password against the Account owning keyName.
func (s *Store) VerifyAccountPassword(ctx context.Context, keyName, password string) error {
	a, err := s.GetAccountByKeyName(ctx, keyName)
	if err != nil {
		return err
	}
	return bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password))
}
