package store

import (
	"context"
	"fmt"
)

// CreatePendingRequest persists a new PendingRequest awaiting a decision.
func (s *Store) CreatePendingRequest(ctx context.Context, requestID, keyName, remotePubkey, method, params string) (*PendingRequest, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO pending_requests (request_id, key_name, remote_pubkey, method, params)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, request_id, key_name, remote_pubkey, method, params, allowed, created_at, processed_at`,
		requestID, keyName, remotePubkey, method, params,
	)
	return scanPendingRequest(row)
}

// GetPendingRequest fetches a PendingRequest by its public request ID.
func (s *Store) GetPendingRequest(ctx context.Context, requestID string) (*PendingRequest, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, request_id, key_name, remote_pubkey, method, params, allowed, created_at, processed_at
		 FROM pending_requests WHERE request_id = $1`,
		requestID,
	)
	return scanPendingRequest(row)
}

// DecidePendingRequest records the admin's allow/deny decision, along with
// the (possibly rewritten) params. It is a no-op if already decided.
func (s *Store) DecidePendingRequest(ctx context.Context, requestID string, allowed bool, params string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pending_requests SET allowed = $2, params = $3, processed_at = now()
		 WHERE request_id = $1 AND allowed IS NULL`,
		requestID, allowed, params,
	)
	if err != nil {
		return fmt.Errorf("deciding pending request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending request not found or already decided")
	}
	return nil
}

// ReapExpired sets allowed=false for every pending request older than 60s
// that was never decided. Reaping a decided request is a no-op (the WHERE
// clause only matches undecided rows); this is the expiry signal for C5's
// waiters.
func (s *Store) ReapExpired(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE pending_requests
		 SET allowed = false, processed_at = now()
		 WHERE allowed IS NULL AND created_at < now() - interval '60 seconds'
		 RETURNING request_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("reaping pending requests: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning reaped id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RequestStatus filters PendingRequest listings per §4.2's definitions.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusExpired  RequestStatus = "expired"
)

// ListPendingRequests lists requests by status, newest first, capped at
// limit (≤50) with offset (≥0).
func (s *Store) ListPendingRequests(ctx context.Context, status RequestStatus, limit, offset int) ([]PendingRequest, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var where string
	switch status {
	case StatusPending:
		where = "allowed IS NULL AND created_at >= now() - interval '60 seconds'"
	case StatusApproved:
		where = "allowed = true"
	case StatusExpired:
		where = "allowed IS NULL AND created_at < now() - interval '60 seconds'"
	default:
		where = "true"
	}

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, request_id, key_name, remote_pubkey, method, params, allowed, created_at, processed_at
		 FROM pending_requests WHERE %s ORDER BY created_at DESC LIMIT $1 OFFSET $2`, where),
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing pending requests: %w", err)
	}
	defer rows.Close()

	var out []PendingRequest
	for rows.Next() {
		var p PendingRequest
		if err := rows.Scan(&p.ID, &p.RequestID, &p.KeyName, &p.RemotePubkey, &p.Method, &p.Params, &p.Allowed, &p.CreatedAt, &p.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scanning pending request: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPendingRequest(row rowScanner) (*PendingRequest, error) {
	var p PendingRequest
	if err := row.Scan(&p.ID, &p.RequestID, &p.KeyName, &p.RemotePubkey, &p.Method, &p.Params, &p.Allowed, &p.CreatedAt, &p.ProcessedAt); err != nil {
		return nil, fmt.Errorf("scanning pending request: %w", err)
	}
	return &p, nil
}
