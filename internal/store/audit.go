package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppendAuditLog inserts an append-only audit record.
func (s *Store) AppendAuditLog(ctx context.Context, entryType, method, params string, keyUserID *uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (type, method, params, key_user_id) VALUES ($1, $2, $3, $4)`,
		entryType, method, params, keyUserID,
	)
	if err != nil {
		return fmt.Errorf("appending audit log: %w", err)
	}
	return nil
}

// ListAuditLog returns the most recent audit entries, newest first.
func (s *Store) ListAuditLog(ctx context.Context, limit int) ([]AuditLogEntry, error) {
	if limit <= 0 || limit > 50 {
		limit = 5
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, timestamp, type, method, params, key_user_id
		 FROM audit_log ORDER BY timestamp DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing audit log: %w", err)
	}
	defer rows.Close()

	var out []AuditLogEntry
	for rows.Next() {
		var e AuditLogEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Type, &e.Method, &e.Params, &e.KeyUserID); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ActivityBuckets returns hourly audit-log counts for the trailing window,
// oldest first, used by the 24-hour activity histogram on /dashboard.
func (s *Store) ActivityBuckets(ctx context.Context, hours int) ([]int, error) {
	if hours <= 0 {
		hours = 24
	}
	rows, err := s.pool.Query(ctx,
		`SELECT date_trunc('hour', timestamp) AS bucket, count(*)
		 FROM audit_log
		 WHERE timestamp >= now() - ($1 || ' hours')::interval
		 GROUP BY bucket`,
		hours,
	)
	if err != nil {
		return nil, fmt.Errorf("computing activity buckets: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var bucket time.Time
		var n int
		if err := rows.Scan(&bucket, &n); err != nil {
			return nil, fmt.Errorf("scanning activity bucket: %w", err)
		}
		counts[bucket.Unix()] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]int, hours)
	nowHour := time.Now().UTC().Truncate(time.Hour)
	for i := 0; i < hours; i++ {
		bucket := nowHour.Add(-time.Duration(i) * time.Hour)
		out[hours-1-i] = counts[bucket.Unix()]
	}
	return out, nil
}
