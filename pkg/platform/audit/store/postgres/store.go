package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	audit "catalog/pkg/platform/audit"
)

// Store persists activity-log records in the activity_logs table.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Append inserts a record. Idempotent: a duplicate ID is ignored via
// ON CONFLICT DO NOTHING.
func (s *Store) Append(ctx context.Context, record audit.Record) error {
	query := `
		INSERT INTO activity_logs (
			id, user_id, action, details, ip_address, user_agent, client, request_id, created_at
		)
		VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, query,
		record.ID,
		record.ActorID,
		string(record.Action),
		record.Detail,
		record.ClientIP,
		record.UserAgent,
		record.Client,
		record.RequestID,
		record.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity log: %w", err)
	}
	return nil
}

// ListRecent returns the N most recent records.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Record, error) {
	query := `
		SELECT id::text, COALESCE(user_id, ''), action, details,
		       COALESCE(ip_address, ''), COALESCE(user_agent, ''),
		       COALESCE(client, ''), COALESCE(request_id, ''), created_at
		FROM activity_logs
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query activity logs: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (audit.Record, error) {
		var (
			r      audit.Record
			action string
		)
		err := row.Scan(
			&r.ID,
			&r.ActorID,
			&action,
			&r.Detail,
			&r.ClientIP,
			&r.UserAgent,
			&r.Client,
			&r.RequestID,
			&r.OccurredAt,
		)
		r.Action = audit.Action(action)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan activity logs: %w", err)
	}
	return records, nil
}
