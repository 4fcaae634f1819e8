package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/homevault/internal/domain/model"
	"github.com/ericfisherdev/homevault/internal/domain/port/driven"
)

var _ driven.AuditStore = (*AuditRepo)(nil)

// AuditRepo is the PostgreSQL AuditStore. Triggers on audit_log reject
// UPDATE, DELETE and TRUNCATE.
type AuditRepo struct {
	db *DB
}

func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertAudit(ctx context.Context, q querier, entry model.AuditEntry) (int64, error) {
	const query = `INSERT INTO audit_log (action, target_type, target_id, actor, details, success, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	var id int64
	err := q.QueryRowContext(ctx, query,
		string(entry.Action),
		entry.TargetType,
		entry.TargetID,
		entry.User,
		entry.Details,
		entry.Success,
		pgTime(entry.Timestamp),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert audit entry %s: %w", entry.Action, err)
	}
	return id, nil
}

func (r *AuditRepo) Record(ctx context.Context, entry model.AuditEntry) (int64, error) {
	return insertAudit(ctx, r.db.Pool, entry)
}

// Query returns entries matching filter, newest first.
func (r *AuditRepo) Query(ctx context.Context, filter model.AuditFilter) ([]model.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Action != "" {
		where = append(where, "action = "+arg(string(filter.Action)))
	}
	if filter.TargetType != "" {
		where = append(where, "target_type = "+arg(filter.TargetType))
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= "+arg(pgTime(filter.Since)))
	}
	if !filter.Until.IsZero() {
		where = append(where, "created_at < "+arg(pgTime(filter.Until)))
	}

	query := `SELECT id, action, target_type, target_id, actor, details, success, created_at FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT " + arg(filter.EffectiveLimit())

	rows, err := r.db.Pool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var (
			e      model.AuditEntry
			action string
		)
		if err := rows.Scan(&e.ID, &action, &e.TargetType, &e.TargetID, &e.User, &e.Details, &e.Success, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = model.AuditAction(action)
		e.Timestamp = e.Timestamp.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}

	return entries, nil
}

// pgTime matches TIMESTAMPTZ precision so values round-trip unchanged.
func pgTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
