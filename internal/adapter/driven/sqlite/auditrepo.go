package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ericfisherdev/homevault/internal/domain/model"
	"github.com/ericfisherdev/homevault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AuditStore = (*AuditRepo)(nil)

// AuditRepo is the SQLite implementation of the AuditStore port interface.
// The audit_log table rejects UPDATE and DELETE through triggers.
type AuditRepo struct {
	db *DB
}

// NewAuditRepo creates a new AuditRepo backed by the given database.
func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAudit(ctx context.Context, ex execer, entry model.AuditEntry) (int64, error) {
	const query = `INSERT INTO audit_log (action, target_type, target_id, actor, details, success, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	res, err := ex.ExecContext(ctx, query,
		string(entry.Action),
		entry.TargetType,
		entry.TargetID,
		entry.User,
		entry.Details,
		boolToInt(entry.Success),
		formatTime(entry.Timestamp),
	)
	if err != nil {
		return 0, fmt.Errorf("insert audit entry %s: %w", entry.Action, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get audit entry id: %w", err)
	}
	return id, nil
}

// Record appends entry and returns its ID.
func (r *AuditRepo) Record(ctx context.Context, entry model.AuditEntry) (int64, error) {
	return insertAudit(ctx, r.db.Writer, entry)
}

// Query returns entries matching filter, newest first.
func (r *AuditRepo) Query(ctx context.Context, filter model.AuditFilter) ([]model.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if filter.Action != "" {
		where = append(where, "action = ?")
		args = append(args, string(filter.Action))
	}
	if filter.TargetType != "" {
		where = append(where, "target_type = ?")
		args = append(args, filter.TargetType)
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(filter.Since))
	}
	if !filter.Until.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, formatTime(filter.Until))
	}

	query := `SELECT id, action, target_type, target_id, actor, details, success, created_at FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, filter.EffectiveLimit())

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var (
			e         model.AuditEntry
			action    string
			success   int
			createdAt string
		)
		if err := rows.Scan(&e.ID, &action, &e.TargetType, &e.TargetID, &e.User, &e.Details, &success, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = model.AuditAction(action)
		e.Success = success != 0
		e.Timestamp, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at for audit entry %d: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}

	return entries, nil
}
