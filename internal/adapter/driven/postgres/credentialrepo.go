package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/homevault/internal/domain/model"
	"github.com/ericfisherdev/homevault/internal/domain/port/driven"
)

var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the PostgreSQL CredentialStore. Each mutation commits
// together with its audit entry.
type CredentialRepo struct {
	db *DB
}

func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

const credentialColumns = `id, target_type, target_id, target_name, display_name, username,
	password_encrypted, ssh_key_path, api_token_encrypted, auth_type, is_root, notes,
	created_at, updated_at`

func (r *CredentialRepo) Add(ctx context.Context, cred *model.Credential, entry model.AuditEntry) (int64, error) {
	tx, err := r.db.Pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin add credential: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `INSERT INTO credentials (
		target_type, target_id, target_name, display_name, username,
		password_encrypted, ssh_key_path, api_token_encrypted, auth_type, is_root, notes,
		created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	RETURNING id`

	var id int64
	err = tx.QueryRowContext(ctx, query,
		string(cred.TargetType),
		cred.TargetID,
		cred.TargetName,
		cred.DisplayName,
		cred.Username,
		cred.PasswordCiphertext,
		cred.SSHKeyPath,
		cred.APITokenCiphertext,
		string(cred.AuthType),
		cred.IsRoot,
		cred.Notes,
		pgTime(cred.CreatedAt),
		pgTime(cred.UpdatedAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert credential for %s:%s: %w", cred.TargetType, cred.TargetID, err)
	}

	if _, err := insertAudit(ctx, tx, entry); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit add credential: %w", err)
	}
	return id, nil
}

func (r *CredentialRepo) Find(ctx context.Context, target model.Target, username string) (*model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials
		WHERE target_type = $1 AND (target_id = $2 OR target_name = $2)`
	args := []any{string(target.Type), target.ID}
	if username != "" {
		query += " AND username = $3"
		args = append(args, username)
	}
	query += " ORDER BY id LIMIT 1"

	cred, err := scanCredential(r.db.Pool.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find credential for %s: %w", target, err)
	}
	return cred, nil
}

// Get returns the credential with the given ID, or (nil, nil) if absent.
func (r *CredentialRepo) Get(ctx context.Context, id int64) (*model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = $1`

	cred, err := scanCredential(r.db.Pool.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %d: %w", id, err)
	}
	return cred, nil
}

func (r *CredentialRepo) List(ctx context.Context) ([]model.CredentialSummary, error) {
	const query = `SELECT id, target_type, target_id, target_name, display_name, username,
		auth_type, is_root, password_encrypted <> '', api_token_encrypted <> '',
		created_at, updated_at
		FROM credentials ORDER BY target_type, target_id, id`

	rows, err := r.db.Pool.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var summaries []model.CredentialSummary
	for rows.Next() {
		var (
			s                    model.CredentialSummary
			targetType, authType string
		)
		if err := rows.Scan(&s.ID, &targetType, &s.TargetID, &s.TargetName, &s.DisplayName, &s.Username,
			&authType, &s.IsRoot, &s.HasPassword, &s.HasAPIToken, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan credential summary: %w", err)
		}
		s.TargetType = model.TargetType(targetType)
		s.AuthType = model.AuthType(authType)
		s.CreatedAt = s.CreatedAt.UTC()
		s.UpdatedAt = s.UpdatedAt.UTC()
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return summaries, nil
}

func (r *CredentialRepo) All(ctx context.Context) ([]model.Credential, error) {
	rows, err := r.db.Pool.QueryContext(ctx, `SELECT `+credentialColumns+` FROM credentials ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, *cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return creds, nil
}

func (r *CredentialRepo) Delete(ctx context.Context, id int64, entry model.AuditEntry) (bool, error) {
	tx, err := r.db.Pool.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete credential: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM credentials WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete credential %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete credential %d rows affected: %w", id, err)
	}
	if n == 0 {
		return false, nil
	}

	if _, err := insertAudit(ctx, tx, entry); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete credential: %w", err)
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*model.Credential, error) {
	var (
		c                    model.Credential
		targetType, authType string
	)
	err := row.Scan(
		&c.ID, &targetType, &c.TargetID, &c.TargetName, &c.DisplayName, &c.Username,
		&c.PasswordCiphertext, &c.SSHKeyPath, &c.APITokenCiphertext, &authType, &c.IsRoot, &c.Notes,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.TargetType = model.TargetType(targetType)
	c.AuthType = model.AuthType(authType)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}
