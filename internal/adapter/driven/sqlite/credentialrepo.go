package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/homevault/internal/domain/model"
	"github.com/ericfisherdev/homevault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
// Secret columns hold ciphertext tokens produced by the application's Cipher;
// the repository never sees plaintext.
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo backed by the given database.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

const credentialColumns = `id, target_type, target_id, target_name, display_name, username,
	password_encrypted, ssh_key_path, api_token_encrypted, auth_type, is_root, notes,
	created_at, updated_at`

// Add inserts cred and its audit entry in one transaction and returns the new ID.
func (r *CredentialRepo) Add(ctx context.Context, cred *model.Credential, entry model.AuditEntry) (int64, error) {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin add credential: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	const query = `INSERT INTO credentials (
		target_type, target_id, target_name, display_name, username,
		password_encrypted, ssh_key_path, api_token_encrypted, auth_type, is_root, notes,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := tx.ExecContext(ctx, query,
		string(cred.TargetType),
		cred.TargetID,
		cred.TargetName,
		cred.DisplayName,
		cred.Username,
		cred.PasswordCiphertext,
		cred.SSHKeyPath,
		cred.APITokenCiphertext,
		string(cred.AuthType),
		boolToInt(cred.IsRoot),
		cred.Notes,
		formatTime(cred.CreatedAt),
		formatTime(cred.UpdatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert credential for %s:%s: %w", cred.TargetType, cred.TargetID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get credential id: %w", err)
	}

	if _, err := insertAudit(ctx, tx, entry); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit add credential: %w", err)
	}
	return id, nil
}

// Find returns the oldest credential for target, narrowed by username when
// non-empty. Returns (nil, nil) if no credential matches.
func (r *CredentialRepo) Find(ctx context.Context, target model.Target, username string) (*model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials
		WHERE target_type = ? AND (target_id = ? OR target_name = ?)`
	args := []any{string(target.Type), target.ID, target.ID}
	if username != "" {
		query += " AND username = ?"
		args = append(args, username)
	}
	query += " ORDER BY id LIMIT 1"

	cred, err := scanCredential(r.db.Reader.QueryRowContext(ctx, query, args...))
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
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = ?`

	cred, err := scanCredential(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %d: %w", id, err)
	}
	return cred, nil
}

// List returns metadata for every credential. Ciphertext columns are reduced
// to presence flags inside the query and never leave the database.
func (r *CredentialRepo) List(ctx context.Context) ([]model.CredentialSummary, error) {
	const query = `SELECT id, target_type, target_id, target_name, display_name, username,
		auth_type, is_root, password_encrypted != '', api_token_encrypted != '',
		created_at, updated_at
		FROM credentials ORDER BY target_type, target_id, id`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var summaries []model.CredentialSummary
	for rows.Next() {
		var (
			s                    model.CredentialSummary
			targetType, authType string
			isRoot               int
			hasPassword, hasTok  int
			createdAt, updatedAt string
		)
		if err := rows.Scan(&s.ID, &targetType, &s.TargetID, &s.TargetName, &s.DisplayName, &s.Username,
			&authType, &isRoot, &hasPassword, &hasTok, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan credential summary: %w", err)
		}
		s.TargetType = model.TargetType(targetType)
		s.AuthType = model.AuthType(authType)
		s.IsRoot = isRoot != 0
		s.HasPassword = hasPassword != 0
		s.HasAPIToken = hasTok != 0

		if s.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at for credential %d: %w", s.ID, err)
		}
		if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at for credential %d: %w", s.ID, err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return summaries, nil
}

// All returns every credential including ciphertext columns, ordered by ID.
func (r *CredentialRepo) All(ctx context.Context) ([]model.Credential, error) {
	rows, err := r.db.Reader.QueryContext(ctx, `SELECT `+credentialColumns+` FROM credentials ORDER BY id`)
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

// Delete removes the credential with the given ID and records entry in the
// same transaction. Returns false, writing nothing, if the ID does not exist.
func (r *CredentialRepo) Delete(ctx context.Context, id int64, entry model.AuditEntry) (bool, error) {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete credential: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `DELETE FROM credentials WHERE id = ?`, id)
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
		isRoot               int
		createdAt, updatedAt string
	)
	err := row.Scan(
		&c.ID, &targetType, &c.TargetID, &c.TargetName, &c.DisplayName, &c.Username,
		&c.PasswordCiphertext, &c.SSHKeyPath, &c.APITokenCiphertext, &authType, &isRoot, &c.Notes,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.TargetType = model.TargetType(targetType)
	c.AuthType = model.AuthType(authType)
	c.IsRoot = isRoot != 0

	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &c, nil
}
