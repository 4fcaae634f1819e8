package driven

import (
	"context"

	"github.com/ericfisherdev/homevault/internal/domain/model"
)

// CredentialStore defines the driven port for credential record persistence.
// Secret columns cross this boundary as ciphertext only; encryption happens
// in the application layer through a Cipher.
//
// Mutations take the audit entry describing them and commit both in a single
// transaction, so a stored change never exists without its audit record.
type CredentialStore interface {
	// Add inserts cred and entry atomically and returns the new credential ID.
	// entry.TargetID is left as supplied.
	Add(ctx context.Context, cred *model.Credential, entry model.AuditEntry) (int64, error)

	// Find returns the first credential for target, narrowed by username when
	// non-empty. target.ID is matched against both target_id and target_name.
	// Returns (nil, nil) if no credential matches.
	Find(ctx context.Context, target model.Target, username string) (*model.Credential, error)

	// Get returns the credential with the given ID, or (nil, nil) if absent.
	Get(ctx context.Context, id int64) (*model.Credential, error)

	// List returns metadata for every credential ordered by target type and id.
	List(ctx context.Context) ([]model.CredentialSummary, error)

	// All returns every credential including ciphertext columns.
	All(ctx context.Context) ([]model.Credential, error)

	// Delete removes the credential with the given ID and inserts entry in the
	// same transaction. Returns false if no such credential existed, in which
	// case nothing is written.
	Delete(ctx context.Context, id int64, entry model.AuditEntry) (bool, error)
}
