package driven

import (
	"context"

	"github.com/ericfisherdev/homevault/internal/domain/model"
)

// AuditStore defines the driven port for the append-only audit log. Entries
// are immutable once recorded: there is no update or delete method.
type AuditStore interface {
	// Record appends entry and returns its ID.
	Record(ctx context.Context, entry model.AuditEntry) (int64, error)

	// Query returns entries matching filter, newest first.
	Query(ctx context.Context, filter model.AuditFilter) ([]model.AuditEntry, error)
}
