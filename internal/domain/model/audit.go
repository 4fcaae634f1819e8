package model

import "time"

// SystemUser is recorded as the actor when no human actor is known.
const SystemUser = "system"

// AuditAction names a security-relevant event.
type AuditAction string

const (
	ActionCredentialAdded        AuditAction = "credential_added"
	ActionCredentialAddFailed    AuditAction = "credential_add_failed"
	ActionCredentialAccessed     AuditAction = "credential_accessed"
	ActionCredentialAccessFailed AuditAction = "credential_access_failed"
	ActionCredentialDeleted      AuditAction = "credential_deleted"
	ActionCredentialDeleteFailed AuditAction = "credential_delete_failed"
	ActionCredentialsVerified    AuditAction = "credentials_verified"

	// Administrative events recorded by collaborators.
	ActionHostCreated     AuditAction = "host_created"
	ActionVMCreated       AuditAction = "vm_created"
	ActionVMStatusUpdated AuditAction = "vm_status_updated"
	ActionServiceAdded    AuditAction = "service_added"
)

// AuditEntry is an immutable audit record.
type AuditEntry struct {
	ID         int64       `json:"id" yaml:"id"`
	Action     AuditAction `json:"action" yaml:"action"`
	TargetType string      `json:"target_type" yaml:"target_type"`
	TargetID   string      `json:"target_id" yaml:"target_id"`
	User       string      `json:"user" yaml:"user"`
	Details    string      `json:"details" yaml:"details"`
	Success    bool        `json:"success" yaml:"success"`
	Timestamp  time.Time   `json:"timestamp" yaml:"timestamp"`
}

// AuditFilter narrows an audit query. Zero values mean "no constraint";
// Limit <= 0 falls back to DefaultAuditLimit.
type AuditFilter struct {
	Action     AuditAction
	TargetType string
	Since      time.Time
	Until      time.Time
	Limit      int
}

// DefaultAuditLimit caps audit queries that do not set a limit.
const DefaultAuditLimit = 100

// EffectiveLimit returns the limit to apply to a query.
func (f AuditFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultAuditLimit
	}
	return f.Limit
}
