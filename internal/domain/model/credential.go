package model

import (
	"log/slog"
	"time"
)

// Credential is a stored credential record. Password and API token are held
// only as ciphertext tokens; SSHKeyPath is a file reference and stays plaintext.
type Credential struct {
	ID                 int64
	TargetType         TargetType
	TargetID           string
	TargetName         string
	DisplayName        string
	Username           string
	PasswordCiphertext string
	SSHKeyPath         string
	APITokenCiphertext string
	AuthType           AuthType
	IsRoot             bool
	Notes              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Target returns the address of the record's target.
func (c *Credential) Target() Target {
	return Target{Type: c.TargetType, ID: c.TargetID}
}

// CredentialSummary is the metadata-only listing shape. It never carries
// ciphertext or plaintext.
type CredentialSummary struct {
	ID          int64      `json:"id" yaml:"id"`
	TargetType  TargetType `json:"target_type" yaml:"target_type"`
	TargetID    string     `json:"target_id" yaml:"target_id"`
	TargetName  string     `json:"target_name,omitempty" yaml:"target_name,omitempty"`
	DisplayName string     `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Username    string     `json:"username" yaml:"username"`
	AuthType    AuthType   `json:"auth_type" yaml:"auth_type"`
	IsRoot      bool       `json:"is_root" yaml:"is_root"`
	HasPassword bool       `json:"has_password" yaml:"has_password"`
	HasAPIToken bool       `json:"has_api_token" yaml:"has_api_token"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"updated_at"`
}

const redacted = "[REDACTED]"

// UndecryptableMarker is shown in place of a secret that failed to decrypt.
const UndecryptableMarker = "[DECRYPTION_FAILED]"

// Secret is a decrypted secret field. Its string, log and JSON forms are
// redacted; the plaintext is only reachable through Reveal.
type Secret struct {
	State     SecretState
	plaintext string
}

// DecryptedSecret wraps a plaintext value.
func DecryptedSecret(plaintext string) Secret {
	return Secret{State: SecretDecrypted, plaintext: plaintext}
}

// Reveal returns the plaintext. It is empty unless State is SecretDecrypted.
func (s Secret) Reveal() string {
	return s.plaintext
}

// Present reports whether the record had a value for this field at all.
func (s Secret) Present() bool {
	return s.State == SecretDecrypted || s.State == SecretUndecryptable
}

func (s Secret) String() string {
	switch s.State {
	case SecretDecrypted:
		return redacted
	case SecretUndecryptable:
		return UndecryptableMarker
	default:
		return ""
	}
}

// LogValue keeps plaintext out of structured logs.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

// MarshalText keeps plaintext out of encoded output.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CredentialView is the decrypted shape returned to callers. It never
// includes ciphertext.
type CredentialView struct {
	ID          int64
	Target      Target
	TargetName  string
	DisplayName string
	Username    string
	Password    Secret
	APIToken    Secret
	SSHKeyPath  string
	AuthType    AuthType
	IsRoot      bool
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UndecryptableFields lists the secret fields that failed to decrypt.
func (v *CredentialView) UndecryptableFields() []SecretField {
	var fields []SecretField
	if v.Password.State == SecretUndecryptable {
		fields = append(fields, SecretFieldPassword)
	}
	if v.APIToken.State == SecretUndecryptable {
		fields = append(fields, SecretFieldAPIToken)
	}
	return fields
}
