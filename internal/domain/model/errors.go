package model

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching against the typed errors below.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrDecryption    = errors.New("decryption failed")
	ErrStorage       = errors.New("storage error")
)

// FailureReason is the short machine-readable tag written to audit details
// when an operation is rejected.
type FailureReason string

const (
	ReasonNotFound        FailureReason = "not_found"
	ReasonInvalidType     FailureReason = "invalid_type"
	ReasonMissingUsername FailureReason = "missing_username"
	ReasonMissingSecret   FailureReason = "missing_secret"
	ReasonInvalidAuthType FailureReason = "invalid_auth_type"
	ReasonStorageError    FailureReason = "storage_error"
	ReasonEncryptFailed   FailureReason = "encrypt_failed"
)

// ConfigurationError reports missing or insecure key material. It is fatal at
// startup.
type ConfigurationError struct {
	Path string // File or directory involved, if any.
	Msg  string
	Err  error
}

func (e *ConfigurationError) Error() string {
	msg := e.Msg
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", e.Path, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("configuration: %s: %v", msg, e.Err)
	}
	return "configuration: " + msg
}

func (e *ConfigurationError) Unwrap() error        { return e.Err }
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// ValidationError reports a malformed request, such as a bad target address
// or a credential without any secret.
type ValidationError struct {
	Field  string
	Reason FailureReason
	Msg    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports an absent target or credential.
type NotFoundError struct {
	What string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.What, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// DecryptionError reports an authentication failure on a ciphertext token:
// malformed input, unknown version, tampering or the wrong key. It never
// carries plaintext.
type DecryptionError struct {
	Msg string
	Err error
}

func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decrypt: %s: %v", e.Msg, e.Err)
	}
	return "decrypt: " + e.Msg
}

func (e *DecryptionError) Unwrap() error        { return e.Err }
func (e *DecryptionError) Is(target error) bool { return target == ErrDecryption }

// StorageError reports an unreachable or timed-out backing store. Timeout is
// set when the operation hit its deadline or was cancelled.
type StorageError struct {
	Op      string
	Timeout bool
	Err     error
}

func (e *StorageError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("storage: %s: timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error        { return e.Err }
func (e *StorageError) Is(target error) bool { return target == ErrStorage }
