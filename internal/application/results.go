package application

import "github.com/ericfisherdev/homevault/internal/domain/model"

// AccessResult is the outcome of a credential lookup. It is one of Found,
// DecryptFailed, NotFound or InvalidTarget; a type switch over those four is
// exhaustive.
type AccessResult interface {
	accessResult()
}

// Found carries a fully decrypted credential.
type Found struct {
	View model.CredentialView
}

// DecryptFailed carries a credential in which at least one secret field could
// not be decrypted. The remaining fields are intact; failed secrets read as
// model.UndecryptableMarker.
type DecryptFailed struct {
	View   model.CredentialView
	Fields []model.SecretField
}

// NotFound reports that no credential exists for the target.
type NotFound struct {
	Target model.Target
}

// InvalidTarget reports an address that was rejected before any store access.
type InvalidTarget struct {
	Address string
	Reason  model.FailureReason
	Err     error
}

func (Found) accessResult()         {}
func (DecryptFailed) accessResult() {}
func (NotFound) accessResult()      {}
func (InvalidTarget) accessResult() {}
