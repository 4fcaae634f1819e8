package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/homevault/internal/domain/model"
	"github.com/ericfisherdev/homevault/internal/domain/port/driven"
)

// VaultService stores and retrieves credentials. Secret fields are encrypted
// with the injected Cipher before they reach the CredentialStore, and every
// mutation or access attempt produces exactly one audit entry.
type VaultService struct {
	creds  driven.CredentialStore
	audit  driven.AuditStore
	cipher driven.Cipher
	store  storeCall
	logger *slog.Logger
	now    func() time.Time
}

// VaultConfig holds optional VaultService settings.
type VaultConfig struct {
	// StoreTimeout bounds each store round trip. Zero means no timeout.
	StoreTimeout time.Duration
	Logger       *slog.Logger
}

// NewVaultService creates a new VaultService with the required dependencies.
func NewVaultService(creds driven.CredentialStore, audit driven.AuditStore, cipher driven.Cipher, cfg VaultConfig) *VaultService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &VaultService{
		creds:  creds,
		audit:  audit,
		cipher: cipher,
		store:  storeCall{timeout: cfg.StoreTimeout},
		logger: logger,
		now:    time.Now,
	}
}

// AddCredentialRequest describes a credential to store. Password and APIToken
// are plaintext here and are encrypted before storage. AuthType is derived
// from the supplied fields when empty.
type AddCredentialRequest struct {
	TargetType  string
	TargetID    string
	TargetName  string
	DisplayName string
	Username    string
	Password    string
	SSHKeyPath  string
	APIToken    string
	AuthType    model.AuthType
	IsRoot      bool
	Notes       string
	Actor       string
}

// AddCredential validates and stores a credential and returns its ID. The
// credential and its credential_added entry commit together. A rejected or
// failed add records a credential_add_failed entry instead.
func (s *VaultService) AddCredential(ctx context.Context, req AddCredentialRequest) (int64, error) {
	actor := actorOrSystem(req.Actor)

	target, err := model.NewTarget(req.TargetType, req.TargetID)
	if err != nil {
		return 0, s.rejectAdd(ctx, req.TargetType, req.TargetID, actor, err)
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		return 0, s.rejectAdd(ctx, req.TargetType, req.TargetID, actor, &model.ValidationError{
			Field:  "username",
			Reason: model.ReasonMissingUsername,
			Msg:    "username is required",
		})
	}

	hasPassword, hasKeyPath, hasToken := req.Password != "", req.SSHKeyPath != "", req.APIToken != ""
	if !hasPassword && !hasKeyPath && !hasToken {
		return 0, s.rejectAdd(ctx, req.TargetType, req.TargetID, actor, &model.ValidationError{
			Field:  "secret",
			Reason: model.ReasonMissingSecret,
			Msg:    "one of password, ssh key path or api token is required",
		})
	}

	authType := req.AuthType
	switch {
	case authType == "":
		authType = model.DeriveAuthType(hasPassword, hasKeyPath, hasToken)
	case !authType.Valid():
		return 0, s.rejectAdd(ctx, req.TargetType, req.TargetID, actor, &model.ValidationError{
			Field:  "auth_type",
			Reason: model.ReasonInvalidAuthType,
			Msg:    fmt.Sprintf("unknown auth type %q", authType),
		})
	}

	passwordToken, err := s.cipher.Encrypt(req.Password)
	if err != nil {
		return 0, s.failAdd(ctx, target, actor, model.ReasonEncryptFailed, fmt.Errorf("encrypt password: %w", err))
	}
	apiToken, err := s.cipher.Encrypt(req.APIToken)
	if err != nil {
		return 0, s.failAdd(ctx, target, actor, model.ReasonEncryptFailed, fmt.Errorf("encrypt api token: %w", err))
	}

	now := auditTime(s.now())
	cred := &model.Credential{
		TargetType:         target.Type,
		TargetID:           target.ID,
		TargetName:         strings.TrimSpace(req.TargetName),
		DisplayName:        strings.TrimSpace(req.DisplayName),
		Username:           username,
		PasswordCiphertext: passwordToken,
		SSHKeyPath:         req.SSHKeyPath,
		APITokenCiphertext: apiToken,
		AuthType:           authType,
		IsRoot:             req.IsRoot,
		Notes:              req.Notes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	entry := model.AuditEntry{
		Action:     model.ActionCredentialAdded,
		TargetType: string(target.Type),
		TargetID:   target.ID,
		User:       actor,
		Details:    fmt.Sprintf("username=%s auth_type=%s", username, authType),
		Success:    true,
		Timestamp:  now,
	}

	callCtx, cancel := s.store.context(ctx)
	id, err := s.creds.Add(callCtx, cred, entry)
	cancel()
	if err != nil {
		return 0, s.failAdd(ctx, target, actor, model.ReasonStorageError, storageError("add credential", err))
	}

	s.logger.Info("credential added",
		"credential_id", id,
		"target", target,
		"username", username,
		"auth_type", authType,
		"actor", actor,
	)
	return id, nil
}

// rejectAdd records a validation failure against the raw request values.
func (s *VaultService) rejectAdd(ctx context.Context, rawType, rawID, actor string, cause error) error {
	reason := model.ReasonInvalidType
	var ve *model.ValidationError
	if errors.As(cause, &ve) {
		reason = ve.Reason
	}
	auditErr := s.recordFailure(ctx, model.ActionCredentialAddFailed, rawType, rawID, actor, reason)
	return withAuditErr(cause, auditErr)
}

func (s *VaultService) failAdd(ctx context.Context, target model.Target, actor string, reason model.FailureReason, cause error) error {
	auditErr := s.recordFailure(ctx, model.ActionCredentialAddFailed, string(target.Type), target.ID, actor, reason)
	return withAuditErr(cause, auditErr)
}

// GetCredentialRequest identifies a credential to read. Username narrows the
// lookup when the target has several credentials.
type GetCredentialRequest struct {
	TargetType string
	TargetID   string
	Username   string
	Actor      string
}

// GetCredential looks up and decrypts a credential. Every call records exactly
// one audit entry. The error return is reserved for store failures, including
// a failure to write that audit entry, in which case no secrets are returned.
func (s *VaultService) GetCredential(ctx context.Context, req GetCredentialRequest) (AccessResult, error) {
	actor := actorOrSystem(req.Actor)

	target, err := model.NewTarget(req.TargetType, req.TargetID)
	if err != nil {
		return s.rejectAccess(ctx, req.TargetType+":"+req.TargetID, req.TargetType, req.TargetID, actor, err)
	}
	return s.access(ctx, target, strings.TrimSpace(req.Username), actor)
}

// GetCredentialByAddress is GetCredential for a "<type>:<id>" address such as
// "device:NAS".
func (s *VaultService) GetCredentialByAddress(ctx context.Context, address, username, actor string) (AccessResult, error) {
	actor = actorOrSystem(actor)

	target, err := model.ParseAddress(address)
	if err != nil {
		rawType, rawID := address, ""
		if before, after, ok := strings.Cut(address, ":"); ok {
			rawType, rawID = before, after
		}
		return s.rejectAccess(ctx, address, rawType, rawID, actor, err)
	}
	return s.access(ctx, target, strings.TrimSpace(username), actor)
}

func (s *VaultService) rejectAccess(ctx context.Context, address, rawType, rawID, actor string, cause error) (AccessResult, error) {
	reason := model.ReasonInvalidType
	var ve *model.ValidationError
	if errors.As(cause, &ve) {
		reason = ve.Reason
	}
	if err := s.recordFailure(ctx, model.ActionCredentialAccessFailed, rawType, rawID, actor, reason); err != nil {
		return nil, err
	}
	return InvalidTarget{Address: address, Reason: reason, Err: cause}, nil
}

func (s *VaultService) access(ctx context.Context, target model.Target, username, actor string) (AccessResult, error) {
	callCtx, cancel := s.store.context(ctx)
	cred, err := s.creds.Find(callCtx, target, username)
	cancel()
	if err != nil {
		serr := storageError("find credential", err)
		auditErr := s.recordFailure(ctx, model.ActionCredentialAccessFailed, string(target.Type), target.ID, actor, model.ReasonStorageError)
		return nil, withAuditErr(serr, auditErr)
	}

	if cred == nil {
		if err := s.recordFailure(ctx, model.ActionCredentialAccessFailed, string(target.Type), target.ID, actor, model.ReasonNotFound); err != nil {
			return nil, err
		}
		s.logger.Info("credential not found", "target", target, "actor", actor)
		return NotFound{Target: target}, nil
	}

	view := s.decryptView(cred, target)
	failed := view.UndecryptableFields()

	details := "username=" + cred.Username
	if len(failed) > 0 {
		details += " undecryptable=" + joinFields(failed)
	}
	entry := model.AuditEntry{
		Action:     model.ActionCredentialAccessed,
		TargetType: string(target.Type),
		TargetID:   target.ID,
		User:       actor,
		Details:    details,
		Success:    len(failed) == 0,
		Timestamp:  auditTime(s.now()),
	}

	callCtx, cancel = s.store.context(ctx)
	_, err = s.audit.Record(callCtx, entry)
	cancel()
	if err != nil {
		s.logger.Error("audit write failed, withholding credential",
			"credential_id", cred.ID,
			"target", target,
			"error", err,
		)
		return nil, storageError("record credential access", err)
	}

	s.logger.Info("credential accessed",
		"credential_id", cred.ID,
		"target", target,
		"username", cred.Username,
		"actor", actor,
	)

	if len(failed) > 0 {
		return DecryptFailed{View: view, Fields: failed}, nil
	}
	return Found{View: view}, nil
}

func (s *VaultService) decryptView(cred *model.Credential, target model.Target) model.CredentialView {
	return model.CredentialView{
		ID:          cred.ID,
		Target:      target,
		TargetName:  cred.TargetName,
		DisplayName: cred.DisplayName,
		Username:    cred.Username,
		Password:    s.decryptField(cred.ID, model.SecretFieldPassword, cred.PasswordCiphertext),
		APIToken:    s.decryptField(cred.ID, model.SecretFieldAPIToken, cred.APITokenCiphertext),
		SSHKeyPath:  cred.SSHKeyPath,
		AuthType:    cred.AuthType,
		IsRoot:      cred.IsRoot,
		Notes:       cred.Notes,
		CreatedAt:   cred.CreatedAt,
		UpdatedAt:   cred.UpdatedAt,
	}
}

// decryptField never fails: a token that does not authenticate yields an
// undecryptable Secret so the rest of the record is still usable.
func (s *VaultService) decryptField(id int64, field model.SecretField, token string) model.Secret {
	if token == "" {
		return model.Secret{State: model.SecretAbsent}
	}
	plaintext, err := s.cipher.Decrypt(token)
	if err != nil {
		s.logger.Warn("credential field failed to decrypt",
			"credential_id", id,
			"field", field,
			"error", err,
		)
		return model.Secret{State: model.SecretUndecryptable}
	}
	return model.DecryptedSecret(plaintext)
}

// ListCredentials returns metadata for every stored credential. Nothing is
// decrypted.
func (s *VaultService) ListCredentials(ctx context.Context) ([]model.CredentialSummary, error) {
	callCtx, cancel := s.store.context(ctx)
	defer cancel()

	summaries, err := s.creds.List(callCtx)
	if err != nil {
		return nil, storageError("list credentials", err)
	}
	return summaries, nil
}

// DeleteCredential removes a credential. The credential_deleted entry commits
// with the deletion; earlier audit entries for the credential are kept.
func (s *VaultService) DeleteCredential(ctx context.Context, id int64, actor string) error {
	actor = actorOrSystem(actor)
	key := strconv.FormatInt(id, 10)

	callCtx, cancel := s.store.context(ctx)
	cred, err := s.creds.Get(callCtx, id)
	cancel()
	if err != nil {
		serr := storageError("get credential", err)
		return withAuditErr(serr, s.recordFailure(ctx, model.ActionCredentialDeleteFailed, "", key, actor, model.ReasonStorageError))
	}
	if cred == nil {
		return s.deleteNotFound(ctx, key, actor)
	}

	entry := model.AuditEntry{
		Action:     model.ActionCredentialDeleted,
		TargetType: string(cred.TargetType),
		TargetID:   cred.TargetID,
		User:       actor,
		Details:    fmt.Sprintf("credential_id=%d username=%s", id, cred.Username),
		Success:    true,
		Timestamp:  auditTime(s.now()),
	}

	callCtx, cancel = s.store.context(ctx)
	deleted, err := s.creds.Delete(callCtx, id, entry)
	cancel()
	if err != nil {
		serr := storageError("delete credential", err)
		return withAuditErr(serr, s.recordFailure(ctx, model.ActionCredentialDeleteFailed, string(cred.TargetType), cred.TargetID, actor, model.ReasonStorageError))
	}
	if !deleted {
		return s.deleteNotFound(ctx, key, actor)
	}

	s.logger.Info("credential deleted",
		"credential_id", id,
		"target", cred.Target(),
		"actor", actor,
	)
	return nil
}

func (s *VaultService) deleteNotFound(ctx context.Context, key, actor string) error {
	notFound := &model.NotFoundError{What: "credential", Key: key}
	return withAuditErr(notFound, s.recordFailure(ctx, model.ActionCredentialDeleteFailed, "", key, actor, model.ReasonNotFound))
}

// VerifyReport summarises a VerifyCredentials sweep.
type VerifyReport struct {
	Records  int
	Fields   int
	Failures []VerifyFailure
}

// VerifyFailure identifies one secret field that did not decrypt.
type VerifyFailure struct {
	CredentialID int64
	Target       model.Target
	Username     string
	Field        model.SecretField
}

// VerifyCredentials checks that every stored secret decrypts under the active
// key. A failing field is reported and the sweep continues. One
// credentials_verified entry records the totals.
func (s *VaultService) VerifyCredentials(ctx context.Context, actor string) (*VerifyReport, error) {
	actor = actorOrSystem(actor)

	callCtx, cancel := s.store.context(ctx)
	creds, err := s.creds.All(callCtx)
	cancel()
	if err != nil {
		serr := storageError("load credentials", err)
		return nil, withAuditErr(serr, s.recordFailure(ctx, model.ActionCredentialsVerified, "", "", actor, model.ReasonStorageError))
	}

	report := &VerifyReport{Records: len(creds)}
	for i := range creds {
		cred := &creds[i]
		for _, f := range []struct {
			field model.SecretField
			token string
		}{
			{model.SecretFieldPassword, cred.PasswordCiphertext},
			{model.SecretFieldAPIToken, cred.APITokenCiphertext},
		} {
			if f.token == "" {
				continue
			}
			report.Fields++
			if s.decryptField(cred.ID, f.field, f.token).State == model.SecretDecrypted {
				continue
			}
			report.Failures = append(report.Failures, VerifyFailure{
				CredentialID: cred.ID,
				Target:       cred.Target(),
				Username:     cred.Username,
				Field:        f.field,
			})
		}
	}

	entry := model.AuditEntry{
		Action:    model.ActionCredentialsVerified,
		User:      actor,
		Details:   fmt.Sprintf("records=%d fields=%d undecryptable=%d", report.Records, report.Fields, len(report.Failures)),
		Success:   len(report.Failures) == 0,
		Timestamp: auditTime(s.now()),
	}
	callCtx, cancel = s.store.context(ctx)
	_, err = s.audit.Record(callCtx, entry)
	cancel()
	if err != nil {
		return nil, storageError("record verification", err)
	}

	s.logger.Info("credentials verified",
		"records", report.Records,
		"fields", report.Fields,
		"undecryptable", len(report.Failures),
		"actor", actor,
	)
	return report, nil
}

// recordFailure writes a failed-operation entry. It runs detached from ctx's
// deadline so a timed-out operation is still audited. The returned error is
// a *model.StorageError, or nil.
func (s *VaultService) recordFailure(ctx context.Context, action model.AuditAction, targetType, targetID, actor string, reason model.FailureReason) error {
	entry := model.AuditEntry{
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		User:       actor,
		Details:    string(reason),
		Success:    false,
		Timestamp:  auditTime(s.now()),
	}

	callCtx, cancel := s.store.detached(ctx)
	defer cancel()
	if _, err := s.audit.Record(callCtx, entry); err != nil {
		s.logger.Error("failed to record audit entry",
			"action", action,
			"target_type", targetType,
			"target_id", targetID,
			"error", err,
		)
		return storageError("record audit entry", err)
	}

	s.logger.Info("credential operation rejected",
		"action", action,
		"target_type", targetType,
		"target_id", targetID,
		"reason", reason,
		"actor", actor,
	)
	return nil
}

// withAuditErr attaches a failed audit write to the operation's own error.
func withAuditErr(cause, auditErr error) error {
	if auditErr == nil {
		return cause
	}
	return errors.Join(cause, auditErr)
}

func joinFields(fields []model.SecretField) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}
