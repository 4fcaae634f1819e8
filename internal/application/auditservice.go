package application

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/homevault/internal/domain/model"
	"github.com/ericfisherdev/homevault/internal/domain/port/driven"
)

// AuditService records administrative events from collaborators (host and VM
// managers, import jobs) and serves audit queries.
type AuditService struct {
	store  driven.AuditStore
	call   storeCall
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditService creates a new AuditService. storeTimeout bounds each store
// round trip; zero means no timeout.
func NewAuditService(store driven.AuditStore, storeTimeout time.Duration, logger *slog.Logger) *AuditService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditService{
		store:  store,
		call:   storeCall{timeout: storeTimeout},
		logger: logger,
		now:    time.Now,
	}
}

// RecordRequest is an audit event supplied by a collaborator. User defaults
// to model.SystemUser.
type RecordRequest struct {
	Action     model.AuditAction
	TargetType string
	TargetID   string
	User       string
	Details    string
	Success    bool
}

// Record appends an entry and returns its ID. It completes before returning.
func (s *AuditService) Record(ctx context.Context, req RecordRequest) (int64, error) {
	action := model.AuditAction(strings.TrimSpace(string(req.Action)))
	if action == "" {
		return 0, &model.ValidationError{Field: "action", Msg: "audit action is required"}
	}

	entry := model.AuditEntry{
		Action:     action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		User:       actorOrSystem(strings.TrimSpace(req.User)),
		Details:    req.Details,
		Success:    req.Success,
		Timestamp:  auditTime(s.now()),
	}

	callCtx, cancel := s.call.context(ctx)
	defer cancel()

	id, err := s.store.Record(callCtx, entry)
	if err != nil {
		return 0, storageError("record audit entry", err)
	}

	s.logger.Debug("audit entry recorded", "id", id, "action", action, "target_type", entry.TargetType, "target_id", entry.TargetID)
	return id, nil
}

// Query returns entries matching filter, newest first.
func (s *AuditService) Query(ctx context.Context, filter model.AuditFilter) ([]model.AuditEntry, error) {
	if !filter.Since.IsZero() && !filter.Until.IsZero() && !filter.Until.After(filter.Since) {
		return nil, &model.ValidationError{Field: "until", Msg: "must be after since"}
	}

	callCtx, cancel := s.call.context(ctx)
	defer cancel()

	entries, err := s.store.Query(callCtx, filter)
	if err != nil {
		return nil, storageError("query audit log", err)
	}
	return entries, nil
}
