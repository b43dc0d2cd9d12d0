package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditAction is the kind of import step recorded in the audit log.
type AuditAction string

const (
	ActionImportUpload  AuditAction = "import_upload"
	ActionImportPreview AuditAction = "import_preview"
	ActionImportCommit  AuditAction = "import_commit"
)

// AuditSeverity ranks audit entries for review.
type AuditSeverity string

const (
	SeverityLow  AuditSeverity = "low"
	SeverityHigh AuditSeverity = "high"
)

// AuditEntry is one audit log row.
type AuditEntry struct {
	ID            uuid.UUID     `json:"id"`
	Action        AuditAction   `json:"action"`
	Severity      AuditSeverity `json:"severity"`
	SessionID     string        `json:"sessionId"`
	EntityID      uuid.UUID     `json:"entityId"`
	Actor         string        `json:"actor,omitempty"`
	FileName      string        `json:"fileName,omitempty"`
	IPAddress     string        `json:"ipAddress,omitempty"`
	UserAgent     string        `json:"userAgent,omitempty"`
	RecordsTotal  int           `json:"recordsTotal"`
	RecordsFailed int           `json:"recordsFailed"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// AuditLogger stores audit entries.
type AuditLogger interface {
	RecordAudit(ctx context.Context, e AuditEntry) error
}

func determineSeverity(action AuditAction) AuditSeverity {
	if action == ActionImportCommit {
		return SeverityHigh
	}
	return SeverityLow
}

// newAuditEntry builds an entry for sess, taking client details from ctx.
func newAuditEntry(ctx context.Context, action AuditAction, sess *ImportSession, result *BatchResult) AuditEntry {
	meta := RequestMetaFromContext(ctx)
	e := AuditEntry{
		ID:        uuid.New(),
		Action:    action,
		Severity:  determineSeverity(action),
		SessionID: sess.ID,
		EntityID:  sess.EntityID,
		Actor:     sess.Actor,
		FileName:  sess.FileName,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: time.Now().UTC(),
	}
	if result != nil {
		e.RecordsTotal = len(result.RecordResults)
		e.RecordsFailed = result.FailedNumber
	}
	return e
}
