package core

// service.go ties decoding, the engine and the session store together into
// the upload, preview and commit operations exposed to transports.

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/staffimport/internal/logging"
	"github.com/google/uuid"
)

// DecodeHint tells a Decoder how to read an upload.
type DecodeHint struct {
	FileName string
	Encoding string // charset name for text formats, empty for auto
}

// Decoder turns an upload into rows in column order. Any failure is returned
// as a *ParseError.
type Decoder interface {
	Decode(data []byte, hint DecodeHint) ([]RawRow, error)
}

// ServiceConfig holds the tunables of a Service.
type ServiceConfig struct {
	MaxConcurrentRuns int
	MaxWaitTime       time.Duration
	// RunTimeout bounds preview runs. Save runs always finish.
	RunTimeout time.Duration
}

// Service provides the import operations.
type Service struct {
	engine   *Engine
	decoder  Decoder
	sessions *SessionStore
	limiter  *RunLimiter
	audit    AuditLogger
	timeout  time.Duration
}

// NewService returns a Service. audit may be nil.
func NewService(engine *Engine, decoder Decoder, sessions *SessionStore, audit AuditLogger, cfg ServiceConfig) *Service {
	return &Service{
		engine:   engine,
		decoder:  decoder,
		sessions: sessions,
		limiter:  NewRunLimiter(cfg.MaxConcurrentRuns, cfg.MaxWaitTime),
		audit:    audit,
		timeout:  cfg.RunTimeout,
	}
}

// UploadRequest is a new import.
type UploadRequest struct {
	EntityID uuid.UUID
	Actor    string
	FileName string
	Encoding string
	Data     []byte

	// SkipPreview stages the upload without running the preview.
	SkipPreview bool
}

// Upload decodes and stages an upload, then previews it. It returns the new
// session id and the preview (nil with SkipPreview). An undecodable upload
// is rejected before a session is created.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (string, *BatchResult, error) {
	rows, err := s.decoder.Decode(req.Data, DecodeHint{FileName: req.FileName, Encoding: req.Encoding})
	if err != nil {
		return "", nil, err
	}

	sess := &ImportSession{
		ID:       uuid.NewString(),
		EntityID: req.EntityID,
		Actor:    req.Actor,
		FileName: req.FileName,
		Encoding: req.Encoding,
		Upload:   req.Data,
	}
	if err := s.sessions.Stage(ctx, sess); err != nil {
		return "", nil, err
	}
	ctx = logging.ContextWith(ctx, "import_id", sess.ID, "entity_id", sess.EntityID)
	s.logAudit(ctx, ActionImportUpload, sess, nil)
	logging.FromContext(ctx).Info("import staged", "file", sess.FileName, "rows", len(rows), "bytes", len(req.Data))

	if req.SkipPreview {
		return sess.ID, nil, nil
	}

	preview, err := s.runPreview(ctx, sess, rows)
	if err != nil {
		return sess.ID, nil, err
	}
	return sess.ID, preview, nil
}

// Preview re-runs the preview of a staged import and stores it.
func (s *Service) Preview(ctx context.Context, id string) (*BatchResult, error) {
	ctx = logging.ContextWith(ctx, "import_id", id)
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Committed {
		return nil, fmt.Errorf("preview import %s: %w", id, ErrAlreadyCommitted)
	}

	rows, err := s.decoder.Decode(sess.Upload, DecodeHint{FileName: sess.FileName, Encoding: sess.Encoding})
	if err != nil {
		return nil, err
	}
	return s.runPreview(ctx, sess, rows)
}

// Get returns the session of an import without its upload.
func (s *Service) Get(ctx context.Context, id string) (*ImportSession, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Upload = nil
	return sess, nil
}

// GetPreview returns the stored preview of an import.
func (s *Service) GetPreview(ctx context.Context, id string) (*BatchResult, error) {
	return s.sessions.GetPreview(ctx, id)
}

// Commit imports the selected rows of a staged import. It succeeds at most
// once per import.
func (s *Service) Commit(ctx context.Context, id string, selected []int) (*BatchResult, error) {
	ctx = logging.ContextWith(ctx, "import_id", id)
	result, err := s.sessions.Commit(ctx, id, selected, s.runCommit)
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("import committed",
		"selected", len(selected),
		"records", len(result.RecordResults),
		"failed", result.FailedNumber,
	)
	return result, nil
}

// RunFile decodes data and runs the engine directly, without a session.
func (s *Service) RunFile(ctx context.Context, data []byte, hint DecodeHint, opts RunOptions) (*BatchResult, error) {
	rows, err := s.decoder.Decode(data, hint)
	if err != nil {
		return nil, err
	}
	if opts.FileName == "" {
		opts.FileName = hint.FileName
	}
	return s.run(ctx, rows, opts)
}

// LimiterStatus reports the run limiter state.
func (s *Service) LimiterStatus() RunLimiterStatus {
	return s.limiter.Status()
}

// WaitForRuns blocks until in-flight runs finish or ctx is done.
func (s *Service) WaitForRuns(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) runCommit(ctx context.Context, sess *ImportSession, selected []int) (*BatchResult, error) {
	rows, err := s.decoder.Decode(sess.Upload, DecodeHint{FileName: sess.FileName, Encoding: sess.Encoding})
	if err != nil {
		return nil, err
	}
	if len(selectRows(len(rows), selected)) == 0 {
		return nil, fmt.Errorf("commit import %s: no selected row in range: %w", sess.ID, ErrEmptySelection)
	}

	result, err := s.run(ctx, rows, RunOptions{
		EntityID: sess.EntityID,
		Actor:    sess.Actor,
		FileName: sess.FileName,
		Save:     true,
		Selected: selected,
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, ActionImportCommit, sess, result)
	return result, nil
}

func (s *Service) runPreview(ctx context.Context, sess *ImportSession, rows []RawRow) (*BatchResult, error) {
	preview, err := s.run(ctx, rows, RunOptions{
		EntityID: sess.EntityID,
		Actor:    sess.Actor,
		FileName: sess.FileName,
	})
	if err != nil {
		return nil, err
	}

	if err := s.sessions.SetPreview(ctx, sess.ID, preview); err != nil {
		return nil, err
	}
	s.logAudit(ctx, ActionImportPreview, sess, preview)
	return preview, nil
}

// run executes the engine while holding a limiter slot. Once it holds the
// slot, a save run is detached from ctx and has no timeout.
func (s *Service) run(ctx context.Context, rows []RawRow, opts RunOptions) (*BatchResult, error) {
	var result *BatchResult
	err := s.limiter.Do(ctx, func(ctx context.Context) error {
		if opts.Save {
			ctx = context.WithoutCancel(ctx)
		} else if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		var err error
		result, err = s.engine.Run(ctx, rows, opts)
		return err
	})
	return result, err
}

// logAudit records an audit entry. Failures are logged, never returned.
func (s *Service) logAudit(ctx context.Context, action AuditAction, sess *ImportSession, result *BatchResult) {
	if s.audit == nil {
		return
	}
	entry := newAuditEntry(ctx, action, sess, result)
	if err := s.audit.RecordAudit(ctx, entry); err != nil {
		logging.FromContext(ctx).Warn("audit log failed", "action", action, "error", err)
	}
}
