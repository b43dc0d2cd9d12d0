package core

// session.go tracks the two-step import protocol.
//
// A session moves from staged to previewed (any number of times) to committed.
// Committed is terminal: the upload and preview are dropped, the result is
// kept, and every further commit fails with ErrAlreadyCommitted.

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ImportSession is the server-side state of one import.
type ImportSession struct {
	ID          string       `json:"id"`
	EntityID    uuid.UUID    `json:"entityId"`
	Actor       string       `json:"actor"`
	FileName    string       `json:"fileName"`
	Encoding    string       `json:"encoding,omitempty"`
	Upload      []byte       `json:"upload,omitempty"`
	Preview     *BatchResult `json:"preview,omitempty"`
	Result      *BatchResult `json:"result,omitempty"`
	Committed   bool         `json:"committed"`
	CreatedAt   time.Time    `json:"createdAt"`
	CommittedAt *time.Time   `json:"committedAt,omitempty"`
}

// SessionBackend stores sessions. Load returns ErrSessionNotFound for an
// unknown id. Lock serializes commits of one session and returns
// ErrSessionBusy when the session is already locked.
type SessionBackend interface {
	Load(ctx context.Context, id string) (*ImportSession, error)
	Save(ctx context.Context, s *ImportSession) error
	Lock(ctx context.Context, id string) (unlock func(), err error)
}

// CommitFunc runs the save-mode import for the selected rows of a session.
type CommitFunc func(ctx context.Context, s *ImportSession, selected []int) (*BatchResult, error)

// SessionStore implements the session protocol on top of a backend.
type SessionStore struct {
	backend SessionBackend
	now     func() time.Time
}

// NewSessionStore returns a store using backend.
func NewSessionStore(backend SessionBackend) *SessionStore {
	return &SessionStore{backend: backend, now: time.Now}
}

// Stage records a new upload. The session starts uncommitted.
func (s *SessionStore) Stage(ctx context.Context, sess *ImportSession) error {
	if sess.ID == "" {
		return fmt.Errorf("stage import: empty id")
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = s.now().UTC()
	}
	sess.Committed = false
	sess.CommittedAt = nil
	sess.Result = nil

	if err := s.backend.Save(ctx, sess); err != nil {
		return fmt.Errorf("stage import %s: %w", sess.ID, err)
	}
	return nil
}

// Get returns the session with the given id.
func (s *SessionStore) Get(ctx context.Context, id string) (*ImportSession, error) {
	sess, err := s.backend.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load import %s: %w", id, err)
	}
	return sess, nil
}

// SetPreview stores the latest preview of an uncommitted session.
func (s *SessionStore) SetPreview(ctx context.Context, id string, preview *BatchResult) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess.Committed {
		return fmt.Errorf("set preview %s: %w", id, ErrAlreadyCommitted)
	}

	sess.Preview = preview
	if err := s.backend.Save(ctx, sess); err != nil {
		return fmt.Errorf("save preview %s: %w", id, err)
	}
	return nil
}

// GetPreview returns the stored preview. A committed session has none.
func (s *SessionStore) GetPreview(ctx context.Context, id string) (*BatchResult, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Committed {
		return nil, fmt.Errorf("get preview %s: %w", id, ErrAlreadyCommitted)
	}
	return sess.Preview, nil
}

// IsCommitted reports whether the session has been committed.
func (s *SessionStore) IsCommitted(ctx context.Context, id string) (bool, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return sess.Committed, nil
}

// Commit runs run for the selected rows and marks the session committed.
// When run fails the session stays uncommitted and can be retried.
func (s *SessionStore) Commit(ctx context.Context, id string, selected []int, run CommitFunc) (*BatchResult, error) {
	if len(selected) == 0 {
		return nil, ErrEmptySelection
	}

	unlock, err := s.backend.Lock(ctx, id)
	if err != nil {
		getMetrics().commits.WithLabelValues("busy").Inc()
		return nil, fmt.Errorf("commit import %s: %w", id, err)
	}
	defer unlock()

	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Committed {
		getMetrics().commits.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("commit import %s: %w", id, ErrAlreadyCommitted)
	}

	result, err := run(ctx, sess, selected)
	if err != nil {
		getMetrics().commits.WithLabelValues("error").Inc()
		return nil, err
	}

	now := s.now().UTC()
	sess.Result = result
	sess.Committed = true
	sess.CommittedAt = &now
	sess.Preview = nil
	sess.Upload = nil

	// The rows are stored by now; record that even if the caller has gone.
	if err := s.backend.Save(context.WithoutCancel(ctx), sess); err != nil {
		getMetrics().commits.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("save committed import %s: %w", id, err)
	}

	getMetrics().commits.WithLabelValues("ok").Inc()
	return result, nil
}
