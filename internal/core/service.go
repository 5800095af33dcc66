package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound is returned for unknown or expired session IDs.
	ErrSessionNotFound = errors.New("import session not found")

	// ErrUnknownEntity is returned when no schema is registered for an entity.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrNotImporting is returned when cancelling a session that is not committing.
	ErrNotImporting = errors.New("session is not importing")
)

// Defaults for ServiceOptions.
const (
	DefaultImportTimeout = 10 * time.Minute
	DefaultSessionTTL    = time.Hour
)

// ServiceOptions configures a Service. Zero values select the defaults.
type ServiceOptions struct {
	Limits        Limits
	BatchSize     int
	Concurrency   int
	MaxConcurrent int           // Imports committing at once across all sessions
	MaxWait       time.Duration // How long an import waits for a free slot
	ImportTimeout time.Duration // Upper bound on one commit
	SessionTTL    time.Duration // Idle sessions older than this are expired
}

// Service hosts import sessions and runs their commits in the background.
type Service struct {
	opts    ServiceOptions
	limiter *UploadLimiter

	mu       sync.RWMutex
	sessions map[string]*hostedSession
}

type hostedSession struct {
	ID     string
	Entity string

	mu       sync.Mutex
	session  *Session
	lastUsed time.Time

	// Client that started the current import, if any.
	startedBy RequestMetadata

	// Set while a commit is running.
	cancel     context.CancelFunc
	done       chan struct{}
	progress   CommitProgress
	listeners  []chan CommitProgress
	listenerMu sync.Mutex
}

// NewService creates a Service.
func NewService(opts ServiceOptions) *Service {
	if opts.Limits.MaxFileSize <= 0 {
		opts.Limits.MaxFileSize = DefaultMaxFileSize
	}
	if opts.Limits.MaxRows <= 0 {
		opts.Limits.MaxRows = DefaultMaxRows
	}
	if opts.ImportTimeout <= 0 {
		opts.ImportTimeout = DefaultImportTimeout
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	return &Service{
		opts:     opts,
		limiter:  NewUploadLimiter(opts.MaxConcurrent, opts.MaxWait),
		sessions: make(map[string]*hostedSession),
	}
}

// ListSchemas returns every registered entity schema.
func (s *Service) ListSchemas() []Schema {
	return All()
}

// CreateSession opens a new import flow for entity and returns its ID.
func (s *Service) CreateSession(entity string) (string, error) {
	schema, ok := Get(entity)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}

	hs := &hostedSession{
		ID:       uuid.New().String(),
		Entity:   entity,
		session:  NewSession(schema, s.opts.Limits),
		lastUsed: time.Now(),
	}

	s.mu.Lock()
	s.sessions[hs.ID] = hs
	s.mu.Unlock()

	slog.Info("import session created", "session_id", hs.ID, "entity", entity)
	return hs.ID, nil
}

// CloseSession discards a session. A running commit is cancelled.
func (s *Service) CloseSession(id string) error {
	s.mu.Lock()
	hs, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	hs.mu.Lock()
	if hs.cancel != nil {
		hs.cancel()
	}
	hs.mu.Unlock()

	slog.Info("import session closed", "session_id", id, "entity", hs.Entity)
	return nil
}

// SessionCount returns the number of open sessions.
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Snapshot returns the current state of a session.
func (s *Service) Snapshot(id string) (SessionSnapshot, error) {
	var snap SessionSnapshot
	err := s.with(id, func(hs *hostedSession) error {
		snap = hs.snapshot()
		return nil
	})
	return snap, err
}

// Upload parses a file into the session. size may be -1 when unknown.
func (s *Service) Upload(id, fileName string, r io.Reader, size int64) (SessionSnapshot, error) {
	var snap SessionSnapshot
	err := s.with(id, func(hs *hostedSession) error {
		if err := hs.session.Upload(fileName, r, size); err != nil {
			return err
		}
		slog.Info("file parsed",
			"session_id", id,
			"file", fileName,
			"rows", len(hs.session.RawRows()),
			"columns", len(hs.session.Headers()),
		)
		snap = hs.snapshot()
		return nil
	})
	return snap, err
}

// UpdateMapping changes the target field of one source column.
func (s *Service) UpdateMapping(id, sourceColumn string, target Field) (SessionSnapshot, error) {
	var snap SessionSnapshot
	err := s.with(id, func(hs *hostedSession) error {
		if err := hs.session.UpdateMapping(sourceColumn, target); err != nil {
			return err
		}
		snap = hs.snapshot()
		return nil
	})
	return snap, err
}

// Preview validates the session's rows and moves it to the preview step.
func (s *Service) Preview(id string) (SessionSnapshot, error) {
	var snap SessionSnapshot
	err := s.with(id, func(hs *hostedSession) error {
		if err := hs.session.ProceedToPreview(); err != nil {
			return err
		}
		slog.Info("rows validated",
			"session_id", id,
			"valid", len(hs.session.ValidRows()),
			"errors", len(hs.session.Errors()),
		)
		snap = hs.snapshot()
		return nil
	})
	return snap, err
}

// Reset returns a session to the upload step, discarding its data.
func (s *Service) Reset(id string) (SessionSnapshot, error) {
	var snap SessionSnapshot
	err := s.with(id, func(hs *hostedSession) error {
		if err := hs.session.Reset(); err != nil {
			return err
		}
		hs.startedBy = RequestMetadata{}
		snap = hs.snapshot()
		return nil
	})
	return snap, err
}

// StartImport begins committing the session's valid rows in the background.
// It blocks until an import slot is free and returns ErrTooManyUploads if
// none frees up in time. Use SubscribeProgress and WaitForResult to follow it.
// A session that cannot start is rejected before waiting for a slot.
func (s *Service) StartImport(ctx context.Context, id string, creator EntityCreator) error {
	hs, err := s.lookup(id)
	if err != nil {
		return err
	}

	if err := hs.canStartImport(); err != nil {
		return err
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return err
	}

	hs.mu.Lock()
	rows, err := hs.session.BeginImport()
	if err != nil {
		hs.mu.Unlock()
		s.limiter.Release()
		return err
	}
	importCtx, cancel := context.WithTimeout(context.Background(), s.opts.ImportTimeout)
	hs.cancel = cancel
	done := make(chan struct{})
	hs.done = done
	hs.progress = CommitProgress{Total: len(rows)}
	hs.lastUsed = time.Now()
	hs.startedBy = RequestMetadataFromContext(ctx)
	meta := hs.startedBy
	hs.mu.Unlock()

	slog.Info("import started", append([]any{
		"session_id", id,
		"entity", hs.Entity,
		"rows", len(rows),
	}, meta.logAttrs()...)...)

	go func() {
		defer s.limiter.Release()
		defer cancel()
		s.runImport(importCtx, hs, rows, creator, done)
	}()

	return nil
}

// runImport commits rows and moves the session to complete, whatever happens.
func (s *Service) runImport(ctx context.Context, hs *hostedSession, rows []ValidRow, creator EntityCreator, done chan struct{}) {
	start := time.Now()
	var result ImportResult

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in import", "session_id", hs.ID, "entity", hs.Entity, "panic", r)
			result = failAll(rows, fmt.Sprintf("internal error: %v", r))
		}

		hs.mu.Lock()
		if err := hs.session.CompleteImport(result); err != nil {
			slog.Error("complete import", "session_id", hs.ID, "error", err)
		}
		hs.cancel = nil
		hs.lastUsed = time.Now()
		hs.progress.Done = true
		final := hs.progress
		meta := hs.startedBy
		hs.mu.Unlock()

		hs.notify(final)
		hs.closeListeners()
		close(done)

		slog.Info("import finished", append([]any{
			"session_id", hs.ID,
			"entity", hs.Entity,
			"total", result.TotalRows,
			"successful", result.SuccessfulRows,
			"failed", result.FailedRows,
			"duration_ms", time.Since(start).Milliseconds(),
		}, meta.logAttrs()...)...)
	}()

	result = Commit(ctx, rows, creator, CommitOptions{
		BatchSize:   s.opts.BatchSize,
		Concurrency: s.opts.Concurrency,
		OnProgress: func(p CommitProgress) {
			hs.mu.Lock()
			hs.progress = p
			hs.mu.Unlock()
			hs.notify(p)
			slog.Debug("batch committed", "session_id", hs.ID, "batch", p.Batch, "of", p.Batches)
		},
	})
}

// failAll builds a result in which no row was created.
func failAll(rows []ValidRow, message string) ImportResult {
	result := ImportResult{TotalRows: len(rows), FailedRows: len(rows), Errors: make([]CommitError, len(rows))}
	for i, r := range rows {
		result.Errors[i] = CommitError{Row: r.Row, Message: message, Data: r.Record}
	}
	return result
}

// CancelImport stops a running commit. Rows not yet attempted are recorded as failed.
func (s *Service) CancelImport(id string) error {
	return s.with(id, func(hs *hostedSession) error {
		if hs.cancel == nil {
			return ErrNotImporting
		}
		hs.cancel()
		slog.Info("import cancelled", "session_id", id)
		return nil
	})
}

// SubscribeProgress returns a channel of commit progress. The channel is
// closed when the commit finishes. The current progress is sent immediately.
func (s *Service) SubscribeProgress(id string) (<-chan CommitProgress, error) {
	hs, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	ch := make(chan CommitProgress, 10)

	// Holding listenerMu across the check keeps closeListeners from running
	// between it and the append.
	hs.listenerMu.Lock()
	defer hs.listenerMu.Unlock()

	hs.mu.Lock()
	running := hs.done != nil && !hs.progress.Done
	current := hs.progress
	hs.mu.Unlock()

	ch <- current
	if !running {
		close(ch)
		return ch, nil
	}
	hs.listeners = append(hs.listeners, ch)
	return ch, nil
}

// WaitForResult blocks until the session's commit finishes or ctx ends.
func (s *Service) WaitForResult(ctx context.Context, id string) (*ImportResult, error) {
	hs, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	hs.mu.Lock()
	done := hs.done
	hs.mu.Unlock()
	if done == nil {
		return nil, ErrNotImporting
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	hs.mu.Lock()
	defer hs.mu.Unlock()
	return hs.session.Result(), nil
}

// WriteErrorReport writes the validation and commit errors of a session as CSV.
func (s *Service) WriteErrorReport(id string, w io.Writer) error {
	return s.with(id, func(hs *hostedSession) error {
		return WriteErrorReport(w, hs.session.Errors(), hs.session.Result())
	})
}

// UploadLimiterStatus returns the import slot usage.
func (s *Service) UploadLimiterStatus() UploadLimiterStatus {
	return s.limiter.Status()
}

// WaitForUploads blocks until no import is committing or ctx ends.
func (s *Service) WaitForUploads(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) lookup(id string) (*hostedSession, error) {
	s.mu.RLock()
	hs, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return hs, nil
}

// with runs fn while holding the session lock.
func (s *Service) with(id string, fn func(*hostedSession) error) error {
	hs, err := s.lookup(id)
	if err != nil {
		return err
	}
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.lastUsed = time.Now()
	return fn(hs)
}

// snapshot must be called with hs.mu held.
func (hs *hostedSession) snapshot() SessionSnapshot {
	snap := hs.session.Snapshot()
	snap.ID = hs.ID
	if !hs.startedBy.IsZero() {
		m := hs.startedBy
		snap.StartedBy = &m
	}
	return snap
}

// canStartImport reports whether BeginImport would succeed right now.
func (hs *hostedSession) canStartImport() error {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	if step := hs.session.Step(); step != StepPreview {
		return &TransitionError{From: step, Action: "start an import"}
	}
	if len(hs.session.ValidRows()) == 0 {
		return ErrNoValidRows
	}
	return nil
}

// notify sends progress to all listeners without blocking.
func (hs *hostedSession) notify(p CommitProgress) {
	hs.listenerMu.Lock()
	defer hs.listenerMu.Unlock()

	for _, ch := range hs.listeners {
		select {
		case ch <- p:
		default:
			// Listener is slow, skip this update
		}
	}
}

// closeListeners closes all listener channels.
func (hs *hostedSession) closeListeners() {
	hs.listenerMu.Lock()
	defer hs.listenerMu.Unlock()

	for _, ch := range hs.listeners {
		close(ch)
	}
	hs.listeners = nil
}
