// Package audit is a write-only, best-effort audit trail. Events are queued
// on a buffered channel and persisted by a single worker; a full buffer
// drops the event instead of blocking the caller.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"sessions/internal/domain/models"
	"sessions/internal/lib/logger/sl"
	"sessions/internal/metrics"
)

const (
	ActionLogin        = "session.login"
	ActionLoginFailed  = "session.login_failed"
	ActionLogout       = "session.logout"
	ActionRefresh      = "session.refresh"
	ActionRevoke       = "session.revoke"
	ActionRevokeAll    = "session.revoke_all"
	ActionExpired      = "session.expired"
	ActionInvalidated  = "session.invalidated"
	ActionSessionLimit = "session.limit_enforced"
)

const saveTimeout = 5 * time.Second

type EventSaver interface {
	SaveAuditEvent(ctx context.Context, event models.AuditEvent) error
}

type Sink struct {
	log   *slog.Logger
	saver EventSaver

	mu     sync.RWMutex
	closed bool
	events chan models.AuditEvent
	done   chan struct{}
}

func New(log *slog.Logger, saver EventSaver, buffer int) *Sink {
	if buffer <= 0 {
		buffer = 1
	}

	s := &Sink{
		log:    log,
		saver:  saver,
		events: make(chan models.AuditEvent, buffer),
		done:   make(chan struct{}),
	}

	go s.worker()

	return s
}

// Record queues event. It never blocks and never fails.
func (s *Sink) Record(event models.AuditEvent) {
	const op = "audit.Record"

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}

	select {
	case s.events <- event:
	default:
		metrics.AuditEventsDroppedTotal.Inc()
		s.log.Warn("audit buffer full, event dropped",
			slog.String("op", op),
			slog.String("action", event.Action),
		)
	}
}

func (s *Sink) worker() {
	const op = "audit.worker"

	defer close(s.done)

	for event := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		if err := s.saver.SaveAuditEvent(ctx, event); err != nil {
			s.log.Error("failed to save audit event",
				slog.String("op", op),
				slog.String("action", event.Action),
				sl.Err(err),
			)
		}
		cancel()
	}
}

// Close stops accepting events and waits until queued ones are saved.
func (s *Sink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()

	<-s.done
}
