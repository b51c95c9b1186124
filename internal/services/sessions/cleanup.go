package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sessions/internal/audit"
	"sessions/internal/domain/autherr"
	"sessions/internal/domain/models"
	"sessions/internal/lib/logger/sl"
	"sessions/internal/metrics"
)

// EnforceSessionLimit runs one cleanup pass for the user: every active
// session beyond the MaxActiveSessions most recently active ones is
// deactivated. Passes are idempotent; concurrent logins may leave the user
// over the cap until the next pass.
func (m *Manager) EnforceSessionLimit(ctx context.Context, userID string) (int, error) {
	const op = "sessions.EnforceSessionLimit"

	log := m.log.With(
		slog.String("op", op),
		slog.String("user_id", userID),
	)

	if userID == "" {
		return 0, fmt.Errorf("%s: %w", op, autherr.ErrValidation)
	}

	limit := m.cfg.MaxActiveSessions
	if limit <= 0 {
		return 0, nil
	}

	page, err := m.sessionProvider.SessionsByUser(ctx, userID, models.SessionFilter{ActiveOnly: true})
	if err != nil {
		log.Error("failed to list sessions", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, storeErr(err))
	}

	if len(page.Sessions) <= limit {
		return 0, nil
	}

	var (
		deactivated int
		errs        []error
	)
	now := m.now()
	for _, session := range page.Sessions[limit:] {
		changed, err := m.sessionSaver.DeactivateSession(ctx, session.ID, models.ReasonSessionLimit, now)
		if err != nil {
			log.Warn("failed to deactivate session", slog.String("session_id", session.ID), sl.Err(err))
			errs = append(errs, err)
			continue
		}
		if !changed {
			continue
		}

		deactivated++
		metrics.SessionsDeactivatedTotal.WithLabelValues(string(models.ReasonSessionLimit)).Inc()
		m.audit.Record(models.AuditEvent{
			Action:    audit.ActionSessionLimit,
			UserID:    userID,
			SessionID: session.ID,
		})
	}

	log.Info("session limit enforced", slog.Int("deactivated", deactivated), slog.Int("limit", limit))

	if len(errs) > 0 {
		return deactivated, fmt.Errorf("%s: %w", op, storeErr(errors.Join(errs...)))
	}

	return deactivated, nil
}
