package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"sessions/internal/audit"
	"sessions/internal/domain/autherr"
	"sessions/internal/domain/models"
	"sessions/internal/identity"
	"sessions/internal/lib/background"
	"sessions/internal/lib/device"
	"sessions/internal/lib/logger/sl"
	"sessions/internal/lib/tokenhash"
	"sessions/internal/metrics"
	"sessions/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Manager struct {
	log             *slog.Logger
	cfg             Config
	gateway         IdentityGateway
	sessionSaver    SessionSaver
	sessionProvider SessionProvider
	profiles        ProfileProvider
	audit           AuditRecorder
	tasks           TaskRunner
	now             func() time.Time
}

type IdentityGateway interface {
	VerifyCredentials(ctx context.Context, identifier string, secret string) (identity.Tokens, error)
	IntrospectToken(ctx context.Context, accessToken string) (identity.Introspection, error)
	RefreshToken(ctx context.Context, refreshToken string, subjectHint string) (identity.Tokens, error)
	GlobalSignOut(ctx context.Context, accessToken string) error
}

type SessionSaver interface {
	SaveSession(ctx context.Context, session models.Session) error
	UpdateSession(ctx context.Context, sessionID string, upd models.SessionUpdate) error
	DeactivateSession(ctx context.Context, sessionID string, reason models.RevokeReason, at time.Time) (bool, error)
}

type SessionProvider interface {
	Session(ctx context.Context, sessionID string) (models.Session, error)
	ActiveSessionByDigest(ctx context.Context, digest string) (models.Session, error)
	ActiveSessionByRefreshDigest(ctx context.Context, digest string) (models.Session, error)
	SessionsByUser(ctx context.Context, userID string, filter models.SessionFilter) (models.SessionPage, error)
}

type ProfileProvider interface {
	UserProfile(ctx context.Context, userID string) (models.UserProfile, error)
}

type AuditRecorder interface {
	Record(event models.AuditEvent)
}

type TaskRunner interface {
	Go(name string, task background.Task)
	Wait()
}

type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func New(
	log *slog.Logger,
	cfg Config,
	gateway IdentityGateway,
	sessionSaver SessionSaver,
	sessionProvider SessionProvider,
	profiles ProfileProvider,
	audit AuditRecorder,
	tasks TaskRunner,
	opts ...Option,
) *Manager {
	m := &Manager{
		log:             log,
		cfg:             cfg,
		gateway:         gateway,
		sessionSaver:    sessionSaver,
		sessionProvider: sessionProvider,
		profiles:        profiles,
		audit:           audit,
		tasks:           tasks,
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Login verifies credentials with the identity provider and opens a new session.
//
// The concurrency cap is enforced in the background after the session is saved.
func (m *Manager) Login(ctx context.Context, req LoginRequest) (SessionBundle, error) {
	const op = "sessions.Login"

	log := m.log.With(slog.String("op", op))

	bundle, userID, err := m.login(ctx, req)
	metrics.SessionLoginsTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		if autherr.IsTerminal(err) {
			log.Info("login rejected", sl.Err(err))
		} else {
			log.Warn("login failed", sl.Err(err))
		}
		m.audit.Record(models.AuditEvent{
			Action:    audit.ActionLoginFailed,
			UserID:    userID,
			IPAddress: device.Extract(req.Metadata).IPAddress,
			Metadata:  map[string]string{"identifier": req.Identifier, "error": reason(err)},
		})
		return SessionBundle{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("session created", slog.String("session_id", bundle.SessionID))

	m.tasks.Go("session_limit", func(ctx context.Context) error {
		_, err := m.EnforceSessionLimit(ctx, userID)
		return err
	})

	return bundle, nil
}

func (m *Manager) login(ctx context.Context, req LoginRequest) (SessionBundle, string, error) {
	if strings.TrimSpace(req.Identifier) == "" || req.Secret == "" {
		return SessionBundle{}, "", autherr.ErrValidation
	}

	tokens, err := retry(ctx, m.cfg.ProviderRetryBackoff, func() (identity.Tokens, error) {
		return m.gateway.VerifyCredentials(ctx, req.Identifier, req.Secret)
	})
	if err != nil {
		return SessionBundle{}, "", err
	}

	info, err := retry(ctx, m.cfg.ProviderRetryBackoff, func() (identity.Introspection, error) {
		return m.gateway.IntrospectToken(ctx, tokens.AccessToken)
	})
	if err != nil {
		return SessionBundle{}, "", err
	}

	profile, err := m.profiles.UserProfile(ctx, info.SubjectID)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return SessionBundle{}, info.SubjectID, autherr.ErrAccountNotFound
		}
		return SessionBundle{}, info.SubjectID, storeErr(err)
	}
	if profile.Status != models.AccountActive {
		return SessionBundle{}, info.SubjectID, autherr.ErrAccountInactive
	}

	now := m.now()
	ttl := m.cfg.DefaultTTL
	if req.RememberMe {
		ttl = m.cfg.RememberMeTTL
	}

	dev := device.Extract(req.Metadata)

	session := models.Session{
		ID:           uuid.NewString(),
		UserID:       info.SubjectID,
		TokenDigest:  tokenhash.Digest(tokens.AccessToken),
		DeviceInfo:   dev.String(),
		IPAddress:    dev.IPAddress,
		LastActiveAt: now,
		IsActive:     true,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
	}
	if tokens.RefreshToken != "" {
		session.RefreshDigest = tokenhash.Digest(tokens.RefreshToken)
	}

	if err := m.sessionSaver.SaveSession(ctx, session); err != nil {
		return SessionBundle{}, session.UserID, storeErr(err)
	}

	m.audit.Record(models.AuditEvent{
		Action:    audit.ActionLogin,
		UserID:    session.UserID,
		SessionID: session.ID,
		IPAddress: session.IPAddress,
		Metadata:  map[string]string{"device": session.DeviceInfo, "remember_me": fmt.Sprint(req.RememberMe)},
	})

	return SessionBundle{
		SessionID:    session.ID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		IDToken:      tokens.IDToken,
		ExpiresIn:    tokens.ExpiresIn,
		ExpiresAt:    session.ExpiresAt,
		User:         userSummary(profile),
	}, session.UserID, nil
}

// ValidateToken resolves a bearer token to its session.
//
// An expired session, or one the provider no longer recognises, is
// deactivated before the error is returned. A provider outage leaves the
// session untouched.
func (m *Manager) ValidateToken(ctx context.Context, rawToken string) (SessionContext, error) {
	const op = "sessions.ValidateToken"

	sc, err := m.validate(ctx, rawToken)
	metrics.SessionValidationsTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return SessionContext{}, fmt.Errorf("%s: %w", op, err)
	}

	return sc, nil
}

func (m *Manager) validate(ctx context.Context, rawToken string) (SessionContext, error) {
	if rawToken == "" {
		return SessionContext{}, autherr.ErrInvalidToken
	}

	session, err := m.sessionProvider.ActiveSessionByDigest(ctx, tokenhash.Digest(rawToken))
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return SessionContext{}, autherr.ErrInvalidToken
		}
		return SessionContext{}, storeErr(err)
	}

	now := m.now()
	if session.State(now) == models.SessionExpired {
		m.deactivate(ctx, session, models.ReasonExpired, now)
		return SessionContext{}, autherr.ErrSessionExpired
	}

	info, err := retry(ctx, m.cfg.ProviderRetryBackoff, func() (identity.Introspection, error) {
		return m.gateway.IntrospectToken(ctx, rawToken)
	})
	if err != nil {
		if errors.Is(err, autherr.ErrInvalidToken) || errors.Is(err, autherr.ErrTokenExpired) {
			m.deactivate(ctx, session, models.ReasonInvalidated, now)
			return SessionContext{}, autherr.ErrInvalidToken
		}
		return SessionContext{}, err
	}
	if info.SubjectID != session.UserID {
		m.deactivate(ctx, session, models.ReasonInvalidated, now)
		return SessionContext{}, autherr.ErrInvalidToken
	}

	err = m.sessionSaver.UpdateSession(ctx, session.ID, models.SessionUpdate{LastActiveAt: &now})
	switch {
	case errors.Is(err, storage.ErrSessionNotFound):
		// Deactivated concurrently.
		return SessionContext{}, autherr.ErrInvalidToken
	case err != nil:
		return SessionContext{}, storeErr(err)
	}
	session.LastActiveAt = now

	return SessionContext{
		SessionID: session.ID,
		UserID:    session.UserID,
		User:      m.userSummary(ctx, session.UserID),
		Session:   sessionInfo(session, now),
	}, nil
}

// RefreshSession exchanges a refresh token for new provider tokens and
// rotates the session's token digest in place. Without a session id the
// session is located by its refresh token.
func (m *Manager) RefreshSession(ctx context.Context, refreshToken string, sessionID string) (TokenBundle, error) {
	const op = "sessions.RefreshSession"

	log := m.log.With(
		slog.String("op", op),
		slog.String("session_id", sessionID),
	)

	bundle, err := m.refresh(ctx, refreshToken, sessionID)
	metrics.SessionRefreshesTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		log.Info("refresh failed", sl.Err(err))
		return TokenBundle{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("session refreshed")

	return bundle, nil
}

func (m *Manager) refresh(ctx context.Context, refreshToken string, sessionID string) (TokenBundle, error) {
	if refreshToken == "" {
		return TokenBundle{}, autherr.ErrValidation
	}

	var (
		session models.Session
		err     error
	)
	if sessionID != "" {
		session, err = m.sessionProvider.Session(ctx, sessionID)
	} else {
		session, err = m.sessionProvider.ActiveSessionByRefreshDigest(ctx, tokenhash.Digest(refreshToken))
	}
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return TokenBundle{}, autherr.ErrRefreshFailed
		}
		return TokenBundle{}, storeErr(err)
	}

	if session.RefreshDigest != "" && !tokenhash.Equal(refreshToken, session.RefreshDigest) {
		return TokenBundle{}, autherr.ErrRefreshFailed
	}

	now := m.now()
	switch session.State(now) {
	case models.SessionRevoked:
		return TokenBundle{}, autherr.ErrRefreshFailed
	case models.SessionExpired:
		m.deactivate(ctx, session, models.ReasonExpired, now)
		return TokenBundle{}, autherr.ErrRefreshFailed
	}

	tokens, err := retry(ctx, m.cfg.ProviderRetryBackoff, func() (identity.Tokens, error) {
		return m.gateway.RefreshToken(ctx, refreshToken, session.UserID)
	})
	if err != nil {
		return TokenBundle{}, err
	}

	digest := tokenhash.Digest(tokens.AccessToken)
	expiresAt := now.Add(m.cfg.DefaultTTL)
	upd := models.SessionUpdate{
		TokenDigest:  &digest,
		LastActiveAt: &now,
		ExpiresAt:    &expiresAt,
	}
	if tokens.RefreshToken != "" {
		refreshDigest := tokenhash.Digest(tokens.RefreshToken)
		upd.RefreshDigest = &refreshDigest
	}

	if err := m.sessionSaver.UpdateSession(ctx, session.ID, upd); err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return TokenBundle{}, autherr.ErrRefreshFailed
		}
		return TokenBundle{}, storeErr(err)
	}

	m.audit.Record(models.AuditEvent{
		Action:    audit.ActionRefresh,
		UserID:    session.UserID,
		SessionID: session.ID,
	})

	return TokenBundle{
		SessionID:    session.ID,
		AccessToken:  tokens.AccessToken,
		IDToken:      tokens.IDToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
		ExpiresAt:    expiresAt,
	}, nil
}

// Logout ends a session. Unknown and already inactive sessions are a no-op.
// When rawToken is given the provider-side sign-out runs in the background.
func (m *Manager) Logout(ctx context.Context, sessionID string, rawToken string) error {
	const op = "sessions.Logout"

	log := m.log.With(
		slog.String("op", op),
		slog.String("session_id", sessionID),
	)

	if sessionID == "" {
		return fmt.Errorf("%s: %w", op, autherr.ErrValidation)
	}

	session, err := m.sessionProvider.Session(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			log.Debug("session not found, nothing to do")
			return nil
		}
		log.Error("failed to get session", sl.Err(err))
		return fmt.Errorf("%s: %w", op, storeErr(err))
	}

	changed, err := m.sessionSaver.DeactivateSession(ctx, session.ID, models.ReasonLogout, m.now())
	if err != nil {
		log.Error("failed to deactivate session", sl.Err(err))
		return fmt.Errorf("%s: %w", op, storeErr(err))
	}

	if changed {
		metrics.SessionsDeactivatedTotal.WithLabelValues(string(models.ReasonLogout)).Inc()
		m.audit.Record(models.AuditEvent{
			Action:    audit.ActionLogout,
			UserID:    session.UserID,
			SessionID: session.ID,
		})
		log.Info("user logged out")
	}

	if rawToken != "" {
		m.tasks.Go("global_sign_out", func(ctx context.Context) error {
			return m.gateway.GlobalSignOut(ctx, rawToken)
		})
	}

	return nil
}

// RevokeSession deactivates a single session. Revoking an inactive session succeeds.
func (m *Manager) RevokeSession(ctx context.Context, sessionID string) error {
	const op = "sessions.RevokeSession"

	log := m.log.With(
		slog.String("op", op),
		slog.String("session_id", sessionID),
	)

	if sessionID == "" {
		return fmt.Errorf("%s: %w", op, autherr.ErrValidation)
	}

	session, err := m.sessionProvider.Session(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return fmt.Errorf("%s: %w", op, autherr.ErrSessionNotFound)
		}
		log.Error("failed to get session", sl.Err(err))
		return fmt.Errorf("%s: %w", op, storeErr(err))
	}

	if _, err := m.revoke(ctx, session, models.ReasonRevoked); err != nil {
		log.Error("failed to revoke session", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("session revoked")

	return nil
}

// RevokeAllSessions deactivates every active session of the user except
// exceptSessionID. Each deactivation is independent: a failure stops nothing
// and is reported after the pass.
func (m *Manager) RevokeAllSessions(ctx context.Context, userID string, exceptSessionID string) (RevokeResult, error) {
	const op = "sessions.RevokeAllSessions"

	log := m.log.With(
		slog.String("op", op),
		slog.String("user_id", userID),
	)

	if userID == "" {
		return RevokeResult{}, fmt.Errorf("%s: %w", op, autherr.ErrValidation)
	}

	page, err := m.sessionProvider.SessionsByUser(ctx, userID, models.SessionFilter{ActiveOnly: true})
	if err != nil {
		log.Error("failed to list sessions", sl.Err(err))
		return RevokeResult{}, fmt.Errorf("%s: %w", op, storeErr(err))
	}

	result := RevokeResult{Total: len(page.Sessions)}

	var errs []error
	for _, session := range page.Sessions {
		if session.ID == exceptSessionID {
			continue
		}

		changed, err := m.revoke(ctx, session, models.ReasonRevoked)
		if err != nil {
			log.Warn("failed to revoke session", slog.String("session_id", session.ID), sl.Err(err))
			errs = append(errs, err)
			continue
		}
		if changed {
			result.Revoked++
		}
	}

	log.Info("sessions revoked", slog.Int("revoked", result.Revoked), slog.Int("total", result.Total))

	m.audit.Record(models.AuditEvent{
		Action:    audit.ActionRevokeAll,
		UserID:    userID,
		SessionID: exceptSessionID,
		Metadata:  map[string]string{"revoked": fmt.Sprint(result.Revoked)},
	})

	if len(errs) > 0 {
		return result, fmt.Errorf("%s: %w", op, errors.Join(errs...))
	}

	return result, nil
}

func (m *Manager) revoke(ctx context.Context, session models.Session, reason models.RevokeReason) (bool, error) {
	changed, err := m.sessionSaver.DeactivateSession(ctx, session.ID, reason, m.now())
	if err != nil {
		return false, storeErr(err)
	}

	if changed {
		metrics.SessionsDeactivatedTotal.WithLabelValues(string(reason)).Inc()
		m.audit.Record(models.AuditEvent{
			Action:    audit.ActionRevoke,
			UserID:    session.UserID,
			SessionID: session.ID,
			Metadata:  map[string]string{"reason": string(reason)},
		})
	}

	return changed, nil
}

// deactivate is the best-effort variant used on validation paths: the
// caller already knows the outcome and only logs a failed write.
func (m *Manager) deactivate(ctx context.Context, session models.Session, reason models.RevokeReason, at time.Time) {
	const op = "sessions.deactivate"

	changed, err := m.sessionSaver.DeactivateSession(ctx, session.ID, reason, at)
	if err != nil {
		m.log.Error("failed to deactivate session",
			slog.String("op", op),
			slog.String("session_id", session.ID),
			slog.String("reason", string(reason)),
			sl.Err(err),
		)
		return
	}
	if !changed {
		return
	}

	metrics.SessionsDeactivatedTotal.WithLabelValues(string(reason)).Inc()

	action := audit.ActionInvalidated
	if reason == models.ReasonExpired {
		action = audit.ActionExpired
	}
	m.audit.Record(models.AuditEvent{
		Action:    action,
		UserID:    session.UserID,
		SessionID: session.ID,
	})
}

// GetActiveSessions lists the user's active sessions, most recently active first.
func (m *Manager) GetActiveSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	const op = "sessions.GetActiveSessions"

	if userID == "" {
		return nil, fmt.Errorf("%s: %w", op, autherr.ErrValidation)
	}

	page, err := m.sessionProvider.SessionsByUser(ctx, userID, models.SessionFilter{ActiveOnly: true})
	if err != nil {
		m.log.Error("failed to list sessions", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, storeErr(err))
	}

	now := m.now()
	result := make([]SessionInfo, 0, len(page.Sessions))
	for _, session := range page.Sessions {
		result = append(result, sessionInfo(session, now))
	}

	return result, nil
}

// GetAllSessions pages through the user's full session history, including
// inactive sessions.
func (m *Manager) GetAllSessions(ctx context.Context, userID string, req PageRequest) (SessionPage, error) {
	const op = "sessions.GetAllSessions"

	if userID == "" || req.Limit < 0 {
		return SessionPage{}, fmt.Errorf("%s: %w", op, autherr.ErrValidation)
	}

	limit := req.Limit
	switch {
	case limit == 0:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}

	page, err := m.sessionProvider.SessionsByUser(ctx, userID, models.SessionFilter{Limit: limit, Cursor: req.Cursor})
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCursor) {
			return SessionPage{}, fmt.Errorf("%s: %w", op, autherr.ErrValidation)
		}
		m.log.Error("failed to list sessions", slog.String("op", op), sl.Err(err))
		return SessionPage{}, fmt.Errorf("%s: %w", op, storeErr(err))
	}

	now := m.now()
	result := SessionPage{
		Sessions:   make([]SessionInfo, 0, len(page.Sessions)),
		NextCursor: page.NextCursor,
	}
	for _, session := range page.Sessions {
		result.Sessions = append(result.Sessions, sessionInfo(session, now))
	}

	return result, nil
}

func (m *Manager) GetSessionDetails(ctx context.Context, sessionID string) (SessionDetails, error) {
	const op = "sessions.GetSessionDetails"

	if sessionID == "" {
		return SessionDetails{}, fmt.Errorf("%s: %w", op, autherr.ErrValidation)
	}

	session, err := m.sessionProvider.Session(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return SessionDetails{}, fmt.Errorf("%s: %w", op, autherr.ErrSessionNotFound)
		}
		return SessionDetails{}, fmt.Errorf("%s: %w", op, storeErr(err))
	}

	return SessionDetails{
		Session: sessionInfo(session, m.now()),
		User:    m.userSummary(ctx, session.UserID),
	}, nil
}

// Wait blocks until background work scheduled by the manager has finished.
func (m *Manager) Wait() {
	m.tasks.Wait()
}

// userSummary enriches a response with the user's profile. A failed lookup
// degrades to a summary carrying only the id.
func (m *Manager) userSummary(ctx context.Context, userID string) UserSummary {
	profile, err := m.profiles.UserProfile(ctx, userID)
	if err != nil {
		m.log.Warn("failed to load user profile", slog.String("user_id", userID), sl.Err(err))
		return UserSummary{ID: userID}
	}
	return userSummary(profile)
}

// storeErr marks a storage failure as ErrStoreUnavailable while keeping the
// cause inspectable.
func storeErr(err error) error {
	return errors.Join(autherr.ErrStoreUnavailable, err)
}

func reason(err error) string {
	for _, known := range []error{
		autherr.ErrInvalidCredentials,
		autherr.ErrAccountNotConfirmed,
		autherr.ErrAccountNotFound,
		autherr.ErrAccountInactive,
		autherr.ErrRateLimited,
		autherr.ErrProviderUnavailable,
		autherr.ErrValidation,
		autherr.ErrStoreUnavailable,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal error"
}
