package sessions_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessions/internal/audit"
	"sessions/internal/domain/autherr"
	"sessions/internal/domain/models"
	"sessions/internal/identity"
	"sessions/internal/lib/background"
	"sessions/internal/lib/device"
	"sessions/internal/lib/logger/handlers/slogdiscard"
	"sessions/internal/services/sessions"
	"sessions/internal/storage/sqlite"
)

const (
	defaultTTL    = 24 * time.Hour
	rememberMeTTL = 30 * 24 * time.Hour
	maxActive     = 5
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubGateway issues random opaque tokens for a single subject and
// recognises only the access tokens it issued and did not disavow.
type stubGateway struct {
	mu sync.Mutex

	subject       string
	verifyErrs    []error
	introspectErr error
	refreshErr    error
	signOutErr    error
	issued        map[string]string
	refreshes     map[string]string

	verifyCalls     int
	introspectCalls int
	signOutCalls    int
}

func newStubGateway(subject string) *stubGateway {
	return &stubGateway{
		subject:   subject,
		issued:    make(map[string]string),
		refreshes: make(map[string]string),
	}
}

func (g *stubGateway) VerifyCredentials(_ context.Context, _ string, _ string) (identity.Tokens, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.verifyCalls++
	if len(g.verifyErrs) > 0 {
		err := g.verifyErrs[0]
		g.verifyErrs = g.verifyErrs[1:]
		return identity.Tokens{}, err
	}

	access, refresh := uuid.NewString(), uuid.NewString()
	g.issued[access] = g.subject
	g.refreshes[refresh] = g.subject

	return identity.Tokens{AccessToken: access, RefreshToken: refresh, IDToken: uuid.NewString(), ExpiresIn: 3600}, nil
}

func (g *stubGateway) IntrospectToken(_ context.Context, accessToken string) (identity.Introspection, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.introspectCalls++
	if g.introspectErr != nil {
		return identity.Introspection{}, g.introspectErr
	}

	subject, ok := g.issued[accessToken]
	if !ok {
		return identity.Introspection{}, autherr.ErrInvalidToken
	}

	return identity.Introspection{SubjectID: subject}, nil
}

func (g *stubGateway) RefreshToken(_ context.Context, refreshToken string, subjectHint string) (identity.Tokens, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.refreshErr != nil {
		return identity.Tokens{}, g.refreshErr
	}
	if subject, ok := g.refreshes[refreshToken]; !ok || subject != subjectHint {
		return identity.Tokens{}, autherr.ErrRefreshFailed
	}

	access := uuid.NewString()
	g.issued[access] = subjectHint

	return identity.Tokens{AccessToken: access, IDToken: uuid.NewString(), ExpiresIn: 3600}, nil
}

func (g *stubGateway) GlobalSignOut(_ context.Context, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.signOutCalls++
	return g.signOutErr
}

func (g *stubGateway) disavow(accessToken string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.issued, accessToken)
}

func (g *stubGateway) calls() (verify, introspect, signOut int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verifyCalls, g.introspectCalls, g.signOutCalls
}

type suite struct {
	mgr    *sessions.Manager
	st     *sqlite.Storage
	gw     *stubGateway
	clock  *clock
	userID string
}

func newSuite(t *testing.T) *suite {
	t.Helper()

	st, err := sqlite.New(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate())

	userID := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, st.SaveAccount(context.Background(), models.Account{
		ID:        userID,
		Email:     gofakeit.Email(),
		PassHash:  []byte("unused"),
		FullName:  gofakeit.Name(),
		RoleID:    "student",
		Status:    models.AccountActive,
		Confirmed: true,
		CreatedAt: now,
		UpdatedAt: now,
	}))

	log := slogdiscard.NewDiscardLogger()
	sink := audit.New(log, st, 256)
	runner := background.New(log, 5*time.Second)
	clk := &clock{now: now}
	gw := newStubGateway(userID)

	mgr := sessions.New(log, sessions.Config{
		DefaultTTL:           defaultTTL,
		RememberMeTTL:        rememberMeTTL,
		MaxActiveSessions:    maxActive,
		ProviderRetryBackoff: time.Millisecond,
	}, gw, st, st, st, sink, runner, sessions.WithClock(clk.Now))

	t.Cleanup(func() {
		mgr.Wait()
		sink.Close()
		_ = st.Close()
	})

	return &suite{mgr: mgr, st: st, gw: gw, clock: clk, userID: userID}
}

func (s *suite) login(t *testing.T, rememberMe bool) sessions.SessionBundle {
	t.Helper()

	bundle, err := s.mgr.Login(context.Background(), sessions.LoginRequest{
		Identifier: gofakeit.Email(),
		Secret:     gofakeit.Password(true, true, true, true, false, 12),
		RememberMe: rememberMe,
		Metadata: device.RequestMetadata{
			UserAgent:  gofakeit.UserAgent(),
			RemoteAddr: gofakeit.IPv4Address() + ":443",
		},
	})
	require.NoError(t, err)

	return bundle
}

func (s *suite) session(t *testing.T, sessionID string) models.Session {
	t.Helper()

	session, err := s.st.Session(context.Background(), sessionID)
	require.NoError(t, err)

	return session
}

func TestLogin_ValidateRoundTrip(t *testing.T) {
	s := newSuite(t)
	ctx := context.Background()

	bundle := s.login(t, false)
	assert.NotEmpty(t, bundle.SessionID)
	assert.NotEmpty(t, bundle.AccessToken)
	assert.NotEmpty(t, bundle.RefreshToken)
	assert.NotEmpty(t, bundle.IDToken)
	assert.Equal(t, s.userID, bundle.User.ID)
	assert.Equal(t, s.clock.Now().Add(defaultTTL), bundle.ExpiresAt)

	stored := s.session(t, bundle.SessionID)
	assert.True(t, stored.ExpiresAt.After(stored.CreatedAt))
	assert.NotEqual(t, bundle.AccessToken, stored.TokenDigest)
	assert.NotEqual(t, device.UnknownDevice, stored.DeviceInfo)

	s.clock.Advance(time.Minute)

	sc, err := s.mgr.ValidateToken(ctx, bundle.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, bundle.SessionID, sc.SessionID)
	assert.Equal(t, s.userID, sc.UserID)
	assert.Equal(t, bundle.User.Email, sc.User.Email)
	assert.Equal(t, models.SessionActive, sc.Session.State)
	assert.Equal(t, s.clock.Now(), sc.Session.LastActiveAt)

	assert.WithinDuration(t, s.clock.Now(), s.session(t, bundle.SessionID).LastActiveAt, time.Millisecond)
}

func TestLogin_RememberMe(t *testing.T) {
	s := newSuite(t)

	bundle := s.login(t, true)

	assert.Equal(t, s.clock.Now().Add(rememberMeTTL), bundle.ExpiresAt)
}

func TestLogin_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("empty credentials", func(t *testing.T) {
		s := newSuite(t)

		_, err := s.mgr.Login(ctx, sessions.LoginRequest{Identifier: " ", Secret: "x"})
		assert.ErrorIs(t, err, autherr.ErrValidation)

		verify, _, _ := s.gw.calls()
		assert.Zero(t, verify)
	})

	t.Run("invalid credentials are not retried", func(t *testing.T) {
		s := newSuite(t)
		s.gw.verifyErrs = []error{autherr.ErrInvalidCredentials, autherr.ErrInvalidCredentials}

		_, err := s.mgr.Login(ctx, sessions.LoginRequest{Identifier: gofakeit.Email(), Secret: "x"})
		assert.ErrorIs(t, err, autherr.ErrInvalidCredentials)
		assert.Equal(t, "incorrect email or password", autherr.ErrInvalidCredentials.Error())

		verify, _, _ := s.gw.calls()
		assert.Equal(t, 1, verify)
	})

	t.Run("inactive account", func(t *testing.T) {
		s := newSuite(t)
		require.NoError(t, s.st.UpdateStatus(ctx, s.userID, models.AccountSuspended))

		_, err := s.mgr.Login(ctx, sessions.LoginRequest{Identifier: gofakeit.Email(), Secret: "x"})
		assert.ErrorIs(t, err, autherr.ErrAccountInactive)

		active, err := s.mgr.GetActiveSessions(ctx, s.userID)
		require.NoError(t, err)
		assert.Empty(t, active)
	})

	t.Run("unknown profile", func(t *testing.T) {
		s := newSuite(t)
		s.gw.subject = uuid.NewString()

		_, err := s.mgr.Login(ctx, sessions.LoginRequest{Identifier: gofakeit.Email(), Secret: "x"})
		assert.ErrorIs(t, err, autherr.ErrAccountNotFound)
	})
}

func TestLogin_RetriesProviderUnavailableOnce(t *testing.T) {
	ctx := context.Background()

	s := newSuite(t)
	s.gw.verifyErrs = []error{autherr.ErrProviderUnavailable}

	_, err := s.mgr.Login(ctx, sessions.LoginRequest{Identifier: gofakeit.Email(), Secret: "x"})
	require.NoError(t, err)

	verify, _, _ := s.gw.calls()
	assert.Equal(t, 2, verify)

	s = newSuite(t)
	s.gw.verifyErrs = []error{autherr.ErrProviderUnavailable, autherr.ErrProviderUnavailable, autherr.ErrProviderUnavailable}

	_, err = s.mgr.Login(ctx, sessions.LoginRequest{Identifier: gofakeit.Email(), Secret: "x"})
	assert.ErrorIs(t, err, autherr.ErrProviderUnavailable)

	verify, _, _ = s.gw.calls()
	assert.Equal(t, 2, verify)
}

func TestValidateToken_Expired(t *testing.T) {
	s := newSuite(t)
	ctx := context.Background()

	bundle := s.login(t, false)
	s.clock.Advance(defaultTTL + time.Second)

	_, err := s.mgr.ValidateToken(ctx, bundle.AccessToken)
	assert.ErrorIs(t, err, autherr.ErrSessionExpired)

	stored := s.session(t, bundle.SessionID)
	assert.False(t, stored.IsActive)
	assert.Equal(t, models.ReasonExpired, stored.RevokeReason)
	assert.NotNil(t, stored.RevokedAt)

	_, err = s.mgr.ValidateToken(ctx, bundle.AccessToken)
	assert.ErrorIs(t, err, autherr.ErrInvalidToken)
}

func TestValidateToken_ProviderDisavowsToken(t *testing.T) {
	s := newSuite(t)
	ctx := context.Background()

	bundle := s.login(t, false)
	s.gw.disavow(bundle.AccessToken)

	_, err := s.mgr.ValidateToken(ctx, bundle.AccessToken)
	assert.ErrorIs(t, err, autherr.ErrInvalidToken)

	stored := s.session(t, bundle.SessionID)
	assert.False(t, stored.IsActive)
	assert.Equal(t, models.ReasonInvalidated, stored.RevokeReason)
}

func TestValidateToken_ProviderUnavailableKeepsSession(t *testing.T) {
	s := newSuite(t)
	ctx := context.Background()

	bundle := s.login(t, false)
	_, before, _ := s.gw.calls()
	s.gw.introspectErr = autherr.ErrProviderUnavailable

	_, err := s.mgr.ValidateToken(ctx, bundle.AccessToken)
	assert.ErrorIs(t, err, autherr.ErrProviderUnavailable)
	assert.False(t, autherr.IsTerminal(err))

	_, after, _ := s.gw.calls()
	assert.Equal(t, 2, after-before)

	assert.True(t, s.session(t, bundle.SessionID).IsActive)
}

func TestValidateToken_Unknown(t *testing.T) {
	s := newSuite(t)

	_, err := s.mgr.ValidateToken(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, autherr.ErrInvalidToken)

	_, err = s.mgr.ValidateToken(context.Background(), "")
	assert.ErrorIs(t, err, autherr.ErrInvalidToken)
}

func TestRefreshSession_RotatesDigest(t *testing.T) {
	s := newSuite(t)
	ctx := context.Background()

	bundle := s.login(t, false)
	before := s.session(t, bundle.SessionID)

	s.clock.Advance(time.Hour)

	tokens, err := s.mgr.RefreshSession(ctx, bundle.RefreshToken, bundle.SessionID)
	require.NoError(t, err)
	assert.Equal(t, bundle.SessionID, tokens.SessionID)
	assert.NotEqual(t, bundle.AccessToken, tokens.AccessToken)
	assert.True(t, tokens.ExpiresAt.After(s.clock.Now()))
	assert.Equal(t, s.clock.Now().Add(defaultTTL), tokens.ExpiresAt)

	after := s.session(t, bundle.SessionID)
	assert.NotEqual(t, before.TokenDigest, after.TokenDigest)
	assert.True(t, after.ExpiresAt.After(before.ExpiresAt))

	_, err = s.mgr.ValidateToken(ctx, bundle.AccessToken)
	assert.ErrorIs(t, err, autherr.ErrInvalidToken)

	sc, err := s.mgr.ValidateToken(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, bundle.SessionID, sc.SessionID)

	// The old token no longer resolves, so its rejection must not touch the session.
	assert.True(t, s.session(t, bundle.SessionID).IsActive)
}

func TestRefreshSession_WithoutSessionID(t *testing.T) {
	s := newSuite(t)

	bundle := s.login(t, false)

	tokens, err := s.mgr.RefreshSession(context.Background(), bundle.RefreshToken, "")
	require.NoError(t, err)
	assert.Equal(t, bundle.SessionID, tokens.SessionID)
}

func TestRefreshSession_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("refresh token of another session", func(t *testing.T) {
		s := newSuite(t)
		first := s.login(t, false)
		second := s.login(t, false)

		_, err := s.mgr.RefreshSession(ctx, second.RefreshToken, first.SessionID)
		assert.ErrorIs(t, err, autherr.ErrRefreshFailed)
	})

	t.Run("unknown session", func(t *testing.T) {
		s := newSuite(t)
		bundle := s.login(t, false)

		_, err := s.mgr.RefreshSession(ctx, bundle.RefreshToken, uuid.NewString())
		assert.ErrorIs(t, err, autherr.ErrRefreshFailed)
	})

	t.Run("expired session is deactivated", func(t *testing.T) {
		s := newSuite(t)
		bundle := s.login(t, false)
		s.clock.Advance(defaultTTL + time.Minute)

		_, err := s.mgr.RefreshSession(ctx, bundle.RefreshToken, bundle.SessionID)
		assert.ErrorIs(t, err, autherr.ErrRefreshFailed)
		assert.Equal(t, models.ReasonExpired, s.session(t, bundle.SessionID).RevokeReason)
	})

	t.Run("provider rejects", func(t *testing.T) {
		s := newSuite(t)
		bundle := s.login(t, false)
		s.gw.refreshErr = autherr.ErrRefreshFailed

		_, err := s.mgr.RefreshSession(ctx, bundle.RefreshToken, bundle.SessionID)
		assert.ErrorIs(t, err, autherr.ErrRefreshFailed)
		assert.True(t, s.session(t, bundle.SessionID).IsActive)
	})

	t.Run("empty refresh token", func(t *testing.T) {
		s := newSuite(t)

		_, err := s.mgr.RefreshSession(ctx, "", "")
		assert.ErrorIs(t, err, autherr.ErrValidation)
	})
}

func TestDeactivation_IsOneWay(t *testing.T) {
	s := newSuite(t)
	ctx := context.Background()

	bundle := s.login(t, false)
	require.NoError(t, s.mgr.Logout(ctx, bundle.SessionID, ""))

	_, err := s.mgr.ValidateToken(ctx, bundle.AccessToken)
	assert.ErrorIs(t, err, autherr.ErrInvalidToken)

	_, err = s.mgr.RefreshSession(ctx, bundle.RefreshToken, bundle.SessionID)
	assert.ErrorIs(t, err, autherr.ErrRefreshFailed)

	_, err = s.mgr.RefreshSession(ctx, bundle.RefreshToken, "")
	assert.ErrorIs(t, err, autherr.ErrRefreshFailed)

	require.NoError(t, s.mgr.RevokeSession(ctx, bundle.SessionID))
	_, err = s.mgr.EnforceSessionLimit(ctx, s.userID)
	require.NoError(t, err)

	stored := s.session(t, bundle.SessionID)
	assert.False(t, stored.IsActive)
	assert.Equal(t, models.ReasonLogout, stored.RevokeReason)

	again := s.login(t, false)
	assert.NotEqual(t, bundle.SessionID, again.SessionID)
	assert.False(t, s.session(t, bundle.SessionID).IsActive)
}

func TestLogout_Idempotent(t *testing.T) {
	s := newSuite(t)
	ctx := context.Background()

	bundle := s.login(t, false)

	require.NoError(t, s.mgr.Logout(ctx, bundle.SessionID, bundle.AccessToken))
	require.NoError(t, s.mgr.Logout(ctx, bundle.SessionID, bundle.AccessToken))
	require.NoError(t, s.mgr.Logout(ctx, uuid.NewString(), ""))

	stored := s.session(t, bundle.SessionID)
	assert.False(t, stored.IsActive)
	require.NotNil(t, stored.LoggedOutAt)
	assert.Nil(t, stored.RevokedAt)

	s.mgr.Wait()
	_, _, signOut := s.gw.calls()
	assert.Equal(t, 2, signOut)
}

func TestLogout_SignOutFailureIsSwallowed(t *testing.T) {
	s := newSuite(t)
	bundle := s.login(t, false)
	s.gw.signOutErr = autherr.ErrProviderUnavailable

	assert.NoError(t, s.mgr.Logout(context.Background(), bundle.SessionID, bundle.AccessToken))
	s.mgr.Wait()

	assert.False(t, s.session(t, bundle.SessionID).IsActive)
}

func TestEnforceSessionLimit_KeepsMostRecent(t *testing.T) {
	s := newSuite(t)
	ctx := context.Background()

	const extra = 3
	var bundles []sessions.SessionBundle
	for i := 0; i < maxActive+extra; i++ {
		bundles = append(bundles, s.login(t, false))
		s.clock.Advance(time.Minute)
	}
	s.mgr.Wait()

	_, err := s.mgr.EnforceSessionLimit(ctx, s.userID)
	require.NoError(t, err)

	active, err := s.mgr.GetActiveSessions(ctx, s.userID)
	require.NoError(t, err)
	require.Len(t, active, maxActive)

	for i, bundle := range bundles {
		stored := s.session(t, bundle.SessionID)
		if i < extra {
			assert.False(t, stored.IsActive, "session %d should be deactivated", i)
			assert.Equal(t, models.ReasonSessionLimit, stored.RevokeReason)
		} else {
			assert.True(t, stored.IsActive, "session %d should be kept", i)
		}
	}
}

func TestEnforceSessionLimit_SixthLoginDropsOldest(t *testing.T) {
	s := newSuite(t)
	ctx := context.Background()

	var bundles []sessions.SessionBundle
	for i := 0; i < 6; i++ {
		bundles = append(bundles, s.login(t, false))
		s.clock.Advance(time.Minute)
	}
	s.mgr.Wait()

	active, err := s.mgr.GetActiveSessions(ctx, s.userID)
	require.NoError(t, err)
	require.Len(t, active, 5)

	for i := 1; i < len(active); i++ {
		assert.True(t, active[i-1].LastActiveAt.After(active[i].LastActiveAt))
	}
	for _, info := range active {
		assert.NotEqual(t, bundles[0].SessionID, info.SessionID)
	}
	assert.False(t, s.session(t, bundles[0].SessionID).IsActive)
}

func TestRevokeAllSessions_ExceptCurrent(t *testing.T) {
	s := newSuite(t)
	ctx := context.Background()

	var bundles []sessions.SessionBundle
	for i := 0; i < 5; i++ {
		bundles = append(bundles, s.login(t, false))
		s.clock.Advance(time.Second)
	}
	s.mgr.Wait()

	current := bundles[2].SessionID

	result, err := s.mgr.RevokeAllSessions(ctx, s.userID, current)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Revoked)
	assert.Equal(t, 5, result.Total)

	active, err := s.mgr.GetActiveSessions(ctx, s.userID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, current, active[0].SessionID)

	result, err = s.mgr.RevokeAllSessions(ctx, s.userID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Revoked)
}

func TestRevokeSession(t *testing.T) {
	s := newSuite(t)
	ctx := context.Background()

	bundle := s.login(t, false)

	require.NoError(t, s.mgr.RevokeSession(ctx, bundle.SessionID))
	require.NoError(t, s.mgr.RevokeSession(ctx, bundle.SessionID))

	stored := s.session(t, bundle.SessionID)
	assert.False(t, stored.IsActive)
	assert.NotNil(t, stored.RevokedAt)
	assert.Equal(t, models.ReasonRevoked, stored.RevokeReason)

	err := s.mgr.RevokeSession(ctx, uuid.NewString())
	assert.ErrorIs(t, err, autherr.ErrSessionNotFound)
}

func TestGetAllSessions_Pagination(t *testing.T) {
	s := newSuite(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		bundle := s.login(t, false)
		if i%2 == 0 {
			require.NoError(t, s.mgr.Logout(ctx, bundle.SessionID, ""))
		}
		s.clock.Advance(time.Second)
	}

	first, err := s.mgr.GetAllSessions(ctx, s.userID, sessions.PageRequest{Limit: 3})
	require.NoError(t, err)
	require.Len(t, first.Sessions, 3)
	require.NotEmpty(t, first.NextCursor)

	second, err := s.mgr.GetAllSessions(ctx, s.userID, sessions.PageRequest{Limit: 3, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Sessions, 2)
	assert.Empty(t, second.NextCursor)

	var revoked int
	for _, info := range append(first.Sessions, second.Sessions...) {
		if info.State == models.SessionRevoked {
			revoked++
		}
	}
	assert.Equal(t, 3, revoked)

	all, err := s.mgr.GetAllSessions(ctx, s.userID, sessions.PageRequest{})
	require.NoError(t, err)
	assert.Len(t, all.Sessions, 5)

	_, err = s.mgr.GetAllSessions(ctx, s.userID, sessions.PageRequest{Cursor: "!!"})
	assert.ErrorIs(t, err, autherr.ErrValidation)

	_, err = s.mgr.GetAllSessions(ctx, s.userID, sessions.PageRequest{Limit: -1})
	assert.ErrorIs(t, err, autherr.ErrValidation)
}

func TestGetActiveSessions_ReportsLazilyExpired(t *testing.T) {
	s := newSuite(t)
	ctx := context.Background()

	bundle := s.login(t, false)
	s.clock.Advance(defaultTTL + time.Minute)

	active, err := s.mgr.GetActiveSessions(ctx, s.userID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, bundle.SessionID, active[0].SessionID)
	assert.Equal(t, models.SessionExpired, active[0].State)
}

func TestGetSessionDetails(t *testing.T) {
	s := newSuite(t)
	ctx := context.Background()

	bundle := s.login(t, false)

	details, err := s.mgr.GetSessionDetails(ctx, bundle.SessionID)
	require.NoError(t, err)
	assert.Equal(t, bundle.SessionID, details.Session.SessionID)
	assert.Equal(t, bundle.User.Email, details.User.Email)

	_, err = s.mgr.GetSessionDetails(ctx, uuid.NewString())
	assert.ErrorIs(t, err, autherr.ErrSessionNotFound)
}

func TestStoreFailureIsNotAuthFailure(t *testing.T) {
	s := newSuite(t)
	ctx := context.Background()

	bundle := s.login(t, false)
	s.mgr.Wait()
	require.NoError(t, s.st.Close())

	_, err := s.mgr.ValidateToken(ctx, bundle.AccessToken)
	assert.ErrorIs(t, err, autherr.ErrStoreUnavailable)
	assert.False(t, autherr.IsUnauthorized(err))

	err = s.mgr.RevokeSession(ctx, bundle.SessionID)
	assert.ErrorIs(t, err, autherr.ErrStoreUnavailable)
}

// hangingProvider blocks every call until the caller gives up.
type hangingProvider struct{}

func (hangingProvider) InitiateAuth(ctx context.Context, _ string, _ string) (identity.Tokens, error) {
	<-ctx.Done()
	return identity.Tokens{}, ctx.Err()
}

func (hangingProvider) GetUser(ctx context.Context, _ string) (identity.Introspection, error) {
	<-ctx.Done()
	return identity.Introspection{}, ctx.Err()
}

func (hangingProvider) RefreshAuth(ctx context.Context, _ string, _ string) (identity.Tokens, error) {
	<-ctx.Done()
	return identity.Tokens{}, ctx.Err()
}

func (hangingProvider) GlobalSignOut(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestLogin_RequestDeadlineIsProviderUnavailable(t *testing.T) {
	s := newSuite(t)

	log := slogdiscard.NewDiscardLogger()
	sink := audit.New(log, s.st, 16)
	t.Cleanup(sink.Close)

	tests := []struct {
		name    string
		backoff time.Duration
	}{
		{name: "deadline during retry", backoff: 20 * time.Millisecond},
		{name: "no time left to retry", backoff: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := sessions.New(log, sessions.Config{
				DefaultTTL:           defaultTTL,
				RememberMeTTL:        rememberMeTTL,
				MaxActiveSessions:    maxActive,
				ProviderRetryBackoff: tt.backoff,
			}, identity.New(log, hangingProvider{}, 50*time.Millisecond), s.st, s.st, s.st, sink, background.New(log, time.Second))
			t.Cleanup(mgr.Wait)

			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			start := time.Now()
			_, err := mgr.Login(ctx, sessions.LoginRequest{Identifier: gofakeit.Email(), Secret: "x"})

			require.ErrorIs(t, err, autherr.ErrProviderUnavailable)
			assert.False(t, autherr.IsTerminal(err))
			assert.Less(t, time.Since(start), 500*time.Millisecond)
		})
	}
}

func TestValidateToken_RequestDeadlineKeepsSession(t *testing.T) {
	s := newSuite(t)
	bundle := s.login(t, false)

	log := slogdiscard.NewDiscardLogger()
	sink := audit.New(log, s.st, 16)
	t.Cleanup(sink.Close)

	mgr := sessions.New(log, sessions.Config{
		DefaultTTL:           defaultTTL,
		RememberMeTTL:        rememberMeTTL,
		MaxActiveSessions:    maxActive,
		ProviderRetryBackoff: 20 * time.Millisecond,
	}, identity.New(log, hangingProvider{}, 50*time.Millisecond), s.st, s.st, s.st, sink, background.New(log, time.Second),
		sessions.WithClock(s.clock.Now))
	t.Cleanup(mgr.Wait)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := mgr.ValidateToken(ctx, bundle.AccessToken)
	require.ErrorIs(t, err, autherr.ErrProviderUnavailable)

	assert.True(t, s.session(t, bundle.SessionID).IsActive)
}
