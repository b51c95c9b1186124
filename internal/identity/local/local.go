// Package local is an in-process identity provider backed by the accounts
// table. It stands in for the external provider in development and tests.
package local

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"sessions/internal/domain/models"
	"sessions/internal/identity"
	"sessions/internal/lib/jwt"
	"sessions/internal/lib/logger/sl"
	"sessions/internal/lib/tokenhash"
	"sessions/internal/storage"
)

type AccountStore interface {
	SaveAccount(ctx context.Context, account models.Account) error
	AccountByEmail(ctx context.Context, email string) (models.Account, error)
	AccountByID(ctx context.Context, accountID string) (models.Account, error)
	BumpTokenGeneration(ctx context.Context, accountID string) error
}

type RefreshTokenStore interface {
	SaveRefreshToken(ctx context.Context, token models.RefreshToken) error
	RefreshToken(ctx context.Context, tokenHash string) (models.RefreshToken, error)
	RevokeRefreshTokens(ctx context.Context, accountID string) error
}

type Config struct {
	Issuer            string
	SigningSecret     string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	AttemptsPerMinute int
	// MaxTrackedIdentifiers caps the number of per-identifier limiters
	// held in memory. Zero means defaultMaxTrackedIdentifiers.
	MaxTrackedIdentifiers int
}

const (
	defaultMaxTrackedIdentifiers = 10000
	// A limiter untouched for a full window has refilled its burst, so
	// dropping it loses no state.
	limiterIdleTTL = time.Minute
)

type trackedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// dummyHash is compared against when the account does not exist so that
// unknown and known identifiers cost the same bcrypt work.
var dummyHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("sessions-dummy-password"), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("local: generate dummy hash: %v", err))
	}
	return hash
})

type Provider struct {
	log        *slog.Logger
	accounts   AccountStore
	tokens     RefreshTokenStore
	issuer     *jwt.Issuer
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time

	attempts   int
	maxTracked int
	mu         sync.Mutex
	limiters   map[string]*trackedLimiter
	lastSweep  time.Time
}

var _ identity.Provider = (*Provider)(nil)

func New(log *slog.Logger, accounts AccountStore, tokens RefreshTokenStore, cfg Config) *Provider {
	maxTracked := cfg.MaxTrackedIdentifiers
	if maxTracked <= 0 {
		maxTracked = defaultMaxTrackedIdentifiers
	}

	return &Provider{
		log:        log,
		accounts:   accounts,
		tokens:     tokens,
		issuer:     jwt.NewIssuer(cfg.Issuer, cfg.SigningSecret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
		attempts:   cfg.AttemptsPerMinute,
		maxTracked: maxTracked,
		limiters:   make(map[string]*trackedLimiter),
	}
}

// Register creates an account and returns its id.
func (p *Provider) Register(ctx context.Context, email string, password string, fullName string, roleID string, confirmed bool) (string, error) {
	const op = "local.Register"

	log := p.log.With(
		slog.String("op", op),
		slog.String("email", email),
	)

	log.Info("registering account")

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	now := p.now()
	account := models.Account{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Email:     email,
		PassHash:  passHash,
		FullName:  fullName,
		RoleID:    roleID,
		Status:    models.AccountActive,
		Confirmed: confirmed,
	}

	if err := p.accounts.SaveAccount(ctx, account); err != nil {
		log.Error("failed to save account", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return account.ID, nil
}

func (p *Provider) InitiateAuth(ctx context.Context, identifier string, secret string) (identity.Tokens, error) {
	const op = "local.InitiateAuth"

	log := p.log.With(slog.String("op", op))

	if identifier == "" || secret == "" {
		return identity.Tokens{}, &identity.ProviderError{Code: identity.CodeInvalidParameter, Message: "identifier and secret are required"}
	}

	if !p.allow(identifier) {
		log.Warn("too many attempts")
		return identity.Tokens{}, &identity.ProviderError{Code: identity.CodeTooManyRequests}
	}

	account, err := p.accounts.AccountByEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(secret))
			return identity.Tokens{}, &identity.ProviderError{Code: identity.CodeUserNotFound}
		}
		return identity.Tokens{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(account.PassHash, []byte(secret)); err != nil {
		log.Info("invalid credentials")
		return identity.Tokens{}, &identity.ProviderError{Code: identity.CodeNotAuthorized, Message: "incorrect username or password"}
	}

	if !account.Confirmed {
		return identity.Tokens{}, &identity.ProviderError{Code: identity.CodeUserNotConfirmed}
	}

	tokens, err := p.mint(account)
	if err != nil {
		return identity.Tokens{}, fmt.Errorf("%s: %w", op, err)
	}

	refresh, err := generateRefreshToken()
	if err != nil {
		return identity.Tokens{}, fmt.Errorf("%s: %w", op, err)
	}

	now := p.now()
	err = p.tokens.SaveRefreshToken(ctx, models.RefreshToken{
		TokenHash:  tokenhash.Digest(refresh),
		AccountID:  account.ID,
		Generation: account.TokenGeneration,
		ExpiresAt:  now.Add(p.refreshTTL),
		CreatedAt:  now,
	})
	if err != nil {
		return identity.Tokens{}, fmt.Errorf("%s: %w", op, err)
	}
	tokens.RefreshToken = refresh

	return tokens, nil
}

func (p *Provider) GetUser(ctx context.Context, accessToken string) (identity.Introspection, error) {
	const op = "local.GetUser"

	account, err := p.accountForAccessToken(ctx, accessToken)
	if err != nil {
		return identity.Introspection{}, fmt.Errorf("%s: %w", op, err)
	}

	return identity.Introspection{
		SubjectID: account.ID,
		Attributes: map[string]string{
			"email": account.Email,
			"name":  account.FullName,
			"role":  account.RoleID,
		},
	}, nil
}

// RefreshAuth mints a new access and id token. Refresh tokens are not rotated.
func (p *Provider) RefreshAuth(ctx context.Context, refreshToken string, subjectHint string) (identity.Tokens, error) {
	const op = "local.RefreshAuth"

	if refreshToken == "" {
		return identity.Tokens{}, &identity.ProviderError{Code: identity.CodeInvalidParameter, Message: "refresh token is required"}
	}

	stored, err := p.tokens.RefreshToken(ctx, tokenhash.Digest(refreshToken))
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			return identity.Tokens{}, &identity.ProviderError{Code: identity.CodeNotAuthorized, Message: "invalid refresh token"}
		}
		return identity.Tokens{}, fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case stored.Revoked:
		return identity.Tokens{}, &identity.ProviderError{Code: identity.CodeNotAuthorized, Message: "refresh token has been revoked"}
	case p.now().After(stored.ExpiresAt):
		return identity.Tokens{}, &identity.ProviderError{Code: identity.CodeExpiredToken, Message: "refresh token has expired"}
	case subjectHint != "" && subjectHint != stored.AccountID:
		return identity.Tokens{}, &identity.ProviderError{Code: identity.CodeNotAuthorized, Message: "refresh token does not belong to subject"}
	}

	account, err := p.accounts.AccountByID(ctx, stored.AccountID)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return identity.Tokens{}, &identity.ProviderError{Code: identity.CodeUserNotFound}
		}
		return identity.Tokens{}, fmt.Errorf("%s: %w", op, err)
	}
	if account.TokenGeneration != stored.Generation {
		return identity.Tokens{}, &identity.ProviderError{Code: identity.CodeNotAuthorized, Message: "refresh token has been revoked"}
	}

	tokens, err := p.mint(account)
	if err != nil {
		return identity.Tokens{}, fmt.Errorf("%s: %w", op, err)
	}

	return tokens, nil
}

// GlobalSignOut invalidates every access and refresh token of the token's owner.
func (p *Provider) GlobalSignOut(ctx context.Context, accessToken string) error {
	const op = "local.GlobalSignOut"

	account, err := p.accountForAccessToken(ctx, accessToken)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := p.accounts.BumpTokenGeneration(ctx, account.ID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := p.tokens.RevokeRefreshTokens(ctx, account.ID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	p.log.Info("global sign out", slog.String("op", op), slog.String("account_id", account.ID))

	return nil
}

func (p *Provider) accountForAccessToken(ctx context.Context, accessToken string) (models.Account, error) {
	claims, err := p.issuer.ParseToken(accessToken, jwt.UseAccess)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Account{}, &identity.ProviderError{Code: identity.CodeExpiredToken, Message: "access token has expired"}
		}
		return models.Account{}, &identity.ProviderError{Code: identity.CodeNotAuthorized, Message: "invalid access token"}
	}

	account, err := p.accounts.AccountByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return models.Account{}, &identity.ProviderError{Code: identity.CodeUserNotFound}
		}
		return models.Account{}, err
	}

	if claims.Generation != account.TokenGeneration {
		return models.Account{}, &identity.ProviderError{Code: identity.CodeNotAuthorized, Message: "access token has been revoked"}
	}

	return account, nil
}

func (p *Provider) mint(account models.Account) (identity.Tokens, error) {
	now := p.now()

	access, err := p.issuer.NewToken(account, jwt.UseAccess, now, p.accessTTL)
	if err != nil {
		return identity.Tokens{}, err
	}

	idToken, err := p.issuer.NewToken(account, jwt.UseID, now, p.accessTTL)
	if err != nil {
		return identity.Tokens{}, err
	}

	return identity.Tokens{
		AccessToken: access,
		IDToken:     idToken,
		ExpiresIn:   int64(p.accessTTL / time.Second),
	}, nil
}

func (p *Provider) allow(identifier string) bool {
	if p.attempts <= 0 {
		return true
	}

	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if now.Sub(p.lastSweep) >= limiterIdleTTL {
		p.sweepLimiters(now)
	}

	tracked, ok := p.limiters[identifier]
	if !ok {
		if len(p.limiters) >= p.maxTracked {
			p.sweepLimiters(now)
		}
		if len(p.limiters) >= p.maxTracked {
			p.evictOldestLimiter()
		}
		tracked = &trackedLimiter{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(p.attempts)), p.attempts),
		}
		p.limiters[identifier] = tracked
	}
	tracked.lastSeen = now

	return tracked.limiter.AllowN(now, 1)
}

// sweepLimiters drops limiters idle for at least one refill window.
// Callers hold p.mu.
func (p *Provider) sweepLimiters(now time.Time) {
	for identifier, tracked := range p.limiters {
		if now.Sub(tracked.lastSeen) >= limiterIdleTTL {
			delete(p.limiters, identifier)
		}
	}
	p.lastSweep = now
}

// evictOldestLimiter drops the least recently seen limiter. Callers hold p.mu.
func (p *Provider) evictOldestLimiter() {
	var (
		oldestID string
		oldest   time.Time
		found    bool
	)
	for identifier, tracked := range p.limiters {
		if !found || tracked.lastSeen.Before(oldest) {
			oldestID, oldest, found = identifier, tracked.lastSeen, true
		}
	}
	if found {
		delete(p.limiters, oldestID)
	}
}

func generateRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
