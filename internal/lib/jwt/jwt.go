package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"sessions/internal/domain/models"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

type TokenUse string

const (
	UseAccess TokenUse = "access"
	UseID     TokenUse = "id"
)

type CustomClaims struct {
	Email      string   `json:"email,omitempty"`
	Name       string   `json:"name,omitempty"`
	Role       string   `json:"role,omitempty"`
	Use        TokenUse `json:"token_use"`
	Generation int64    `json:"gen"`
	jwt.RegisteredClaims
}

// Issuer mints and parses HS256 tokens for one issuer and secret.
type Issuer struct {
	name   string
	secret []byte
}

func NewIssuer(name string, secret string) *Issuer {
	return &Issuer{name: name, secret: []byte(secret)}
}

func (i *Issuer) NewToken(account models.Account, use TokenUse, now time.Time, duration time.Duration) (string, error) {
	if account.ID == "" || len(i.secret) == 0 {
		return "", errors.New("not enough data for token generation")
	}

	claims := CustomClaims{
		Use:        use,
		Generation: account.TokenGeneration,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.name,
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			ID:        generateJTI(),
		},
	}
	if use == UseID {
		claims.Email = account.Email
		claims.Name = account.FullName
		claims.Role = account.RoleID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(i.secret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies signature, issuer, expiry and token use.
func (i *Issuer) ParseToken(tokenString string, use TokenUse) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithIssuer(i.name), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || claims.Use != use || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

func generateJTI() string {
	return uuid.New().String()
}
