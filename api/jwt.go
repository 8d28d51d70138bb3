package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"louyass/core"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

const tokenIssuer = "louyass"

var (
	// ErrTokenRevoked is returned for a token whose JTI was revoked at logout
	ErrTokenRevoked = errors.New("token has been revoked")
	// ErrInvalidToken covers every other validation failure
	ErrInvalidToken = errors.New("invalid token")
)

// Claims represents JWT claims. Subject holds the user's e-mail.
type Claims struct {
	UserID int64     `json:"uid"`
	Role   core.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates HS256 access tokens and tracks them in a
// TokenStore so they can be revoked before they expire
type TokenIssuer struct {
	secret []byte
	expiry time.Duration
	clock  clockwork.Clock
	store  TokenStore
}

// NewTokenIssuer creates a TokenIssuer
func NewTokenIssuer(secret string, expiry time.Duration, store TokenStore, clock clockwork.Clock) *TokenIssuer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TokenIssuer{secret: []byte(secret), expiry: expiry, clock: clock, store: store}
}

// Issue generates a token for the user and returns it with its expiry
func (t *TokenIssuer) Issue(ctx context.Context, u *core.User) (string, time.Time, error) {
	now := t.clock.Now()
	expirationTime := now.Add(t.expiry)

	// Generate a unique JTI (JWT ID) for token revocation
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}

	claims := &Claims{
		UserID: u.ID,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   u.Email,
			ID:        jti,
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	if t.store != nil {
		if err := t.store.Track(ctx, u.ID, jti, expirationTime); err != nil {
			return "", time.Time{}, fmt.Errorf("track token: %w", err)
		}
	}

	return tokenString, expirationTime, nil
}

// Validate parses the token, checks signature, issuer and time claims, then
// the revocation list
func (t *TokenIssuer) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID <= 0 || claims.ID == "" {
		return nil, ErrInvalidToken
	}

	if t.store != nil {
		revoked, err := t.store.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}

	return claims, nil
}

// Revoke adds the token JTI to the revocation list until its natural expiration
func (t *TokenIssuer) Revoke(ctx context.Context, claims *Claims) error {
	if t.store == nil || claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	return t.store.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

// RevokeAll revokes every token issued to a user. Called when the account is
// deleted or its MFA settings change.
func (t *TokenIssuer) RevokeAll(ctx context.Context, userID int64) (int, error) {
	if t.store == nil {
		return 0, nil
	}
	return t.store.RevokeAll(ctx, userID)
}

// generateJTI generates a unique JWT ID for token revocation with 256-bit entropy
func generateJTI() (string, error) {
	bytes := make([]byte, 32) // 256 bits
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
