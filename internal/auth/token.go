package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/cadence/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "cadence"

// TokenManager issues and validates access tokens and signed one-time link
// tokens. The two kinds use separate secrets so a leaked link secret cannot
// mint access tokens.
type TokenManager struct {
	secret            []byte
	linkSecret        []byte
	accessTokenExpiry time.Duration
	now               func() time.Time
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret, linkSecret string, accessExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:            []byte(secret),
		linkSecret:        []byte(linkSecret),
		accessTokenExpiry: accessExpiry,
		now:               time.Now,
	}
}

// AccessTokenExpiry is the lifetime of issued access tokens.
func (tm *TokenManager) AccessTokenExpiry() time.Duration {
	return tm.accessTokenExpiry
}

// GenerateAccessToken creates a short-lived access token with JTI
func (tm *TokenManager) GenerateAccessToken(user *models.User) (string, error) {
	now := tm.now()

	claims := &models.TokenClaims{
		Type:   models.TokenTypeAccess,
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   user.ID,
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.accessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken verifies an access token and returns its claims.
// Expired tokens yield models.ErrTokenExpired, anything else models.ErrInvalidToken.
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, tm.keyFunc(tm.secret),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return nil, classifyJWTError(err)
	}

	if claims.Type != models.TokenTypeAccess || claims.UserID == "" {
		return nil, models.ErrInvalidToken
	}

	return claims, nil
}

// GenerateLinkToken signs a single-use link token for purpose. The returned
// jti must be stored server-side so the token can be consumed exactly once.
func (tm *TokenManager) GenerateLinkToken(purpose, userID string, ttl time.Duration) (token, jti string, expiresAt time.Time, err error) {
	now := tm.now()
	jti = uuid.New().String()
	expiresAt = now.Add(ttl)

	claims := &models.LinkClaims{
		Type:    models.TokenTypeLink,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.linkSecret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("failed to sign link token: %w", err)
	}

	return token, jti, expiresAt, nil
}

// ParseLinkToken verifies a link token's signature, expiry and purpose.
func (tm *TokenManager) ParseLinkToken(purpose, tokenString string) (*models.LinkClaims, error) {
	claims := &models.LinkClaims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, tm.keyFunc(tm.linkSecret),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return nil, classifyJWTError(err)
	}

	if claims.Type != models.TokenTypeLink || claims.Purpose != purpose ||
		claims.ID == "" || claims.Subject == "" {
		return nil, models.ErrInvalidToken
	}

	return claims, nil
}

func (tm *TokenManager) keyFunc(key []byte) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	}
}

func classifyJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return models.ErrTokenExpired
	}
	return fmt.Errorf("%w: %v", models.ErrInvalidToken, err)
}
