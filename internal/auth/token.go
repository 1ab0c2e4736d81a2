package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

// ErrInvalidToken is returned for malformed, expired, mis-signed or mis-typed tokens.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the registered claims plus the token type.
type Claims struct {
	jwt.RegisteredClaims
	Type TokenType `json:"typ"`
}

// UserID returns the subject as a numeric user id.
func (c Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

type signingKey struct {
	secret []byte
	ttl    time.Duration
}

// TokenManager issues and parses signed JWTs. Access and refresh tokens use
// separate secrets and lifetimes.
type TokenManager struct {
	keys map[TokenType]signingKey
	now  func() time.Time
}

// NewTokenManager creates a manager with the provided secrets and lifetimes.
func NewTokenManager(accessSecret string, accessTTL time.Duration, refreshSecret string, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		keys: map[TokenType]signingKey{
			AccessToken:  {secret: []byte(accessSecret), ttl: accessTTL},
			RefreshToken: {secret: []byte(refreshSecret), ttl: refreshTTL},
		},
		now: time.Now,
	}
}

// TTL returns the configured lifetime for the token type.
func (t *TokenManager) TTL(typ TokenType) time.Duration {
	return t.keys[typ].ttl
}

// Generate issues a signed JWT of the given type for userID.
func (t *TokenManager) Generate(typ TokenType, userID int64) (string, error) {
	key, ok := t.keys[typ]
	if !ok {
		return "", fmt.Errorf("unknown token type %q", typ)
	}
	now := t.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(key.ttl)),
		},
		Type: typ,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key.secret)
}

// Parse verifies signature, expiry and type and returns the claims.
func (t *TokenManager) Parse(typ TokenType, tokenString string) (*Claims, error) {
	key, ok := t.keys[typ]
	if !ok {
		return nil, fmt.Errorf("unknown token type %q", typ)
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return key.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Type != typ {
		return nil, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return claims, nil
}
