package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/novaangola/apiserver/types"
)

// DefaultTokenTTL is how long an issued token stays valid. Tokens are never
// refreshed or revoked.
const DefaultTokenTTL = 7 * 24 * time.Hour

var (
	// ErrInvalidToken is returned for malformed, forged or incomplete tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when the token's exp is in the past.
	ErrTokenExpired = errors.New("token has expired")
)

// Identity is the caller resolved from a verified token.
type Identity struct {
	ID       string `json:"id"`
	Telefone string `json:"telefone"`
	Nome     string `json:"nome"`
}

// Claims is the token payload.
type Claims struct {
	ID       string `json:"id"`
	Telefone string `json:"telefone"`
	Nome     string `json:"nome"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 tokens signed with a shared secret.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures Tokens.
type Option func(*Tokens)

// WithTTL overrides DefaultTokenTTL.
func WithTTL(ttl time.Duration) Option {
	return func(t *Tokens) {
		t.ttl = ttl
	}
}

// WithClock overrides the time source used for issuing and validating.
func WithClock(now func() time.Time) Option {
	return func(t *Tokens) {
		t.now = now
	}
}

func NewTokens(secret string, opts ...Option) *Tokens {
	t := &Tokens{
		secret: []byte(secret),
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Issue signs a token embedding the user's id, phone and name.
func (t *Tokens) Issue(user types.User) (string, error) {
	now := t.now()
	claims := Claims{
		ID:       user.ID,
		Telefone: user.Telefone,
		Nome:     user.Nome,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify checks signature and expiry and returns the embedded identity.
func (t *Tokens) Verify(tokenString string) (Identity, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, ErrInvalidToken
	}
	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.ID) == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{ID: claims.ID, Telefone: claims.Telefone, Nome: claims.Nome}, nil
}

// Resolve is the optional mode of Verify: any failure, including an empty
// token, yields no identity instead of an error.
func (t *Tokens) Resolve(tokenString string) (Identity, bool) {
	if strings.TrimSpace(tokenString) == "" {
		return Identity{}, false
	}
	identity, err := t.Verify(tokenString)
	if err != nil {
		return Identity{}, false
	}
	return identity, true
}
