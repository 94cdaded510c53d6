package jwtsigner

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("jwtsigner: invalid token")

// ActivationClaims is the signed payload of an account activation link.
type ActivationClaims struct {
	UserID     string // sub: local user id
	IdentityID string // uid: external identity id
	Email      string
	TokenID    string // jti: activation_tokens.id
	ExpiresAt  time.Time
}

// Signer issues and verifies HS256 compact tokens with a shared secret.
type Signer struct {
	secret []byte
	now    func() time.Time
}

func New(secret string) (*Signer, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwtsigner: secret must be at least 16 bytes")
	}
	return &Signer{secret: []byte(secret), now: time.Now}, nil
}

// WithClock replaces the time source used for expiry checks.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

func (s *Signer) SignActivation(c ActivationClaims) (string, error) {
	m := jwt.MapClaims{
		"sub":   c.UserID,
		"uid":   c.IdentityID,
		"email": c.Email,
		"jti":   c.TokenID,
		"exp":   c.ExpiresAt.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, m).SignedString(s.secret)
}

// ParseActivation verifies signature and expiry. Every failure collapses to ErrInvalidToken.
func (s *Signer) ParseActivation(raw string) (*ActivationClaims, error) {
	m := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, m, func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	exp, err := m.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, ErrInvalidToken
	}
	c := &ActivationClaims{ExpiresAt: exp.Time}
	var ok bool
	if c.UserID, ok = m["sub"].(string); !ok || c.UserID == "" {
		return nil, ErrInvalidToken
	}
	if c.TokenID, ok = m["jti"].(string); !ok || c.TokenID == "" {
		return nil, ErrInvalidToken
	}
	c.IdentityID, _ = m["uid"].(string)
	c.Email, _ = m["email"].(string)
	return c, nil
}
