// Package auth exposes the session capability consumed by the
// dashboard.  Sessions come from HS256 access tokens issued at staff
// login.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session identifies an authenticated staff member.
type Session struct {
	UserID    uint64
	Email     string
	Role      string
	ExpiresAt time.Time
}

// Auth answers whether there is a usable session right now.  The
// dashboard treats false as "not authenticated" and refuses to query
// or subscribe.
type Auth interface {
	CurrentSession() (Session, bool)
}

// SessionFunc adapts a function to Auth.
type SessionFunc func() (Session, bool)

func (f SessionFunc) CurrentSession() (Session, bool) { return f() }

// Static always returns s.
func Static(s Session) Auth {
	return SessionFunc(func() (Session, bool) { return s, true })
}

// None never has a session.
var None Auth = SessionFunc(func() (Session, bool) { return Session{}, false })

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrForbidden    = errors.New("role not allowed")
)

// ParseAccessToken verifies raw against secret and extracts the session.
// Tokens signed with anything but HMAC are rejected.
func ParseAccessToken(secret, raw string) (Session, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Session{}, ErrInvalidToken
	}
	sub, _ := claims.GetSubject()
	uid, err := strconv.ParseUint(sub, 10, 64)
	if err != nil || uid == 0 {
		return Session{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	s := Session{UserID: uid}
	s.Role, _ = claims["role"].(string)
	s.Email, _ = claims["email"].(string)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}
	return s, nil
}

// TokenAuth re-verifies one bearer token every time the session is
// consulted, so a long-lived dashboard notices expiry.
type TokenAuth struct {
	secret string
	raw    string
	roles  map[string]bool
}

// NewTokenAuth binds a raw token.  When roles is non-empty the token's
// role must be one of them.
func NewTokenAuth(secret, raw string, roles ...string) *TokenAuth {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return &TokenAuth{secret: secret, raw: raw, roles: allowed}
}

// Check returns the session or the reason there is none.
func (a *TokenAuth) Check() (Session, error) {
	s, err := ParseAccessToken(a.secret, a.raw)
	if err != nil {
		return Session{}, err
	}
	if len(a.roles) > 0 && !a.roles[s.Role] {
		return Session{}, ErrForbidden
	}
	return s, nil
}

func (a *TokenAuth) CurrentSession() (Session, bool) {
	s, err := a.Check()
	return s, err == nil
}
