// Package auth validates visitor sessions. Verification is public: a
// missing or invalid session only means the visitor is anonymous, it never
// blocks a lookup. Ownership-gated behavior keys off the recipient id the
// session carries.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSigningKey = errors.New("auth: signing key required")
	ErrMissingIssuer     = errors.New("auth: issuer required")
	ErrMissingCookieName = errors.New("auth: cookie name required")
	ErrNoSession         = errors.New("auth: no session presented")
	ErrInvalidSession    = errors.New("auth: invalid session token")
)

// Viewer is the authenticated visitor derived from a session token.
type Viewer struct {
	RecipientID uint64
	DisplayName string
	Email       string
}

// sessionClaims mirrors the JWT payload issued by the LMS login flow. The
// subject is the recipient's decimal id.
type sessionClaims struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	jwt.RegisteredClaims
}

// SessionValidatorConfig describes how session JWTs are validated.
type SessionValidatorConfig struct {
	SigningSecret []byte
	Issuer        string
	CookieName    string
	Clock         func() time.Time
}

// SessionValidator validates HS256 session JWTs presented by cookie or
// bearer header.
type SessionValidator struct {
	signingSecret []byte
	issuer        string
	cookieName    string
	clock         func() time.Time
}

// NewSessionValidator constructs a validator with the provided configuration.
func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningKey
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingIssuer
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, ErrMissingCookieName
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionValidator{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		cookieName:    cookieName,
		clock:         clock,
	}, nil
}

// CookieName returns the cookie consulted for session lookups.
func (v *SessionValidator) CookieName() string {
	return v.cookieName
}

// ViewerFromRequest extracts and validates the session carried by the
// request, preferring the session cookie over a bearer header. ErrNoSession
// is returned for anonymous requests.
func (v *SessionValidator) ViewerFromRequest(r *http.Request) (Viewer, error) {
	if cookie, err := r.Cookie(v.cookieName); err == nil && cookie.Value != "" {
		return v.ValidateToken(cookie.Value)
	}

	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token != "" {
			return v.ValidateToken(token)
		}
	}

	return Viewer{}, ErrNoSession
}

// ValidateToken parses and validates one session JWT and returns the viewer
// it identifies.
func (v *SessionValidator) ValidateToken(tokenString string) (Viewer, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return v.signingSecret, nil
		},
		jwt.WithIssuer(v.issuer),
		jwt.WithTimeFunc(func() time.Time { return v.clock() }),
	)
	if err != nil {
		return Viewer{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	recipientID, err := strconv.ParseUint(strings.TrimSpace(claims.Subject), 10, 64)
	if err != nil || recipientID == 0 {
		return Viewer{}, fmt.Errorf("%w: subject is not a recipient id", ErrInvalidSession)
	}

	return Viewer{
		RecipientID: recipientID,
		DisplayName: claims.DisplayName,
		Email:       claims.Email,
	}, nil
}
