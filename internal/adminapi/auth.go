// Package adminapi mounts the local HTTP administration surface under
// "/api/admin/**": workflow/credential/variable CRUD plus execution
// inspection, gated by a bearer-token middleware adapted from a websocket
// upgrade guard to plain HTTP.
package adminapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing authentication token")
	ErrInvalidToken = errors.New("invalid authentication token")
	ErrExpiredToken = errors.New("token has expired")
)

// Authenticator validates an incoming admin request and returns the
// token's subject. Structurally identical to internal/stepdebug's
// Authenticator so a single JWTAuth instance can guard both surfaces.
type Authenticator interface {
	Authenticate(r *http.Request) (subject string, err error)
}

// NoAuth accepts every request unauthenticated. The default when
// Config.JWTSecret is blank (cmd/server, local development only).
type NoAuth struct{}

func (NoAuth) Authenticate(r *http.Request) (string, error) { return "anonymous", nil }

// claims is the JWT payload verified on the admin surface.
type claims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// JWTAuth verifies bearer tokens signed with a shared HMAC secret,
// JWTAuth.
type JWTAuth struct {
	secret []byte
}

func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{secret: []byte(secret)}
}

func (a *JWTAuth) Authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return "", ErrMissingToken
	}
	return a.validate(strings.TrimPrefix(header, "Bearer "))
}

func (a *JWTAuth) validate(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}
	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	subject := c.Subject
	if subject == "" {
		subject = c.RegisteredClaims.Subject
	}
	if subject == "" {
		return "", ErrInvalidToken
	}
	return subject, nil
}

// IssueToken mints a bearer token for subject, valid for ttl. Exposed for
// cmd/server's own bootstrap use and for tests; the admin surface has no
// self-service login endpoint (tokens are provisioned out of band).
func (a *JWTAuth) IssueToken(subject string, ttl time.Duration) (string, error) {
	c := claims{
		Subject:          subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(a.secret)
}

// requireAuth wraps handler with an Authenticator check, writing 401 on
// failure without invoking handler.
func requireAuth(auth Authenticator, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := auth.Authenticate(r); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		handler(w, r)
	}
}
