// Package session implements the browser session as a signed, HttpOnly
// cookie carrying the provider account id.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const cookieName = "bookdrop_session"

// ErrNoSession is returned when the request carries no valid session cookie.
var ErrNoSession = errors.New("no session")

type contextKey int

const accountIDKey contextKey = iota

// Claims represents the session token claims
type Claims struct {
	DropboxID string `json:"dropbox_id"`
	jwt.RegisteredClaims
}

// Manager issues and validates session cookies
type Manager struct {
	secret []byte
	ttl    time.Duration
}

// NewManager creates a session manager with the given signing secret and a
// 30 day session lifetime.
func NewManager(secret string) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    30 * 24 * time.Hour,
	}
}

// Issue sets a session cookie for the given account id
func (m *Manager) Issue(w http.ResponseWriter, dropboxID string) error {
	now := time.Now()
	claims := &Claims{
		DropboxID: dropboxID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return fmt.Errorf("failed to sign session token: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		Expires:  now.Add(m.ttl),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// Clear expires the session cookie
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// parse extracts the account id from the request's session cookie.
func (m *Manager) parse(r *http.Request) (string, error) {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return "", ErrNoSession
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid || claims.DropboxID == "" {
		return "", ErrNoSession
	}

	return claims.DropboxID, nil
}

// Middleware resolves the current account id once at the request boundary
// and stores it in the context. Requests without a valid session pass
// through unauthenticated; individual handlers decide whether that is a 400,
// 401, 403, or redirect.
func (m *Manager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			dropboxID, err := m.parse(r)
			if err == nil {
				r = r.WithContext(context.WithValue(r.Context(), accountIDKey, dropboxID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AccountID returns the authenticated account id from the request context
func AccountID(ctx context.Context) (string, error) {
	dropboxID, ok := ctx.Value(accountIDKey).(string)
	if !ok {
		return "", ErrNoSession
	}
	return dropboxID, nil
}
