// Package middleware provides various middleware functionality.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/capitalengine/capitalengine/internal/models/modelclaims"
	"github.com/capitalengine/capitalengine/internal/service/secretary"
)

type contextKey string

// UserIDContextKey carries the authenticated user identifier through the
// request context.
const UserIDContextKey contextKey = "userID"

// TokenHandler sets object structure.
type TokenHandler struct {
	sec secretary.Secretary
}

// NewTokenHandler initializes a new token handler.
func NewTokenHandler(sec secretary.Secretary) (*TokenHandler, error) {
	if sec == nil {
		return nil, errors.New("nil secretary object was found")
	}
	return &TokenHandler{sec: sec}, nil
}

func (c *TokenHandler) claimsFromRequest(r *http.Request) (*modelclaims.MyCustomClaims, error) {
	tokenString := r.Header.Get("Authorization")
	if len(tokenString) == 0 {
		return nil, errors.New("token authorization required")
	}
	tokenString = strings.Replace(tokenString, "Bearer ", "", 1)
	return c.sec.ValidateToken(tokenString)
}

// TokenHandle admits requests bearing a valid token and stores the token's
// user identifier in the request context.
func (c *TokenHandler) TokenHandle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := c.claimsFromRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), UserIDContextKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminTokenHandle admits only tokens carrying the admin role.
func (c *TokenHandler) AdminTokenHandle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := c.claimsFromRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if claims.Role != modelclaims.RoleAdmin {
			http.Error(w, "admin access required", http.StatusForbidden)
			return
		}
		ctx := context.WithValue(r.Context(), UserIDContextKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFromContext retrieves the authenticated user identifier set by
// TokenHandle.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDContextKey).(string)
	return userID, ok
}
