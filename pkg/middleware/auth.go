// Package middleware provides HTTP middleware for the gauntlet API.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gauntlethq/gauntlet/pkg/auth"
)

// Key type for context values
type contextKey string

// Context keys
const (
	AccountIDKey contextKey = "account_id"
)

// TokenValidator verifies a bearer token and returns the account ID it
// belongs to.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// AuthMiddleware authenticates API requests. Bearer tokens are checked as
// API tokens first and as JWTs second; Basic credentials go through the
// account service. Failed attempts count against a per-client rate limit.
type AuthMiddleware struct {
	accountService auth.AccountService
	jwt            TokenValidator
	rateLimiter    *RateLimiter
}

// NewAuthMiddleware creates authentication middleware. The JWT validator
// may be nil when only API tokens are issued.
func NewAuthMiddleware(accountService auth.AccountService, jwt TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{
		accountService: accountService,
		jwt:            jwt,
		rateLimiter:    NewRateLimiter(100, time.Minute),
	}
}

// Authenticate resolves the account behind a request and stores its ID on
// the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS preflight requests carry no credentials
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		clientIP := r.RemoteAddr
		if m.rateLimiter.IsLimited(clientIP) {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		var accountID string
		var err error

		if strings.HasPrefix(authHeader, "Bearer ") {
			token := strings.TrimPrefix(authHeader, "Bearer ")
			accountID, err = m.accountService.ValidateToken(token)
			if err != nil && m.jwt != nil {
				accountID, err = m.jwt.ValidateToken(token)
			}
		} else if strings.HasPrefix(authHeader, "Basic ") {
			username, password, ok := r.BasicAuth()
			if !ok {
				http.Error(w, "Invalid Authorization header", http.StatusUnauthorized)
				return
			}
			accountID, err = m.accountService.Authenticate(username, password)
		} else {
			http.Error(w, "Unsupported authentication method", http.StatusUnauthorized)
			return
		}

		if err != nil {
			m.rateLimiter.Record(clientIP)
			http.Error(w, "Authentication failed", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), AccountIDKey, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAccountID retrieves the account ID from the request context.
func GetAccountID(r *http.Request) (string, bool) {
	accountID, ok := r.Context().Value(AccountIDKey).(string)
	return accountID, ok
}

// RequireAccount ensures an account ID is present in the context.
func RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetAccountID(r); !ok {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CORS adds cross-origin headers to every response and short-circuits
// preflight requests.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
