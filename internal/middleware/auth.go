package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go-todo-app/internal/model"
)

type tokenValidator interface {
	ValidateToken(tokenString string) (*model.AuthClaims, error)
}

type contextKey string

const authClaimsContextKey contextKey = "auth_claims"

// SessionCookieName carries the session token for browser page loads;
// API clients send the same token as a bearer header.
const SessionCookieName = "todo_session"

type AuthMiddleware struct {
	validator tokenValidator
}

func NewAuthMiddleware(validator tokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// RequireAuth resolves the session once per request and stores the claim
// in the request context. Requests with no resolvable session are
// rejected before any downstream handler executes.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := m.resolve(r)
		if !ok {
			writeUnauthorized(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid session token")
			return
		}

		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

// RequirePage is RequireAuth for server-rendered pages: instead of a
// JSON 401 it redirects the browser to the sign-in screen.
func (m *AuthMiddleware) RequirePage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := m.resolve(r)
		if !ok {
			http.Redirect(w, r, "/auth/signin", http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

// RequireTodoWrite gates write methods on the todo collection behind the
// admin role. Reads pass for any authenticated session. The decision is
// a pure function of (method, resolved claim); the rejection body shape
// is part of the API contract.
func (m *AuthMiddleware) RequireTodoWrite(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeUnauthorized(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
				return
			}
			if !claims.IsAdmin() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) resolve(r *http.Request) (*model.AuthClaims, bool) {
	token := bearerToken(r)
	if token == "" {
		if cookie, err := r.Cookie(SessionCookieName); err == nil {
			token = strings.TrimSpace(cookie.Value)
		}
	}
	if token == "" {
		return nil, false
	}

	claims, err := m.validator.ValidateToken(token)
	if err != nil {
		return nil, false
	}
	return claims, true
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func withClaims(ctx context.Context, claims *model.AuthClaims) context.Context {
	return context.WithValue(ctx, authClaimsContextKey, claims)
}

// ClaimsFromContext is the single place the caller identity leaves the
// request context; handlers pass the claim down as an explicit argument.
func ClaimsFromContext(ctx context.Context) (*model.AuthClaims, bool) {
	claims, ok := ctx.Value(authClaimsContextKey).(*model.AuthClaims)
	return claims, ok
}

func writeUnauthorized(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = jsonEncode(w, model.APIResponse{
		Success: false,
		Error: &model.APIError{
			Code:    code,
			Message: message,
		},
	})
}
