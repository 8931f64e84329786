// Package auth authenticates requests with bearer JWTs and puts the
// caller's person ID on the context.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "contactshare/pkg/domain"
	"contactshare/pkg/requestcontext"
)

// Claims is what the middleware needs from a validated token.
type Claims struct {
	PersonID string
}

// TokenValidator validates a raw bearer token.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

type contextKey string

const personIDKey contextKey = "person_id"

// GetPersonID returns the authenticated person, or zero when the
// request was not authenticated.
func GetPersonID(ctx context.Context) id.PersonID {
	if v, ok := ctx.Value(personIDKey).(id.PersonID); ok {
		return v
	}
	return id.PersonID{}
}

// WithPersonID stores the person on the context. Exposed for tests and
// internal dispatch.
func WithPersonID(ctx context.Context, personID id.PersonID) context.Context {
	return context.WithValue(ctx, personIDKey, personID)
}

// Middleware rejects requests without a valid bearer token.
func Middleware(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "missing bearer token")
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				unauthorized(w, "invalid token")
				return
			}
			personID, err := id.ParsePersonID(claims.PersonID)
			if err != nil || personID.IsNil() {
				logger.WarnContext(ctx, "unauthorized access - malformed subject",
					"request_id", requestcontext.RequestID(ctx),
				)
				unauthorized(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPersonID(ctx, personID)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func unauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"unauthorized","error_description":"%s"}`, description))
}
