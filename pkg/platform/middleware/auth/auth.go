// Package auth provides JWT bearer authentication middleware. Tokens carry
// the actor id in the subject claim and role names in a "roles" claim; the
// middleware turns them into the authorization context every service call
// requires.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"recordgate/pkg/domain"
	dErrors "recordgate/pkg/domain-errors"
	"recordgate/pkg/platform/httputil"
	"recordgate/pkg/requestcontext"
)

// Verifier validates HMAC-signed bearer tokens.
type Verifier struct {
	signingKey []byte
}

// NewVerifier creates a Verifier over the shared HMAC signing key.
func NewVerifier(signingKey []byte) *Verifier {
	return &Verifier{signingKey: signingKey}
}

type claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Verify parses and validates the token, returning the caller's
// authorization context.
func (v *Verifier) Verify(tokenString string) (domain.AuthContext, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return domain.AuthContext{}, fmt.Errorf("parse token: %w", err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || c.Subject == "" {
		return domain.AuthContext{}, fmt.Errorf("token carries no subject")
	}

	roles := make([]domain.Role, 0, len(c.Roles))
	for _, r := range c.Roles {
		roles = append(roles, domain.Role(r))
	}
	return domain.AuthContext{ActorID: c.Subject, Roles: roles}, nil
}

// Issue mints a signed token for the given authorization context. Used by
// tests and local tooling; production tokens come from the identity provider.
func (v *Verifier) Issue(auth domain.AuthContext) (string, error) {
	roles := make([]string, 0, len(auth.Roles))
	for _, r := range auth.Roles {
		roles = append(roles, string(r))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Roles:            roles,
		RegisteredClaims: jwt.RegisteredClaims{Subject: auth.ActorID},
	})
	return token.SignedString(v.signingKey)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// resulting authorization context for downstream handlers.
func RequireAuth(verifier *Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			correlationID := requestcontext.CorrelationID(ctx).String()

			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"correlation_id", correlationID)
				httputil.WriteError(w, correlationID,
					dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			auth, err := verifier.Verify(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"correlation_id", correlationID)
				httputil.WriteError(w, correlationID,
					dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithAuth(ctx, auth)))
		})
	}
}

// RequireRole gates a route group on a role. Must run after RequireAuth.
func RequireRole(role domain.Role, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			auth := requestcontext.Auth(ctx)
			if !auth.HasRole(role) {
				correlationID := requestcontext.CorrelationID(ctx).String()
				logger.WarnContext(ctx, "forbidden - missing role",
					"actor_id", auth.ActorID,
					"correlation_id", correlationID)
				httputil.WriteError(w, correlationID,
					dErrors.New(dErrors.CodeForbidden, "permission denied"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
