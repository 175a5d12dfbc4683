package auth

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recordgate/pkg/domain"
	"recordgate/pkg/platform/httputil"
	"recordgate/pkg/requestcontext"
	"recordgate/pkg/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoAuth responds 200 and captures the authorization context the
// middleware stored.
func echoAuth(captured *domain.AuthContext) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = requestcontext.Auth(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuth(t *testing.T) {
	verifier := NewVerifier([]byte("middleware-test-key"))

	t.Run("missing header", func(t *testing.T) {
		var captured domain.AuthContext
		handler := RequireAuth(verifier, discardLogger())(echoAuth(&captured))

		rr := testutil.DoRequest(handler, testutil.NewRequest(t, http.MethodGet, "/lists"))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		var resp httputil.ErrorResponse
		testutil.DecodeResponse(t, rr, &resp)
		assert.Equal(t, "missing or invalid Authorization header", resp.ErrorDescription)
	})

	t.Run("malformed token", func(t *testing.T) {
		var captured domain.AuthContext
		handler := RequireAuth(verifier, discardLogger())(echoAuth(&captured))

		req := testutil.NewRequest(t, http.MethodGet, "/lists")
		req.Header.Set("Authorization", "Bearer not.a.jwt")
		rr := testutil.DoRequest(handler, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("wrong signing key", func(t *testing.T) {
		token, err := NewVerifier([]byte("another-key")).Issue(
			domain.AuthContext{ActorID: "intruder"})
		require.NoError(t, err)

		var captured domain.AuthContext
		handler := RequireAuth(verifier, discardLogger())(echoAuth(&captured))

		req := testutil.NewRequest(t, http.MethodGet, "/lists")
		req.Header.Set("Authorization", "Bearer "+token)
		rr := testutil.DoRequest(handler, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("valid token populates the context", func(t *testing.T) {
		token, err := verifier.Issue(domain.AuthContext{
			ActorID: "agent-1",
			Roles:   []domain.Role{domain.RoleAgent, domain.RoleSupervisor},
		})
		require.NoError(t, err)

		var captured domain.AuthContext
		handler := RequireAuth(verifier, discardLogger())(echoAuth(&captured))

		req := testutil.NewRequest(t, http.MethodGet, "/lists")
		req.Header.Set("Authorization", "Bearer "+token)
		rr := testutil.DoRequest(handler, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "agent-1", captured.ActorID)
		assert.Equal(t, []domain.Role{domain.RoleAgent, domain.RoleSupervisor}, captured.Roles)
	})
}

func TestRequireRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireRole(domain.RoleAdmin, discardLogger())(next)

	t.Run("missing role denied generically", func(t *testing.T) {
		req := testutil.WithActor(testutil.NewRequest(t, http.MethodGet, "/evidence/recent"),
			"agent-1", domain.RoleAgent)
		rr := testutil.DoRequest(handler, req)
		assert.Equal(t, http.StatusForbidden, rr.Code)

		var resp httputil.ErrorResponse
		testutil.DecodeResponse(t, rr, &resp)
		assert.Equal(t, "permission denied", resp.ErrorDescription)
	})

	t.Run("matching role passes", func(t *testing.T) {
		req := testutil.WithActor(testutil.NewRequest(t, http.MethodGet, "/evidence/recent"),
			"auditor-1", domain.RoleAdmin)
		rr := testutil.DoRequest(handler, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("unauthenticated request denied", func(t *testing.T) {
		rr := testutil.DoRequest(handler, testutil.NewRequest(t, http.MethodGet, "/evidence/recent"))
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}
