package testutil

import (
	"net/http"
	"time"

	"recordgate/pkg/domain"
	"recordgate/pkg/requestcontext"
)

// WithAuth adds an authorization context to the request, simulating what the
// auth middleware does for authenticated requests.
func WithAuth(req *http.Request, auth domain.AuthContext) *http.Request {
	return req.WithContext(requestcontext.WithAuth(req.Context(), auth))
}

// WithActor is shorthand for an authenticated actor with the given roles.
func WithActor(req *http.Request, actorID string, roles ...domain.Role) *http.Request {
	return WithAuth(req, domain.AuthContext{ActorID: actorID, Roles: roles})
}

// WithCorrelationID injects a correlation id, simulating the correlation
// middleware.
func WithCorrelationID(req *http.Request, id domain.CorrelationID) *http.Request {
	return req.WithContext(requestcontext.WithCorrelationID(req.Context(), id))
}

// WithTime pins the request-scoped time, simulating the requesttime
// middleware with a fixed clock.
func WithTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
