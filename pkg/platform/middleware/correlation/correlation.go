// Package correlation provides middleware for request correlation ids.
// Every request carries one: the client's, when it sends a well-formed
// X-Correlation-ID header, or a freshly minted one otherwise. The id is
// echoed on the response and threaded through the context for logs and
// evidence.
package correlation

import (
	"net/http"

	"recordgate/pkg/domain"
	"recordgate/pkg/platform/httputil"
	"recordgate/pkg/requestcontext"
)

// Middleware resolves the request correlation id and echoes it back.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := domain.ParseCorrelationID(r.Header.Get(httputil.CorrelationHeader))
		if err != nil {
			// A malformed or missing header gets a server-minted id rather
			// than a rejection; the body-level correlation id has its own
			// strict validation.
			id = domain.NewCorrelationID()
		}

		w.Header().Set(httputil.CorrelationHeader, id.String())
		ctx := requestcontext.WithCorrelationID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
