// Package httpserver builds the process HTTP server. Per-request timeouts
// belong to the router middleware; shutdown deadlines belong to the caller.
package httpserver

import (
	"net/http"
	"time"
)

const (
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 60 * time.Second
)

// New builds an HTTP server for the governance surface. ReadHeaderTimeout
// bounds slow-header clients; IdleTimeout reclaims abandoned keep-alives.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
}
