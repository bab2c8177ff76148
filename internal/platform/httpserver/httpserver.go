package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with the project's defaults. WriteTimeout is
// left unset so websocket listeners are not cut off.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
