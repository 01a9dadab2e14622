// Package server runs the HTTP endpoint the watch command exposes Prometheus
// metrics on.
//
// Manager wraps net/http.Server with a non-blocking Start, a bounded
// graceful Shutdown and an asynchronous error channel. Signal handling is
// left to the caller.
package server
