// Package shield provides the HTTP security middleware for the tool server's
// streamable transport: security headers, request body limits, and a per-IP
// rate limiter.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack() {
//		r.Use(mw)
//	}
package shield

import "net/http"

// DefaultStack returns the standard middleware stack for the tool server,
// ordered: SecurityHeaders → MaxBody → RateLimiter.
func DefaultStack() []func(http.Handler) http.Handler {
	rl := NewRateLimiter()
	return []func(http.Handler) http.Handler{
		SecurityHeaders(DefaultHeaders()),
		MaxBody(4 << 20),
		rl.Middleware,
	}
}
