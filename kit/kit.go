// Package kit provides the transport-agnostic endpoint abstraction shared by
// every tool the server exposes: a typed request goes in, a response or error
// comes out, and middleware composes around it. Transports (MCP stdio,
// streamable HTTP) decode their wire format into the endpoint's request type.
package kit

import "context"

// Endpoint is the universal handler shape: one request, one response.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behaviour.
type Middleware func(Endpoint) Endpoint

// Chain composes middleware left-to-right: the first middleware is the
// outermost wrapper.
func Chain(mw ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mw) - 1; i >= 0; i-- {
			next = mw[i](next)
		}
		return next
	}
}
