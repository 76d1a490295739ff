package middleware

import (
	"net/http"
)

// Middleware wraps an http.Handler and returns a new http.Handler
type Middleware func(http.Handler) http.Handler

// Chain represents a chain of middleware
type Chain struct {
	middlewares []Middleware
}

// NewChain creates a new middleware chain
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Then chains the middleware and returns the final handler
func (c *Chain) Then(h http.Handler) http.Handler {
	// Apply middleware in reverse order so that the first middleware
	// in the chain is executed first
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		h = c.middlewares[i](h)
	}
	return h
}

// Append adds middleware to the end of the chain
func (c *Chain) Append(middlewares ...Middleware) *Chain {
	combined := make([]Middleware, 0, len(c.middlewares)+len(middlewares))
	combined = append(combined, c.middlewares...)
	combined = append(combined, middlewares...)
	return &Chain{middlewares: combined}
}
