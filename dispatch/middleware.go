package dispatch

import "context"

// HandlerFunc is the terminal shape of a dispatch: given the per-request
// context, resolve the method and (for requests) fill rc.Response.
type HandlerFunc func(ctx context.Context, rc *Context) error

// Next invokes the remainder of the middleware chain.
type Next func(ctx context.Context, rc *Context) error

// MiddlewareFunc wraps a dispatch. It must call next at most once; the
// dispatcher does not guard against a double call, matching the onion model
// where calling next twice is a contract error for the middleware author to
// avoid, not a runtime safety net the core provides.
type MiddlewareFunc func(ctx context.Context, rc *Context, next Next) error

// chain runs an ordered list of middlewares around a tail handler using an
// explicit index rather than pre-composed closures, so the dispatch path is
// a plain loop-like recursion over a slice rather than nested closures built
// once at registration time.
type chain struct {
	middlewares []MiddlewareFunc
	tail        HandlerFunc
}

func (c *chain) run(ctx context.Context, rc *Context) error {
	return c.dispatchFrom(ctx, rc, 0)
}

func (c *chain) dispatchFrom(ctx context.Context, rc *Context, idx int) error {
	if idx >= len(c.middlewares) {
		return c.tail(ctx, rc)
	}
	mw := c.middlewares[idx]
	return mw(ctx, rc, func(ctx context.Context, rc *Context) error {
		return c.dispatchFrom(ctx, rc, idx+1)
	})
}
