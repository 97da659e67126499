// Package middleware provides composable wrappers around each handler
// attempt the worker loop makes.
//
// A [Middleware] receives the [Attempt] being made and the next handler in
// the chain. Chains are built with [Chain] and applied right-to-left: the
// first middleware in the slice is the outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] — logs ticket, entity, attempt number, duration, and outcome
//   - [Recover] — converts handler panics into attempt failures
//   - [Timeout] — bounds one attempt with a deadline (opt-in)
//   - [Tracing] — wraps each attempt in an OpenTelemetry span
//   - [Metrics] — records per-attempt duration and outcome counters
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
