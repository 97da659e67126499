// Package engine wires all enrich subsystems together: repositories, the
// extension registry, the middleware chain, the submission service, the
// worker pool, and the reclamation sweeper.
//
// The engine package exists to break an import cycle: the root enrich
// package defines Status and the sentinel errors imported by every
// subsystem, so it cannot import them back. Engine sits above all subsystem
// packages and below the application layer. Nothing here is a package-level
// singleton; every dependency is passed in.
//
// # Building an Engine
//
//	e, err := enrich.New(
//	    enrich.WithStore(badgerStore),
//	    enrich.WithConfig(cfg),
//	)
//
//	eng, err := engine.Build(e, lookup.Handler(),
//	    engine.WithExtension(myExtension),
//	    engine.WithMiddleware(myMiddleware),
//	)
//
// # Running
//
//	sum, err := eng.Service().Submit(ctx, "sparrow")
//	err = eng.Start(ctx) // worker pool + sweeper
//	defer eng.Stop(shutdownCtx)
//
// # Options
//
//   - [WithExtension] registers a lifecycle extension
//   - [WithMiddleware] adds a middleware to the attempt chain
//   - [WithBackoff] sets the pause strategy between attempts
//   - [WithTracerProvider] sets the OpenTelemetry tracer provider
//   - [WithMeterProvider] sets the OpenTelemetry meter provider
//   - [WithTraceRecorder] sets where correlation trace steps go
package engine
