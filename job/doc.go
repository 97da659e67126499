// Package job defines the contract between the worker loop and the code
// that performs an enrichment.
//
// A [HandlerFunc] receives the entity id of the claimed ticket and returns
// an opaque JSON result. Any non-nil error counts as a failed attempt; the
// worker retries up to its attempt budget and then fails the ticket.
//
// Use [Typed] to write a handler that returns a concrete type:
//
//	h := job.Typed(func(ctx context.Context, entityID id.ID) (*Summary, error) {
//	    return lookup(ctx, entityID)
//	})
package job
