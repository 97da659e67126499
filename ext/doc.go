// Package ext defines the extension system for enrich.
//
// Extensions are notified of ticket lifecycle events and can react to
// them. Each lifecycle hook is a separate interface so extensions opt in
// only to the events they care about.
//
// # Implementing an Extension
//
//	type Notifier struct{}
//
//	func (n *Notifier) Name() string { return "notifier" }
//
//	func (n *Notifier) OnTicketCompleted(ctx context.Context, t *ticket.Ticket, elapsed time.Duration) error {
//	    log.Printf("ticket %s completed in %s", t.ID, elapsed)
//	    return nil
//	}
//
// # Hooks
//
//   - [TicketCreated] — a submission created an entity and its ticket
//   - [TicketClaimed] — a worker loop claimed a ticket
//   - [AttemptFailed] — one handler attempt failed
//   - [TicketCompleted] — the result was stored
//   - [TicketFailed] — the worker spent its attempts and failed the ticket
//   - [TicketRequeued] — a sweep requeued a ticket with an expired lease
//   - [TicketExhausted] — a sweep failed a ticket with no retries left
//   - [Shutdown] — the engine is stopping
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. Hook errors are logged and
// never interrupt ticket processing.
package ext
