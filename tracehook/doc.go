// Package tracehook is an enrich extension that follows a submission
// through the system by its correlation id.
//
// A ticket created under a trace id (see enrich.WithTraceID) carries it for
// its whole life. Every lifecycle hook for such a ticket becomes a [Step]
// handed to the [Recorder]. Tickets without a trace id are ignored.
//
// The default recorder writes one slog line per step:
//
//	level=INFO msg=trace trace_id=1f3a9c0e step=worker_claimed ticket_id=tkt_... worker_id=wkr_...-0
//
// # Selective filtering
//
//	tracehook.New(nil,
//	    tracehook.WithSteps(
//	        tracehook.StepWorkerFailed,
//	        tracehook.StepReclaimExhausted,
//	    ),
//	)
package tracehook
