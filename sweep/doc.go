// Package sweep schedules lease reclamation.
//
// The ticket repository never schedules itself. A Sweeper runs
// [ticket.Repository.Sweep] on a cron schedule, reports every requeued and
// exhausted ticket to the extension registry, and then runs an optional
// [Reconciler] that repairs entities whose status drifted from their
// ticket's.
//
// Schedules use the standard five-field cron syntax or descriptors such as
// "@every 10s". A run that is still going when the next one is due causes
// that next run to be skipped.
package sweep
