// Package enrich provides a durable ticket queue for asynchronous
// enrichment jobs: fetch external data for a named entity, track the job
// through a persisted lifecycle, and hand it to worker loops that tolerate
// crashes and transient failures.
//
// # Architecture
//
// The root package holds the shared vocabulary: the [Status] enumeration,
// sentinel errors, and the core [Config]. Subsystems live in their own
// packages:
//
//   - kv — the embedded, transactional, ordered key-value contract
//   - store/badger, store/postgres, store/memory — kv backends
//   - entity — the domain record being enriched
//   - ticket — the queue engine (claim, complete, fail, reclaim)
//   - worker — the polling execution loop and the pool that runs it
//   - sweep — the externally scheduled lease reclamation sweep
//   - service — idempotent submission and completed-result queries
//   - engine — the composition root wiring all of the above
//   - api — the chi HTTP facade over an engine
//   - lookup/wikipedia — the MediaWiki summary job handler
//
// # Lifecycle
//
//	queued → processing → completed
//	queued → processing → failed                (in-process attempts exhausted)
//	queued → processing → queued                (lease expired, retries remain)
//	queued → processing → failed                (lease expired, retries exhausted)
//
// Correctness of claiming rests on the store serializing write
// transactions; there is no application-level lock and no central scheduler.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based.
package enrich
