// Package broker fans batches of flight lookups out to a fixed worker pool.
//
// One process-wide Queue holds every unresolved Item in arrival order. Workers
// claim the first Pending item, answer it from the Cache when the cached
// entry is still valid for the current load, otherwise call the lookup
// function, and resolve it. A Batch is the submitting request's own view of
// its items; it reports each item once it is Completed.
//
// Item lifecycle: Pending -> InProgress -> Completed, exactly once.
package broker
