// Package scheduler holds the dependency scheduler that decides when a
// declared workload may be started or deleted.
//
// Workloads without dependencies are ready at once. Everything else waits in
// one of two queues (start, delete) until a promotion call finds every
// dependency condition fulfilled by the current state lookup. The scheduler
// does not watch for changes: callers re-invoke promotion whenever the state
// lookup may have changed.
//
// A DependencyScheduler is not safe for concurrent use; it is owned by a
// single coordinating goroutine or guarded by the caller.
package scheduler
