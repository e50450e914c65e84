// Package dispatch provides serial execution queues and the connection
// access guard that confines store connections to them.
//
// A Queue is a serial task-processing unit backed by a single goroutine.
// Tasks submitted via Async or Sync run strictly in FIFO order, one at a
// time. Each task receives a context.Context carrying the queue itself,
// retrievable via Current.
//
// # Connection confinement
//
// Store connections are not safe for use from more than one queue. Rather
// than serializing access with locks (which would prevent data races but
// not logically-incorrect interleavings), the guard detects and refuses
// unsafe usage outright:
//
//   - Bind installs a Guard on a queue at connection-creation time. A queue
//     owns at most one Guard for its lifetime; a second Bind is an
//     invariant violation.
//   - AssertAllowed fails with an invariant violation when the calling
//     queue's Guard does not contain the connection, identified by
//     interface identity.
//   - WithTemporarilyAllowed widens the allowed set for the duration of a
//     body and restores the exact prior set on every exit path, including
//     panics. This is the only sanctioned way to use two connections from
//     one queue.
//
// The Guard's allowed set is mutated and inspected only by tasks running
// on the owning queue, so it needs no lock. Violations are routed through
// a package failure handler that panics by default; tests may swap the
// handler to capture violations as ordinary errors instead of crashing.
package dispatch
