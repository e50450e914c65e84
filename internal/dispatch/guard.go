package dispatch

import (
	"context"
	"fmt"
	"slices"
)

// Conn is a store connection handle as seen by the guard. Handles are
// compared by interface identity, never by value: implementations must be
// pointer types, and two distinct handles are distinct even if their
// contents compare equal.
type Conn interface {
	// ConnLabel returns a diagnostic label identifying the connection.
	ConnLabel() string
}

// Guard is the per-queue registry of connections currently permitted on
// that queue. It is created exactly once per queue by Bind and mutated
// only by tasks running on the owning queue, so it carries no lock. This
// is an actor-style resource, not a lock-protected shared one.
type Guard struct {
	owner   *Queue
	allowed []Conn
}

// Allowed returns a copy of the current allowed set. Must be called from
// a task running on the owning queue.
func (g *Guard) Allowed() []Conn {
	return slices.Clone(g.allowed)
}

func (g *Guard) contains(conn Conn) bool {
	for _, c := range g.allowed {
		if c == conn { // interface identity
			return true
		}
	}
	return false
}

// Bind installs a new Guard holding conn on q. It is called at
// connection-creation time, before the connection is used, and runs the
// installation on q itself so the guard is only ever touched from its
// owning queue.
//
// A queue owns at most one Guard for its lifetime: a second Bind is an
// invariant violation and never silently replaces or extends the first
// guard. Additional connections join a queue only through the scoped
// widening of WithTemporarilyAllowed.
func Bind(conn Conn, q *Queue) {
	err := q.Sync(context.Background(), func(ctx context.Context) {
		if q.guard != nil {
			fail(&InvariantError{
				Code:    CodeGuardAlreadyBound,
				Message: "queue already has a connection guard",
				Conn:    conn.ConnLabel(),
				Queue:   q.label,
			})
			return
		}
		q.guard = &Guard{owner: q, allowed: []Conn{conn}}
	})
	if err != nil {
		fail(&InvariantError{
			Code:    CodeGuardMissing,
			Message: fmt.Sprintf("cannot bind connection: %v", err),
			Conn:    conn.ConnLabel(),
			Queue:   q.label,
		})
	}
}

// WithTemporarilyAllowed widens the calling queue's allowed set with conns
// for the duration of body, then restores the exact prior set on every
// exit path: normal return, error return, and panic.
//
// This is the only sanctioned relaxation of confinement, used when one
// higher-level operation legitimately needs two connections on one queue.
// It must run on a queue that already has a Guard; widening a foreign or
// unguarded queue is an invariant violation.
func WithTemporarilyAllowed(ctx context.Context, conns []Conn, body func(ctx context.Context) error) error {
	q, ok := Current(ctx)
	if !ok || q.guard == nil {
		e := &InvariantError{
			Code:    CodeGuardMissing,
			Message: "temporary widening requires a guarded queue",
			Queue:   queueLabel(q),
		}
		fail(e)
		return e
	}

	prior := q.guard.allowed
	q.guard.allowed = append(slices.Clone(prior), conns...)
	defer func() {
		q.guard.allowed = prior
	}()

	return body(ctx)
}

// AssertAllowed fails with an invariant violation unless the calling
// queue's Guard contains conn by identity. Used at the point of access to
// catch cross-queue misuse synchronously.
func AssertAllowed(ctx context.Context, conn Conn) {
	q, ok := Current(ctx)
	if !ok || q.guard == nil {
		fail(&InvariantError{
			Code:    CodeGuardMissing,
			Message: "connection used outside any guarded queue",
			Conn:    conn.ConnLabel(),
			Queue:   queueLabel(q),
		})
		return
	}
	if !q.guard.contains(conn) {
		fail(&InvariantError{
			Code:    CodeConnectionNotAllowed,
			Message: "connection is not allowed on this queue",
			Conn:    conn.ConnLabel(),
			Queue:   q.label,
		})
	}
}

// IsAllowed reports whether the calling queue's Guard contains conn by
// identity. Returns false, without failing, when the calling context has
// no queue or the queue has no guard.
func IsAllowed(ctx context.Context, conn Conn) bool {
	q, ok := Current(ctx)
	if !ok || q.guard == nil {
		return false
	}
	return q.guard.contains(conn)
}

func queueLabel(q *Queue) string {
	if q == nil {
		return ""
	}
	return q.label
}
