package dispatch

import (
	"errors"
	"fmt"
	"sync"
)

// InvariantError reports a connection-confinement violation.
//
// Violations signal a logic defect in the host program (a connection used
// from the wrong queue, a double Bind), not a runtime condition worth
// retrying. They are therefore routed through the package failure handler,
// which panics by default; see SetFailureHandler.
type InvariantError struct {
	// Code identifies the violation category.
	Code InvariantCode

	// Message is a human-readable description.
	Message string

	// Conn is the label of the offending connection, if any.
	Conn string

	// Queue is the label of the queue involved, if any.
	Queue string
}

// InvariantCode categorizes confinement violations.
type InvariantCode string

const (
	// CodeGuardAlreadyBound indicates a second Bind on a guarded queue.
	CodeGuardAlreadyBound InvariantCode = "GUARD_ALREADY_BOUND"

	// CodeGuardMissing indicates a guard operation on a queue (or a plain
	// goroutine) that has no guard installed.
	CodeGuardMissing InvariantCode = "GUARD_MISSING"

	// CodeConnectionNotAllowed indicates a connection dereferenced from a
	// queue whose guard does not contain it.
	CodeConnectionNotAllowed InvariantCode = "CONNECTION_NOT_ALLOWED"
)

// Error implements the error interface.
func (e *InvariantError) Error() string {
	switch {
	case e.Conn != "" && e.Queue != "":
		return fmt.Sprintf("%s: %s (conn=%s, queue=%s)", e.Code, e.Message, e.Conn, e.Queue)
	case e.Queue != "":
		return fmt.Sprintf("%s: %s (queue=%s)", e.Code, e.Message, e.Queue)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsInvariantViolation reports whether err is (or wraps) an InvariantError.
func IsInvariantViolation(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

var (
	failureMu      sync.RWMutex
	failureHandler = func(e *InvariantError) { panic(e) }
)

// SetFailureHandler replaces the handler invoked on invariant violations
// and returns a function restoring the previous one. The default handler
// panics with the *InvariantError; a test harness can install a recording
// handler to assert against violations without crashing the test process.
//
// When a non-panicking handler returns, the violated operation degrades to
// a no-op: Bind leaves the existing guard untouched, AssertAllowed simply
// returns, WithTemporarilyAllowed returns the violation as an error.
func SetFailureHandler(h func(*InvariantError)) (restore func()) {
	failureMu.Lock()
	prev := failureHandler
	failureHandler = h
	failureMu.Unlock()

	return func() {
		failureMu.Lock()
		failureHandler = prev
		failureMu.Unlock()
	}
}

func fail(e *InvariantError) {
	failureMu.RLock()
	h := failureHandler
	failureMu.RUnlock()
	h(e)
}
