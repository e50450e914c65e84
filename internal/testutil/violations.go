// Package testutil provides shared helpers for vigil tests.
package testutil

import (
	"sync"
	"testing"

	"github.com/roach88/vigil/internal/dispatch"
)

// ViolationRecorder captures connection-confinement violations so tests
// can assert against them instead of crashing the test process.
//
// Thread-safety: violations may be reported from queue goroutines, so all
// methods lock.
type ViolationRecorder struct {
	mu   sync.Mutex
	errs []*dispatch.InvariantError
}

// CaptureViolations swaps the dispatch failure handler for a recorder for
// the duration of the test.
func CaptureViolations(t *testing.T) *ViolationRecorder {
	t.Helper()
	r := &ViolationRecorder{}
	restore := dispatch.SetFailureHandler(r.record)
	t.Cleanup(restore)
	return r
}

func (r *ViolationRecorder) record(e *dispatch.InvariantError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, e)
}

// Count returns the number of captured violations.
func (r *ViolationRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

// All returns a copy of the captured violations in order.
func (r *ViolationRecorder) All() []*dispatch.InvariantError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*dispatch.InvariantError(nil), r.errs...)
}
