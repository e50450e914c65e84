// Package observe turns "run this read and notify me when the result
// changes" into a running subscription.
//
// An Observation is an immutable description of a fetch+reduce pipeline:
// a tracked read plus a reducer factory. Operators (Map,
// RemoveDuplicates) return new Observations wrapping new factories;
// building one never touches the store, and composition order is
// preserved exactly as written - the outermost operator wraps the
// innermost reducer.
//
// Start runs an Observation against a store. The broker owns the
// subscription lifecycle: it binds a dedicated read connection to a
// reading queue, triggers a fetch cycle on every commit (and optionally
// on a poll interval, for writes from other processes), executes the
// one-shot reader under a snapshot on the reading queue, then runs the
// reduce chain on a separate reducing queue so an expensive transform
// never extends how long the store's queue is held. Values are delivered
// to the subscriber's callback; fetch and transform failures go to the
// error callback and end the cycle only.
package observe
