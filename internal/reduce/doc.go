// Package reduce implements the value-derivation pipeline: a fetch of raw
// data under a store snapshot, reduced to an optional semantic value by a
// chain of generic stages.
//
// A Reducer produces a one-shot Reader per fetch cycle and turns the raw
// result into an optional value. Adapters (Map, RemoveDuplicates) wrap a
// base reducer by ordinary generic nesting; there is no inheritance.
// Suppression and failure are distinct: a stage returning no value
// short-circuits all outer stages for that cycle, while an error ends the
// cycle and is propagated unchanged by every outer stage. No adapter ever
// converts one into the other.
//
// Reduce calls on one pipeline instance are strictly sequential; the
// caller (the subscription broker) guarantees at most one Reduce per
// fetch cycle and never runs two concurrently.
package reduce
