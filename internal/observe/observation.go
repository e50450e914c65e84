package observe

import "github.com/roach88/vigil/internal/reduce"

// Observation is an immutable description of how to build a value
// pipeline: it pairs a tracked read with a reducer factory. An
// Observation is not a running subscription; constructing and composing
// one never touches the store.
//
// Operators are free functions because Go methods cannot introduce type
// parameters. Each returns a new Observation; the receiver is never
// mutated, so a base Observation can be composed into several pipelines
// without sharing reducer state.
type Observation[F, V any] struct {
	makeReducer func() reduce.Reducer[F, V]
}

// Tracking starts a pipeline from a one-shot snapshot read.
func Tracking[F any](read reduce.Reader[F]) Observation[F, F] {
	return Observation[F, F]{
		makeReducer: func() reduce.Reducer[F, F] {
			return reduce.NewFetch(read)
		},
	}
}

// Map derives an Observation whose emitted values pass through transform.
// The transform must be pure; it runs on the reducing queue, not the
// store's.
func Map[F, V, T any](obs Observation[F, V], transform func(V) (T, error)) Observation[F, T] {
	inner := obs.makeReducer
	return Observation[F, T]{
		makeReducer: func() reduce.Reducer[F, T] {
			return reduce.NewMap(inner(), transform)
		},
	}
}

// RemoveDuplicates derives an Observation that suppresses consecutive
// values equal to the last delivered one.
func RemoveDuplicates[F any, V comparable](obs Observation[F, V]) Observation[F, V] {
	inner := obs.makeReducer
	return Observation[F, V]{
		makeReducer: func() reduce.Reducer[F, V] {
			return reduce.NewRemoveDuplicates(inner())
		},
	}
}

// RemoveDuplicatesBy is RemoveDuplicates with an explicit equivalence
// predicate, for value types without ordinary equality.
func RemoveDuplicatesBy[F, V any](obs Observation[F, V], equivalent func(V, V) bool) Observation[F, V] {
	inner := obs.makeReducer
	return Observation[F, V]{
		makeReducer: func() reduce.Reducer[F, V] {
			return reduce.NewRemoveDuplicatesBy(inner(), equivalent)
		},
	}
}

// MakeReducer instantiates a fresh reducer chain for one subscription.
// Each call returns an independent instance with its own retained state.
func (o Observation[F, V]) MakeReducer() reduce.Reducer[F, V] {
	return o.makeReducer()
}
