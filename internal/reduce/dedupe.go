package reduce

// RemoveDuplicates wraps a base reducer and suppresses consecutive
// equivalent values.
//
// The retained previous value is the last value this stage actually
// emitted, not the last raw fetch: a long run of equivalent fetches
// collapses to one notification regardless of cycle count, and a later
// genuinely different value is judged against what the subscriber last
// saw.
type RemoveDuplicates[F, V any] struct {
	base       Reducer[F, V]
	equivalent func(V, V) bool
	previous   *V // last emitted value; nil until the first emission
}

// NewRemoveDuplicatesBy wraps base with an explicit equivalence predicate.
func NewRemoveDuplicatesBy[F, V any](base Reducer[F, V], equivalent func(V, V) bool) *RemoveDuplicates[F, V] {
	return &RemoveDuplicates[F, V]{base: base, equivalent: equivalent}
}

// NewRemoveDuplicates wraps base using ordinary equality as the predicate.
func NewRemoveDuplicates[F any, V comparable](base Reducer[F, V]) *RemoveDuplicates[F, V] {
	return NewRemoveDuplicatesBy(base, func(a, b V) bool { return a == b })
}

func (d *RemoveDuplicates[F, V]) MakeReader() Reader[F] {
	return d.base.MakeReader()
}

// Reduce delegates to the base reducer. The first value is always emitted
// (there is no prior value to compare against). A value judged equivalent
// to the previously emitted one is suppressed without overwriting the
// retained previous value.
func (d *RemoveDuplicates[F, V]) Reduce(fetched F) (V, bool, error) {
	var zero V

	value, ok, err := d.base.Reduce(fetched)
	if err != nil || !ok {
		return zero, false, err
	}

	if d.previous != nil && d.equivalent(*d.previous, value) {
		return zero, false, nil
	}

	emitted := value
	d.previous = &emitted
	return value, true, nil
}
