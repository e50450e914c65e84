package reduce

// Map wraps a base reducer and transforms its emitted value. It retains
// no state beyond the base's.
//
// The transform must be pure and non-blocking: it runs on the reducing
// queue, off the store's own queue, which is what keeps expensive
// derivations from extending how long the store is held for reading.
type Map[F, V, T any] struct {
	base      Reducer[F, V]
	transform func(V) (T, error)
}

// NewMap wraps base so that every emitted value passes through transform.
func NewMap[F, V, T any](base Reducer[F, V], transform func(V) (T, error)) *Map[F, V, T] {
	return &Map[F, V, T]{base: base, transform: transform}
}

func (m *Map[F, V, T]) MakeReader() Reader[F] {
	return m.base.MakeReader()
}

// Reduce delegates to the base reducer. Suppression passes through
// transparently; a transform failure propagates unchanged as this cycle's
// failure, never as a suppressed notification.
func (m *Map[F, V, T]) Reduce(fetched F) (T, bool, error) {
	var zero T

	value, ok, err := m.base.Reduce(fetched)
	if err != nil || !ok {
		return zero, false, err
	}

	mapped, err := m.transform(value)
	if err != nil {
		return zero, false, err
	}
	return mapped, true, nil
}
