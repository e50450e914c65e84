package reduce

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// passthrough is the identity base for adapter tests: Reduce emits every
// fetch unchanged, like Fetch, without needing a store snapshot.
func passthrough() Reducer[int, int] {
	return NewFetch[int](nil)
}

// scriptedReducer suppresses or fails on demand, one script entry per
// Reduce call.
type scriptedReducer struct {
	script []scriptStep
	calls  int
}

type scriptStep struct {
	suppress bool
	err      error
}

func (r *scriptedReducer) MakeReader() Reader[int] { return nil }

func (r *scriptedReducer) Reduce(fetched int) (int, bool, error) {
	step := r.script[r.calls]
	r.calls++
	if step.err != nil {
		return 0, false, step.err
	}
	if step.suppress {
		return 0, false, nil
	}
	return fetched, true, nil
}

// drive feeds raw values through a reducer and collects the emissions.
func drive[V any](t *testing.T, r Reducer[int, V], raw []int) []V {
	t.Helper()
	var emitted []V
	for _, f := range raw {
		v, ok, err := r.Reduce(f)
		require.NoError(t, err)
		if ok {
			emitted = append(emitted, v)
		}
	}
	return emitted
}

func TestFetch_PassesRawValueThrough(t *testing.T) {
	f := passthrough()

	v, ok, err := f.Reduce(42)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestMap_TransformsEmittedValue(t *testing.T) {
	m := NewMap(passthrough(), func(v int) (string, error) {
		return string(rune('a' + v)), nil
	})

	got := drive(t, m, []int{0, 1, 2})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestMap_PassesSuppressionThrough(t *testing.T) {
	base := &scriptedReducer{script: []scriptStep{{}, {suppress: true}, {}}}
	calls := 0
	m := NewMap[int, int, int](base, func(v int) (int, error) {
		calls++
		return v * 10, nil
	})

	got := drive(t, m, []int{1, 2, 3})
	assert.Equal(t, []int{10, 30}, got)
	assert.Equal(t, 2, calls, "transform must not run on suppressed cycles")
}

func TestMap_PropagatesTransformError(t *testing.T) {
	transformErr := errors.New("transform failed")
	m := NewMap(passthrough(), func(v int) (int, error) {
		return 0, transformErr
	})

	_, ok, err := m.Reduce(1)
	assert.False(t, ok)
	assert.ErrorIs(t, err, transformErr, "transform failure must propagate unchanged")
}

func TestMap_PropagatesBaseError(t *testing.T) {
	fetchErr := errors.New("fetch failed")
	base := &scriptedReducer{script: []scriptStep{{err: fetchErr}}}
	m := NewMap[int, int, int](base, func(v int) (int, error) {
		t.Error("transform must not run on a failed cycle")
		return v, nil
	})

	_, ok, err := m.Reduce(1)
	assert.False(t, ok)
	assert.ErrorIs(t, err, fetchErr)
}

func TestRemoveDuplicates_FirstValueAlwaysEmitted(t *testing.T) {
	d := NewRemoveDuplicates(passthrough())

	got := drive(t, d, []int{7})
	assert.Equal(t, []int{7}, got)
}

func TestRemoveDuplicates_CollapsesRuns(t *testing.T) {
	d := NewRemoveDuplicates(passthrough())

	got := drive(t, d, []int{5, 5, 7, 7, 7, 5})
	assert.Equal(t, []int{5, 7, 5}, got)
}

func TestRemoveDuplicates_ComparesAgainstLastEmitted(t *testing.T) {
	// With a tolerance predicate, 10 is emitted, 11 and 12 are judged
	// close to the *emitted* 10 (not to each other) and suppressed, and
	// 13 finally differs from 10. Comparing against the last fetch
	// would have suppressed 13 too.
	d := NewRemoveDuplicatesBy(passthrough(), func(a, b int) bool {
		diff := a - b
		if diff < 0 {
			diff = -diff
		}
		return diff < 3
	})

	got := drive(t, d, []int{10, 11, 12, 13})
	assert.Equal(t, []int{10, 13}, got)
}

func TestRemoveDuplicates_SuppressionDoesNotTouchPrevious(t *testing.T) {
	base := &scriptedReducer{script: []scriptStep{{}, {suppress: true}, {}}}
	d := NewRemoveDuplicates[int, int](base)

	// 1 emitted; base suppresses the 9 before dedupe sees it; the second
	// 1 equals the last emission and is suppressed.
	got := drive(t, d, []int{1, 9, 1})
	assert.Equal(t, []int{1}, got)
}

func TestRemoveDuplicates_PropagatesBaseError(t *testing.T) {
	fetchErr := errors.New("fetch failed")
	base := &scriptedReducer{script: []scriptStep{{}, {err: fetchErr}, {}}}
	d := NewRemoveDuplicates[int, int](base)

	_, ok, err := d.Reduce(1)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = d.Reduce(2)
	assert.False(t, ok)
	assert.ErrorIs(t, err, fetchErr)

	// The failed cycle must not have disturbed the retained emission.
	_, ok, err = d.Reduce(1)
	require.NoError(t, err)
	assert.False(t, ok, "value equal to last emission stays suppressed after an error cycle")
}

// Composition order is observable: with transform T(x)=x%2 over the raw
// sequence [2,4,1], map-then-dedupe and dedupe-then-map must differ.
func TestCompositionOrder_MapThenRemoveDuplicates(t *testing.T) {
	mapped := NewMap(passthrough(), func(v int) (int, error) { return v % 2, nil })
	pipeline := NewRemoveDuplicates[int, int](mapped)

	got := drive(t, pipeline, []int{2, 4, 1})
	assert.Equal(t, []int{0, 1}, got, "second 0 must be suppressed")
}

func TestCompositionOrder_RemoveDuplicatesThenMap(t *testing.T) {
	deduped := NewRemoveDuplicates(passthrough())
	pipeline := NewMap[int, int, int](deduped, func(v int) (int, error) { return v % 2, nil })

	got := drive(t, pipeline, []int{2, 4, 1})
	assert.Equal(t, []int{0, 0, 1}, got, "no consecutive raw duplicates, so nothing is suppressed")
}

func TestPipeline_EndToEndSequence(t *testing.T) {
	deduped := NewRemoveDuplicates(passthrough())
	doubled := NewMap[int, int, int](deduped, func(v int) (int, error) { return v * 2, nil })

	got := drive(t, doubled, []int{5, 5, 7, 7, 7, 5})
	assert.Equal(t, []int{10, 14, 10}, got)
}
