package reduce

import "github.com/roach88/vigil/internal/store"

// Reader is a one-shot capability that reads raw data of type F inside a
// consistent store snapshot. A Reader is executed exactly once per fetch
// cycle, on the queue that owns the reading connection.
type Reader[F any] func(snap *store.Snapshot) (F, error)

// Reducer turns raw fetched data into an optional semantic value.
//
// MakeReader must be cheap and side-effect free; it is called once per
// fetch cycle. Reduce consumes one raw read and may mutate retained state
// (adapters such as RemoveDuplicates keep the last emitted value). It
// returns ok=false to suppress this cycle's notification, or an error to
// end the cycle; an error never tears down the subscription by itself.
type Reducer[F, V any] interface {
	MakeReader() Reader[F]
	Reduce(fetched F) (value V, ok bool, err error)
}

// Fetch is the innermost reducer: it passes the raw fetch through
// unchanged and retains no state.
type Fetch[F any] struct {
	read Reader[F]
}

// NewFetch creates the innermost pipeline stage around a tracked read.
func NewFetch[F any](read Reader[F]) *Fetch[F] {
	return &Fetch[F]{read: read}
}

func (f *Fetch[F]) MakeReader() Reader[F] {
	return f.read
}

func (f *Fetch[F]) Reduce(fetched F) (F, bool, error) {
	return fetched, true, nil
}
