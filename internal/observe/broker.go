package observe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/vigil/internal/dispatch"
	"github.com/roach88/vigil/internal/reduce"
	"github.com/roach88/vigil/internal/store"
)

// ErrMissingOnValue is returned by Start when no value callback is given.
var ErrMissingOnValue = errors.New("observe: Options.OnValue is required")

// Options configures a subscription.
type Options[V any] struct {
	// Name labels the subscription in logs and queue names.
	// Defaults to a generated token.
	Name string

	// OnValue receives every non-suppressed pipeline value. Required.
	OnValue func(V)

	// OnError receives fetch and transform failures. A failure ends the
	// current cycle only; the subscription keeps running. Optional.
	OnError func(error)

	// DeliverOn, when set, is the queue OnValue and OnError are invoked
	// on. When nil, callbacks run directly on the reducing queue (or the
	// reading queue, for fetch failures).
	DeliverOn *dispatch.Queue

	// PollInterval enables periodic fetch triggers in addition to commit
	// notifications, so writes from other processes are picked up. Each
	// poll is a cheap data_version probe; unchanged versions skip the
	// fetch. Zero disables polling.
	PollInterval time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Subscription is a running observation. Cancel stops it.
//
// Thread-safety model:
//   - trigger(): safe from any goroutine (commit hooks, poll ticker)
//   - reducer state: touched only on the reducing queue
//   - lastVersion/fetched: touched only on the reading queue
type Subscription[F, V any] struct {
	id     string
	name   string
	logger *slog.Logger

	reducer  reduce.Reducer[F, V]
	conn     *store.Conn
	reading  *dispatch.Queue
	reducing *dispatch.Queue

	onValue   func(V)
	onError   func(error)
	deliverOn *dispatch.Queue

	cancelNotify func()
	stopPoll     chan struct{}

	cycleQueued atomic.Bool
	closed      atomic.Bool
	cancelOnce  sync.Once

	lastVersion int64
	fetched     bool
}

// Start runs obs against st and returns the live subscription.
//
// The broker opens a dedicated read connection bound to a fresh reading
// queue, instantiates the reducer chain once (its retained state lives
// for the whole subscription), subscribes to commit notifications, and
// runs an initial fetch cycle so the subscriber always receives the
// current value first.
func Start[F, V any](ctx context.Context, st *store.Store, obs Observation[F, V], opts Options[V]) (*Subscription[F, V], error) {
	if opts.OnValue == nil {
		return nil, ErrMissingOnValue
	}

	id := uuid.Must(uuid.NewV7()).String()
	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("observation-%s", id[:8])
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reading := dispatch.NewQueue(name + ".read")
	reducing := dispatch.NewQueue(name + ".reduce")

	conn, err := st.Connect(ctx, reading, name)
	if err != nil {
		reading.Stop()
		reducing.Stop()
		return nil, fmt.Errorf("start observation %s: %w", name, err)
	}

	sub := &Subscription[F, V]{
		id:        id,
		name:      name,
		logger:    logger,
		reducer:   obs.MakeReducer(),
		conn:      conn,
		reading:   reading,
		reducing:  reducing,
		onValue:   opts.OnValue,
		onError:   opts.OnError,
		deliverOn: opts.DeliverOn,
	}

	sub.cancelNotify = st.Subscribe(sub.trigger)

	if opts.PollInterval > 0 {
		sub.stopPoll = make(chan struct{})
		go sub.poll(opts.PollInterval)
	}

	logger.Info("observation started", "name", name, "id", id)

	// Initial cycle: subscribers see the current value before any change.
	sub.trigger()

	return sub, nil
}

// Name returns the subscription's diagnostic name.
func (s *Subscription[F, V]) Name() string {
	return s.name
}

// Cancel stops notifications, drains the internal queues, and closes the
// read connection. Idempotent. A caller-supplied DeliverOn queue is left
// running.
func (s *Subscription[F, V]) Cancel() {
	s.cancelOnce.Do(func() {
		s.closed.Store(true)
		s.cancelNotify()
		if s.stopPoll != nil {
			close(s.stopPoll)
		}

		// Close the connection on its owning queue, after any in-flight
		// cycles have drained ahead of it.
		err := s.reading.Sync(context.Background(), func(ctx context.Context) {
			if closeErr := s.conn.Close(ctx); closeErr != nil {
				s.logger.Error("closing observation connection", "name", s.name, "error", closeErr)
			}
		})
		if err != nil {
			s.logger.Error("draining observation queue", "name", s.name, "error", err)
		}

		s.reading.Stop()
		s.reducing.Stop()
		s.logger.Info("observation cancelled", "name", s.name, "id", s.id)
	})
}

// trigger schedules a fetch cycle. Safe from any goroutine; consecutive
// triggers coalesce while a cycle is still queued.
func (s *Subscription[F, V]) trigger() {
	if s.closed.Load() {
		return
	}
	if !s.cycleQueued.CompareAndSwap(false, true) {
		return
	}
	if !s.reading.Async(s.fetchCycle) {
		s.cycleQueued.Store(false)
	}
}

func (s *Subscription[F, V]) poll(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopPoll:
			return
		case <-ticker.C:
			s.trigger()
		}
	}
}

// fetchCycle runs on the reading queue: probe data_version, execute the
// one-shot reader under a snapshot, then hand the raw fetch to the
// reducing queue.
func (s *Subscription[F, V]) fetchCycle(ctx context.Context) {
	// Reset before reading so a commit landing mid-fetch queues the next
	// cycle instead of being lost.
	s.cycleQueued.Store(false)

	if s.closed.Load() {
		return
	}

	version, err := s.conn.DataVersion(ctx)
	if err != nil {
		s.fail(err)
		return
	}
	if s.fetched && version == s.lastVersion {
		s.logger.Debug("observation unchanged, skipping fetch", "name", s.name, "data_version", version)
		return
	}
	s.lastVersion = version
	s.fetched = true

	reader := s.reducer.MakeReader()
	var raw F
	err = s.conn.Read(ctx, func(snap *store.Snapshot) error {
		fetched, readErr := reader(snap)
		if readErr != nil {
			return readErr
		}
		raw = fetched
		return nil
	})
	if err != nil {
		s.fail(err)
		return
	}

	s.reducing.Async(func(context.Context) {
		value, ok, reduceErr := s.reducer.Reduce(raw)
		if reduceErr != nil {
			s.fail(reduceErr)
			return
		}
		if !ok {
			return
		}
		s.deliver(value)
	})
}

func (s *Subscription[F, V]) deliver(value V) {
	if s.deliverOn != nil {
		s.deliverOn.Async(func(context.Context) { s.onValue(value) })
		return
	}
	s.onValue(value)
}

// fail reports a per-cycle failure. The subscription keeps running;
// retry and surfacing policy belongs to the subscriber.
func (s *Subscription[F, V]) fail(err error) {
	s.logger.Error("observation cycle failed", "name", s.name, "error", err)
	if s.onError == nil {
		return
	}
	if s.deliverOn != nil {
		s.deliverOn.Async(func(context.Context) { s.onError(err) })
		return
	}
	s.onError(err)
}
