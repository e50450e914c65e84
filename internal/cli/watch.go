package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/vigil/internal/dispatch"
	"github.com/roach88/vigil/internal/observe"
	"github.com/roach88/vigil/internal/store"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Database string
	Once     bool
	Poll     time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <watch-file>",
		Short: "Watch queries and print values as they change",
		Long: `Watch the queries declared in a YAML watch file against a SQLite
database, printing each watch's value whenever it actually changes.

Each watch runs as its own observation: the query result is fetched under
a snapshot whenever the database changes, rendered, and (unless dedupe is
disabled for the watch) compared against the last delivered value before
printing.

Example:
  vigil watch --db ./app.db ./watches.yaml
  vigil watch --db ./app.db ./watches.yaml --once
  vigil watch --db ./app.db ./watches.yaml --poll 500ms`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "exit after each watch has delivered its initial value")
	cmd.Flags().DurationVar(&opts.Poll, "poll", 0, "poll interval for picking up writes from other processes (0 disables)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runWatch(opts *WatchOptions, watchPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	wf, loadErrors := LoadWatchFile(watchPath)
	if len(loadErrors) > 0 {
		return WrapExitError(ExitCommandError, "failed to load watch file", loadErrors[0])
	}
	formatter.VerboseLog("loaded %d watch(es) from %s", len(wf.Watches), watchPath)

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	// Setup signal handling for graceful shutdown
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	// One shared delivery queue serializes output across all watches.
	delivery := dispatch.NewQueue("watch.deliver")
	defer delivery.Stop()

	var subs []interface{ Cancel() }
	cancelAll := func() {
		for _, sub := range subs {
			sub.Cancel()
		}
	}
	defer cancelAll()

	// In --once mode, exit after every watch has delivered (or failed)
	// its initial cycle.
	remaining := int64(len(wf.Watches))
	initialDone := make(chan struct{})

	for _, w := range wf.Watches {
		spec := w
		var first sync.Once
		markSeen := func() {
			first.Do(func() {
				if atomic.AddInt64(&remaining, -1) == 0 {
					close(initialDone)
				}
			})
		}

		logger.Debug("starting watch", "name", spec.Name, "fingerprint", store.Fingerprint(spec.Query))

		sub, startErr := observe.Start(ctx, st, buildObservation(spec), observe.Options[string]{
			Name:   spec.Name,
			Logger: logger,
			OnValue: func(value string) {
				if writeErr := formatter.WatchEvent(spec.Name, value); writeErr != nil {
					logger.Error("writing watch event", "watch", spec.Name, "error", writeErr)
				}
				markSeen()
			},
			OnError: func(cycleErr error) {
				_ = formatter.Error(ErrCodeDatabaseError, fmt.Sprintf("watch %s: %v", spec.Name, cycleErr), nil)
				markSeen()
			},
			DeliverOn:    delivery,
			PollInterval: opts.Poll,
		})
		if startErr != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to start watch %s", spec.Name), startErr)
		}
		subs = append(subs, sub)
	}

	if opts.Once {
		select {
		case <-initialDone:
			return nil
		case <-ctx.Done():
			return NewExitError(ExitCommandError, "interrupted before all watches delivered")
		}
	}

	<-ctx.Done()
	return nil
}

// buildObservation composes the pipeline for one watch spec: snapshot
// fetch of all result rows, rendered to a stable string, deduplicated
// against the last delivered rendering unless disabled.
func buildObservation(w WatchSpec) observe.Observation[[][]string, string] {
	query := w.Query

	tracked := observe.Tracking(func(snap *store.Snapshot) ([][]string, error) {
		return fetchRows(snap, query)
	})

	rendered := observe.Map(tracked, func(rows [][]string) (string, error) {
		return renderRows(rows), nil
	})

	if w.DedupeEnabled() {
		rendered = observe.RemoveDuplicates(rendered)
	}
	return rendered
}

// fetchRows reads every result row as strings.
func fetchRows(snap *store.Snapshot, query string) ([][]string, error) {
	rows, err := snap.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	var out [][]string
	for rows.Next() {
		cells := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		row := make([]string, len(cols))
		for i, cell := range cells {
			if cell.Valid {
				row[i] = cell.String
			} else {
				row[i] = "NULL"
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// renderRows flattens a result set to a stable single-line rendering.
func renderRows(rows [][]string) string {
	if len(rows) == 0 {
		return "(no rows)"
	}
	parts := make([]string, len(rows))
	for i, row := range rows {
		parts[i] = strings.Join(row, "|")
	}
	return strings.Join(parts, "; ")
}
