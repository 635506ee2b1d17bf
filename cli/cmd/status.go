package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/hopper/cli/handle"
	"github.com/pithecene-io/hopper/cli/render"
	"github.com/pithecene-io/hopper/cli/tui"
	"github.com/pithecene-io/hopper/status"
	"github.com/pithecene-io/hopper/types"
)

// StatusCommand returns the status command, which shows a past ingestion
// from its persisted handle and optionally re-polls the status table.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the status of a past ingestion",
		ArgsUsage: "HANDLE",
		Description: `HANDLE is a handle file written by hopper ingest, or an operation id
looked up in the handle directory.

Unless the stored snapshot is already terminal, status re-reads the
service status table once and writes the refreshed snapshot back to the
handle file. --watch keeps polling in a live view, --wait blocks until
every source settles.`,
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "handle-dir", Usage: "Directory to look up operation ids in (default .hopper)"},
			&cli.BoolFlag{Name: "wait", Usage: "Block until every source reaches a terminal status"},
			&cli.DurationFlag{Name: "poll-interval", Value: 10 * time.Second, Usage: "Status poll interval used with --wait and --watch"},
			&cli.BoolFlag{Name: "no-refresh", Usage: "Show the stored snapshot without contacting the status table"},
		}, ReadOnlyFlags()...),
		Action: statusAction,
	}
}

func statusAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("status takes exactly one handle file or operation id", exitConfigError)
	}

	store := handle.NewStore(c.String("handle-dir"))
	path, err := store.Resolve(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	op, err := handle.Load(path)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	tracker := status.NewTracker()

	if c.Bool("watch") {
		return watchOperation(ctx, c, tracker, op, path)
	}

	switch {
	case c.Bool("wait"):
		if _, err := tracker.Wait(ctx, op, c.Duration("poll-interval")); err != nil {
			return cli.Exit(err.Error(), exitFailed)
		}
	case c.Bool("no-refresh") || op.Done():
		// The stored snapshot cannot change anymore, or the caller asked
		// for it as is.
	default:
		if _, err := tracker.Statuses(ctx, op); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cannot refresh from the status table: %v\n", err)
		}
	}

	saveHandleBack(op, path)
	return renderStatus(c, op)
}

// watchOperation runs the live status view. When stdout is not a terminal
// it degrades to a single refreshed snapshot.
func watchOperation(ctx context.Context, c *cli.Context, tracker *status.Tracker, op *types.IngestOperation, path string) error {
	// The refresh closure owns op; the view only ever sees copies.
	var mu sync.Mutex
	refresh := func() (*types.IngestOperation, error) {
		mu.Lock()
		defer mu.Unlock()
		if _, err := tracker.Statuses(ctx, op); err != nil {
			return nil, err
		}
		snap := *op
		snap.Statuses = slices.Clone(op.Statuses)
		return &snap, nil
	}

	if !isTTY(os.Stdout) {
		if !op.Done() {
			if _, err := refresh(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: cannot refresh from the status table: %v\n", err)
			}
		}
		saveHandleBack(op, path)
		fmt.Println(tui.RenderWatchStatic(op))
		return nil
	}

	err := tui.RunWatch(op, refresh, c.Duration("poll-interval"))
	saveHandleBack(op, path)
	if err != nil {
		return cli.Exit(err.Error(), exitFailed)
	}
	return nil
}

// saveHandleBack persists the refreshed snapshot so the next status call
// starts from it. Failing to save is not fatal; the view still renders.
func saveHandleBack(op *types.IngestOperation, path string) {
	if err := handle.Write(op, path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot update handle %s: %v\n", path, err)
	}
}

// statusSummaryView is the operation-level half of the status output.
type statusSummaryView struct {
	Operation  string    `json:"operation"`
	Method     string    `json:"method"`
	Database   string    `json:"database"`
	Table      string    `json:"table"`
	Outcome    string    `json:"outcome"`
	Started    time.Time `json:"started"`
	Fallback   bool      `json:"fell_back_to_queued"`
	InProgress int       `json:"in_progress"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Canceled   int       `json:"canceled"`
}

// statusSourceView is one per-source row of the status output.
type statusSourceView struct {
	SourceID    string    `json:"source_id"`
	Status      string    `json:"status"`
	ErrorCode   string    `json:"error_code,omitempty"`
	FailureKind string    `json:"failure_kind,omitempty"`
	Details     string    `json:"details,omitempty"`
	UpdatedOn   time.Time `json:"updated_on"`
}

type statusView struct {
	statusSummaryView
	Sources []statusSourceView `json:"sources"`
}

func newStatusView(op *types.IngestOperation) statusView {
	counts := op.Counts()
	view := statusView{
		statusSummaryView: statusSummaryView{
			Operation:  op.ID.String(),
			Method:     string(op.Method),
			Database:   op.Database,
			Table:      op.Table,
			Outcome:    handle.Outcome(op),
			Started:    op.StartTime,
			Fallback:   op.FellBackToQueued,
			InProgress: counts.InProgress,
			Succeeded:  counts.Succeeded,
			Failed:     counts.Failed,
			Canceled:   counts.Canceled,
		},
		Sources: make([]statusSourceView, 0, len(op.Statuses)),
	}
	for _, row := range op.Statuses {
		view.Sources = append(view.Sources, statusSourceView{
			SourceID:    row.IngestionSourceID,
			Status:      string(row.Status),
			ErrorCode:   row.ErrorCode,
			FailureKind: string(row.FailureStatus),
			Details:     row.Details,
			UpdatedOn:   row.UpdatedOn,
		})
	}
	return view
}

func renderStatus(c *cli.Context, op *types.IngestOperation) error {
	format, err := render.ParseFormat(c.String("format"))
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	// On a terminal with no explicit format, reuse the watch layout as a
	// one-shot render.
	if format == "" && isTTY(os.Stdout) {
		fmt.Println(tui.RenderWatchStatic(op))
		return nil
	}

	view := newStatusView(op)
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	if format == render.FormatTable {
		if err := r.Render(view.statusSummaryView); err != nil {
			return cli.Exit(err.Error(), exitFailed)
		}
		if len(view.Sources) == 0 {
			return nil
		}
		fmt.Println()
		if err := r.Render(view.Sources); err != nil {
			return cli.Exit(err.Error(), exitFailed)
		}
		return nil
	}
	if err := r.Render(view); err != nil {
		return cli.Exit(err.Error(), exitFailed)
	}
	return nil
}
