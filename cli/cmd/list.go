package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/hopper/cli/handle"
	"github.com/pithecene-io/hopper/cli/render"
	"github.com/pithecene-io/hopper/types"
)

// listWarningThreshold is the number of items above which we warn about using --limit.
const listWarningThreshold = 100

// isTTY reports whether f is attached to a terminal.
func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// ListCommand returns the list command with subcommands.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List entities (operations, formats)",
		Subcommands: []*cli.Command{
			listOperationsCommand(),
			listFormatsCommand(),
		},
	}
}

func listOperationsCommand() *cli.Command {
	return &cli.Command{
		Name:  "operations",
		Usage: "List persisted operation handles, newest first",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "handle-dir",
				Usage: "Directory to scan for handles (default .hopper)",
			},
			&cli.StringFlag{
				Name:  "state",
				Usage: "Filter by outcome: pending, succeeded, failed, partial",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of operations to return (0 = no limit)",
				Value: 0,
			},
		),
		Action: listOperationsAction,
	}
}

func listOperationsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// Live view only makes sense for a single operation
	if c.Bool("watch") {
		return cli.Exit("--watch is not supported for list commands", 1)
	}

	state := c.String("state")
	switch state {
	case "", "pending", "succeeded", "failed", "partial":
	default:
		return cli.Exit(fmt.Sprintf("invalid state %q. Valid options: pending, succeeded, failed, partial", state), exitConfigError)
	}

	store := handle.NewStore(c.String("handle-dir"))
	entries, err := store.List()
	if err != nil {
		return cli.Exit(err.Error(), exitFailed)
	}

	results := make([]handle.Entry, 0, len(entries))
	for _, e := range entries {
		if state != "" && e.Outcome != state {
			continue
		}
		results = append(results, e)
	}
	if limit := c.Int("limit"); limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	// Warn if output is large and --limit was not specified (TTY only to avoid noise in pipelines)
	if len(results) > listWarningThreshold && c.Int("limit") == 0 && isTTY(os.Stderr) {
		fmt.Fprintf(os.Stderr, "Warning: returning %d results. Consider using --limit to reduce output.\n\n", len(results))
	}

	return r.Render(results)
}

// formatInfo is one row of list formats output.
type formatInfo struct {
	Format      string `json:"format"`
	ContentType string `json:"content_type"`
	Binary      bool   `json:"binary"`
	MappingKind string `json:"mapping_kind"`
}

func listFormatsCommand() *cli.Command {
	return &cli.Command{
		Name:   "formats",
		Usage:  "List supported data formats",
		Flags:  ReadOnlyFlags(),
		Action: listFormatsAction,
	}
}

func listFormatsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("watch") {
		return cli.Exit("--watch is not supported for list commands", 1)
	}

	formats := []types.DataFormat{
		types.FormatCSV, types.FormatTSV, types.FormatJSON, types.FormatMultiJSON,
		types.FormatAvro, types.FormatApacheAvro, types.FormatParquet, types.FormatORC,
		types.FormatW3CLog, types.FormatSStream, types.FormatTXT, types.FormatRaw,
	}
	rows := make([]formatInfo, 0, len(formats))
	for _, f := range formats {
		rows = append(rows, formatInfo{
			Format:      string(f),
			ContentType: f.ContentType(),
			Binary:      f.IsBinary(),
			MappingKind: string(mappingKindForFormat(f)),
		})
	}
	return r.Render(rows)
}
