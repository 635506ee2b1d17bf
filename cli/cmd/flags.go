// Package cmd provides CLI commands for the hopper binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// WatchFlag enables the Bubble Tea live status view.
	// Only valid for the status command.
	WatchFlag = &cli.BoolFlag{
		Name:  "watch",
		Usage: "Watch live status updates (status only)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --watch so that unsupported commands can provide explicit error
// messages instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		WatchFlag,
	}
}

// WatchReadOnlyFlags returns flags for commands that support watch mode.
// This is an alias for ReadOnlyFlags, kept for documentation clarity.
func WatchReadOnlyFlags() []cli.Flag {
	return ReadOnlyFlags()
}
