package cmd

import (
	"fmt"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/hopper/cli/config"
	"github.com/pithecene-io/hopper/cli/render"
	"github.com/pithecene-io/hopper/kusto"
)

// DebugCommand returns the debug command with subcommands.
// Debug commands are read-only diagnostic tools; none of them touch the
// cluster.
func DebugCommand() *cli.Command {
	return &cli.Command{
		Name:  "debug",
		Usage: "Diagnostic tools (endpoint, config)",
		Subcommands: []*cli.Command{
			debugEndpointCommand(),
			debugConfigCommand(),
		},
	}
}

// endpointView shows how a cluster URL resolves to its engine and
// ingestion forms.
type endpointView struct {
	Input      string `json:"input"`
	Engine     string `json:"engine"`
	Ingestion  string `json:"ingestion"`
	Trusted    bool   `json:"trusted"`
	TrustError string `json:"trust_error,omitempty"`
}

func debugEndpointCommand() *cli.Command {
	return &cli.Command{
		Name:      "endpoint",
		Usage:     "Show how a cluster URL normalizes and whether it is trusted",
		ArgsUsage: "CLUSTER_URL",
		Flags:     ReadOnlyFlags(),
		Action:    debugEndpointAction,
	}
}

func debugEndpointAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("cluster URL required", 1)
	}
	raw := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("watch") {
		return cli.Exit("--watch is not supported for debug commands", 1)
	}

	engine, err := kusto.NormalizeEngineURL(raw)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot normalize %q: %v", raw, err), 1)
	}
	ingestion, err := kusto.NormalizeIngestionURL(raw)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot normalize %q: %v", raw, err), 1)
	}

	view := &endpointView{
		Input:     raw,
		Engine:    engine,
		Ingestion: ingestion,
		Trusted:   true,
	}
	if err := kusto.DefaultTrusted().Validate(engine); err != nil {
		view.Trusted = false
		view.TrustError = err.Error()
	}
	return r.Render(view)
}

// configView is the effective configuration after merging flags over the
// config file. The token is redacted.
type configView struct {
	ConfigFile              string   `json:"config_file,omitempty"`
	Cluster                 string   `json:"cluster,omitempty"`
	Database                string   `json:"database,omitempty"`
	Table                   string   `json:"table,omitempty"`
	Method                  string   `json:"method"`
	Format                  string   `json:"format,omitempty"`
	Token                   string   `json:"token,omitempty"`
	HandleDir               string   `json:"handle_dir,omitempty"`
	RefreshInterval         string   `json:"refresh_interval,omitempty"`
	UploadBlockSize         int64    `json:"upload_block_size,omitempty"`
	UploadConcurrency       int      `json:"upload_concurrency,omitempty"`
	MaxPayloadSize          int64    `json:"max_payload_size,omitempty"`
	ContinueWhenUnavailable bool     `json:"continue_when_unavailable"`
	DataSizeFactor          float64  `json:"data_size_factor,omitempty"`
	MaxStreamingSize        int64    `json:"max_streaming_size,omitempty"`
	NotifyType              string   `json:"notify_type,omitempty"`
	NotifyURL               string   `json:"notify_url,omitempty"`
	NotifyChannel           string   `json:"notify_channel,omitempty"`
	NotifyHeaders           []string `json:"notify_headers,omitempty"`
}

func debugConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show the effective configuration after flag and file merging",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{Name: "config", Usage: "Path to a hopper.yaml config file"},
			&cli.StringFlag{Name: "cluster", Usage: "Engine or ingestion service URL"},
			&cli.StringFlag{Name: "database", Aliases: []string{"d"}, Usage: "Target database"},
			&cli.StringFlag{Name: "table", Aliases: []string{"t"}, Usage: "Target table"},
			&cli.StringFlag{Name: "method", Value: "queued", Usage: "Ingestion method: queued, streaming, or managed"},
			&cli.StringFlag{Name: "token", Usage: "Bearer token for the cluster"},
			&cli.StringFlag{Name: "format", Usage: "Data format"},
		),
		Action: debugConfigAction,
	}
}

func debugConfigAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("watch") {
		return cli.Exit("--watch is not supported for debug commands", 1)
	}

	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}
		cfg = loaded
	}

	tuning := resolveTuning(c, cfg)
	view := &configView{
		ConfigFile:              c.String("config"),
		Cluster:                 resolveString(c, "cluster", cfg.Cluster),
		Database:                resolveString(c, "database", cfg.Database),
		Table:                   resolveString(c, "table", cfg.Table),
		Method:                  resolveString(c, "method", cfg.Method),
		Format:                  resolveString(c, "format", cfg.Format),
		Token:                   redactToken(resolveString(c, "token", cfg.Token)),
		HandleDir:               cfg.HandleDir,
		UploadBlockSize:         tuning.blockSize,
		UploadConcurrency:       tuning.concurrency,
		MaxPayloadSize:          tuning.maxPayload,
		ContinueWhenUnavailable: tuning.continueWhenUnavailable,
		DataSizeFactor:          tuning.sizeFactor,
		MaxStreamingSize:        tuning.maxStreaming,
		NotifyType:              cfg.Notify.Type,
		NotifyURL:               cfg.Notify.URL,
		NotifyChannel:           cfg.Notify.Channel,
	}
	if tuning.refreshInterval > 0 {
		view.RefreshInterval = tuning.refreshInterval.String()
	}
	// Header values may carry credentials; list the names only.
	for name := range cfg.Notify.Headers {
		view.NotifyHeaders = append(view.NotifyHeaders, name)
	}
	sort.Strings(view.NotifyHeaders)

	return r.Render(view)
}

func redactToken(tok string) string {
	if tok == "" {
		return ""
	}
	return fmt.Sprintf("(redacted, %d chars)", len(tok))
}
