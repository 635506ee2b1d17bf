package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/hopper/azstore"
	"github.com/pithecene-io/hopper/cli/config"
	"github.com/pithecene-io/hopper/cli/render"
	"github.com/pithecene-io/hopper/kusto"
	"github.com/pithecene-io/hopper/resources"
)

// resourceRow is one advertised storage resource. Endpoints are shown
// without their SAS signatures.
type resourceRow struct {
	Kind     string `json:"kind"`
	Account  string `json:"account"`
	Endpoint string `json:"endpoint"`
}

// ResourcesCommand returns the resources command, which fetches the
// ingestion resource catalog the cluster currently advertises.
func ResourcesCommand() *cli.Command {
	return &cli.Command{
		Name:  "resources",
		Usage: "Show the ingestion resources advertised by the cluster",
		Description: `Runs one .get ingestion resources round trip against the ingestion
service and prints the advertised containers, queues, and status table.
Useful for checking connectivity and permissions before an ingest run.`,
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{Name: "config", Usage: "Path to a hopper.yaml config file"},
			&cli.StringFlag{Name: "cluster", Usage: "Engine or ingestion service URL"},
			&cli.StringFlag{Name: "token", Usage: "Bearer token for the cluster"},
		),
		Action: resourcesAction,
	}
}

func resourcesAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("watch") {
		return cli.Exit("--watch is not supported for the resources command", 1)
	}

	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}
		cfg = loaded
	}

	cluster := resolveString(c, "cluster", cfg.Cluster)
	if cluster == "" {
		return cli.Exit("--cluster is required (or set cluster in the config file)", exitConfigError)
	}
	token := resolveString(c, "token", cfg.Token)
	if token == "" {
		return cli.Exit("--token is required (or set token: ${KUSTO_TOKEN} in the config file)", exitConfigError)
	}

	endpoint, err := kusto.NormalizeIngestionURL(cluster)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	client, err := kusto.NewClient(endpoint, kusto.StaticToken(token))
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	mgr := resources.NewManager(client)
	if err := mgr.Refresh(context.Background()); err != nil {
		return cli.Exit(fmt.Sprintf("cannot fetch ingestion resources from %s: %v", endpoint, err), exitFailed)
	}

	rows, err := collectResourceRows(mgr)
	if err != nil {
		return cli.Exit(err.Error(), exitFailed)
	}
	return r.Render(rows)
}

func collectResourceRows(mgr *resources.Manager) ([]resourceRow, error) {
	containers, _, err := mgr.ShuffledContainers()
	if err != nil {
		return nil, err
	}
	queues, _, err := mgr.ShuffledQueues()
	if err != nil {
		return nil, err
	}

	rows := make([]resourceRow, 0, len(containers)+len(queues)+4)
	for _, ct := range containers {
		rows = append(rows, resourceRow{Kind: "temp-storage", Account: ct.Account(), Endpoint: ct.String()})
	}
	for _, q := range queues {
		rows = append(rows, resourceRow{Kind: "aggregation-queue", Account: q.Account(), Endpoint: q.String()})
	}
	if q, err := mgr.FailedQueue(); err == nil {
		rows = append(rows, resourceRow{Kind: "failed-queue", Account: q.Account(), Endpoint: q.String()})
	}
	if q, err := mgr.SuccessQueue(); err == nil {
		rows = append(rows, resourceRow{Kind: "success-queue", Account: q.Account(), Endpoint: q.String()})
	}
	if t, err := mgr.StatusTable(); err == nil {
		// The table URI embeds its SAS; strip it before showing.
		if ref, err := azstore.ParseRef(t.URI()); err == nil {
			rows = append(rows, resourceRow{Kind: "status-table", Account: ref.Account, Endpoint: ref.Endpoint})
		}
	}
	if _, err := mgr.AuthContext(); err == nil {
		rows = append(rows, resourceRow{Kind: "identity-token", Endpoint: "(redacted)"})
	}
	return rows, nil
}
