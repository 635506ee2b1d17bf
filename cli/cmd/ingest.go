package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/hopper/cli/config"
	"github.com/pithecene-io/hopper/cli/handle"
	"github.com/pithecene-io/hopper/ingest"
	"github.com/pithecene-io/hopper/iox"
	"github.com/pithecene-io/hopper/kusto"
	"github.com/pithecene-io/hopper/log"
	"github.com/pithecene-io/hopper/metrics"
	"github.com/pithecene-io/hopper/notify"
	notifyredis "github.com/pithecene-io/hopper/notify/redis"
	"github.com/pithecene-io/hopper/notify/webhook"
	"github.com/pithecene-io/hopper/status"
	"github.com/pithecene-io/hopper/types"
)

// Exit codes for the ingest command.
const (
	exitSuccess     = 0 // every source accepted or confirmed ingested
	exitFailed      = 1 // every source failed
	exitConfigError = 2 // bad flags, bad config file, or client construction failed
	exitPartial     = 3 // some sources landed, some did not
)

// IngestCommand returns the ingest command, which uploads local files or
// pre-staged blobs into a Kusto table.
func IngestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Ingest files or blob URLs into a Kusto table",
		ArgsUsage: "SOURCE [SOURCE...]",
		Description: `Each SOURCE is a local file path or an https:// blob URL that the
cluster can read. The data format is inferred from the file name unless
--format is given.

Examples:
   hopper ingest -d mydb -t mytable --cluster https://c.kusto.windows.net --token $TOKEN data.csv.gz
   hopper ingest --config hopper.yaml --method managed --wait events.json
   hopper ingest --config hopper.yaml 'https://acct.blob.core.windows.net/c/day1.parquet?sv=...'`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Path to a hopper.yaml config file"},
			&cli.StringFlag{Name: "cluster", Usage: "Engine or ingestion service URL"},
			&cli.StringFlag{Name: "database", Aliases: []string{"d"}, Usage: "Target database"},
			&cli.StringFlag{Name: "table", Aliases: []string{"t"}, Usage: "Target table"},
			&cli.StringFlag{Name: "method", Value: "queued", Usage: "Ingestion method: queued, streaming, or managed"},
			&cli.StringFlag{Name: "token", Usage: "Bearer token for the cluster"},
			&cli.StringFlag{Name: "format", Usage: "Data format (csv, json, parquet, ...); inferred from the file name when omitted"},
			&cli.StringFlag{Name: "mapping", Usage: "Name of a pre-created ingestion mapping on the cluster"},
			&cli.StringFlag{Name: "mapping-kind", Usage: "Mapping kind when it cannot be derived from the format (e.g. Csv, Json)"},
			&cli.BoolFlag{Name: "flush-immediately", Usage: "Ask the service to skip batching for this ingestion"},
			&cli.BoolFlag{Name: "ignore-first-record", Usage: "Skip the first record (header row) of each source"},
			&cli.StringSliceFlag{Name: "tag", Usage: "Extent tag to attach (repeatable)"},
			&cli.StringSliceFlag{Name: "ingest-by-tag", Usage: "ingest-by: deduplication tag (repeatable)"},
			&cli.StringSliceFlag{Name: "drop-by-tag", Usage: "drop-by: grouping tag (repeatable)"},
			&cli.StringSliceFlag{Name: "ingest-if-not-exists", Usage: "Skip sources whose ingest-by: tag already exists (repeatable)"},
			&cli.BoolFlag{Name: "report-to-table", Usage: "Report per-source status to the service status table"},
			&cli.BoolFlag{Name: "wait", Usage: "Block until every source reaches a terminal status (implies --report-to-table)"},
			&cli.DurationFlag{Name: "poll-interval", Value: 10 * time.Second, Usage: "Status poll interval used with --wait"},
			&cli.StringFlag{Name: "handle", Usage: "Write the operation handle to this exact path (single source only)"},
			&cli.StringFlag{Name: "handle-dir", Usage: "Directory for operation handles (default .hopper)"},
			&cli.IntFlag{Name: "parallel", Value: ingest.DefaultBatchParallelism, Usage: "Max sources ingested in parallel"},
			&cli.BoolFlag{Name: "stats", Usage: "Print client counters after the run"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Suppress the per-source report"},
			&cli.BoolFlag{Name: "verbose", Usage: "Log client activity to stderr"},
			&cli.DurationFlag{Name: "refresh-interval", Usage: "Ingestion resource cache refresh interval"},
			&cli.Int64Flag{Name: "upload-block-size", Usage: "Blob upload block size in bytes"},
			&cli.IntFlag{Name: "upload-concurrency", Usage: "Parallel blocks per blob upload"},
			&cli.Int64Flag{Name: "max-payload-size", Usage: "Reject sources larger than this many bytes"},
			&cli.BoolFlag{Name: "continue-when-unavailable", Usage: "managed: fall back to queued when the cluster has streaming disabled"},
			&cli.Float64Flag{Name: "size-factor", Usage: "managed: multiplier on the streaming size limit before falling back"},
			&cli.Int64Flag{Name: "max-streaming-size", Usage: "managed: payloads above this many bytes go straight to queued"},
			&cli.StringFlag{Name: "notify", Usage: "Completion notifier: webhook or redis"},
			&cli.StringFlag{Name: "notify-url", Usage: "Webhook endpoint or Redis connection URL"},
			&cli.StringFlag{Name: "notify-channel", Usage: "Redis pub/sub channel"},
			&cli.StringSliceFlag{Name: "notify-header", Usage: "Webhook header as name=value (repeatable)"},
			&cli.DurationFlag{Name: "notify-timeout", Usage: "Per-notification timeout"},
			&cli.IntFlag{Name: "notify-retries", Value: -1, DefaultText: "3", Usage: "Notification retry attempts"},
		},
		Action: ingestAction,
	}
}

func ingestAction(c *cli.Context) error {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}
		cfg = loaded
	}

	dest, err := resolveDestination(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	format, err := resolveFormat(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	sources, err := buildSources(c.Args().Slice(), format)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	callOpts, err := buildCallOptions(c, format)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	if c.IsSet("handle") && len(sources) > 1 {
		return cli.Exit("--handle names a single file; use --handle-dir for multi-source runs", exitConfigError)
	}

	notifyChoice, err := parseNotifyChoice(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	logger := log.NewNop()
	if c.Bool("verbose") {
		logger = log.NewLogger(dest.cluster).WithOutput(os.Stderr)
	}

	var collector *metrics.Collector
	if c.Bool("stats") {
		collector = metrics.NewCollector(dest.cluster, "hopper-cli")
	}

	ing, err := buildIngestor(dest, resolveTuning(c, cfg), logger, collector)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot build %s client: %v", dest.method, err), exitConfigError)
	}
	defer iox.DiscardClose(ing)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	started := time.Now()
	results := ingest.All(ctx, ing, sources, c.Int("parallel"), callOpts...)

	if c.Bool("wait") {
		waitForResults(ctx, c, logger, results)
	}

	store := handle.NewStore(resolveString(c, "handle-dir", cfg.HandleDir))
	paths := saveHandles(c, store, results)

	if notifyChoice != nil {
		publishEvents(ctx, notifyChoice, results)
	}

	if !c.Bool("quiet") {
		printIngestResults(results, paths, time.Since(started))
	}
	if collector != nil {
		printStats(collector.Snapshot())
	}

	return cli.Exit("", resultsToExitCode(results))
}

// destinationChoice is the resolved cluster, database, table, method, and
// credential for a run.
type destinationChoice struct {
	cluster  string
	database string
	table    string
	method   string
	token    string
}

func resolveDestination(c *cli.Context, cfg *config.Config) (destinationChoice, error) {
	dest := destinationChoice{
		cluster:  resolveString(c, "cluster", cfg.Cluster),
		database: resolveString(c, "database", cfg.Database),
		table:    resolveString(c, "table", cfg.Table),
		method:   resolveString(c, "method", cfg.Method),
		token:    resolveString(c, "token", cfg.Token),
	}
	if dest.cluster == "" {
		return dest, fmt.Errorf("--cluster is required (or set cluster in the config file)")
	}
	if dest.database == "" {
		return dest, fmt.Errorf("--database is required (or set database in the config file)")
	}
	if dest.table == "" {
		return dest, fmt.Errorf("--table is required (or set table in the config file)")
	}
	switch dest.method {
	case "queued", "streaming", "managed":
	default:
		return dest, fmt.Errorf("unknown method %q. Valid options: queued, streaming, managed", dest.method)
	}
	if dest.token == "" {
		return dest, fmt.Errorf("--token is required (or set token: ${KUSTO_TOKEN} in the config file)")
	}
	return dest, nil
}

// resolveFormat returns the explicit data format, or "" when each source
// should infer its own from the file name.
func resolveFormat(c *cli.Context, cfg *config.Config) (types.DataFormat, error) {
	s := resolveString(c, "format", cfg.Format)
	if s == "" {
		return "", nil
	}
	f := types.DataFormat(strings.ToLower(s))
	if !f.Valid() {
		return "", fmt.Errorf("invalid format %q. Valid options: csv, tsv, json, multijson, avro, apacheavro, parquet, orc, w3clog, sstream, txt, raw", s)
	}
	return f, nil
}

func buildSources(args []string, format types.DataFormat) ([]types.Source, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one source is required. Try: hopper ingest -d mydb -t mytable data.csv")
	}
	sources := make([]types.Source, 0, len(args))
	for _, arg := range args {
		f := format
		if f == "" {
			f = types.FormatFromPath(arg)
		}
		if strings.HasPrefix(arg, "https://") || strings.HasPrefix(arg, "http://") {
			src, err := types.NewBlobSource(arg, f)
			if err != nil {
				return nil, err
			}
			sources = append(sources, src)
			continue
		}
		if _, err := os.Stat(arg); err != nil {
			return nil, fmt.Errorf("source file not found: %s (pass a local path or an https:// blob URL)", arg)
		}
		src, err := types.NewFileSource(arg, f)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func buildCallOptions(c *cli.Context, format types.DataFormat) ([]ingest.Option, error) {
	var opts []ingest.Option
	if format != "" {
		opts = append(opts, ingest.Format(format))
	}
	if name := c.String("mapping"); name != "" {
		kind, err := resolveMappingKind(c, format)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ingest.IngestionMappingRef(name, kind))
	} else if c.IsSet("mapping-kind") {
		return nil, fmt.Errorf("--mapping-kind requires --mapping")
	}
	if c.Bool("flush-immediately") {
		opts = append(opts, ingest.FlushImmediately())
	}
	if c.Bool("ignore-first-record") {
		opts = append(opts, ingest.IgnoreFirstRecord())
	}
	if tags := c.StringSlice("tag"); len(tags) > 0 {
		opts = append(opts, ingest.Tags(tags...))
	}
	if tags := c.StringSlice("ingest-by-tag"); len(tags) > 0 {
		opts = append(opts, ingest.IngestByTags(tags...))
	}
	if tags := c.StringSlice("drop-by-tag"); len(tags) > 0 {
		opts = append(opts, ingest.DropByTags(tags...))
	}
	if tags := c.StringSlice("ingest-if-not-exists"); len(tags) > 0 {
		opts = append(opts, ingest.IngestIfNotExists(tags...))
	}
	if c.Bool("report-to-table") || c.Bool("wait") {
		opts = append(opts, ingest.ReportResultToTable())
	}
	return opts, nil
}

func resolveMappingKind(c *cli.Context, format types.DataFormat) (types.MappingKind, error) {
	if c.IsSet("mapping-kind") {
		kind := types.MappingKind(c.String("mapping-kind"))
		if !kind.Valid() {
			return "", fmt.Errorf("invalid mapping kind %q. Valid options: Csv, Json, Avro, ApacheAvro, Parquet, Orc, SStream, W3CLogFile", c.String("mapping-kind"))
		}
		if format != "" && !kind.MatchesFormat(format) {
			return "", fmt.Errorf("mapping kind %s does not cover format %s", kind, format)
		}
		return kind, nil
	}
	if format == "" {
		return "", fmt.Errorf("--mapping needs --format or --mapping-kind to pick the mapping family")
	}
	kind := mappingKindForFormat(format)
	if kind == "" {
		return "", fmt.Errorf("format %s has no mapping kind; pass --mapping-kind explicitly", format)
	}
	return kind, nil
}

// mappingKindForFormat returns the mapping family the service expects for a
// data format, or "" when there is no sensible default.
func mappingKindForFormat(f types.DataFormat) types.MappingKind {
	switch f {
	case types.FormatCSV, types.FormatTSV, types.FormatTXT, types.FormatRaw:
		return types.MappingCSV
	case types.FormatJSON, types.FormatMultiJSON:
		return types.MappingJSON
	case types.FormatAvro:
		return types.MappingAvro
	case types.FormatApacheAvro:
		return types.MappingApacheAvro
	case types.FormatParquet:
		return types.MappingParquet
	case types.FormatORC:
		return types.MappingORC
	case types.FormatSStream:
		return types.MappingSStream
	case types.FormatW3CLog:
		return types.MappingW3CLog
	default:
		return ""
	}
}

// tuningChoice is the resolved client tuning shared by all three methods.
type tuningChoice struct {
	refreshInterval         time.Duration
	blockSize               int64
	concurrency             int
	maxPayload              int64
	continueWhenUnavailable bool
	sizeFactor              float64
	maxStreaming            int64
}

func resolveTuning(c *cli.Context, cfg *config.Config) tuningChoice {
	return tuningChoice{
		refreshInterval:         resolveDuration(c, "refresh-interval", cfg.RefreshInterval.Duration),
		blockSize:               resolveInt64(c, "upload-block-size", cfg.Upload.BlockSize),
		concurrency:             resolveInt(c, "upload-concurrency", cfg.Upload.Concurrency),
		maxPayload:              resolveInt64(c, "max-payload-size", cfg.Upload.MaxPayloadSize),
		continueWhenUnavailable: resolveBool(c, "continue-when-unavailable", cfg.Managed.ContinueWhenUnavailable),
		sizeFactor:              resolveFloat(c, "size-factor", cfg.Managed.DataSizeFactor),
		maxStreaming:            resolveInt64(c, "max-streaming-size", cfg.Managed.MaxStreamingSize),
	}
}

func buildIngestor(dest destinationChoice, tuning tuningChoice, logger *log.Logger, collector *metrics.Collector) (ingest.Ingestor, error) {
	opts := []ingest.ClientOption{
		ingest.WithDefaultDatabase(dest.database),
		ingest.WithDefaultTable(dest.table),
		ingest.WithLogger(logger),
	}
	if collector != nil {
		opts = append(opts, ingest.WithMetrics(collector))
	}
	if tuning.refreshInterval > 0 {
		opts = append(opts, ingest.WithRefreshInterval(tuning.refreshInterval))
	}
	if tuning.blockSize > 0 {
		opts = append(opts, ingest.WithUploadBlockSize(tuning.blockSize))
	}
	if tuning.concurrency > 0 {
		opts = append(opts, ingest.WithUploadConcurrency(tuning.concurrency))
	}
	if tuning.maxPayload > 0 {
		opts = append(opts, ingest.WithMaxPayloadSize(tuning.maxPayload))
	}

	token := kusto.StaticToken(dest.token)
	switch dest.method {
	case "queued":
		return ingest.New(dest.cluster, token, opts...)
	case "streaming":
		return ingest.NewStreaming(dest.cluster, token, opts...)
	case "managed":
		if tuning.continueWhenUnavailable {
			opts = append(opts, ingest.ContinueWhenStreamingUnavailable())
		}
		if tuning.sizeFactor > 0 {
			opts = append(opts, ingest.WithDataSizeFactor(tuning.sizeFactor))
		}
		if tuning.maxStreaming > 0 {
			opts = append(opts, ingest.WithMaxStreamingSize(tuning.maxStreaming))
		}
		return ingest.NewManaged(dest.cluster, token, opts...)
	default:
		return nil, fmt.Errorf("unknown method %q. Valid options: queued, streaming, managed", dest.method)
	}
}

// waitForResults polls the status table until each surviving operation
// settles. Wait failures degrade to warnings so the handles and the report
// still come out.
func waitForResults(ctx context.Context, c *cli.Context, logger *log.Logger, results []ingest.Result) {
	tracker := status.NewTracker(status.WithLogger(logger))
	for i := range results {
		op := results[i].Operation
		if results[i].Err != nil || op == nil || op.Done() {
			continue
		}
		if _, err := tracker.Wait(ctx, op, c.Duration("poll-interval")); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: waiting on operation %s: %v\n", op.ID, err)
		}
	}
}

// saveHandles persists one handle file per surviving operation and returns
// the paths keyed by operation ID.
func saveHandles(c *cli.Context, store *handle.Store, results []ingest.Result) map[uuid.UUID]string {
	paths := make(map[uuid.UUID]string)
	for _, res := range results {
		if res.Err != nil || res.Operation == nil {
			continue
		}
		var path string
		var err error
		if explicit := c.String("handle"); explicit != "" {
			path = explicit
			err = handle.Write(res.Operation, explicit)
		} else {
			path, err = store.Save(res.Operation)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cannot save handle for operation %s: %v\n", res.Operation.ID, err)
			continue
		}
		paths[res.Operation.ID] = path
	}
	return paths
}

// notifyChoice is the resolved completion notification settings. A nil
// choice means notifications are off.
type notifyChoice struct {
	kind    string
	url     string
	channel string
	headers map[string]string
	timeout time.Duration
	retries int
}

func parseNotifyChoice(c *cli.Context, cfg *config.Config) (*notifyChoice, error) {
	kind := resolveString(c, "notify", cfg.Notify.Type)
	if kind == "" {
		return nil, nil
	}
	switch kind {
	case "webhook", "redis":
	default:
		return nil, fmt.Errorf("unknown notify type %q. Valid options: webhook, redis", kind)
	}

	choice := &notifyChoice{
		kind:    kind,
		url:     resolveString(c, "notify-url", cfg.Notify.URL),
		channel: resolveString(c, "notify-channel", cfg.Notify.Channel),
		timeout: resolveDuration(c, "notify-timeout", cfg.Notify.Timeout.Duration),
		retries: webhook.DefaultRetries,
	}
	if choice.url == "" {
		return nil, fmt.Errorf("--notify-url is required when --notify is set (or set notify.url in the config file)")
	}

	headers := make(map[string]string, len(cfg.Notify.Headers))
	for k, v := range cfg.Notify.Headers {
		headers[k] = v
	}
	for _, h := range c.StringSlice("notify-header") {
		name, value, ok := strings.Cut(h, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid notify header %q (expected name=value)", h)
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	if len(headers) > 0 {
		choice.headers = headers
	}

	if c.IsSet("notify-retries") {
		choice.retries = c.Int("notify-retries")
	} else if cfg.Notify.Retries != nil {
		choice.retries = *cfg.Notify.Retries
	}
	if choice.retries < 0 {
		return nil, fmt.Errorf("notify retries must be zero or positive, got %d", choice.retries)
	}
	return choice, nil
}

func buildNotifier(nc *notifyChoice) (notify.Notifier, error) {
	switch nc.kind {
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     nc.url,
			Headers: nc.headers,
			Timeout: nc.timeout,
			Retries: nc.retries,
		})
	case "redis":
		return notifyredis.New(notifyredis.Config{
			URL:     nc.url,
			Channel: nc.channel,
			Timeout: nc.timeout,
			Retries: nc.retries,
		})
	default:
		return nil, fmt.Errorf("unknown notify type %q. Valid options: webhook, redis", nc.kind)
	}
}

// publishEvents sends one completion event per surviving operation. Notify
// failures are warnings; they never change the exit code.
func publishEvents(ctx context.Context, nc *notifyChoice, results []ingest.Result) {
	n, err := buildNotifier(nc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: notifications disabled: %v\n", err)
		return
	}
	defer iox.DiscardClose(n)

	completedAt := time.Now().UTC()
	for _, res := range results {
		if res.Operation == nil {
			continue
		}
		ev := notify.NewOperationEvent(res.Operation, completedAt)
		if err := n.Publish(ctx, ev); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: notify failed for operation %s: %v\n", res.Operation.ID, err)
		}
	}
}

func printIngestResults(results []ingest.Result, paths map[uuid.UUID]string, elapsed time.Duration) {
	for _, res := range results {
		fmt.Printf("\n=== %s ===\n", res.Source.Name())
		if res.Err != nil {
			fmt.Printf("Error:       %v\n", res.Err)
			continue
		}
		op := res.Operation
		fmt.Printf("Operation:   %s\n", op.ID)
		fmt.Printf("Method:      %s\n", op.Method)
		fmt.Printf("Destination: %s.%s\n", op.Database, op.Table)
		if op.FellBackToQueued {
			fmt.Printf("Fallback:    streaming fell back to queued\n")
		}
		counts := op.Counts()
		fmt.Printf("Rows:        %d in progress, %d succeeded, %d failed, %d canceled\n",
			counts.InProgress, counts.Succeeded, counts.Failed, counts.Canceled)
		fmt.Printf("Outcome:     %s\n", handle.Outcome(op))
		if p, ok := paths[op.ID]; ok {
			fmt.Printf("Handle:      %s\n", p)
		}
	}

	failed := 0
	for _, res := range results {
		if res.Failed() {
			failed++
		}
	}
	fmt.Printf("\n%d of %d sources accepted in %s\n", len(results)-failed, len(results), elapsed.Round(time.Millisecond))
}

func printStats(snap metrics.Snapshot) {
	fmt.Printf("\n=== Client Stats ===\n")
	fmt.Printf("Streaming:   %d succeeded, %d fell back, %d failed\n", snap.StreamingSuccesses, snap.StreamingFallbacks, snap.StreamingFailures)
	fmt.Printf("Queued:      %d succeeded, %d failed\n", snap.QueuedSuccesses, snap.QueuedFailures)
	fmt.Printf("Uploads:     %d succeeded, %d failed, %d retried\n", snap.UploadsSucceeded, snap.UploadsFailed, snap.UploadsRetried)
	fmt.Printf("Refreshes:   %d succeeded, %d failed\n", snap.RefreshSuccesses, snap.RefreshFailures)
	if len(snap.FailuresByCode) > 0 {
		codes := make([]string, 0, len(snap.FailuresByCode))
		for code := range snap.FailuresByCode {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		fmt.Printf("\n=== Failures By Code ===\n")
		for _, code := range codes {
			fmt.Printf("%-24s %d\n", code, snap.FailuresByCode[code])
		}
	}
}

// resultsToExitCode folds per-source outcomes into the process exit code.
// A pending operation counts as accepted; without --wait, queued ingestion
// ends before the service confirms anything.
func resultsToExitCode(results []ingest.Result) int {
	var good, bad int
	for _, res := range results {
		switch {
		case res.Err != nil:
			bad++
		case res.Operation == nil:
			bad++
		default:
			switch handle.Outcome(res.Operation) {
			case "failed":
				bad++
			case "partial":
				good++
				bad++
			default:
				good++
			}
		}
	}
	switch {
	case bad == 0:
		return exitSuccess
	case good == 0:
		return exitFailed
	default:
		return exitPartial
	}
}

// resolveString picks a string setting: an explicit flag wins, then the
// config file, then the flag default.
func resolveString(c *cli.Context, name, fromConfig string) string {
	if c.IsSet(name) {
		return c.String(name)
	}
	if fromConfig != "" {
		return fromConfig
	}
	return c.String(name)
}

func resolveInt(c *cli.Context, name string, fromConfig int) int {
	if c.IsSet(name) {
		return c.Int(name)
	}
	if fromConfig != 0 {
		return fromConfig
	}
	return c.Int(name)
}

func resolveInt64(c *cli.Context, name string, fromConfig int64) int64 {
	if c.IsSet(name) {
		return c.Int64(name)
	}
	if fromConfig != 0 {
		return fromConfig
	}
	return c.Int64(name)
}

func resolveFloat(c *cli.Context, name string, fromConfig float64) float64 {
	if c.IsSet(name) {
		return c.Float64(name)
	}
	if fromConfig != 0 {
		return fromConfig
	}
	return c.Float64(name)
}

func resolveDuration(c *cli.Context, name string, fromConfig time.Duration) time.Duration {
	if c.IsSet(name) {
		return c.Duration(name)
	}
	if fromConfig != 0 {
		return fromConfig
	}
	return c.Duration(name)
}

func resolveBool(c *cli.Context, name string, fromConfig bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return fromConfig || c.Bool(name)
}
