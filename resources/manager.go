package resources

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pithecene-io/hopper/azstore"
	"github.com/pithecene-io/hopper/kusto"
	"github.com/pithecene-io/hopper/log"
	"github.com/pithecene-io/hopper/metrics"
	"github.com/pithecene-io/hopper/ranking"
	"github.com/pithecene-io/hopper/retry"
)

// DefaultRefreshInterval is how often the resource catalog is re-fetched.
// The service can lower the interval through the catalog's refresh hint,
// never raise it.
const DefaultRefreshInterval = time.Hour

// refreshTimeout bounds one background refresh cycle, retries included.
const refreshTimeout = 2 * time.Minute

// CommandRunner issues management commands against the DM endpoint.
// *kusto.Client satisfies it.
type CommandRunner interface {
	Mgmt(ctx context.Context, database, command string) (*kusto.MgmtTable, error)
}

// Manager caches the advertised ingestion resources and the identity token,
// refreshing both in the background. Read methods serve the most recent
// successfully fetched bundle and are safe for concurrent use.
type Manager struct {
	runner     CommandRunner
	httpClient *http.Client
	logger     *log.Logger
	collector  *metrics.Collector
	interval   time.Duration
	policy     retry.Policy

	accounts *ranking.AccountSet

	// Factories build one storage client per advertised resource. Tests
	// substitute fakes here.
	newContainer func(azstore.Ref, *http.Client) (azstore.Container, error)
	newQueue     func(azstore.Ref, *http.Client) (azstore.Queue, error)
	newTable     func(azstore.Ref, *http.Client) (azstore.Table, error)

	bundle      atomic.Pointer[Bundle]
	authContext atomic.Pointer[string]

	// effective is the refresh interval in nanoseconds, the configured
	// interval possibly lowered by the service's hint.
	effective atomic.Int64

	mu      sync.Mutex // guards started and stopped
	started bool
	stopped bool
	stopCh  chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger attaches a logger. The default discards everything.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithHTTPClient sets the transport shared by the storage clients the
// manager builds. The default is http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(m *Manager) { m.httpClient = hc }
}

// WithRefreshInterval overrides DefaultRefreshInterval. The service's hint
// still applies when shorter.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithRetryPolicy replaces the backoff applied to background refreshes.
func WithRetryPolicy(p retry.Policy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithMetrics attaches a metrics collector. Nil is fine.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.collector = c }
}

// NewManager builds a manager around runner. Call Start before reading
// resources from it.
func NewManager(runner CommandRunner, opts ...Option) *Manager {
	m := &Manager{
		runner:     runner,
		httpClient: http.DefaultClient,
		logger:     log.NewNop(),
		interval:   DefaultRefreshInterval,
		policy:     retry.Exponential(time.Second, time.Second, 4),
		accounts:   ranking.NewAccountSet(),
		stopCh:     make(chan struct{}),
	}
	m.newContainer = func(ref azstore.Ref, hc *http.Client) (azstore.Container, error) {
		return azstore.NewBlobContainer(ref, hc)
	}
	m.newQueue = func(ref azstore.Ref, hc *http.Client) (azstore.Queue, error) {
		return azstore.NewStorageQueue(ref, hc)
	}
	m.newTable = func(ref azstore.Ref, hc *http.Client) (azstore.Table, error) {
		return azstore.NewStatusTable(ref, hc)
	}
	for _, opt := range opts {
		opt(m)
	}
	m.effective.Store(int64(m.interval))
	return m
}

// Start fetches the catalog once, synchronously, then begins the background
// refresh loop. A nil return means reads are being served.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.Refresh(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	if !m.started && !m.stopped {
		m.started = true
		go m.refreshLoop()
	}
	m.mu.Unlock()
	return nil
}

// Close stops the background refresh loop. Reads keep serving the last
// bundle.
func (m *Manager) Close() error {
	m.mu.Lock()
	if !m.stopped {
		m.stopped = true
		close(m.stopCh)
	}
	m.mu.Unlock()
	return nil
}

// Refresh fetches the resource catalog and the identity token and swaps in
// a fresh bundle. On error the previous bundle stays in place.
func (m *Manager) Refresh(ctx context.Context) error {
	if err := m.refresh(ctx); err != nil {
		m.collector.IncRefreshFailure()
		return err
	}
	m.collector.IncRefreshSuccess()
	return nil
}

func (m *Manager) refresh(ctx context.Context) error {
	t, err := m.runner.Mgmt(ctx, dmDatabase, cmdGetResources)
	if err != nil {
		return err
	}
	cat, err := parseCatalog(t)
	if err != nil {
		return err
	}

	t, err = m.runner.Mgmt(ctx, dmDatabase, cmdGetIdentityToken)
	if err != nil {
		return err
	}
	token, err := parseIdentityToken(t)
	if err != nil {
		return err
	}

	b, err := m.buildBundle(cat)
	if err != nil {
		return err
	}

	if err := m.accounts.SetAccounts(b.accounts()); err != nil {
		return err
	}
	m.bundle.Store(b)
	m.authContext.Store(&token)

	interval := m.interval
	if cat.advertisedRefresh > 0 {
		if hinted := time.Duration(cat.advertisedRefresh) * time.Second; hinted < interval {
			interval = hinted
		}
	}
	m.effective.Store(int64(interval))

	m.logger.Info("ingestion resources refreshed", map[string]any{
		"containers": len(cat.containers),
		"queues":     len(cat.queues),
		"accounts":   m.accounts.Len(),
		"interval":   interval.String(),
	})
	return nil
}

// buildBundle turns parsed refs into storage clients grouped by account.
func (m *Manager) buildBundle(cat *catalog) (*Bundle, error) {
	b := &Bundle{
		containersByAccount: make(map[string][]azstore.Container),
		queuesByAccount:     make(map[string][]azstore.Queue),
	}
	for _, ref := range cat.containers {
		c, err := m.newContainer(ref, m.httpClient)
		if err != nil {
			return nil, err
		}
		b.containersByAccount[ref.Account] = append(b.containersByAccount[ref.Account], c)
	}
	for _, ref := range cat.queues {
		q, err := m.newQueue(ref, m.httpClient)
		if err != nil {
			return nil, err
		}
		b.queuesByAccount[ref.Account] = append(b.queuesByAccount[ref.Account], q)
	}
	if len(cat.failed) > 0 {
		q, err := m.newQueue(cat.failed[0], m.httpClient)
		if err != nil {
			return nil, err
		}
		b.failedQueue = q
	}
	if len(cat.success) > 0 {
		q, err := m.newQueue(cat.success[0], m.httpClient)
		if err != nil {
			return nil, err
		}
		b.successQueue = q
	}
	if len(cat.tables) > 0 {
		tbl, err := m.newTable(cat.tables[0], m.httpClient)
		if err != nil {
			return nil, err
		}
		b.statusTable = tbl
	}
	return b, nil
}

func (m *Manager) refreshLoop() {
	ticker := time.NewTicker(time.Duration(m.effective.Load()))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.backgroundRefresh()
			ticker.Reset(time.Duration(m.effective.Load()))
		case <-m.stopCh:
			return
		}
	}
}

// backgroundRefresh retries transient failures. When the whole cycle fails
// the previous bundle keeps serving.
func (m *Manager) backgroundRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	err := retry.DoNotify(ctx, m.policy, func() error {
		return m.Refresh(ctx)
	}, func(err error, next time.Duration) {
		m.logger.Warn("resource refresh attempt failed", map[string]any{
			"error":    err.Error(),
			"retry_in": next.String(),
		})
	})
	if err != nil {
		m.logger.Error("resource refresh failed, serving previous catalog", map[string]any{
			"error": err.Error(),
		})
	}
}

// current returns the live bundle, or an unavailable error when no refresh
// has ever succeeded.
func (m *Manager) current() (*Bundle, error) {
	b := m.bundle.Load()
	if b == nil {
		return nil, kusto.UnavailableError("ingestion resources not fetched yet")
	}
	return b, nil
}

// ShuffledContainers returns the catalog's containers ordered by account
// health, plus the walk offset assigned to this caller. Walk the slice from
// start, wrapping modulo its length.
func (m *Manager) ShuffledContainers() ([]azstore.Container, int, error) {
	b, err := m.current()
	if err != nil {
		return nil, 0, err
	}
	list := b.shuffledContainers(m.accounts)
	if len(list) == 0 {
		return nil, 0, kusto.NoContainersError()
	}
	return list, b.containerStart(len(list)), nil
}

// ShuffledQueues mirrors ShuffledContainers for the aggregation queues.
func (m *Manager) ShuffledQueues() ([]azstore.Queue, int, error) {
	b, err := m.current()
	if err != nil {
		return nil, 0, err
	}
	list := b.shuffledQueues(m.accounts)
	if len(list) == 0 {
		return nil, 0, kusto.NoQueuesError()
	}
	return list, b.queueStart(len(list)), nil
}

// StatusTable returns the advertised ingestion status table.
func (m *Manager) StatusTable() (azstore.Table, error) {
	b, err := m.current()
	if err != nil {
		return nil, err
	}
	if b.statusTable == nil {
		return nil, kusto.UnavailableError("no ingestion status table advertised")
	}
	return b.statusTable, nil
}

// FailedQueue returns the queue the service reports failed ingestions on.
func (m *Manager) FailedQueue() (azstore.Queue, error) {
	b, err := m.current()
	if err != nil {
		return nil, err
	}
	if b.failedQueue == nil {
		return nil, kusto.UnavailableError("no failed-ingestions queue advertised")
	}
	return b.failedQueue, nil
}

// SuccessQueue returns the queue the service reports successful ingestions
// on.
func (m *Manager) SuccessQueue() (azstore.Queue, error) {
	b, err := m.current()
	if err != nil {
		return nil, err
	}
	if b.successQueue == nil {
		return nil, kusto.UnavailableError("no successful-ingestions queue advertised")
	}
	return b.successQueue, nil
}

// AuthContext returns the identity token stamped into queued ingest
// messages.
func (m *Manager) AuthContext() (string, error) {
	tok := m.authContext.Load()
	if tok == nil {
		return "", kusto.UnavailableError("identity token not fetched yet")
	}
	return *tok, nil
}

// ReportAccountResult feeds an upload or enqueue outcome back into the
// account ranking.
func (m *Manager) ReportAccountResult(account string, success bool) {
	m.accounts.LogResult(account, success)
}
