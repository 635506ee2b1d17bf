package resources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/hopper/azstore"
	"github.com/pithecene-io/hopper/kusto"
	"github.com/pithecene-io/hopper/types"
)

type fakeRunner struct {
	mu        sync.Mutex
	resources *kusto.MgmtTable
	identity  *kusto.MgmtTable
	resErr    error
	idErr     error
	calls     map[string]int
}

func (f *fakeRunner) Mgmt(_ context.Context, db, command string) (*kusto.MgmtTable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if db != dmDatabase {
		return nil, fmt.Errorf("unexpected database %q", db)
	}
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[command]++
	switch command {
	case cmdGetResources:
		if f.resErr != nil {
			return nil, f.resErr
		}
		return f.resources, nil
	case cmdGetIdentityToken:
		if f.idErr != nil {
			return nil, f.idErr
		}
		return f.identity, nil
	}
	return nil, fmt.Errorf("unexpected command %q", command)
}

func (f *fakeRunner) setResErr(err error) {
	f.mu.Lock()
	f.resErr = err
	f.mu.Unlock()
}

type fakeContainer struct {
	account string
	name    string
}

func (c *fakeContainer) Account() string { return c.account }
func (c *fakeContainer) String() string  { return c.name }
func (c *fakeContainer) Upload(context.Context, string, io.Reader, azstore.UploadOptions) error {
	return nil
}
func (c *fakeContainer) BlobURL(blobName string) string {
	return "https://" + c.account + "/" + c.name + "/" + blobName
}

type fakeQueue struct {
	account string
	name    string
}

func (q *fakeQueue) Account() string { return q.account }

func (q *fakeQueue) String() string { return q.name }

func (q *fakeQueue) Enqueue(context.Context, string) error { return nil }

type fakeStatusTable struct {
	uri string
}

func (t *fakeStatusTable) URI() string { return t.uri }

func (t *fakeStatusTable) InsertRow(context.Context, types.StatusRow) error { return nil }

func (t *fakeStatusTable) GetRow(context.Context, string, string) (types.StatusRow, error) {
	return types.StatusRow{}, nil
}

func identityTable(token string) *kusto.MgmtTable {
	return &kusto.MgmtTable{
		Columns: []string{"AuthorizationContext"},
		Rows:    [][]any{{token}},
	}
}

func fullCatalogTable() *kusto.MgmtTable {
	return &kusto.MgmtTable{
		Columns: []string{"ResourceTypeName", "StorageRoot"},
		Rows: [][]any{
			{"TempStorage", "https://acct1.blob.core.windows.net/t1?sas=1"},
			{"TempStorage", "https://acct1.blob.core.windows.net/t2?sas=2"},
			{"TempStorage", "https://acct2.blob.core.windows.net/t3?sas=3"},
			{"SecuredReadyForAggregationQueue", "https://acct1.queue.core.windows.net/q1?sas=4"},
			{"SecuredReadyForAggregationQueue", "https://acct2.queue.core.windows.net/q2?sas=5"},
			{"FailedIngestionsQueue", "https://acct1.queue.core.windows.net/failed?sas=6"},
			{"SuccessfulIngestionsQueue", "https://acct1.queue.core.windows.net/success?sas=7"},
			{"IngestionsStatusTable", "https://acct1.table.core.windows.net/status?sas=8"},
		},
	}
}

// newTestManager wires fake storage factories so no network clients are
// ever built.
func newTestManager(runner CommandRunner, opts ...Option) *Manager {
	m := NewManager(runner, opts...)
	m.newContainer = func(ref azstore.Ref, _ *http.Client) (azstore.Container, error) {
		return &fakeContainer{account: ref.Account, name: ref.Name}, nil
	}
	m.newQueue = func(ref azstore.Ref, _ *http.Client) (azstore.Queue, error) {
		return &fakeQueue{account: ref.Account, name: ref.Name}, nil
	}
	m.newTable = func(ref azstore.Ref, _ *http.Client) (azstore.Table, error) {
		return &fakeStatusTable{uri: ref.Raw}, nil
	}
	return m
}

func TestManager_RefreshPopulatesBundle(t *testing.T) {
	runner := &fakeRunner{resources: fullCatalogTable(), identity: identityTable("auth-ctx-1")}
	m := newTestManager(runner)

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	containers, start, err := m.ShuffledContainers()
	if err != nil {
		t.Fatalf("ShuffledContainers() error = %v", err)
	}
	if len(containers) != 3 {
		t.Fatalf("len(containers) = %d, want 3", len(containers))
	}
	if start != 0 {
		t.Errorf("first walk start = %d, want 0", start)
	}

	tok, err := m.AuthContext()
	if err != nil {
		t.Fatalf("AuthContext() error = %v", err)
	}
	if tok != "auth-ctx-1" {
		t.Errorf("AuthContext() = %q, want %q", tok, "auth-ctx-1")
	}

	table, err := m.StatusTable()
	if err != nil {
		t.Fatalf("StatusTable() error = %v", err)
	}
	if table.URI() != "https://acct1.table.core.windows.net/status?sas=8" {
		t.Errorf("StatusTable().URI() = %q, want the advertised SAS URI", table.URI())
	}

	failed, err := m.FailedQueue()
	if err != nil {
		t.Fatalf("FailedQueue() error = %v", err)
	}
	if failed.String() != "failed" {
		t.Errorf("FailedQueue() = %q, want %q", failed.String(), "failed")
	}
	success, err := m.SuccessQueue()
	if err != nil {
		t.Fatalf("SuccessQueue() error = %v", err)
	}
	if success.String() != "success" {
		t.Errorf("SuccessQueue() = %q, want %q", success.String(), "success")
	}
}

func TestManager_ReadsBeforeRefresh(t *testing.T) {
	m := newTestManager(&fakeRunner{})

	_, _, err := m.ShuffledContainers()
	var kerr *kusto.Error
	if !errors.As(err, &kerr) || kerr.Kind != kusto.KindUnavailable {
		t.Errorf("ShuffledContainers() error = %v, want kind %q", err, kusto.KindUnavailable)
	}

	_, err = m.AuthContext()
	if !errors.As(err, &kerr) || kerr.Kind != kusto.KindUnavailable {
		t.Errorf("AuthContext() error = %v, want kind %q", err, kusto.KindUnavailable)
	}

	_, err = m.StatusTable()
	if !errors.As(err, &kerr) || kerr.Kind != kusto.KindUnavailable {
		t.Errorf("StatusTable() error = %v, want kind %q", err, kusto.KindUnavailable)
	}
}

func TestManager_WalkOffsetsAreDistinct(t *testing.T) {
	runner := &fakeRunner{resources: fullCatalogTable(), identity: identityTable("tok")}
	m := newTestManager(runner)
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	// Three containers, so consecutive callers start at 0, 1, 2, 0.
	wantStarts := []int{0, 1, 2, 0}
	for i, want := range wantStarts {
		_, start, err := m.ShuffledContainers()
		if err != nil {
			t.Fatalf("ShuffledContainers() #%d error = %v", i, err)
		}
		if start != want {
			t.Errorf("walk start #%d = %d, want %d", i, start, want)
		}
	}

	_, qStart, err := m.ShuffledQueues()
	if err != nil {
		t.Fatalf("ShuffledQueues() error = %v", err)
	}
	if qStart != 0 {
		t.Errorf("first queue walk start = %d, want 0", qStart)
	}
}

func TestManager_InterleavesAccounts(t *testing.T) {
	runner := &fakeRunner{resources: fullCatalogTable(), identity: identityTable("tok")}
	m := newTestManager(runner)
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	containers, _, err := m.ShuffledContainers()
	if err != nil {
		t.Fatalf("ShuffledContainers() error = %v", err)
	}
	// acct1 holds two containers and acct2 one; with both accounts healthy
	// the first round takes one container from each account.
	if containers[0].Account() == containers[1].Account() {
		t.Errorf("first two walk entries share account %q, want one per account",
			containers[0].Account())
	}
}

func TestManager_FailingAccountSortsLast(t *testing.T) {
	runner := &fakeRunner{resources: fullCatalogTable(), identity: identityTable("tok")}
	m := newTestManager(runner)
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	for i := 0; i < 10; i++ {
		m.ReportAccountResult("acct1", false)
	}

	containers, _, err := m.ShuffledContainers()
	if err != nil {
		t.Fatalf("ShuffledContainers() error = %v", err)
	}
	// acct2 has no recorded traffic and ranks healthy; acct1's containers
	// must trail it.
	if got := containers[0].Account(); got != "acct2" {
		t.Errorf("walk head account = %q, want healthy %q first", got, "acct2")
	}
	if got := containers[len(containers)-1].Account(); got != "acct1" {
		t.Errorf("walk tail account = %q, want failing %q last", got, "acct1")
	}
}

func TestManager_RefreshFailureKeepsPreviousBundle(t *testing.T) {
	runner := &fakeRunner{resources: fullCatalogTable(), identity: identityTable("tok-1")}
	m := newTestManager(runner)
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	runner.setResErr(errors.New("dm unreachable"))
	if err := m.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() after injected failure: want error, got nil")
	}

	containers, _, err := m.ShuffledContainers()
	if err != nil {
		t.Fatalf("ShuffledContainers() after failed refresh error = %v", err)
	}
	if len(containers) != 3 {
		t.Errorf("len(containers) = %d, want the previous bundle's 3", len(containers))
	}
	if tok, _ := m.AuthContext(); tok != "tok-1" {
		t.Errorf("AuthContext() = %q, want the previous token", tok)
	}
}

func TestManager_IdentityFailureLeavesNoBundle(t *testing.T) {
	runner := &fakeRunner{
		resources: fullCatalogTable(),
		idErr:     errors.New("identity endpoint down"),
	}
	m := newTestManager(runner)

	if err := m.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() with failing identity call: want error, got nil")
	}
	_, _, err := m.ShuffledContainers()
	var kerr *kusto.Error
	if !errors.As(err, &kerr) || kerr.Kind != kusto.KindUnavailable {
		t.Errorf("ShuffledContainers() error = %v, want kind %q", err, kusto.KindUnavailable)
	}
}

func TestManager_AdvertisedIntervalLowers(t *testing.T) {
	table := fullCatalogTable()
	table.Columns = append(table.Columns, "RefreshIntervalSeconds")
	for i := range table.Rows {
		table.Rows[i] = append(table.Rows[i], float64(600))
	}
	runner := &fakeRunner{resources: table, identity: identityTable("tok")}
	m := newTestManager(runner, WithRefreshInterval(time.Hour))

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got := time.Duration(m.effective.Load()); got != 10*time.Minute {
		t.Errorf("effective interval = %v, want the advertised 10m", got)
	}
}

func TestManager_ConfiguredIntervalWinsWhenShorter(t *testing.T) {
	table := fullCatalogTable()
	table.Columns = append(table.Columns, "RefreshIntervalSeconds")
	for i := range table.Rows {
		table.Rows[i] = append(table.Rows[i], float64(3600))
	}
	runner := &fakeRunner{resources: table, identity: identityTable("tok")}
	m := newTestManager(runner, WithRefreshInterval(5*time.Minute))

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got := time.Duration(m.effective.Load()); got != 5*time.Minute {
		t.Errorf("effective interval = %v, want the configured 5m", got)
	}
}

func TestManager_StartAndClose(t *testing.T) {
	runner := &fakeRunner{resources: fullCatalogTable(), identity: identityTable("tok")}
	m := newTestManager(runner)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })

	runner.mu.Lock()
	got := runner.calls[cmdGetResources]
	runner.mu.Unlock()
	if got != 1 {
		t.Errorf("resource fetches after Start = %d, want 1 blocking fetch", got)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// Closing twice is fine.
	if err := m.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestManager_StartFailsWhenFirstRefreshFails(t *testing.T) {
	runner := &fakeRunner{resErr: errors.New("dm unreachable")}
	m := newTestManager(runner)

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("Start() with unreachable DM: want error, got nil")
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close() after failed Start error = %v", err)
	}
}
