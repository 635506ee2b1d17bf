// Package resources discovers and caches the ingestion resources the DM
// advertises: temp-storage containers, aggregation queues, the status table,
// and the identity token injected into queued ingest messages. The catalog
// is refreshed in the background and swapped atomically, so readers always
// observe a self-consistent bundle.
package resources

import (
	"fmt"

	"github.com/pithecene-io/hopper/azstore"
	"github.com/pithecene-io/hopper/kusto"
)

// Management commands answered by the DM.
const (
	cmdGetResources     = ".get ingestion resources"
	cmdGetIdentityToken = ".get kusto identity token"
)

// dmDatabase is the database name management commands are issued against.
const dmDatabase = "NetDefaultDB"

// Resource kinds in the catalog's ResourceTypeName column.
const (
	kindTempStorage      = "TempStorage"
	kindAggregationQueue = "SecuredReadyForAggregationQueue"
	kindFailedQueue      = "FailedIngestionsQueue"
	kindSuccessQueue     = "SuccessfulIngestionsQueue"
	kindStatusTable      = "IngestionsStatusTable"
)

// catalog is the parsed form of one `.get ingestion resources` response.
type catalog struct {
	containers []azstore.Ref
	queues     []azstore.Ref
	failed     []azstore.Ref
	success    []azstore.Ref
	tables     []azstore.Ref

	// advertisedRefresh is the optional server hint, in seconds; 0 when the
	// response carried none.
	advertisedRefresh int64
}

// parseCatalog reads the resource table by column name, so column order does
// not matter. Unknown resource kinds are skipped for forward compatibility.
func parseCatalog(t *kusto.MgmtTable) (*catalog, error) {
	kindIdx := t.ColumnIndex("ResourceTypeName")
	rootIdx := t.ColumnIndex("StorageRoot")
	if kindIdx < 0 || rootIdx < 0 {
		return nil, &kusto.Error{
			Kind:    kusto.KindService,
			Message: "resource catalog is missing ResourceTypeName or StorageRoot",
		}
	}
	refreshIdx := t.ColumnIndex("RefreshIntervalSeconds")

	c := &catalog{}
	for i, row := range t.Rows {
		if len(row) <= kindIdx || len(row) <= rootIdx {
			return nil, &kusto.Error{
				Kind:    kusto.KindService,
				Message: fmt.Sprintf("resource catalog row %d is short", i),
			}
		}
		kind, _ := row[kindIdx].(string)
		root, _ := row[rootIdx].(string)

		if refreshIdx >= 0 && len(row) > refreshIdx {
			if secs, ok := row[refreshIdx].(float64); ok && secs > 0 {
				if c.advertisedRefresh == 0 || int64(secs) < c.advertisedRefresh {
					c.advertisedRefresh = int64(secs)
				}
			}
		}

		ref, err := azstore.ParseRef(root)
		if err != nil {
			return nil, &kusto.Error{
				Kind:    kusto.KindService,
				Message: fmt.Sprintf("resource catalog row %d: %v", i, err),
			}
		}
		switch kind {
		case kindTempStorage:
			c.containers = append(c.containers, ref)
		case kindAggregationQueue:
			c.queues = append(c.queues, ref)
		case kindFailedQueue:
			c.failed = append(c.failed, ref)
		case kindSuccessQueue:
			c.success = append(c.success, ref)
		case kindStatusTable:
			c.tables = append(c.tables, ref)
		}
	}

	if len(c.containers) == 0 {
		return nil, kusto.NoContainersError()
	}
	if len(c.queues) == 0 {
		return nil, kusto.NoQueuesError()
	}
	return c, nil
}

// parseIdentityToken reads the `.get kusto identity token` response.
func parseIdentityToken(t *kusto.MgmtTable) (string, error) {
	idx := t.ColumnIndex("AuthorizationContext")
	if idx < 0 || len(t.Rows) == 0 || len(t.Rows[0]) <= idx {
		return "", &kusto.Error{
			Kind:    kusto.KindService,
			Message: "identity token response is missing AuthorizationContext",
		}
	}
	tok, _ := t.Rows[0][idx].(string)
	if tok == "" {
		return "", &kusto.Error{
			Kind:    kusto.KindService,
			Message: "identity token response is empty",
		}
	}
	return tok, nil
}
