package azstore

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"github.com/pithecene-io/hopper/csl"
	"github.com/pithecene-io/hopper/types"
)

// StatusTable implements Table over the Azure table SDK.
type StatusTable struct {
	ref    Ref
	client *aztables.Client
}

var _ Table = (*StatusTable)(nil)

// NewStatusTable opens the table addressed by an advertised resource. Pass
// the process-wide HTTP client so all components share one transport; nil
// falls back to the SDK default.
func NewStatusTable(ref Ref, httpClient *http.Client) (*StatusTable, error) {
	opts := &aztables.ClientOptions{}
	if httpClient != nil {
		opts.Transport = httpClient
	}
	client, err := aztables.NewClientWithNoCredential(ref.Raw, opts)
	if err != nil {
		return nil, wrap(err, "open table", ref.String())
	}
	return &StatusTable{ref: ref, client: client}, nil
}

// URI returns the full SAS-authorized table URI. Queued ingest messages
// embed it so the service can update the row this client created.
func (t *StatusTable) URI() string { return t.ref.Raw }

// String returns the table endpoint without the SAS.
func (t *StatusTable) String() string { return t.ref.Endpoint }

// InsertRow adds a new status row.
func (t *StatusTable) InsertRow(ctx context.Context, row types.StatusRow) error {
	data, err := json.Marshal(rowToEntity(row))
	if err != nil {
		return wrap(err, "encode row", t.ref.Endpoint)
	}
	if _, err := t.client.AddEntity(ctx, data, nil); err != nil {
		return wrap(err, "insert row", t.ref.Endpoint)
	}
	return nil
}

// GetRow fetches one row by its keys.
func (t *StatusTable) GetRow(ctx context.Context, partitionKey, rowKey string) (types.StatusRow, error) {
	resp, err := t.client.GetEntity(ctx, partitionKey, rowKey, nil)
	if err != nil {
		return types.StatusRow{}, wrap(err, "get row", t.ref.Endpoint)
	}
	return entityToRow(resp.Value)
}

func rowToEntity(row types.StatusRow) aztables.EDMEntity {
	props := map[string]any{
		"Status":            string(row.Status),
		"IngestionSourceId": row.IngestionSourceID,
		"Database":          row.Database,
		"Table":             row.Table,
		"UpdatedOn":         aztables.EDMDateTime(row.UpdatedOn),
	}
	if row.ErrorCode != "" {
		props["ErrorCode"] = row.ErrorCode
	}
	if row.FailureStatus != "" {
		props["FailureStatus"] = string(row.FailureStatus)
	}
	if row.Details != "" {
		props["Details"] = row.Details
	}
	if row.OperationID != "" {
		props["OperationId"] = row.OperationID
	}
	if row.ActivityID != "" {
		props["ActivityId"] = row.ActivityID
	}
	if row.IngestionSourcePath != "" {
		props["IngestionSourcePath"] = row.IngestionSourcePath
	}
	return aztables.EDMEntity{
		Entity: aztables.Entity{
			PartitionKey: row.PartitionKey,
			RowKey:       row.RowKey,
		},
		Properties: props,
	}
}

func entityToRow(data []byte) (types.StatusRow, error) {
	var e aztables.EDMEntity
	if err := json.Unmarshal(data, &e); err != nil {
		return types.StatusRow{}, wrap(err, "decode row", "")
	}

	row := types.StatusRow{
		PartitionKey:        e.PartitionKey,
		RowKey:              e.RowKey,
		Status:              types.OperationStatus(propString(e.Properties, "Status")),
		ErrorCode:           propString(e.Properties, "ErrorCode"),
		FailureStatus:       types.FailureKind(propString(e.Properties, "FailureStatus")),
		Details:             propString(e.Properties, "Details"),
		IngestionSourceID:   propString(e.Properties, "IngestionSourceId"),
		OperationID:         propString(e.Properties, "OperationId"),
		ActivityID:          propString(e.Properties, "ActivityId"),
		Database:            propString(e.Properties, "Database"),
		Table:               propString(e.Properties, "Table"),
		IngestionSourcePath: propString(e.Properties, "IngestionSourcePath"),
	}
	switch v := e.Properties["UpdatedOn"].(type) {
	case aztables.EDMDateTime:
		row.UpdatedOn = time.Time(v)
	case time.Time:
		row.UpdatedOn = v
	case string:
		// The service writes its seven-digit datetime literal here.
		if ts, err := csl.ParseDateTime(v); err == nil {
			row.UpdatedOn = ts
		}
	}
	return row, nil
}

func propString(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}
