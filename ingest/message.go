package ingest

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/pithecene-io/hopper/csl"
	"github.com/pithecene-io/hopper/types"
)

// queuedMessage is the JSON body posted to an aggregation queue, wrapped in
// base64. Field names are the DM's, so the casing is pinned.
type queuedMessage struct {
	ID                        string             `json:"Id"`
	BlobPath                  string             `json:"BlobPath"`
	RawDataSize               int64              `json:"RawDataSize"`
	DatabaseName              string             `json:"DatabaseName"`
	TableName                 string             `json:"TableName"`
	RetainBlobOnSuccess       bool               `json:"RetainBlobOnSuccess"`
	FlushImmediately          bool               `json:"FlushImmediately"`
	IgnoreSizeLimit           bool               `json:"IgnoreSizeLimit"`
	ReportLevel               types.ReportLevel  `json:"ReportLevel"`
	ReportMethod              types.ReportMethod `json:"ReportMethod"`
	SourceMessageCreationTime string             `json:"SourceMessageCreationTime"`
	AdditionalProperties      map[string]any     `json:"AdditionalProperties"`
	IngestionStatusInTable    *statusTableRef    `json:"IngestionStatusInTable"`
}

// statusTableRef points the service at the status row created for the
// source, so it updates that row in place.
type statusTableRef struct {
	TableConnectionString string `json:"TableConnectionString"`
	PartitionKey          string `json:"PartitionKey"`
	RowKey                string `json:"RowKey"`
}

// newQueuedMessage assembles the ingest message for one staged blob.
func newQueuedMessage(blob *types.BlobSource, format types.DataFormat, props *types.IngestionProperties, authContext string, retain bool, now time.Time) (*queuedMessage, error) {
	extra, err := additionalProperties(format, props, authContext)
	if err != nil {
		return nil, err
	}
	return &queuedMessage{
		ID:                        blob.ID().String(),
		BlobPath:                  blob.URL(),
		RawDataSize:               blob.RawSize(),
		DatabaseName:              props.Database,
		TableName:                 props.Table,
		RetainBlobOnSuccess:       retain,
		FlushImmediately:          props.FlushImmediately,
		IgnoreSizeLimit:           props.IgnoreSizeLimit,
		ReportLevel:               props.ReportLevel,
		ReportMethod:              props.ReportMethod,
		SourceMessageCreationTime: now.UTC().Format(time.RFC3339Nano),
		AdditionalProperties:      extra,
	}, nil
}

// encode marshals the message and wraps it in the base64 envelope the queue
// service requires.
func (m *queuedMessage) encode() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// additionalProperties builds the property bag the engine reads off the
// message. Pass-through properties land first so the first-class fields
// win on collision.
func additionalProperties(format types.DataFormat, props *types.IngestionProperties, authContext string) (map[string]any, error) {
	p := make(map[string]any, len(props.AdditionalProperties)+8)
	for k, v := range props.AdditionalProperties {
		p[k] = v
	}

	p["authorizationContext"] = authContext
	p["format"] = string(format)

	if props.IngestionMappingRef != "" {
		p["ingestionMappingReference"] = props.IngestionMappingRef
	}
	if len(props.IngestionMapping) > 0 {
		// The inline mapping travels as a JSON string, not a nested array.
		b, err := json.Marshal(props.IngestionMapping)
		if err != nil {
			return nil, err
		}
		p["ingestionMapping"] = string(b)
	}
	if props.IngestionMappingKind != "" {
		p["ingestionMappingType"] = string(props.IngestionMappingKind)
	}
	if props.IgnoreFirstRecord {
		p["ignoreFirstRecord"] = true
	}
	if tags := assembleTags(props); len(tags) > 0 {
		p["tags"] = tags
	}
	if len(props.IngestIfNotExistsTags) > 0 {
		p["ingestIfNotExists"] = props.IngestIfNotExistsTags
	}
	if !props.CreationTime.IsZero() {
		p["creationTime"] = csl.FormatDateTime(props.CreationTime)
	}
	if props.ValidationPolicy != nil {
		p["validationPolicy"] = props.ValidationPolicy
	}
	return p, nil
}

// assembleTags flattens the tag fields into the single list the service
// takes, prefixing ingest-by: and drop-by: tags.
func assembleTags(props *types.IngestionProperties) []string {
	n := len(props.AdditionalTags) + len(props.DropByTags) + len(props.IngestByTags)
	if n == 0 {
		return nil
	}
	tags := make([]string, 0, n)
	tags = append(tags, props.AdditionalTags...)
	for _, t := range props.DropByTags {
		tags = append(tags, "drop-by:"+t)
	}
	for _, t := range props.IngestByTags {
		tags = append(tags, "ingest-by:"+t)
	}
	return tags
}
