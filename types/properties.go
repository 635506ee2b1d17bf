package types

import (
	"errors"
	"fmt"
	"time"
)

// ReportLevel selects which per-source outcomes the service records.
type ReportLevel int

// Report level wire values.
const (
	ReportFailuresOnly         ReportLevel = 0
	ReportNone                 ReportLevel = 1
	ReportFailuresAndSuccesses ReportLevel = 2
)

// Valid reports whether l is a recognized report level.
func (l ReportLevel) Valid() bool {
	return l >= ReportFailuresOnly && l <= ReportFailuresAndSuccesses
}

// ReportMethod selects where the service records outcomes.
type ReportMethod int

// Report method wire values.
const (
	ReportToQueue         ReportMethod = 0
	ReportToTable         ReportMethod = 1
	ReportToQueueAndTable ReportMethod = 2
)

// Valid reports whether m is a recognized report method.
func (m ReportMethod) Valid() bool {
	return m >= ReportToQueue && m <= ReportToQueueAndTable
}

// UsesTable reports whether outcomes land in the status table.
func (m ReportMethod) UsesTable() bool {
	return m == ReportToTable || m == ReportToQueueAndTable
}

// MappingKind identifies the family of an ingestion mapping.
type MappingKind string

// Mapping kind constants. Values are the wire casing the service expects in
// the ingestionMappingType property.
const (
	MappingCSV        MappingKind = "Csv"
	MappingJSON       MappingKind = "Json"
	MappingAvro       MappingKind = "Avro"
	MappingApacheAvro MappingKind = "ApacheAvro"
	MappingParquet    MappingKind = "Parquet"
	MappingORC        MappingKind = "Orc"
	MappingSStream    MappingKind = "SStream"
	MappingW3CLog     MappingKind = "W3CLogFile"
)

// formatsByMapping lists the data formats each mapping kind applies to.
var formatsByMapping = map[MappingKind][]DataFormat{
	MappingCSV:        {FormatCSV, FormatTSV, FormatW3CLog, FormatTXT, FormatRaw},
	MappingJSON:       {FormatJSON, FormatMultiJSON},
	MappingAvro:       {FormatAvro},
	MappingApacheAvro: {FormatApacheAvro},
	MappingParquet:    {FormatParquet},
	MappingORC:        {FormatORC},
	MappingSStream:    {FormatSStream},
	MappingW3CLog:     {FormatW3CLog},
}

// Valid reports whether k is a recognized mapping kind.
func (k MappingKind) Valid() bool {
	_, ok := formatsByMapping[k]
	return ok
}

// MatchesFormat reports whether a mapping of kind k can describe payloads of
// format f.
func (k MappingKind) MatchesFormat(f DataFormat) bool {
	for _, m := range formatsByMapping[k] {
		if m == f {
			return true
		}
	}
	return false
}

// ColumnMapping maps one source field to a destination column inside an
// inline ingestion mapping.
type ColumnMapping struct {
	Column     string            `json:"Column"`
	DataType   string            `json:"DataType,omitempty"`
	Properties map[string]string `json:"Properties,omitempty"`
}

// ValidationOptions selects which input checks the service runs.
type ValidationOptions int

// Validation option wire values.
const (
	ValidationNone            ValidationOptions = 0
	ValidationConstantColumns ValidationOptions = 1
	ValidationColumnLevelOnly ValidationOptions = 2
)

// ValidationImplications selects what a failed validation does to the batch.
type ValidationImplications int

// Validation implication wire values.
const (
	ValidationBestEffort ValidationImplications = 0
	ValidationFail       ValidationImplications = 1
)

// ValidationPolicy is the engine-side input validation contract attached to
// a queued ingestion.
type ValidationPolicy struct {
	Options      ValidationOptions      `json:"ValidationOptions"`
	Implications ValidationImplications `json:"ValidationImplications"`
}

// IngestionProperties describes the destination and per-request behavior of
// one ingestion. The zero value is not usable; Database, Table and Format
// are required.
type IngestionProperties struct {
	Database string
	Table    string

	// Format declares the payload format. It must agree with the source's
	// declared format when both are set.
	Format DataFormat

	// FlushImmediately asks the service to skip batching for this payload.
	FlushImmediately bool

	// IgnoreFirstRecord drops the first record of each payload, typically a
	// CSV header row.
	IgnoreFirstRecord bool

	// IgnoreSizeLimit bypasses the client-side single-payload size cap.
	IgnoreSizeLimit bool

	ReportLevel  ReportLevel
	ReportMethod ReportMethod

	// IngestionMappingRef names a pre-created mapping on the destination
	// table. Mutually exclusive with IngestionMapping.
	IngestionMappingRef string

	// IngestionMapping carries an inline mapping. Mutually exclusive with
	// IngestionMappingRef.
	IngestionMapping []ColumnMapping

	// IngestionMappingKind must be set whenever a mapping (reference or
	// inline) is supplied, and must agree with Format.
	IngestionMappingKind MappingKind

	// AdditionalTags, IngestByTags and DropByTags become extent tags on the
	// destination; IngestIfNotExistsTags suppress the ingestion when extents
	// tagged with them already exist.
	AdditionalTags        []string
	IngestByTags          []string
	DropByTags            []string
	IngestIfNotExistsTags []string

	// CreationTime overrides the extent creation time. Zero means now.
	CreationTime time.Time

	ValidationPolicy *ValidationPolicy

	// AdditionalProperties passes through engine properties this client has
	// no first-class field for.
	AdditionalProperties map[string]string
}

// Validate checks p against src and returns the effective data format. A
// zero Format adopts the source's format.
func (p *IngestionProperties) Validate(src Source) (DataFormat, error) {
	if p.Database == "" {
		return "", errors.New("types: ingestion properties missing database")
	}
	if p.Table == "" {
		return "", errors.New("types: ingestion properties missing table")
	}
	if !p.ReportLevel.Valid() {
		return "", fmt.Errorf("types: invalid report level %d", p.ReportLevel)
	}
	if !p.ReportMethod.Valid() {
		return "", fmt.Errorf("types: invalid report method %d", p.ReportMethod)
	}

	format := p.Format
	if src != nil {
		switch {
		case format == "":
			format = src.DataFormat()
		case src.DataFormat() != "" && src.DataFormat() != format:
			return "", fmt.Errorf("types: properties format %q does not match source format %q", format, src.DataFormat())
		}
	}
	if !format.Valid() {
		return "", fmt.Errorf("types: invalid data format %q", format)
	}

	if p.IngestionMappingRef != "" && len(p.IngestionMapping) > 0 {
		return "", errors.New("types: mapping reference and inline mapping are mutually exclusive")
	}
	hasMapping := p.IngestionMappingRef != "" || len(p.IngestionMapping) > 0
	if hasMapping && p.IngestionMappingKind == "" {
		return "", errors.New("types: mapping supplied without a mapping kind")
	}
	if p.IngestionMappingKind != "" {
		if !p.IngestionMappingKind.Valid() {
			return "", fmt.Errorf("types: invalid mapping kind %q", p.IngestionMappingKind)
		}
		if !p.IngestionMappingKind.MatchesFormat(format) {
			return "", fmt.Errorf("types: mapping kind %q does not apply to format %q", p.IngestionMappingKind, format)
		}
	}
	return format, nil
}
