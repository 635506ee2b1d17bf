// Package types defines the core domain types of the hopper ingestion
// client: sources, formats, destination properties, and operation handles.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"path"
	"strings"
)

// DataFormat identifies the payload format of an ingestion source.
type DataFormat string

// Data format constants. The string values are the wire values accepted by
// the engine's streamFormat parameter and the queued-message format property.
const (
	FormatCSV        DataFormat = "csv"
	FormatTSV        DataFormat = "tsv"
	FormatJSON       DataFormat = "json"
	FormatMultiJSON  DataFormat = "multijson"
	FormatAvro       DataFormat = "avro"
	FormatApacheAvro DataFormat = "apacheavro"
	FormatParquet    DataFormat = "parquet"
	FormatORC        DataFormat = "orc"
	FormatW3CLog     DataFormat = "w3clog"
	FormatSStream    DataFormat = "sstream"
	FormatTXT        DataFormat = "txt"
	FormatRaw        DataFormat = "raw"
)

// allFormats indexes every valid format for validation and extension lookup.
var allFormats = map[DataFormat]struct{}{
	FormatCSV: {}, FormatTSV: {}, FormatJSON: {}, FormatMultiJSON: {},
	FormatAvro: {}, FormatApacheAvro: {}, FormatParquet: {}, FormatORC: {},
	FormatW3CLog: {}, FormatSStream: {}, FormatTXT: {}, FormatRaw: {},
}

// Valid reports whether f is a recognized data format.
func (f DataFormat) Valid() bool {
	_, ok := allFormats[f]
	return ok
}

// IsBinary reports whether f is an already-packed binary format.
// Binary formats are never compressed by the client.
func (f DataFormat) IsBinary() bool {
	switch f {
	case FormatParquet, FormatORC, FormatAvro, FormatApacheAvro, FormatSStream:
		return true
	}
	return false
}

// ContentType returns the HTTP Content-Type used when streaming f to the
// engine.
func (f DataFormat) ContentType() string {
	switch f {
	case FormatJSON, FormatMultiJSON:
		return "application/json; charset=utf-8"
	case FormatCSV, FormatTSV:
		return "text/csv; charset=utf-8"
	case FormatParquet, FormatORC, FormatAvro, FormatApacheAvro, FormatSStream:
		return "application/octet-stream"
	default:
		return "text/plain; charset=utf-8"
	}
}

// FormatFromPath infers the data format from a file name, looking past a
// trailing compression extension ("data.json.gz" is JSON). Returns FormatCSV
// when nothing matches, mirroring the service default.
func FormatFromPath(p string) DataFormat {
	ext := strings.ToLower(path.Ext(p))
	if ext == ".gz" || ext == ".zip" || ext == ".zst" {
		ext = strings.ToLower(path.Ext(strings.TrimSuffix(p, ext)))
	}
	if ext == "" {
		return FormatCSV
	}
	if f := DataFormat(ext[1:]); f.Valid() {
		return f
	}
	return FormatCSV
}

// Compression identifies how a source payload is compressed.
type Compression string

// Compression constants.
const (
	CompressionNone Compression = ""
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	CompressionZip  Compression = "zip"
)

// CompressionFromPath infers the compression type from a file name.
func CompressionFromPath(p string) Compression {
	switch strings.ToLower(path.Ext(p)) {
	case ".gz":
		return CompressionGzip
	case ".zip":
		return CompressionZip
	case ".zst":
		return CompressionZstd
	}
	return CompressionNone
}

// ShouldCompress reports whether the client gzip-compresses a payload before
// upload: only uncompressed, non-binary formats qualify.
func ShouldCompress(f DataFormat, c Compression) bool {
	return !f.IsBinary() && c == CompressionNone
}
