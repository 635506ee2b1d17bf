package upload

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// maxBaseLength caps the sanitized source name inside a blob name. Longer
// names are cut and marked so two truncations of different sources still
// differ through the source ID.
const maxBaseLength = 128

// truncMarker flags a sanitized name that was cut at maxBaseLength.
const truncMarker = "__trunc"

// BlobName derives the canonical blob name for one uploaded payload:
//
//	{table}__{database}__{sourceID}__{sanitizedBase}{ext}
//
// ext is ".gz" when the uploader compresses, empty otherwise (the source's
// own extension is already part of its base name).
func BlobName(database, table string, sourceID uuid.UUID, base, ext string) string {
	var b strings.Builder
	b.WriteString(table)
	b.WriteString("__")
	b.WriteString(database)
	b.WriteString("__")
	b.WriteString(sourceID.String())
	b.WriteString("__")
	b.WriteString(sanitizeName(base))
	b.WriteString(ext)
	return b.String()
}

// sanitizeName replaces characters that break blob URLs or queue message
// parsing with '-' and bounds the result's length.
func sanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case unicode.IsSpace(r) || unicode.IsControl(r):
			b.WriteByte('-')
		case r == '{' || r == '}' || r == '|' || r == '/' || r == '\\' || r == '?' || r == '#' || r == ';':
			b.WriteByte('-')
		default:
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > maxBaseLength {
		cut := maxBaseLength
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + truncMarker
	}
	return s
}
