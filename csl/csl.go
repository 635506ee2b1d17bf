// Package csl formats Go values as Kusto (CSL) wire literals.
package csl

import (
	"fmt"
	"time"
)

// dateTimeLayout is the service's datetime literal: UTC with exactly seven
// fractional digits (100ns ticks).
const dateTimeLayout = "2006-01-02T15:04:05.0000000Z"

// FormatDateTime renders t as a CSL datetime literal. Sub-100ns precision is
// truncated.
func FormatDateTime(t time.Time) string {
	return t.UTC().Format(dateTimeLayout)
}

// ParseDateTime parses a CSL datetime literal. It also accepts plain RFC3339
// values, which the service emits for columns without fractional seconds.
func ParseDateTime(s string) (time.Time, error) {
	if t, err := time.Parse(dateTimeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("csl: parsing datetime %q: %w", s, err)
	}
	return t.UTC(), nil
}
