// Package parser implements core.Parser for the file formats laboratories
// deliver: HL7 ORU messages and delimited CSV exports. Parsers are pure: they
// do no I/O and keep no state between files.
package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/labimport/internal/core"
)

// New returns the parser for format.
func New(format core.Format, loc *time.Location) (core.Parser, error) {
	switch format {
	case core.FormatHL7:
		return NewHL7(loc), nil
	case core.FormatCSV:
		return NewCSV(loc), nil
	default:
		return nil, fmt.Errorf("unknown file format %q", format)
	}
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

// nonEmpty returns nil for a blank value.
func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
