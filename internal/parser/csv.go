package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/JonMunkholm/labimport/internal/core"
)

// Column headers of the laboratory result export.
const (
	colSampleID           = "Proben-ID"
	colName               = "Untersuchung"
	colResultValue        = "Ergebnis (quantitativ)"
	colResultString       = "Ergebnis (qualitativ)"
	colComment            = "Bemerkung"
	colDateOfAnalysis     = "Analysedatum"
	colDateOfDelivery     = "Eingang der Probe"
	colDateOfAnnouncement = "Datum der Ergebnismitteilung"
	colLabName            = "Labor"
	colMaterial           = "Material"
	colUnit               = "Unit"
	colOtherUnit          = "Andere Unit"
	colKitName            = "Kit/Firma"
)

// Delimiters tried when sniffing a file, in order of preference on ties.
var csvDelimiters = []rune{';', ',', ':', '|'}

// CSV parses delimited result exports: one row per analyte, rows of the same
// sample grouped into one result.
type CSV struct {
	loc *time.Location
}

// NewCSV creates a CSV parser. Dates without offset are read in loc.
func NewCSV(loc *time.Location) *CSV {
	if loc == nil {
		loc = time.Local
	}
	return &CSV{loc: loc}
}

// Format implements core.Parser.
func (p *CSV) Format() core.Format { return core.FormatCSV }

// Parse implements core.Parser. Rows without a sample id are kept as a result
// with an empty id so the file is rejected as a whole by the store stage.
func (p *CSV) Parse(path string, content []byte) ([]*core.LabResult, error) {
	text, err := core.DecodeText(content)
	if err != nil {
		return nil, fmt.Errorf("invalid csv: %s: %w", path, err)
	}
	if len(bytes.TrimSpace(text)) == 0 {
		return nil, nil
	}

	r := csv.NewReader(bytes.NewReader(text))
	r.Comma = sniffDelimiter(text)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("invalid csv: %s: read header: %w", path, err)
	}
	idx := makeHeaderIndex(header)
	if _, ok := idx[colSampleID]; !ok {
		return nil, fmt.Errorf("invalid csv: %s: missing column %q", path, colSampleID)
	}

	var (
		results []*core.LabResult
		byID    = make(map[string]*core.LabResult)
	)
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %s: %w", path, err)
		}
		if isEmptyRow(row) {
			continue
		}
		line, _ := r.FieldPos(0)

		obs, err := p.observation(row, idx)
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %s: line %d: %w", path, line, err)
		}

		id := strings.ToUpper(idx.get(row, colSampleID))
		res, ok := byID[id]
		if !ok {
			res = &core.LabResult{ID: id}
			byID[id] = res
			results = append(results, res)
		}
		obs.LabResultID = id
		res.Observations = append(res.Observations, obs)
	}
	return results, nil
}

func (p *CSV) observation(row []string, idx headerIndex) (*core.LabObservation, error) {
	obs := &core.LabObservation{
		Name:         idx.get(row, colName),
		ResultValue:  nonEmpty(idx.get(row, colResultValue)),
		ResultString: nonEmpty(idx.get(row, colResultString)),
		Comment:      nonEmpty(idx.get(row, colComment)),
		LabName:      nonEmpty(idx.get(row, colLabName)),
		Material:     nonEmpty(idx.get(row, colMaterial)),
		Unit:         nonEmpty(idx.get(row, colUnit)),
		OtherUnit:    nonEmpty(idx.get(row, colOtherUnit)),
		KitName:      nonEmpty(idx.get(row, colKitName)),
	}

	dates := []struct {
		col string
		dst **time.Time
	}{
		{colDateOfAnalysis, &obs.DateOfAnalysis},
		{colDateOfDelivery, &obs.DateOfDelivery},
		{colDateOfAnnouncement, &obs.DateOfAnnouncement},
	}
	for _, d := range dates {
		raw := idx.get(row, d.col)
		if raw == "" {
			continue
		}
		t, ok := parseDate(raw, p.loc)
		if !ok {
			return nil, fmt.Errorf("invalid date for %q: %q", d.col, raw)
		}
		*d.dst = &t
	}
	return obs, nil
}

// sniffDelimiter picks the candidate occurring most often in the header line.
func sniffDelimiter(text []byte) rune {
	first := text
	if i := bytes.IndexAny(text, "\r\n"); i >= 0 {
		first = text[:i]
	}

	best, bestCount := csvDelimiters[0], -1
	for _, d := range csvDelimiters {
		if n := bytes.Count(first, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// headerIndex maps a column name to its position in a row.
type headerIndex map[string]int

// makeHeaderIndex is computed once per file and reused for all rows.
func makeHeaderIndex(header []string) headerIndex {
	idx := make(headerIndex, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.Trim(h, "\""))
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	return idx
}

func (h headerIndex) get(row []string, col string) string {
	pos, ok := h[col]
	if !ok || pos >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[pos])
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
