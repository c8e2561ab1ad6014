package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/labimport/internal/core"
)

// HL7LabName is recorded as the laboratory of every HL7 observation.
const HL7LabName = "MHH"

// Field positions read from the ORU messages the laboratory sends.
const (
	pidPatientName        = 5
	orcPlacerOrderNumber  = 2
	obrUniversalServiceID = 4
	obrSpecimenReceived   = 14
	obrStatusChange       = 22
	obrResultInterpreter  = 32
	obxObservationID      = 3
	obxObservationValue   = 5
	nteComment            = 3
)

var segmentName = regexp.MustCompile(`^[A-Z][A-Z0-9]{2}$`)

// HL7 parses ORU result messages. A file may hold several messages, each
// starting with an MSH segment; every message becomes one result.
type HL7 struct {
	loc *time.Location
	now func() time.Time
}

// NewHL7 creates an HL7 parser. Timestamps without offset are read in loc.
func NewHL7(loc *time.Location) *HL7 {
	if loc == nil {
		loc = time.Local
	}
	return &HL7{loc: loc, now: time.Now}
}

// Format implements core.Parser.
func (p *HL7) Format() core.Format { return core.FormatHL7 }

// Parse implements core.Parser.
func (p *HL7) Parse(path string, content []byte) ([]*core.LabResult, error) {
	text, err := core.DecodeText(content)
	if err != nil {
		return nil, fmt.Errorf("invalid hl7: %s: %w", path, err)
	}
	messages, err := splitMessages(string(text))
	if err != nil {
		return nil, fmt.Errorf("invalid hl7: %s: %w", path, err)
	}

	announced := p.now()
	results := make([]*core.LabResult, 0, len(messages))
	for _, msg := range messages {
		results = append(results, p.convert(msg, announced))
	}
	return results, nil
}

// segment is one parsed line. fields[n] is field n of the segment, so for MSH
// fields[1] is the field separator itself as in the standard's numbering.
type segment struct {
	name   string
	fields []string
}

func (s segment) field(n int) string {
	if n < len(s.fields) {
		return s.fields[n]
	}
	return ""
}

type message struct {
	segments  []segment
	component string
}

func (m message) each(name string, fn func(segment)) {
	for _, s := range m.segments {
		if s.name == name {
			fn(s)
		}
	}
}

// components splits a field into its components. Component numbering in the
// standard is 1-based; the returned slice is 0-based.
func (m message) components(field string) []string {
	return strings.Split(field, m.component)
}

func splitMessages(text string) ([]message, error) {
	text = strings.TrimPrefix(text, "\ufeff")
	lines := strings.FieldsFunc(text, func(r rune) bool { return r == '\r' || r == '\n' })

	var (
		messages []message
		current  *message
		fieldSep = "|"
	)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) < 3 || !segmentName.MatchString(line[:3]) {
			continue
		}

		if strings.HasPrefix(line, "MSH") {
			if len(line) < 8 {
				return nil, fmt.Errorf("truncated MSH segment %q", line)
			}
			fieldSep = line[3:4]
			encoding := line[4:8]
			messages = append(messages, message{component: encoding[:1]})
			current = &messages[len(messages)-1]

			// MSH-1 is the separator, so shift by one to keep standard numbering.
			fields := append([]string{"MSH", fieldSep}, strings.Split(line[4:], fieldSep)...)
			current.segments = append(current.segments, segment{name: "MSH", fields: fields})
			continue
		}
		if current == nil {
			continue
		}

		fields := strings.Split(line, fieldSep)
		current.segments = append(current.segments, segment{name: fields[0], fields: fields})
	}

	if len(messages) == 0 {
		return nil, fmt.Errorf("no MSH segment")
	}
	return messages, nil
}

func (p *HL7) convert(m message, announced time.Time) *core.LabResult {
	res := &core.LabResult{}

	m.each("PID", func(s segment) {
		name := m.components(s.field(pidPatientName))
		if len(name) < 2 || name[1] == "" {
			return
		}
		res.ID = strings.ToUpper(strings.TrimPrefix(name[1], ", "))
	})

	m.each("ORC", func(s segment) {
		order := m.components(s.field(orcPlacerOrderNumber))[0]
		if id, err := strconv.ParseInt(strings.TrimSpace(order), 10, 64); err == nil {
			res.OrderID = &id
		}
	})

	m.each("OBX", func(s segment) {
		id := m.components(s.field(obxObservationID))
		obs := &core.LabObservation{
			Name:               component(id, 1),
			DateOfAnnouncement: &announced,
			LabName:            strPtr(HL7LabName),
		}
		if nameID, err := strconv.ParseInt(strings.TrimSpace(id[0]), 10, 64); err == nil {
			obs.NameID = nameID
		}

		// "value/pos" carries a quantitative and a qualitative part; a bare
		// value is qualitative only.
		value := strings.Split(s.field(obxObservationValue), "/")
		if len(value) > 1 {
			obs.ResultValue = nonEmpty(value[0])
			obs.ResultString = strPtr(qualitative(value[1]))
		} else {
			obs.ResultString = strPtr(qualitative(value[0]))
		}
		res.Observations = append(res.Observations, obs)
	})

	m.each("OBR", func(s segment) {
		if res.PerformingDoctor == nil {
			res.PerformingDoctor = nonEmpty(m.components(s.field(obrResultInterpreter))[0])
		}
		if len(res.Observations) == 0 {
			return
		}
		first := res.Observations[0]

		if material := component(m.components(s.field(obrUniversalServiceID)), 4); material != "" && first.Material == nil {
			for _, o := range res.Observations {
				o.Material = strPtr(material)
			}
		}
		if t, ok := parseHL7Time(s.field(obrStatusChange), p.loc); ok && first.DateOfAnalysis == nil {
			for _, o := range res.Observations {
				o.DateOfAnalysis = timePtr(t)
			}
		}
		if t, ok := parseHL7Time(s.field(obrSpecimenReceived), p.loc); ok && first.DateOfDelivery == nil {
			for _, o := range res.Observations {
				o.DateOfDelivery = timePtr(t)
			}
		}
	})

	m.each("NTE", func(s segment) {
		comment := nonEmpty(s.field(nteComment))
		if comment == nil {
			return
		}
		for _, o := range res.Observations {
			o.Comment = comment
		}
	})

	return res
}

func qualitative(s string) string {
	switch strings.TrimSpace(s) {
	case "neg":
		return "negativ"
	case "pos":
		return "positiv"
	default:
		return "NA"
	}
}

func component(parts []string, i int) string {
	if i < len(parts) {
		return strings.TrimSpace(parts[i])
	}
	return ""
}
