package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/labimport/internal/core"
)

// hl7Segment builds a segment line with the given fields set by position.
func hl7Segment(name string, fields map[int]string) string {
	max := 0
	for n := range fields {
		if n > max {
			max = n
		}
	}
	parts := make([]string, max+1)
	parts[0] = name
	for n, v := range fields {
		parts[n] = v
	}
	return strings.Join(parts, "|")
}

const hl7Comment = "Mittels PCR konnten keine Genome nachgewiesen werden."

func hl7Message(sampleName, order string, observations ...string) string {
	lines := []string{
		`MSH|^~\&|LAB|MHH|PIA|HZI|201810231554||ORU^R01|4711|P|2.3`,
		hl7Segment("PID", map[int]string{1: "1", 5: sampleName}),
		hl7Segment("ORC", map[int]string{1: "RE", 2: order}),
		hl7Segment("OBR", map[int]string{
			1:  "1",
			2:  "1117136",
			4:  "g20469155^^^na^Nasenabstrich",
			14: "201810231244",
			22: "201810231554",
			32: "Schmitt",
		}),
	}
	for i, o := range observations {
		id, value, _ := strings.Cut(o, "=")
		lines = append(lines, hl7Segment("OBX", map[int]string{1: string(rune('1' + i)), 2: "ST", 3: id, 5: value}))
	}
	lines = append(lines, hl7Segment("NTE", map[int]string{1: "1", 3: hl7Comment}))
	return strings.Join(lines, "\r")
}

func fixedHL7(t *testing.T) (*HL7, time.Time) {
	t.Helper()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewHL7(time.UTC)
	p.now = func() time.Time { return now }
	return p, now
}

func TestHL7_Parse(t *testing.T) {
	p, now := fixedHL7(t)
	content := hl7Message("Mustermann^, test-12345679012", "1117136^LAB",
		"521035^Adenovirus-PCR=neg",
		"521036^HMPV-PCR=12.5/pos",
	)

	results, err := p.Parse("upload/M1.hl7", []byte(content))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}

	res := results[0]
	if res.ID != "TEST-12345679012" {
		t.Errorf("ID = %q", res.ID)
	}
	if res.OrderID == nil || *res.OrderID != 1117136 {
		t.Errorf("OrderID = %v, want 1117136", res.OrderID)
	}
	if res.PerformingDoctor == nil || *res.PerformingDoctor != "Schmitt" {
		t.Errorf("PerformingDoctor = %v", res.PerformingDoctor)
	}
	if len(res.Observations) != 2 {
		t.Fatalf("observations = %d, want 2", len(res.Observations))
	}

	analysis := time.Date(2018, 10, 23, 15, 54, 0, 0, time.UTC)
	delivery := time.Date(2018, 10, 23, 12, 44, 0, 0, time.UTC)

	tests := []struct {
		nameID       int64
		name         string
		resultValue  *string
		resultString string
	}{
		{521035, "Adenovirus-PCR", nil, "negativ"},
		{521036, "HMPV-PCR", strPtr("12.5"), "positiv"},
	}
	for i, tt := range tests {
		o := res.Observations[i]
		if o.NameID != tt.nameID || o.Name != tt.name {
			t.Errorf("obs[%d] = %d %q, want %d %q", i, o.NameID, o.Name, tt.nameID, tt.name)
		}
		if (o.ResultValue == nil) != (tt.resultValue == nil) ||
			(o.ResultValue != nil && *o.ResultValue != *tt.resultValue) {
			t.Errorf("obs[%d] ResultValue = %v, want %v", i, o.ResultValue, tt.resultValue)
		}
		if o.ResultString == nil || *o.ResultString != tt.resultString {
			t.Errorf("obs[%d] ResultString = %v, want %q", i, o.ResultString, tt.resultString)
		}
		if o.Material == nil || *o.Material != "Nasenabstrich" {
			t.Errorf("obs[%d] Material = %v", i, o.Material)
		}
		if o.DateOfAnalysis == nil || !o.DateOfAnalysis.Equal(analysis) {
			t.Errorf("obs[%d] DateOfAnalysis = %v, want %v", i, o.DateOfAnalysis, analysis)
		}
		if o.DateOfDelivery == nil || !o.DateOfDelivery.Equal(delivery) {
			t.Errorf("obs[%d] DateOfDelivery = %v, want %v", i, o.DateOfDelivery, delivery)
		}
		if o.DateOfAnnouncement == nil || !o.DateOfAnnouncement.Equal(now) {
			t.Errorf("obs[%d] DateOfAnnouncement = %v, want %v", i, o.DateOfAnnouncement, now)
		}
		if o.LabName == nil || *o.LabName != HL7LabName {
			t.Errorf("obs[%d] LabName = %v", i, o.LabName)
		}
		if o.Comment == nil || *o.Comment != hl7Comment {
			t.Errorf("obs[%d] Comment = %v", i, o.Comment)
		}
	}
}

func TestHL7_MultipleMessages(t *testing.T) {
	p, _ := fixedHL7(t)
	content := hl7Message("A^, TEST-12345679012", "1", "521035^Adenovirus-PCR=neg") + "\r\n" +
		hl7Message("B^TEST-12345679013", "2", "521036^HMPV-PCR=nB")

	results, err := p.Parse("M2.hl7", []byte(content))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].ID != "TEST-12345679012" || results[1].ID != "TEST-12345679013" {
		t.Errorf("ids = %q, %q", results[0].ID, results[1].ID)
	}
	if got := *results[1].Observations[0].ResultString; got != "NA" {
		t.Errorf("unknown qualitative value mapped to %q, want NA", got)
	}
	if *results[1].OrderID != 2 {
		t.Errorf("second OrderID = %d", *results[1].OrderID)
	}
}

func TestHL7_MissingSampleID(t *testing.T) {
	p, _ := fixedHL7(t)
	content := hl7Message("Mustermann", "1", "521035^Adenovirus-PCR=neg")

	results, err := p.Parse("M3.hl7", []byte(content))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(results) != 1 || results[0].ID != "" {
		t.Fatalf("want one result without id, got %+v", results)
	}
}

func TestHL7_Invalid(t *testing.T) {
	p, _ := fixedHL7(t)

	tests := []struct {
		name    string
		content string
	}{
		{name: "empty", content: ""},
		{name: "no header", content: "PID|1||||A^B\rOBX|1|ST|1^X||neg"},
		{name: "not hl7", content: "Proben-ID;Untersuchung\nX-1;IgG"},
		{name: "truncated header", content: "MSH|^~"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse("bad.hl7", []byte(tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if code := core.ErrorCode(err); code != "PAR001" {
				t.Errorf("ErrorCode = %q, want PAR001 (err: %v)", code, err)
			}
		})
	}
}

func TestHL7_CustomSeparators(t *testing.T) {
	p, _ := fixedHL7(t)
	content := strings.Join([]string{
		`MSH#$~\&#LAB#MHH`,
		"PID#1####Name$, X-9",
		"OBX#1#ST#7$Test##pos",
	}, "\n")

	results, err := p.Parse("custom.hl7", []byte(content))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if results[0].ID != "X-9" {
		t.Errorf("ID = %q, want X-9", results[0].ID)
	}
	o := results[0].Observations[0]
	if o.NameID != 7 || o.Name != "Test" || *o.ResultString != "positiv" {
		t.Errorf("observation = %d %q %q", o.NameID, o.Name, *o.ResultString)
	}
}
