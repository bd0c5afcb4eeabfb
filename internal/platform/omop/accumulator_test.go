package omop

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
)

type shortRow struct{}

func (shortRow) Table() Table     { return TableNote }
func (shortRow) Values() []string { return []string{"1", "2"} }

func ptrFloat(v float64) *float64 { return &v }

func sampleMeasurements() []Row {
	return []Row{
		Measurement{
			MeasurementID: 42_100_000, PersonID: 42, ConceptID: 40758426,
			Datetime: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), TypeConceptID: TypePatientSelfReport,
			ValueAsNumber: ptrFloat(7), UnitConceptID: 44777566,
			SourceValue: "daily_checkin.mood", UnitSourceValue: "{score}", ValueSourceValue: "7",
		},
		Measurement{
			MeasurementID: 42_100_001, PersonID: 42, ConceptID: ConceptUnknown,
			Datetime: time.Date(2024, 3, 6, 8, 30, 15, 0, time.UTC), TypeConceptID: TypePatientSelfReport,
			ValueAsNumber: ptrFloat(6.5),
			SourceValue: "daily_checkin.custom\tfield", ValueSourceValue: "6.5",
		},
	}
}

func TestAccumulator_GoldenMeasurementTable(t *testing.T) {
	acc := NewAccumulator()
	if err := acc.Add(sampleMeasurements()...); err != nil {
		t.Fatalf("Add: %v", err)
	}
	data, ok := acc.Bytes(TableMeasurement)
	if !ok {
		t.Fatal("expected measurement data")
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "measurement_table", data)
}

func TestAccumulator_CountsAndEmptyTables(t *testing.T) {
	acc := NewAccumulator()
	if err := acc.Add(sampleMeasurements()...); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := acc.Add(Note{NoteID: 42_700_000, PersonID: 42, Datetime: time.Now().UTC()}); err != nil {
		t.Fatalf("Add note: %v", err)
	}

	if got := acc.Count(TableMeasurement); got != 2 {
		t.Errorf("expected 2 measurements, got %d", got)
	}
	if _, ok := acc.Bytes(TablePerson); ok {
		t.Error("expected no data for empty person table")
	}
	tables := acc.Tables()
	if len(tables) != 2 || tables[0] != TableMeasurement || tables[1] != TableNote {
		t.Errorf("expected [measurement note] in declared order, got %v", tables)
	}
	counts := acc.Counts()
	if len(counts) != len(Tables()) {
		t.Errorf("expected a count for every table, got %d", len(counts))
	}
	if counts["note"] != 1 || counts["person"] != 0 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestAccumulator_RejectsColumnMismatch(t *testing.T) {
	acc := NewAccumulator()
	err := acc.Add(shortRow{})
	if !errors.Is(err, ErrColumnMismatch) {
		t.Fatalf("expected ErrColumnMismatch, got %v", err)
	}
}

func TestTSV_RoundTrip(t *testing.T) {
	acc := NewAccumulator()
	note := Note{
		NoteID:            3_700_000,
		PersonID:          3,
		Datetime:          time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		TypeConceptID:     TypePatientSelfReport,
		ClassConceptID:    NoteClassPatientNote,
		Title:             "Rough\tday",
		Text:              "Line one\r\nLine two\nend",
		EncodingConceptID: EncodingUTF8,
		LanguageConceptID: LanguageEnglish,
		SourceValue:       "journal_entry",
	}
	if err := acc.Add(note); err != nil {
		t.Fatalf("Add: %v", err)
	}
	data, _ := acc.Bytes(TableNote)

	header, rows, err := ReadTSV(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadTSV: %v", err)
	}
	if strings.Join(header, ",") != strings.Join(Columns(TableNote), ",") {
		t.Errorf("header mismatch: %v", header)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	want := note.Values()
	for i := range want {
		if rows[0][i] != SanitizeField(want[i]) {
			t.Errorf("column %s: got %q want %q", header[i], rows[0][i], SanitizeField(want[i]))
		}
	}
	if rows[0][6] != "Roughday" || rows[0][7] != "Line oneLine twoend" {
		t.Errorf("expected tab/CR/LF stripped, got %q / %q", rows[0][6], rows[0][7])
	}
}

func TestTSV_NullAndEmptyRenderIdentically(t *testing.T) {
	withNil := Measurement{MeasurementID: 1, PersonID: 1, Datetime: time.Unix(0, 0).UTC()}
	withEmpty := withNil
	withEmpty.SourceValue = ""
	a, b := withNil.Values(), withEmpty.Values()
	if a[6] != "" {
		t.Errorf("nil value_as_number should render empty, got %q", a[6])
	}
	if strings.Join(a, "\t") != strings.Join(b, "\t") {
		t.Error("nil and empty values rendered differently")
	}
}

func TestReadTSV_Errors(t *testing.T) {
	if _, _, err := ReadTSV(strings.NewReader("")); err == nil {
		t.Error("expected error for missing header")
	}
	if _, _, err := ReadTSV(strings.NewReader("a\tb\n1\n")); err == nil {
		t.Error("expected error for short row")
	}
}

func TestMidnightAndTruncate(t *testing.T) {
	in := time.Date(2024, 5, 6, 23, 59, 59, 987654321, time.UTC)
	if got := Midnight(in); !got.Equal(time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Midnight = %v", got)
	}
	if got := Truncate(in); got.Nanosecond() != 0 || got.Second() != 59 {
		t.Errorf("Truncate = %v", got)
	}
}
