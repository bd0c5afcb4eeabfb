package omop

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConcepts_Lookup(t *testing.T) {
	r := DefaultConcepts()

	c, ok := r.Resolve(DomainMeasurement, "daily_checkin.mood")
	if !ok {
		t.Fatal("expected mood concept")
	}
	if c.UnitConceptID == 0 || c.Unit == "" {
		t.Errorf("expected unit on mood concept, got %+v", c)
	}

	// Keys are case and whitespace insensitive.
	if _, ok := r.Resolve(DomainCondition, " f32.9 "); !ok {
		t.Error("expected ICD-10 lookup to ignore case and whitespace")
	}
}

func TestConceptResolver_UnknownFallsBackToSentinel(t *testing.T) {
	r := DefaultConcepts()
	c := r.Lookup(DomainDrug, "999999")
	if c.ID != ConceptUnknown {
		t.Errorf("expected unknown concept id 0, got %d", c.ID)
	}
	if c.Code != "999999" {
		t.Errorf("expected source code preserved, got %q", c.Code)
	}
}

func TestConceptResolver_WithOverrides(t *testing.T) {
	base := DefaultConcepts()
	doc := `
drug:
  "999999":
    concept_id: 123
    code: "999999"
    vocabulary: RxNorm
    name: trialdrug
measurement:
  daily_checkin.mood:
    concept_id: 777
    code: X-1
    vocabulary: Local
    name: Mood (local)
    unit: "{score}"
    unit_concept_id: 44777566
`
	r, err := base.WithOverrides(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("WithOverrides: %v", err)
	}
	if got := r.Lookup(DomainDrug, "999999").ID; got != 123 {
		t.Errorf("expected override drug concept 123, got %d", got)
	}
	if got := r.Lookup(DomainMeasurement, "daily_checkin.mood").ID; got != 777 {
		t.Errorf("expected overridden mood concept 777, got %d", got)
	}
	// The base resolver is left untouched.
	if got := base.Lookup(DomainDrug, "999999").ID; got != ConceptUnknown {
		t.Errorf("base resolver mutated: %d", got)
	}
	if r.Len(DomainDrug) != base.Len(DomainDrug)+1 {
		t.Errorf("expected one additional drug entry")
	}
}

func TestConceptResolver_UnknownDomainRejected(t *testing.T) {
	_, err := DefaultConcepts().WithOverrides(strings.NewReader("specimen:\n  x:\n    concept_id: 1\n"))
	if err == nil {
		t.Fatal("expected error for unknown domain")
	}
}

func TestLoadConcepts(t *testing.T) {
	r, err := LoadConcepts("")
	if err != nil {
		t.Fatalf("LoadConcepts(\"\"): %v", err)
	}
	if r.Len(DomainMeasurement) == 0 {
		t.Error("expected compiled-in measurement concepts")
	}

	path := filepath.Join(t.TempDir(), "concepts.yaml")
	if err := os.WriteFile(path, []byte("visit:\n  group_session:\n    concept_id: 9202\n    name: Outpatient Visit\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	r, err = LoadConcepts(path)
	if err != nil {
		t.Fatalf("LoadConcepts(%s): %v", path, err)
	}
	if got := r.Lookup(DomainVisit, "group_session").ID; got != 9202 {
		t.Errorf("expected 9202, got %d", got)
	}

	if _, err := LoadConcepts(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
