package omop

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConceptUnknown is the sentinel used when a source code has no mapping.
// The original code is still written to the row's source value.
const ConceptUnknown int64 = 0

// Type, class and encoding concepts stamped on rows for provenance, plus the
// answer concept used for boolean observations.
const (
	TypeEHR               int64 = 32817
	TypePatientSelfReport int64 = 32865
	TypeSurvey            int64 = 32862
	TypeDeviceDerived     int64 = 32880

	NoteClassPatientNote int64 = 44814645
	EncodingUTF8         int64 = 32678
	LanguageEnglish      int64 = 4180186
	AnswerYes            int64 = 4188539
)

// Domain groups concept lookups by the kind of source key.
type Domain string

const (
	DomainGender          Domain = "gender"
	DomainMeasurement     Domain = "measurement"
	DomainObservation     Domain = "observation"
	DomainDrug            Domain = "drug"
	DomainCondition       Domain = "condition"
	DomainConditionStatus Domain = "condition_status"
	DomainVisit           Domain = "visit"
	DomainDevice          Domain = "device"
)

// Concept is one static vocabulary entry.
type Concept struct {
	ID            int64  `yaml:"concept_id"`
	Code          string `yaml:"code"`
	Vocabulary    string `yaml:"vocabulary"`
	Name          string `yaml:"name"`
	Unit          string `yaml:"unit,omitempty"`
	UnitConceptID int64  `yaml:"unit_concept_id,omitempty"`
}

// ConceptResolver maps source fields and codes to standard concepts. It is
// read-only once built and safe for concurrent lookups.
type ConceptResolver struct {
	byDomain map[Domain]map[string]Concept
}

// NewConceptResolver builds a resolver from domain -> source key -> concept.
func NewConceptResolver(entries map[Domain]map[string]Concept) *ConceptResolver {
	r := &ConceptResolver{byDomain: make(map[Domain]map[string]Concept, len(entries))}
	r.merge(entries)
	return r
}

// DefaultConcepts returns a resolver over the compiled-in dictionary.
func DefaultConcepts() *ConceptResolver {
	return NewConceptResolver(defaultConceptTable)
}

func (r *ConceptResolver) merge(entries map[Domain]map[string]Concept) {
	for domain, byKey := range entries {
		dst, ok := r.byDomain[domain]
		if !ok {
			dst = make(map[string]Concept, len(byKey))
			r.byDomain[domain] = dst
		}
		for key, c := range byKey {
			dst[normalizeKey(key)] = c
		}
	}
}

// Resolve returns the concept for a source key and whether it was found.
func (r *ConceptResolver) Resolve(domain Domain, key string) (Concept, bool) {
	c, ok := r.byDomain[domain][normalizeKey(key)]
	return c, ok
}

// Lookup is Resolve with the unknown-concept fallback applied.
func (r *ConceptResolver) Lookup(domain Domain, key string) Concept {
	if c, ok := r.Resolve(domain, key); ok {
		return c
	}
	return Concept{ID: ConceptUnknown, Code: key}
}

// Len reports the number of entries in a domain.
func (r *ConceptResolver) Len(domain Domain) int {
	return len(r.byDomain[domain])
}

// WithOverrides returns a copy of r with the YAML dictionary read from src
// layered on top. Entries in src replace compiled-in entries with the same
// domain and key.
func (r *ConceptResolver) WithOverrides(src io.Reader) (*ConceptResolver, error) {
	var raw map[string]map[string]Concept
	if err := yaml.NewDecoder(src).Decode(&raw); err != nil {
		if err == io.EOF {
			return r.clone(), nil
		}
		return nil, fmt.Errorf("decode concept dictionary: %w", err)
	}
	overrides := make(map[Domain]map[string]Concept, len(raw))
	for domain, byKey := range raw {
		if !knownDomains[Domain(domain)] {
			return nil, fmt.Errorf("concept dictionary: unknown domain %q", domain)
		}
		overrides[Domain(domain)] = byKey
	}
	out := r.clone()
	out.merge(overrides)
	return out, nil
}

// LoadConcepts returns the default dictionary, overridden by the YAML file at
// path when path is non-empty.
func LoadConcepts(path string) (*ConceptResolver, error) {
	base := DefaultConcepts()
	if path == "" {
		return base, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open concept dictionary: %w", err)
	}
	defer f.Close()
	return base.WithOverrides(f)
}

func (r *ConceptResolver) clone() *ConceptResolver {
	out := &ConceptResolver{byDomain: make(map[Domain]map[string]Concept, len(r.byDomain))}
	for domain, byKey := range r.byDomain {
		cp := make(map[string]Concept, len(byKey))
		for k, v := range byKey {
			cp[k] = v
		}
		out.byDomain[domain] = cp
	}
	return out
}

var knownDomains = map[Domain]bool{
	DomainGender: true, DomainMeasurement: true, DomainObservation: true,
	DomainDrug: true, DomainCondition: true, DomainConditionStatus: true,
	DomainVisit: true, DomainDevice: true,
}

func normalizeKey(k string) string {
	return strings.ToUpper(strings.TrimSpace(k))
}
