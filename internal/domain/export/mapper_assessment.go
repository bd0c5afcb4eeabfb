package export

import (
	"strings"

	"github.com/ehr/omopexport/internal/platform/omop"
)

// MapAssessment emits a Measurement for the total score and an Observation
// carrying the severity band as text. Either is skipped when absent.
func MapAssessment(a *Assessment, personID int64, seq *omop.Sequencer, concepts *omop.ConceptResolver) ([]omop.Row, error) {
	if a.CompletedAt.IsZero() {
		return nil, missingDate(EntityAssessment, a.ID, "completed_at")
	}
	at := omop.Truncate(a.CompletedAt)
	instrument := strings.TrimSpace(a.Instrument)
	key := string(EntityAssessment) + "." + instrument

	var out []omop.Row
	if a.TotalScore != nil {
		m, err := newMeasurement(seq, personID, concepts.Lookup(omop.DomainMeasurement, key), at, omop.TypeSurvey, *a.TotalScore, key)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}

	if severity := strings.TrimSpace(a.Severity); severity != "" {
		sevKey := key + ".severity"
		id, err := seq.Next(personID, omop.TableObservation)
		if err != nil {
			return nil, err
		}
		out = append(out, omop.Observation{
			ObservationID:    id,
			PersonID:         personID,
			ConceptID:        concepts.Lookup(omop.DomainObservation, sevKey).ID,
			Datetime:         at,
			TypeConceptID:    omop.TypeSurvey,
			ValueAsString:    severity,
			SourceValue:      sevKey,
			ValueSourceValue: severity,
		})
	}
	return out, nil
}
