package export

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ehr/omopexport/internal/platform/omop"
)

// ErrMissingEventDate is returned by a mapper when the row lacks the date
// its target rows are anchored on.
var ErrMissingEventDate = errors.New("source row is missing its event date")

func missingDate(entity EntityType, id fmt.Stringer, field string) error {
	return fmt.Errorf("%s %s: %s: %w", entity, id, field, ErrMissingEventDate)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// numericField pairs a concept source key with the accessor for its value.
type numericField[T any] struct {
	key   string
	value func(T) *float64
}

type flagField[T any] struct {
	key   string
	value func(T) *bool
}

func newMeasurement(seq *omop.Sequencer, personID int64, c omop.Concept, at time.Time, typeConcept int64, v float64, sourceKey string) (omop.Measurement, error) {
	id, err := seq.Next(personID, omop.TableMeasurement)
	if err != nil {
		return omop.Measurement{}, err
	}
	return omop.Measurement{
		MeasurementID:    id,
		PersonID:         personID,
		ConceptID:        c.ID,
		Datetime:         at,
		TypeConceptID:    typeConcept,
		ValueAsNumber:    &v,
		UnitConceptID:    c.UnitConceptID,
		SourceValue:      sourceKey,
		UnitSourceValue:  c.Unit,
		ValueSourceValue: formatNumber(v),
	}, nil
}

func newFlagObservation(seq *omop.Sequencer, personID int64, c omop.Concept, at time.Time, sourceKey string) (omop.Observation, error) {
	id, err := seq.Next(personID, omop.TableObservation)
	if err != nil {
		return omop.Observation{}, err
	}
	return omop.Observation{
		ObservationID:    id,
		PersonID:         personID,
		ConceptID:        c.ID,
		Datetime:         at,
		TypeConceptID:    omop.TypePatientSelfReport,
		ValueAsConceptID: omop.AnswerYes,
		SourceValue:      sourceKey,
		ValueSourceValue: "true",
	}, nil
}

// mapNumericFields emits one Measurement per non-nil field, in field order.
func mapNumericFields[T any](row T, fields []numericField[T], entity EntityType, personID int64, at time.Time, typeConcept int64, seq *omop.Sequencer, concepts *omop.ConceptResolver) ([]omop.Row, error) {
	var out []omop.Row
	for _, f := range fields {
		v := f.value(row)
		if v == nil {
			continue
		}
		key := string(entity) + "." + f.key
		m, err := newMeasurement(seq, personID, concepts.Lookup(omop.DomainMeasurement, key), at, typeConcept, *v, key)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
