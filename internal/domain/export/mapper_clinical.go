package export

import (
	"strings"
	"time"

	"github.com/ehr/omopexport/internal/platform/omop"
)

// MapMedication emits one DrugExposure. The RxNorm code selects the concept
// and the medication name is kept as the source value.
func MapMedication(m *Medication, personID int64, seq *omop.Sequencer, concepts *omop.ConceptResolver) ([]omop.Row, error) {
	if m.StartDate.IsZero() {
		return nil, missingDate(EntityMedication, m.ID, "start_date")
	}
	id, err := seq.Next(personID, omop.TableDrugExposure)
	if err != nil {
		return nil, err
	}

	row := omop.DrugExposure{
		DrugExposureID:      id,
		PersonID:            personID,
		ConceptID:           concepts.Lookup(omop.DomainDrug, m.RxNormCode).ID,
		Start:               omop.Midnight(m.StartDate),
		TypeConceptID:       omop.TypeEHR,
		StopReason:          m.StopReason,
		Quantity:            m.Dose,
		Sig:                 m.Frequency,
		SourceValue:         m.Name,
		RouteSourceValue:    m.Route,
		DoseUnitSourceValue: m.DoseUnit,
	}
	if m.EndDate != nil {
		end := omop.Midnight(*m.EndDate)
		row.End = &end
	}
	return []omop.Row{row}, nil
}

// MapDiagnosis emits one ConditionOccurrence keyed on the ICD-10 code.
func MapDiagnosis(d *Diagnosis, personID int64, seq *omop.Sequencer, concepts *omop.ConceptResolver) ([]omop.Row, error) {
	if d.OnsetDate.IsZero() {
		return nil, missingDate(EntityDiagnosis, d.ID, "onset_date")
	}
	id, err := seq.Next(personID, omop.TableConditionOccurrence)
	if err != nil {
		return nil, err
	}

	row := omop.ConditionOccurrence{
		ConditionOccurrenceID: id,
		PersonID:              personID,
		ConceptID:             concepts.Lookup(omop.DomainCondition, d.ICD10Code).ID,
		Start:                 omop.Midnight(d.OnsetDate),
		TypeConceptID:         omop.TypeEHR,
		StatusConceptID:       concepts.Lookup(omop.DomainConditionStatus, d.Status).ID,
		SourceValue:           d.ICD10Code,
		StatusSourceValue:     d.Status,
	}
	if d.ResolvedDate != nil {
		end := omop.Midnight(*d.ResolvedDate)
		row.End = &end
	}
	return []omop.Row{row}, nil
}

// AppointmentCompleted is the only appointment status exported as a visit.
const AppointmentCompleted = "completed"

// MapAppointment emits a VisitOccurrence for completed appointments and
// nothing for any other status.
func MapAppointment(a *Appointment, personID int64, seq *omop.Sequencer, concepts *omop.ConceptResolver) ([]omop.Row, error) {
	if !strings.EqualFold(strings.TrimSpace(a.Status), AppointmentCompleted) {
		return nil, nil
	}
	if a.ScheduledAt.IsZero() {
		return nil, missingDate(EntityAppointment, a.ID, "scheduled_at")
	}
	id, err := seq.Next(personID, omop.TableVisitOccurrence)
	if err != nil {
		return nil, err
	}

	start := omop.Truncate(a.ScheduledAt)
	end := start
	if a.DurationMinutes > 0 {
		end = start.Add(time.Duration(a.DurationMinutes) * time.Minute)
	}
	return []omop.Row{omop.VisitOccurrence{
		VisitOccurrenceID: id,
		PersonID:          personID,
		ConceptID:         concepts.Lookup(omop.DomainVisit, a.AppointmentType).ID,
		Start:             start,
		End:               end,
		TypeConceptID:     omop.TypeEHR,
		SourceValue:       a.AppointmentType,
	}}, nil
}
