package export

import (
	"strings"

	"github.com/ehr/omopexport/internal/platform/omop"
)

// MapPatient produces the Person row and one ObservationPeriod spanning the
// patient's record from creation to last update. The only patient reference
// written is the surrogate and the pseudonym of the source id; birth dates
// are reduced to year and month.
func MapPatient(p *Patient, personID int64, seq *omop.Sequencer, concepts *omop.ConceptResolver) ([]omop.Row, error) {
	if p.CreatedAt.IsZero() {
		return nil, missingDate(EntityPatient, p.ID, "created_at")
	}

	sex := strings.ToLower(strings.TrimSpace(p.Sex))
	genderKey := sex
	if genderKey == "" {
		genderKey = "unknown"
	}
	gender := concepts.Lookup(omop.DomainGender, genderKey)

	person := omop.Person{
		PersonID:           personID,
		GenderConceptID:    gender.ID,
		RaceConceptID:      omop.ConceptUnknown,
		EthnicityConceptID: omop.ConceptUnknown,
		PersonSourceValue:  omop.Pseudonymize(p.ID.String()),
		GenderSourceValue:  p.Sex,
	}
	if p.BirthDate != nil {
		year, month := p.BirthDate.Year(), int(p.BirthDate.Month())
		person.YearOfBirth = &year
		person.MonthOfBirth = &month
	}

	periodID, err := seq.Next(personID, omop.TableObservationPeriod)
	if err != nil {
		return nil, err
	}
	start := omop.Midnight(p.CreatedAt)
	end := omop.Midnight(p.UpdatedAt)
	if end.Before(start) {
		end = start
	}
	period := omop.ObservationPeriod{
		ObservationPeriodID: periodID,
		PersonID:            personID,
		StartDate:           start,
		EndDate:             end,
		PeriodTypeConceptID: omop.TypeEHR,
	}

	return []omop.Row{person, period}, nil
}
