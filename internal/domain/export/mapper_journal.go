package export

import "github.com/ehr/omopexport/internal/platform/omop"

// MapJournalEntry emits one Note holding the entry's title and body.
func MapJournalEntry(j *JournalEntry, personID int64, seq *omop.Sequencer, _ *omop.ConceptResolver) ([]omop.Row, error) {
	if j.WrittenAt.IsZero() {
		return nil, missingDate(EntityJournalEntry, j.ID, "written_at")
	}
	id, err := seq.Next(personID, omop.TableNote)
	if err != nil {
		return nil, err
	}
	return []omop.Row{omop.Note{
		NoteID:            id,
		PersonID:          personID,
		Datetime:          omop.Truncate(j.WrittenAt),
		TypeConceptID:     omop.TypePatientSelfReport,
		ClassConceptID:    omop.NoteClassPatientNote,
		Title:             j.Title,
		Text:              j.Body,
		EncodingConceptID: omop.EncodingUTF8,
		LanguageConceptID: omop.LanguageEnglish,
		SourceValue:       string(EntityJournalEntry),
	}}, nil
}
