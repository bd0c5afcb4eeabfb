// Package omop holds the OMOP CDM v5.4 target side of the research export:
// fixed row types per table, the identifier synthesizer, the pseudonymizer,
// the static concept resolver and the TSV accumulator.
package omop

import (
	"strconv"
	"time"
)

// Table names an OMOP CDM target table.
type Table string

const (
	TablePerson              Table = "person"
	TableObservationPeriod   Table = "observation_period"
	TableMeasurement         Table = "measurement"
	TableObservation         Table = "observation"
	TableDrugExposure        Table = "drug_exposure"
	TableConditionOccurrence Table = "condition_occurrence"
	TableVisitOccurrence     Table = "visit_occurrence"
	TableDeviceExposure      Table = "device_exposure"
	TableNote                Table = "note"
)

// allTables is the declared publication order.
var allTables = []Table{
	TablePerson,
	TableObservationPeriod,
	TableMeasurement,
	TableObservation,
	TableDrugExposure,
	TableConditionOccurrence,
	TableVisitOccurrence,
	TableDeviceExposure,
	TableNote,
}

// Tables returns every target table in declared order.
func Tables() []Table {
	out := make([]Table, len(allTables))
	copy(out, allTables)
	return out
}

var tableOffsets = map[Table]int{
	TableObservationPeriod:   0,
	TableMeasurement:         1,
	TableObservation:         2,
	TableDrugExposure:        3,
	TableConditionOccurrence: 4,
	TableVisitOccurrence:     5,
	TableDeviceExposure:      6,
	TableNote:                7,
}

// Offset is the fixed per-table component of synthesized ids.
func (t Table) Offset() int { return tableOffsets[t] }

// FileName is the published artifact name for the table.
func (t Table) FileName() string { return string(t) + ".tsv" }

func (t Table) String() string { return string(t) }

// Row is a single target-table record.
type Row interface {
	Table() Table
	Values() []string
}

var tableColumns = map[Table][]string{
	TablePerson: {
		"person_id", "gender_concept_id", "year_of_birth", "month_of_birth", "day_of_birth",
		"birth_datetime", "race_concept_id", "ethnicity_concept_id",
		"person_source_value", "gender_source_value", "gender_source_concept_id",
	},
	TableObservationPeriod: {
		"observation_period_id", "person_id", "observation_period_start_date",
		"observation_period_end_date", "period_type_concept_id",
	},
	TableMeasurement: {
		"measurement_id", "person_id", "measurement_concept_id", "measurement_date",
		"measurement_datetime", "measurement_type_concept_id", "value_as_number",
		"unit_concept_id", "measurement_source_value", "unit_source_value", "value_source_value",
	},
	TableObservation: {
		"observation_id", "person_id", "observation_concept_id", "observation_date",
		"observation_datetime", "observation_type_concept_id", "value_as_number",
		"value_as_string", "value_as_concept_id", "observation_source_value", "value_source_value",
	},
	TableDrugExposure: {
		"drug_exposure_id", "person_id", "drug_concept_id", "drug_exposure_start_date",
		"drug_exposure_start_datetime", "drug_exposure_end_date", "drug_exposure_end_datetime",
		"drug_type_concept_id", "stop_reason", "quantity", "sig",
		"drug_source_value", "route_source_value", "dose_unit_source_value",
	},
	TableConditionOccurrence: {
		"condition_occurrence_id", "person_id", "condition_concept_id", "condition_start_date",
		"condition_start_datetime", "condition_end_date", "condition_end_datetime",
		"condition_type_concept_id", "condition_status_concept_id",
		"condition_source_value", "condition_status_source_value",
	},
	TableVisitOccurrence: {
		"visit_occurrence_id", "person_id", "visit_concept_id", "visit_start_date",
		"visit_start_datetime", "visit_end_date", "visit_end_datetime",
		"visit_type_concept_id", "visit_source_value",
	},
	TableDeviceExposure: {
		"device_exposure_id", "person_id", "device_concept_id", "device_exposure_start_date",
		"device_exposure_start_datetime", "device_exposure_end_date", "device_exposure_end_datetime",
		"device_type_concept_id", "device_source_value",
	},
	TableNote: {
		"note_id", "person_id", "note_date", "note_datetime", "note_type_concept_id",
		"note_class_concept_id", "note_title", "note_text", "encoding_concept_id",
		"language_concept_id", "note_source_value",
	},
}

// Columns returns the declared column order for a table.
func Columns(t Table) []string {
	cols := tableColumns[t]
	out := make([]string, len(cols))
	copy(out, cols)
	return out
}

// Person is keyed by the person surrogate id itself.
type Person struct {
	PersonID              int64
	GenderConceptID       int64
	YearOfBirth           *int
	MonthOfBirth          *int
	DayOfBirth            *int
	BirthDatetime         *time.Time
	RaceConceptID         int64
	EthnicityConceptID    int64
	PersonSourceValue     string
	GenderSourceValue     string
	GenderSourceConceptID int64
}

func (Person) Table() Table { return TablePerson }

func (r Person) Values() []string {
	return []string{
		fmtInt(r.PersonID), fmtInt(r.GenderConceptID), fmtOptInt(r.YearOfBirth),
		fmtOptInt(r.MonthOfBirth), fmtOptInt(r.DayOfBirth), fmtOptDatetime(r.BirthDatetime),
		fmtInt(r.RaceConceptID), fmtInt(r.EthnicityConceptID),
		r.PersonSourceValue, r.GenderSourceValue, fmtInt(r.GenderSourceConceptID),
	}
}

type ObservationPeriod struct {
	ObservationPeriodID int64
	PersonID            int64
	StartDate           time.Time
	EndDate             time.Time
	PeriodTypeConceptID int64
}

func (ObservationPeriod) Table() Table { return TableObservationPeriod }

func (r ObservationPeriod) Values() []string {
	return []string{
		fmtInt(r.ObservationPeriodID), fmtInt(r.PersonID), fmtDate(r.StartDate),
		fmtDate(r.EndDate), fmtInt(r.PeriodTypeConceptID),
	}
}

type Measurement struct {
	MeasurementID    int64
	PersonID         int64
	ConceptID        int64
	Datetime         time.Time
	TypeConceptID    int64
	ValueAsNumber    *float64
	UnitConceptID    int64
	SourceValue      string
	UnitSourceValue  string
	ValueSourceValue string
}

func (Measurement) Table() Table { return TableMeasurement }

func (r Measurement) Values() []string {
	return []string{
		fmtInt(r.MeasurementID), fmtInt(r.PersonID), fmtInt(r.ConceptID), fmtDate(r.Datetime),
		fmtDatetime(r.Datetime), fmtInt(r.TypeConceptID), fmtOptFloat(r.ValueAsNumber),
		fmtInt(r.UnitConceptID), r.SourceValue, r.UnitSourceValue, r.ValueSourceValue,
	}
}

type Observation struct {
	ObservationID    int64
	PersonID         int64
	ConceptID        int64
	Datetime         time.Time
	TypeConceptID    int64
	ValueAsNumber    *float64
	ValueAsString    string
	ValueAsConceptID int64
	SourceValue      string
	ValueSourceValue string
}

func (Observation) Table() Table { return TableObservation }

func (r Observation) Values() []string {
	return []string{
		fmtInt(r.ObservationID), fmtInt(r.PersonID), fmtInt(r.ConceptID), fmtDate(r.Datetime),
		fmtDatetime(r.Datetime), fmtInt(r.TypeConceptID), fmtOptFloat(r.ValueAsNumber),
		r.ValueAsString, fmtInt(r.ValueAsConceptID), r.SourceValue, r.ValueSourceValue,
	}
}

type DrugExposure struct {
	DrugExposureID      int64
	PersonID            int64
	ConceptID           int64
	Start               time.Time
	End                 *time.Time
	TypeConceptID       int64
	StopReason          string
	Quantity            *float64
	Sig                 string
	SourceValue         string
	RouteSourceValue    string
	DoseUnitSourceValue string
}

func (DrugExposure) Table() Table { return TableDrugExposure }

func (r DrugExposure) Values() []string {
	return []string{
		fmtInt(r.DrugExposureID), fmtInt(r.PersonID), fmtInt(r.ConceptID), fmtDate(r.Start),
		fmtDatetime(r.Start), fmtOptDate(r.End), fmtOptDatetime(r.End),
		fmtInt(r.TypeConceptID), r.StopReason, fmtOptFloat(r.Quantity), r.Sig,
		r.SourceValue, r.RouteSourceValue, r.DoseUnitSourceValue,
	}
}

type ConditionOccurrence struct {
	ConditionOccurrenceID int64
	PersonID              int64
	ConceptID             int64
	Start                 time.Time
	End                   *time.Time
	TypeConceptID         int64
	StatusConceptID       int64
	SourceValue           string
	StatusSourceValue     string
}

func (ConditionOccurrence) Table() Table { return TableConditionOccurrence }

func (r ConditionOccurrence) Values() []string {
	return []string{
		fmtInt(r.ConditionOccurrenceID), fmtInt(r.PersonID), fmtInt(r.ConceptID), fmtDate(r.Start),
		fmtDatetime(r.Start), fmtOptDate(r.End), fmtOptDatetime(r.End),
		fmtInt(r.TypeConceptID), fmtInt(r.StatusConceptID), r.SourceValue, r.StatusSourceValue,
	}
}

type VisitOccurrence struct {
	VisitOccurrenceID int64
	PersonID          int64
	ConceptID         int64
	Start             time.Time
	End               time.Time
	TypeConceptID     int64
	SourceValue       string
}

func (VisitOccurrence) Table() Table { return TableVisitOccurrence }

func (r VisitOccurrence) Values() []string {
	return []string{
		fmtInt(r.VisitOccurrenceID), fmtInt(r.PersonID), fmtInt(r.ConceptID), fmtDate(r.Start),
		fmtDatetime(r.Start), fmtDate(r.End), fmtDatetime(r.End),
		fmtInt(r.TypeConceptID), r.SourceValue,
	}
}

type DeviceExposure struct {
	DeviceExposureID int64
	PersonID         int64
	ConceptID        int64
	Start            time.Time
	End              *time.Time
	TypeConceptID    int64
	SourceValue      string
}

func (DeviceExposure) Table() Table { return TableDeviceExposure }

func (r DeviceExposure) Values() []string {
	return []string{
		fmtInt(r.DeviceExposureID), fmtInt(r.PersonID), fmtInt(r.ConceptID), fmtDate(r.Start),
		fmtDatetime(r.Start), fmtOptDate(r.End), fmtOptDatetime(r.End),
		fmtInt(r.TypeConceptID), r.SourceValue,
	}
}

type Note struct {
	NoteID            int64
	PersonID          int64
	Datetime          time.Time
	TypeConceptID     int64
	ClassConceptID    int64
	Title             string
	Text              string
	EncodingConceptID int64
	LanguageConceptID int64
	SourceValue       string
}

func (Note) Table() Table { return TableNote }

func (r Note) Values() []string {
	return []string{
		fmtInt(r.NoteID), fmtInt(r.PersonID), fmtDate(r.Datetime), fmtDatetime(r.Datetime),
		fmtInt(r.TypeConceptID), fmtInt(r.ClassConceptID), r.Title, r.Text,
		fmtInt(r.EncodingConceptID), fmtInt(r.LanguageConceptID), r.SourceValue,
	}
}

// Midnight normalises a date-only value to 00:00:00 UTC of the same day.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Truncate normalises a datetime to UTC at second precision.
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

const (
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02 15:04:05"
)

func fmtInt(v int64) string { return strconv.FormatInt(v, 10) }

func fmtOptInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func fmtOptFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func fmtDate(t time.Time) string { return t.Format(dateLayout) }

func fmtDatetime(t time.Time) string { return t.Format(datetimeLayout) }

func fmtOptDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return fmtDate(*t)
}

func fmtOptDatetime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return fmtDatetime(*t)
}
