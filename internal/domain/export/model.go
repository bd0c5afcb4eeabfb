package export

import (
	"time"

	"github.com/google/uuid"
)

// EntityType names one source entity tracked by its own high-water mark.
type EntityType string

const (
	EntityPatient       EntityType = "patient"
	EntityDailyCheckIn  EntityType = "daily_checkin"
	EntityAssessment    EntityType = "assessment"
	EntityMedication    EntityType = "medication"
	EntityDiagnosis     EntityType = "diagnosis"
	EntityAppointment   EntityType = "appointment"
	EntityPassiveHealth EntityType = "passive_health_snapshot"
	EntityJournalEntry  EntityType = "journal_entry"
)

var entityTypes = []EntityType{
	EntityPatient,
	EntityDailyCheckIn,
	EntityAssessment,
	EntityMedication,
	EntityDiagnosis,
	EntityAppointment,
	EntityPassiveHealth,
	EntityJournalEntry,
}

// EntityTypes returns every source entity type in extraction order.
func EntityTypes() []EntityType {
	out := make([]EntityType, len(entityTypes))
	copy(out, entityTypes)
	return out
}

// EpochFloor is the lower bound used for an entity with no recorded mark.
var EpochFloor = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// HighWaterMarks holds the last successfully exported instant per entity.
type HighWaterMarks map[EntityType]time.Time

// Since returns the mark for an entity, or EpochFloor when none is recorded.
func (m HighWaterMarks) Since(e EntityType) time.Time {
	if t, ok := m[e]; ok && !t.IsZero() {
		return t
	}
	return EpochFloor
}

// FloorMarks returns marks with every entity at EpochFloor.
func FloorMarks() HighWaterMarks {
	out := make(HighWaterMarks, len(entityTypes))
	for _, e := range entityTypes {
		out[e] = EpochFloor
	}
	return out
}

// StampedMarks returns marks with every entity set to at.
func StampedMarks(at time.Time) HighWaterMarks {
	out := make(HighWaterMarks, len(entityTypes))
	for _, e := range entityTypes {
		out[e] = at
	}
	return out
}

// Window is the half-open extraction interval (Since, Until].
type Window struct {
	Since time.Time
	Until time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return t.After(w.Since) && !t.After(w.Until)
}

// -- Export job --

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

type TriggerSource string

const (
	TriggerNightly TriggerSource = "nightly"
	TriggerManual  TriggerSource = "manual"
)

// Valid reports whether s is a known trigger source.
func (s TriggerSource) Valid() bool {
	return s == TriggerNightly || s == TriggerManual
}

// Trigger is the payload carried by the job queue.
type Trigger struct {
	ExportRunID uuid.UUID     `json:"export_run_id"`
	TriggeredBy TriggerSource `json:"triggered_by"`
	FullRefresh bool          `json:"full_refresh"`
}

// Job is the persisted record of one export run.
type Job struct {
	ID           uuid.UUID         `db:"id" json:"id"`
	Status       JobStatus         `db:"status" json:"status"`
	TriggeredBy  TriggerSource     `db:"triggered_by" json:"triggered_by"`
	FullRefresh  bool              `db:"full_refresh" json:"full_refresh"`
	RecordCounts map[string]int    `db:"record_counts" json:"record_counts"`
	FileURLs     map[string]string `db:"file_urls" json:"file_urls"`
	ErrorMessage *string           `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	StartedAt    *time.Time        `db:"started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
}

// Trigger returns the queue payload for this job.
func (j *Job) Trigger() Trigger {
	return Trigger{ExportRunID: j.ID, TriggeredBy: j.TriggeredBy, FullRefresh: j.FullRefresh}
}

// -- Source entities --

type Patient struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	PersonID  *int64     `db:"person_id" json:"person_id,omitempty"`
	Active    bool       `db:"active" json:"active"`
	BirthDate *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Sex       string     `db:"sex" json:"sex"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// DailyCheckIn is a patient's self-reported daily log. Numeric fields are
// nil when not answered; symptom flags are nil when not asked.
type DailyCheckIn struct {
	ID                uuid.UUID `db:"id" json:"id"`
	PatientID         uuid.UUID `db:"patient_id" json:"patient_id"`
	CheckInDate       time.Time `db:"check_in_date" json:"check_in_date"`
	Mood              *float64  `db:"mood" json:"mood,omitempty"`
	Energy            *float64  `db:"energy" json:"energy,omitempty"`
	Anxiety           *float64  `db:"anxiety" json:"anxiety,omitempty"`
	Stress            *float64  `db:"stress" json:"stress,omitempty"`
	PainLevel         *float64  `db:"pain_level" json:"pain_level,omitempty"`
	SleepHours        *float64  `db:"sleep_hours" json:"sleep_hours,omitempty"`
	SleepQuality      *float64  `db:"sleep_quality" json:"sleep_quality,omitempty"`
	Appetite          *float64  `db:"appetite" json:"appetite,omitempty"`
	Focus             *float64  `db:"focus" json:"focus,omitempty"`
	SocialInteraction *float64  `db:"social_interaction" json:"social_interaction,omitempty"`
	ExerciseMinutes   *float64  `db:"exercise_minutes" json:"exercise_minutes,omitempty"`
	WaterIntakeCups   *float64  `db:"water_intake_cups" json:"water_intake_cups,omitempty"`
	Headache          *bool     `db:"headache" json:"headache,omitempty"`
	Nausea            *bool     `db:"nausea" json:"nausea,omitempty"`
	Dizziness         *bool     `db:"dizziness" json:"dizziness,omitempty"`
	Fatigue           *bool     `db:"fatigue" json:"fatigue,omitempty"`
	Insomnia          *bool     `db:"insomnia" json:"insomnia,omitempty"`
	Palpitations      *bool     `db:"palpitations" json:"palpitations,omitempty"`
	ShortnessOfBreath *bool     `db:"shortness_of_breath" json:"shortness_of_breath,omitempty"`
	TookMedication    *bool     `db:"took_medication" json:"took_medication,omitempty"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

type Assessment struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	Instrument  string    `db:"instrument" json:"instrument"`
	TotalScore  *float64  `db:"total_score" json:"total_score,omitempty"`
	Severity    string    `db:"severity" json:"severity,omitempty"`
	CompletedAt time.Time `db:"completed_at" json:"completed_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

type Medication struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	PatientID  uuid.UUID  `db:"patient_id" json:"patient_id"`
	Name       string     `db:"name" json:"name"`
	RxNormCode string     `db:"rxnorm_code" json:"rxnorm_code,omitempty"`
	Dose       *float64   `db:"dose" json:"dose,omitempty"`
	DoseUnit   string     `db:"dose_unit" json:"dose_unit,omitempty"`
	Route      string     `db:"route" json:"route,omitempty"`
	Frequency  string     `db:"frequency" json:"frequency,omitempty"`
	StartDate  time.Time  `db:"start_date" json:"start_date"`
	EndDate    *time.Time `db:"end_date" json:"end_date,omitempty"`
	StopReason string     `db:"stop_reason" json:"stop_reason,omitempty"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

type Diagnosis struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	ICD10Code    string     `db:"icd10_code" json:"icd10_code"`
	Description  string     `db:"description" json:"description,omitempty"`
	OnsetDate    time.Time  `db:"onset_date" json:"onset_date"`
	ResolvedDate *time.Time `db:"resolved_date" json:"resolved_date,omitempty"`
	Status       string     `db:"status" json:"status"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

type Appointment struct {
	ID              uuid.UUID `db:"id" json:"id"`
	PatientID       uuid.UUID `db:"patient_id" json:"patient_id"`
	AppointmentType string    `db:"appointment_type" json:"appointment_type"`
	Status          string    `db:"status" json:"status"`
	ScheduledAt     time.Time `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// PassiveHealthSnapshot is a daily roll-up of wearable or phone sensor data.
type PassiveHealthSnapshot struct {
	ID               uuid.UUID `db:"id" json:"id"`
	PatientID        uuid.UUID `db:"patient_id" json:"patient_id"`
	SnapshotDate     time.Time `db:"snapshot_date" json:"snapshot_date"`
	DeviceType       string    `db:"device_type" json:"device_type,omitempty"`
	DeviceModel      string    `db:"device_model" json:"device_model,omitempty"`
	HeartRateAvg     *float64  `db:"heart_rate_avg" json:"heart_rate_avg,omitempty"`
	RestingHeartRate *float64  `db:"resting_heart_rate" json:"resting_heart_rate,omitempty"`
	HRVMs            *float64  `db:"hrv_ms" json:"hrv_ms,omitempty"`
	Steps            *float64  `db:"steps" json:"steps,omitempty"`
	ActiveMinutes    *float64  `db:"active_minutes" json:"active_minutes,omitempty"`
	SleepMinutes     *float64  `db:"sleep_minutes" json:"sleep_minutes,omitempty"`
	SpO2Avg          *float64  `db:"spo2_avg" json:"spo2_avg,omitempty"`
	RespiratoryRate  *float64  `db:"respiratory_rate" json:"respiratory_rate,omitempty"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

type JournalEntry struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	Title     string    `db:"title" json:"title"`
	Body      string    `db:"body" json:"body"`
	WrittenAt time.Time `db:"written_at" json:"written_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ConsentDataResearch is the consent type that gates research export.
const ConsentDataResearch = "data_research"

type Consent struct {
	ID          int64     `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	ConsentType string    `db:"consent_type" json:"consent_type"`
	Granted     bool      `db:"granted" json:"granted"`
	RecordedAt  time.Time `db:"recorded_at" json:"recorded_at"`
}
