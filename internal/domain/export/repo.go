package export

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrJobNotFound   = errors.New("export job not found")
	ErrJobNotPending = errors.New("export job is not pending")
)

// SourceRepository reads source entities for the given patients whose
// last-modified instant falls inside the window. Rows are ordered by patient,
// then last-modified, then id, so repeated reads map identically.
type SourceRepository interface {
	ListPatients(ctx context.Context, patientIDs []uuid.UUID, w Window) ([]*Patient, error)
	ListDailyCheckIns(ctx context.Context, patientIDs []uuid.UUID, w Window) ([]*DailyCheckIn, error)
	ListAssessments(ctx context.Context, patientIDs []uuid.UUID, w Window) ([]*Assessment, error)
	ListMedications(ctx context.Context, patientIDs []uuid.UUID, w Window) ([]*Medication, error)
	ListDiagnoses(ctx context.Context, patientIDs []uuid.UUID, w Window) ([]*Diagnosis, error)
	ListAppointments(ctx context.Context, patientIDs []uuid.UUID, w Window) ([]*Appointment, error)
	ListPassiveHealthSnapshots(ctx context.Context, patientIDs []uuid.UUID, w Window) ([]*PassiveHealthSnapshot, error)
	ListJournalEntries(ctx context.Context, patientIDs []uuid.UUID, w Window) ([]*JournalEntry, error)
}

// CohortMember pairs a patient with its person surrogate.
type CohortMember struct {
	PatientID uuid.UUID
	PersonID  int64
}

type CohortRepository interface {
	// EnsurePersonIDs assigns a surrogate to every active patient that lacks
	// one and returns how many were assigned.
	EnsurePersonIDs(ctx context.Context) (int, error)
	// ListActive returns active patients that hold a surrogate.
	ListActive(ctx context.Context) ([]CohortMember, error)
	// ListConsents returns consent records of the given type. Implementations
	// may return only the latest record per patient.
	ListConsents(ctx context.Context, consentType string) ([]Consent, error)
}

// WatermarkRepository stores the high-water marks. Get reports false when
// nothing has been recorded yet.
type WatermarkRepository interface {
	Get(ctx context.Context) (HighWaterMarks, bool, error)
	Save(ctx context.Context, marks HighWaterMarks) error
}

type JobRepository interface {
	Create(ctx context.Context, j *Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*Job, error)
	List(ctx context.Context, limit, offset int) ([]*Job, int, error)
	// MarkProcessing moves a pending job to processing. It returns
	// ErrJobNotPending when the job is in any other state.
	MarkProcessing(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string, at time.Time) error
	MarkCompleted(ctx context.Context, j *Job) error
}

// Transactor runs fn so that every repository call made with the context it
// receives commits or rolls back together.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
