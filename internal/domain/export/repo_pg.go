package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/omopexport/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type pgBase struct{ pool *pgxpool.Pool }

func (r pgBase) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// =========== Source Repository ===========

type sourceRepoPG struct{ pgBase }

func NewSourceRepoPG(pool *pgxpool.Pool) SourceRepository {
	return &sourceRepoPG{pgBase{pool}}
}

const windowClause = ` WHERE patient_id = ANY($1::uuid[]) AND updated_at > $2 AND updated_at <= $3
	ORDER BY patient_id, updated_at, id`

func listWindow[T any](ctx context.Context, q queryable, sql string, ids []uuid.UUID, w Window, scan func(pgx.Row) (*T, error)) ([]*T, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := q.Query(ctx, sql+windowClause, ids, w.Since, w.Until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *sourceRepoPG) ListPatients(ctx context.Context, ids []uuid.UUID, w Window) ([]*Patient, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, person_id, active, birth_date, COALESCE(sex, ''), created_at, updated_at
		FROM patients
		WHERE id = ANY($1::uuid[]) AND updated_at > $2 AND updated_at <= $3
		ORDER BY id`, ids, w.Since, w.Until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.PersonID, &p.Active, &p.BirthDate, &p.Sex, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, &p)
	}
	return items, rows.Err()
}

func (r *sourceRepoPG) ListDailyCheckIns(ctx context.Context, ids []uuid.UUID, w Window) ([]*DailyCheckIn, error) {
	return listWindow(ctx, r.conn(ctx), `
		SELECT id, patient_id, check_in_date, mood, energy, anxiety, stress, pain_level,
			sleep_hours, sleep_quality, appetite, focus, social_interaction, exercise_minutes,
			water_intake_cups, headache, nausea, dizziness, fatigue, insomnia, palpitations,
			shortness_of_breath, took_medication, updated_at
		FROM daily_checkins`, ids, w, func(row pgx.Row) (*DailyCheckIn, error) {
		var c DailyCheckIn
		err := row.Scan(&c.ID, &c.PatientID, &c.CheckInDate, &c.Mood, &c.Energy, &c.Anxiety, &c.Stress,
			&c.PainLevel, &c.SleepHours, &c.SleepQuality, &c.Appetite, &c.Focus, &c.SocialInteraction,
			&c.ExerciseMinutes, &c.WaterIntakeCups, &c.Headache, &c.Nausea, &c.Dizziness, &c.Fatigue,
			&c.Insomnia, &c.Palpitations, &c.ShortnessOfBreath, &c.TookMedication, &c.UpdatedAt)
		return &c, err
	})
}

func (r *sourceRepoPG) ListAssessments(ctx context.Context, ids []uuid.UUID, w Window) ([]*Assessment, error) {
	return listWindow(ctx, r.conn(ctx), `
		SELECT id, patient_id, instrument, total_score, COALESCE(severity, ''), completed_at, updated_at
		FROM assessments`, ids, w, func(row pgx.Row) (*Assessment, error) {
		var a Assessment
		err := row.Scan(&a.ID, &a.PatientID, &a.Instrument, &a.TotalScore, &a.Severity, &a.CompletedAt, &a.UpdatedAt)
		return &a, err
	})
}

func (r *sourceRepoPG) ListMedications(ctx context.Context, ids []uuid.UUID, w Window) ([]*Medication, error) {
	return listWindow(ctx, r.conn(ctx), `
		SELECT id, patient_id, name, COALESCE(rxnorm_code, ''), dose, COALESCE(dose_unit, ''),
			COALESCE(route, ''), COALESCE(frequency, ''), start_date, end_date,
			COALESCE(stop_reason, ''), updated_at
		FROM medications`, ids, w, func(row pgx.Row) (*Medication, error) {
		var m Medication
		err := row.Scan(&m.ID, &m.PatientID, &m.Name, &m.RxNormCode, &m.Dose, &m.DoseUnit,
			&m.Route, &m.Frequency, &m.StartDate, &m.EndDate, &m.StopReason, &m.UpdatedAt)
		return &m, err
	})
}

func (r *sourceRepoPG) ListDiagnoses(ctx context.Context, ids []uuid.UUID, w Window) ([]*Diagnosis, error) {
	return listWindow(ctx, r.conn(ctx), `
		SELECT id, patient_id, icd10_code, COALESCE(description, ''), onset_date, resolved_date,
			status, updated_at
		FROM diagnoses`, ids, w, func(row pgx.Row) (*Diagnosis, error) {
		var d Diagnosis
		err := row.Scan(&d.ID, &d.PatientID, &d.ICD10Code, &d.Description, &d.OnsetDate,
			&d.ResolvedDate, &d.Status, &d.UpdatedAt)
		return &d, err
	})
}

func (r *sourceRepoPG) ListAppointments(ctx context.Context, ids []uuid.UUID, w Window) ([]*Appointment, error) {
	return listWindow(ctx, r.conn(ctx), `
		SELECT id, patient_id, appointment_type, status, scheduled_at, duration_minutes, updated_at
		FROM appointments`, ids, w, func(row pgx.Row) (*Appointment, error) {
		var a Appointment
		err := row.Scan(&a.ID, &a.PatientID, &a.AppointmentType, &a.Status, &a.ScheduledAt,
			&a.DurationMinutes, &a.UpdatedAt)
		return &a, err
	})
}

func (r *sourceRepoPG) ListPassiveHealthSnapshots(ctx context.Context, ids []uuid.UUID, w Window) ([]*PassiveHealthSnapshot, error) {
	return listWindow(ctx, r.conn(ctx), `
		SELECT id, patient_id, snapshot_date, COALESCE(device_type, ''), COALESCE(device_model, ''),
			heart_rate_avg, resting_heart_rate, hrv_ms, steps, active_minutes, sleep_minutes,
			spo2_avg, respiratory_rate, updated_at
		FROM passive_health_snapshots`, ids, w, func(row pgx.Row) (*PassiveHealthSnapshot, error) {
		var s PassiveHealthSnapshot
		err := row.Scan(&s.ID, &s.PatientID, &s.SnapshotDate, &s.DeviceType, &s.DeviceModel,
			&s.HeartRateAvg, &s.RestingHeartRate, &s.HRVMs, &s.Steps, &s.ActiveMinutes,
			&s.SleepMinutes, &s.SpO2Avg, &s.RespiratoryRate, &s.UpdatedAt)
		return &s, err
	})
}

func (r *sourceRepoPG) ListJournalEntries(ctx context.Context, ids []uuid.UUID, w Window) ([]*JournalEntry, error) {
	return listWindow(ctx, r.conn(ctx), `
		SELECT id, patient_id, COALESCE(title, ''), COALESCE(body, ''), written_at, updated_at
		FROM journal_entries`, ids, w, func(row pgx.Row) (*JournalEntry, error) {
		var j JournalEntry
		err := row.Scan(&j.ID, &j.PatientID, &j.Title, &j.Body, &j.WrittenAt, &j.UpdatedAt)
		return &j, err
	})
}

// =========== Cohort Repository ===========

type cohortRepoPG struct{ pgBase }

func NewCohortRepoPG(pool *pgxpool.Pool) CohortRepository {
	return &cohortRepoPG{pgBase{pool}}
}

func (r *cohortRepoPG) EnsurePersonIDs(ctx context.Context) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		WITH todo AS (
			SELECT id FROM patients
			WHERE active AND person_id IS NULL
			ORDER BY created_at, id
			FOR UPDATE
		), numbered AS (
			SELECT id, nextval('person_id_seq') AS pid FROM todo
		)
		UPDATE patients p SET person_id = n.pid
		FROM numbered n WHERE p.id = n.id`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *cohortRepoPG) ListActive(ctx context.Context) ([]CohortMember, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, person_id FROM patients
		WHERE active AND person_id IS NOT NULL
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CohortMember
	for rows.Next() {
		var m CohortMember
		if err := rows.Scan(&m.PatientID, &m.PersonID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *cohortRepoPG) ListConsents(ctx context.Context, consentType string) ([]Consent, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT DISTINCT ON (patient_id) id, patient_id, consent_type, granted, recorded_at
		FROM consents
		WHERE consent_type = $1
		ORDER BY patient_id, recorded_at DESC, id DESC`, consentType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Consent
	for rows.Next() {
		var c Consent
		if err := rows.Scan(&c.ID, &c.PatientID, &c.ConsentType, &c.Granted, &c.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// =========== Watermark Repository ===========

type watermarkRepoPG struct{ pgBase }

func NewWatermarkRepoPG(pool *pgxpool.Pool) WatermarkRepository {
	return &watermarkRepoPG{pgBase{pool}}
}

// hwmColumns follows entityTypes order.
const hwmColumns = `patient, daily_checkin, assessment, medication, diagnosis,
	appointment, passive_health_snapshot, journal_entry`

func (r *watermarkRepoPG) Get(ctx context.Context) (HighWaterMarks, bool, error) {
	vals := make([]*time.Time, len(entityTypes))
	dest := make([]interface{}, len(entityTypes))
	for i := range vals {
		dest[i] = &vals[i]
	}
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+hwmColumns+` FROM omop_export_hwm WHERE id = 1`).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	marks := make(HighWaterMarks, len(entityTypes))
	for i, e := range entityTypes {
		if vals[i] != nil {
			marks[e] = vals[i].UTC()
		}
	}
	return marks, true, nil
}

func (r *watermarkRepoPG) Save(ctx context.Context, marks HighWaterMarks) error {
	args := make([]interface{}, len(entityTypes))
	for i, e := range entityTypes {
		args[i] = marks.Since(e)
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO omop_export_hwm (id, `+hwmColumns+`, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO UPDATE SET
			patient = EXCLUDED.patient,
			daily_checkin = EXCLUDED.daily_checkin,
			assessment = EXCLUDED.assessment,
			medication = EXCLUDED.medication,
			diagnosis = EXCLUDED.diagnosis,
			appointment = EXCLUDED.appointment,
			passive_health_snapshot = EXCLUDED.passive_health_snapshot,
			journal_entry = EXCLUDED.journal_entry,
			updated_at = NOW()`, args...)
	return err
}

// =========== Job Repository ===========

type jobRepoPG struct{ pgBase }

func NewJobRepoPG(pool *pgxpool.Pool) JobRepository {
	return &jobRepoPG{pgBase{pool}}
}

const jobCols = `id, status, triggered_by, full_refresh, record_counts, file_urls,
	error_message, created_at, started_at, completed_at`

func (r *jobRepoPG) scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.Status, &j.TriggeredBy, &j.FullRefresh, &j.RecordCounts, &j.FileURLs,
		&j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return &j, err
}

func (r *jobRepoPG) Create(ctx context.Context, j *Job) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.Status == "" {
		j.Status = StatusPending
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO omop_export_job (id, status, triggered_by, full_refresh, record_counts, file_urls)
		VALUES ($1, $2, $3, $4, '{}'::jsonb, '{}'::jsonb)
		RETURNING created_at`,
		j.ID, j.Status, j.TriggeredBy, j.FullRefresh).Scan(&j.CreatedAt)
}

func (r *jobRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Job, error) {
	return r.scanJob(r.conn(ctx).QueryRow(ctx, `SELECT `+jobCols+` FROM omop_export_job WHERE id = $1`, id))
}

func (r *jobRepoPG) List(ctx context.Context, limit, offset int) ([]*Job, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM omop_export_job`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+jobCols+` FROM omop_export_job
		ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Job
	for rows.Next() {
		j, err := r.scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, j)
	}
	return items, total, rows.Err()
}

// guardTransition distinguishes a missing job from one in the wrong state
// after a conditional update matched no rows.
func (r *jobRepoPG) guardTransition(ctx context.Context, tag pgconn.CommandTag, id uuid.UUID) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	var status JobStatus
	err := r.conn(ctx).QueryRow(ctx, `SELECT status FROM omop_export_job WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s is %s", ErrJobNotPending, id, status)
}

func (r *jobRepoPG) MarkProcessing(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE omop_export_job SET status = $2, started_at = $3
		WHERE id = $1 AND status = $4`,
		id, StatusProcessing, startedAt, StatusPending)
	if err != nil {
		return err
	}
	return r.guardTransition(ctx, tag, id)
}

func (r *jobRepoPG) MarkFailed(ctx context.Context, id uuid.UUID, message string, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE omop_export_job SET status = $2, error_message = $3, completed_at = $4
		WHERE id = $1`,
		id, StatusFailed, message, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *jobRepoPG) MarkCompleted(ctx context.Context, j *Job) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE omop_export_job SET status = $2, record_counts = $3, file_urls = $4, completed_at = $5
		WHERE id = $1 AND status = $6`,
		j.ID, StatusCompleted, j.RecordCounts, j.FileURLs, j.CompletedAt, StatusProcessing)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete job %s: job is missing or not processing", j.ID)
	}
	return nil
}

// NewPGRepositories wires every repository, the transactor, the run lock and
// the clock to one pool.
func NewPGRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Sources:    NewSourceRepoPG(pool),
		Cohort:     NewCohortRepoPG(pool),
		Watermarks: NewWatermarkRepoPG(pool),
		Jobs:       NewJobRepoPG(pool),
		Tx:         db.NewTxRunner(pool),
		Lock:       NewPGRunLock(pool),
		Clock:      NewPGClock(pool),
	}
}
