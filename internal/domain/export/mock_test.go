package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/omopexport/internal/platform/blobstore"
)

// -- In-memory store --

// memStore implements every repository over plain slices. InTx snapshots the
// marks and jobs and restores them when fn fails.
type memStore struct {
	mu sync.Mutex

	nextPerson   int64
	patients     []*Patient
	checkIns     []*DailyCheckIn
	assessments  []*Assessment
	medications  []*Medication
	diagnoses    []*Diagnosis
	appointments []*Appointment
	snapshots    []*PassiveHealthSnapshot
	journals     []*JournalEntry
	consents     []Consent

	marks    HighWaterMarks
	jobs     map[uuid.UUID]*Job
	jobOrder []uuid.UUID

	listErr     map[EntityType]error
	saveErr     error
	completeErr error
	windows     map[EntityType][]Window
	listHook    map[EntityType]func()
}

func newMemStore() *memStore {
	return &memStore{
		nextPerson: 1,
		jobs:       make(map[uuid.UUID]*Job),
		listErr:    make(map[EntityType]error),
		windows:    make(map[EntityType][]Window),
		listHook:   make(map[EntityType]func()),
	}
}

func (m *memStore) repositories() Repositories {
	return Repositories{Sources: m, Cohort: m, Watermarks: m, Jobs: m, Tx: m}
}

func (m *memStore) addConsent(patientID uuid.UUID, granted bool, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consents = append(m.consents, Consent{
		ID:          int64(len(m.consents) + 1),
		PatientID:   patientID,
		ConsentType: ConsentDataResearch,
		Granted:     granted,
		RecordedAt:  at,
	})
}

func (m *memStore) personOf(patientID uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if p.ID == patientID && p.PersonID != nil {
			return *p.PersonID
		}
	}
	return 0
}

func filterWindow[T any](m *memStore, e EntityType, items []*T, ids []uuid.UUID, w Window, patientOf func(*T) uuid.UUID, updated func(*T) time.Time) ([]*T, error) {
	m.mu.Lock()
	hook := m.listHook[e]
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows[e] = append(m.windows[e], w)
	if err := m.listErr[e]; err != nil {
		return nil, err
	}
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*T
	for _, it := range items {
		if want[patientOf(it)] && w.Contains(updated(it)) {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := patientOf(out[i]), patientOf(out[j])
		if c := bytes.Compare(pi[:], pj[:]); c != 0 {
			return c < 0
		}
		return updated(out[i]).Before(updated(out[j]))
	})
	return out, nil
}

func (m *memStore) ListPatients(_ context.Context, ids []uuid.UUID, w Window) ([]*Patient, error) {
	return filterWindow(m, EntityPatient, m.patients, ids, w, func(p *Patient) uuid.UUID { return p.ID }, func(p *Patient) time.Time { return p.UpdatedAt })
}

func (m *memStore) ListDailyCheckIns(_ context.Context, ids []uuid.UUID, w Window) ([]*DailyCheckIn, error) {
	return filterWindow(m, EntityDailyCheckIn, m.checkIns, ids, w, func(c *DailyCheckIn) uuid.UUID { return c.PatientID }, func(c *DailyCheckIn) time.Time { return c.UpdatedAt })
}

func (m *memStore) ListAssessments(_ context.Context, ids []uuid.UUID, w Window) ([]*Assessment, error) {
	return filterWindow(m, EntityAssessment, m.assessments, ids, w, func(a *Assessment) uuid.UUID { return a.PatientID }, func(a *Assessment) time.Time { return a.UpdatedAt })
}

func (m *memStore) ListMedications(_ context.Context, ids []uuid.UUID, w Window) ([]*Medication, error) {
	return filterWindow(m, EntityMedication, m.medications, ids, w, func(x *Medication) uuid.UUID { return x.PatientID }, func(x *Medication) time.Time { return x.UpdatedAt })
}

func (m *memStore) ListDiagnoses(_ context.Context, ids []uuid.UUID, w Window) ([]*Diagnosis, error) {
	return filterWindow(m, EntityDiagnosis, m.diagnoses, ids, w, func(d *Diagnosis) uuid.UUID { return d.PatientID }, func(d *Diagnosis) time.Time { return d.UpdatedAt })
}

func (m *memStore) ListAppointments(_ context.Context, ids []uuid.UUID, w Window) ([]*Appointment, error) {
	return filterWindow(m, EntityAppointment, m.appointments, ids, w, func(a *Appointment) uuid.UUID { return a.PatientID }, func(a *Appointment) time.Time { return a.UpdatedAt })
}

func (m *memStore) ListPassiveHealthSnapshots(_ context.Context, ids []uuid.UUID, w Window) ([]*PassiveHealthSnapshot, error) {
	return filterWindow(m, EntityPassiveHealth, m.snapshots, ids, w, func(s *PassiveHealthSnapshot) uuid.UUID { return s.PatientID }, func(s *PassiveHealthSnapshot) time.Time { return s.UpdatedAt })
}

func (m *memStore) ListJournalEntries(_ context.Context, ids []uuid.UUID, w Window) ([]*JournalEntry, error) {
	return filterWindow(m, EntityJournalEntry, m.journals, ids, w, func(j *JournalEntry) uuid.UUID { return j.PatientID }, func(j *JournalEntry) time.Time { return j.UpdatedAt })
}

// -- Cohort --

func (m *memStore) EnsurePersonIDs(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.patients {
		if p.Active && p.PersonID == nil {
			id := m.nextPerson
			m.nextPerson++
			p.PersonID = &id
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListActive(_ context.Context) ([]CohortMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CohortMember
	for _, p := range m.patients {
		if p.Active && p.PersonID != nil {
			out = append(out, CohortMember{PatientID: p.ID, PersonID: *p.PersonID})
		}
	}
	return out, nil
}

func (m *memStore) ListConsents(_ context.Context, consentType string) ([]Consent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Consent
	for _, c := range m.consents {
		if c.ConsentType == consentType {
			out = append(out, c)
		}
	}
	return out, nil
}

// -- Watermarks --

func (m *memStore) Get(_ context.Context) (HighWaterMarks, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.marks == nil {
		return nil, false, nil
	}
	return copyMarks(m.marks), true, nil
}

func (m *memStore) Save(_ context.Context, marks HighWaterMarks) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.marks = copyMarks(marks)
	return nil
}

func copyMarks(in HighWaterMarks) HighWaterMarks {
	out := make(HighWaterMarks, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// -- Jobs --

func copyJob(j *Job) *Job {
	cp := *j
	return &cp
}

func (m *memStore) Create(_ context.Context, j *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.jobs[j.ID]; dup {
		return fmt.Errorf("duplicate job %s", j.ID)
	}
	j.CreatedAt = time.Now().UTC()
	m.jobs[j.ID] = copyJob(j)
	m.jobOrder = append(m.jobOrder, j.ID)
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return copyJob(j), nil
}

func (m *memStore) List(_ context.Context, limit, offset int) ([]*Job, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := len(m.jobOrder)
	var out []*Job
	for i := total - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, copyJob(m.jobs[m.jobOrder[i]]))
	}
	return out, total, nil
}

func (m *memStore) MarkProcessing(_ context.Context, id uuid.UUID, startedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if j.Status != StatusPending {
		return ErrJobNotPending
	}
	j.Status = StatusProcessing
	j.StartedAt = &startedAt
	return nil
}

func (m *memStore) MarkFailed(_ context.Context, id uuid.UUID, message string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	j.Status = StatusFailed
	j.ErrorMessage = &message
	j.CompletedAt = &at
	return nil
}

func (m *memStore) MarkCompleted(_ context.Context, done *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return m.completeErr
	}
	j, ok := m.jobs[done.ID]
	if !ok || j.Status != StatusProcessing {
		return fmt.Errorf("job %s is missing or not processing", done.ID)
	}
	j.Status = StatusCompleted
	j.RecordCounts = done.RecordCounts
	j.FileURLs = done.FileURLs
	j.CompletedAt = done.CompletedAt
	return nil
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	var marks HighWaterMarks
	if m.marks != nil {
		marks = copyMarks(m.marks)
	}
	jobs := make(map[uuid.UUID]*Job, len(m.jobs))
	for id, j := range m.jobs {
		jobs[id] = copyJob(j)
	}
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.marks = marks
		m.jobs = jobs
		m.mu.Unlock()
		return err
	}
	return nil
}

// -- Artifact store that fails on the nth upload --

type flakyStore struct {
	*blobstore.MemoryStore
	mu     sync.Mutex
	puts   int
	failAt int
}

func (s *flakyStore) Put(ctx context.Context, key string, r io.Reader, opts blobstore.PutOptions) (blobstore.Info, error) {
	s.mu.Lock()
	s.puts++
	fail := s.failAt > 0 && s.puts == s.failAt
	s.mu.Unlock()
	if fail {
		return blobstore.Info{}, fmt.Errorf("upload refused for %s", key)
	}
	return s.MemoryStore.Put(ctx, key, r, opts)
}

// -- Clock --

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(time.Second)
	return t
}

// fixedDBClock stands in for the database clock.
type fixedDBClock struct {
	at  time.Time
	err error
}

func (c fixedDBClock) Now(context.Context) (time.Time, error) {
	return c.at, c.err
}

func (c *stepClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
