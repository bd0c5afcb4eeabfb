package export

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/omopexport/internal/platform/omop"
)

// entityTables lists the target tables each source entity writes to.
var entityTables = map[EntityType][]omop.Table{
	EntityPatient:       {omop.TablePerson, omop.TableObservationPeriod},
	EntityDailyCheckIn:  {omop.TableMeasurement, omop.TableObservation},
	EntityAssessment:    {omop.TableMeasurement, omop.TableObservation},
	EntityMedication:    {omop.TableDrugExposure},
	EntityDiagnosis:     {omop.TableConditionOccurrence},
	EntityAppointment:   {omop.TableVisitOccurrence},
	EntityPassiveHealth: {omop.TableMeasurement, omop.TableDeviceExposure},
	EntityJournalEntry:  {omop.TableNote},
}

// TablesFor returns the target tables an entity writes to.
func TablesFor(e EntityType) []omop.Table {
	out := make([]omop.Table, len(entityTables[e]))
	copy(out, entityTables[e])
	return out
}

// ExtractionGroups partitions entities so that any two entities sharing a
// target table land in the same group. Groups and their members keep the
// order of entities.
func ExtractionGroups(entities []EntityType) [][]EntityType {
	parent := make([]int, len(entities))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	owner := make(map[omop.Table]int)
	for i, e := range entities {
		for _, t := range entityTables[e] {
			if j, ok := owner[t]; ok {
				ri, rj := find(i), find(j)
				if ri != rj {
					if ri < rj {
						parent[rj] = ri
					} else {
						parent[ri] = rj
					}
				}
				continue
			}
			owner[t] = i
		}
	}

	index := make(map[int]int)
	var groups [][]EntityType
	for i, e := range entities {
		root := find(i)
		g, ok := index[root]
		if !ok {
			g = len(groups)
			index[root] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], e)
	}
	return groups
}

// extraction is the state of one run's extract-and-map stage.
type extraction struct {
	sources  SourceRepository
	concepts *omop.ConceptResolver
	cohort   *Cohort
	marks    HighWaterMarks
	until    time.Time
	seq      *omop.Sequencer
	acc      *omop.Accumulator
	logger   zerolog.Logger

	mu      sync.Mutex
	scanned map[EntityType]int
}

func newExtraction(sources SourceRepository, concepts *omop.ConceptResolver, cohort *Cohort, marks HighWaterMarks, until time.Time, logger zerolog.Logger) *extraction {
	return &extraction{
		sources:  sources,
		concepts: concepts,
		cohort:   cohort,
		marks:    marks,
		until:    until,
		seq:      omop.NewSequencer(),
		acc:      omop.NewAccumulator(),
		logger:   logger,
		scanned:  make(map[EntityType]int, len(entityTypes)),
	}
}

func (x *extraction) window(e EntityType) Window {
	return Window{Since: x.marks.Since(e), Until: x.until}
}

// run extracts every entity. Groups run concurrently; entities inside a group
// run one after another.
func (x *extraction) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, group := range ExtractionGroups(entityTypes) {
		group := group
		g.Go(func() error {
			for _, e := range group {
				if err := x.extractEntity(gctx, e); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (x *extraction) extractEntity(ctx context.Context, e EntityType) error {
	var (
		n   int
		err error
	)
	switch e {
	case EntityPatient:
		n, err = extractRows(ctx, x, e, x.sources.ListPatients, func(p *Patient) uuid.UUID { return p.ID }, MapPatient)
	case EntityDailyCheckIn:
		n, err = extractRows(ctx, x, e, x.sources.ListDailyCheckIns, func(c *DailyCheckIn) uuid.UUID { return c.PatientID }, MapDailyCheckIn)
	case EntityAssessment:
		n, err = extractRows(ctx, x, e, x.sources.ListAssessments, func(a *Assessment) uuid.UUID { return a.PatientID }, MapAssessment)
	case EntityMedication:
		n, err = extractRows(ctx, x, e, x.sources.ListMedications, func(m *Medication) uuid.UUID { return m.PatientID }, MapMedication)
	case EntityDiagnosis:
		n, err = extractRows(ctx, x, e, x.sources.ListDiagnoses, func(d *Diagnosis) uuid.UUID { return d.PatientID }, MapDiagnosis)
	case EntityAppointment:
		n, err = extractRows(ctx, x, e, x.sources.ListAppointments, func(a *Appointment) uuid.UUID { return a.PatientID }, MapAppointment)
	case EntityPassiveHealth:
		n, err = extractRows(ctx, x, e, x.sources.ListPassiveHealthSnapshots, func(s *PassiveHealthSnapshot) uuid.UUID { return s.PatientID }, MapPassiveHealthSnapshot)
	case EntityJournalEntry:
		n, err = extractRows(ctx, x, e, x.sources.ListJournalEntries, func(j *JournalEntry) uuid.UUID { return j.PatientID }, MapJournalEntry)
	default:
		return fmt.Errorf("extract: unknown entity %q", e)
	}
	if err != nil {
		return err
	}

	x.mu.Lock()
	x.scanned[e] = n
	x.mu.Unlock()
	w := x.window(e)
	x.logger.Debug().
		Str("entity", string(e)).
		Time("since", w.Since).
		Time("until", w.Until).
		Int("rows", n).
		Msg("entity extracted")
	return nil
}

type listFunc[T any] func(ctx context.Context, patientIDs []uuid.UUID, w Window) ([]*T, error)

type mapFunc[T any] func(row *T, personID int64, seq *omop.Sequencer, concepts *omop.ConceptResolver) ([]omop.Row, error)

// extractRows reads one entity's rows inside its window and appends the
// mapped target rows. Rows of patients outside the cohort are skipped.
func extractRows[T any](ctx context.Context, x *extraction, e EntityType, list listFunc[T], patientOf func(*T) uuid.UUID, mapRow mapFunc[T]) (int, error) {
	rows, err := list(ctx, x.cohort.PatientIDs(), x.window(e))
	if err != nil {
		return 0, fmt.Errorf("extract %s: %w", e, err)
	}
	for _, r := range rows {
		personID, ok := x.cohort.PersonID(patientOf(r))
		if !ok {
			continue
		}
		mapped, err := mapRow(r, personID, x.seq, x.concepts)
		if err != nil {
			return 0, fmt.Errorf("map %s: %w", e, err)
		}
		if err := x.acc.Add(mapped...); err != nil {
			return 0, fmt.Errorf("map %s: %w", e, err)
		}
	}
	return len(rows), nil
}

// Scanned returns the number of source rows read per entity.
func (x *extraction) Scanned() map[EntityType]int {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make(map[EntityType]int, len(x.scanned))
	for k, v := range x.scanned {
		out[k] = v
	}
	return out
}
