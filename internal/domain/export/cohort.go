package export

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Cohort is the set of patients eligible for one run, with their surrogates.
type Cohort struct {
	ids     []uuid.UUID
	persons map[uuid.UUID]int64
}

// NewCohort builds a cohort ordered by patient id.
func NewCohort(members []CohortMember) *Cohort {
	c := &Cohort{persons: make(map[uuid.UUID]int64, len(members))}
	for _, m := range members {
		if _, dup := c.persons[m.PatientID]; dup {
			continue
		}
		c.persons[m.PatientID] = m.PersonID
		c.ids = append(c.ids, m.PatientID)
	}
	sort.Slice(c.ids, func(i, j int) bool {
		return bytes.Compare(c.ids[i][:], c.ids[j][:]) < 0
	})
	return c
}

func (c *Cohort) Len() int { return len(c.ids) }

// PatientIDs returns the eligible patient ids in a stable order.
func (c *Cohort) PatientIDs() []uuid.UUID {
	out := make([]uuid.UUID, len(c.ids))
	copy(out, c.ids)
	return out
}

// PersonID returns the surrogate for an eligible patient.
func (c *Cohort) PersonID(patientID uuid.UUID) (int64, bool) {
	id, ok := c.persons[patientID]
	return id, ok
}

// LatestConsents reduces consent history to the most recent record per
// patient. Records with equal timestamps are ordered by insertion id.
func LatestConsents(consents []Consent) map[uuid.UUID]Consent {
	latest := make(map[uuid.UUID]Consent, len(consents))
	for _, c := range consents {
		cur, ok := latest[c.PatientID]
		if !ok || c.RecordedAt.After(cur.RecordedAt) ||
			(c.RecordedAt.Equal(cur.RecordedAt) && c.ID > cur.ID) {
			latest[c.PatientID] = c
		}
	}
	return latest
}

// CohortSelector assigns person surrogates and picks the patients whose
// latest research consent is granted.
type CohortSelector struct {
	repo   CohortRepository
	logger zerolog.Logger
}

func NewCohortSelector(repo CohortRepository, logger zerolog.Logger) *CohortSelector {
	return &CohortSelector{repo: repo, logger: logger.With().Str("component", "cohort").Logger()}
}

// EnsurePersonIDs gives every active patient without a surrogate the next
// value from the person sequence.
func (s *CohortSelector) EnsurePersonIDs(ctx context.Context) (int, error) {
	n, err := s.repo.EnsurePersonIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("assign person ids: %w", err)
	}
	if n > 0 {
		s.logger.Info().Int("assigned", n).Msg("assigned person surrogates")
	}
	return n, nil
}

// Select returns the eligible cohort. An empty cohort is not an error.
func (s *CohortSelector) Select(ctx context.Context) (*Cohort, error) {
	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active patients: %w", err)
	}
	consents, err := s.repo.ListConsents(ctx, ConsentDataResearch)
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	latest := LatestConsents(consents)

	eligible := make([]CohortMember, 0, len(active))
	for _, m := range active {
		if c, ok := latest[m.PatientID]; ok && c.Granted {
			eligible = append(eligible, m)
		}
	}

	cohort := NewCohort(eligible)
	s.logger.Info().
		Int("active", len(active)).
		Int("eligible", cohort.Len()).
		Msg("cohort selected")
	return cohort, nil
}
