package omop

import (
	"errors"
	"fmt"
)

const (
	personStride = 1_000_000
	tableStride  = 100_000

	// MaxSequence is the number of ids available per person per table per run.
	MaxSequence = tableStride
)

// ErrSequenceExhausted is returned once a (person, table) pair has used all
// of its MaxSequence ids within one run.
var ErrSequenceExhausted = errors.New("omop: identifier sequence exhausted")

// SynthesizeID derives a target-row primary key from the person surrogate,
// the table offset and a run-scoped sequence number. The same inputs always
// yield the same id.
func SynthesizeID(personID int64, table Table, seq int) int64 {
	return personID*personStride + int64(table.Offset())*tableStride + int64(seq)
}

type seqKey struct {
	person int64
	table  Table
}

// Sequencer hands out per-(person, table) sequence numbers for a single
// export run. Counters for one table live in their own map, so callers that
// write to disjoint tables may use one Sequencer from separate goroutines.
// Calls that touch the same table must be serialised by the caller.
type Sequencer struct {
	counters map[Table]map[seqKey]int
}

// NewSequencer returns a Sequencer with an empty counter per declared table.
func NewSequencer() *Sequencer {
	s := &Sequencer{counters: make(map[Table]map[seqKey]int, len(allTables))}
	for _, t := range allTables {
		s.counters[t] = make(map[seqKey]int)
	}
	return s
}

// Next returns the next id for the person in the given table.
func (s *Sequencer) Next(personID int64, table Table) (int64, error) {
	byTable, ok := s.counters[table]
	if !ok {
		return 0, fmt.Errorf("omop: unknown table %q", table)
	}
	if table == TablePerson {
		return 0, fmt.Errorf("omop: person rows are keyed by the surrogate id")
	}
	key := seqKey{person: personID, table: table}
	seq := byTable[key]
	if seq >= MaxSequence {
		return 0, fmt.Errorf("%w: person %d table %s", ErrSequenceExhausted, personID, table)
	}
	byTable[key] = seq + 1
	return SynthesizeID(personID, table, seq), nil
}

// Issued reports how many ids have been issued for the pair so far.
func (s *Sequencer) Issued(personID int64, table Table) int {
	return s.counters[table][seqKey{person: personID, table: table}]
}
