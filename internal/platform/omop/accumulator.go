package omop

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrColumnMismatch is returned when a row renders a different number of
// values than its table declares.
var ErrColumnMismatch = errors.New("omop: row does not match declared columns")

type tableBuffer struct {
	columns []string
	rows    [][]string
}

// Accumulator buffers mapped rows per target table in insertion order for a
// single run. Buffers for every declared table exist from construction, so
// goroutines appending to disjoint tables do not contend. Appends to the same
// table must be serialised by the caller.
type Accumulator struct {
	buffers map[Table]*tableBuffer
}

// NewAccumulator returns an empty accumulator over all declared tables.
func NewAccumulator() *Accumulator {
	a := &Accumulator{buffers: make(map[Table]*tableBuffer, len(allTables))}
	for _, t := range allTables {
		a.buffers[t] = &tableBuffer{columns: tableColumns[t]}
	}
	return a
}

// Add appends rows to their tables' buffers.
func (a *Accumulator) Add(rows ...Row) error {
	for _, r := range rows {
		buf, ok := a.buffers[r.Table()]
		if !ok {
			return fmt.Errorf("omop: unknown table %q", r.Table())
		}
		values := r.Values()
		if len(values) != len(buf.columns) {
			return fmt.Errorf("%w: %s has %d columns, row has %d", ErrColumnMismatch, r.Table(), len(buf.columns), len(values))
		}
		buf.rows = append(buf.rows, values)
	}
	return nil
}

// Count returns the number of rows buffered for a table.
func (a *Accumulator) Count(t Table) int {
	buf, ok := a.buffers[t]
	if !ok {
		return 0
	}
	return len(buf.rows)
}

// Counts returns row counts for every declared table, including empty ones.
func (a *Accumulator) Counts() map[string]int {
	out := make(map[string]int, len(allTables))
	for _, t := range allTables {
		out[string(t)] = len(a.buffers[t].rows)
	}
	return out
}

// Tables returns the non-empty tables in declared order.
func (a *Accumulator) Tables() []Table {
	var out []Table
	for _, t := range allTables {
		if len(a.buffers[t].rows) > 0 {
			out = append(out, t)
		}
	}
	return out
}

// Bytes serialises a table to TSV. It reports false when the table has no rows.
func (a *Accumulator) Bytes(t Table) ([]byte, bool) {
	buf, ok := a.buffers[t]
	if !ok || len(buf.rows) == 0 {
		return nil, false
	}
	var b bytes.Buffer
	// bytes.Buffer writes do not fail.
	_ = WriteTSV(&b, buf.columns, buf.rows)
	return b.Bytes(), true
}
