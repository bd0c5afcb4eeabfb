package export

import "time"

// Metrics receives run and queue measurements. telemetry.Provider implements it.
type Metrics interface {
	RunFinished(triggeredBy, status string, elapsed time.Duration)
	RowsExported(table string, n int)
	ArtifactUploaded(table string, size int)
	WatermarkCommitted(entity string, at time.Time)
	CohortSelected(n int)
	QueuePolled(outcome string)
}

type nopMetrics struct{}

func (nopMetrics) RunFinished(string, string, time.Duration) {}
func (nopMetrics) RowsExported(string, int)                  {}
func (nopMetrics) ArtifactUploaded(string, int)              {}
func (nopMetrics) WatermarkCommitted(string, time.Time)      {}
func (nopMetrics) CohortSelected(int)                        {}
func (nopMetrics) QueuePolled(string)                        {}
