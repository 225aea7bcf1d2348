package recorder

import (
	"time"

	"QuantBench/internal/model"
)

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRun(_ *RunSummary) error                          { return nil }
func (n *NoopRecorder) RecordTrades(_ string, _ []model.Trade) error           { return nil }
func (n *NoopRecorder) RecordWindows(_ string, _ []WindowRecord) error         { return nil }
func (n *NoopRecorder) RecordObservation(_ *model.Observation, _ time.Time) error { return nil }
func (n *NoopRecorder) Close() error                                           { return nil }
