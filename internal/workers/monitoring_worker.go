package workers

import (
	"context"
	"time"
)

// CycleRunner is the monitoring coordinator surface the worker drives
type CycleRunner interface {
	RunCycle(ctx context.Context) error
}

// MonitoringWorker runs one full monitoring cycle per interval: instrument
// selection, snapshot capture, change detection and alert delivery for every
// active subscriber.
type MonitoringWorker struct {
	*BaseWorker
	coordinator CycleRunner
}

// NewMonitoringWorker creates the cycle worker
func NewMonitoringWorker(coordinator CycleRunner, interval time.Duration, enabled bool) *MonitoringWorker {
	return &MonitoringWorker{
		BaseWorker:  NewBaseWorker("monitoring", interval, enabled),
		coordinator: coordinator,
	}
}

// Run executes one monitoring cycle
func (w *MonitoringWorker) Run(ctx context.Context) error {
	start := time.Now()

	if err := w.coordinator.RunCycle(ctx); err != nil {
		w.RecordError(err)
		return err
	}

	w.RecordRun()
	w.Log().Infow("Monitoring cycle finished", "duration", time.Since(start))
	return nil
}
