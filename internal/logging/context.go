package logging

import "log/slog"

// WithComponent tags every record with the subsystem that emitted it.
//
//	log := logging.WithComponent("reader")
//	log.Info("header read", "fields", n)
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

// WithRun tags every record with the run id.
func WithRun(runID string) *slog.Logger {
	return GetLogger().With("run_id", runID)
}

// WithError attaches err as a structured attribute.
func WithError(err error) *slog.Logger {
	return GetLogger().With("error", err.Error())
}
