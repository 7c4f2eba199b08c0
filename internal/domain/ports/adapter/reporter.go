package adapter

import "context"

// ErrorReporter forwards errors that need a human (manual reconciliation) to an
// external error tracker.
type ErrorReporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
}

// NoopReporter drops everything; used when no tracker is configured.
type NoopReporter struct{}

func (NoopReporter) Report(context.Context, error, map[string]string) {}
