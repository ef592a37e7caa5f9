package metrics

import "time"

// Outcome labels a finished operation.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeNoChanges Outcome = "no_changes"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Recorder receives observability hooks from the export, publish and sync flows.
type Recorder interface {
	ObserveExportDuration(site string, d time.Duration, outcome Outcome)
	ObservePublishDuration(site string, d time.Duration, outcome Outcome)
	IncPushRetry(site string)
	IncForgeRequest(method string, status int)
	IncSyncAction(site, action string, n int)
	ObserveSyncDuration(d time.Duration, applied bool)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) ObserveExportDuration(string, time.Duration, Outcome)  {}
func (NoopRecorder) ObservePublishDuration(string, time.Duration, Outcome) {}
func (NoopRecorder) IncPushRetry(string)                                   {}
func (NoopRecorder) IncForgeRequest(string, int)                           {}
func (NoopRecorder) IncSyncAction(string, string, int)                     {}
func (NoopRecorder) ObserveSyncDuration(time.Duration, bool)               {}
