// Package metrics records counters and durations for export, publish and sync runs.
//
// Components receive a Recorder and default to NoopRecorder, so no nil checks
// are needed at call sites:
//
//	exp := export.New(st, gitDriver, export.WithRecorder(metrics.NoopRecorder{}))
//
// The CLI swaps in a PrometheusRecorder when --metrics-file is given and writes
// the registry to that file in the node_exporter textfile format on exit.
package metrics
