// Package metrics defines the Recorder interface used across the pipeline
// and provides a no-op implementation for callers that do not collect metrics.
package metrics

import "time"

// Recorder receives observations from the pipeline, queue and publishers.
// Implementations must be safe for concurrent use.
type Recorder interface {
	// RecordStepDuration records how long a single branch step took.
	RecordStepDuration(step string, d time.Duration)

	// RecordBranchOutcome counts a finished platform branch.
	// result is one of "done", "skipped-publish" or "failed".
	RecordBranchOutcome(platform, result string)

	// RecordRunDuration records the wall-clock time of a full run.
	RecordRunDuration(d time.Duration)

	// RecordPublish counts a release attach attempt per forge type.
	RecordPublish(forge, result string)

	// SetQueueDepth reports how many runs are waiting in a concurrency group.
	SetQueueDepth(group string, depth int)

	// SetArtifactCount reports how many artifacts the store currently holds.
	SetArtifactCount(count int)
}

// NoopRecorder discards all observations.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (*NoopRecorder) RecordStepDuration(string, time.Duration) {}
func (*NoopRecorder) RecordBranchOutcome(string, string)       {}
func (*NoopRecorder) RecordRunDuration(time.Duration)          {}
func (*NoopRecorder) RecordPublish(string, string)             {}
func (*NoopRecorder) SetQueueDepth(string, int)                {}
func (*NoopRecorder) SetArtifactCount(int)                     {}
