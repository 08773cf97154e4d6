package events

import "time"

// RunQueued is emitted when a run enters a concurrency group queue.
type RunQueued struct {
	RunID    string
	Ref      string
	Trigger  string
	GroupKey string
	QueuedAt time.Time
}

// RunStarted is emitted when the pipeline begins executing a run.
type RunStarted struct {
	RunID     string
	Ref       string
	Trigger   string
	Eligible  bool
	Platforms []string
	StartedAt time.Time
}

// RunFinished is emitted when all platform branches of a run have reached a
// terminal state.
type RunFinished struct {
	RunID      string
	Ref        string
	Succeeded  int
	Failed     int
	Duration   time.Duration
	FinishedAt time.Time
}

// AssetPublished is emitted after a release asset has been attached to the
// forge release for the run's tag.
type AssetPublished struct {
	RunID       string
	Tag         string
	Platform    string
	Asset       string
	PublishedAt time.Time
}

// ConfigReloaded is emitted when the daemon picks up a changed pipeline
// definition from disk.
type ConfigReloaded struct {
	Path       string
	ReloadedAt time.Time
}
