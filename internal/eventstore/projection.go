package eventstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Run status values in the projection.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// BranchSummary is the per-platform slice of a RunSummary.
type BranchSummary struct {
	Platform  string `json:"platform"`
	State     string `json:"state"`
	Asset     string `json:"asset,omitempty"`
	Published bool   `json:"published"`
	Error     string `json:"error,omitempty"`
}

// RunSummary is a read model summarizing a run, reconstructed from events.
type RunSummary struct {
	RunID       string                    `json:"run_id"`
	Trigger     string                    `json:"trigger"`
	Ref         string                    `json:"ref,omitempty"`
	Status      string                    `json:"status"`
	Eligible    bool                      `json:"release_eligible"`
	StartedAt   time.Time                 `json:"started_at"`
	CompletedAt *time.Time                `json:"completed_at,omitempty"`
	Duration    time.Duration             `json:"duration,omitempty"`
	Branches    map[string]*BranchSummary `json:"branches"`
	Assets      []string                  `json:"assets,omitempty"`
}

// RunHistoryProjection maintains an in-memory view of run history,
// reconstructed from events stored in the event store.
type RunHistoryProjection struct {
	mu      sync.RWMutex
	store   Store
	runs    map[string]*RunSummary
	maxSize int
}

// NewRunHistoryProjection creates a new projection backed by the given store.
func NewRunHistoryProjection(store Store, maxHistorySize int) *RunHistoryProjection {
	if maxHistorySize <= 0 {
		maxHistorySize = 100
	}
	return &RunHistoryProjection{
		store:   store,
		runs:    make(map[string]*RunSummary),
		maxSize: maxHistorySize,
	}
}

// Rebuild reconstructs the projection from all events in the store.
// Typically called at daemon startup.
func (p *RunHistoryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.runs = make(map[string]*RunSummary)
	for _, event := range events {
		p.applyLocked(event)
	}
	return nil
}

// Apply folds a single event into the projection. Used for live updates as
// events are appended.
func (p *RunHistoryProjection) Apply(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyLocked(event)
}

func (p *RunHistoryProjection) applyLocked(event Event) {
	summary, ok := p.runs[event.RunID()]
	if !ok {
		summary = &RunSummary{
			RunID:    event.RunID(),
			Status:   RunStatusRunning,
			Branches: make(map[string]*BranchSummary),
		}
		p.runs[event.RunID()] = summary
	}

	switch event.Type() {
	case TypeRunStarted:
		var payload RunStartedPayload
		if json.Unmarshal(event.Payload(), &payload) == nil {
			summary.Trigger = payload.Trigger
			summary.Ref = payload.Ref
			summary.Eligible = payload.Eligible
			summary.StartedAt = event.Timestamp()
		}

	case TypeBranchStep:
		var payload BranchStepPayload
		if json.Unmarshal(event.Payload(), &payload) == nil {
			branch := summary.branch(payload.Platform)
			branch.State = payload.State
		}

	case TypeBranchCompleted:
		var payload BranchCompletedPayload
		if json.Unmarshal(event.Payload(), &payload) == nil {
			branch := summary.branch(payload.Platform)
			branch.State = "done"
			branch.Asset = payload.Asset
			branch.Published = payload.Published
		}

	case TypeBranchFailed:
		var payload BranchFailedPayload
		if json.Unmarshal(event.Payload(), &payload) == nil {
			branch := summary.branch(payload.Platform)
			branch.State = "failed"
			branch.Error = payload.Error
		}

	case TypeAssetPublished:
		var payload AssetPublishedPayload
		if json.Unmarshal(event.Payload(), &payload) == nil {
			summary.Assets = append(summary.Assets, payload.Asset)
		}

	case TypeRunCompleted:
		var payload RunCompletedPayload
		if json.Unmarshal(event.Payload(), &payload) == nil {
			completedAt := event.Timestamp()
			summary.CompletedAt = &completedAt
			summary.Duration = payload.Duration
			if payload.Failed == 0 {
				summary.Status = RunStatusCompleted
			} else {
				summary.Status = RunStatusFailed
			}
		}
	}
}

func (s *RunSummary) branch(platform string) *BranchSummary {
	branch, ok := s.Branches[platform]
	if !ok {
		branch = &BranchSummary{Platform: platform}
		s.Branches[platform] = branch
	}
	return branch
}

// GetRun returns the summary for a run, or nil when unknown.
func (p *RunHistoryProjection) GetRun(runID string) *RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.runs[runID]
}

// History returns run summaries ordered newest-first, capped at the
// projection's history size.
func (p *RunHistoryProjection) History() []*RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*RunSummary, 0, len(p.runs))
	for _, summary := range p.runs {
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if len(out) > p.maxSize {
		out = out[:p.maxSize]
	}
	return out
}
