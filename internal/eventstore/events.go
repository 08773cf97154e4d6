// Package eventstore provides an append-only journal of pipeline run events.
package eventstore

import (
	"context"
	"encoding/json"
	"time"

	rferrors "git.home.luguber.info/inful/relforge/internal/errors"
)

// Event type names used in the journal.
const (
	TypeRunStarted      = "RunStarted"
	TypeBranchStep      = "BranchStep"
	TypeBranchCompleted = "BranchCompleted"
	TypeBranchFailed    = "BranchFailed"
	TypeAssetPublished  = "AssetPublished"
	TypeRunCompleted    = "RunCompleted"
)

// RunStartedPayload records how a run began.
type RunStartedPayload struct {
	Trigger   string `json:"trigger"` // "tag_push" or "manual"
	Ref       string `json:"ref,omitempty"`
	GroupKey  string `json:"group_key"`
	Platforms int    `json:"platforms"`
	Eligible  bool   `json:"release_eligible"`
}

// BranchStepPayload records one completed step within a platform branch.
type BranchStepPayload struct {
	Platform string        `json:"platform"`
	Step     string        `json:"step"`
	State    string        `json:"state"` // Branch state reached after the step
	Duration time.Duration `json:"duration_ms"`
}

// BranchCompletedPayload records a branch reaching done.
type BranchCompletedPayload struct {
	Platform  string        `json:"platform"`
	Asset     string        `json:"asset"`
	Published bool          `json:"published"`
	Duration  time.Duration `json:"duration_ms"`
}

// BranchFailedPayload records a branch's terminal failure.
type BranchFailedPayload struct {
	Platform string `json:"platform"`
	Step     string `json:"step"`
	Category string `json:"category"`
	Error    string `json:"error"`
}

// AssetPublishedPayload records a release asset attachment.
type AssetPublishedPayload struct {
	Platform string `json:"platform"`
	Asset    string `json:"asset"`
	Tag      string `json:"tag"`
	Size     int64  `json:"size"`
}

// RunCompletedPayload records a run's overall outcome. A run succeeds iff
// every branch reached done.
type RunCompletedPayload struct {
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration_ms"`
}

// Emitter appends typed events to a Store. A nil Emitter drops everything,
// letting callers emit unconditionally.
type Emitter struct {
	store Store
}

// NewEmitter wraps a store. Pass nil to get a drop-everything emitter.
func NewEmitter(store Store) *Emitter {
	if store == nil {
		return nil
	}
	return &Emitter{store: store}
}

func (e *Emitter) emit(ctx context.Context, runID, eventType string, payload any) error {
	if e == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return rferrors.EventStoreError("failed to marshal event payload").
			WithCause(err).
			WithContext("run_id", runID).
			WithContext("event_type", eventType).
			Build()
	}
	return e.store.Append(ctx, runID, eventType, data, nil)
}

// RunStarted records the start of a run.
func (e *Emitter) RunStarted(ctx context.Context, runID string, p RunStartedPayload) error {
	return e.emit(ctx, runID, TypeRunStarted, p)
}

// BranchStep records a completed branch step.
func (e *Emitter) BranchStep(ctx context.Context, runID string, p BranchStepPayload) error {
	return e.emit(ctx, runID, TypeBranchStep, p)
}

// BranchCompleted records a branch reaching done.
func (e *Emitter) BranchCompleted(ctx context.Context, runID string, p BranchCompletedPayload) error {
	return e.emit(ctx, runID, TypeBranchCompleted, p)
}

// BranchFailed records a branch's terminal failure.
func (e *Emitter) BranchFailed(ctx context.Context, runID string, p BranchFailedPayload) error {
	return e.emit(ctx, runID, TypeBranchFailed, p)
}

// AssetPublished records a release asset attachment.
func (e *Emitter) AssetPublished(ctx context.Context, runID string, p AssetPublishedPayload) error {
	return e.emit(ctx, runID, TypeAssetPublished, p)
}

// RunCompleted records a run's overall outcome.
func (e *Emitter) RunCompleted(ctx context.Context, runID string, p RunCompletedPayload) error {
	return e.emit(ctx, runID, TypeRunCompleted, p)
}
