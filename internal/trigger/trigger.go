// Package trigger decides whether an incoming event starts a pipeline run and
// whether that run is allowed to publish release assets.
package trigger

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// EventType identifies how a run was triggered.
type EventType string

const (
	// EventTagPush is a push of a tag reference.
	EventTagPush EventType = "tag_push"
	// EventManualDispatch is an operator-initiated run. It accepts no
	// parameters; all build steps execute but publish is skipped.
	EventManualDispatch EventType = "manual"
)

// Event is the normalized trigger input for a pipeline run.
type Event struct {
	Type       EventType `json:"type"`
	Ref        string    `json:"ref,omitempty"` // Full ref for pushes, e.g. refs/tags/v1.2.3
	ReceivedAt time.Time `json:"received_at"`
}

// NewTagPush builds a push event from a ref string.
func NewTagPush(ref string) Event {
	return Event{Type: EventTagPush, Ref: ref, ReceivedAt: time.Now()}
}

// NewManualDispatch builds a manual dispatch event.
func NewManualDispatch() Event {
	return Event{Type: EventManualDispatch, ReceivedAt: time.Now()}
}

// Tag returns the bare tag name for tag pushes ("" otherwise).
func (e Event) Tag() string {
	if e.Type != EventTagPush {
		return ""
	}
	return strings.TrimPrefix(e.Ref, "refs/tags/")
}

// GroupKey derives the concurrency-group key for this event. Runs sharing a
// key are serialized oldest-first; runs with different keys proceed in
// parallel. New runs queue behind in-flight ones, never cancel them.
func (e Event) GroupKey() string {
	if e.Type == EventManualDispatch {
		return "manual"
	}
	return e.Ref
}

// Evaluator decides release eligibility against a configured tag pattern.
type Evaluator struct {
	tagPattern string
}

// NewEvaluator creates an evaluator for the given glob pattern (e.g. "v*").
func NewEvaluator(tagPattern string) (*Evaluator, error) {
	if tagPattern == "" {
		return nil, fmt.Errorf("tag pattern is required")
	}
	if _, err := path.Match(tagPattern, "v0.0.0"); err != nil {
		return nil, fmt.Errorf("invalid tag pattern %q: %w", tagPattern, err)
	}
	return &Evaluator{tagPattern: tagPattern}, nil
}

// ReleaseEligible reports whether the event enables the publish step: true
// iff the event is a tag push whose tag name matches the pattern. Manual
// dispatch runs are never eligible; the publish step becomes a no-op for
// them, which is a skip, not an error.
func (ev *Evaluator) ReleaseEligible(e Event) bool {
	if e.Type != EventTagPush {
		return false
	}
	// Branch pushes and other non-tag refs never publish.
	if strings.HasPrefix(e.Ref, "refs/") && !strings.HasPrefix(e.Ref, "refs/tags/") {
		return false
	}
	return ev.Matches(e.Tag())
}

// Matches reports whether a bare tag name matches the pattern. Used by
// webhook handlers that see tag names without the refs/tags/ prefix.
func (ev *Evaluator) Matches(tag string) bool {
	ok, err := path.Match(ev.tagPattern, tag)
	return err == nil && ok
}
