package trigger

import "testing"

func TestReleaseEligibility(t *testing.T) {
	ev, err := NewEvaluator("v*")
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}

	tests := []struct {
		name  string
		event Event
		want  bool
	}{
		{"version tag", NewTagPush("refs/tags/v1.2.3"), true},
		{"bare version tag", NewTagPush("v1.2.3"), true},
		{"non-v tag", NewTagPush("refs/tags/release-1.2.3"), false},
		{"branch push", NewTagPush("refs/heads/v-experiments"), false},
		{"manual dispatch", NewManualDispatch(), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ev.ReleaseEligible(tc.event); got != tc.want {
				t.Errorf("ReleaseEligible(%+v) = %v, want %v", tc.event, got, tc.want)
			}
		})
	}
}

func TestTagStripsRefPrefix(t *testing.T) {
	e := NewTagPush("refs/tags/v2.0.0")
	if e.Tag() != "v2.0.0" {
		t.Errorf("Tag() = %q, want v2.0.0", e.Tag())
	}
	if NewManualDispatch().Tag() != "" {
		t.Error("manual dispatch has no tag")
	}
}

func TestGroupKeySerializesByRef(t *testing.T) {
	a := NewTagPush("refs/tags/v1.0.0")
	b := NewTagPush("refs/tags/v1.0.0")
	c := NewTagPush("refs/tags/v2.0.0")

	if a.GroupKey() != b.GroupKey() {
		t.Error("same ref must share a concurrency group")
	}
	if a.GroupKey() == c.GroupKey() {
		t.Error("different refs must not share a concurrency group")
	}
	if NewManualDispatch().GroupKey() != "manual" {
		t.Error("manual dispatch group key drifted")
	}
}

func TestNewEvaluatorRejectsBadPattern(t *testing.T) {
	if _, err := NewEvaluator("["); err == nil {
		t.Error("expected error for malformed pattern")
	}
	if _, err := NewEvaluator(""); err == nil {
		t.Error("expected error for empty pattern")
	}
}
