package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPrometheusRecorderExposition(t *testing.T) {
	r := NewPrometheusRecorder()

	r.RecordStepDuration("build", 12*time.Second)
	r.RecordBranchOutcome("linux", "done")
	r.RecordBranchOutcome("windows", "failed")
	r.RecordRunDuration(45 * time.Second)
	r.RecordPublish("github", "ok")
	r.SetQueueDepth("refs/tags/v1.0.0", 2)
	r.SetArtifactCount(7)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	body := string(raw)

	for _, want := range []string{
		`relforge_branch_outcomes_total{platform="linux",result="done"} 1`,
		`relforge_branch_outcomes_total{platform="windows",result="failed"} 1`,
		`relforge_publish_total{forge="github",result="ok"} 1`,
		`relforge_queue_depth{group="refs/tags/v1.0.0"} 2`,
		`relforge_artifacts_stored 7`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestNoopRecorderDoesNothing(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	r.RecordStepDuration("build", time.Second)
	r.RecordBranchOutcome("linux", "done")
	r.RecordRunDuration(time.Second)
	r.RecordPublish("github", "ok")
	r.SetQueueDepth("main", 1)
	r.SetArtifactCount(0)
}
