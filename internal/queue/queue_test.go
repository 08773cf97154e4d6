package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/relforge/internal/events"
	"git.home.luguber.info/inful/relforge/internal/pipeline"
	"git.home.luguber.info/inful/relforge/internal/trigger"
)

// fakeRunner records run order and lets tests control run duration.
type fakeRunner struct {
	mu      sync.Mutex
	refs    []string
	block   chan struct{} // when set, runs wait here before returning
	started chan string   // when set, receives the ref as each run starts
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, ev trigger.Event) (*pipeline.RunResult, error) {
	f.mu.Lock()
	f.refs = append(f.refs, ev.Ref)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- ev.Ref
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.RunResult{RunID: "run-" + ev.Ref, Ref: ev.Ref}, nil
}

func (f *fakeRunner) order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.refs...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestEnqueueRequiresStart(t *testing.T) {
	q := New(10, &fakeRunner{})
	_, err := q.Enqueue(trigger.NewTagPush("refs/tags/v1.0.0"))
	require.Error(t, err)
}

func TestSameGroupRunsSerializeOldestFirst(t *testing.T) {
	runner := &fakeRunner{}
	q := New(10, runner)
	q.Start(context.Background())
	defer q.Stop()

	// Three pushes to the same ref: strictly FIFO within the group.
	for range 3 {
		_, err := q.Enqueue(trigger.NewTagPush("refs/tags/v1.0.0"))
		require.NoError(t, err)
	}

	waitFor(t, func() bool { return len(runner.order()) == 3 && q.Depth() == 0 })

	assert.Equal(t,
		[]string{"refs/tags/v1.0.0", "refs/tags/v1.0.0", "refs/tags/v1.0.0"},
		runner.order())

	// All three ran; none was displaced or canceled.
	completed := 0
	for _, j := range q.Jobs() {
		if j.Status == StatusCompleted {
			completed++
		}
	}
	assert.Equal(t, 3, completed)
}

func TestDifferentGroupsRunInParallel(t *testing.T) {
	runner := &fakeRunner{
		block:   make(chan struct{}),
		started: make(chan string, 2),
	}
	q := New(10, runner)
	q.Start(context.Background())
	defer q.Stop()

	_, err := q.Enqueue(trigger.NewTagPush("refs/tags/v1.0.0"))
	require.NoError(t, err)
	_, err = q.Enqueue(trigger.NewTagPush("refs/tags/v2.0.0"))
	require.NoError(t, err)

	// Both runs start while neither has finished.
	startedRefs := map[string]bool{}
	for range 2 {
		select {
		case ref := <-runner.started:
			startedRefs[ref] = true
		case <-time.After(2 * time.Second):
			t.Fatal("second group did not start in parallel")
		}
	}
	assert.Len(t, startedRefs, 2)

	close(runner.block)
}

func TestQueueCapacityRejectsOverflow(t *testing.T) {
	runner := &fakeRunner{
		block:   make(chan struct{}),
		started: make(chan string, 1),
	}
	q := New(1, runner)
	q.Start(context.Background())
	defer q.Stop()

	_, err := q.Enqueue(trigger.NewTagPush("refs/tags/v1.0.0"))
	require.NoError(t, err)
	<-runner.started // first job is running and still counted

	_, err = q.Enqueue(trigger.NewTagPush("refs/tags/v2.0.0"))
	require.Error(t, err, "full queue must reject, not displace")

	close(runner.block)
}

func TestJobSnapshotAndFailureStatus(t *testing.T) {
	runner := &fakeRunner{err: context.DeadlineExceeded}
	q := New(10, runner)
	q.Start(context.Background())
	defer q.Stop()

	job, err := q.Enqueue(trigger.NewManualDispatch())
	require.NoError(t, err)
	assert.Equal(t, "manual", job.Group)

	waitFor(t, func() bool {
		j, ok := q.JobSnapshot(job.ID)
		return ok && j.Status == StatusFailed
	})

	j, ok := q.JobSnapshot(job.ID)
	require.True(t, ok)
	assert.NotEmpty(t, j.Error)
	assert.NotNil(t, j.CompletedAt)
}

func TestQueuePublishesBusEvents(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	queued, unsubQueued := events.Subscribe[events.RunQueued](bus, 4)
	defer unsubQueued()
	finished, unsubFinished := events.Subscribe[events.RunFinished](bus, 4)
	defer unsubFinished()

	runner := &fakeRunner{}
	q := New(10, runner)
	q.SetBus(bus)
	q.Start(context.Background())
	defer q.Stop()

	_, err := q.Enqueue(trigger.NewTagPush("refs/tags/v1.0.0"))
	require.NoError(t, err)

	select {
	case evt := <-queued:
		assert.Equal(t, "refs/tags/v1.0.0", evt.Ref)
		assert.Equal(t, "refs/tags/v1.0.0", evt.GroupKey)
	case <-time.After(2 * time.Second):
		t.Fatal("no RunQueued event")
	}

	select {
	case evt := <-finished:
		assert.Equal(t, "refs/tags/v1.0.0", evt.Ref)
	case <-time.After(2 * time.Second):
		t.Fatal("no RunFinished event")
	}
}
