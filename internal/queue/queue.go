// Package queue serializes runs per concurrency group. Runs for the same ref
// queue behind each other oldest-first and are never canceled by a newer
// arrival; runs for different refs proceed in parallel.
package queue

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/relforge/internal/events"
	"git.home.luguber.info/inful/relforge/internal/logfields"
	"git.home.luguber.info/inful/relforge/internal/metrics"
	"git.home.luguber.info/inful/relforge/internal/pipeline"
	"git.home.luguber.info/inful/relforge/internal/trigger"
)

// JobStatus is the lifecycle state of a queued run.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCanceled  JobStatus = "canceled"
)

// Job is one queued run request.
type Job struct {
	ID          string              `json:"id"`
	Event       trigger.Event       `json:"event"`
	Group       string              `json:"group"`
	Status      JobStatus           `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Error       string              `json:"error,omitempty"`
	Result      *pipeline.RunResult `json:"result,omitempty"`
}

// Runner executes one run for a trigger event. *pipeline.Pipeline satisfies
// this.
type Runner interface {
	Run(ctx context.Context, ev trigger.Event) (*pipeline.RunResult, error)
}

// Queue fans runs out across concurrency groups. One goroutine drains each
// group so same-group runs never overlap.
type Queue struct {
	mu      sync.Mutex
	groups  map[string]*group
	active  map[string]*Job
	history []*Job

	runner      Runner
	maxSize     int
	historySize int
	size        int // queued + running jobs across all groups

	recorder metrics.Recorder
	bus      *events.Bus

	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

type group struct {
	key     string
	pending []*Job
	running bool
}

// New creates a queue with a total capacity across all groups.
func New(maxSize int, runner Runner) *Queue {
	if maxSize <= 0 {
		maxSize = 100
	}
	if runner == nil {
		panic("queue.New: runner is required")
	}
	return &Queue{
		groups:      make(map[string]*group),
		active:      make(map[string]*Job),
		runner:      runner,
		maxSize:     maxSize,
		historySize: 50,
		recorder:    metrics.NewNoopRecorder(),
	}
}

// SetRecorder injects a metrics recorder.
func (q *Queue) SetRecorder(r metrics.Recorder) {
	if r != nil {
		q.recorder = r
	}
}

// SetBus injects an event bus for RunQueued/RunFinished notifications.
func (q *Queue) SetBus(b *events.Bus) {
	q.bus = b
}

// Start makes the queue accept jobs. The context bounds every run.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.started = true
	slog.Info("Run queue started", slog.Int("max_size", q.maxSize))
}

// Stop cancels the running jobs' context and waits for group drains to
// finish. Jobs still pending are marked canceled.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.started = false
	q.cancel()
	q.mu.Unlock()

	q.wg.Wait()
}

// Enqueue adds a run request to its concurrency group. It fails when the
// queue is stopped or at capacity; it never displaces an existing job.
func (q *Queue) Enqueue(ev trigger.Event) (*Job, error) {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return nil, stdErrors.New("queue is not started")
	}
	if q.size >= q.maxSize {
		q.mu.Unlock()
		return nil, stdErrors.New("queue is full")
	}

	key := ev.GroupKey()
	g, ok := q.groups[key]
	if !ok {
		g = &group{key: key}
		q.groups[key] = g
	}

	job := &Job{
		ID:        uuid.NewString(),
		Event:     ev,
		Group:     key,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
	}
	g.pending = append(g.pending, job)
	q.size++
	q.recorder.SetQueueDepth(key, len(g.pending))

	if !g.running {
		g.running = true
		q.wg.Add(1)
		go q.drain(g)
	}
	snapshot := *job
	q.mu.Unlock()

	slog.Info("Run queued",
		logfields.Group(key),
		logfields.Trigger(string(ev.Type)),
		logfields.Ref(ev.Ref))
	q.publish(events.RunQueued{
		RunID:    snapshot.ID,
		Ref:      ev.Ref,
		Trigger:  string(ev.Type),
		GroupKey: key,
		QueuedAt: snapshot.CreatedAt,
	})

	return &snapshot, nil
}

// drain processes a group's pending jobs one at a time, oldest first.
func (q *Queue) drain(g *group) {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		if len(g.pending) == 0 {
			g.running = false
			q.recorder.SetQueueDepth(g.key, 0)
			q.mu.Unlock()
			return
		}
		job := g.pending[0]
		g.pending = g.pending[1:]
		q.recorder.SetQueueDepth(g.key, len(g.pending))
		ctx := q.ctx
		q.mu.Unlock()

		if ctx.Err() != nil {
			q.finish(job, nil, ctx.Err(), StatusCanceled)
			continue
		}

		q.process(ctx, job)
	}
}

func (q *Queue) process(ctx context.Context, job *Job) {
	now := time.Now()
	q.mu.Lock()
	job.Status = StatusRunning
	job.StartedAt = &now
	q.active[job.ID] = job
	q.mu.Unlock()

	result, err := q.runner.Run(ctx, job.Event)

	status := StatusCompleted
	if err != nil || (result != nil && result.Failed() > 0) {
		status = StatusFailed
	}
	q.finish(job, result, err, status)

	if result != nil {
		q.publish(events.RunFinished{
			RunID:      result.RunID,
			Ref:        result.Ref,
			Succeeded:  result.Succeeded(),
			Failed:     result.Failed(),
			Duration:   result.Duration,
			FinishedAt: time.Now(),
		})
	}
}

func (q *Queue) finish(job *Job, result *pipeline.RunResult, err error, status JobStatus) {
	now := time.Now()
	q.mu.Lock()
	job.Status = status
	job.CompletedAt = &now
	job.Result = result
	if err != nil {
		job.Error = err.Error()
	}
	q.size--
	delete(q.active, job.ID)
	q.history = append(q.history, job)
	if len(q.history) > q.historySize {
		q.history = q.history[len(q.history)-q.historySize:]
	}
	q.mu.Unlock()

	if err != nil {
		slog.Error("Run failed", logfields.Group(job.Group), logfields.Error(err))
	}
}

// publish sends a bus event; delivery is best effort and bounded so a slow
// subscriber cannot wedge the queue.
func (q *Queue) publish(evt any) {
	if q.bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.bus.Publish(ctx, evt); err != nil {
		slog.Warn("Event publish failed", logfields.Error(err))
	}
}

// Depth returns queued (not yet running) jobs across all groups.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, g := range q.groups {
		n += len(g.pending)
	}
	return n
}

// Jobs returns copies of recent jobs, newest first: pending and running
// first, then history.
func (q *Queue) Jobs() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs := make([]*Job, 0, q.size+len(q.history))
	for _, j := range q.active {
		cp := *j
		jobs = append(jobs, &cp)
	}
	for _, g := range q.groups {
		for _, j := range g.pending {
			cp := *j
			jobs = append(jobs, &cp)
		}
	}
	for i := len(q.history) - 1; i >= 0; i-- {
		cp := *q.history[i]
		jobs = append(jobs, &cp)
	}
	return jobs
}

// JobSnapshot returns a copy of a job by ID.
func (q *Queue) JobSnapshot(id string) (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if j, ok := q.active[id]; ok {
		cp := *j
		return &cp, true
	}
	for _, g := range q.groups {
		for _, j := range g.pending {
			if j.ID == id {
				cp := *j
				return &cp, true
			}
		}
	}
	for _, j := range q.history {
		if j.ID == id {
			cp := *j
			return &cp, true
		}
	}
	return nil, false
}
