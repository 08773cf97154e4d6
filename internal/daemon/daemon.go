// Package daemon runs the release pipeline as a long-lived service: a
// webhook/dispatch HTTP API, a run queue with per-ref concurrency groups, a
// pipeline-definition watcher, and a periodic artifact retention sweep.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"git.home.luguber.info/inful/relforge/internal/artifact"
	"git.home.luguber.info/inful/relforge/internal/config"
	"git.home.luguber.info/inful/relforge/internal/events"
	"git.home.luguber.info/inful/relforge/internal/eventstore"
	"git.home.luguber.info/inful/relforge/internal/logfields"
	"git.home.luguber.info/inful/relforge/internal/metrics"
	"git.home.luguber.info/inful/relforge/internal/notify"
	"git.home.luguber.info/inful/relforge/internal/pipeline"
	"git.home.luguber.info/inful/relforge/internal/queue"
	"git.home.luguber.info/inful/relforge/internal/release"
	"git.home.luguber.info/inful/relforge/internal/trigger"
)

// Daemon wires the queue, pipeline, event journal, HTTP API and background
// workers together.
type Daemon struct {
	configPath string

	mu        sync.RWMutex
	cfg       *config.Config
	pipe      *pipeline.Pipeline
	publisher release.Publisher

	store      artifact.Store
	queue      *queue.Queue
	bus        *events.Bus
	recorder   *metrics.PrometheusRecorder
	eventStore eventstore.Store
	emitter    *eventstore.Emitter
	projection *eventstore.RunHistoryProjection
	notifier   notify.Notifier

	httpServer *HTTPServer
	watcher    *ConfigWatcher
	sweeper    *Sweeper

	startTime time.Time
	stopOnce  sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New assembles a daemon from a pipeline definition file.
func New(configPath string, cfg *config.Config) (*Daemon, error) {
	d := &Daemon{
		configPath: configPath,
		cfg:        cfg,
		bus:        events.NewBus(),
		recorder:   metrics.NewPrometheusRecorder(),
		notifier:   notify.NoopNotifier{},
	}

	store, err := artifact.NewFSStore(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}
	d.store = store

	if cfg.Daemon.DataDir != "" {
		es, err := eventstore.NewSQLiteStore(filepath.Join(cfg.Daemon.DataDir, "events.db"))
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to open event journal: %w", err)
		}
		d.eventStore = es
		d.emitter = eventstore.NewEmitter(es)
		d.projection = eventstore.NewRunHistoryProjection(es, 100)
	}

	if err := d.buildPipeline(cfg); err != nil {
		d.closeStores()
		return nil, err
	}

	if cfg.Notify != nil && cfg.Notify.Enabled {
		n, err := notify.NewNATSNotifier(cfg.Notify)
		if err != nil {
			d.closeStores()
			return nil, err
		}
		d.notifier = n
	}

	d.queue = queue.New(cfg.Daemon.QueueSize, d)
	d.queue.SetRecorder(d.recorder)
	d.queue.SetBus(d.bus)

	d.httpServer = NewHTTPServer(d)

	watcher, err := NewConfigWatcher(configPath, d)
	if err != nil {
		d.closeStores()
		return nil, err
	}
	d.watcher = watcher

	sweeper, err := NewSweeper(d.store, d.recorder)
	if err != nil {
		d.closeStores()
		return nil, err
	}
	d.sweeper = sweeper

	return d, nil
}

// buildPipeline constructs the pipeline and publisher for a definition.
// Called at startup and again on every definition reload.
func (d *Daemon) buildPipeline(cfg *config.Config) error {
	var publisher release.Publisher
	if cfg.Forge != nil {
		p, err := release.NewPublisher(cfg.Forge)
		if err != nil {
			return err
		}
		publisher = p
	}

	pipe, err := pipeline.New(cfg, d.store, publisher)
	if err != nil {
		return err
	}
	pipe.WithRecorder(d.recorder).WithEmitter(d.emitter).WithBus(d.bus)

	d.mu.Lock()
	d.cfg = cfg
	d.pipe = pipe
	d.publisher = publisher
	d.mu.Unlock()
	return nil
}

// Run implements queue.Runner by delegating to the current pipeline, so
// definition reloads take effect for the next run without draining the queue.
func (d *Daemon) Run(ctx context.Context, ev trigger.Event) (*pipeline.RunResult, error) {
	d.mu.RLock()
	pipe := d.pipe
	d.mu.RUnlock()
	return pipe.Run(ctx, ev)
}

// Config returns the current pipeline definition.
func (d *Daemon) Config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Start brings up all daemon components and blocks until ctx is canceled.
func (d *Daemon) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.startTime = time.Now()

	if d.projection != nil {
		if err := d.projection.Rebuild(ctx); err != nil {
			slog.Warn("Run history rebuild failed", logfields.Error(err))
		}
	}

	d.queue.Start(ctx)
	d.startNotifyLoop(ctx)

	if err := d.watcher.Start(ctx); err != nil {
		return err
	}
	d.sweeper.Start(d.Config().SweepInterval(), d.Config().Retention())

	if err := d.httpServer.Start(ctx, d.Config().Daemon.Listen); err != nil {
		return err
	}

	cfg := d.Config().Snapshot()
	slog.Info("Daemon started",
		slog.String("listen", cfg.Daemon.Listen),
		logfields.Name(cfg.Project.Name),
		slog.Int("platforms", len(cfg.Platforms)))

	<-ctx.Done()
	return d.Stop()
}

// Stop shuts components down in reverse startup order.
func (d *Daemon) Stop() error {
	var err error
	d.stopOnce.Do(func() {
		slog.Info("Daemon stopping")
		if d.cancel != nil {
			d.cancel()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		err = d.httpServer.Stop(shutdownCtx)
		d.sweeper.Stop()
		d.watcher.Stop()
		d.queue.Stop()
		d.bus.Close()
		d.wg.Wait()
		d.notifier.Close()
		d.closeStores()
		slog.Info("Daemon stopped")
	})
	return err
}

func (d *Daemon) closeStores() {
	if d.store != nil {
		if cerr := d.store.Close(); cerr != nil {
			slog.Warn("Artifact store close failed", logfields.Error(cerr))
		}
	}
	if d.eventStore != nil {
		if cerr := d.eventStore.Close(); cerr != nil {
			slog.Warn("Event journal close failed", logfields.Error(cerr))
		}
	}
}

// startNotifyLoop forwards run and asset bus events to the notifier and
// keeps the projection current.
func (d *Daemon) startNotifyLoop(ctx context.Context) {
	finished, unsubFinished := events.Subscribe[events.RunFinished](d.bus, 16)
	published, unsubPublished := events.Subscribe[events.AssetPublished](d.bus, 16)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer unsubFinished()
		defer unsubPublished()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-finished:
				if !ok {
					return
				}
				d.handleRunFinished(ctx, evt)
			case evt, ok := <-published:
				if !ok {
					return
				}
				d.handleAssetPublished(ctx, evt)
			}
		}
	}()
}

func (d *Daemon) handleAssetPublished(ctx context.Context, evt events.AssetPublished) {
	msg := notify.AssetNotification{
		RunID:    evt.RunID,
		Project:  d.Config().Project.Name,
		Tag:      evt.Tag,
		Platform: evt.Platform,
		Asset:    evt.Asset,
	}
	if err := d.notifier.AssetPublished(ctx, msg); err != nil {
		slog.Warn("Asset notification failed", logfields.Error(err))
	}
}

func (d *Daemon) handleRunFinished(ctx context.Context, evt events.RunFinished) {
	if d.projection != nil {
		if err := d.projection.Rebuild(ctx); err != nil {
			slog.Warn("Run history rebuild failed", logfields.Error(err))
		}
	}

	status := "completed"
	if evt.Failed > 0 {
		status = "failed"
	}
	cfg := d.Config()
	msg := notify.RunNotification{
		RunID:     evt.RunID,
		Project:   cfg.Project.Name,
		Ref:       evt.Ref,
		Status:    status,
		Succeeded: evt.Succeeded,
		Failed:    evt.Failed,
	}
	if d.projection != nil {
		if run := d.projection.GetRun(evt.RunID); run != nil {
			msg.Trigger = run.Trigger
			msg.Tag = trigger.Event{Type: trigger.EventTagPush, Ref: run.Ref}.Tag()
			msg.Assets = run.Assets
		}
	}
	if err := d.notifier.RunFinished(ctx, msg); err != nil {
		slog.Warn("Run notification failed", logfields.Error(err))
	}
}

// Enqueue submits a trigger event to the run queue.
func (d *Daemon) Enqueue(ev trigger.Event) (*queue.Job, error) {
	return d.queue.Enqueue(ev)
}
