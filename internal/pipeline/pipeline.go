// Package pipeline executes release runs: one checkout-build-archive-upload
// sequence per target platform, fanned out in parallel, with publishing
// gated on the trigger's release eligibility.
package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/relforge/internal/artifact"
	"git.home.luguber.info/inful/relforge/internal/checkout"
	"git.home.luguber.info/inful/relforge/internal/config"
	"git.home.luguber.info/inful/relforge/internal/events"
	"git.home.luguber.info/inful/relforge/internal/eventstore"
	"git.home.luguber.info/inful/relforge/internal/logfields"
	"git.home.luguber.info/inful/relforge/internal/metrics"
	"git.home.luguber.info/inful/relforge/internal/notes"
	"git.home.luguber.info/inful/relforge/internal/release"
	"git.home.luguber.info/inful/relforge/internal/trigger"
	"git.home.luguber.info/inful/relforge/internal/workspace"
)

// RunResult aggregates the terminal outcome of a full run.
type RunResult struct {
	RunID    string
	Trigger  string
	Ref      string
	Tag      string
	Eligible bool
	Branches []BranchResult
	Duration time.Duration
}

// Succeeded counts branches that reached done.
func (r *RunResult) Succeeded() int {
	n := 0
	for _, b := range r.Branches {
		if !b.Failed() {
			n++
		}
	}
	return n
}

// Failed counts branches that ended in failed.
func (r *RunResult) Failed() int {
	return len(r.Branches) - r.Succeeded()
}

// PublishedAssets lists archive filenames that were attached to the release.
func (r *RunResult) PublishedAssets() []string {
	var assets []string
	for _, b := range r.Branches {
		if b.Published {
			assets = append(assets, b.Asset)
		}
	}
	return assets
}

// Pipeline runs the release sequence described by a pipeline definition.
type Pipeline struct {
	cfg       *config.Config
	eval      *trigger.Evaluator
	checkout  *checkout.Client
	store     artifact.Store
	publisher release.Publisher // nil when no forge is configured
	recorder  metrics.Recorder
	emitter   *eventstore.Emitter
	bus       *events.Bus // nil outside the daemon
	baseDir   string
}

// New creates a pipeline. store is required; publisher may be nil for
// build-only setups.
func New(cfg *config.Config, store artifact.Store, publisher release.Publisher) (*Pipeline, error) {
	eval, err := trigger.NewEvaluator(cfg.Trigger.TagPattern)
	if err != nil {
		return nil, err
	}

	co := checkout.NewClient()
	if cfg.Forge.HasCredential() {
		co = co.WithToken(cfg.Forge.Auth.Token)
	}

	return &Pipeline{
		cfg:       cfg,
		eval:      eval,
		checkout:  co,
		store:     store,
		publisher: publisher,
		recorder:  metrics.NewNoopRecorder(),
		baseDir:   os.TempDir(),
	}, nil
}

// WithRecorder attaches a metrics recorder.
func (p *Pipeline) WithRecorder(r metrics.Recorder) *Pipeline {
	if r != nil {
		p.recorder = r
	}
	return p
}

// WithEmitter attaches an event journal emitter.
func (p *Pipeline) WithEmitter(e *eventstore.Emitter) *Pipeline {
	p.emitter = e
	return p
}

// WithBus attaches the in-process event bus for live run events.
func (p *Pipeline) WithBus(b *events.Bus) *Pipeline {
	p.bus = b
	return p
}

// WithWorkDir overrides the base directory for run workspaces.
func (p *Pipeline) WithWorkDir(dir string) *Pipeline {
	if dir != "" {
		p.baseDir = dir
	}
	return p
}

// Run executes a full run for the trigger event. Platform branches run in
// parallel and fail independently; Run returns a result for every branch and
// never aborts siblings when one fails. The returned error covers run-level
// setup only (workspace creation, release creation).
func (p *Pipeline) Run(ctx context.Context, ev trigger.Event) (*RunResult, error) {
	runID := uuid.NewString()
	eligible := p.eval.ReleaseEligible(ev)
	tag := ev.Tag()
	start := time.Now()

	log := slog.With(logfields.RunID(runID), logfields.Trigger(string(ev.Type)), logfields.Ref(ev.Ref))
	log.Info("Run started",
		logfields.Tag(tag),
		slog.Bool("release_eligible", eligible),
		slog.Int("platforms", len(p.cfg.Platforms)))

	_ = p.emitter.RunStarted(ctx, runID, eventstore.RunStartedPayload{
		Trigger:   string(ev.Type),
		Ref:       ev.Ref,
		GroupKey:  ev.GroupKey(),
		Platforms: len(p.cfg.Platforms),
		Eligible:  eligible,
	})

	ws := workspace.NewManager(p.baseDir)
	if err := ws.Create(); err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			log.Warn("Workspace cleanup failed", logfields.Error(err))
		}
	}()

	if eligible && p.publisher != nil {
		if err := p.prepareRelease(ctx, ws, tag); err != nil {
			return nil, err
		}
	}

	results := make([]BranchResult, len(p.cfg.Platforms))
	var wg sync.WaitGroup
	for i, platform := range p.cfg.Platforms {
		dir, err := ws.BranchDir(platform.OS)
		if err != nil {
			return nil, err
		}
		wg.Add(1)
		go func(i int, platform config.PlatformConfig, dir string) {
			defer wg.Done()
			b := &branch{
				p:        p,
				platform: platform,
				dir:      dir,
				runID:    runID,
				tag:      tag,
				eligible: eligible,
			}
			results[i] = b.run(ctx)
		}(i, platform, dir)
	}
	wg.Wait()

	result := &RunResult{
		RunID:    runID,
		Trigger:  string(ev.Type),
		Ref:      ev.Ref,
		Tag:      tag,
		Eligible: eligible,
		Branches: results,
		Duration: time.Since(start),
	}

	p.recorder.RecordRunDuration(result.Duration)
	_ = p.emitter.RunCompleted(ctx, runID, eventstore.RunCompletedPayload{
		Succeeded: result.Succeeded(),
		Failed:    result.Failed(),
		Duration:  result.Duration,
	})
	log.Info("Run completed",
		slog.Int("succeeded", result.Succeeded()),
		slog.Int("failed", result.Failed()),
		logfields.DurationMS(float64(result.Duration.Milliseconds())))

	return result, nil
}

// prepareRelease creates the release for the tag up front so parallel
// branches only ever attach assets to an existing release. The release body
// comes from the project changelog when a section for the tag exists.
func (p *Pipeline) prepareRelease(ctx context.Context, ws *workspace.Manager, tag string) error {
	body := ""
	if p.cfg.Project.Changelog != "" {
		notesDir, err := ws.BranchDir("notes")
		if err != nil {
			return err
		}
		srcDir, err := p.checkout.Checkout(ctx, p.cfg.Project, tag, notesDir)
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(filepath.Join(srcDir, p.cfg.Project.Changelog))
		if err == nil {
			if section, ok := notes.Extract(raw, tag); ok {
				body = section
			}
		} else {
			slog.Warn("Changelog not readable, using empty release body",
				logfields.Path(p.cfg.Project.Changelog), logfields.Error(err))
		}
	}

	rel, err := p.publisher.EnsureRelease(ctx, tag, body)
	if err != nil {
		return err
	}
	slog.Info("Release ready", logfields.Tag(tag), logfields.URL(rel.URL))
	return nil
}
