package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/relforge/internal/archive"
	"git.home.luguber.info/inful/relforge/internal/config"
	rferrors "git.home.luguber.info/inful/relforge/internal/errors"
	"git.home.luguber.info/inful/relforge/internal/events"
	"git.home.luguber.info/inful/relforge/internal/eventstore"
	"git.home.luguber.info/inful/relforge/internal/logfields"
	"git.home.luguber.info/inful/relforge/internal/provision"
	"git.home.luguber.info/inful/relforge/internal/runner"
)

// StepResult captures one completed step within a branch.
type StepResult struct {
	Name     string
	State    BranchState
	Duration time.Duration
}

// BranchResult is the terminal outcome of one platform branch.
type BranchResult struct {
	Platform  string
	State     BranchState
	Steps     []StepResult
	Asset     string // Archive filename once uploaded
	SHA256    string // Artifact content hash once uploaded
	Published bool
	Duration  time.Duration
	Err       error
}

// Failed reports whether the branch ended in StateFailed.
func (r BranchResult) Failed() bool { return r.State == StateFailed }

// branch executes the full step sequence for one platform in its own
// directory. Branches never share state; each performs its own checkout,
// provisioning and build.
type branch struct {
	p        *Pipeline
	platform config.PlatformConfig
	dir      string

	runID    string
	tag      string
	eligible bool

	state       BranchState
	steps       []StepResult
	srcDir      string
	runtime     *provision.Runtime
	execPath    string
	zipPath     string
	payload     []byte
	payloadHash string
}

func (b *branch) log() *slog.Logger {
	return slog.With(logfields.RunID(b.runID), logfields.Platform(b.platform.OS))
}

// run drives the branch to a terminal state. The first failing step is
// terminal; there are no retries.
func (b *branch) run(ctx context.Context) BranchResult {
	start := time.Now()
	b.state = StatePending

	type step struct {
		name string
		next BranchState
		fn   func(context.Context) error
	}

	sequence := []step{
		{StepCheckout, StatePending, b.stepCheckout},
		{StepProvision, StateProvisioned, b.stepProvision},
		{StepDeps, StateDepsInstalled, b.stepDeps},
		{StepBuild, StateBuilt, b.stepBuild},
		{StepArchive, StateArchived, b.stepArchive},
		{StepUpload, StateUploaded, b.stepUpload},
		{StepPublish, StatePublished, b.stepPublish},
	}

	for _, s := range sequence {
		stepStart := time.Now()
		if err := s.fn(ctx); err != nil {
			return b.fail(ctx, s.name, err, time.Since(start))
		}
		// stepPublish sets the state itself to distinguish published from
		// skipped-publish.
		if s.name != StepPublish {
			b.state = s.next
		}
		d := time.Since(stepStart)
		b.steps = append(b.steps, StepResult{Name: s.name, State: b.state, Duration: d})
		b.p.recorder.RecordStepDuration(s.name, d)
		_ = b.p.emitter.BranchStep(ctx, b.runID, eventstore.BranchStepPayload{
			Platform: b.platform.OS,
			Step:     s.name,
			State:    string(b.state),
			Duration: d,
		})
	}

	published := b.state == StatePublished
	b.state = StateDone
	total := time.Since(start)

	outcome := "done"
	if !published {
		outcome = "skipped-publish"
	}
	b.p.recorder.RecordBranchOutcome(b.platform.OS, outcome)
	_ = b.p.emitter.BranchCompleted(ctx, b.runID, eventstore.BranchCompletedPayload{
		Platform:  b.platform.OS,
		Asset:     b.platform.ArchiveName(),
		Published: published,
		Duration:  total,
	})
	completedLog := b.log().With(
		logfields.State(string(b.state)),
		logfields.Asset(b.platform.ArchiveName()),
		slog.Bool("published", published),
		logfields.DurationMS(float64(total.Milliseconds())))
	if b.runtime != nil {
		completedLog = completedLog.With(slog.String("runtime_version", b.runtime.Version))
	}
	completedLog.Info("Branch completed")

	return BranchResult{
		Platform:  b.platform.OS,
		State:     StateDone,
		Steps:     b.steps,
		Asset:     b.platform.ArchiveName(),
		SHA256:    b.payloadHash,
		Published: published,
		Duration:  total,
	}
}

func (b *branch) fail(ctx context.Context, step string, err error, total time.Duration) BranchResult {
	category := string(rferrors.GetCategory(err))
	b.p.recorder.RecordBranchOutcome(b.platform.OS, "failed")
	_ = b.p.emitter.BranchFailed(ctx, b.runID, eventstore.BranchFailedPayload{
		Platform: b.platform.OS,
		Step:     step,
		Category: category,
		Error:    err.Error(),
	})
	b.log().Error("Branch failed",
		logfields.Step(step),
		slog.String("category", category),
		logfields.Error(err))

	return BranchResult{
		Platform: b.platform.OS,
		State:    StateFailed,
		Steps:    b.steps,
		Duration: total,
		Err:      err,
	}
}

func (b *branch) stepCheckout(ctx context.Context) error {
	srcDir, err := b.p.checkout.Checkout(ctx, b.p.cfg.Project, b.tag, b.dir)
	if err != nil {
		return err
	}
	b.srcDir = srcDir
	return nil
}

func (b *branch) stepProvision(ctx context.Context) error {
	rt, err := provision.New(b.p.cfg.Runtime).Ensure(ctx)
	if err != nil {
		return err
	}
	b.runtime = rt
	return nil
}

func (b *branch) stepDeps(ctx context.Context) error {
	run := runner.New(b.srcDir)
	for _, line := range b.p.cfg.Build.DepsInstall {
		result, err := run.RunLine(ctx, line)
		if err != nil {
			return rferrors.DependencyError("dependency install command failed").
				WithCause(err).
				WithContext("command", line).
				WithContext("output", tail(resultOutput(result), 2048)).
				Build()
		}
	}
	return nil
}

func (b *branch) stepBuild(ctx context.Context) error {
	run := runner.New(b.srcDir)
	args := []string{"--onefile", "--name", b.p.cfg.Build.OutputName, b.p.cfg.Build.EntryPoint}
	result, err := run.Run(ctx, b.p.cfg.Build.Packager, args...)
	if err != nil {
		return rferrors.BuildError("packager invocation failed").
			WithCause(err).
			WithContext("packager", b.p.cfg.Build.Packager).
			WithContext("output", tail(resultOutput(result), 2048)).
			Build()
	}

	execPath := filepath.Join(b.srcDir, "dist", b.platform.Executable)
	if _, err := os.Stat(execPath); err != nil {
		return rferrors.BuildError("packager produced no executable").
			WithCause(err).
			WithContext("expected", execPath).
			Build()
	}
	b.execPath = execPath
	return nil
}

func (b *branch) stepArchive(_ context.Context) error {
	zipPath := filepath.Join(b.dir, b.platform.ArchiveName())
	if err := archive.ForOS(b.platform.OS).Create(b.execPath, zipPath); err != nil {
		return rferrors.ArchiveError("archive creation failed").
			WithCause(err).
			WithContext("executable", b.execPath).
			WithContext("archive", zipPath).
			Build()
	}
	b.zipPath = zipPath
	return nil
}

func (b *branch) stepUpload(ctx context.Context) error {
	payload, err := os.ReadFile(b.zipPath)
	if err != nil {
		return rferrors.StorageError("failed to read archive for upload").
			WithCause(err).
			WithContext("archive", b.zipPath).
			Build()
	}

	b.payload = payload

	// A store failure never fails the branch once the archive exists; the
	// payload is still in hand for publishing.
	record, err := b.p.store.Put(ctx, b.platform.ArchiveName(), b.runID, payload)
	if err != nil {
		storeErr := rferrors.StorageError("artifact upload failed").
			WithCause(err).
			WithContext("asset", b.platform.ArchiveName()).
			Build()
		b.log().Warn("Artifact store rejected archive, continuing",
			logfields.Asset(b.platform.ArchiveName()),
			logfields.Error(storeErr))
		return nil
	}
	b.payloadHash = record.SHA256
	return nil
}

// stepPublish attaches the uploaded archive to the release. Runs that are not
// release eligible (manual dispatch) or have no forge configured skip this
// step; the archive stays available in the artifact store either way.
func (b *branch) stepPublish(ctx context.Context) error {
	if !b.eligible || b.p.publisher == nil {
		b.state = StateSkippedPublish
		return nil
	}

	asset, err := b.p.publisher.AttachAsset(ctx, b.tag, b.platform.ArchiveName(), b.payload)
	if err != nil {
		b.p.recorder.RecordPublish(string(b.p.publisher.GetType()), "error")
		return err
	}
	b.p.recorder.RecordPublish(string(b.p.publisher.GetType()), "ok")

	_ = b.p.emitter.AssetPublished(ctx, b.runID, eventstore.AssetPublishedPayload{
		Platform: b.platform.OS,
		Asset:    asset.Name,
		Tag:      b.tag,
		Size:     asset.Size,
	})
	if b.p.bus != nil {
		busCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_ = b.p.bus.Publish(busCtx, events.AssetPublished{
			RunID:       b.runID,
			Tag:         b.tag,
			Platform:    b.platform.OS,
			Asset:       asset.Name,
			PublishedAt: time.Now(),
		})
		cancel()
	}
	b.state = StatePublished
	return nil
}

func resultOutput(r *runner.Result) string {
	if r == nil {
		return ""
	}
	return r.Output
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
