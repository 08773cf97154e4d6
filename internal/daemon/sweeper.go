package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/relforge/internal/artifact"
	"git.home.luguber.info/inful/relforge/internal/logfields"
	"git.home.luguber.info/inful/relforge/internal/metrics"
)

// Sweeper periodically deletes artifacts older than the retention window and
// refreshes the stored-artifact gauge.
type Sweeper struct {
	scheduler gocron.Scheduler
	store     artifact.Store
	recorder  metrics.Recorder
}

func NewSweeper(store artifact.Store, recorder metrics.Recorder) (*Sweeper, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	if recorder == nil {
		recorder = metrics.NewNoopRecorder()
	}
	return &Sweeper{scheduler: s, store: store, recorder: recorder}, nil
}

// Start schedules the sweep. A zero retention disables deletion; the gauge
// refresh still runs.
func (s *Sweeper) Start(interval, retention time.Duration) {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.sweep, retention),
		gocron.WithName("artifact-retention-sweep"),
	)
	if err != nil {
		slog.Error("Failed to schedule retention sweep", logfields.Error(err))
		return
	}

	s.scheduler.Start()
	slog.Info("Retention sweep scheduled",
		slog.Duration("interval", interval),
		slog.Duration("retention", retention))
}

func (s *Sweeper) Stop() {
	if err := s.scheduler.Shutdown(); err != nil {
		slog.Warn("Scheduler shutdown failed", logfields.Error(err))
	}
}

func (s *Sweeper) sweep(retention time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if retention > 0 {
		removed, err := s.store.Sweep(ctx, time.Now().Add(-retention))
		if err != nil {
			slog.Error("Retention sweep failed", logfields.Error(err))
		} else if removed > 0 {
			slog.Info("Retention sweep removed artifacts", slog.Int("removed", removed))
		}
	}

	records, err := s.store.List(ctx)
	if err != nil {
		slog.Warn("Artifact count refresh failed", logfields.Error(err))
		return
	}
	s.recorder.SetArtifactCount(len(records))
}
