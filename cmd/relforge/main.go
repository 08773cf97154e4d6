package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/relforge/internal/artifact"
	"git.home.luguber.info/inful/relforge/internal/config"
	"git.home.luguber.info/inful/relforge/internal/daemon"
	"git.home.luguber.info/inful/relforge/internal/logfields"
	"git.home.luguber.info/inful/relforge/internal/pipeline"
	"git.home.luguber.info/inful/relforge/internal/release"
	"git.home.luguber.info/inful/relforge/internal/trigger"
	"git.home.luguber.info/inful/relforge/internal/version"
)

var CLI struct {
	Config  string           `short:"c" help:"Pipeline definition file path" default:"relforge.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `help:"Print version and exit"`

	Run struct {
		Tag     string `short:"t" help:"Run as a tag push for this tag, e.g. v1.2.3"`
		WorkDir string `short:"w" help:"Base directory for run workspaces"`
	} `cmd:"" help:"Execute one release run and exit. Without --tag the run is a manual dispatch: it builds and uploads but never publishes."`

	Serve struct{} `cmd:"" help:"Run as a daemon: webhook intake, run queue, retention sweep"`

	Init struct {
		Force bool `help:"Overwrite existing definition file"`
	} `cmd:"" help:"Write a sample pipeline definition"`
}

func main() {
	ctx := kong.Parse(&CLI, kong.Vars{"version": version.Version})

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	switch ctx.Command() {
	case "run":
		if err := runOnce(CLI.Config, CLI.Run.Tag, CLI.Run.WorkDir); err != nil {
			slog.Error("Run failed", logfields.Error(err))
			os.Exit(1)
		}
	case "serve":
		if err := serve(CLI.Config); err != nil {
			slog.Error("Daemon failed", logfields.Error(err))
			os.Exit(1)
		}
	case "init":
		if err := config.WriteSample(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("Init failed", logfields.Error(err))
			os.Exit(1)
		}
		fmt.Printf("Wrote sample pipeline definition to %s\n", CLI.Config)
	}
}

// runOnce executes a single run in the foreground, the way a CI job would.
func runOnce(configPath, tag, workDir string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := artifact.NewFSStore(cfg.Storage.Dir)
	if err != nil {
		return err
	}
	defer store.Close()

	var publisher release.Publisher
	if cfg.Forge != nil {
		publisher, err = release.NewPublisher(cfg.Forge)
		if err != nil {
			return err
		}
	}

	pipe, err := pipeline.New(cfg, store, publisher)
	if err != nil {
		return err
	}
	pipe.WithWorkDir(workDir)

	var ev trigger.Event
	if tag != "" {
		ev = trigger.NewTagPush("refs/tags/" + tag)
	} else {
		if !cfg.Trigger.AllowManual {
			return fmt.Errorf("manual dispatch is disabled in the pipeline definition")
		}
		ev = trigger.NewManualDispatch()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := pipe.Run(ctx, ev)
	if err != nil {
		return err
	}
	if failed := result.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d platform branches failed", failed, len(result.Branches))
	}
	return nil
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	d, err := daemon.New(configPath, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return d.Start(ctx)
}
