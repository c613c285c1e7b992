// Package app wires the config, logger, runtime, inventory, builder, and
// orchestrator into a single entry point the CLI calls once per build.
//
// Grounded on lazydocker's pkg/app/app.go (the closers slice, the
// bootstrap-then-Run shape, KnownError's friendly-error mapping), adapted
// from a GUI bootstrap into a one-shot build-command bootstrap since this
// tool has no interactive dashboard.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/AI-Infra-Team/dependency-img-build/pkg/builder"
	"github.com/AI-Infra-Team/dependency-img-build/pkg/config"
	"github.com/AI-Infra-Team/dependency-img-build/pkg/declaration"
	"github.com/AI-Infra-Team/dependency-img-build/pkg/inventory"
	logpkg "github.com/AI-Infra-Team/dependency-img-build/pkg/log"
	"github.com/AI-Infra-Team/dependency-img-build/pkg/orchestrator"
	"github.com/AI-Infra-Team/dependency-img-build/pkg/runtime"
)

// App bootstraps one build invocation.
type App struct {
	closers []io.Closer

	Config       *config.AppConfig
	Log          *logrus.Entry
	Runtime      *runtime.Runner
	Inventory    *inventory.Inventory
	Builder      *builder.Builder
	Orchestrator *orchestrator.Orchestrator
}

// NewApp resolves the runtime binary, then wires every package built so far
// into an Orchestrator.
func NewApp(cfg *config.AppConfig) (*App, error) {
	app := &App{Config: cfg}
	app.Log = logpkg.NewLogger(cfg, "")

	bin, err := resolveRuntimeBinary(cfg.UserConfig.Runtime)
	if err != nil {
		return app, err
	}

	app.Runtime = runtime.NewRunner(app.Log, bin)
	app.Inventory = inventory.New(app.Log, app.Runtime)
	app.Inventory.MaxWorkers = cfg.UserConfig.MaxInventoryWorkers

	app.Builder = builder.New(app.Log, app.Runtime, cfg.ProjectDir, cfg.UserConfig.PreserveContainerOnFailure)
	app.Orchestrator = orchestrator.New(app.Log, app.Runtime, app.Inventory, app.Builder, cfg.ConfigDir)

	return app, nil
}

// resolveRuntimeBinary honors an explicit choice, otherwise prefers docker
// on PATH and falls back to podman.
func resolveRuntimeBinary(configured string) (string, error) {
	if configured != "" {
		if _, err := exec.LookPath(configured); err != nil {
			return "", fmt.Errorf("configured runtime %q not found on PATH: %w", configured, err)
		}
		return configured, nil
	}
	if _, err := exec.LookPath("docker"); err == nil {
		return "docker", nil
	}
	if _, err := exec.LookPath("podman"); err == nil {
		return "podman", nil
	}
	return "", fmt.Errorf("no container runtime found on PATH (tried docker, podman)")
}

// Build parses the declaration at path and runs it through the Orchestrator.
func (app *App) Build(ctx context.Context, path string, forceRebuild bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read declaration %s: %w", path, err)
	}
	decl, err := declaration.Parse(path, data)
	if err != nil {
		return err
	}
	return app.Orchestrator.Build(ctx, decl, forceRebuild)
}

// Close releases any resources registered during bootstrap.
func (app *App) Close() error {
	for _, closer := range app.closers {
		if err := closer.Close(); err != nil {
			return err
		}
	}
	return nil
}

type errorMapping struct {
	originalError string
	newError      string
}

// KnownError recognizes a handful of common failure messages and returns a
// friendlier replacement instead of a raw stack trace.
func (app *App) KnownError(err error) (string, bool) {
	errorMessage := err.Error()

	mappings := []errorMapping{
		{
			originalError: "Got permission denied while trying to connect to the Docker daemon socket",
			newError:      "cannot access the container runtime socket -- check that the daemon is running and your user has permission",
		},
		{
			originalError: "no container runtime found on PATH",
			newError:      "no container runtime found: install docker or podman and ensure it is on PATH",
		},
		{
			originalError: "configured runtime",
			newError:      "no container runtime found: the configured runtime is not on PATH -- install it or leave the runtime setting empty to auto-detect docker/podman",
		},
	}

	for _, mapping := range mappings {
		if strings.Contains(errorMessage, mapping.originalError) {
			return mapping.newError, true
		}
	}

	return "", false
}
