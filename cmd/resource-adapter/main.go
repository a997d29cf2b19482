// Package main is the entry point for the resource-adapter binary. It
// supports two subcommands:
//
//   - run:   registers the bundled kinds and reconciles their
//     resources until stopped
//   - kinds: lists the bundled kinds without contacting a cluster
//
// Dependencies are assembled via Google Wire; see wire.go.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/otterscale/resource-adapter/internal/cmd"
	"github.com/otterscale/resource-adapter/internal/cmd/adapter"
	"github.com/otterscale/resource-adapter/internal/config"
	"github.com/otterscale/resource-adapter/internal/core"
	"github.com/otterscale/resource-adapter/internal/plugins"
	"github.com/otterscale/resource-adapter/internal/plugins/mirror"
)

// version is injected at build time via -ldflags
// (e.g. -ldflags "-X main.version=v1.2.3").
var version = "devel"

func main() {
	// Cancel on SIGINT (Ctrl+C) or SIGTERM (container runtime).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		// Cobra is configured with SilenceErrors: true, so we
		// print the error here for consistent formatting.
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires all dependencies and executes the root Cobra command.
func run(ctx context.Context) error {
	rootCmd, cleanup, err := wireCmd()
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer cleanup()

	return rootCmd.ExecuteContext(ctx)
}

// newCmd is a Wire provider that constructs the root Cobra command and
// registers the subcommands. The run injector is captured by a closure
// so that it only executes after flags are parsed.
func newCmd(conf *config.Config) (*cobra.Command, error) {
	c := &cobra.Command{
		Use:           "resource-adapter",
		Short:         "Reconciles custom resources through compiled-in plugins.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			setupLogging(conf.DebugEnabled())
		},
	}

	runCmd, err := cmd.NewRunCommand(conf, func() (*adapter.Adapter, func(), error) {
		slog.Info("starting resource-adapter", "version", core.Version(version))
		return wireAdapter(conf)
	})
	if err != nil {
		return nil, err
	}

	kindsCmd := cmd.NewKindsCommand(func() (*core.Registry, error) {
		return core.NewRegistry(plugins.ProvidePlugins(mirror.New(nil, conf.MirrorNamespace()))...)
	})

	c.AddCommand(runCmd, kindsCmd)

	return c, nil
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func provideRegistrarConfig(conf *config.Config) core.RegistrarConfig {
	return core.RegistrarConfig{
		PollInterval: conf.RegistrationPollInterval(),
		Timeout:      conf.RegistrationTimeout(),
	}
}

func provideLoopConfig(conf *config.Config) core.LoopConfig {
	return core.LoopConfig{
		BackoffBase: conf.WatchBackoffBase(),
		BackoffMax:  conf.WatchBackoffMax(),
	}
}
