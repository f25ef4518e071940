package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/qaflow/qastatus/internal/config"
	"github.com/qaflow/qastatus/internal/debug"
	"github.com/qaflow/qastatus/internal/github"
	"github.com/qaflow/qastatus/internal/graphql"
	"github.com/qaflow/qastatus/internal/reconcile"
	"github.com/qaflow/qastatus/internal/report"
	"github.com/qaflow/qastatus/internal/telemetry"
	"github.com/qaflow/qastatus/internal/ui"
)

func newRunCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Reconcile once (same as running qastatus without a subcommand)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReconcile(cmd, opts)
		},
	}
}

// runReconcile loads the configuration, wires the GitHub client and runs one
// reconciliation pass. The summary goes to stdout, logs to stderr.
func runReconcile(cmd *cobra.Command, opts *cliOptions) error {
	debug.SetVerbose(opts.verbose)

	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: opts.configFile,
		EnvFile:    opts.envFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return err
	}
	format, err := debug.ParseFormat(cfg.LogFormat)
	if err != nil {
		return err
	}
	logger := debug.NewLogger(cmd.ErrOrStderr(), debug.Options{Verbose: opts.verbose, Format: format})
	debug.Logf("resolved config: endpoint=%s token=%s\n", cfg.Endpoint, config.MaskToken(cfg.Token))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := telemetry.Init(ctx, "qastatus", Version); err != nil {
		logger.Warn("telemetry disabled", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	engine := reconcile.NewEngine(newGitHubClient(cfg, logger), reconcile.OptionsFromConfig(cfg), logger)
	result, runErr := engine.Run(ctx)
	if result == nil {
		return runErr
	}

	fmt.Fprint(cmd.OutOrStdout(), ui.RenderSummary(result, ui.ShouldUseEmoji()))
	if err := report.AppendStepSummary(result); err != nil {
		logger.Warn("could not write job summary", "error", err)
	}
	if opts.reportPath != "" {
		if err := report.WriteFile(opts.reportPath, result); err != nil {
			logger.Error("could not write report", "path", opts.reportPath, "error", err)
			if runErr == nil {
				runErr = err
			}
		}
	}
	return runErr
}

// newGitHubClient builds the authenticated, instrumented client chain:
// graphql.Client -> telemetry decorator -> github.Client.
func newGitHubClient(cfg *config.Config, logger *slog.Logger) *github.Client {
	api := graphql.NewClient(cfg.Token, cfg.Endpoint).WithUserAgent("qastatus/" + Version)
	api = api.WithHTTPClient(telemetry.HTTPClient(api.HTTPClient))
	return github.NewClient(telemetry.WrapDoer(api), cfg.RepoOwner, cfg.RepoName).WithLogger(logger)
}
