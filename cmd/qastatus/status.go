package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qaflow/qastatus/internal/config"
	"github.com/qaflow/qastatus/internal/ui"
)

func newStatusCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the resolved configuration and whether a run can start",
		Long: `Show every configuration key with its resolved value, the environment
variables it reads, and whether the configuration is complete. The token is
masked. Exits non-zero when a run could not start.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output JSON")
	return cmd
}

type statusOutput struct {
	Valid    bool              `json:"valid"`
	Error    string            `json:"error,omitempty"`
	Settings map[string]string `json:"settings"`
}

func runStatus(cmd *cobra.Command, opts *cliOptions) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Resolve(config.LoadOptions{
		ConfigFile: opts.configFile,
		EnvFile:    opts.envFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return err
	}
	validErr := cfg.Validate()

	if opts.jsonOutput {
		result := statusOutput{Valid: validErr == nil, Settings: make(map[string]string)}
		if validErr != nil {
			result.Error = validErr.Error()
		}
		for _, s := range cfg.Redacted() {
			result.Settings[s.Key] = s.Value
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("failed to encode status: %w", err)
		}
		return validErr
	}

	fmt.Fprintln(out, ui.RenderHeader("qastatus configuration"))
	if cfg.ConfigFile != "" {
		fmt.Fprintf(out, "  %s %s\n", ui.RenderMuted("config file:"), cfg.ConfigFile)
	}
	if cfg.EnvFile != "" {
		fmt.Fprintf(out, "  %s %s\n", ui.RenderMuted("env file:"), cfg.EnvFile)
	}
	fmt.Fprintln(out)

	envs := config.KeyEnvMap()
	for _, s := range cfg.Redacted() {
		value := s.Value
		if value == "" {
			value = ui.RenderMuted("(not set)")
		}
		fmt.Fprintf(out, "  %-22s %s\n", s.Key+":", value)
		if names := envs[s.Key]; len(names) > 0 {
			fmt.Fprintf(out, "  %-22s %s\n", "", ui.RenderMuted(ui.TreeLast+joinEnv(names)))
		}
	}
	fmt.Fprintln(out)

	icons := ui.ShouldUseEmoji()
	if validErr != nil {
		fmt.Fprintln(out, ui.RenderCheck(false, validErr.Error(), icons))
		return validErr
	}
	fmt.Fprintln(out, ui.RenderCheck(true, "ready to run", icons))
	return nil
}

func joinEnv(names []string) string {
	s := "$" + names[0]
	for _, n := range names[1:] {
		s += ", $" + n
	}
	return s
}
