// Command qastatus moves issues referenced by merged pull requests to the
// "QA Testing" status of a GitHub project board.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// cliOptions holds the values of the persistent flags. Flags that map to
// configuration keys (--dry-run, --log-format) are read through viper instead.
type cliOptions struct {
	configFile string
	envFile    string
	verbose    bool
	reportPath string
	jsonOutput bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:   "qastatus",
		Short: "Move issues referenced by merged pull requests to QA Testing",
		Long: `qastatus scans the merged pull requests of a branch for issue references
(#N, repo#N, org/repo#N), and for every referenced issue that is still open
sets the project board status to "QA Testing" and posts a notification comment.

Runs are idempotent: an issue that already carries the notification for a pull
request is left alone. Configuration comes from GitHub Actions environment
variables, an optional .env file, an optional YAML config file and flags.
Run 'qastatus status' to see the resolved settings.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReconcile(cmd, opts)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "YAML config file")
	pf.StringVar(&opts.envFile, "env-file", ".env", "dotenv file merged into the environment when present")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	pf.String("log-format", "text", "Log format (text, json)")
	pf.Bool("dry-run", false, "Log intended changes without writing them")
	pf.StringVar(&opts.reportPath, "report", "", "Write the run report to this file (.json, .yaml; - for stdout)")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newVersionCmd(opts))
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
