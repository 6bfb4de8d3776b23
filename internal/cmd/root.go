package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/parity/internal/errors"
	"github.com/felixgeelhaar/parity/internal/exitcode"
	"github.com/felixgeelhaar/parity/internal/log"
	"github.com/felixgeelhaar/parity/internal/version"
)

// globalOptions holds the persistent flags shared by every command
type globalOptions struct {
	logLevel  string
	logFormat string
	noColor   bool
	quiet     bool
}

var globalOpts globalOptions

var rootCmd = &cobra.Command{
	Use:   "parity",
	Short: "Behavioral equivalence tests for program transformers",
	Long: `parity checks that a program transformer preserves behavior.

Every fixture program is compiled and run as-is, transformed, recompiled and
run again. The two runs are compared on exit code, standard output and the
exceptions they report, and each fixture gets one verdict: equivalent,
equivalent with a caveat, divergent, transform error or infrastructure error.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := log.ConfigFromFlags(globalOpts.logLevel, globalOpts.logFormat, version.Version)
		cfg.Output = cmd.ErrOrStderr()
		log.SetDefaultLogger(log.New(cfg))
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx, which commands use for
// cancellation
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// HandleError reports err on w and returns the process exit code. Only a
// run that was cancelled part way, and so already wrote its partial report,
// exits as interrupted with the cancellation notice.
func HandleError(err error, w io.Writer) int {
	if err == nil {
		return exitcode.Success
	}
	if errors.CodeOf(err) == errors.ErrCodeRunCancelled {
		fmt.Fprintln(w, "\nRun cancelled; partial report written")
		return exitcode.Interrupted
	}
	if !exitcode.Silent(err) {
		fmt.Fprintf(w, "Error: %v\n", err)
	}
	return exitcode.DetermineExitCode(err)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&globalOpts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	flags.StringVar(&globalOpts.logFormat, "log-format", "text", "log format (text, json)")
	flags.BoolVar(&globalOpts.noColor, "no-color", false, "disable colored output")
	flags.BoolVarP(&globalOpts.quiet, "quiet", "q", false, "suppress progress output")
}
