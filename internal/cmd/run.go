package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/parity/internal/exitcode"
	"github.com/felixgeelhaar/parity/internal/harness"
	"github.com/felixgeelhaar/parity/internal/log"
	"github.com/felixgeelhaar/parity/internal/metrics"
	"github.com/felixgeelhaar/parity/internal/progress"
	"github.com/felixgeelhaar/parity/internal/report"
	"github.com/felixgeelhaar/parity/internal/transform"
)

// defaultConfigFile is read from the working directory when --config is not
// given
const defaultConfigFile = "parity.yaml"

type runOptions struct {
	configPath       string
	roots            []string
	extensions       []string
	timeout          time.Duration
	transformTimeout time.Duration
	concurrency      int
	baselineDir      string
	baselineMode     string
	transformer      string
	toolchain        string
	stage            string
	normalize        string
	seed             int64
	stabilityRuns    int
	format           string
	output           string
	metricsFile      string
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every fixture through the transformer and compare behavior",
	Long: `Run discovers fixture programs under the given roots, runs each one as-is
and after transformation, and reports a verdict per fixture.

Flags override values from the configuration file only when set.

Examples:
  # Round-trip Java fixtures through the identity transformer
  parity run --roots src/test/fixtures

  # Test a decompiler that reads a class directory and writes sources
  parity run --roots fixtures --stage artifact --transformer "decompile {in} -o {out}"

  # Seed every fixture and write a JSON report
  parity run --roots fixtures --seed 42 --format json --output report.json
`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runOpts.bind(runCmd)
	rootCmd.AddCommand(runCmd)
}

func (o *runOptions) bind(cmd *cobra.Command) {
	defaults := harness.DefaultConfig()
	flags := cmd.Flags()

	flags.StringVarP(&o.configPath, "config", "c", "", "configuration file (default ./"+defaultConfigFile+" when present)")
	flags.StringSliceVarP(&o.roots, "roots", "r", nil, "fixture root directories (comma-separated)")
	flags.StringSliceVar(&o.extensions, "ext", nil, "fixture file extensions (default follows the toolchain)")
	flags.Var(newDurationValue(defaults.Timeout, &o.timeout), "timeout", "wall-clock limit per program run, in seconds or as a duration")
	flags.Var(newDurationValue(defaults.TransformTimeout, &o.transformTimeout), "transform-timeout", "wall-clock limit per transformer call, in seconds or as a duration")
	flags.IntVarP(&o.concurrency, "concurrency", "j", defaults.Concurrency, "fixtures evaluated in parallel")
	flags.StringVar(&o.baselineDir, "baseline-dir", "", "directory of golden baselines")
	flags.StringVar(&o.baselineMode, "baseline-mode", defaults.BaselineMode, "baseline mode (live, golden)")
	flags.StringVarP(&o.transformer, "transformer", "t", defaults.Transformer, `transformer command line with {src} {out} {in} {name} placeholders, or "identity"`)
	flags.StringVar(&o.toolchain, "toolchain", defaults.Toolchain, "toolchain preset (java, shell)")
	flags.StringVar(&o.stage, "stage", string(defaults.Stage), "what the transformer rewrites (source, artifact)")
	flags.StringVar(&o.normalize, "normalize", defaults.Normalize, "output normalization (none, volatile)")
	flags.Int64Var(&o.seed, "seed", 0, "seed handed to fixtures that declare none")
	flags.IntVar(&o.stabilityRuns, "stability-runs", defaults.StabilityRuns, "runs of the original program used to detect nondeterminism")
	flags.StringVarP(&o.format, "format", "f", "text", "report format (text, json, yaml)")
	flags.StringVarP(&o.output, "output", "o", "", "also write the report to this file")
	flags.StringVar(&o.metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file")
}

// config loads the configuration file and applies explicitly set flags
func (o *runOptions) config(cmd *cobra.Command) (harness.Config, error) {
	cfg := harness.DefaultConfig()

	path := o.configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	if path != "" {
		loaded, err := harness.LoadConfig(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("roots") {
		cfg.Roots = o.roots
	}
	if flags.Changed("ext") {
		cfg.Extensions = o.extensions
	}
	if flags.Changed("timeout") {
		cfg.Timeout = o.timeout
	}
	if flags.Changed("transform-timeout") {
		cfg.TransformTimeout = o.transformTimeout
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = o.concurrency
	}
	if flags.Changed("baseline-dir") {
		cfg.BaselineDir = o.baselineDir
	}
	if flags.Changed("baseline-mode") {
		cfg.BaselineMode = o.baselineMode
	}
	if flags.Changed("transformer") {
		cfg.Transformer = o.transformer
		cfg.TransformerArgv = nil
	}
	if flags.Changed("toolchain") {
		cfg.Toolchain = o.toolchain
		cfg.ToolchainSpec = nil
	}
	if flags.Changed("stage") {
		cfg.Stage = transform.Stage(o.stage)
	}
	if flags.Changed("normalize") {
		cfg.Normalize = o.normalize
	}
	if flags.Changed("seed") {
		seed := o.seed
		cfg.Seed = &seed
	}
	if flags.Changed("stability-runs") {
		cfg.StabilityRuns = o.stabilityRuns
	}

	return cfg, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := runOpts.config(cmd)
	if err != nil {
		return err
	}
	return runSuite(cmd.Context(), cfg, runOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// runSuite runs the harness and writes the report, metrics and progress.
// The returned error carries the exit code for the run.
func runSuite(ctx context.Context, cfg harness.Config, o runOptions, stdout, stderr io.Writer) error {
	formatter, err := report.NewFormatter(o.format, &report.FormatterOptions{
		Writer:  stdout,
		NoColor: globalOpts.noColor,
	})
	if err != nil {
		return err
	}

	progressOut := stderr
	if globalOpts.quiet {
		progressOut = io.Discard
	}
	indicator := progress.NewIndicator(progress.Config{Writer: progressOut})

	registry, m := metrics.NewRegistry()
	logger := log.DefaultLogger()

	h := &harness.Harness{
		Logger:       logger,
		Metrics:      m,
		OnDiscovered: indicator.SetTotal,
		OnVerdict: func(id string, v report.Verdict) {
			indicator.Fixture(id, string(v.Kind), v.Kind.Passed())
		},
	}

	indicator.Start()
	rep, runErr := h.Run(ctx, cfg)
	indicator.Stop()

	if rep == nil {
		return runErr
	}

	if err := formatter.Format(rep); err != nil {
		return err
	}
	if o.output != "" {
		if err := rep.WriteFile(o.output, outputFormat(o.output, o.format)); err != nil {
			return err
		}
		logger.Info("report written", "path", o.output)
	}
	if o.metricsFile != "" {
		if err := metrics.WriteFile(registry, o.metricsFile); err != nil {
			logger.WithError(err).Warn("failed to write metrics", "path", o.metricsFile)
		}
	}

	if runErr != nil {
		return runErr
	}
	if code := exitcode.FromSummary(rep.Summary); code != exitcode.Success {
		return &exitcode.Error{Code: code}
	}
	return nil
}

// outputFormat picks the report file format from its extension, falling
// back to the stdout format
func outputFormat(path, fallback string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".txt", ".log":
		return "text"
	}
	if fallback == "" {
		return "text"
	}
	return fallback
}
