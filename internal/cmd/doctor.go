package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/parity/internal/exitcode"
	"github.com/felixgeelhaar/parity/internal/harness"
	"github.com/felixgeelhaar/parity/internal/health"
	"github.com/felixgeelhaar/parity/internal/sandbox"
	"github.com/felixgeelhaar/parity/internal/toolchain"
	"github.com/felixgeelhaar/parity/internal/transform"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that a run's collaborators are available",
	Long: `Run preflight checks for the configured run: fixture roots, compiler and
launcher binaries, the transformer binary and, with docker isolation, the
docker daemon and image policy.

Accepts the same flags as run; flags override the configuration file.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

var doctorOpts runOptions

func init() {
	doctorOpts.bind(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := doctorOpts.config(cmd)
	if err != nil {
		return err
	}

	checks := doctorChecks(cfg).Run(cmd.Context())
	overall := health.Overall(checks)

	out := cmd.OutOrStdout()
	if doctorJSON {
		data, err := json.MarshalIndent(struct {
			Status health.Status  `json:"status"`
			Checks []health.Check `json:"checks"`
		}{overall, checks}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal checks: %w", err)
		}
		fmt.Fprintln(out, string(data))
	} else {
		writeDoctorText(out, checks, overall)
	}

	if overall == health.StatusUnhealthy {
		return &exitcode.Error{Code: exitcode.InfrastructureError}
	}
	return nil
}

// doctorChecks builds the preflight checks for cfg
func doctorChecks(cfg harness.Config) *health.Manager {
	m := health.NewManager(health.NewRootsChecker(cfg.Roots, cfg.FixtureExtensions()))

	spec := cfg.ToolchainSpec
	if spec == nil {
		if preset, err := toolchain.Preset(cfg.Toolchain); err == nil {
			spec = &preset
		}
	}
	if spec != nil {
		if len(spec.Compile) > 0 {
			m.Add(health.NewBinaryChecker("compiler-binary", spec.Compile[0], "Install the "+spec.Name+" compiler or set toolchain_spec.compile"))
		}
		if len(spec.Run) > 0 {
			m.Add(health.NewBinaryChecker("launcher-binary", spec.Run[0], "Install the "+spec.Name+" runtime or set toolchain_spec.run"))
		}
	}

	if argv := transformerArgv(cfg); len(argv) > 0 {
		m.Add(health.NewBinaryChecker("transformer-binary", argv[0], "Check the --transformer command line"))
	}

	if cfg.Isolation == sandbox.IsolationDocker {
		m.Add(health.NewDockerChecker(cfg.Docker))
	}
	return m
}

func transformerArgv(cfg harness.Config) []string {
	if len(cfg.TransformerArgv) > 0 {
		return cfg.TransformerArgv
	}
	if cfg.Transformer == "" || cfg.Transformer == harness.IdentityTransformer {
		return nil
	}
	argv, err := transform.SplitCommand(cfg.Transformer)
	if err != nil {
		return nil
	}
	return argv
}

func writeDoctorText(w io.Writer, checks []health.Check, overall health.Status) {
	r := lipgloss.NewRenderer(w)
	styles := map[health.Status]lipgloss.Style{
		health.StatusHealthy:   r.NewStyle().Foreground(lipgloss.Color("10")),
		health.StatusDegraded:  r.NewStyle().Foreground(lipgloss.Color("11")),
		health.StatusUnhealthy: r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
	render := func(s health.Status, text string) string {
		if globalOpts.noColor {
			return text
		}
		return styles[s].Render(text)
	}
	symbols := map[health.Status]string{
		health.StatusHealthy:   "✓",
		health.StatusDegraded:  "~",
		health.StatusUnhealthy: "✗",
	}

	for _, c := range checks {
		s := c.Result.Status
		fmt.Fprintf(w, "  %s %-20s %s\n", render(s, symbols[s]), c.Name, c.Result.Message)
		if hint := c.Result.Details["suggestion"]; hint != "" && s != health.StatusHealthy {
			fmt.Fprintf(w, "      %s\n", hint)
		}
	}
	fmt.Fprintf(w, "\n%s\n", render(overall, string(overall)))
}
