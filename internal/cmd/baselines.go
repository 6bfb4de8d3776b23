package cmd

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/parity/internal/baseline"
	"github.com/felixgeelhaar/parity/internal/errors"
	"github.com/felixgeelhaar/parity/internal/fixture"
	"github.com/felixgeelhaar/parity/internal/harness"
)

var (
	baselinesConfig string
	baselinesDir    string
	baselinesRoots  []string
	baselinesJSON   bool
)

var baselinesCmd = &cobra.Command{
	Use:   "baselines",
	Short: "List captured golden baselines",
	Long: `List the golden baselines stored in the baseline directory.

When fixture roots are configured each baseline is checked against the
fixture it was captured from: "stale" means the source or seed changed since
capture and the baseline will not be used, "orphaned" means the fixture no
longer exists.`,
	Args: cobra.NoArgs,
	RunE: runBaselines,
}

func init() {
	flags := baselinesCmd.Flags()
	flags.StringVarP(&baselinesConfig, "config", "c", "", "configuration file")
	flags.StringVar(&baselinesDir, "baseline-dir", "", "directory of golden baselines")
	flags.StringSliceVarP(&baselinesRoots, "roots", "r", nil, "fixture root directories used to detect stale baselines")
	flags.BoolVar(&baselinesJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(baselinesCmd)
}

// baselineInfo is the listing record of one baseline
type baselineInfo struct {
	FixtureID  string    `json:"fixture_id"`
	Seed       *int64    `json:"seed,omitempty"`
	ExitCode   int       `json:"exit_code"`
	StdoutSize int       `json:"stdout_bytes"`
	CapturedAt time.Time `json:"captured_at"`
	Status     string    `json:"status,omitempty"`
}

const (
	baselineCurrent  = "current"
	baselineStale    = "stale"
	baselineOrphaned = "orphaned"
)

func runBaselines(cmd *cobra.Command, args []string) error {
	cfg := harness.DefaultConfig()
	if baselinesConfig != "" {
		loaded, err := harness.LoadConfig(baselinesConfig)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	flags := cmd.Flags()
	if flags.Changed("baseline-dir") {
		cfg.BaselineDir = baselinesDir
	}
	if flags.Changed("roots") {
		cfg.Roots = baselinesRoots
	}

	store, infos, err := listBaselines(cfg)
	if err != nil {
		return err
	}
	if baselinesJSON {
		data, err := json.MarshalIndent(infos, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal baselines: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}
	writeBaselinesText(cmd.OutOrStdout(), store.Dir(), infos)
	return nil
}

func listBaselines(cfg harness.Config) (*baseline.Store, []baselineInfo, error) {
	if cfg.BaselineDir == "" {
		return nil, nil, errors.NewConfigInvalidError("no baseline directory configured").
			WithSuggestion("Pass --baseline-dir or set baseline_dir in the configuration file")
	}

	store := baseline.NewStore(cfg.BaselineDir)
	stored, err := store.List()
	if err != nil {
		return nil, nil, err
	}

	var current map[string]*fixture.Unit
	if len(cfg.Roots) > 0 {
		seq, err := fixture.NewLoader(cfg.FixtureExtensions()...).Load(cfg.Roots)
		if err != nil {
			return nil, nil, err
		}
		current = make(map[string]*fixture.Unit)
		for u := range seq {
			current[u.ID] = u
		}
	}

	infos := make([]baselineInfo, 0, len(stored))
	for _, b := range stored {
		info := baselineInfo{
			FixtureID:  b.FixtureID,
			Seed:       b.Seed,
			ExitCode:   b.ExitCode,
			StdoutSize: len(b.Stdout),
			CapturedAt: b.CapturedAt,
		}
		if current != nil {
			info.Status = baselineStatus(b, current[b.FixtureID])
		}
		infos = append(infos, info)
	}
	slices.SortFunc(infos, func(a, b baselineInfo) int {
		return cmp.Or(cmp.Compare(a.FixtureID, b.FixtureID), a.CapturedAt.Compare(b.CapturedAt))
	})
	return store, infos, nil
}

// baselineStatus reports whether b would still be used for u. Only a seed
// declared by the fixture manifest is known here; a baseline captured with a
// run-level seed counts as current when the source is unchanged.
func baselineStatus(b *baseline.Baseline, u *fixture.Unit) string {
	switch {
	case u == nil:
		return baselineOrphaned
	case u.SourceHash != b.SourceHash:
		return baselineStale
	case u.Manifest.Seed != nil && (b.Seed == nil || *b.Seed != *u.Manifest.Seed):
		return baselineStale
	}
	return baselineCurrent
}

func writeBaselinesText(w io.Writer, dir string, infos []baselineInfo) {
	if len(infos) == 0 {
		fmt.Fprintf(w, "No baselines in %s\n", dir)
		return
	}
	for _, info := range infos {
		seed := "-"
		if info.Seed != nil {
			seed = fmt.Sprintf("%d", *info.Seed)
		}
		fmt.Fprintf(w, "%s  seed=%s  exit=%d  stdout=%dB  %s",
			info.FixtureID, seed, info.ExitCode, info.StdoutSize, info.CapturedAt.Format(time.RFC3339))
		if info.Status != "" {
			fmt.Fprintf(w, "  %s", info.Status)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "\n%d baselines in %s\n", len(infos), dir)
}
