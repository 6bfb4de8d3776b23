package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/parity/internal/errors"
	"github.com/felixgeelhaar/parity/internal/fixture"
	"github.com/felixgeelhaar/parity/internal/harness"
)

var (
	fixturesConfig    string
	fixturesRoots     []string
	fixturesExt       []string
	fixturesToolchain string
	fixturesJSON      bool
)

var fixturesCmd = &cobra.Command{
	Use:   "fixtures",
	Short: "List the fixtures a run would evaluate",
	Long: `List every fixture discovered under the given roots with its identity,
entry point and source hash. Fixtures that could not be read are listed with
their error.`,
	Args: cobra.NoArgs,
	RunE: runFixtures,
}

func init() {
	flags := fixturesCmd.Flags()
	flags.StringVarP(&fixturesConfig, "config", "c", "", "configuration file")
	flags.StringSliceVarP(&fixturesRoots, "roots", "r", nil, "fixture root directories (comma-separated)")
	flags.StringSliceVar(&fixturesExt, "ext", nil, "fixture file extensions (default follows the toolchain)")
	flags.StringVar(&fixturesToolchain, "toolchain", "java", "toolchain preset (java, shell)")
	flags.BoolVar(&fixturesJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(fixturesCmd)
}

// fixtureInfo is the listing record of one fixture
type fixtureInfo struct {
	ID    string `json:"id"`
	Entry string `json:"entry,omitempty"`
	Hash  string `json:"source_blake3,omitempty"`
	Seed  *int64 `json:"seed,omitempty"`
	Skip  string `json:"skip,omitempty"`
	Error string `json:"error,omitempty"`
}

func runFixtures(cmd *cobra.Command, args []string) error {
	cfg := harness.DefaultConfig()
	if fixturesConfig != "" {
		loaded, err := harness.LoadConfig(fixturesConfig)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	flags := cmd.Flags()
	if flags.Changed("roots") {
		cfg.Roots = fixturesRoots
	}
	if flags.Changed("ext") {
		cfg.Extensions = fixturesExt
	}
	if flags.Changed("toolchain") {
		cfg.Toolchain = fixturesToolchain
		cfg.ToolchainSpec = nil
	}

	infos, err := listFixtures(cfg)
	if err != nil {
		return err
	}
	if fixturesJSON {
		return writeFixturesJSON(cmd.OutOrStdout(), infos)
	}
	writeFixturesText(cmd.OutOrStdout(), infos)
	return nil
}

func listFixtures(cfg harness.Config) ([]fixtureInfo, error) {
	if len(cfg.Roots) == 0 {
		return nil, errors.NewConfigInvalidError("at least one fixture root is required").
			WithSuggestion("Pass --roots or set roots in the configuration file")
	}

	exts := cfg.FixtureExtensions()
	seq, err := fixture.NewLoader(exts...).Load(cfg.Roots)
	if err != nil {
		return nil, err
	}

	infos := []fixtureInfo{}
	for u := range seq {
		info := fixtureInfo{ID: u.ID}
		if u.Err != nil {
			info.Error = u.Err.Error()
		} else {
			info.Entry = u.Entry.Class
			info.Hash = u.SourceHash
			info.Seed = u.Manifest.Seed
			info.Skip = u.Manifest.Skip
		}
		infos = append(infos, info)
	}
	if len(infos) == 0 {
		return nil, errors.NewNoFixturesError(cfg.Roots, exts)
	}
	return infos, nil
}

func writeFixturesJSON(w io.Writer, infos []fixtureInfo) error {
	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal fixtures: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func writeFixturesText(w io.Writer, infos []fixtureInfo) {
	for _, info := range infos {
		switch {
		case info.Error != "":
			fmt.Fprintf(w, "%s  error: %s\n", info.ID, info.Error)
		case info.Skip != "":
			fmt.Fprintf(w, "%s  %s  skip: %s\n", info.ID, info.Entry, info.Skip)
		default:
			fmt.Fprintf(w, "%s  %s  %s\n", info.ID, info.Entry, shortHash(info.Hash))
		}
	}
	fmt.Fprintf(w, "\n%d fixtures\n", len(infos))
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
