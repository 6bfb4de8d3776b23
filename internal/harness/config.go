package harness

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/parity/internal/compare"
	"github.com/felixgeelhaar/parity/internal/errors"
	"github.com/felixgeelhaar/parity/internal/sandbox"
	"github.com/felixgeelhaar/parity/internal/toolchain"
	"github.com/felixgeelhaar/parity/internal/transform"
)

// Baseline modes
const (
	BaselineLive   = "live"
	BaselineGolden = "golden"
)

// IdentityTransformer names the built-in round-trip transformer
const IdentityTransformer = "identity"

// Config drives one harness run
type Config struct {
	// Roots are the fixture root directories
	Roots []string `yaml:"roots"`
	// Extensions selects fixture files; defaults follow the toolchain
	Extensions []string `yaml:"extensions,omitempty"`

	// Toolchain names a preset (java, shell); ToolchainSpec overrides it
	Toolchain     string          `yaml:"toolchain"`
	ToolchainSpec *toolchain.Spec `yaml:"toolchain_spec,omitempty"`

	// Transformer is "identity" or a command line with placeholders;
	// TransformerArgv, when set, is used verbatim instead
	Transformer     string          `yaml:"transformer"`
	TransformerArgv []string        `yaml:"transformer_argv,omitempty"`
	Stage           transform.Stage `yaml:"stage"`

	Timeout          time.Duration `yaml:"timeout"`
	TransformTimeout time.Duration `yaml:"transform_timeout"`
	OutputLimit      int           `yaml:"output_limit"`
	Concurrency      int           `yaml:"concurrency"`

	// StabilityRuns is how many times the original runs; disagreeing runs
	// mark the fixture nondeterministic
	StabilityRuns  int            `yaml:"stability_runs"`
	Normalize      string         `yaml:"normalize"`
	NormalizeRules []compare.Rule `yaml:"normalize_rules,omitempty"`
	MaxDiffLines   int            `yaml:"max_diff_lines"`

	// Seed fixes the entropy handed to fixtures without a manifest seed
	Seed *int64 `yaml:"seed,omitempty"`

	BaselineDir  string `yaml:"baseline_dir,omitempty"`
	BaselineMode string `yaml:"baseline_mode"`

	Isolation    sandbox.Isolation    `yaml:"isolation"`
	Docker       sandbox.DockerConfig `yaml:"docker,omitempty"`
	EnvAllowlist []string             `yaml:"env_allowlist,omitempty"`
	ManifestDir  string               `yaml:"manifest_dir,omitempty"`
	// WorkDir holds scratch build directories (os.TempDir when empty)
	WorkDir string `yaml:"work_dir,omitempty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Toolchain:        "java",
		Transformer:      IdentityTransformer,
		Stage:            transform.StageSource,
		Timeout:          sandbox.DefaultTimeout,
		TransformTimeout: transform.DefaultTimeout,
		OutputLimit:      sandbox.DefaultOutputLimit,
		Concurrency:      runtime.NumCPU(),
		StabilityRuns:    2,
		Normalize:        compare.ModeNone,
		MaxDiffLines:     compare.DefaultMaxDiffLines,
		BaselineMode:     BaselineLive,
		Isolation:        sandbox.IsolationProcess,
	}
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return cfg, errors.Wrap(errors.ErrCodeConfigNotFound, fmt.Sprintf("config file not found: %s", path), err)
		}
		return cfg, errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("read config %s", path), err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return cfg, errors.NewFileUnmarshalError(path, "YAML", err)
	}
	return cfg, nil
}

// Validate checks the configuration for consistency
func (c Config) Validate() error {
	if len(c.Roots) == 0 {
		return errors.NewConfigInvalidError("at least one fixture root is required")
	}
	if c.Timeout <= 0 {
		return errors.NewConfigInvalidError("timeout must be positive")
	}
	if c.TransformTimeout <= 0 {
		return errors.NewConfigInvalidError("transform_timeout must be positive")
	}
	if c.Concurrency < 1 {
		return errors.NewConfigInvalidError("concurrency must be at least 1")
	}
	if c.StabilityRuns < 1 {
		return errors.NewConfigInvalidError("stability_runs must be at least 1")
	}
	if c.OutputLimit < 0 {
		return errors.NewConfigInvalidError("output_limit must not be negative")
	}

	switch c.Stage {
	case "", transform.StageSource, transform.StageArtifact:
	default:
		return errors.NewConfigInvalidError(fmt.Sprintf("unknown stage %q (supported: source, artifact)", c.Stage))
	}

	switch c.BaselineMode {
	case "", BaselineLive:
	case BaselineGolden:
		if c.BaselineDir == "" {
			return errors.NewConfigInvalidError("baseline_mode golden requires baseline_dir")
		}
	default:
		return errors.NewConfigInvalidError(fmt.Sprintf("unknown baseline mode %q (supported: live, golden)", c.BaselineMode))
	}

	switch c.Isolation {
	case "", sandbox.IsolationProcess:
	case sandbox.IsolationDocker:
		if err := c.Docker.Policy.Check(c.Docker.Image); err != nil {
			return err
		}
	default:
		return errors.NewConfigInvalidError(fmt.Sprintf("unknown isolation %q (supported: process, docker)", c.Isolation))
	}

	if c.ToolchainSpec == nil {
		if _, err := toolchain.Preset(c.Toolchain); err != nil {
			return err
		}
	}
	if _, err := compare.NewNormalizer(c.Normalize, c.NormalizeRules); err != nil {
		return err
	}
	return nil
}

// FixtureExtensions returns the fixture extensions for the configured toolchain
func (c Config) FixtureExtensions() []string {
	if len(c.Extensions) > 0 {
		return c.Extensions
	}
	if c.ToolchainSpec == nil && c.Toolchain == "shell" {
		return []string{".sh"}
	}
	return []string{".java"}
}
