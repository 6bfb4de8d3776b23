package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/parity/internal/compare"
	perrors "github.com/felixgeelhaar/parity/internal/errors"
	"github.com/felixgeelhaar/parity/internal/fixture"
	"github.com/felixgeelhaar/parity/internal/sandbox"
	"github.com/felixgeelhaar/parity/internal/transform"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 30*time.Second, cfg.TransformTimeout)
	assert.Equal(t, 2, cfg.StabilityRuns)
	assert.Equal(t, BaselineLive, cfg.BaselineMode)
	assert.GreaterOrEqual(t, cfg.Concurrency, 1)

	// Roots are the only thing a default config lacks
	assert.Error(t, cfg.Validate())
	cfg.Roots = []string{"fixtures"}
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"zero transform timeout", func(c *Config) { c.TransformTimeout = 0 }},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }},
		{"zero stability runs", func(c *Config) { c.StabilityRuns = 0 }},
		{"negative output limit", func(c *Config) { c.OutputLimit = -1 }},
		{"unknown stage", func(c *Config) { c.Stage = "bytecode" }},
		{"unknown baseline mode", func(c *Config) { c.BaselineMode = "cached" }},
		{"golden without dir", func(c *Config) { c.BaselineMode = BaselineGolden }},
		{"unknown isolation", func(c *Config) { c.Isolation = "vm" }},
		{"docker without image", func(c *Config) { c.Isolation = sandbox.IsolationDocker }},
		{"docker image not allowed", func(c *Config) {
			c.Isolation = sandbox.IsolationDocker
			c.Docker = sandbox.DockerConfig{Image: "evil/jdk:21", Policy: sandbox.ImagePolicy{Allowlist: []string{"eclipse-temurin*"}}}
		}},
		{"unknown toolchain", func(c *Config) { c.Toolchain = "cobol" }},
		{"unknown normalization", func(c *Config) { c.Normalize = "fuzzy" }},
		{"bad normalize rule", func(c *Config) { c.NormalizeRules = []compare.Rule{{Pattern: "["}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Roots = []string{"fixtures"}
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAcceptsAllowedDockerImage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Roots = []string{"fixtures"}
	cfg.Isolation = sandbox.IsolationDocker
	cfg.Docker = sandbox.DockerConfig{Image: "eclipse-temurin:21-jdk", Policy: sandbox.ImagePolicy{Allowlist: []string{"eclipse-temurin*"}}}
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parity.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
roots: [src/test/resources, data]
toolchain: java
transformer: "decompile --in {src}"
stage: source
timeout: 5s
transform_timeout: 1m
concurrency: 3
stability_runs: 3
normalize: volatile
normalize_rules:
  - pattern: 'seed=\d+'
    replace: seed=N
seed: 1234
baseline_mode: golden
baseline_dir: .parity/baselines
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"src/test/resources", "data"}, cfg.Roots)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, time.Minute, cfg.TransformTimeout)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, transform.StageSource, cfg.Stage)
	require.NotNil(t, cfg.Seed)
	assert.Equal(t, int64(1234), *cfg.Seed)
	assert.Len(t, cfg.NormalizeRules, 1)
	// Unset fields keep their defaults
	assert.Equal(t, sandbox.DefaultOutputLimit, cfg.OutputLimit)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, perrors.ErrCodeConfigNotFound, perrors.CodeOf(err))

	path := filepath.Join(t.TempDir(), "parity.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roots: [a]\ntimeot: 5s\n"), 0o644))
	_, err = LoadConfig(path)
	assert.Equal(t, perrors.ErrCodeFileUnmarshal, perrors.CodeOf(err))
}

func TestExtensionsFollowToolchain(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, []string{".java"}, cfg.FixtureExtensions())

	cfg.Toolchain = "shell"
	assert.Equal(t, []string{".sh"}, cfg.FixtureExtensions())

	cfg.Extensions = []string{".kt"}
	assert.Equal(t, []string{".kt"}, cfg.FixtureExtensions())
}

func TestEntropySources(t *testing.T) {
	declared := int64(5)
	withSeed := &fixture.Unit{Manifest: fixture.Manifest{Seed: &declared}}
	plain := &fixture.Unit{}

	assert.Equal(t, int64(7), *Fixed(7).Seed(plain))
	assert.Nil(t, None{}.Seed(withSeed))
	assert.Equal(t, int64(5), *Manifest{}.Seed(withSeed))
	assert.Nil(t, Manifest{}.Seed(plain))
	assert.Equal(t, int64(7), *Manifest{Fallback: Fixed(7)}.Seed(plain))

	vars, env := seedVars(nil)
	assert.Equal(t, "", vars["seed"])
	assert.Nil(t, env)

	vars, env = seedVars(&declared)
	assert.Equal(t, "5", vars["seed"])
	assert.Equal(t, "5", env[SeedEnv])
}
