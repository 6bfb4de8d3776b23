package fixture

import (
	"bytes"
	"errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	perrors "github.com/felixgeelhaar/parity/internal/errors"
)

// ManifestSuffix is appended to a fixture file name to find its sidecar
const ManifestSuffix = ".fixture.yaml"

// Manifest is the optional declared metadata of a fixture
type Manifest struct {
	// Entry overrides the derived entry point
	Entry string   `yaml:"entry,omitempty"`
	Args  []string `yaml:"args,omitempty"`
	Stdin string   `yaml:"stdin,omitempty"`
	// Seed fixes the entropy handed to both runs of this fixture
	Seed *int64 `yaml:"seed,omitempty"`
	// Skip, when non-empty, excludes the fixture from evaluation with the
	// given reason
	Skip   string `yaml:"skip,omitempty"`
	Expect Expect `yaml:"expect,omitempty"`
}

// Expect declares the expected exit behavior of the original program
type Expect struct {
	ExitCode *int `yaml:"exit_code,omitempty"`
}

// loadManifest reads the sidecar for path. A missing sidecar is not an error.
func loadManifest(path string) (Manifest, error) {
	var m Manifest

	data, err := os.ReadFile(path + ManifestSuffix)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return m, perrors.Wrap(perrors.ErrCodeFixtureManifest, "read fixture manifest", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return Manifest{}, perrors.NewFileUnmarshalError(path+ManifestSuffix, "YAML", err)
	}
	return m, nil
}
