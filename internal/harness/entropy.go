package harness

import (
	"strconv"

	"github.com/felixgeelhaar/parity/internal/fixture"
)

// SeedEnv carries the fixture seed into both program runs
const SeedEnv = "PARITY_SEED"

// EntropySource chooses the seed handed to a fixture. Both the original and
// the transformed program of one fixture receive the same seed.
type EntropySource interface {
	// Seed returns nil when the fixture runs unseeded
	Seed(u *fixture.Unit) *int64
}

// Fixed hands every fixture the same seed
type Fixed int64

func (f Fixed) Seed(*fixture.Unit) *int64 {
	v := int64(f)
	return &v
}

// None runs every fixture unseeded
type None struct{}

func (None) Seed(*fixture.Unit) *int64 { return nil }

// Manifest uses the seed declared by the fixture manifest and falls back to
// Fallback for fixtures that declare none
type Manifest struct {
	Fallback EntropySource
}

func (m Manifest) Seed(u *fixture.Unit) *int64 {
	if u.Manifest.Seed != nil {
		v := *u.Manifest.Seed
		return &v
	}
	if m.Fallback == nil {
		return nil
	}
	return m.Fallback.Seed(u)
}

// seedVars returns the run template variables and environment for seed
func seedVars(seed *int64) (vars, env map[string]string) {
	vars = map[string]string{"seed": ""}
	if seed == nil {
		return vars, nil
	}
	s := strconv.FormatInt(*seed, 10)
	vars["seed"] = s
	return vars, map[string]string{SeedEnv: s}
}
