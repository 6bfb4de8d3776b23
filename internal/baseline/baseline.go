// Package baseline stores golden captures of original program runs.
//
// A baseline is keyed by fixture identity, source hash and seed, so editing
// a fixture or changing its seed makes the old capture unreachable instead
// of overwriting it. Captures are write-once.
package baseline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	perrors "github.com/felixgeelhaar/parity/internal/errors"
	"github.com/felixgeelhaar/parity/internal/sandbox"
)

const formatVersion = "1.0"

// Baseline is the recorded behavior of an original program
type Baseline struct {
	Version         string    `json:"version"`
	FixtureID       string    `json:"fixture_id"`
	SourceHash      string    `json:"source_hash"`
	Seed            *int64    `json:"seed,omitempty"`
	CapturedAt      time.Time `json:"captured_at"`
	ExitCode        int       `json:"exit_code"`
	Stdout          []byte    `json:"stdout"`
	Stderr          []byte    `json:"stderr"`
	StdoutTruncated bool      `json:"stdout_truncated,omitempty"`
	StderrTruncated bool      `json:"stderr_truncated,omitempty"`
	DurationMS      int64     `json:"duration_ms"`
}

// Result converts the baseline back into an execution result
func (b *Baseline) Result() *sandbox.Result {
	return &sandbox.Result{
		Stdout:          b.Stdout,
		Stderr:          b.Stderr,
		ExitCode:        b.ExitCode,
		Duration:        time.Duration(b.DurationMS) * time.Millisecond,
		StdoutTruncated: b.StdoutTruncated,
		StderrTruncated: b.StderrTruncated,
	}
}

// Key identifies one baseline
type Key struct {
	FixtureID  string
	SourceHash string
	Seed       *int64
}

func (k Key) fileName() string {
	seed := "none"
	if k.Seed != nil {
		seed = strconv.FormatInt(*k.Seed, 10)
	}
	sum := blake3.Sum256([]byte(k.FixtureID + "\x00" + k.SourceHash + "\x00" + seed))
	return fmt.Sprintf("%x.json", sum[:16])
}

func (k Key) matches(b *Baseline) bool {
	if b.FixtureID != k.FixtureID || b.SourceHash != k.SourceHash {
		return false
	}
	if (b.Seed == nil) != (k.Seed == nil) {
		return false
	}
	return b.Seed == nil || *b.Seed == *k.Seed
}

// Store handles baseline persistence
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store directory
func (s *Store) Dir() string {
	return s.dir
}

// Load returns the baseline for k, or nil when none has been captured
func (s *Store) Load(k Key) (*Baseline, error) {
	path := filepath.Join(s.dir, k.fileName())

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, perrors.Wrap(perrors.ErrCodeFileReadFailed, fmt.Sprintf("read baseline %s", path), err)
	}

	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, perrors.NewFileUnmarshalError(path, "JSON", err)
	}
	if !k.matches(&b) {
		return nil, nil
	}
	return &b, nil
}

// Capture records res as the baseline for k. An existing baseline is never
// replaced; capturing over one fails with an error matching fs.ErrExist.
func (s *Store) Capture(k Key, res *sandbox.Result) (*Baseline, error) {
	if res == nil || res.TimedOut {
		return nil, perrors.New(perrors.ErrCodeFileWriteFailed, "only completed runs can be captured as baselines")
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeFileWriteFailed, "create baseline directory", err)
	}

	b := &Baseline{
		Version:         formatVersion,
		FixtureID:       k.FixtureID,
		SourceHash:      k.SourceHash,
		Seed:            k.Seed,
		CapturedAt:      time.Now().UTC(),
		ExitCode:        res.ExitCode,
		Stdout:          res.Stdout,
		Stderr:          res.Stderr,
		StdoutTruncated: res.StdoutTruncated,
		StderrTruncated: res.StderrTruncated,
		DurationMS:      res.Duration.Milliseconds(),
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal baseline: %w", err)
	}

	path := filepath.Join(s.dir, k.fileName())
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("baseline for %s: %w", k.FixtureID, fs.ErrExist)
		}
		return nil, perrors.Wrap(perrors.ErrCodeFileWriteFailed, fmt.Sprintf("create baseline %s", path), err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, perrors.Wrap(perrors.ErrCodeFileWriteFailed, fmt.Sprintf("write baseline %s", path), err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, perrors.Wrap(perrors.ErrCodeFileWriteFailed, fmt.Sprintf("close baseline %s", path), err)
	}
	return b, nil
}

// List returns every stored baseline, skipping unreadable files
func (s *Store) List() ([]*Baseline, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []*Baseline{}, nil
		}
		return nil, perrors.Wrap(perrors.ErrCodeFileReadFailed, "read baseline directory", err)
	}

	var out []*Baseline
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var b Baseline
		if err := json.Unmarshal(data, &b); err != nil {
			continue
		}
		out = append(out, &b)
	}
	return out, nil
}
