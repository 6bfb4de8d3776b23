package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
)

// RunManifest is the audit record of one execution
type RunManifest struct {
	Timestamp    time.Time `json:"timestamp"`
	Label        string    `json:"label,omitempty"`
	Command      []string  `json:"command"`
	Dir          string    `json:"dir,omitempty"`
	ExitCode     int       `json:"exit_code"`
	Duration     string    `json:"duration"`
	TimedOut     bool      `json:"timed_out"`
	Truncated    bool      `json:"truncated"`
	StdoutHash   string    `json:"stdout_blake3"`
	StderrHash   string    `json:"stderr_blake3"`
	StdoutLength int       `json:"stdout_bytes"`
	StderrLength int       `json:"stderr_bytes"`
}

// CreateManifest creates a run manifest for audit purposes
func CreateManifest(prog Program, label string, result *Result) *RunManifest {
	return &RunManifest{
		Timestamp:    time.Now().UTC(),
		Label:        label,
		Command:      prog.Argv(),
		Dir:          prog.Dir,
		ExitCode:     result.ExitCode,
		Duration:     result.Duration.String(),
		TimedOut:     result.TimedOut,
		Truncated:    result.Truncated(),
		StdoutHash:   HashBytes(result.Stdout),
		StderrHash:   HashBytes(result.Stderr),
		StdoutLength: len(result.Stdout),
		StderrLength: len(result.Stderr),
	}
}

// SaveManifest writes a run manifest to dir. File names combine the
// timestamp, label and a content hash, so concurrent runs never collide.
func SaveManifest(manifest *RunManifest, dir string) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	label := manifest.Label
	if label == "" {
		label = "run"
	}
	filename := fmt.Sprintf("%s_%s_%s.json",
		manifest.Timestamp.Format("20060102_150405.000000000"),
		label,
		HashBytes(data)[:12])

	if err := os.WriteFile(filepath.Join(dir, filename), data, 0600); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	return nil
}

// HashBytes returns the hex blake3 digest of data
func HashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return fmt.Sprintf("%x", sum[:])
}
