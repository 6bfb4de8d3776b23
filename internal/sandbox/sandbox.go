// Package sandbox runs a single program to completion as an isolated child
// process, capturing bounded output under a wall-clock timeout.
package sandbox

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/parity/internal/errors"
	"github.com/felixgeelhaar/parity/internal/log"
)

// DefaultEnvAllowlist lists the host variables a child may inherit
var DefaultEnvAllowlist = []string{"PATH", "HOME", "LANG", "JAVA_HOME", "TMPDIR"}

// Sandbox executes programs. A zero Sandbox is usable and runs plain
// processes with DefaultEnvAllowlist. Sandbox holds no per-call state, so one
// value may serve any number of concurrent Execute calls.
type Sandbox struct {
	Isolation    Isolation
	Docker       DockerConfig
	EnvAllowlist []string
	ManifestDir  string
	Logger       *log.Logger

	live atomic.Int64
}

// Live returns the number of child processes currently running
func (s *Sandbox) Live() int64 {
	return s.live.Load()
}

// Execute runs prog and returns its captured result.
//
// A timeout is not an error: the result comes back with TimedOut set and
// whatever output was captured, also when the deadline came from ctx.
// Cancellation of ctx returns the partial result together with an EXEC-003
// error. Failing to start the process returns an EXEC-001 error and no
// result.
func (s *Sandbox) Execute(ctx context.Context, prog Program, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if prog.Path == "" {
		return nil, errors.New(errors.ErrCodeExecSpawn, "empty program path")
	}

	var containerName string
	if s.Isolation == IsolationDocker {
		var err error
		prog, containerName, err = s.Docker.wrap(prog)
		if err != nil {
			return nil, err
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	// #nosec G204 -- argv comes from the configured toolchain and transformer.
	cmd := exec.CommandContext(runCtx, prog.Path, prog.Args...)
	cmd.Dir = prog.Dir
	cmd.Env = buildEnv(s.allowlist(), prog.Env)
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = waitDelay

	stdout := newCappedBuffer(opts.OutputLimit)
	stderr := newCappedBuffer(opts.OutputLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if len(prog.Stdin) > 0 {
		cmd.Stdin = bytes.NewReader(prog.Stdin)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, errors.NewSpawnError(prog.Path, err)
	}
	s.live.Add(1)
	defer s.live.Add(-1)
	// Reaps orphaned grandchildren left in the group; ESRCH when none remain.
	defer func() { _ = killProcessGroup(cmd) }()

	waitErr := cmd.Wait()
	duration := time.Since(start)

	result := &Result{Duration: duration}
	result.Stdout, result.StdoutTruncated = stdout.Snapshot()
	result.Stderr, result.StderrTruncated = stderr.Snapshot()
	result.ExitCode, result.Signal = exitStatus(cmd, waitErr)

	// A parent deadline counts as a timeout; only explicit cancellation is
	// reported as an error.
	cancelled := stderrors.Is(ctx.Err(), context.Canceled)
	result.TimedOut = !cancelled && stderrors.Is(runCtx.Err(), context.DeadlineExceeded)

	if containerName != "" && (result.TimedOut || cancelled) {
		s.Docker.remove(containerName)
	}

	s.saveManifest(prog, opts, result)

	if cancelled {
		return result, errors.Wrap(errors.ErrCodeExecCancelled,
			fmt.Sprintf("execution of %s cancelled", prog.Path), ctx.Err())
	}
	return result, nil
}

func (s *Sandbox) allowlist() []string {
	if s.EnvAllowlist != nil {
		return s.EnvAllowlist
	}
	return DefaultEnvAllowlist
}

func (s *Sandbox) saveManifest(prog Program, opts Options, result *Result) {
	if s.ManifestDir == "" {
		return
	}
	manifest := CreateManifest(prog, opts.Label, result)
	if err := SaveManifest(manifest, s.ManifestDir); err != nil && s.Logger != nil {
		s.Logger.WithError(err).Warn("failed to save run manifest", "program", prog.Path)
	}
}

// exitStatus extracts the exit code and termination description from a
// finished command. Processes killed by a signal report exit code -1.
func exitStatus(cmd *exec.Cmd, waitErr error) (int, string) {
	state := cmd.ProcessState
	if state == nil {
		return -1, ""
	}
	if state.ExitCode() == -1 {
		return -1, state.String()
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !stderrors.As(waitErr, &exitErr) && !stderrors.Is(waitErr, exec.ErrWaitDelay) {
		return state.ExitCode(), waitErr.Error()
	}
	return state.ExitCode(), ""
}

// buildEnv constructs the child environment from an allowlist of host
// variables plus the program's own variables, in sorted order so that runs
// are reproducible.
func buildEnv(allowlist []string, extra map[string]string) []string {
	env := make(map[string]string, len(allowlist)+len(extra))
	for _, key := range allowlist {
		if v, ok := os.LookupEnv(key); ok {
			env[key] = v
		}
	}
	for k, v := range extra {
		env[k] = v
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
