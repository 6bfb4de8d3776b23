package sandbox

import "time"

const (
	// DefaultTimeout bounds a single program run
	DefaultTimeout = 10 * time.Second

	// DefaultOutputLimit caps each captured stream
	DefaultOutputLimit = 1 << 20

	// waitDelay bounds how long Wait keeps draining pipes after the
	// process group has been killed
	waitDelay = 2 * time.Second
)

// Isolation selects how the child process is contained
type Isolation string

const (
	IsolationProcess Isolation = "process"
	IsolationDocker  Isolation = "docker"
)

// Program describes a single process invocation
type Program struct {
	Path  string            // Executable name or path
	Args  []string          // Arguments, not including Path
	Dir   string            // Working directory
	Env   map[string]string // Extra environment on top of the allowlist
	Stdin []byte            // Optional standard input
}

// Argv returns the full command line
func (p Program) Argv() []string {
	return append([]string{p.Path}, p.Args...)
}

// Options bound a single execution
type Options struct {
	Timeout     time.Duration
	OutputLimit int
	// Label names the run in manifests and logs (e.g. "original")
	Label string
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.OutputLimit <= 0 {
		o.OutputLimit = DefaultOutputLimit
	}
	return o
}

// Result represents the outcome of one program run. It is never mutated
// after Execute returns.
type Result struct {
	Stdout          []byte
	Stderr          []byte
	ExitCode        int
	Duration        time.Duration
	TimedOut        bool
	StdoutTruncated bool
	StderrTruncated bool
	// Signal describes how the process was terminated when it did not exit
	// normally, e.g. "signal: killed".
	Signal string
}

// Completed reports whether the run finished on its own
func (r *Result) Completed() bool {
	return r != nil && !r.TimedOut
}

// Truncated reports whether either stream hit the output cap
func (r *Result) Truncated() bool {
	return r != nil && (r.StdoutTruncated || r.StderrTruncated)
}
