// Package toolchain compiles fixture sources and turns compiled output into
// runnable sandbox programs.
package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/parity/internal/errors"
	"github.com/felixgeelhaar/parity/internal/sandbox"
)

// DefaultCompileTimeout bounds one compiler invocation
const DefaultCompileTimeout = 60 * time.Second

// Source is one compilation unit
type Source struct {
	// FileName is the base name the source is written under. Java requires
	// it to match the public class.
	FileName string
	Text     string
}

// Entry names what to execute inside compiled output
type Entry struct {
	Class string
	Args  []string
}

// Executable is a compiled program living in its own scratch directory
type Executable struct {
	Dir        string // Scratch directory
	SourcePath string // Absolute path of the written source
	OutDir     string // Compiler output directory
	cleanup    []string
}

// WithOutDir returns a copy of e whose compiled output lives in outDir. The
// copy owns outDir and removes it on Cleanup.
func (e *Executable) WithOutDir(outDir string) *Executable {
	return &Executable{
		Dir:        e.Dir,
		SourcePath: e.SourcePath,
		OutDir:     outDir,
		cleanup:    []string{outDir},
	}
}

// Cleanup removes every directory the executable owns
func (e *Executable) Cleanup() error {
	if e == nil {
		return nil
	}
	var firstErr error
	for _, dir := range e.cleanup {
		if err := os.RemoveAll(dir); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CompileError carries raw compiler diagnostics. It describes the source
// being compiled, not the harness.
type CompileError struct {
	Diagnostics string
	ExitCode    int
	TimedOut    bool
}

func (e *CompileError) Error() string {
	if e.TimedOut {
		return "compilation timed out"
	}
	return fmt.Sprintf("compilation failed with exit code %d", e.ExitCode)
}

// Toolchain is the compile/run collaborator shared by original and
// transformed programs
type Toolchain interface {
	Name() string
	// Compile returns *CompileError when the compiler rejects the source and
	// any other error when the compiler could not be run at all.
	Compile(ctx context.Context, src Source) (*Executable, error)
	// Program builds the command that runs entry from exe. vars fill extra
	// {placeholders} in the run template, e.g. {seed}.
	Program(exe *Executable, entry Entry, vars map[string]string) sandbox.Program
}

// Spec declares a command-driven toolchain
type Spec struct {
	Name string `yaml:"name"`
	// Compile is the compiler argv template; empty means sources run as-is
	Compile []string `yaml:"compile"`
	// Run is the launcher argv template
	Run []string `yaml:"run"`
	// Env is passed to both compile and run commands
	Env            map[string]string `yaml:"env"`
	CompileTimeout time.Duration     `yaml:"compile_timeout"`
}

// Presets returns the built-in toolchain specs
func Presets() map[string]Spec {
	return map[string]Spec{
		"java": {
			Name:    "java",
			Compile: []string{"javac", "-encoding", "UTF-8", "-d", "{out}", "{src}"},
			Run:     []string{"java", "-cp", "{out}", "{class}"},
		},
		"shell": {
			Name: "shell",
			Run:  []string{"sh", "{src}"},
		},
	}
}

// Preset looks up a built-in toolchain spec by name
func Preset(name string) (Spec, error) {
	spec, ok := Presets()[name]
	if !ok {
		return Spec{}, errors.NewConfigInvalidError(fmt.Sprintf("unknown toolchain %q (supported: java, shell)", name))
	}
	return spec, nil
}

// CommandToolchain runs external compiler and launcher commands
type CommandToolchain struct {
	spec        Spec
	sandbox     *sandbox.Sandbox
	workRoot    string
	outputLimit int
}

// New creates a CommandToolchain. Compilations run through sb and write
// scratch directories under workRoot (os.TempDir when empty).
func New(spec Spec, sb *sandbox.Sandbox, workRoot string) (*CommandToolchain, error) {
	if len(spec.Run) == 0 {
		return nil, errors.NewConfigInvalidError(fmt.Sprintf("toolchain %q has no run command", spec.Name))
	}
	if spec.CompileTimeout <= 0 {
		spec.CompileTimeout = DefaultCompileTimeout
	}
	if sb == nil {
		sb = &sandbox.Sandbox{}
	}
	return &CommandToolchain{
		spec:        spec,
		sandbox:     sb,
		workRoot:    workRoot,
		outputLimit: sandbox.DefaultOutputLimit,
	}, nil
}

// Name returns the toolchain name
func (t *CommandToolchain) Name() string {
	return t.spec.Name
}

// Compile writes src into a fresh scratch directory and runs the compiler
func (t *CommandToolchain) Compile(ctx context.Context, src Source) (*Executable, error) {
	exe, err := t.prepare(src)
	if err != nil {
		return nil, err
	}

	if len(t.spec.Compile) == 0 {
		return exe, nil
	}

	argv := expand(t.spec.Compile, exe, Entry{}, nil)
	prog := sandbox.Program{Path: argv[0], Args: argv[1:], Dir: exe.Dir, Env: t.spec.Env}
	res, err := t.sandbox.Execute(ctx, prog, sandbox.Options{
		Timeout:     t.spec.CompileTimeout,
		OutputLimit: t.outputLimit,
		Label:       "compile",
	})
	if err != nil {
		_ = exe.Cleanup()
		return nil, err
	}

	if res.TimedOut || res.ExitCode != 0 {
		_ = exe.Cleanup()
		return nil, &CompileError{
			Diagnostics: diagnostics(res),
			ExitCode:    res.ExitCode,
			TimedOut:    res.TimedOut,
		}
	}

	return exe, nil
}

// Program builds the launcher command for entry
func (t *CommandToolchain) Program(exe *Executable, entry Entry, vars map[string]string) sandbox.Program {
	argv := expand(t.spec.Run, exe, entry, vars)
	argv = append(argv, entry.Args...)

	env := make(map[string]string, len(t.spec.Env))
	for k, v := range t.spec.Env {
		env[k] = v
	}

	return sandbox.Program{Path: argv[0], Args: argv[1:], Dir: exe.Dir, Env: env}
}

func (t *CommandToolchain) prepare(src Source) (*Executable, error) {
	if src.FileName == "" || filepath.Base(src.FileName) != src.FileName {
		return nil, errors.New(errors.ErrCodeCompileWorkdir, fmt.Sprintf("invalid source file name %q", src.FileName))
	}

	dir, err := os.MkdirTemp(t.workRoot, "parity-build-*")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCompileWorkdir, "create build directory", err)
	}

	exe := &Executable{
		Dir:        dir,
		SourcePath: filepath.Join(dir, src.FileName),
		OutDir:     filepath.Join(dir, "out"),
		cleanup:    []string{dir},
	}

	if err := os.MkdirAll(exe.OutDir, 0o755); err != nil {
		_ = exe.Cleanup()
		return nil, errors.Wrap(errors.ErrCodeCompileWorkdir, "create output directory", err)
	}
	if err := os.WriteFile(exe.SourcePath, []byte(src.Text), 0o644); err != nil {
		_ = exe.Cleanup()
		return nil, errors.Wrap(errors.ErrCodeCompileWorkdir, "write source", err)
	}

	return exe, nil
}

// expand substitutes {placeholders} in every template element
func expand(template []string, exe *Executable, entry Entry, vars map[string]string) []string {
	stem := strings.TrimSuffix(filepath.Base(exe.SourcePath), filepath.Ext(exe.SourcePath))
	pairs := []string{
		"{src}", exe.SourcePath,
		"{dir}", exe.Dir,
		"{out}", exe.OutDir,
		"{class}", entry.Class,
		"{name}", stem,
	}
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)

	out := make([]string, 0, len(template))
	for _, arg := range template {
		v := r.Replace(arg)
		// A bare placeholder with no value is dropped rather than passed as ""
		if v == "" && isPlaceholder(arg) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func isPlaceholder(arg string) bool {
	return len(arg) > 2 && arg[0] == '{' && arg[len(arg)-1] == '}' && !strings.ContainsAny(arg[1:len(arg)-1], "{}")
}

func diagnostics(res *sandbox.Result) string {
	var b strings.Builder
	b.Write(res.Stderr)
	if len(res.Stdout) > 0 {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
		b.Write(res.Stdout)
	}
	if res.TimedOut {
		b.WriteString("\n[compilation timed out]")
	}
	return b.String()
}
