package transform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/felixgeelhaar/parity/internal/errors"
	"github.com/felixgeelhaar/parity/internal/sandbox"
)

// CommandTransformer runs an external transformer binary.
//
// Argv placeholders:
//
//	{src}  path of a file holding the fixture source; without it the source
//	       is written to stdin
//	{out}  path the transformer writes its result to; without it the result
//	       is read from stdout
//	{in}   compiled original output directory (artifact stage)
//	{name} fixture file name without extension
//
// A non-zero exit or a timeout is a transformer failure carrying stderr.
type CommandTransformer struct {
	Argv     []string
	Env      map[string]string
	Sandbox  *sandbox.Sandbox
	WorkRoot string
}

// NewCommand creates a CommandTransformer from an argv template
func NewCommand(argv []string, sb *sandbox.Sandbox, workRoot string) (*CommandTransformer, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.NewConfigInvalidError("transformer command is empty")
	}
	if sb == nil {
		sb = &sandbox.Sandbox{}
	}
	return &CommandTransformer{Argv: argv, Sandbox: sb, WorkRoot: workRoot}, nil
}

// Name returns the transformer binary name
func (c *CommandTransformer) Name() string {
	return filepath.Base(c.Argv[0])
}

// Transform runs the transformer once. The remaining time on ctx bounds the
// run.
func (c *CommandTransformer) Transform(ctx context.Context, in Input) (string, error) {
	dir, err := os.MkdirTemp(c.WorkRoot, "parity-transform-*")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeCompileWorkdir, "create transform directory", err)
	}
	defer os.RemoveAll(dir)

	artifact := in.ArtifactDir != ""
	srcPath := filepath.Join(dir, in.FileName)
	outPath := in.OutDir
	if !artifact {
		if err := os.MkdirAll(filepath.Join(dir, "out"), 0o755); err != nil {
			return "", errors.Wrap(errors.ErrCodeCompileWorkdir, "create transform output directory", err)
		}
		outPath = filepath.Join(dir, "out", in.FileName)
	}

	usesSrc := c.uses("{src}")
	usesOut := c.uses("{out}")
	if usesSrc && !artifact {
		if err := os.WriteFile(srcPath, []byte(in.Source), 0o644); err != nil {
			return "", errors.Wrap(errors.ErrCodeCompileWorkdir, "write transform input", err)
		}
	}

	r := strings.NewReplacer(
		"{src}", srcPath,
		"{out}", outPath,
		"{in}", in.ArtifactDir,
		"{name}", strings.TrimSuffix(in.FileName, filepath.Ext(in.FileName)),
	)
	argv := make([]string, len(c.Argv))
	for i, arg := range c.Argv {
		argv[i] = r.Replace(arg)
	}

	prog := sandbox.Program{Path: argv[0], Args: argv[1:], Dir: dir, Env: c.Env}
	if !usesSrc && !artifact {
		prog.Stdin = []byte(in.Source)
	}

	res, err := c.Sandbox.Execute(ctx, prog, sandbox.Options{
		Timeout: remaining(ctx),
		Label:   "transform",
	})
	if err != nil {
		return "", err
	}

	if res.TimedOut {
		return "", &Diagnostic{
			Message:  fmt.Sprintf("[%s] transformer timed out after %s", errors.ErrCodeTransformTimeout, res.Duration.Round(time.Millisecond)),
			Output:   string(res.Stderr),
			ExitCode: res.ExitCode,
			TimedOut: true,
		}
	}
	if res.ExitCode != 0 {
		return "", &Diagnostic{
			Message:  fmt.Sprintf("[%s] transformer exited with code %d", errors.ErrCodeTransformFailed, res.ExitCode),
			Output:   string(res.Stderr),
			ExitCode: res.ExitCode,
		}
	}
	if res.StdoutTruncated && !usesOut {
		return "", &Diagnostic{
			Message: fmt.Sprintf("[%s] transformer output exceeded %d bytes", errors.ErrCodeTransformFailed, sandbox.DefaultOutputLimit),
		}
	}

	if artifact {
		return "", nil
	}
	if !usesOut {
		return string(res.Stdout), nil
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		return "", &Diagnostic{
			Message: fmt.Sprintf("[%s] transformer produced no output file", errors.ErrCodeTransformFailed),
			Output:  string(res.Stderr),
		}
	}
	return string(data), nil
}

func (c *CommandTransformer) uses(placeholder string) bool {
	return slices.ContainsFunc(c.Argv, func(arg string) bool {
		return strings.Contains(arg, placeholder)
	})
}

// remaining converts the deadline on ctx into a sandbox timeout
func remaining(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return DefaultTimeout
	}
	if d := time.Until(deadline); d > 0 {
		return d
	}
	return time.Millisecond
}

// SplitCommand splits a command line into argv. Single and double quotes
// group words; a backslash escapes the next character outside single quotes.
func SplitCommand(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case unicode.IsSpace(r):
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 || escaped {
		return nil, errors.NewConfigInvalidError(fmt.Sprintf("unterminated quote or escape in command %q", line))
	}
	if inWord {
		args = append(args, cur.String())
	}
	return args, nil
}
