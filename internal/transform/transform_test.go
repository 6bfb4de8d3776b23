package transform

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/felixgeelhaar/parity/internal/errors"
	"github.com/felixgeelhaar/parity/internal/fixture"
	"github.com/felixgeelhaar/parity/internal/sandbox"
	"github.com/felixgeelhaar/parity/internal/toolchain"
)

// checkedShell rejects sources containing BROKEN and copies the rest into
// the output directory
var checkedShell = toolchain.Spec{
	Name: "checked-shell",
	Compile: []string{"sh", "-c",
		"if grep -q BROKEN {src}; then echo '{name}: syntax error' >&2; exit 1; fi; cp {src} {out}/prog.sh"},
	Run: []string{"sh", "{out}/prog.sh"},
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("transform tests drive /bin/sh")
	}
}

func newToolchain(t *testing.T) *toolchain.CommandToolchain {
	t.Helper()
	tc, err := toolchain.New(checkedShell, nil, t.TempDir())
	require.NoError(t, err)
	return tc
}

func unit(source string) *fixture.Unit {
	return &fixture.Unit{
		ID:      "root::Hello.sh",
		RelPath: "Hello.sh",
		Path:    "/fixtures/Hello.sh",
		Source:  source,
	}
}

func runExecutable(t *testing.T, tc toolchain.Toolchain, exe *toolchain.Executable) string {
	t.Helper()
	var sb sandbox.Sandbox
	res, err := sb.Execute(context.Background(), tc.Program(exe, toolchain.Entry{}, nil), sandbox.Options{})
	require.NoError(t, err)
	return string(res.Stdout)
}

func TestInvokerIdentity(t *testing.T) {
	requireShell(t)
	tc := newToolchain(t)
	inv := &Invoker{Transformer: Identity{}, Toolchain: tc}

	out, err := inv.Transform(context.Background(), unit("echo hello\n"), nil)
	require.NoError(t, err)
	require.True(t, out.OK())
	defer out.Executable.Cleanup()

	assert.Equal(t, "echo hello\n", out.Source)
	assert.Equal(t, "hello\n", runExecutable(t, tc, out.Executable))
}

func TestInvokerCompileFailureIsNotInfrastructure(t *testing.T) {
	requireShell(t)
	inv := &Invoker{
		Transformer: Func{Fn: func(_ context.Context, in Input) (string, error) {
			return in.Source + "BROKEN\n", nil
		}},
		Toolchain: newToolchain(t),
	}

	out, err := inv.Transform(context.Background(), unit("echo hello\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, KindCompileFailure, out.Kind)
	assert.Contains(t, out.Diagnostic, "Hello: syntax error")
	assert.Contains(t, out.Diagnostic, string(perrors.ErrCodeCompileFailed))
	assert.Nil(t, out.Executable)
}

func TestInvokerTransformerFailures(t *testing.T) {
	requireShell(t)

	tests := []struct {
		name    string
		argv    []string
		timeout time.Duration
		want    string
	}{
		{"non-zero exit", []string{"sh", "-c", "echo 'cannot decompile' >&2; exit 3"}, 0, "cannot decompile"},
		{"timeout", []string{"sleep", "5"}, 200 * time.Millisecond, string(perrors.ErrCodeTransformTimeout)},
		{"missing output file", []string{"true", "{out}"}, 0, "no output file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := NewCommand(tt.argv, nil, t.TempDir())
			require.NoError(t, err)
			inv := &Invoker{Transformer: cmd, Toolchain: newToolchain(t), Timeout: tt.timeout}

			start := time.Now()
			out, err := inv.Transform(context.Background(), unit("echo hello\n"), nil)
			require.NoError(t, err)
			assert.Equal(t, KindTransformFailure, out.Kind)
			assert.Contains(t, out.Diagnostic, tt.want)
			assert.Less(t, time.Since(start), 4*time.Second)
		})
	}
}

func TestCommandTransformerModes(t *testing.T) {
	requireShell(t)

	tests := []struct {
		name string
		argv []string
	}{
		{"stdin to stdout", []string{"sh", "-c", "sed s/hello/bye/"}},
		{"file to stdout", []string{"sed", "s/hello/bye/", "{src}"}},
		{"file to file", []string{"sh", "-c", "sed s/hello/bye/ \"$0\" > \"$1\"", "{src}", "{out}"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := NewCommand(tt.argv, nil, t.TempDir())
			require.NoError(t, err)

			got, err := cmd.Transform(context.Background(), Input{FileName: "Hello.sh", Source: "echo hello\n"})
			require.NoError(t, err)
			assert.Equal(t, "echo bye\n", got)
		})
	}
}

func TestCommandTransformerSpawnFailureIsInfrastructure(t *testing.T) {
	cmd, err := NewCommand([]string{filepath.Join(t.TempDir(), "no-such-transformer")}, nil, t.TempDir())
	require.NoError(t, err)
	inv := &Invoker{Transformer: cmd, Toolchain: newToolchain(t)}

	_, err = inv.Transform(context.Background(), unit("echo\n"), nil)
	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeExecSpawn, perrors.CodeOf(err))
}

func TestInvokerCancellation(t *testing.T) {
	requireShell(t)
	cmd, err := NewCommand([]string{"sleep", "5"}, nil, t.TempDir())
	require.NoError(t, err)
	inv := &Invoker{Transformer: cmd, Toolchain: newToolchain(t)}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err = inv.Transform(ctx, unit("echo\n"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, perrors.ErrCancelled)
}

func TestFuncWrapsPlainErrors(t *testing.T) {
	f := Func{Label: "broken", Fn: func(context.Context, Input) (string, error) {
		return "", errors.New("unsupported opcode")
	}}
	_, err := f.Transform(context.Background(), Input{})

	var diag *Diagnostic
	require.ErrorAs(t, err, &diag)
	assert.Equal(t, "unsupported opcode", diag.Output)
	assert.Equal(t, "broken", f.Name())
	assert.Equal(t, "func", Func{}.Name())
}

func TestArtifactStage(t *testing.T) {
	requireShell(t)
	tc := newToolchain(t)
	original, err := tc.Compile(context.Background(), toolchain.Source{FileName: "Hello.sh", Text: "echo hello\n"})
	require.NoError(t, err)
	defer original.Cleanup()

	t.Run("identity copies artifacts", func(t *testing.T) {
		inv := &Invoker{Transformer: Identity{}, Toolchain: tc, Stage: StageArtifact}
		out, err := inv.Transform(context.Background(), unit("echo hello\n"), original)
		require.NoError(t, err)
		require.True(t, out.OK())
		defer out.Executable.Cleanup()

		assert.NotEqual(t, original.OutDir, out.Executable.OutDir)
		assert.Equal(t, original.Dir, filepath.Dir(out.Executable.OutDir))
		assert.Equal(t, original.Dir, out.Executable.Dir)
		assert.Equal(t, "hello\n", runExecutable(t, tc, out.Executable))
	})

	t.Run("command rewrites artifacts", func(t *testing.T) {
		cmd, err := NewCommand([]string{"sh", "-c", "sed s/hello/bye/ \"$0/prog.sh\" > \"$1/prog.sh\"", "{in}", "{out}"}, nil, t.TempDir())
		require.NoError(t, err)
		inv := &Invoker{Transformer: cmd, Toolchain: tc, Stage: StageArtifact}

		out, err := inv.Transform(context.Background(), unit("echo hello\n"), original)
		require.NoError(t, err)
		require.True(t, out.OK())
		defer out.Executable.Cleanup()

		assert.Equal(t, "bye\n", runExecutable(t, tc, out.Executable))
	})

	t.Run("requires original", func(t *testing.T) {
		inv := &Invoker{Transformer: Identity{}, Toolchain: tc, Stage: StageArtifact}
		_, err := inv.Transform(context.Background(), unit(""), nil)
		assert.Error(t, err)
	})

	t.Run("failed transform removes output", func(t *testing.T) {
		cmd, err := NewCommand([]string{"false"}, nil, t.TempDir())
		require.NoError(t, err)
		inv := &Invoker{Transformer: cmd, Toolchain: tc, Stage: StageArtifact}

		out, err := inv.Transform(context.Background(), unit(""), original)
		require.NoError(t, err)
		assert.Equal(t, KindTransformFailure, out.Kind)

		leftover, err := filepath.Glob(filepath.Join(original.Dir, "artifact-*"))
		require.NoError(t, err)
		assert.Empty(t, leftover)
	})
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    []string
		wantErr bool
	}{
		{"decompile {src}", []string{"decompile", "{src}"}, false},
		{`  java -jar "my tool.jar"  {src} `, []string{"java", "-jar", "my tool.jar", "{src}"}, false},
		{`sh -c 'cat "$0"' {src}`, []string{"sh", "-c", `cat "$0"`, "{src}"}, false},
		{`a\ b c`, []string{"a b", "c"}, false},
		{`""`, []string{""}, false},
		{`"unterminated`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := SplitCommand(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiagnosticText(t *testing.T) {
	d := &Diagnostic{Message: "transformer exited with code 1", Output: "boom"}
	assert.Equal(t, "transformer exited with code 1\nboom", d.Text())
	assert.True(t, strings.HasSuffix(d.Error(), ": boom"))
	assert.Equal(t, "plain", (&Diagnostic{Message: "plain"}).Text())
}
