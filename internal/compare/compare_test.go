package compare

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/parity/internal/sandbox"
)

func result(stdout string, exit int) *sandbox.Result {
	return &sandbox.Result{Stdout: []byte(stdout), ExitCode: exit}
}

func TestCompareDecisions(t *testing.T) {
	timedOut := &sandbox.Result{Stdout: []byte("partial"), TimedOut: true}
	truncated := &sandbox.Result{Stdout: []byte("aaaa"), StdoutTruncated: true}

	tests := []struct {
		name        string
		original    *sandbox.Result
		transformed *sandbox.Result
		want        Kind
		reason      string
	}{
		{"identical", result("1\n2\n", 0), result("1\n2\n", 0), Equivalent, ""},
		{"stdout differs", result("1\n2\n", 0), result("1\n3\n", 0), Divergent, "stdout mismatch"},
		{"exit code differs", result("x", 0), result("x", 1), Divergent, "exit code mismatch: original 0, transformed 1"},
		{"trailing newline matters", result("x\n", 0), result("x", 0), Divergent, "stdout mismatch"},
		{"original timed out", timedOut, result("partial", 0), Divergent, "timeout mismatch: original timed out"},
		{"transformed timed out", result("partial", 0), timedOut, Divergent, "timeout mismatch: transformed timed out"},
		{"both timed out", timedOut, &sandbox.Result{TimedOut: true}, EquivalentWithCaveat, "both runs timed out"},
		{"both truncated", truncated, truncated, EquivalentWithCaveat, "output truncated"},
		{
			"same exception different message",
			&sandbox.Result{ExitCode: 1, Stderr: []byte("Exception in thread \"main\" java.lang.ArithmeticException: / by zero\n\tat A.main(A.java:3)")},
			&sandbox.Result{ExitCode: 1, Stderr: []byte("Exception in thread \"main\" java.lang.ArithmeticException: division\n\tat A.main(Unknown Source)")},
			Equivalent, "",
		},
		{
			"different exception",
			&sandbox.Result{ExitCode: 1, Stderr: []byte("java.lang.IllegalStateException: boom")},
			&sandbox.Result{ExitCode: 1, Stderr: []byte("java.lang.IllegalArgumentException: boom")},
			Divergent, "stderr exception mismatch",
		},
	}

	var c Comparator
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := c.Compare(tt.original, tt.transformed)
			assert.Equal(t, tt.want, d.Kind)
			assert.True(t, strings.HasPrefix(d.Reason, tt.reason), "reason %q", d.Reason)

			// Swapping sides never changes the verdict kind
			assert.Equal(t, tt.want, c.Compare(tt.transformed, tt.original).Kind)
		})
	}
}

func TestCompareDiff(t *testing.T) {
	c := Comparator{MaxDiffLines: 10}
	d := c.Compare(result("a\nb\nc\n", 0), result("a\nB\nc\n", 0))
	require.Equal(t, Divergent, d.Kind)
	assert.Contains(t, d.Diff, "--- original")
	assert.Contains(t, d.Diff, "+++ transformed")
	assert.Contains(t, d.Diff, "-b")
	assert.Contains(t, d.Diff, "+B")
}

func TestDiffIsCapped(t *testing.T) {
	var a, b strings.Builder
	for i := 0; i < 100; i++ {
		a.WriteString("line\n")
		b.WriteString("other\n")
	}
	out := Diff([]byte(a.String()), []byte(b.String()), 10)
	lines := strings.Split(out, "\n")
	assert.LessOrEqual(t, len(lines), 12)
	assert.Contains(t, out, "more diff lines")
}

func TestCompareWithVolatileNormalizer(t *testing.T) {
	c := Comparator{Normalizer: NewVolatileNormalizer()}

	d := c.Compare(
		result("started 2024-12-13T10:30:45Z\nobj=java.lang.Object@1b6d3586\ntook 12ms\n", 0),
		result("started 2025-01-02T08:00:00.5Z\nobj=java.lang.Object@7a81197d\ntook 9ms\n", 0),
	)
	assert.Equal(t, Equivalent, d.Kind, d.Diff)

	d = c.Compare(result("obj=Foo@1b6d3586 value=1\n", 0), result("obj=Bar@1b6d3586 value=1\n", 0))
	assert.Equal(t, Divergent, d.Kind)
}

func TestAgree(t *testing.T) {
	var c Comparator

	d := c.Agree([]*sandbox.Result{result("true\n", 0), result("true\n", 0), result("true\n", 0)})
	assert.Equal(t, Equivalent, d.Kind)

	d = c.Agree([]*sandbox.Result{result("true\n", 0), result("true\n", 0), result("false\n", 0)})
	assert.Equal(t, Divergent, d.Kind)
	assert.Contains(t, d.Reason, "nondeterministic original")
	assert.Contains(t, d.Reason, "run 3")

	assert.Equal(t, Equivalent, c.Agree(nil).Kind)
}

func TestExceptionSignature(t *testing.T) {
	stderr := []byte(`Exception in thread "main" java.lang.RuntimeException: wrapped
	at Main.main(Main.java:10)
Caused by: java.io.IOException: disk
	at Main.read(Main.java:20)
Caused by: java.io.IOException: disk again
`)
	assert.Equal(t, []string{"Exception", "java.io.IOException", "java.lang.RuntimeException"}, ExceptionSignature(stderr))
	assert.Nil(t, ExceptionSignature([]byte("warning: deprecated API")))
	assert.Equal(t, []string{"StackOverflowError"}, ExceptionSignature([]byte("StackOverflowError")))
}

func TestNewNormalizer(t *testing.T) {
	n, err := NewNormalizer("", nil)
	require.NoError(t, err)
	assert.Equal(t, ModeNone, n.Name())

	n, err = NewNormalizer(ModeVolatile, []Rule{{Pattern: `seed=\d+`, Replace: "seed=N"}})
	require.NoError(t, err)
	assert.Equal(t, "volatile+rules", n.Name())
	assert.Equal(t, "seed=N at <TIMESTAMP>\n", string(n.Normalize([]byte("seed=42 at 2024-01-01 10:00:00\r\n"))))

	_, err = NewNormalizer("fuzzy", nil)
	assert.Error(t, err)

	_, err = NewNormalizer(ModeNone, []Rule{{Pattern: "("}})
	assert.Error(t, err)
}
