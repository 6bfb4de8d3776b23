package fixture

import (
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/felixgeelhaar/parity/internal/errors"
)

const jumpInit = `import java.util.Random;

public final class JumpInit {
  public static void main(String[] args) {
    System.out.println(new Random().nextBoolean());
  }
}
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadKeepsDuplicateNamesAcrossRoots(t *testing.T) {
	base := t.TempDir()
	resources := filepath.Join(base, "resources")
	data := filepath.Join(base, "data")
	writeFile(t, filepath.Join(resources, "AnnotationTest.java"), "class AnnotationTest {}")
	writeFile(t, filepath.Join(data, "AnnotationTest.java"), "class AnnotationTest {}")

	seq, err := NewLoader().Load([]string{resources, data})
	require.NoError(t, err)
	units := slices.Collect(seq)

	require.Len(t, units, 2)
	assert.NotEqual(t, units[0].ID, units[1].ID)
	assert.Equal(t, units[0].SourceHash, units[1].SourceHash)
	assert.Equal(t, "AnnotationTest.java", units[0].RelPath)
	assert.Equal(t, MakeID(resources, "AnnotationTest.java"), units[0].ID)
	assert.Equal(t, MakeID(data, "AnnotationTest.java"), units[1].ID)
}

func TestLoadIsRestartableAndFiltersExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "JumpInit.java"), jumpInit)
	writeFile(t, filepath.Join(root, "nested", "SwitchTest.java"), "class SwitchTest {}")
	writeFile(t, filepath.Join(root, "README.md"), "not a fixture")
	writeFile(t, filepath.Join(root, "JumpInit.java"+ManifestSuffix), "seed: 7\n")

	seq, err := NewLoader("java").Load([]string{root, root})
	require.NoError(t, err)

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	require.Len(t, first, 2, "duplicate roots are scanned once")
	require.Len(t, second, 2)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
	assert.Equal(t, "nested/SwitchTest.java", first[1].RelPath)
}

func TestLoadStopsWhenConsumerBreaks(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"A.java", "B.java", "C.java"} {
		writeFile(t, filepath.Join(root, name), "class X {}")
	}

	seq, err := NewLoader().Load([]string{root})
	require.NoError(t, err)

	count := 0
	for range seq {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestLoadRootErrors(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.java")
	writeFile(t, file, "class A {}")

	tests := []struct {
		name  string
		roots []string
		code  perrors.ErrorCode
	}{
		{"no roots", nil, perrors.ErrCodeRootNotFound},
		{"missing root", []string{filepath.Join(t.TempDir(), "missing")}, perrors.ErrCodeRootNotFound},
		{"file as root", []string{file}, perrors.ErrCodeRootUnreadable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().Load(tt.roots)
			require.Error(t, err)
			assert.Equal(t, tt.code, perrors.CodeOf(err))
			assert.True(t, perrors.IsDiscovery(err))
		})
	}
}

func TestUnreadableFileBecomesFailedUnit(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Good.java"), "class Good {}")
	bad := filepath.Join(root, "Bad.java")
	writeFile(t, bad, "class Bad {}")
	require.NoError(t, os.Chmod(bad, 0o000))
	t.Cleanup(func() { _ = os.Chmod(bad, 0o644) })

	seq, err := NewLoader().Load([]string{root})
	require.NoError(t, err)
	units := slices.Collect(seq)

	require.Len(t, units, 2)
	assert.Error(t, units[0].Err)
	assert.Equal(t, perrors.ErrCodeFixtureRead, perrors.CodeOf(units[0].Err))
	assert.NoError(t, units[1].Err)
}

func TestManifestAndEntryDerivation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pkg", "Calc.java"), "package com.example.calc;\n\nclass Calc {}")
	writeFile(t, filepath.Join(root, "JumpInit.java"), jumpInit)
	writeFile(t, filepath.Join(root, "JumpInit.java"+ManifestSuffix), `
args: ["--fast"]
stdin: "input\n"
seed: 42
expect:
  exit_code: 0
`)
	writeFile(t, filepath.Join(root, "Broken.java"), "class Broken {}")
	writeFile(t, filepath.Join(root, "Broken.java"+ManifestSuffix), "unknown_key: 1\n")

	seq, err := NewLoader().Load([]string{root})
	require.NoError(t, err)
	byName := map[string]*Unit{}
	for u := range seq {
		byName[u.FileName()] = u
	}

	calc := byName["Calc.java"]
	require.NotNil(t, calc)
	assert.Equal(t, "com.example.calc.Calc", calc.Entry.Class)

	jump := byName["JumpInit.java"]
	require.NotNil(t, jump)
	require.NoError(t, jump.Err)
	assert.Equal(t, "JumpInit", jump.Entry.Class)
	assert.Equal(t, []string{"--fast"}, jump.Entry.Args)
	assert.Equal(t, "input\n", jump.Manifest.Stdin)
	require.NotNil(t, jump.Manifest.Seed)
	assert.Equal(t, int64(42), *jump.Manifest.Seed)
	require.NotNil(t, jump.Manifest.Expect.ExitCode)
	assert.Equal(t, 0, *jump.Manifest.Expect.ExitCode)
	assert.Equal(t, "JumpInit.java", jump.CompileSource().FileName)

	broken := byName["Broken.java"]
	require.NotNil(t, broken)
	assert.Equal(t, perrors.ErrCodeFileUnmarshal, perrors.CodeOf(broken.Err))
}

func TestDeriveEntryOverride(t *testing.T) {
	entry := deriveEntry("/x/Main.java", "package a;", Manifest{Entry: "b.Other", Args: []string{"1"}})
	assert.Equal(t, "b.Other", entry.Class)
	assert.Equal(t, []string{"1"}, entry.Args)

	entry = deriveEntry("/x/run.sh", "echo hi", Manifest{})
	assert.Equal(t, "run", entry.Class)
}

func TestCount(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "A.java"), "class A {}")
	writeFile(t, filepath.Join(root, "b", "B.java"), "class B {}")

	seq, err := NewLoader().Load([]string{root})
	require.NoError(t, err)
	assert.Equal(t, 2, Count(seq))
}
