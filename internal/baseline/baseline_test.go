package baseline

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/parity/internal/sandbox"
)

func seed(v int64) *int64 { return &v }

func TestCaptureAndLoad(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "baselines"))
	key := Key{FixtureID: "root::JumpInit.java", SourceHash: "abc", Seed: seed(7)}

	b, err := store.Load(key)
	require.NoError(t, err)
	assert.Nil(t, b)

	res := &sandbox.Result{Stdout: []byte("true\n"), Stderr: []byte{0xff}, ExitCode: 3, Duration: 20 * time.Millisecond}
	_, err = store.Capture(key, res)
	require.NoError(t, err)

	b, err = store.Load(key)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, res.Stdout, b.Result().Stdout)
	assert.Equal(t, res.Stderr, b.Result().Stderr)
	assert.Equal(t, 3, b.Result().ExitCode)
	assert.Equal(t, 20*time.Millisecond, b.Result().Duration)
}

func TestCaptureIsWriteOnce(t *testing.T) {
	store := NewStore(t.TempDir())
	key := Key{FixtureID: "root::A.java", SourceHash: "h"}

	_, err := store.Capture(key, &sandbox.Result{Stdout: []byte("first")})
	require.NoError(t, err)

	_, err = store.Capture(key, &sandbox.Result{Stdout: []byte("second")})
	assert.ErrorIs(t, err, fs.ErrExist)

	b, err := store.Load(key)
	require.NoError(t, err)
	assert.Equal(t, "first", string(b.Stdout))
}

func TestConcurrentCaptureHasOneWinner(t *testing.T) {
	store := NewStore(t.TempDir())
	key := Key{FixtureID: "root::A.java", SourceHash: "h"}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Capture(key, &sandbox.Result{Stdout: []byte("x")}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestChangedSourceOrSeedMissesBaseline(t *testing.T) {
	store := NewStore(t.TempDir())
	key := Key{FixtureID: "root::A.java", SourceHash: "v1", Seed: seed(1)}
	_, err := store.Capture(key, &sandbox.Result{Stdout: []byte("x")})
	require.NoError(t, err)

	for _, k := range []Key{
		{FixtureID: "root::A.java", SourceHash: "v2", Seed: seed(1)},
		{FixtureID: "root::A.java", SourceHash: "v1", Seed: seed(2)},
		{FixtureID: "root::A.java", SourceHash: "v1"},
		{FixtureID: "other::A.java", SourceHash: "v1", Seed: seed(1)},
	} {
		b, err := store.Load(k)
		require.NoError(t, err)
		assert.Nil(t, b)
	}
}

func TestCaptureRejectsTimedOutRuns(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Capture(Key{FixtureID: "a"}, &sandbox.Result{TimedOut: true})
	assert.Error(t, err)
	_, err = store.Capture(Key{FixtureID: "a"}, nil)
	assert.Error(t, err)
}

func TestLoadCorruptBaseline(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	key := Key{FixtureID: "a", SourceHash: "h"}
	require.NoError(t, os.WriteFile(filepath.Join(dir, key.fileName()), []byte("{"), 0o644))

	_, err := store.Load(key)
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	list, err := NewStore(filepath.Join(dir, "missing")).List()
	require.NoError(t, err)
	assert.Empty(t, list)

	for _, id := range []string{"a", "b"} {
		_, err := store.Capture(Key{FixtureID: id, SourceHash: "h"}, &sandbox.Result{})
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	list, err = store.List()
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
