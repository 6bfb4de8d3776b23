package fixture

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/zeebo/blake3"

	perrors "github.com/felixgeelhaar/parity/internal/errors"
)

// DefaultExtensions are the fixture source extensions
var DefaultExtensions = []string{".java"}

// Loader discovers fixtures
type Loader struct {
	Extensions []string
}

// NewLoader creates a loader for the given extensions (DefaultExtensions when
// none are given)
func NewLoader(exts ...string) *Loader {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	norm := make([]string, 0, len(exts))
	for _, e := range exts {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		norm = append(norm, strings.ToLower(e))
	}
	return &Loader{Extensions: norm}
}

// Load validates roots and returns a lazy sequence of units.
//
// Every root must be a readable directory, otherwise Load fails with a
// DISCOVERY error. The sequence walks the roots again on every range and
// never writes to the filesystem. Unreadable files and directories found
// during the walk are yielded as units with Err set.
func (l *Loader) Load(roots []string) (iter.Seq[*Unit], error) {
	if len(roots) == 0 {
		return nil, perrors.NewRootNotFoundError("(none)", fmt.Errorf("no fixture roots given"))
	}

	cleaned := make([]string, 0, len(roots))
	for _, root := range roots {
		root = filepath.Clean(root)
		if slices.Contains(cleaned, root) {
			continue
		}
		if err := checkRoot(root); err != nil {
			return nil, err
		}
		cleaned = append(cleaned, root)
	}

	return func(yield func(*Unit) bool) {
		for _, root := range cleaned {
			if !l.walk(root, yield) {
				return
			}
		}
	}, nil
}

func checkRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return perrors.NewRootNotFoundError(root, err)
		}
		return perrors.NewRootUnreadableError(root, err)
	}
	if !info.IsDir() {
		return perrors.NewRootUnreadableError(root, fmt.Errorf("not a directory"))
	}
	f, err := os.Open(root)
	if err != nil {
		return perrors.NewRootUnreadableError(root, err)
	}
	defer f.Close()
	if _, err := f.ReadDir(1); err != nil && !errors.Is(err, io.EOF) {
		return perrors.NewRootUnreadableError(root, err)
	}
	return nil
}

// walk yields the units under root and reports whether the consumer wants
// more
func (l *Loader) walk(root string, yield func(*Unit) bool) bool {
	more := true
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			more = yield(l.failedUnit(root, path, err))
			if !more {
				return filepath.SkipAll
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !l.matches(path) {
			return nil
		}

		more = yield(l.load(root, path))
		if !more {
			return filepath.SkipAll
		}
		return nil
	})
	return more
}

func (l *Loader) matches(path string) bool {
	if strings.HasSuffix(path, ManifestSuffix) {
		return false
	}
	return slices.Contains(l.Extensions, strings.ToLower(filepath.Ext(path)))
}

func (l *Loader) load(root, path string) *Unit {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	u := &Unit{
		ID:      MakeID(root, rel),
		Root:    root,
		RelPath: filepath.ToSlash(rel),
		Path:    path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		u.Err = perrors.Wrap(perrors.ErrCodeFixtureRead, fmt.Sprintf("read fixture %s", path), err)
		return u
	}
	u.Source = string(data)
	u.SourceHash = HashSource(data)

	m, err := loadManifest(path)
	if err != nil {
		u.Err = err
		return u
	}
	u.Manifest = m
	u.Entry = deriveEntry(path, u.Source, m)
	return u
}

func (l *Loader) failedUnit(root, path string, cause error) *Unit {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	return &Unit{
		ID:      MakeID(root, rel),
		Root:    root,
		RelPath: filepath.ToSlash(rel),
		Path:    path,
		Err:     perrors.Wrap(perrors.ErrCodeFixtureRead, fmt.Sprintf("read %s", path), cause),
	}
}

// HashSource returns the hex blake3 digest of fixture source bytes
func HashSource(data []byte) string {
	h := blake3.New()
	_, _ = h.Write(data)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Count ranges over seq once and returns the number of units
func Count(seq iter.Seq[*Unit]) int {
	n := 0
	for range seq {
		n++
	}
	return n
}
