// Package fixture discovers fixture programs under one or more root
// directories.
package fixture

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/parity/internal/toolchain"
)

// Unit is one fixture program. Units are created at discovery time and are
// not modified afterwards.
type Unit struct {
	// ID is the root-qualified identity "<root>::<relpath>". Identical file
	// names under different roots yield different IDs.
	ID         string
	Root       string
	RelPath    string
	Path       string
	Source     string
	SourceHash string
	Entry      toolchain.Entry
	Manifest   Manifest
	// Err is set when the fixture could not be read; such units are reported
	// as infrastructure errors instead of being evaluated.
	Err error
}

// FileName is the base name of the fixture source
func (u *Unit) FileName() string {
	return filepath.Base(u.Path)
}

// CompileSource returns the unit as a toolchain compilation unit
func (u *Unit) CompileSource() toolchain.Source {
	return toolchain.Source{FileName: u.FileName(), Text: u.Source}
}

// MakeID builds a fixture identity from a root and a path relative to it
func MakeID(root, rel string) string {
	return filepath.ToSlash(filepath.Clean(root)) + "::" + filepath.ToSlash(rel)
}

var javaPackage = regexp.MustCompile(`(?m)^\s*package\s+([A-Za-z_$][\w$]*(?:\.[A-Za-z_$][\w$]*)*)\s*;`)

// deriveEntry picks the entry point for a source file. Java sources run the
// class named after the file, qualified by its package declaration.
func deriveEntry(path, source string, m Manifest) toolchain.Entry {
	entry := toolchain.Entry{Args: append([]string(nil), m.Args...)}
	if m.Entry != "" {
		entry.Class = m.Entry
		return entry
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	entry.Class = stem
	if strings.EqualFold(filepath.Ext(path), ".java") {
		if match := javaPackage.FindStringSubmatch(source); match != nil {
			entry.Class = match[1] + "." + stem
		}
	}
	return entry
}
