package health

import (
	"context"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/parity/internal/fixture"
)

// RootsChecker verifies that fixture roots exist and contain fixtures
type RootsChecker struct {
	roots []string
	exts  []string
}

// NewRootsChecker checks roots for files with the given extensions
func NewRootsChecker(roots, exts []string) *RootsChecker {
	return &RootsChecker{roots: roots, exts: exts}
}

func (c *RootsChecker) Name() string {
	return "fixture-roots"
}

func (c *RootsChecker) Check(ctx context.Context) *Result {
	if len(c.roots) == 0 {
		return Unhealthy("no fixture roots configured").
			WithDetail("suggestion", "Pass --roots or set roots in parity.yaml")
	}

	seq, err := fixture.NewLoader(c.exts...).Load(c.roots)
	if err != nil {
		return Unhealthy("fixture root unusable").WithDetail("error", err.Error())
	}

	total, unreadable := 0, 0
	for u := range seq {
		if ctx.Err() != nil {
			return Degraded("fixture scan interrupted").WithDetail("scanned", strconv.Itoa(total))
		}
		total++
		if u.Err != nil {
			unreadable++
		}
	}

	exts := strings.Join(c.exts, ",")
	switch {
	case total == 0:
		return Unhealthy("no fixtures found").WithDetail("extensions", exts)
	case unreadable > 0:
		return Degraded(strconv.Itoa(unreadable)+" of "+strconv.Itoa(total)+" fixtures unreadable").
			WithDetail("extensions", exts)
	}
	return Healthy(strconv.Itoa(total)+" fixtures found").WithDetail("extensions", exts)
}
