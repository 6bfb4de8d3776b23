package report

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/parity/internal/errors"
)

// ErrDuplicate is returned when a fixture already has a verdict
var ErrDuplicate = errors.New(errors.ErrCodeReportDuplicate, "verdict already recorded")

// Entry is one fixture's verdict
type Entry struct {
	FixtureID string  `json:"fixture" yaml:"fixture"`
	Verdict   Verdict `json:"verdict" yaml:"verdict"`
}

// Summary counts verdicts per kind
type Summary struct {
	Equivalent           int `json:"equivalent" yaml:"equivalent"`
	EquivalentWithCaveat int `json:"equivalent_with_caveat" yaml:"equivalent_with_caveat"`
	Divergent            int `json:"divergent" yaml:"divergent"`
	TransformError       int `json:"transform_error" yaml:"transform_error"`
	InfrastructureError  int `json:"infrastructure_error" yaml:"infrastructure_error"`
	Total                int `json:"total" yaml:"total"`
}

func (s *Summary) add(k Kind) {
	switch k {
	case KindEquivalent:
		s.Equivalent++
	case KindEquivalentWithCaveat:
		s.EquivalentWithCaveat++
	case KindDivergent:
		s.Divergent++
	case KindTransformError:
		s.TransformError++
	case KindInfrastructureError:
		s.InfrastructureError++
	}
	s.Total++
}

// Count returns the number of verdicts of kind k
func (s Summary) Count(k Kind) int {
	switch k {
	case KindEquivalent:
		return s.Equivalent
	case KindEquivalentWithCaveat:
		return s.EquivalentWithCaveat
	case KindDivergent:
		return s.Divergent
	case KindTransformError:
		return s.TransformError
	case KindInfrastructureError:
		return s.InfrastructureError
	}
	return 0
}

// FailureCount counts divergent and transform-error verdicts
func (s Summary) FailureCount() int {
	return s.Divergent + s.TransformError
}

// InfrastructureCount counts infrastructure-error verdicts
func (s Summary) InfrastructureCount() int {
	return s.InfrastructureError
}

// Report is the finalized result of one run
type Report struct {
	RunID      string    `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	DurationMS int64     `json:"duration_ms" yaml:"duration_ms"`
	// Incomplete is set when the run was cancelled before every fixture had
	// a verdict
	Incomplete bool `json:"incomplete" yaml:"incomplete"`
	// Discovered is the number of fixtures found, when known
	Discovered int     `json:"discovered,omitempty" yaml:"discovered,omitempty"`
	Summary    Summary `json:"summary" yaml:"summary"`
	// Entries are in completion order
	Entries []Entry `json:"entries" yaml:"entries"`
}

// Sorted returns the entries ordered by fixture identity
func (r *Report) Sorted() []Entry {
	out := slices.Clone(r.Entries)
	slices.SortStableFunc(out, func(a, b Entry) int {
		return cmp.Compare(a.FixtureID, b.FixtureID)
	})
	return out
}

// Passed reports whether every recorded fixture passed
func (r *Report) Passed() bool {
	return r.Summary.FailureCount() == 0 && r.Summary.InfrastructureCount() == 0
}

// Aggregator collects verdicts from concurrent workers. Record and Finalize
// are safe for concurrent use.
type Aggregator struct {
	mu         sync.Mutex
	runID      string
	startedAt  time.Time
	entries    []Entry
	seen       map[string]struct{}
	summary    Summary
	discovered int
	closed     bool
	now        func() time.Time
}

// NewAggregator starts a new run
func NewAggregator() *Aggregator {
	return &Aggregator{
		runID:     uuid.NewString(),
		startedAt: time.Now().UTC(),
		seen:      make(map[string]struct{}),
		now:       time.Now,
	}
}

// RunID returns the identifier of the run being aggregated
func (a *Aggregator) RunID() string {
	return a.runID
}

// SetDiscovered records how many fixtures the run found
func (a *Aggregator) SetDiscovered(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.discovered = n
}

// Record appends the verdict for fixtureID. It fails with REPORT-001 once
// the report is finalized and REPORT-002 when fixtureID already has a
// verdict.
func (a *Aggregator) Record(fixtureID string, v Verdict) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return errors.NewReportClosedError(fixtureID)
	}
	if _, ok := a.seen[fixtureID]; ok {
		return errors.Wrap(errors.ErrCodeReportDuplicate, "duplicate verdict for "+fixtureID, ErrDuplicate)
	}

	a.seen[fixtureID] = struct{}{}
	a.entries = append(a.entries, Entry{FixtureID: fixtureID, Verdict: v})
	a.summary.add(v.Kind)
	return nil
}

// Len returns the number of recorded verdicts
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Finalize closes the aggregator and returns the report. It may be called
// once; later calls and later Records fail with REPORT-001.
func (a *Aggregator) Finalize(incomplete bool) (*Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, errors.ErrReportClosed
	}
	a.closed = true

	return &Report{
		RunID:      a.runID,
		StartedAt:  a.startedAt,
		DurationMS: a.now().Sub(a.startedAt).Milliseconds(),
		Incomplete: incomplete,
		Discovered: a.discovered,
		Summary:    a.summary,
		Entries:    append([]Entry{}, a.entries...),
	}, nil
}
