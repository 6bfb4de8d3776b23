// Package harness drives fixtures through transformation, execution and
// comparison, producing one verdict per fixture.
package harness

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"

	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/parity/internal/baseline"
	"github.com/felixgeelhaar/parity/internal/compare"
	"github.com/felixgeelhaar/parity/internal/errors"
	"github.com/felixgeelhaar/parity/internal/fixture"
	"github.com/felixgeelhaar/parity/internal/log"
	"github.com/felixgeelhaar/parity/internal/metrics"
	"github.com/felixgeelhaar/parity/internal/report"
	"github.com/felixgeelhaar/parity/internal/sandbox"
	"github.com/felixgeelhaar/parity/internal/toolchain"
	"github.com/felixgeelhaar/parity/internal/transform"
)

// Harness runs fixture suites. Collaborators left nil are built from the
// Config passed to Run.
type Harness struct {
	Logger  *log.Logger
	Metrics *metrics.Metrics

	// OnDiscovered is called once with the number of fixtures found
	OnDiscovered func(n int)
	// OnVerdict is called after each recorded verdict, possibly from several
	// goroutines at once
	OnVerdict func(fixtureID string, v report.Verdict)

	Sandbox     *sandbox.Sandbox
	Toolchain   toolchain.Toolchain
	Transformer transform.Transformer
	Entropy     EntropySource
}

// pipeline is the per-run wiring of collaborators
type pipeline struct {
	cfg        Config
	log        *log.Logger
	metrics    *metrics.Metrics
	sandbox    *sandbox.Sandbox
	toolchain  toolchain.Toolchain
	invoker    *transform.Invoker
	comparator *compare.Comparator
	store      *baseline.Store
	entropy    EntropySource
}

// Run evaluates every fixture under cfg.Roots.
//
// Failures confined to one fixture become verdicts in the report. Run
// returns an error without a report for invalid configuration and
// discovery failures. When ctx is cancelled it stops dispatching, waits for
// running fixtures to be torn down and returns the partial report marked
// incomplete together with a RUN-001 error.
func (h *Harness) Run(ctx context.Context, cfg Config) (*report.Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p, err := h.build(ctx, cfg)
	if err != nil {
		return nil, err
	}

	exts := cfg.FixtureExtensions()
	seq, err := fixture.NewLoader(exts...).Load(cfg.Roots)
	if err != nil {
		return nil, err
	}
	total := fixture.Count(seq)
	if total == 0 {
		return nil, errors.NewNoFixturesError(cfg.Roots, exts)
	}
	if h.OnDiscovered != nil {
		h.OnDiscovered(total)
	}

	agg := report.NewAggregator()
	agg.SetDiscovered(total)
	p.log.Info("starting run",
		"run_id", agg.RunID(),
		"fixtures", total,
		"concurrency", cfg.Concurrency,
		"toolchain", p.toolchain.Name(),
		"transformer", p.invoker.Transformer.Name(),
	)

	var g errgroup.Group
	g.SetLimit(cfg.Concurrency)
	for u := range seq {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			v, ok := p.evaluateSafe(ctx, u)
			if !ok {
				return nil
			}
			if err := agg.Record(u.ID, v); err != nil {
				p.log.WithError(err).Error("failed to record verdict", "fixture", u.ID)
				return nil
			}
			p.metrics.RecordVerdict(string(v.Kind))
			if h.OnVerdict != nil {
				h.OnVerdict(u.ID, v)
			}
			return nil
		})
	}
	_ = g.Wait()

	incomplete := ctx.Err() != nil && agg.Len() < total
	rep, err := agg.Finalize(incomplete)
	if err != nil {
		return nil, err
	}

	p.log.Info("run finished",
		"run_id", rep.RunID,
		"recorded", rep.Summary.Total,
		"equivalent", rep.Summary.Equivalent,
		"caveats", rep.Summary.EquivalentWithCaveat,
		"divergent", rep.Summary.Divergent,
		"transform_errors", rep.Summary.TransformError,
		"infrastructure_errors", rep.Summary.InfrastructureError,
		"incomplete", incomplete,
	)

	if incomplete {
		p.metrics.RecordError(string(errors.ErrCodeRunCancelled))
		return rep, errors.Wrap(errors.ErrCodeRunCancelled,
			fmt.Sprintf("run cancelled after %d of %d fixtures", rep.Summary.Total, total), ctx.Err())
	}
	return rep, nil
}

func (h *Harness) build(ctx context.Context, cfg Config) (*pipeline, error) {
	logger := h.Logger
	if logger == nil {
		logger = log.DefaultLogger()
	}

	sb := h.Sandbox
	if sb == nil {
		sb = &sandbox.Sandbox{
			Isolation:    cfg.Isolation,
			Docker:       cfg.Docker,
			EnvAllowlist: cfg.EnvAllowlist,
			ManifestDir:  cfg.ManifestDir,
			Logger:       logger,
		}
	}
	if sb.Isolation == sandbox.IsolationDocker {
		if err := sandbox.ValidateDockerAvailable(ctx); err != nil {
			return nil, err
		}
	}

	tc := h.Toolchain
	if tc == nil {
		spec := cfg.ToolchainSpec
		if spec == nil {
			preset, err := toolchain.Preset(cfg.Toolchain)
			if err != nil {
				return nil, err
			}
			spec = &preset
		}
		built, err := toolchain.New(*spec, sb, cfg.WorkDir)
		if err != nil {
			return nil, err
		}
		tc = built
	}

	tr := h.Transformer
	if tr == nil {
		built, err := newTransformer(cfg, transformerSandbox(sb))
		if err != nil {
			return nil, err
		}
		tr = built
	}

	norm, err := compare.NewNormalizer(cfg.Normalize, cfg.NormalizeRules)
	if err != nil {
		return nil, err
	}

	entropy := h.Entropy
	if entropy == nil {
		var fallback EntropySource = None{}
		if cfg.Seed != nil {
			fallback = Fixed(*cfg.Seed)
		}
		entropy = Manifest{Fallback: fallback}
	}

	var store *baseline.Store
	if cfg.BaselineMode == BaselineGolden {
		store = baseline.NewStore(cfg.BaselineDir)
	}

	return &pipeline{
		cfg:       cfg,
		log:       logger,
		metrics:   h.Metrics,
		sandbox:   sb,
		toolchain: tc,
		invoker: &transform.Invoker{
			Transformer: tr,
			Toolchain:   tc,
			Timeout:     cfg.TransformTimeout,
			Stage:       cfg.Stage,
		},
		comparator: &compare.Comparator{Normalizer: norm, MaxDiffLines: cfg.MaxDiffLines},
		store:      store,
		entropy:    entropy,
	}, nil
}

func newTransformer(cfg Config, sb *sandbox.Sandbox) (transform.Transformer, error) {
	argv := cfg.TransformerArgv
	if len(argv) == 0 {
		if cfg.Transformer == "" || cfg.Transformer == IdentityTransformer {
			return transform.Identity{}, nil
		}
		split, err := transform.SplitCommand(cfg.Transformer)
		if err != nil {
			return nil, err
		}
		argv = split
	}
	return transform.NewCommand(argv, sb, cfg.WorkDir)
}

// transformerSandbox returns the sandbox external transformers run in. The
// transformer is a host tool, so it never runs inside the fixture container.
func transformerSandbox(sb *sandbox.Sandbox) *sandbox.Sandbox {
	if sb.Isolation != sandbox.IsolationDocker {
		return sb
	}
	return &sandbox.Sandbox{
		Isolation:    sandbox.IsolationProcess,
		EnvAllowlist: sb.EnvAllowlist,
		ManifestDir:  sb.ManifestDir,
		Logger:       sb.Logger,
	}
}

// evaluateSafe evaluates u and turns a panic into an infrastructure verdict,
// so every fixture still gets exactly one verdict
func (p *pipeline) evaluateSafe(ctx context.Context, u *fixture.Unit) (v report.Verdict, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.ForFixture(u.ID).Error("fixture evaluation panicked", "panic", r)
			v, ok = report.InfrastructureError(fmt.Errorf("evaluation panicked: %v", r)), true
		}
	}()
	return p.evaluate(ctx, u)
}

// evaluate produces the verdict for one fixture. ok is false when the run
// was cancelled before the fixture finished.
func (p *pipeline) evaluate(ctx context.Context, u *fixture.Unit) (report.Verdict, bool) {
	logger := p.log.ForFixture(u.ID)

	if u.Err != nil {
		return p.infra(ctx, logger, u.Err, "")
	}
	if u.Manifest.Skip != "" {
		logger.Info("fixture skipped", "reason", u.Manifest.Skip)
		return report.Skipped(u.Manifest.Skip), true
	}
	logger.Debug("evaluating fixture")

	seed := p.entropy.Seed(u)
	vars, env := seedVars(seed)

	original, err := p.toolchain.Compile(ctx, u.CompileSource())
	if err != nil {
		var ce *toolchain.CompileError
		if stderrors.As(err, &ce) {
			return p.infra(ctx, logger,
				errors.Wrap(errors.ErrCodeOriginalCompile, "original fixture does not compile", ce),
				ce.Diagnostics)
		}
		return p.infra(ctx, logger, err, "")
	}
	defer func() { _ = original.Cleanup() }()

	key := baseline.Key{FixtureID: u.ID, SourceHash: u.SourceHash, Seed: seed}
	var golden *baseline.Baseline
	if p.store != nil {
		golden, err = p.store.Load(key)
		if err != nil {
			return p.infra(ctx, logger, err, "")
		}
	}

	outcome, err := p.invoker.Transform(ctx, u, original)
	if err != nil {
		return p.infra(ctx, logger, err, "")
	}
	p.metrics.RecordTransform(string(outcome.Kind), outcome.Duration)
	if !outcome.OK() {
		logger.Info("transform failed", "outcome", outcome.Kind)
		return report.TransformError(outcome), true
	}
	defer func() { _ = outcome.Executable.Cleanup() }()

	runs := p.cfg.StabilityRuns
	if golden != nil {
		runs = 0
	}
	origResults, transResult, err := p.runBoth(ctx,
		p.program(original, u, vars, env), runs,
		p.program(outcome.Executable, u, vars, env))
	if err != nil {
		return p.infra(ctx, logger, err, "")
	}

	var reference *sandbox.Result
	if golden != nil {
		reference = golden.Result()
	} else {
		reference = origResults[0]
		if d := p.comparator.Agree(origResults); d.Kind == compare.Divergent {
			logger.Info("original is nondeterministic", "runs", len(origResults))
			v := report.Divergence(d.Reason, reference)
			v.Diff = d.Diff
			return v, true
		}
	}

	if want := u.Manifest.Expect.ExitCode; want != nil && reference.Completed() && reference.ExitCode != *want {
		return report.Divergence(
			fmt.Sprintf("original exited with code %d, manifest expects %d", reference.ExitCode, *want),
			reference), true
	}

	if p.store != nil && golden == nil && reference.Completed() {
		if _, err := p.store.Capture(key, reference); err != nil && !stderrors.Is(err, fs.ErrExist) {
			logger.WithError(err).Warn("failed to capture baseline")
		}
	}

	v := report.FromDecision(p.comparator.Compare(reference, transResult), reference, transResult)
	if v.Kind.Passed() {
		logger.Debug("fixture passed", "verdict", v.Kind)
	} else {
		logger.Info("fixture diverged", "reason", v.Reason)
	}
	return v, true
}

// runBoth runs the original n times and the transformed program once,
// concurrently. Original runs stop repeating after a timeout.
func (p *pipeline) runBoth(ctx context.Context, orig sandbox.Program, n int, trans sandbox.Program) ([]*sandbox.Result, *sandbox.Result, error) {
	var (
		origResults []*sandbox.Result
		transResult *sandbox.Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for i := 0; i < n; i++ {
			res, err := p.execute(gctx, orig, "original")
			if err != nil {
				return err
			}
			origResults = append(origResults, res)
			if res.TimedOut {
				break
			}
		}
		return nil
	})
	g.Go(func() error {
		res, err := p.execute(gctx, trans, "transformed")
		transResult = res
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return origResults, transResult, nil
}

func (p *pipeline) execute(ctx context.Context, prog sandbox.Program, side string) (*sandbox.Result, error) {
	res, err := p.sandbox.Execute(ctx, prog, sandbox.Options{
		Timeout:     p.cfg.Timeout,
		OutputLimit: p.cfg.OutputLimit,
		Label:       side,
	})

	switch {
	case err != nil:
		p.metrics.RecordExecution(side, "error", 0)
	case res.TimedOut:
		p.metrics.RecordExecution(side, "timeout", res.Duration)
	default:
		p.metrics.RecordExecution(side, "completed", res.Duration)
	}
	return res, err
}

func (p *pipeline) program(exe *toolchain.Executable, u *fixture.Unit, vars, env map[string]string) sandbox.Program {
	prog := p.toolchain.Program(exe, u.Entry, vars)
	if prog.Env == nil && len(env) > 0 {
		prog.Env = make(map[string]string, len(env))
	}
	for k, v := range env {
		prog.Env[k] = v
	}
	if u.Manifest.Stdin != "" {
		prog.Stdin = []byte(u.Manifest.Stdin)
	}
	return prog
}

// infra records an infrastructure failure. It reports ok=false instead when
// the failure was caused by cancellation of the run.
func (p *pipeline) infra(ctx context.Context, logger *log.Logger, err error, diagnostic string) (report.Verdict, bool) {
	if ctx.Err() != nil {
		return report.Verdict{}, false
	}
	p.metrics.RecordError(string(errors.CodeOf(err)))
	logger.LogError(ctx, "infrastructure error", err)

	v := report.InfrastructureError(err)
	v.Diagnostic = diagnostic
	return v, true
}
