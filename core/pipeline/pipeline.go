// Package pipeline runs one delombok pass: inventory the root, copy excluded
// files, invoke the tool, then move its flattened output back into the
// source layout.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tristendillon/delombok/core/exclusion"
	"github.com/tristendillon/delombok/core/inventory"
	"github.com/tristendillon/delombok/core/invoker"
	"github.com/tristendillon/delombok/core/logger"
	"github.com/tristendillon/delombok/core/reconcile"
	"github.com/tristendillon/delombok/core/telemetry"
)

type Options struct {
	Root       string
	Output     string
	Excluded   exclusion.Set
	Parameters invoker.Parameters
	Tool       invoker.Tool
	Timeout    time.Duration

	// Strict fails reconciliation when two sources share a basename.
	Strict bool
	// SkipEmpty skips the tool when every source is excluded.
	SkipEmpty bool

	Stdout io.Writer
	Stderr io.Writer
}

type Timings struct {
	Inventory time.Duration
	Invoke    time.Duration
	Reconcile time.Duration
	Total     time.Duration
}

// Result describes a run. It is returned even when the run fails, holding
// whatever was done before the failure.
type Result struct {
	Root       string
	Output     string
	Sources    int
	Included   []string
	Excluded   []string
	Duplicates []inventory.Duplicate
	Command    []string
	Invoked    bool
	ExitCode   int
	Moves      []reconcile.Move
	Timings    Timings
}

func (r *Result) Relocated() int {
	n := 0
	for _, m := range r.Moves {
		if !m.Noop {
			n++
		}
	}
	return n
}

type Pipeline struct {
	opts Options

	Walker     *inventory.Walker
	Router     *exclusion.Router
	Invoker    *invoker.Invoker
	Reconciler *reconcile.Reconciler
	Metrics    *telemetry.Metrics
}

func New(opts Options) *Pipeline {
	opts.Root = filepath.Clean(opts.Root)
	opts.Output = filepath.Clean(opts.Output)
	if opts.Excluded == nil {
		opts.Excluded = exclusion.DefaultSet()
	}

	iv := invoker.NewInvoker(opts.Root, opts.Tool)
	iv.Timeout = opts.Timeout
	if opts.Stdout != nil {
		iv.Stdout = opts.Stdout
	}
	if opts.Stderr != nil {
		iv.Stderr = opts.Stderr
	}

	var skip []string
	if nestedIn(opts.Root, opts.Output) {
		skip = append(skip, opts.Output)
	}

	return &Pipeline{
		opts:       opts,
		Walker:     inventory.NewWalker(skip...),
		Router:     exclusion.NewRouter(opts.Output, opts.Excluded),
		Invoker:    iv,
		Reconciler: reconcile.NewReconciler(opts.Output),
	}
}

func (p *Pipeline) Options() Options {
	return p.opts
}

// Run executes the whole pipeline. A missing root fails with a *ConfigError
// before the output directory is touched; a non-zero tool exit fails before
// reconciliation.
func (p *Pipeline) Run(ctx context.Context) (res *Result, err error) {
	start := time.Now()
	res = p.newResult()
	defer func() {
		res.Timings.Total = time.Since(start)
		p.Metrics.ObserveRun(string(Classify(err)), len(res.Excluded), res.Relocated(), res.Timings.Invoke)
	}()

	if err := p.checkRoot(); err != nil {
		return res, err
	}

	logger.Info("Starting delombok process...")

	inv, err := p.inventory(res)
	if err != nil {
		return res, err
	}

	if err := os.MkdirAll(p.opts.Output, 0755); err != nil {
		return res, fmt.Errorf("failed to create output directory: %w", err)
	}

	included, excluded, err := p.Router.Split(inv.Sources)
	if err != nil {
		return res, err
	}
	res.Included = relPaths(included)
	res.Excluded = relPaths(excluded)
	if len(excluded) > 0 {
		logger.Info("Copied %d excluded files verbatim", len(excluded))
	}

	if err := p.invoke(ctx, res); err != nil {
		return res, err
	}

	if err := p.reconcile(inv, res); err != nil {
		return res, err
	}

	logger.Info("Finished delombok process, took %d ms", time.Since(start).Milliseconds())
	return res, nil
}

// Reconcile runs only the path reconciliation over an existing output tree.
func (p *Pipeline) Reconcile(ctx context.Context) (res *Result, err error) {
	start := time.Now()
	res = p.newResult()
	defer func() {
		res.Timings.Total = time.Since(start)
	}()

	if err := p.checkRoot(); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	inv, err := p.inventory(res)
	if err != nil {
		return res, err
	}
	return res, p.reconcile(inv, res)
}

// Plan reports what Run would do without touching the filesystem. Command is
// nil when Run would skip the tool.
func (p *Pipeline) Plan() (*Result, error) {
	res := p.newResult()
	if err := p.checkRoot(); err != nil {
		return res, err
	}

	inv, err := p.inventory(res)
	if err != nil {
		return res, err
	}

	for _, src := range inv.Sources {
		if p.Router.IsExcluded(src) {
			res.Excluded = append(res.Excluded, src.RelPath)
		} else {
			res.Included = append(res.Included, src.RelPath)
		}
	}

	if len(res.Included) == 0 && p.opts.SkipEmpty {
		return res, nil
	}

	res.Command, err = p.Invoker.Command(res.Included, p.opts.Output, p.opts.Parameters)
	if err != nil {
		return res, err
	}
	return res, nil
}

func (p *Pipeline) newResult() *Result {
	return &Result{Root: p.opts.Root, Output: p.opts.Output}
}

func (p *Pipeline) checkRoot() error {
	info, err := os.Stat(p.opts.Root)
	switch {
	case os.IsNotExist(err):
		return &ConfigError{Root: p.opts.Root, Reason: "does not exist"}
	case err != nil:
		return &ConfigError{Root: p.opts.Root, Reason: err.Error()}
	case !info.IsDir():
		return &ConfigError{Root: p.opts.Root, Reason: "not a directory"}
	case p.opts.Root == p.opts.Output:
		return &ConfigError{Root: p.opts.Root, Reason: "output directory must differ from the root directory"}
	case nestedIn(p.opts.Output, p.opts.Root):
		// Reconciliation walks the whole output tree and would move the sources.
		return &ConfigError{Root: p.opts.Root, Reason: "root directory must not be inside the output directory"}
	}
	return nil
}

func (p *Pipeline) inventory(res *Result) (*inventory.Inventory, error) {
	done := logger.Timed("inventory")
	inv, err := p.Walker.Walk(p.opts.Root)
	res.Timings.Inventory = done()
	if err != nil {
		return nil, err
	}
	inv.Strict = p.opts.Strict

	res.Sources = inv.Len()
	res.Duplicates = inv.Duplicates()
	logger.Info("Detected %d files", inv.Len())
	for _, dup := range res.Duplicates {
		logger.Warn("%d sources named %s (%s); output goes to %s", len(dup.RelPaths), dup.Base, strings.Join(dup.RelPaths, ", "), dup.RelPaths[0])
	}
	return inv, nil
}

func (p *Pipeline) invoke(ctx context.Context, res *Result) error {
	if len(res.Included) == 0 && p.opts.SkipEmpty {
		logger.Info("Nothing to transform, skipping delombok")
		return nil
	}

	command, err := p.Invoker.Command(res.Included, p.opts.Output, p.opts.Parameters)
	if err != nil {
		return err
	}
	res.Command = command
	res.Invoked = true

	done := logger.Timed("delombok")
	code, err := p.Invoker.Invoke(ctx, res.Included, p.opts.Output, p.opts.Parameters)
	res.Timings.Invoke = done()
	res.ExitCode = code
	if err != nil {
		return fmt.Errorf("output left unreconciled: %w", err)
	}
	return nil
}

func (p *Pipeline) reconcile(inv *inventory.Inventory, res *Result) error {
	done := logger.Timed("reconcile")
	report, err := p.Reconciler.Reconcile(inv)
	res.Timings.Reconcile = done()
	if report != nil {
		res.Moves = report.Moves
	}
	if err != nil {
		return err
	}
	logger.Info("Reconciled %d files (%d already in place)", len(res.Moves), len(res.Moves)-res.Relocated())
	return nil
}

func relPaths(sources []inventory.Source) []string {
	paths := make([]string, len(sources))
	for i, src := range sources {
		paths[i] = src.RelPath
	}
	return paths
}

func nestedIn(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
