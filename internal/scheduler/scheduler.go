// Package scheduler implements the driver: resolving the requested task
// set, building the reachable dependency subgraph, detecting cycles,
// walking it bottom-up with bounded parallelism, and aggregating failures
// into a process exit code.
//
// The dispatch loop follows specialistvlad-burstgridgo's dag.Executor.Run:
// a ready-channel drained by a bounded worker pool, an atomic per-node
// dependency counter, and a failure cascading to everything downstream
// without canceling work already in flight. The topological-order flush
// pass after execution gives output ordering a guarantee independent of
// actual completion order.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/vk/pake/internal/ctxlog"
	"github.com/vk/pake/internal/defines"
	"github.com/vk/pake/internal/graph"
	"github.com/vk/pake/internal/iomatch"
	"github.com/vk/pake/internal/pakeerr"
	"github.com/vk/pake/internal/pool"
	"github.com/vk/pake/internal/task"
	"github.com/vk/pake/internal/taskctx"
)

// Options configures one run.
type Options struct {
	N          int
	SyncOutput bool
	Root       string // working directory inputs/outputs are resolved against
	DryRun     bool
	Stdout     io.Writer
	// Defines is the frozen process-wide define map a task body reads via
	// taskctx.Context.GetDefine. Exports is the live export subset a task
	// mutates via Export/Unexport and that propagates automatically into
	// every Subpake call it makes.
	Defines *defines.Map
	Exports *defines.Exports
}

// Driver ties a task registry to one run.
type Driver struct {
	Registry *task.Registry
}

// New returns a Driver over reg.
func New(reg *task.Registry) *Driver {
	return &Driver{Registry: reg}
}

// buildGraph adds every registered task and its dependency edges to g.
func (d *Driver) buildGraph() *graph.Graph {
	g := graph.New()
	for _, name := range d.Registry.Names() {
		t, _ := d.Registry.ByName(name)
		g.AddNode(name)
		for _, dep := range t.Dependencies {
			g.AddEdge(name, dep)
		}
	}
	return g
}

// resolve validates that every requested name (and transitively every
// dependency name) is registered.
func (d *Driver) resolve(requested []string) error {
	seen := make(map[string]bool)
	var check func(name string) error
	check = func(name string) error {
		if seen[name] {
			return nil
		}
		seen[name] = true
		t, ok := d.Registry.ByName(name)
		if !ok {
			return &pakeerr.UndefinedTask{Name: name}
		}
		for _, dep := range t.Dependencies {
			if err := check(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, name := range requested {
		if err := check(name); err != nil {
			return err
		}
	}
	return nil
}

// taskOutcome records what happened to one task during a run.
type taskOutcome struct {
	executed bool
	sink     *taskctx.Sink
	outputs  []string
	err      error
	done     chan struct{}
}

// Result is the outcome of a full run.
type Result struct {
	Order    []string
	Failures map[string]error
	// FirstFailure is the earliest-registered task that failed, or "" if
	// the run succeeded.
	FirstFailure string
}

// ExitCode maps the result to the stable process exit code.
func (r *Result) ExitCode() pakeerr.Code {
	if r.FirstFailure == "" {
		return pakeerr.CodeOK
	}
	return pakeerr.ExitCodeFor(r.Failures[r.FirstFailure])
}

// Run resolves and executes requested (or the registry's configured
// defaults, if requested is empty), honoring opts.N-bounded parallelism,
// and returns the aggregate Result.
func (d *Driver) Run(ctx context.Context, requested []string, opts Options) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	if len(requested) == 0 {
		requested = d.Registry.Defaults()
	}
	if len(requested) == 0 {
		return nil, &pakeerr.NoTasksSpecified{}
	}

	if err := d.resolve(requested); err != nil {
		return nil, err
	}

	g := d.buildGraph()
	order := d.Registry.Order()
	topo, err := g.TopologicalOrder(requested, order)
	if err != nil {
		return nil, err
	}

	if opts.DryRun {
		logger.Info("dry run, not executing", "order", topo)
		return &Result{Order: topo, Failures: map[string]error{}}, nil
	}

	if opts.Root == "" {
		opts.Root = "."
	}

	p := pool.New(opts.N)
	stdout := opts.Stdout
	var stdoutMu sync.Mutex

	outcomes := make(map[string]*taskOutcome, len(topo))
	for _, name := range topo {
		outcomes[name] = &taskOutcome{done: make(chan struct{})}
	}

	var failing atomic.Bool

	depsOf := make(map[string][]string, len(topo))
	dependentsOf := make(map[string][]string, len(topo))
	remaining := make(map[string]*atomic.Int32, len(topo))
	for _, name := range topo {
		t, _ := d.Registry.ByName(name)
		var deps []string
		for _, dep := range t.Dependencies {
			if _, ok := outcomes[dep]; ok {
				deps = append(deps, dep)
			}
		}
		depsOf[name] = deps
		cnt := &atomic.Int32{}
		cnt.Store(int32(len(deps)))
		remaining[name] = cnt
		for _, dep := range deps {
			dependentsOf[dep] = append(dependentsOf[dep], name)
		}
	}

	ready := make(chan string, len(topo))
	for _, name := range topo {
		if remaining[name].Load() == 0 {
			ready <- name
		}
	}

	var dispatch func(name string)
	dispatch = func(name string) {
		oc := outcomes[name]
		defer close(oc.done)

		if failing.Load() {
			oc.err = errSkipped
			d.unblockDependents(name, dependentsOf, remaining, ready, topo)
			return
		}

		t, _ := d.Registry.ByName(name)

		var depOutputs []string
		for _, dep := range depsOf[name] {
			depOutputs = append(depOutputs, outcomes[dep].outputs...)
		}

		class, classErr := iomatch.Classify(opts.Root, name, t.Inputs, t.Outputs)
		if classErr != nil {
			oc.err = classErr
			failing.Store(true)
			d.unblockDependents(name, dependentsOf, remaining, ready, topo)
			return
		}
		oc.outputs = class.ConcreteOutputs

		sink := taskctx.NewSink(opts.SyncOutput, lockedWriter{&stdoutMu, stdout})
		oc.sink = sink

		if class.Outdated && t.Body != nil {
			oc.executed = true
			tc := taskctx.New(ctx, taskctx.Config{
				Name:              name,
				Inputs:            class.ConcreteInputs,
				Outputs:           class.ConcreteOutputs,
				OutdatedInputs:    class.OutdatedInputs,
				OutdatedOutputs:   class.OutdatedOutputs,
				OutdatedPairs:     class.OutdatedPairs,
				DependencyOutputs: depOutputs,
				Sink:              sink,
				Pool:              p,
				Defines:           opts.Defines,
				Exports:           opts.Exports,
			})
			if err := runBodyRecovered(t.Body, tc); err != nil {
				oc.err = err
				failing.Store(true)
			}
		}

		d.unblockDependents(name, dependentsOf, remaining, ready, topo)
	}

	completed := make(chan struct{}, len(topo))
	for n := 0; n < len(topo); n++ {
		name := <-ready
		p.Submit(ctx, func() (any, error) {
			dispatch(name)
			completed <- struct{}{}
			return nil, nil
		})
	}
	for n := 0; n < len(topo); n++ {
		<-completed
	}

	res := &Result{Order: topo, Failures: map[string]error{}}

	flushInOrder(topo, outcomes, stdout, &stdoutMu)

	for _, name := range topo {
		oc := outcomes[name]
		if oc.err != nil && !errors.Is(oc.err, errSkipped) {
			res.Failures[name] = oc.err
		}
	}

	for _, name := range topo {
		if _, failed := res.Failures[name]; failed {
			if res.FirstFailure == "" || order[name] < order[res.FirstFailure] {
				res.FirstFailure = name
			}
		}
	}

	return res, nil
}

// errSkipped marks a task that never ran because an earlier failure put the
// run into fast-fail mode. It never surfaces in Result.Failures.
var errSkipped = errors.New("skipped: a prior task failed")

func (d *Driver) unblockDependents(name string, dependentsOf map[string][]string, remaining map[string]*atomic.Int32, ready chan string, topo []string) {
	for _, dep := range dependentsOf[name] {
		if remaining[dep].Add(-1) == 0 {
			ready <- dep
		}
	}
}

func runBodyRecovered(body task.Body, tc *taskctx.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return body(tc)
}

func flushInOrder(topo []string, outcomes map[string]*taskOutcome, stdout io.Writer, mu *sync.Mutex) {
	for _, name := range topo {
		oc := outcomes[name]
		if oc.sink == nil {
			continue
		}
		buf := oc.sink.Bytes()
		if !oc.executed && len(buf) == 0 {
			continue
		}
		mu.Lock()
		fmt.Fprintf(stdout, "===== Executing Task: %q\n", name)
		stdout.Write(buf)
		mu.Unlock()
	}
}

// lockedWriter serializes direct (sync-disabled) writes to stdout. In that
// mode per-task buffering is bypassed entirely, so this lock is the only
// thing preventing two tasks' direct writes from interleaving mid-line —
// which the concurrency model explicitly allows to happen regardless.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
