// Package taskctx implements the task-context facade: the structured
// contract a running task body sees, per the data model's "Task Context"
// entity. Grounded on specialistvlad-burstgridgo's internal/executor.Context
// (which exposes per-node HCL evaluation state), generalized from "HCL
// variables for this step" to "inputs/outputs/output-sink/subprocess/
// sub-build/sub-work for this task".
package taskctx

import (
	"context"
	"fmt"

	"github.com/vk/pake/internal/defines"
	"github.com/vk/pake/internal/pool"
	"github.com/vk/pake/internal/subpake"
	"github.com/vk/pake/internal/subprocess"
	"github.com/zclconf/go-cty/cty"
)

// Context is the per-task facade. One is created just before a task's body
// runs and discarded when the body returns.
type Context struct {
	ctx context.Context

	name              string
	inputs            []string
	outputs           []string
	outdatedInputs    []string
	outdatedOutputs   []string
	outdatedPairs     [][2]string
	dependencyOutputs []string

	sink    *Sink
	proc    *subprocess.Runner
	sub     *subpake.Runner
	pool    *pool.Pool
	defs    *defines.Map
	exports *defines.Exports
}

// Config bundles everything the scheduler has computed for one task
// execution before handing control to the task body.
type Config struct {
	Name              string
	Inputs            []string
	Outputs           []string
	OutdatedInputs    []string
	OutdatedOutputs   []string
	OutdatedPairs     [][2]string
	DependencyOutputs []string
	Sink              *Sink
	Pool              *pool.Pool
	// Defines is the frozen process-wide define map; Exports is the live
	// subset a task may mutate via Export/Unexport for propagation to any
	// sub-build it launches.
	Defines *defines.Map
	Exports *defines.Exports
}

// New builds a Context for one task execution.
func New(ctx context.Context, cfg Config) *Context {
	tc := &Context{
		ctx:               ctx,
		name:              cfg.Name,
		inputs:            cfg.Inputs,
		outputs:           cfg.Outputs,
		outdatedInputs:    cfg.OutdatedInputs,
		outdatedOutputs:   cfg.OutdatedOutputs,
		outdatedPairs:     cfg.OutdatedPairs,
		dependencyOutputs: cfg.DependencyOutputs,
		sink:              cfg.Sink,
		pool:              cfg.Pool,
		defs:              cfg.Defines,
		exports:           cfg.Exports,
	}
	tc.proc = subprocess.New(cfg.Name, tc.sink)
	tc.sub = subpake.New(cfg.Name, tc.sink)
	return tc
}

// Name returns the task's registered name.
func (c *Context) Name() string { return c.name }

// Inputs returns the task's concrete input paths.
func (c *Context) Inputs() []string { return c.inputs }

// Outputs returns the task's concrete output paths.
func (c *Context) Outputs() []string { return c.outputs }

// OutdatedInputs returns the inputs considered out of date this run.
func (c *Context) OutdatedInputs() []string { return c.outdatedInputs }

// OutdatedOutputs returns the outputs considered out of date this run.
func (c *Context) OutdatedOutputs() []string { return c.outdatedOutputs }

// OutdatedPairs returns the zipped (input, output) pairs considered out of
// date under the symmetric pairing rule. Empty in the asymmetric case.
func (c *Context) OutdatedPairs() [][2]string { return c.outdatedPairs }

// DependencyOutputs returns the flattened concrete outputs of this task's
// immediate dependencies, as they stood when this task started.
func (c *Context) DependencyOutputs() []string { return c.dependencyOutputs }

// Context returns the execution context threaded through the run, for
// tasks that need to pass cancellation further down (e.g. to their own
// long-running I/O).
func (c *Context) Context() context.Context { return c.ctx }

// Print appends its operands, formatted as fmt.Print does (no trailing
// newline is added), to the task's output buffer under the sink's io_lock.
func (c *Context) Print(args ...any) {
	c.sink.Lock()
	defer c.sink.Unlock()
	fmt.Fprint(c.sink, args...)
}

// Printf appends formatted text (no trailing newline is added) to the
// task's output buffer under the sink's io_lock.
func (c *Context) Printf(format string, args ...any) {
	c.sink.Lock()
	defer c.sink.Unlock()
	fmt.Fprintf(c.sink, format, args...)
}

// Write appends raw bytes to the task's output buffer under the sink's
// io_lock, implementing io.Writer so a task can pass the context straight
// to anything that writes to an io.Writer.
func (c *Context) Write(p []byte) (int, error) {
	c.sink.Lock()
	defer c.sink.Unlock()
	return c.sink.Write(p)
}

// Lock acquires the sink's io_lock directly, for a task that wants to
// group several writes atomically. A no-op when output synchronization is
// disabled.
func (c *Context) Lock() { c.sink.Lock() }

// Unlock releases the io_lock acquired by Lock.
func (c *Context) Unlock() { c.sink.Unlock() }

// Call runs a subprocess, streaming or collecting its output per opts.
func (c *Context) Call(cmd []string, opts subprocess.Options) (*subprocess.Result, error) {
	return c.proc.Call(c.ctx, Flatten(cmd), opts)
}

// CheckCall runs a subprocess and returns only its exit code.
func (c *Context) CheckCall(cmd []string, opts subprocess.Options) (int, error) {
	return c.proc.CheckCall(c.ctx, Flatten(cmd), opts)
}

// CheckOutput runs a subprocess and returns its captured bytes.
func (c *Context) CheckOutput(cmd []string, opts subprocess.Options) ([]byte, error) {
	return c.proc.CheckOutput(c.ctx, Flatten(cmd), opts)
}

// GetDefine returns the named define's value and whether it was present,
// reading from the frozen process-wide define map populated from -D
// operands and (for a sub-build child) the parent's propagated exports.
func (c *Context) GetDefine(key string) (cty.Value, bool) {
	return c.defs.Get(key)
}

// Export marks key=val for propagation to any sub-build this task (or one
// started further down the call chain before this run exits) launches via
// Subpake. The exports map is mutated only through Export/Unexport.
func (c *Context) Export(key string, val cty.Value) {
	c.exports.Export(key, val)
}

// Unexport removes key from the propagation set, if present.
func (c *Context) Unexport(key string) {
	c.exports.Unexport(key)
}

// Subpake launches a recursive build invocation. When opts.Exports is nil,
// the current export set (as mutated by prior Export/Unexport calls) is
// propagated automatically, so a task does not need to thread its own
// exports through every Subpake call by hand. When opts.SyncOutput is nil,
// the child inherits this task's output-synchronization policy.
func (c *Context) Subpake(opts subpake.Options) error {
	if opts.Exports == nil && c.exports != nil {
		opts.Exports = c.exports.Snapshot()
	}
	if opts.SyncOutput == nil && c.sink != nil {
		syncOn := c.sink.syncOn
		opts.SyncOutput = &syncOn
	}
	return c.sub.Run(c.ctx, opts)
}

// Multitask returns a scoped sub-executor drawing from the same shared
// worker pool as top-level task dispatch. The scope's Wait propagates the
// first submission-order error and never cancels units already in flight.
func (c *Context) Multitask() *pool.Scope {
	return c.pool.Sub(c.ctx)
}

// Flatten is the subprocess-call boundary's argument hook. It returns args
// unchanged: a []string command line is already flat. FlattenAny performs
// the one-level flattening of mixed string/[]string fragments.
func Flatten(args []string) []string {
	// args is already []string in this Go rendition: Go's static typing
	// means the dynamic "string or nested iterable" argument shape from the
	// source language collapses to a single concrete type at the call site.
	// FlattenAny below is the entry point for callers building a command
	// line out of mixed string/[]string fragments (e.g. a literal flag
	// plus a task's own Inputs()).
	return args
}

// FlattenAny accepts a heterogeneous argument tree — individual strings
// and []string fragments — and flattens it one level deep into a single
// []string, mirroring the dynamic-language call sites a task author might
// be used to (pass a literal flag, then splice in ctx.Outputs()).
func FlattenAny(parts ...any) []string {
	var out []string
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			out = append(out, v)
		case []string:
			out = append(out, v...)
		case fmt.Stringer:
			out = append(out, v.String())
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}
