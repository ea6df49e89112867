// Package subprocess implements the task context's subprocess runner: it
// launches external commands with an output-collection discipline and
// typed failure reporting.
//
// Grounded on samgonzalezalberto-script-weaver's internal/core/executor.go
// (context-aware exec.CommandContext, a process-group SysProcAttr so the
// whole tree can be reasoned about, buffered capture of combined output)
// adapted so stderr is merged into stdout rather than captured separately,
// and output can either stream directly into the task's sink or be spooled
// to a temp file and relayed later under the sink's lock, decoupling
// locking from process runtime.
package subprocess

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"syscall"

	"github.com/vk/pake/internal/pakeerr"
)

// Sink is the minimal output surface a Runner writes through: the task
// context's buffered, lockable output sink. Defined here (rather than
// importing internal/taskctx) to keep the dependency direction one-way.
type Sink interface {
	io.Writer
	Lock()
	Unlock()
}

// Runner launches subprocesses on behalf of one task.
type Runner struct {
	TaskName string
	Sink     Sink
}

// New returns a Runner that attributes failures to taskName and relays
// output through sink.
func New(taskName string, sink Sink) *Runner {
	return &Runner{TaskName: taskName, Sink: sink}
}

// Options controls one invocation.
type Options struct {
	// CollectOutput spools output to a temp file while the process runs and
	// relays it to the sink, under the sink's lock, only after the process
	// exits. Default (false) streams directly into the sink as bytes
	// arrive.
	CollectOutput bool
	// Silent suppresses relaying output to the sink entirely, but the
	// output is still spooled so it can appear in a failure report.
	Silent bool
	// PrintCmd emits the command line to the sink before execution.
	// Defaults to true.
	PrintCmd *bool
	// IgnoreErrors makes a non-zero exit return the code instead of an
	// error.
	IgnoreErrors bool
	// Dir overrides the subprocess's working directory.
	Dir string
}

func (o Options) printCmd() bool {
	if o.PrintCmd == nil {
		return true
	}
	return *o.PrintCmd
}

// Result is the outcome of a completed (non-failing, or ignored-failure)
// invocation.
type Result struct {
	ExitCode int
	Output   []byte
}

// Call runs cmd, merging stderr into stdout, and waits for completion.
// On a non-zero exit it returns a *pakeerr.SubprocessFailure unless
// opts.IgnoreErrors is set, in which case the exit code is returned with a
// nil error.
func (r *Runner) Call(ctx context.Context, cmd []string, opts Options) (*Result, error) {
	if len(cmd) == 0 {
		return nil, fmt.Errorf("subprocess: empty command")
	}

	if opts.printCmd() && !opts.Silent {
		r.Sink.Lock()
		fmt.Fprintf(r.Sink, "+ %s\n", strings.Join(cmd, " "))
		r.Sink.Unlock()
	}

	var spool spoolWriter
	if opts.CollectOutput || opts.Silent {
		f, err := os.CreateTemp("", "pake-subprocess-*.out")
		if err != nil {
			return nil, fmt.Errorf("subprocess: spool file: %w", err)
		}
		defer os.Remove(f.Name())
		defer f.Close()
		spool = &fileSpool{f: f}
	} else {
		spool = &sinkSpool{sink: r.Sink}
	}

	c := exec.CommandContext(ctx, cmd[0], cmd[1:]...)
	if opts.Dir != "" {
		c.Dir = opts.Dir
	}
	c.Stdout = spool
	c.Stderr = spool
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	site := callSite(1)

	err := c.Run()

	output := spool.Bytes()
	if sp, ok := spool.(*fileSpool); ok && !opts.Silent {
		if opts.CollectOutput {
			r.Sink.Lock()
			copyChunked(r.Sink, sp)
			r.Sink.Unlock()
		}
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("subprocess: failed to start %v: %w", cmd, err)
		}
	}

	if exitCode != 0 && !opts.IgnoreErrors {
		return nil, &pakeerr.SubprocessFailure{
			Task:     r.TaskName,
			Site:     site,
			Command:  append([]string{}, cmd...),
			ExitCode: exitCode,
			Output:   output,
		}
	}

	return &Result{ExitCode: exitCode, Output: output}, nil
}

// CheckCall runs cmd and returns only the exit code; a non-zero exit is
// never an error here (the name mirrors the "check" variants' meaning in
// the task-context facade: the caller inspects the code itself).
func (r *Runner) CheckCall(ctx context.Context, cmd []string, opts Options) (int, error) {
	opts.IgnoreErrors = true
	res, err := r.Call(ctx, cmd, opts)
	if err != nil {
		return 0, err
	}
	return res.ExitCode, nil
}

// CheckOutput runs cmd and returns its captured bytes. Output never
// streams to the sink here regardless of opts.CollectOutput — the caller
// asked for the bytes directly, not a relay.
func (r *Runner) CheckOutput(ctx context.Context, cmd []string, opts Options) ([]byte, error) {
	opts.Silent = true
	opts.CollectOutput = true
	res, err := r.Call(ctx, cmd, opts)
	if err != nil {
		if failure, ok := err.(*pakeerr.SubprocessFailure); ok {
			return failure.Output, err
		}
		return nil, err
	}
	return res.Output, nil
}

// spoolWriter is satisfied by both spool strategies: stream-straight-
// through or buffer-to-temp-file.
type spoolWriter interface {
	io.Writer
	Bytes() []byte
}

// sinkSpool writes straight through to the task sink as bytes arrive and
// also mirrors them into an in-memory buffer so Bytes() still works for
// failure reporting.
type sinkSpool struct {
	sink Sink
	buf  bytes.Buffer
	mu   sync.Mutex
}

func (s *sinkSpool) Write(p []byte) (int, error) {
	s.mu.Lock()
	s.buf.Write(p)
	s.mu.Unlock()
	s.sink.Lock()
	defer s.sink.Unlock()
	return s.sink.Write(p)
}

func (s *sinkSpool) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte{}, s.buf.Bytes()...)
}

// fileSpool buffers process output into a temp file while the process
// runs, so the caller's sink lock is only held for the final, bounded-chunk
// copy rather than for the process's entire runtime.
type fileSpool struct {
	f *os.File
}

func (s *fileSpool) Write(p []byte) (int, error) { return s.f.Write(p) }

func (s *fileSpool) Bytes() []byte {
	data, _ := os.ReadFile(s.f.Name())
	return data
}

const copyChunkSize = 32 * 1024

func copyChunked(dst io.Writer, src *fileSpool) {
	f, err := os.Open(src.f.Name())
	if err != nil {
		return
	}
	defer f.Close()
	buf := make([]byte, copyChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			dst.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// callSite captures the file/line/function of the caller skip frames above
// this function, for attaching to a failure report.
func callSite(skip int) pakeerr.CallSite {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return pakeerr.CallSite{File: "unknown", Function: "unknown"}
	}
	fn := runtime.FuncForPC(pc)
	name := "unknown"
	if fn != nil {
		name = fn.Name()
	}
	return pakeerr.CallSite{File: file, Line: line, Function: name}
}
