// Package subpake implements the sub-build runner: launching a nested
// instance of the orchestrator on another build script.
//
// A pake build file is ordinary compiled Go code rather than a text file an
// interpreter re-reads, so "launch a nested instance on another build
// script" is realized by re-executing the current binary (os.Executable())
// with a different target file/args — the running process already *is*
// the build script.
package subpake

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"

	"github.com/vk/pake/internal/defines"
	"github.com/vk/pake/internal/pakeerr"
	"github.com/zclconf/go-cty/cty"
)

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

// DepthEnv is the environment variable carrying the current sub-build
// depth, visible to the child via its own environment (inherited) plus one
// increment applied before exec.
const DepthEnv = "PAKE_DEPTH"

// Sink mirrors the subprocess package's minimal output surface.
type Sink interface {
	io.Writer
	Lock()
	Unlock()
}

// Runner launches recursive build invocations on behalf of one task.
type Runner struct {
	TaskName string
	Sink     Sink
	// Executable overrides os.Executable, for tests.
	Executable func() (string, error)
}

// New returns a Runner attributing failures to taskName and relaying
// banners/output through sink.
func New(taskName string, sink Sink) *Runner {
	return &Runner{TaskName: taskName, Sink: sink, Executable: os.Executable}
}

// Options controls one sub-build invocation.
type Options struct {
	// File is the target build file/directory, passed through as -f.
	File string
	// Args are additional "-D KEY=VALUE" style overrides appended after
	// the propagated exports, so they win on key collision.
	Args []string
	// Exports propagates the parent's exported defines to the child via
	// its stdin, as a cty/json-encoded map.
	Exports map[string]cty.Value
	// CollectOutput spools the child's combined output and relays it under
	// the sink's lock only after the child exits; otherwise it streams.
	CollectOutput bool
	// Dir overrides the child's working directory.
	Dir string
	// SyncOutput, when set, is passed to the child as --sync-output. When
	// nil, no flag is passed and the child resolves its own policy (from
	// PAKE_SYNC_OUTPUT in the inherited environment, else enabled);
	// taskctx.Context.Subpake fills it from the calling task's policy.
	SyncOutput *bool
}

func currentDepth() int {
	d, err := strconv.Atoi(os.Getenv(DepthEnv))
	if err != nil {
		return 0
	}
	return d
}

// Run launches the nested build and waits for it to finish.
func (r *Runner) Run(ctx context.Context, opts Options) error {
	exePath, err := r.Executable()
	if err != nil {
		return fmt.Errorf("subpake: locate current executable: %w", err)
	}

	depth := currentDepth() + 1

	args := []string{}
	if opts.File != "" {
		args = append(args, "-f", opts.File)
	}
	if opts.SyncOutput != nil {
		args = append(args, "--sync-output", strconv.FormatBool(*opts.SyncOutput))
	}
	if len(opts.Exports) > 0 {
		args = append(args, "--stdin-defines")
	}
	args = append(args, opts.Args...)

	cmd := exec.CommandContext(ctx, exePath, args...)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), DepthEnv+"="+strconv.Itoa(depth))

	if len(opts.Exports) > 0 {
		payload, err := defines.EncodeExports(opts.Exports)
		if err != nil {
			return fmt.Errorf("subpake: encode exports: %w", err)
		}
		cmd.Stdin = bytes.NewReader(payload)
	}

	r.Sink.Lock()
	fmt.Fprintf(r.Sink, "*** enter subpake[%d]:\n", depth)
	r.Sink.Unlock()

	var spool bytes.Buffer
	var out io.Writer
	if opts.CollectOutput {
		out = &spool
	} else {
		out = lockedSink{r.Sink}
	}
	cmd.Stdout = out
	cmd.Stderr = out

	runErr := cmd.Run()

	if opts.CollectOutput {
		r.Sink.Lock()
		r.Sink.Write(spool.Bytes())
		r.Sink.Unlock()
	}

	r.Sink.Lock()
	fmt.Fprintf(r.Sink, "*** exit subpake[%d]:\n", depth)
	r.Sink.Unlock()

	if runErr != nil {
		exitCode := 1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return fmt.Errorf("subpake: failed to start sub-build: %w", runErr)
		}
		return &pakeerr.SubBuildFailure{
			Task:     r.TaskName,
			Site:     callSite(1),
			Command:  append([]string{exePath}, args...),
			ExitCode: exitCode,
			Output:   spool.Bytes(),
		}
	}
	return nil
}

// lockedSink adapts Sink to io.Writer with per-write locking, used when
// streaming a child's output directly instead of spooling it.
type lockedSink struct{ s Sink }

func (l lockedSink) Write(p []byte) (int, error) {
	l.s.Lock()
	defer l.s.Unlock()
	return l.s.Write(p)
}
