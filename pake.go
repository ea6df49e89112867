// Package pake is the public API a build file imports: it is "ordinary
// program code" rather than a declarative file a separate tool re-reads
// (per the system overview), so a build file registers its work by
// calling pake.Register from an init or its own main, then hands control
// to pake.Run.
package pake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/vk/pake/internal/app"
	"github.com/vk/pake/internal/cli"
	"github.com/vk/pake/internal/task"
	"github.com/vk/pake/internal/taskctx"
)

// Task is the declaration surface a build file writes directly.
type Task struct {
	Name string
	Deps []string
	// Inputs/Outputs are glob/literal/derived ("%"-substitution) patterns,
	// per the classifier's contract.
	Inputs  []string
	Outputs []string
	Doc     string
	Do      func(ctx *taskctx.Context) error
}

var defaultRegistry = task.New()

// Register adds t to the package-level default registry. Re-registering a
// name, or declaring outputs without inputs, panics at Register time, so a
// build file's init functions never need their own error handling for
// this.
func Register(t Task) {
	if err := defaultRegistry.Add(&task.Task{
		Name:         t.Name,
		Dependencies: t.Deps,
		Inputs:       t.Inputs,
		Outputs:      t.Outputs,
		Doc:          t.Doc,
		Body:         task.Body(t.Do),
	}); err != nil {
		// A name collision or an outputs-without-inputs declaration is a
		// programmer error in the build file itself: fail now rather than
		// defer a confusing failure to whichever task happens to run first.
		panic(err)
	}
}

// Defaults sets the task names that run when a build invocation requests
// none explicitly.
func Defaults(names ...string) {
	defaultRegistry.SetDefaults(names)
}

// Options configures a run against the default registry.
type Options struct {
	Tasks            []string
	DefineArgs       []string
	ReadStdinDefines bool
	Concurrency      int
	DryRun           bool
	Dir              string
	ListTasks        bool
	ListTasksDoc     bool
	SyncOutput       *bool
	LogFormat        string
	LogLevel         string
}

// OptionsFromCLI parses os.Args[1:] into Options using the reference flag
// surface (internal/cli), so a build file's main can stay a one-liner. On
// a parse error or -h it prints to os.Stderr and calls os.Exit directly,
// matching the exit-immediately contract a flag-parse failure implies.
func OptionsFromCLI() Options {
	cfg, shouldExit, err := cli.Parse(os.Args[1:], os.Stderr)
	if err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if shouldExit {
		os.Exit(0)
	}

	// -f names other build-file executables to run in the given order
	// instead of this process's own registered tasks, one child process
	// per file, stopping at the first non-zero exit. This process's own
	// registry is not consulted at all in that mode, matching how a -f
	// invocation bypasses auto-discovery entirely.
	if len(cfg.Files) > 0 {
		os.Exit(runFiles(cfg.Files, cli.StripFileFlags(os.Args[1:])))
	}

	return Options{
		Tasks:            cfg.Tasks,
		DefineArgs:       cfg.Defines,
		ReadStdinDefines: cfg.StdinDefines,
		Concurrency:      cfg.Concurrency,
		DryRun:           cfg.DryRun,
		Dir:              cfg.Dir,
		ListTasks:        cfg.ListTasks,
		ListTasksDoc:     cfg.ListTasksDoc,
		SyncOutput:       cfg.SyncOutput,
	}
}

// runFiles execs each of files in order, forwarding forwardArgs to every
// one of them, and stops at the first non-zero exit code rather than
// running the remaining files. Each file here is itself a compiled
// build-file binary rather than a script handed to an interpreter, since
// a build file in this model is ordinary compiled Go code rather than
// text a separate tool re-reads.
func runFiles(files, forwardArgs []string) int {
	for _, file := range files {
		cmd := exec.Command(file, forwardArgs...)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		err := cmd.Run()
		if err == nil {
			continue
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode()
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// Run executes opts against every task registered via Register and
// returns the process exit code defined by the stable contract. A build
// file's main is expected to be little more than
// os.Exit(pake.Run(context.Background(), pake.OptionsFromCLI())).
func Run(ctx context.Context, opts Options) int {
	a, err := app.NewApp(os.Stdout, &app.Config{
		Tasks:            opts.Tasks,
		DefineArgs:       opts.DefineArgs,
		ReadStdinDefines: opts.ReadStdinDefines,
		Stdin:            os.Stdin,
		Concurrency:      opts.Concurrency,
		DryRun:           opts.DryRun,
		Dir:              opts.Dir,
		ListTasks:        opts.ListTasks,
		ListTasksDoc:     opts.ListTasksDoc,
		SyncOutput:       opts.SyncOutput,
		LogFormat:        opts.LogFormat,
		LogLevel:         opts.LogLevel,
	}, defaultRegistry)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 13
	}
	return a.Run(ctx)
}
