// Package app contains the core application logic: building the defines
// map from stdin and -D operands, wiring a logger into the context, and
// driving the scheduler. Decoupled from any specific entrypoint the way
// specialistvlad-burstgridgo's internal/app separates App from cmd/cli.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vk/pake/internal/ctxlog"
	"github.com/vk/pake/internal/defines"
	"github.com/vk/pake/internal/literal"
	"github.com/vk/pake/internal/pakeerr"
	"github.com/vk/pake/internal/scheduler"
	"github.com/vk/pake/internal/task"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle for one build-file invocation.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *task.Registry
	config   *Config
	defines  *defines.Map
	exports  *defines.Exports
}

// NewApp validates cfg, builds the process-wide defines map, and returns a
// ready-to-run App bound to reg (the build file's task registry).
func NewApp(outW io.Writer, cfg *Config, reg *task.Registry) (*App, error) {
	config, err := NewConfig(*cfg)
	if err != nil {
		return nil, fmt.Errorf("app: invalid configuration: %w", err)
	}

	logger := newLogger(config.LogLevel, config.LogFormat, os.Stderr)
	logger.Debug("logger configured")

	defMap, err := buildDefines(config)
	if err != nil {
		return nil, fmt.Errorf("app: building defines: %w", err)
	}
	defMap.Freeze()

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		config:   config,
		defines:  defMap,
		exports:  defines.NewExports(),
	}, nil
}

// Defines returns the frozen defines map, which the scheduler hands to
// every task and a task body reads via taskctx.Context.GetDefine.
func (a *App) Defines() *defines.Map { return a.defines }

// Exports returns the live export set tasks mutate via Export/Unexport and
// that propagates to every sub-build they launch.
func (a *App) Exports() *defines.Exports { return a.exports }

// buildDefines merges the stdin literal mapping (if requested) and then
// the repeatable -D operands: stdin first, -D overrides second.
func buildDefines(cfg *Config) (*defines.Map, error) {
	m := defines.New()

	if cfg.ReadStdinDefines {
		stdin := cfg.Stdin
		if stdin == nil {
			stdin = os.Stdin
		}
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin defines: %w", err)
		}
		// A parent pake process propagating exports to this one (subpake's
		// --stdin-defines) writes the cty/json export wire format, not an
		// HCL literal a human would type on stdin. Try that decoding first;
		// anything a human hands to --stdin-defines directly fails it
		// (it isn't a JSON array of {key,type,value} entries) and falls
		// through to the literal-expression parser below.
		if decoded, decErr := defines.DecodeExports(raw); decErr == nil && len(raw) > 0 {
			m.Merge(decoded)
		} else {
			parsed, err := literal.Parse(string(raw))
			if err != nil {
				return nil, fmt.Errorf("parsing stdin defines: %w", err)
			}
			if !parsed.Type().IsObjectType() && !parsed.Type().IsMapType() {
				return nil, fmt.Errorf("stdin defines: expected an object/map literal, got %s", parsed.Type().FriendlyName())
			}
			if !parsed.IsNull() {
				m.Merge(parsed.AsValueMap())
			}
		}
	}

	for _, operand := range cfg.DefineArgs {
		key, val, err := defines.ParseKeyValue(operand)
		if err != nil {
			return nil, err
		}
		m.Set(key, val)
	}

	return m, nil
}

// Run executes the configured task set (or lists tasks, per -t/-ti/-n) and
// returns the process exit code per the stable contract.
func (a *App) Run(ctx context.Context) int {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	if a.config.Dir != "" {
		if err := os.Chdir(a.config.Dir); err != nil {
			fmt.Fprintln(a.outW, err)
			return int(pakeerr.CodeBadArguments)
		}
	}

	if a.config.ListTasks || a.config.ListTasksDoc {
		a.listTasks()
		return int(pakeerr.CodeOK)
	}

	if len(a.registry.Names()) == 0 {
		fmt.Fprintln(a.outW, "no tasks defined")
		return int(pakeerr.CodeNoTasksDefined)
	}

	sync := true
	if a.config.SyncOutput != nil {
		sync = *a.config.SyncOutput
	}

	driver := scheduler.New(a.registry)
	result, err := driver.Run(ctx, a.config.Tasks, scheduler.Options{
		N:          a.config.Concurrency,
		SyncOutput: sync,
		DryRun:     a.config.DryRun,
		Stdout:     a.outW,
		Defines:    a.defines,
		Exports:    a.exports,
	})
	if err != nil {
		fmt.Fprintln(a.outW, err)
		return int(pakeerr.ExitCodeFor(err))
	}

	if a.config.DryRun {
		for _, name := range result.Order {
			fmt.Fprintln(a.outW, name)
		}
		return int(pakeerr.CodeOK)
	}

	if result.FirstFailure != "" {
		reportFailures(a.outW, result)
		return int(result.ExitCode())
	}

	return int(pakeerr.CodeOK)
}

func (a *App) listTasks() {
	for _, name := range a.registry.Names() {
		t, _ := a.registry.ByName(name)
		if a.config.ListTasksDoc {
			// Only tasks with a doc string are shown under -ti.
			if t.Doc == "" {
				continue
			}
			fmt.Fprintf(a.outW, "%s\n    %s\n", name, t.Doc)
			continue
		}
		fmt.Fprintln(a.outW, name)
	}
}

// reportFailures prints the aggregate failure report: for each failed
// task, a header naming it and the exception kind, plus the structured
// detail a SubprocessFailure/SubBuildFailure carries.
func reportFailures(w io.Writer, result *scheduler.Result) {
	for _, name := range result.Order {
		err, failed := result.Failures[name]
		if !failed {
			continue
		}
		fmt.Fprintf(w, "===== Task %q failed =====\n", name)
		switch e := err.(type) {
		case *pakeerr.SubprocessFailure:
			fmt.Fprintf(w, "subprocess failure at %s\ncommand: %v\nexit status: %d\n--- output ---\n%s\n--- end output ---\n",
				e.Site, e.Command, e.ExitCode, e.Output)
		case *pakeerr.SubBuildFailure:
			fmt.Fprintf(w, "sub-build failure at %s\ncommand: %v\nexit status: %d\n--- output ---\n%s\n--- end output ---\n",
				e.Site, e.Command, e.ExitCode, e.Output)
		case *pakeerr.Terminate:
			if e.ExitCode != 0 {
				fmt.Fprintf(w, "terminated with exit code %d\n", e.ExitCode)
			}
		default:
			fmt.Fprintf(w, "%v\n", err)
		}
	}
}
