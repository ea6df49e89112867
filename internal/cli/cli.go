// Package cli implements the reference flag-parsing driver: the external
// interface surface the core itself does not need to implement. Grounded
// on specialistvlad-burstgridgo's internal/cli/cli.go: a single flag.FlagSet
// with a custom Usage func and an ExitError carrying the process exit code
// a parse failure should produce.
package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ExitError is a parse-time error that already knows which process exit
// code it should produce.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

// Config is everything the driver needs, resolved from argv.
type Config struct {
	Tasks        []string
	Defines      []string // raw "KEY=VALUE" or bare "KEY" operands, in -D order
	StdinDefines bool
	Concurrency  int
	DryRun       bool
	Dir          string
	ListTasks    bool
	ListTasksDoc bool
	SyncOutput   *bool // nil means "unspecified, fall back to PAKE_SYNC_OUTPUT"
	Files        []string
}

// stringList accumulates repeatable flag occurrences in order.
type stringList struct{ values []string }

func (s *stringList) String() string     { return strings.Join(s.values, ",") }
func (s *stringList) Set(v string) error { s.values = append(s.values, v); return nil }

// Parse processes argv into a Config. The second return value reports
// whether the program should exit cleanly without running anything (e.g.
// -h was given); the third is a parse error, possibly an *ExitError.
func Parse(args []string, output io.Writer) (*Config, bool, error) {
	flagSet := flag.NewFlagSet("pake", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
pake - a make-style build orchestrator driven by a Go program, not a
declarative build file.

Usage:
  pake [options] [TASK ...]

Arguments:
  TASK
    Zero or more task names to run. With none given, the build file's
    configured default task set runs instead.

Options:
`)
		flagSet.PrintDefaults()
	}

	var defines stringList
	flagSet.Var(&defines, "D", "define KEY=VALUE (repeatable); bare KEY means true")
	stdinDefines := flagSet.Bool("stdin-defines", false, "read a literal mapping from stdin and merge into defines")
	concurrency := flagSet.Int("j", 1, "concurrency bound")
	dryRun := flagSet.Bool("n", false, "dry run: list the tasks that would execute, in order")
	dir := flagSet.String("C", "", "change to DIR before discovering/running a build file")
	listTasks := flagSet.Bool("t", false, "list all task names")
	listTasksDoc := flagSet.Bool("ti", false, "list all task names with their documentation")
	syncOutput := flagSet.String("sync-output", "", "override output synchronization: true, false, 1, or 0")
	var files stringList
	flagSet.Var(&files, "f", "run this build-file executable instead of this one (repeatable, runs each in order)")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if *concurrency < 1 {
		return nil, false, &ExitError{Code: 2, Message: "-j must be >= 1"}
	}
	if *listTasks && *listTasksDoc {
		return nil, false, &ExitError{Code: 2, Message: "-t and -ti are mutually exclusive"}
	}

	cfg := &Config{
		Tasks:        flagSet.Args(),
		Defines:      defines.values,
		StdinDefines: *stdinDefines,
		Concurrency:  *concurrency,
		DryRun:       *dryRun,
		Dir:          *dir,
		ListTasks:    *listTasks,
		ListTasksDoc: *listTasksDoc,
		Files:        files.values,
	}

	if *syncOutput != "" {
		parsed, err := parseBoolish(*syncOutput)
		if err != nil {
			return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("invalid -sync-output %q: %v", *syncOutput, err)}
		}
		cfg.SyncOutput = &parsed
	} else if env := os.Getenv("PAKE_SYNC_OUTPUT"); env != "" {
		parsed, err := parseBoolish(env)
		if err == nil {
			cfg.SyncOutput = &parsed
		}
	}

	return cfg, false, nil
}

// StripFileFlags removes every "-f"/"--f" occurrence (and its value) from
// args, leaving the rest in order. A build file invoked via -f does not
// accept -f itself, so it must not be forwarded when re-running one.
func StripFileFlags(args []string) []string {
	out := make([]string, 0, len(args))
	skipNext := false
	for _, a := range args {
		if skipNext {
			skipNext = false
			continue
		}
		switch {
		case a == "-f" || a == "--f":
			skipNext = true
		case strings.HasPrefix(a, "-f=") || strings.HasPrefix(a, "--f="):
			// value attached, nothing more to skip
		default:
			out = append(out, a)
		}
	}
	return out
}

func parseBoolish(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return strconv.ParseBool(s)
	}
}
