package app

import (
	"errors"
	"io"
)

// Config holds everything a run needs, translated from CLI flags (or from
// any other driver that wants to embed the core without going through a
// flag.FlagSet at all).
type Config struct {
	Tasks            []string
	DefineArgs       []string // raw "-D" operands, in order
	ReadStdinDefines bool
	Stdin            io.Reader
	Concurrency      int
	DryRun           bool
	Dir              string
	ListTasks        bool
	ListTasksDoc     bool
	SyncOutput       *bool
	LogFormat        string
	LogLevel         string
}

// NewConfig validates cfg and returns it, or an error describing the first
// violated invariant.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ListTasks && cfg.ListTasksDoc {
		return nil, errors.New("ListTasks and ListTasksDoc are mutually exclusive")
	}
	return &cfg, nil
}
