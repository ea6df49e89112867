// Command pake is a reference build file: ordinary Go code that imports
// the root package, registers its tasks, and hands control to pake.Run.
// It doubles as this module's own build: fmt/vet/build/test tasks wired
// as ordinary dependencies of each other.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/vk/pake/internal/subprocess"
	"github.com/vk/pake/internal/taskctx"
	"github.com/vk/pake"
)

func init() {
	pake.Register(pake.Task{
		Name: "fmt",
		Doc:  "check that every .go file is gofmt-clean",
		Do: func(ctx *taskctx.Context) error {
			out, err := ctx.CheckOutput([]string{"gofmt", "-l", "."}, subprocess.Options{})
			if err != nil {
				return err
			}
			if len(out) > 0 {
				ctx.Printf("not gofmt-clean:\n%s", out)
			}
			return nil
		},
	})

	pake.Register(pake.Task{
		Name: "vet",
		Deps: []string{"fmt"},
		Doc:  "run go vet over the module",
		Do: func(ctx *taskctx.Context) error {
			_, err := ctx.CheckCall([]string{"go", "vet", "./..."}, subprocess.Options{})
			return err
		},
	})

	pake.Register(pake.Task{
		Name:    "build",
		Deps:    []string{"vet"},
		Inputs:  []string{"cmd/**/*.go", "internal/**/*.go", "pake.go", "go.mod"},
		Outputs: []string{"bin/pake"},
		Doc:     "build the pake binary",
		Do: func(ctx *taskctx.Context) error {
			_, err := ctx.CheckCall([]string{"go", "build", "-o", "bin/pake", "./cmd/pake"}, subprocess.Options{})
			return err
		},
	})

	pake.Register(pake.Task{
		Name: "test",
		Deps: []string{"vet"},
		Doc:  "run the test suite",
		Do: func(ctx *taskctx.Context) error {
			_, err := ctx.CheckCall([]string{"go", "test", "./..."}, subprocess.Options{})
			return err
		},
	})

	pake.Defaults("build", "test")
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "pake: %v\n", r)
			os.Exit(13)
		}
	}()
	os.Exit(pake.Run(context.Background(), pake.OptionsFromCLI()))
}
