package app

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pake/internal/defines"
	"github.com/vk/pake/internal/pakeerr"
	"github.com/vk/pake/internal/task"
	"github.com/vk/pake/internal/taskctx"
	"github.com/zclconf/go-cty/cty"
)

func TestApp_ListTasksPrintsDoc(t *testing.T) {
	reg := task.New()
	require.NoError(t, reg.Add(&task.Task{Name: "build", Doc: "compiles the binary"}))

	var out bytes.Buffer
	a, err := NewApp(&out, &Config{ListTasksDoc: true}, reg)
	require.NoError(t, err)

	code := a.Run(context.Background())
	assert.Equal(t, int(pakeerr.CodeOK), code)
	assert.Contains(t, out.String(), "build")
	assert.Contains(t, out.String(), "compiles the binary")
}

func TestApp_NoTasksDefined(t *testing.T) {
	reg := task.New()
	var out bytes.Buffer
	a, err := NewApp(&out, &Config{}, reg)
	require.NoError(t, err)

	code := a.Run(context.Background())
	assert.Equal(t, int(pakeerr.CodeNoTasksDefined), code)
}

func TestApp_RunExecutesAndReportsFailure(t *testing.T) {
	reg := task.New()
	require.NoError(t, reg.Add(&task.Task{
		Name: "broken",
		Body: func(ctx *taskctx.Context) error { return assertErr }},
	))

	var out bytes.Buffer
	a, err := NewApp(&out, &Config{Tasks: []string{"broken"}, Concurrency: 1}, reg)
	require.NoError(t, err)

	code := a.Run(context.Background())
	assert.Equal(t, int(pakeerr.CodeUnhandledException), code)
	assert.Contains(t, out.String(), `Task "broken" failed`)
}

func TestApp_DefinesMergesStdinThenDOverrides(t *testing.T) {
	reg := task.New()
	var out bytes.Buffer
	a, err := NewApp(&out, &Config{
		ReadStdinDefines: true,
		Stdin:            strings.NewReader(`{NAME = "from-stdin", DEBUG = false}`),
		DefineArgs:       []string{"NAME=from-flag"},
	}, reg)
	require.NoError(t, err)

	snap := a.Defines().Snapshot()
	name, ok := snap["NAME"]
	require.True(t, ok)
	assert.Equal(t, "from-flag", name.AsString())
}

// TestApp_StdinDefinesAcceptsPropagatedExportWireFormat exercises the exact
// path a sub-build child takes: stdin carries the cty/json payload
// subpake's Run encodes (not an HCL literal), and a task reads the value
// back out via GetDefine — round-tripping end to end rather than only
// through the codec's own unit test.
func TestApp_StdinDefinesAcceptsPropagatedExportWireFormat(t *testing.T) {
	payload, err := defines.EncodeExports(map[string]cty.Value{"CC": cty.StringVal("gcc")})
	require.NoError(t, err)

	reg := task.New()
	var seen string
	require.NoError(t, reg.Add(&task.Task{
		Name: "build",
		Body: func(ctx *taskctx.Context) error {
			val, ok := ctx.GetDefine("CC")
			require.True(t, ok)
			seen = val.AsString()
			return nil
		},
	}))

	var out bytes.Buffer
	a, err := NewApp(&out, &Config{
		ReadStdinDefines: true,
		Stdin:            bytes.NewReader(payload),
		Tasks:            []string{"build"},
		Concurrency:      1,
	}, reg)
	require.NoError(t, err)

	code := a.Run(context.Background())
	assert.Equal(t, int(pakeerr.CodeOK), code)
	assert.Equal(t, "gcc", seen)
}

var assertErr = errBroken{}

type errBroken struct{}

func (errBroken) Error() string { return "broken" }
