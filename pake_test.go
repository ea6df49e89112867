package pake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vk/pake/internal/taskctx"
)

func TestRegister_DuplicateNamePanics(t *testing.T) {
	Register(Task{Name: "pake_test_dup", Do: func(ctx *taskctx.Context) error { return nil }})
	assert.Panics(t, func() {
		Register(Task{Name: "pake_test_dup", Do: func(ctx *taskctx.Context) error { return nil }})
	})
}

func TestRegister_OutputsWithoutInputsPanics(t *testing.T) {
	assert.Panics(t, func() {
		Register(Task{Name: "pake_test_bad_io", Outputs: []string{"out.txt"}})
	})
}

func TestDefaults_SetsDefaultTaskSet(t *testing.T) {
	Register(Task{Name: "pake_test_default_target", Do: func(ctx *taskctx.Context) error { return nil }})
	Defaults("pake_test_default_target")
	assert.Equal(t, []string{"pake_test_default_target"}, defaultRegistry.Defaults())
}

func TestRunFiles_StopsAtFirstNonZeroExit(t *testing.T) {
	code := runFiles([]string{"true", "false", "true"}, nil)
	assert.Equal(t, 1, code)
}

func TestRunFiles_AllSucceedReturnsZero(t *testing.T) {
	code := runFiles([]string{"true", "true"}, nil)
	assert.Equal(t, 0, code)
}
