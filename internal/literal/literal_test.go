package literal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestParse_Scalars(t *testing.T) {
	cases := []struct {
		src  string
		want cty.Value
	}{
		{`"hello"`, cty.StringVal("hello")},
		{`42`, cty.NumberIntVal(42)},
		{`3.5`, cty.NumberFloatVal(3.5)},
		{`TRUE`, cty.True},
		{`False`, cty.False},
	}
	for _, tc := range cases {
		got, err := Parse(tc.src)
		require.NoError(t, err)
		assert.True(t, tc.want.RawEquals(got), "parsing %q", tc.src)
	}
}

func TestParse_Null(t *testing.T) {
	got, err := Parse("NuLL")
	require.NoError(t, err)
	assert.True(t, got.IsNull())
}

func TestParse_List(t *testing.T) {
	got, err := Parse(`["a", "b", 1]`)
	require.NoError(t, err)
	require.True(t, got.CanIterateElements())
	assert.Equal(t, 3, got.LengthInt())
}

func TestParse_Map(t *testing.T) {
	got, err := Parse(`{a = 1, b = "x"}`)
	require.NoError(t, err)
	assert.True(t, got.Type().IsObjectType())
}

func TestParse_RejectsVariableReference(t *testing.T) {
	_, err := Parse(`some_var`)
	assert.Error(t, err)
}

func TestParse_RejectsGarbage(t *testing.T) {
	_, err := Parse(`{{{`)
	assert.Error(t, err)
}
