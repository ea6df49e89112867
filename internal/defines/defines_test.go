package defines

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestParseKeyValue_BareKeyIsTrue(t *testing.T) {
	key, val, err := ParseKeyValue("VERBOSE")
	require.NoError(t, err)
	assert.Equal(t, "VERBOSE", key)
	assert.True(t, val.RawEquals(cty.True))
}

func TestParseKeyValue_WithValue(t *testing.T) {
	key, val, err := ParseKeyValue("CC=gcc")
	require.NoError(t, err)
	assert.Equal(t, "CC", key)
	assert.True(t, val.RawEquals(cty.StringVal("gcc")))
}

func TestMap_FreezeRejectsMutation(t *testing.T) {
	m := New()
	m.Set("a", cty.StringVal("1"))
	m.Freeze()
	assert.Panics(t, func() { m.Set("b", cty.StringVal("2")) })
}

func TestExportsRoundTripViaCodec(t *testing.T) {
	ex := NewExports()
	ex.Export("CC", cty.StringVal("clang"))
	ex.Export("FLAGS", cty.ListVal([]cty.Value{cty.StringVal("-O2"), cty.StringVal("-g")}))

	data, err := EncodeExports(ex.Snapshot())
	require.NoError(t, err)

	decoded, err := DecodeExports(data)
	require.NoError(t, err)

	require.Contains(t, decoded, "CC")
	assert.True(t, decoded["CC"].RawEquals(cty.StringVal("clang")))
	require.Contains(t, decoded, "FLAGS")
	assert.True(t, decoded["FLAGS"].RawEquals(ex.Snapshot()["FLAGS"]))
}
