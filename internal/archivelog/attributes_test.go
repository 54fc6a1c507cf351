package archivelog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributesPreserveOrderAndUnknownValues(t *testing.T) {
	input := `{"zeta":"last-alpha","alpha":1,"n":null,"t":true,"f":1.5,"obj":{"k":[1,"two",{"z":null}],"e":{}},"arr":[]}`

	attrs := NewAttributes()
	require.NoError(t, attrs.UnmarshalJSON([]byte(input)))
	assert.Equal(t, []string{"zeta", "alpha", "n", "t", "f", "obj", "arr"}, attrs.Keys())

	obj, ok := attrs.Get("obj")
	require.True(t, ok)
	assert.Equal(t, KindRaw, obj.Kind())

	out, err := attrs.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, input, string(out))
}

func TestAttributesSetKeepsPosition(t *testing.T) {
	attrs := NewAttributes()
	attrs.Set("a", String("1"))
	attrs.Set("b", String("2"))
	attrs.Set("a", String("3"))

	assert.Equal(t, []string{"a", "b"}, attrs.Keys())
	v, _ := attrs.Get("a")
	assert.Equal(t, "3", v.String())

	attrs.Delete("a")
	assert.Equal(t, []string{"b"}, attrs.Keys())
	attrs.Delete("missing")
	assert.Equal(t, 1, attrs.Len())
}

func TestAttributesUnmarshalRejects(t *testing.T) {
	for _, input := range []string{``, `nope`, `"string"`, `[1]`, `{"a":}`, `{"a":1`} {
		err := NewAttributes().UnmarshalJSON([]byte(input))
		assert.ErrorIs(t, err, ErrMalformed, input)
	}
}

func TestAttributesEscapedStrings(t *testing.T) {
	attrs := NewAttributes()
	attrs.Set(KeyDescription, String("line one\nline \"two\""))

	out, err := attrs.MarshalJSON()
	require.NoError(t, err)

	parsed := NewAttributes()
	require.NoError(t, parsed.UnmarshalJSON(out))
	assert.True(t, attrs.Equal(parsed))
}

func TestValueConversions(t *testing.T) {
	n, ok := String("42").Int64()
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	_, ok = String("abc").Int64()
	assert.False(t, ok)

	f, ok := Number("1.9").Int64()
	assert.True(t, ok)
	assert.Equal(t, int64(1), f)

	assert.True(t, String("1").Truthy())
	assert.False(t, String("0").Truthy())
	assert.False(t, String("").Truthy())
	assert.False(t, Null().Truthy())
	assert.True(t, Bool(true).Truthy())

	assert.Equal(t, "", Null().String())
	assert.Equal(t, "false", Bool(false).String())
	assert.Equal(t, "7", Int(7).String())
}

func TestAttributesCloneIsIndependent(t *testing.T) {
	a := NewAttributes()
	a.Set("k", String("v"))
	c := a.Clone()
	c.Set("k", String("changed"))

	v, _ := a.Get("k")
	assert.Equal(t, "v", v.String())
	assert.False(t, a.Equal(c))
}
