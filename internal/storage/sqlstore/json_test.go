package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalJSON_RoundTrip(t *testing.T) {
	data, err := marshalJSON(map[string]any{"a": 1.0, "b": "two"})
	require.NoError(t, err)

	out, err := unmarshalJSON(data)
	require.NoError(t, err)
	assert.Equal(t, 1.0, out["a"])
	assert.Equal(t, "two", out["b"])
}

func TestUnmarshalJSON_EmptyInput(t *testing.T) {
	out, err := unmarshalJSON(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestUnmarshalJSONInto_EmptyInput(t *testing.T) {
	var v any
	require.NoError(t, unmarshalJSONInto(nil, &v))
	assert.Nil(t, v)
}
