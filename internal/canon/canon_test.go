package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalIsKeyOrderIndependent(t *testing.T) {
	a := map[string]any{"b": 2, "a": 1, "nested": map[string]any{"y": true, "x": "v"}}
	b := map[string]any{"nested": map[string]any{"x": "v", "y": true}, "a": 1, "b": 2}

	ja, err := Marshal(a)
	require.NoError(t, err)
	jb, err := Marshal(b)
	require.NoError(t, err)

	assert.Equal(t, string(ja), string(jb))
}

func TestHashStableAcrossJSONRoundTrip(t *testing.T) {
	doc := map[string]any{
		"kind": "Deployment",
		"spec": map[string]any{"replicas": 3},
	}
	h1, err := Hash(doc)
	require.NoError(t, err)
	h2, err := Hash(doc)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, h1)

	other, err := Hash(map[string]any{"kind": "Deployment", "spec": map[string]any{"replicas": 4}})
	require.NoError(t, err)
	assert.NotEqual(t, h1, other)
}
