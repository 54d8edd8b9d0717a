package bindings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollout-k8s/rolloutctl/internal/release"
)

func TestMergeLaterSetsWin(t *testing.T) {
	merged := Merge(
		release.BindingSet{"a": "base", "b": "base"},
		release.BindingSet{"b": "file"},
		nil,
		release.BindingSet{"b": "inline", "c": "inline"},
	)
	assert.Equal(t, release.BindingSet{"a": "base", "b": "inline", "c": "inline"}, merged)
}

func TestParseInline(t *testing.T) {
	got, err := ParseInline("replicas=3, logLevel=debug ,flag=a=b")
	require.NoError(t, err)
	assert.Equal(t, release.BindingSet{
		"replicas": "3",
		"logLevel": "debug",
		"flag":     "a=b",
	}, got)

	got, err = ParseInline("  ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseInlineErrors(t *testing.T) {
	_, err := ParseInline("novalue")
	assert.ErrorIs(t, err, release.ErrValidation)

	_, err = ParseInline("=3")
	assert.ErrorIs(t, err, release.ErrValidation)
}

func TestLoadVarFileYAMLKeepsTypes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vars.yaml")
	require.NoError(t, os.WriteFile(path, []byte("replicas: 3\ndebug: true\nname: web\n"), 0o644))

	got, err := LoadVarFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, got["replicas"])
	assert.Equal(t, true, got["debug"])
	assert.Equal(t, "web", got["name"])
}

func TestLoadVarFileEnvIsTextual(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vars.env")
	require.NoError(t, os.WriteFile(path, []byte("REPLICAS=3\nNAME=web\n"), 0o644))

	got, err := LoadVarFile(path)
	require.NoError(t, err)
	assert.Equal(t, "3", got["REPLICAS"])
	assert.Equal(t, "web", got["NAME"])
}

func TestLoadVarFilesMergesInOrder(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.yaml")
	second := filepath.Join(dir, "b.yaml")
	require.NoError(t, os.WriteFile(first, []byte("x: 1\ny: 1\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("y: 2\n"), 0o644))

	got, err := LoadVarFiles([]string{first, "", second})
	require.NoError(t, err)
	assert.Equal(t, 1, got["x"])
	assert.Equal(t, 2, got["y"])

	_, err = LoadVarFiles([]string{filepath.Join(dir, "missing.yaml")})
	assert.Error(t, err)
}
