package modelcfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_RecursivePreservesSiblings(t *testing.T) {
	t.Parallel()

	base := Document{"a": map[string]any{"b": 0.0, "c": 2.0}}
	override := Document{"a": map[string]any{"b": 1.0}}

	merged := Merge(base, override)

	got, ok := merged.Lookup("a", "b")
	require.True(t, ok)
	assert.Equal(t, 1.0, got)

	got, ok = merged.Lookup("a", "c")
	require.True(t, ok)
	assert.Equal(t, 2.0, got, "untouched sibling key must survive the merge")
}

func TestMerge_ScalarAndSequenceReplace(t *testing.T) {
	t.Parallel()

	base := Document{"lr": 0.1, "layers": []any{64.0, 64.0}}
	override := Document{"lr": 0.2, "layers": []any{128.0}}

	merged := Merge(base, override)

	lr, _ := merged.Lookup("lr")
	assert.Equal(t, 0.2, lr)
	layers, _ := merged.Lookup("layers")
	assert.Equal(t, []any{128.0}, layers, "sequences replace, they do not concatenate")
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	t.Parallel()

	base := Document{"a": map[string]any{"b": 0.0}}
	override := Document{"a": map[string]any{"b": 1.0}}

	merged := Merge(base, override)
	merged.SetPath(99.0, "a", "b")

	got, _ := base.Lookup("a", "b")
	assert.Equal(t, 0.0, got, "base must stay untouched after merging and mutating the result")
	got, _ = override.Lookup("a", "b")
	assert.Equal(t, 1.0, got)
}

func TestCopy_IsolatesNestedValues(t *testing.T) {
	t.Parallel()

	orig := Document{
		"name": "muzero",
		"args": map[string]any{"checkpoint": "out", "load_folder_file": []any{"out", "best.pth.tar"}},
	}

	cp := orig.Copy()
	cp.SetPath("elsewhere", "args", "checkpoint")

	got, _ := orig.StringAt("args", "checkpoint")
	assert.Equal(t, "out", got)
}

func TestSetPath_CreatesIntermediateMaps(t *testing.T) {
	t.Parallel()

	doc := Document{}
	doc.SetPath("ckpt/run0", "args", "checkpoint")

	got, ok := doc.StringAt("args", "checkpoint")
	require.True(t, ok)
	assert.Equal(t, "ckpt/run0", got)
}

func TestStringSliceAt_AcceptsJSONArrays(t *testing.T) {
	t.Parallel()

	doc := Document{"args": map[string]any{"load_folder_file": []any{"out", "best.pth.tar"}}}

	pair, ok := doc.StringSliceAt("args", "load_folder_file")
	require.True(t, ok)
	assert.Equal(t, []string{"out", "best.pth.tar"}, pair)
}

func TestLoadSave_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"muzero","args":{"lr":0.1}}`), 0o644))

	doc, err := Load(path)
	require.NoError(t, err)

	name, _ := doc.StringAt("name")
	assert.Equal(t, "muzero", name)

	out := filepath.Join(t.TempDir(), "saved.json")
	require.NoError(t, doc.Save(out))

	reloaded, err := Load(out)
	require.NoError(t, err)
	assert.Equal(t, doc, reloaded)
}

func TestLoad_MissingFileFails(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}
