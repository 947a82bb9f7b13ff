package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltins(t *testing.T) {
	drafts, err := Builtins()
	require.NoError(t, err)
	require.Len(t, drafts, 2)

	assert.Equal(t, "BeginRequest", drafts[0].Name)
	assert.Empty(t, drafts[0].Inputs)
	assert.Equal(t, []string{"data"}, drafts[0].Outputs)

	assert.Equal(t, "EndRequest", drafts[1].Name)
	assert.Equal(t, []string{"data"}, drafts[1].Inputs)
	assert.Empty(t, drafts[1].Outputs)
}

func TestLoadSeed(t *testing.T) {
	dir := t.TempDir()
	src := `
node "Uppercase" {
  inputs  = ["text"]
  outputs = ["text"]
  script  = <<-EOT
    function handle({ text }) {
      return { text: text.toUpperCase() };
    }
  EOT
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.hcl"), []byte(src), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("ignored"), 0o644))

	drafts, err := LoadSeed(dir, filepath.Join(dir, "does-not-exist"))
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "Uppercase", drafts[0].Name)
	assert.Contains(t, drafts[0].Script, "toUpperCase")
}

func TestLoadSeed_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`node "Dup" { inputs = ["a", "a"] }`), 0o644))

	_, err := LoadSeed(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSeedInternal_Idempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	builtins, err := Builtins()
	require.NoError(t, err)

	first, err := m.SeedInternal(ctx, builtins)
	require.NoError(t, err)
	second, err := m.SeedInternal(ctx, builtins)
	require.NoError(t, err)

	defs, err := m.List(ctx)
	require.NoError(t, err)
	assert.Len(t, defs, 2)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.True(t, second[i].IsInternal)
	}
}
