package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_EmbeddedDefault(t *testing.T) {
	def, err := loadGameDefinition(testConfig(), "default")
	require.NoError(t, err)

	assert.NotEmpty(t, def.Rounds)
	for _, round := range def.Rounds {
		assert.NotEmpty(t, round.Questions)
	}
}

func TestStore_GamesDirOverrides(t *testing.T) {
	cfg := testConfig()
	cfg.gamesDir = t.TempDir()

	doc := []byte(`{"title":"Custom","rounds":[{"title":"R1","questions":[{"type":"text","question":"?","answer":"a"}]}]}`)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.gamesDir, "custom.json"), doc, 0o644))

	def, err := loadGameDefinition(cfg, "custom")
	require.NoError(t, err)
	assert.Equal(t, "Custom", def.Title)
	assert.Equal(t, "custom", def.ID, "missing id falls back to the requested one")

	// The embedded default stays reachable even with a games directory set.
	_, err = loadGameDefinition(cfg, "default")
	assert.NoError(t, err)
}

func TestStore_UnknownDefinition(t *testing.T) {
	cfg := testConfig()
	cfg.gamesDir = t.TempDir()

	_, err := loadGameDefinition(cfg, "missing")
	assert.ErrorIs(t, err, errDefinitionNotFound)

	_, err = loadGameDefinition(testConfig(), "missing")
	assert.ErrorIs(t, err, errDefinitionNotFound)
}

func TestStore_PathTraversalConfined(t *testing.T) {
	cfg := testConfig()
	cfg.gamesDir = t.TempDir()

	_, err := loadGameDefinition(cfg, "../../../etc/passwd")
	assert.Error(t, err)
}
