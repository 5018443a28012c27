package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *GameConfig {
	return &GameConfig{
		Name:        "test",
		Description: "Test levels",
		Mode:        Forward,
		MaxSteps:    50,
		Levels: []Level{
			{ID: 1, Title: "Two corridors", Layout: twoCorridors},
			{ID: 7, Layout: openRoom},
		},
	}
}

func TestValidateGameConfig(t *testing.T) {
	require.NoError(t, ValidateGameConfig(validConfig()))

	tests := []struct {
		name   string
		mutate func(c *GameConfig)
	}{
		{"missing name", func(c *GameConfig) { c.Name = "" }},
		{"missing description", func(c *GameConfig) { c.Description = "" }},
		{"bad mode", func(c *GameConfig) { c.Mode = Mode(9) }},
		{"zero max steps", func(c *GameConfig) { c.MaxSteps = 0 }},
		{"max steps too high", func(c *GameConfig) { c.MaxSteps = MaxStepsLimit + 1 }},
		{"no levels", func(c *GameConfig) { c.Levels = nil }},
		{"duplicate id", func(c *GameConfig) { c.Levels[1].ID = 1 }},
		{"too small", func(c *GameConfig) { c.Levels[0].Layout = []string{"#@#", "###"} }},
		{"bad char", func(c *GameConfig) { c.Levels[0].Layout = []string{"####", "#@x#", "####"} }},
		{"no player", func(c *GameConfig) { c.Levels[0].Layout = []string{"#####", "# $.#", "#####"} }},
		{"no boxes", func(c *GameConfig) { c.Levels[0].Layout = []string{"####", "#@ #", "####"} }},
		{"box target mismatch", func(c *GameConfig) { c.Levels[0].Layout = []string{"#####", "#@$$#", "#.  #", "#####"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			assert.Error(t, ValidateGameConfig(c))
		})
	}
}

func TestGameConfigLevel(t *testing.T) {
	c := validConfig()
	level, err := c.Level(7)
	require.NoError(t, err)
	assert.Equal(t, openRoom, level.Layout)

	_, err = c.Level(2)
	assert.Error(t, err)
}

func TestParseGameConfigFormats(t *testing.T) {
	jsonData := []byte(`{"name":"j","description":"d","mode":"backward","max_steps":5,
		"levels":[{"id":1,"layout":["#####","#@  #","# $ #","#  .#","#####"]}]}`)
	c, err := ParseGameConfig(jsonData, "json")
	require.NoError(t, err)
	assert.Equal(t, Backward, c.Mode)

	yamlData := []byte(`name: y
description: d
mode: pull
max_steps: 5
levels:
  - id: 3
    layout:
      - "#####"
      - "#@  #"
      - "# $ #"
      - "#  .#"
      - "#####"
`)
	c, err = ParseGameConfig(yamlData, ".yml")
	require.NoError(t, err)
	assert.Equal(t, Backward, c.Mode)
	assert.Equal(t, 3, c.Levels[0].ID)

	_, err = ParseGameConfig(jsonData, "toml")
	assert.Error(t, err)
	_, err = ParseGameConfig([]byte("{"), "json")
	assert.Error(t, err)
}

func TestLoadGameConfigUsesConfigDir(t *testing.T) {
	dir := t.TempDir()
	data, err := os.ReadFile(filepath.Join("..", "..", "configs", "microsokoban.json"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "micro.json"), data, 0644))

	t.Setenv("CONFIG_DIR", dir)
	c, err := LoadGameConfig("configs/micro.json")
	require.NoError(t, err)
	assert.Equal(t, "microsokoban", c.Name)

	_, err = LoadGameConfig("configs/missing.json")
	assert.Error(t, err)
}

func TestShippedConfigsAreValid(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("..", "..", "configs", "*"))
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	for _, path := range matches {
		c, err := LoadGameConfig(path)
		require.NoError(t, err, path)
		for _, level := range c.Levels {
			b, err := ParseBoard(level.Layout)
			require.NoError(t, err)
			env, err := NewEnvironment(Options{Mode: c.Mode, MaxSteps: c.MaxSteps}, NewStaticSource(b))
			require.NoError(t, err)
			_, err = env.Reset(t.Context())
			assert.NoError(t, err, "%s level %d", c.Name, level.ID)
		}
	}
}
