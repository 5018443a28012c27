package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// GameConfig is a named collection of levels (a dataset) plus the default
// episode settings for sessions created from it.
type GameConfig struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Mode        Mode    `json:"mode" yaml:"mode"`
	MaxSteps    int     `json:"max_steps" yaml:"max_steps"`
	Levels      []Level `json:"levels" yaml:"levels"`
}

// Level is one stored board in XSB notation
type Level struct {
	ID     int      `json:"id" yaml:"id"`
	Title  string   `json:"title,omitempty" yaml:"title,omitempty"`
	Layout []string `json:"layout" yaml:"layout"`
}

// Level returns the level with the given id
func (c *GameConfig) Level(id int) (*Level, error) {
	for i := range c.Levels {
		if c.Levels[i].ID == id {
			return &c.Levels[i], nil
		}
	}
	return nil, fmt.Errorf("%w: level %d in %q", ErrLevelNotFound, id, c.Name)
}

// ValidateGameConfig validates a level collection for correctness and playability
func ValidateGameConfig(config *GameConfig) error {
	if config.Name == "" {
		return fmt.Errorf("config validation: name is required")
	}
	if config.Description == "" {
		return fmt.Errorf("config validation: description is required")
	}
	if config.Mode != Forward && config.Mode != Backward {
		return fmt.Errorf("config validation: unknown mode %d", config.Mode)
	}
	if config.MaxSteps < 1 || config.MaxSteps > MaxStepsLimit {
		return fmt.Errorf("config validation: max_steps must be between 1 and %d, got %d", MaxStepsLimit, config.MaxSteps)
	}
	if len(config.Levels) == 0 {
		return fmt.Errorf("config validation: at least one level is required")
	}

	seen := make(map[int]bool, len(config.Levels))
	for _, level := range config.Levels {
		if seen[level.ID] {
			return fmt.Errorf("config validation: duplicate level id %d", level.ID)
		}
		seen[level.ID] = true
		if err := validateLevel(level); err != nil {
			return fmt.Errorf("config validation: level %d: %w", level.ID, err)
		}
	}
	return nil
}

func validateLevel(level Level) error {
	if len(level.Layout) < MinGridSize || len(level.Layout) > MaxGridSize {
		return fmt.Errorf("layout must have between %d and %d rows, got %d", MinGridSize, MaxGridSize, len(level.Layout))
	}
	b, err := ParseBoard(level.Layout)
	if err != nil {
		return err
	}
	if b.Width() < MinGridSize || b.Width() > MaxGridSize {
		return fmt.Errorf("layout must have between %d and %d columns, got %d", MinGridSize, MaxGridSize, b.Width())
	}
	if _, err := b.FindPlayer(); err != nil {
		return err
	}
	if b.NumBoxes() == 0 {
		return fmt.Errorf("layout must contain at least one box")
	}
	if b.NumBoxes() != b.NumTargets() {
		return fmt.Errorf("layout has %d boxes but %d targets", b.NumBoxes(), b.NumTargets())
	}
	return nil
}

// ParseGameConfig decodes a collection. format is "json", "yaml" or "yml".
func ParseGameConfig(data []byte, format string) (*GameConfig, error) {
	var config GameConfig
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, err
		}
	case "json", "":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}
	if err := ValidateGameConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadGameConfig loads a level collection from a JSON or YAML file
func LoadGameConfig(filename string) (*GameConfig, error) {
	// Support CONFIG_DIR environment variable for alternative config directory
	configPath := filename
	if configDir := os.Getenv("CONFIG_DIR"); configDir != "" {
		if strings.HasPrefix(filename, "configs/") {
			configPath = filepath.Join(configDir, strings.TrimPrefix(filename, "configs/"))
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	return ParseGameConfig(data, filepath.Ext(configPath))
}

// MarshalYAML encodes the mode by name
func (m Mode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

// UnmarshalYAML accepts any spelling ParseMode accepts
func (m *Mode) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseMode(node.Value)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
