// Command analyze inspects level collections offline. It reports per-level
// macro-move counts, validates collection files and plays seeded random
// rollouts.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/macro-sokoban/game/config"
	"github.com/wricardo/macro-sokoban/game/engine"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "inspect macro-move Sokoban level collections",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config-dir",
				Value:   "configs",
				Usage:   "directory holding level collections",
				Sources: cli.EnvVars("CONFIG_DIR"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "levels",
				Usage:     "list levels with their forward and backward macro-move counts",
				ArgsUsage: "[config]",
				Action:    levelsAction,
			},
			{
				Name:      "validate",
				Usage:     "validate collection files (all files in --config-dir when none given)",
				ArgsUsage: "[files...]",
				Action:    validateAction,
			},
			{
				Name:  "rollout",
				Usage: "play a seeded random episode",
				Flags: append(levelFlags(),
					&cli.Int64Flag{Name: "seed", Value: 1, Usage: "random seed"},
					&cli.IntFlag{Name: "steps", Usage: "step limit (0 uses the collection's max_steps)"},
				),
				Action: rolloutAction,
			},
		},
	}
}

func levelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Value: config.DefaultConfigName, Usage: "collection name"},
		&cli.IntFlag{Name: "level", Value: 1, Usage: "level id"},
		&cli.StringFlag{Name: "mode", Usage: "forward or backward (default: the collection's mode)"},
	}
}

func output(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

// collectionLoader serves a single already-parsed collection
type collectionLoader struct {
	config *engine.GameConfig
}

func (l collectionLoader) LoadConfig(string) (*engine.GameConfig, error) {
	return l.config, nil
}

// macroCount resets a fresh environment on the level and counts its candidates
func macroCount(ctx context.Context, gc *engine.GameConfig, levelID int, mode engine.Mode) (int, error) {
	env, err := engine.EnvironmentFromLevel(ctx, collectionLoader{gc}, gc.Name, levelID, mode, gc.MaxSteps)
	if err != nil {
		return 0, err
	}
	states, err := env.ReachableStates()
	if err != nil {
		return 0, err
	}
	return len(states), nil
}

func levelsAction(ctx context.Context, cmd *cli.Command) error {
	manager, err := config.NewManager(cmd.String("config-dir"))
	if err != nil {
		return err
	}

	name := cmd.Args().First()
	if name == "" {
		name = config.DefaultConfigName
	}
	gc, err := manager.LoadConfig(name)
	if err != nil {
		return fmt.Errorf("load %q: %w", name, err)
	}

	w := output(cmd)
	fmt.Fprintf(w, "%s (%s, max_steps=%d): %s\n", gc.Name, gc.Mode, gc.MaxSteps, gc.Description)
	for _, level := range gc.Levels {
		b, err := engine.ParseBoard(level.Layout)
		if err != nil {
			fmt.Fprintf(w, "%-4d %-20s invalid: %v\n", level.ID, level.Title, err)
			continue
		}
		counts := make([]string, 0, 2)
		for _, mode := range []engine.Mode{engine.Forward, engine.Backward} {
			n, err := macroCount(ctx, gc, level.ID, mode)
			if err != nil {
				counts = append(counts, fmt.Sprintf("%s=-", mode))
				continue
			}
			counts = append(counts, fmt.Sprintf("%s=%d", mode, n))
		}
		fmt.Fprintf(w, "%-4d %-20s %dx%d boxes=%d %s\n",
			level.ID, level.Title, b.Width(), b.Height(), b.NumBoxes(), strings.Join(counts, " "))
	}
	return nil
}

// ValidationResult captures the outcome of validating a single file
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
}

// validateFile parses a collection and checks that every level offers at
// least one macro-move at reset in the collection's mode.
func validateFile(ctx context.Context, path string) ValidationResult {
	result := ValidationResult{File: filepath.Base(path), Valid: true}

	data, err := os.ReadFile(path)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to read file: %v", err))
		return result
	}

	gc, err := engine.ParseGameConfig(data, filepath.Ext(path))
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	for _, level := range gc.Levels {
		n, err := macroCount(ctx, gc, level.ID, gc.Mode)
		switch {
		case err != nil:
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("level %d: %v", level.ID, err))
		case n == 0:
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("level %d: no %s macro-moves at reset", level.ID, gc.Mode))
		}
	}
	return result
}

func validateAction(ctx context.Context, cmd *cli.Command) error {
	files := cmd.Args().Slice()
	if len(files) == 0 {
		dir := cmd.String("config-dir")
		for _, pattern := range []string{"*.json", "*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(dir, pattern))
			if err != nil {
				return err
			}
			files = append(files, matches...)
		}
		if len(files) == 0 {
			return fmt.Errorf("no collection files in %s", dir)
		}
	}

	w := output(cmd)
	failed := 0
	for _, file := range files {
		result := validateFile(ctx, file)
		if result.Valid {
			fmt.Fprintf(w, "✅ %s\n", result.File)
			continue
		}
		failed++
		fmt.Fprintf(w, "❌ %s\n", result.File)
		for _, msg := range result.Errors {
			fmt.Fprintf(w, "   - %s\n", msg)
		}
	}

	fmt.Fprintf(w, "\n%d/%d files valid\n", len(files)-failed, len(files))
	if failed > 0 {
		return fmt.Errorf("%d invalid collection file(s)", failed)
	}
	return nil
}

// openLevel builds an environment from the --config, --level and --mode flags
func openLevel(ctx context.Context, cmd *cli.Command, maxSteps int) (*engine.MacroEnvironment, *engine.GameConfig, error) {
	manager, err := config.NewManager(cmd.String("config-dir"))
	if err != nil {
		return nil, nil, err
	}
	name := cmd.String("config")
	gc, err := manager.LoadConfig(name)
	if err != nil {
		return nil, nil, fmt.Errorf("load %q: %w", name, err)
	}

	mode := gc.Mode
	if s := cmd.String("mode"); s != "" {
		if mode, err = engine.ParseMode(s); err != nil {
			return nil, nil, err
		}
	}
	if maxSteps <= 0 {
		maxSteps = gc.MaxSteps
	}

	env, err := engine.EnvironmentFromLevel(ctx, manager, name, int(cmd.Int("level")), mode, maxSteps)
	if err != nil {
		return nil, nil, err
	}
	return env, gc, nil
}

func rolloutAction(ctx context.Context, cmd *cli.Command) error {
	env, gc, err := openLevel(ctx, cmd, int(cmd.Int("steps")))
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(cmd.Int64("seed")))

	w := output(cmd)
	fmt.Fprintf(w, "%s level %d, %s mode, seed %d\n%s\n", gc.Name, cmd.Int("level"), env.Mode(), cmd.Int64("seed"), env.Board())

	total := 0
	for !env.Done() {
		states, err := env.ReachableStates()
		if err != nil {
			return err
		}
		if len(states) == 0 {
			fmt.Fprintln(w, "stuck: no macro-moves left")
			break
		}
		pick := rng.Intn(len(states))
		before := env.Board()
		result, err := env.Step(states[pick])
		if err != nil {
			return err
		}
		total += result.Reward
		from, to, _ := engine.Displacement(before, result.Observation)
		fmt.Fprintf(w, "step %d: candidate %d/%d box %s -> %s reward %d\n",
			env.StepsTaken(), pick, len(states), from, to, result.Reward)
	}

	state := env.State()
	fmt.Fprintf(w, "%s\nsteps=%d status=%s won=%t boxes_on_target=%d/%d reward=%d\n",
		env.Board(), state.StepsTaken, state.Status, state.Won, state.BoxesOnTarget, state.NumBoxes, total)
	return nil
}
