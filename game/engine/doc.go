// Package engine implements the macro-move Sokoban environment.
//
// A macro-move displaces exactly one box by a chain of elementary pushes
// (Forward mode) or pulls (Backward mode). Between consecutive pushes the
// player walks freely through floor and targets without touching any other
// box. The environment exposes the full set of boards one macro-move away
// and accepts any of them as the next action.
//
// Core Types:
//
// Board is an immutable grid snapshot in the XSB alphabet. MacroEnvironment
// owns the episode: the current board, step counter, win/done status and a
// memoized set of reachable states that is invalidated on every board change.
// GameConfig is a named collection of levels loaded from JSON or YAML.
//
// Usage:
//
//	b, err := engine.ParseBoard([]string{
//		"######",
//		"#@$ .#",
//		"######",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	env, err := engine.NewEnvironment(engine.Options{
//		Mode:     engine.Forward,
//		MaxSteps: 120,
//	}, engine.NewStaticSource(b))
//	if err != nil {
//		log.Fatal(err)
//	}
//	if _, err := env.Reset(ctx); err != nil {
//		log.Fatal(err)
//	}
//
//	states, _ := env.ReachableStates()
//	result, err := env.Step(states[0])
//
// Rules:
//
// In Forward mode the episode is won when every box sits on a target. In
// Backward mode reset fills every target with a box and the episode is won
// when no box sits on a target. Either mode ends after MaxSteps macro-moves.
// The reward is 1 on the winning step and 0 otherwise.
package engine
