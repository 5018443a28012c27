// Package service provides the business logic layer for the macro-move
// Sokoban environment.
//
// The service package implements:
//   - Multi-session environment management
//   - Level collection loading and listing
//   - Candidate enumeration with stable indices
//   - Step processing by index or by board
//   - Paginated step history
//
// Core Interfaces:
//
// GameService is the facade every transport (REST, WebSocket, MCP) calls.
// SessionManager stores sessions; ConfigManager resolves level collections.
//
// Usage:
//
//	sessionMgr := session.NewManager()
//	configMgr, _ := config.NewManager("configs")
//	gameService := service.NewGameService(sessionMgr, configMgr)
//
//	info, err := gameService.CreateSession(ctx, service.CreateSessionRequest{
//		ConfigName: "microsokoban",
//		LevelID:    1,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	moves, _ := gameService.ReachableStates(ctx, info.ID)
//	idx := moves.Candidates[0].Index
//	result, err := gameService.Step(ctx, info.ID, service.StepRequest{Index: &idx})
//
// Every session owns one MacroEnvironment, which is not safe for concurrent
// use. The service touches an environment only inside SessionManager.View or
// SessionManager.Update, which hold that session's lock; different sessions
// proceed in parallel.
package service
