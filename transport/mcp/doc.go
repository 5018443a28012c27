// Package mcp exposes the macro-move Sokoban environment to AI agents over
// the Model Context Protocol.
//
// The Client is a thin proxy: every tool call becomes a request against the
// REST API, so an agent and a browser watching the same session over
// WebSocket see the same state.
//
// MCP Tools:
//   - create_session: start a level (config_id, level_id, mode, max_steps)
//   - macro_moves: list candidate boards with their indices
//   - step: apply a macro-move by index or by board
//   - game_state, get_session, list_sessions
//   - reset_game, move_history
//   - list_configs, describe_cell, game_instructions
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
