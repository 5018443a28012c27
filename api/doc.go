// Package api provides the HTTP REST surface of the macro-move Sokoban
// environment.
//
// Endpoints:
//
// Session Management:
//   - POST   /api/sessions              create a session {config_id, level_id, mode, max_steps}
//   - GET    /api/sessions              list sessions (?sort=created|accessed&order=asc|desc&limit=N)
//   - GET    /api/sessions/unified      sessions grouped for a multi-session view
//   - GET    /api/sessions/{id}         session details
//   - DELETE /api/sessions/{id}         delete a session
//
// Environment:
//   - GET  /api/sessions/{id}/state    current GameState
//   - GET  /api/sessions/{id}/moves    every board one macro-move away, indexed
//   - POST /api/sessions/{id}/step     {"index": 2} or {"board": [...rows]}, optional "reset": true
//   - POST /api/sessions/{id}/reset    restart the level
//   - GET  /api/sessions/{id}/history  paginated macro-move history
//
// Level Collections:
//   - GET  /api/configs                list collections
//   - GET  /api/configs/{name}         one collection
//   - POST /api/configs                save a collection (validated first)
//
// Other:
//   - GET /ws?session={id}             WebSocket state updates
//   - GET /metrics                     Prometheus metrics
//   - GET /health                      liveness
//
// Boards travel as arrays of XSB rows:
//
//	["#####", "#@$.#", "#####"]
//
// Errors are returned as {"error": "..."} with a status derived from the
// underlying error: 404 for unknown sessions, collections and levels, 409 for
// a finished episode, 422 for illegal or malformed boards, 400 for bad
// requests.
package api
