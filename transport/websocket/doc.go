// Package websocket pushes session updates to browser and agent observers.
//
// A central Hub owns every connection. Clients subscribe to one session with
// the ?session= query parameter on /ws and receive JSON messages:
//
//	{"session_id": "ab12", "event": "state_update", "game_state": {...}}
//	{"session_id": "ab12", "event": "step", "data": {...}}
//
// The REST layer broadcasts a state_update after every step and reset.
// Incoming client messages are read only to keep the connection alive.
//
// Usage:
//
//	hub := websocket.NewHub()
//	go hub.Run(ctx)
//	hub.BroadcastToSession(sessionID, state)
//
// Client bookkeeping runs on the Run goroutine; broadcasts from other
// goroutines are queued on a channel. Once Run returns, broadcasts are
// discarded instead of blocking.
package websocket
