package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/macro-sokoban/game/config"
	"github.com/wricardo/macro-sokoban/game/engine"
	"github.com/wricardo/macro-sokoban/game/service"
	"github.com/wricardo/macro-sokoban/game/session"
	"github.com/wricardo/macro-sokoban/transport/websocket"
)

func testCollection() *engine.GameConfig {
	return &engine.GameConfig{
		Name:        "microsokoban",
		Description: "Test levels",
		Mode:        engine.Forward,
		MaxSteps:    20,
		Levels: []engine.Level{
			{ID: 1, Title: "Two corridors", Layout: []string{
				"######",
				"#@$ .#",
				"# ####",
				"# $ .#",
				"######",
				"######",
			}},
			{ID: 2, Title: "Open room", Layout: []string{
				"#####",
				"#@  #",
				"# $ #",
				"#  .#",
				"#####",
			}},
		},
	}
}

// setupTestServer wires the real service stack over a temporary config dir
func setupTestServer(t *testing.T, hub *websocket.Hub) *Server {
	t.Helper()
	dir := t.TempDir()
	bootstrap, err := config.NewManager(dir)
	require.NoError(t, err)
	require.NoError(t, bootstrap.SaveConfig("microsokoban", testCollection()))

	configs, err := config.NewManager(dir)
	require.NoError(t, err)
	gameService := service.NewGameService(session.NewManager(), configs)
	return NewServer(gameService, hub)
}

func makeRequest(method, path string, body interface{}) *http.Request {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func do(t *testing.T, s *Server, method, path string, body interface{}, target interface{}) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.ServeHTTP(w, makeRequest(method, path, body))
	if target != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), target), w.Body.String())
	}
	return w
}

func createSession(t *testing.T, s *Server, req map[string]interface{}) *service.SessionInfo {
	t.Helper()
	var info service.SessionInfo
	w := do(t, s, "POST", "/api/sessions", req, &info)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return &info
}

func TestCreateSession(t *testing.T) {
	s := setupTestServer(t, nil)

	t.Run("default collection", func(t *testing.T) {
		info := createSession(t, s, nil)
		assert.Len(t, info.ID, 4)
		assert.Equal(t, "microsokoban", info.ConfigName)
		assert.Equal(t, 1, info.LevelID)
		assert.Equal(t, engine.Forward, info.Mode)
		require.NotNil(t, info.GameState)
		assert.Equal(t, engine.StatusReady, info.GameState.Status)
	})

	t.Run("overrides", func(t *testing.T) {
		info := createSession(t, s, map[string]interface{}{
			"config_id": "MicroSokoban",
			"level_id":  2,
			"mode":      "backward",
			"max_steps": 7,
		})
		assert.Equal(t, 2, info.LevelID)
		assert.Equal(t, engine.Backward, info.Mode)
		assert.Equal(t, 7, info.GameState.StepsLimit)
	})

	t.Run("deprecated config_name", func(t *testing.T) {
		info := createSession(t, s, map[string]interface{}{"config_name": "microsokoban"})
		assert.Equal(t, "microsokoban", info.ConfigName)
	})

	t.Run("unknown config", func(t *testing.T) {
		w := do(t, s, "POST", "/api/sessions", map[string]interface{}{"config_id": "nope"}, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "microsokoban")
	})

	t.Run("unknown level", func(t *testing.T) {
		w := do(t, s, "POST", "/api/sessions", map[string]interface{}{"level_id": 99}, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bad mode", func(t *testing.T) {
		w := do(t, s, "POST", "/api/sessions", map[string]interface{}{"mode": "sideways"}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.ServeHTTP(w, httptest.NewRequest("POST", "/api/sessions", strings.NewReader("{")))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestListSessions(t *testing.T) {
	s := setupTestServer(t, nil)
	first := createSession(t, s, nil)
	time.Sleep(5 * time.Millisecond)
	second := createSession(t, s, nil)

	var resp struct {
		Count    int                    `json:"count"`
		Total    int                    `json:"total"`
		Sessions []*service.SessionInfo `json:"sessions"`
		Sort     string                 `json:"sort"`
		Order    string                 `json:"order"`
	}
	do(t, s, "GET", "/api/sessions?sort=created&order=asc", nil, &resp)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "created", resp.Sort)
	assert.Equal(t, "asc", resp.Order)
	require.Len(t, resp.Sessions, 2)
	assert.Equal(t, first.ID, resp.Sessions[0].ID)
	assert.Equal(t, second.ID, resp.Sessions[1].ID)

	do(t, s, "GET", "/api/sessions?sort=created&limit=1", nil, &resp)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, second.ID, resp.Sessions[0].ID)
}

func TestGetAndDeleteSession(t *testing.T) {
	s := setupTestServer(t, nil)
	info := createSession(t, s, nil)

	var got service.SessionInfo
	w := do(t, s, "GET", "/api/sessions/"+strings.ToUpper(info.ID), nil, &got)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, info.ID, got.ID)

	w = do(t, s, "DELETE", "/api/sessions/"+info.ID, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, "GET", "/api/sessions/"+info.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, s, "DELETE", "/api/sessions/"+info.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMovesAndStep(t *testing.T) {
	s := setupTestServer(t, nil)
	info := createSession(t, s, nil)
	base := "/api/sessions/" + info.ID

	var moves service.MovesResponse
	w := do(t, s, "GET", base+"/moves", nil, &moves)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4, moves.Count)
	require.Len(t, moves.Candidates, 4)
	for i, c := range moves.Candidates {
		assert.Equal(t, i, c.Index)
	}

	// solve: push the top box onto its target, then the bottom one
	pick := func(box engine.Position) int {
		for _, c := range moves.Candidates {
			if c.BoxTo == box {
				return c.Index
			}
		}
		t.Fatalf("no candidate moves a box to %v", box)
		return -1
	}

	idx := pick(engine.Position{X: 4, Y: 1})
	var result service.StepResult
	w = do(t, s, "POST", base+"/step", map[string]interface{}{"index": idx}, &result)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, result.Success)
	assert.False(t, result.Done)
	require.NotNil(t, result.Move)
	assert.Equal(t, engine.Position{X: 2, Y: 1}, result.Move.BoxFrom)

	do(t, s, "GET", base+"/moves", nil, &moves)
	idx = pick(engine.Position{X: 4, Y: 3})
	w = do(t, s, "POST", base+"/step", map[string]interface{}{"index": idx}, &result)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, result.Done)
	assert.Equal(t, 1, result.Reward)
	assert.True(t, result.GameState.Won)

	// finished episodes refuse further steps until reset
	w = do(t, s, "POST", base+"/step", map[string]interface{}{"index": 0}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, s, "POST", base+"/step", map[string]interface{}{"index": 0, "reset": true}, &result)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, result.GameState.StepsTaken)
}

func TestStepErrors(t *testing.T) {
	s := setupTestServer(t, nil)
	info := createSession(t, s, nil)
	base := "/api/sessions/" + info.ID

	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{"index out of range", map[string]interface{}{"index": 99}, http.StatusUnprocessableEntity},
		{"neither index nor board", map[string]interface{}{}, http.StatusBadRequest},
		{"board not reachable", map[string]interface{}{"board": []string{
			"######",
			"#@ $.#",
			"# ####",
			"#  $.#",
			"######",
			"######",
		}}, http.StatusUnprocessableEntity},
		{"board with different walls", map[string]interface{}{"board": []string{
			"#####",
			"#@$.#",
			"#####",
		}}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, "POST", base+"/step", tt.body, nil)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	w := do(t, s, "POST", "/api/sessions/zzzz/step", map[string]interface{}{"index": 0}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var state engine.GameState
	do(t, s, "GET", base+"/state", nil, &state)
	assert.Equal(t, 0, state.StepsTaken, "rejected steps leave the session untouched")
}

func TestStepByBoard(t *testing.T) {
	s := setupTestServer(t, nil)
	info := createSession(t, s, nil)
	base := "/api/sessions/" + info.ID

	var moves service.MovesResponse
	do(t, s, "GET", base+"/moves", nil, &moves)

	var result service.StepResult
	w := do(t, s, "POST", base+"/step", map[string]interface{}{"board": moves.Candidates[2].Board}, &result)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, moves.Candidates[2].Board.Rows(), result.GameState.Board.Rows())
}

// stepToBox steps the session to the candidate that leaves a box at box
func stepToBox(t *testing.T, s *Server, base string, box engine.Position) *service.StepResult {
	t.Helper()
	var moves service.MovesResponse
	do(t, s, "GET", base+"/moves", nil, &moves)
	for _, c := range moves.Candidates {
		if c.BoxTo == box {
			var result service.StepResult
			w := do(t, s, "POST", base+"/step", map[string]interface{}{"index": c.Index}, &result)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			return &result
		}
	}
	t.Fatalf("no candidate moves a box to %v", box)
	return nil
}

func TestResetAndHistory(t *testing.T) {
	s := setupTestServer(t, nil)
	info := createSession(t, s, map[string]interface{}{"mode": "backward"})
	base := "/api/sessions/" + info.ID

	// pull the top box out of its target one cell at a time
	stepToBox(t, s, base, engine.Position{X: 3, Y: 1})
	result := stepToBox(t, s, base, engine.Position{X: 2, Y: 1})
	assert.False(t, result.Done)
	assert.Equal(t, 1, result.GameState.BoxesOnTarget)

	var history service.HistoryResponse
	do(t, s, "GET", base+"/history?limit=1&order=asc", nil, &history)
	assert.Equal(t, 2, history.TotalMoves)
	assert.Equal(t, 2, history.TotalPages)
	assert.True(t, history.HasNext)
	require.Len(t, history.Moves, 1)
	assert.Equal(t, 1, history.Moves[0].MoveNumber)
	assert.Equal(t, engine.Position{X: 4, Y: 1}, history.Moves[0].BoxFrom)

	do(t, s, "GET", base+"/history", nil, &history)
	require.Len(t, history.Moves, 2)
	assert.Equal(t, 2, history.Moves[0].MoveNumber, "newest first by default")

	var reset struct {
		Message string            `json:"message"`
		State   *engine.GameState `json:"state"`
	}
	w := do(t, s, "POST", base+"/reset", nil, &reset)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, reset.State.StepsTaken)
	assert.Equal(t, 2, reset.State.BoxesOnTarget, "backward episodes start with every box on a target")

	w = do(t, s, "POST", "/api/sessions/zzzz/reset", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, s, "GET", "/api/sessions/zzzz/history", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConfigs(t *testing.T) {
	s := setupTestServer(t, nil)

	var list []*service.ConfigInfo
	w := do(t, s, "GET", "/api/configs", nil, &list)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, list, 1)
	assert.Equal(t, "microsokoban", list[0].ConfigID)
	assert.Equal(t, []int{1, 2}, list[0].LevelIDs)

	var cfg engine.GameConfig
	w = do(t, s, "GET", "/api/configs/microsokoban.json", nil, &cfg)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, cfg.Levels, 2)

	w = do(t, s, "GET", "/api/configs/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	created := testCollection()
	created.Name = "Custom"
	created.Mode = engine.Backward
	w = do(t, s, "POST", "/api/configs", created, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	info := createSession(t, s, map[string]interface{}{"config_id": "custom"})
	assert.Equal(t, engine.Backward, info.Mode)

	invalid := testCollection()
	invalid.Levels[0].Layout = []string{"#####", "#@$ #", "#####"}
	w = do(t, s, "POST", "/api/configs", invalid, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, "POST", "/api/configs", map[string]interface{}{"description": "no name"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnifiedSessions(t *testing.T) {
	s := setupTestServer(t, nil)
	a := createSession(t, s, nil)
	b := createSession(t, s, nil)

	var resp struct {
		ConfigName string                   `json:"config_name"`
		TotalBoxes int                      `json:"total_boxes"`
		Solved     int                      `json:"solved"`
		Sessions   []map[string]interface{} `json:"sessions"`
	}
	do(t, s, "GET", "/api/sessions/unified", nil, &resp)
	assert.Equal(t, "microsokoban", resp.ConfigName)
	assert.Equal(t, 2, resp.TotalBoxes)
	assert.Len(t, resp.Sessions, 2)

	do(t, s, "GET", fmt.Sprintf("/api/sessions/unified?sessionIds=%s,missing", a.ID), nil, &resp)
	require.Len(t, resp.Sessions, 1)
	assert.Equal(t, a.ID, resp.Sessions[0]["session_id"])

	do(t, s, "GET", "/api/sessions/unified?configName=other", nil, &resp)
	assert.Empty(t, resp.Sessions)
	_ = b
}

func TestHealthAndMetrics(t *testing.T) {
	s := setupTestServer(t, nil)

	var health map[string]string
	w := do(t, s, "GET", "/health", nil, &health)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", health["status"])

	info := createSession(t, s, nil)
	do(t, s, "GET", "/api/sessions/"+info.ID+"/moves", nil, nil)
	do(t, s, "POST", "/api/sessions/"+info.ID+"/step", map[string]interface{}{"index": 0}, nil)

	w = do(t, s, "GET", "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sokoban_macro_search_duration_seconds")
	assert.Contains(t, w.Body.String(), "sokoban_env_steps_total")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("session not found: %w", session.ErrSessionNotFound), http.StatusNotFound},
		{config.ErrConfigNotFound, http.StatusNotFound},
		{engine.ErrLevelNotFound, http.StatusNotFound},
		{engine.ErrEpisodeDone, http.StatusConflict},
		{engine.ErrIllegalMove, http.StatusUnprocessableEntity},
		{engine.ErrInvariantViolation, http.StatusUnprocessableEntity},
		{engine.ErrOutOfBounds, http.StatusUnprocessableEntity},
		{service.ErrInvalidRequest, http.StatusBadRequest},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, statusFor(tt.err), tt.err.Error())
	}
}

func TestWebSocket(t *testing.T) {
	hub := websocket.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	s := setupTestServer(t, hub)
	server := httptest.NewServer(s)
	defer server.Close()

	t.Run("requires session", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/ws")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, err = http.Get(server.URL + "/ws?session=zzzz")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("receives step updates", func(t *testing.T) {
		info := createSession(t, s, nil)
		wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?session=" + strings.ToUpper(info.ID)
		conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		defer conn.Close()

		// registration is asynchronous; keep stepping until an update arrives
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		received := make(chan websocket.Message, 4)
		go func() {
			for {
				var msg websocket.Message
				if err := conn.ReadJSON(&msg); err != nil {
					close(received)
					return
				}
				received <- msg
			}
		}()

		require.Eventually(t, func() bool {
			do(t, s, "POST", "/api/sessions/"+info.ID+"/reset", nil, nil)
			select {
			case msg, ok := <-received:
				return ok && msg.SessionID == info.ID
			default:
				return false
			}
		}, 2*time.Second, 20*time.Millisecond)
	})
}
