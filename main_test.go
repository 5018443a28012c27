package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/macro-sokoban/game/config"
	"github.com/wricardo/macro-sokoban/game/service"
	"github.com/wricardo/macro-sokoban/transport/mcp"
)

// withFlags points the package flags at test values for the duration of t
func withFlags(t *testing.T, cfgDir, sessDir, storeKind string) {
	t.Helper()
	oldConfig, oldSessions, oldStore := *configDir, *sessionsDir, *store
	*configDir, *sessionsDir, *store = cfgDir, sessDir, storeKind
	t.Cleanup(func() {
		*configDir, *sessionsDir, *store = oldConfig, oldSessions, oldStore
	})
}

func TestConstants(t *testing.T) {
	assert.Equal(t, "1.0.0", Version)
	assert.Equal(t, "Macro Sokoban Server", AppName)
}

func TestFlagDefaults(t *testing.T) {
	assert.True(t, *port > 0 && *port <= 65535, "invalid default port %d", *port)
	assert.NotEmpty(t, *host)
	assert.NotEmpty(t, *configDir)
	assert.NotEmpty(t, *sessionsDir)
	assert.Contains(t, []string{"file", "badger"}, *store)
}

func TestInitializeServices(t *testing.T) {
	for _, kind := range []string{"file", "badger"} {
		t.Run(kind, func(t *testing.T) {
			withFlags(t, "configs", filepath.Join(t.TempDir(), "sessions"), kind)

			svc, err := initializeServices()
			require.NoError(t, err)
			defer svc.Close()

			info, err := svc.gameService.CreateSession(t.Context(), service.CreateSessionRequest{ConfigName: "microsokoban"})
			require.NoError(t, err)
			assert.True(t, svc.persistence.Exists(info.ID))
		})
	}
}

func TestInitializeServices_Errors(t *testing.T) {
	withFlags(t, "/non/existent/path", t.TempDir(), "file")
	_, err := initializeServices()
	assert.Error(t, err)

	withFlags(t, "configs", t.TempDir(), "carrier-pigeon")
	_, err = initializeServices()
	assert.ErrorContains(t, err, "unknown session store")
}

func TestSessionsSurviveRestart(t *testing.T) {
	withFlags(t, "configs", filepath.Join(t.TempDir(), "db"), "badger")

	svc, err := initializeServices()
	require.NoError(t, err)
	info, err := svc.gameService.CreateSession(t.Context(), service.CreateSessionRequest{ConfigName: "microsokoban", LevelID: 2})
	require.NoError(t, err)
	idx := 0
	_, err = svc.gameService.Step(t.Context(), info.ID, service.StepRequest{Index: &idx})
	require.NoError(t, err)
	svc.Close()

	restarted, err := initializeServices()
	require.NoError(t, err)
	defer restarted.Close()

	state, err := restarted.gameService.GetGameState(t.Context(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, state.StepsTaken)
	assert.Equal(t, 2, state.LevelID)
}

func TestPruneOrphans(t *testing.T) {
	withFlags(t, "configs", t.TempDir(), "file")

	svc, err := initializeServices()
	require.NoError(t, err)
	defer svc.Close()

	kept, err := svc.gameService.CreateSession(t.Context(), service.CreateSessionRequest{})
	require.NoError(t, err)
	gone, err := svc.gameService.CreateSession(t.Context(), service.CreateSessionRequest{})
	require.NoError(t, err)

	require.NoError(t, svc.persistence.Delete(gone.ID))
	assert.Equal(t, 1, pruneOrphans(svc.sessions, svc.persistence))
	assert.Equal(t, 1, svc.sessions.Count())

	_, err = svc.sessions.Get(kept.ID)
	assert.NoError(t, err)
}

func TestMCPHandler(t *testing.T) {
	handler := mcpHandler(mcp.NewClient("http://127.0.0.1:1"))

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest("GET", "/mcp", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = httptest.NewRecorder()
	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"0"}}}`
	handler(w, httptest.NewRequest("POST", "/mcp", strings.NewReader(body)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Macro Sokoban")

	w = httptest.NewRecorder()
	handler(w, httptest.NewRequest("POST", "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "macro_moves")
}

func TestShippedConfigsLoad(t *testing.T) {
	configs, err := config.NewManager("configs")
	require.NoError(t, err)
	assert.Equal(t, "microsokoban", configs.GetDefault().Name)
}
