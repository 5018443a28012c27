package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/macro-sokoban/game/engine"
	"github.com/wricardo/macro-sokoban/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Macro Sokoban",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Macro Sokoban - MCP Interface

This is a thin client that proxies all requests to the REST API server.

OBJECTIVE:
Each step is a macro-move: the player walks anywhere it can reach and then
pushes (forward mode) or pulls (backward mode) one box one or more cells in
a straight line. Forward episodes are won when every box is on a target,
backward episodes when no box is.

AVAILABLE TOOLS:
- create_session: Start a level from a collection
- macro_moves: List every board one macro-move away, by index
- step: Apply a macro-move by index (or by full board)
- game_state: Current board and counters
- reset_game: Restart the level
- move_history: Past macro-moves
- get_session / list_sessions: Session details
- list_configs: Level collections and their level ids
- describe_cell: What occupies one cell
- game_instructions: Rules and board notation

TYPICAL LOOP: macro_moves -> pick an index -> step -> repeat until done.`),
	)

	c.registerTools()
}

func sessionIDProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Session ID",
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new session on one level of a collection",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"config_id": map[string]interface{}{
					"type":        "string",
					"description": "Level collection to use (optional, see list_configs)",
				},
				"level_id": map[string]interface{}{
					"type":        "integer",
					"description": "Level within the collection (optional, defaults to the first level)",
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"forward", "backward"},
					"description": "Push boxes (forward) or pull them (backward); defaults to the collection's mode",
				},
				"max_steps": map[string]interface{}{
					"type":        "integer",
					"description": "Macro-move budget for the episode (optional)",
				},
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all active sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a specific session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionIDProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleGetSession)

	// Environment operations
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_state",
		Description: "Get the current board and episode counters",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionIDProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleGameState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "macro_moves",
		Description: "List every board reachable with one macro-move, with the index to pass to step",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
				"show_boards": map[string]interface{}{
					"type":        "boolean",
					"description": "Include the full resulting board for each candidate",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleMacroMoves)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "step",
		Description: "Apply one macro-move, chosen by candidate index or by the full resulting board",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
				"index": map[string]interface{}{
					"type":        "integer",
					"description": "Candidate index from macro_moves",
				},
				"board": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Resulting board as XSB rows (used when index is omitted)",
				},
				"intent": map[string]interface{}{
					"type":        "string",
					"description": "Brief explanation of why this macro-move (serves as a rubber duck to help explain your reasoning)",
				},
				"reset": map[string]interface{}{
					"type":        "boolean",
					"description": "Reset before stepping",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleStep)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "reset_game",
		Description: "Reset the level to its starting board",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionIDProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleReset)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "move_history",
		Description: "Get macro-move history for a session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
				"page": map[string]interface{}{
					"type":        "integer",
					"description": "Page number",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Items per page",
				},
				"order": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"asc", "desc"},
					"description": "Oldest first (asc) or newest first (desc)",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleMoveHistory)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_configs",
		Description: "List available level collections",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListConfigs)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_instructions",
		Description: "Get the rules and board notation",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleGameInstructions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "describe_cell",
		Description: "Describe one cell of the current board. Useful to tell a target under the player (+) from a box on a target (*).",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
				"x": map[string]interface{}{
					"type":        "integer",
					"description": "Column (0-based)",
				},
				"y": map[string]interface{}{
					"type":        "integer",
					"description": "Row (0-based)",
				},
			},
			Required: []string{"session_id", "x", "y"},
		},
	}, c.handleDescribeCell)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// arguments returns the tool call arguments as a map
func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

// intArg reads a JSON number argument
func intArg(args map[string]interface{}, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

func sessionPath(sessionID, suffix string) string {
	return "/api/sessions/" + url.PathEscape(sessionID) + suffix
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	body := map[string]interface{}{}
	if configID, _ := args["config_id"].(string); configID != "" {
		body["config_id"] = configID
	}
	if levelID, ok := intArg(args, "level_id"); ok {
		body["level_id"] = levelID
	}
	if mode, _ := args["mode"].(string); mode != "" {
		body["mode"] = mode
	}
	if maxSteps, ok := intArg(args, "max_steps"); ok {
		body["max_steps"] = maxSteps
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created session: %s\nConfig: %s | Level: %d | Mode: %s\n\n%s",
		session.ID, session.ConfigName, session.LevelID, session.Mode, formatGameState(session.GameState))
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}

	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Active Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		status := ""
		if s.GameState != nil {
			status = fmt.Sprintf(", %s %d/%d", s.GameState.Status, s.GameState.StepsTaken, s.GameState.StepsLimit)
		}
		fmt.Fprintf(&result, "- %s (Config: %s, Level: %d, Mode: %s%s, Created: %s)\n",
			s.ID, s.ConfigName, s.LevelID, s.Mode, status, s.CreatedAt.Format("15:04:05"))
	}

	return mcp.NewToolResultText(result.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var session service.SessionInfo
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, ""), nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleGameState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var state engine.GameState
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "/state"), nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatGameState(&state)), nil
}

func (c *Client) handleMacroMoves(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	showBoards, _ := args["show_boards"].(bool)

	var moves service.MovesResponse
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "/moves"), nil, &moves); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatMoves(&moves, showBoards)), nil
}

func (c *Client) handleStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	reset, _ := args["reset"].(bool)

	// The intent parameter is for the caller's own reasoning
	_, _ = args["intent"].(string)

	body := map[string]interface{}{"reset": reset}
	if index, ok := intArg(args, "index"); ok {
		body["index"] = index
	} else if rows, ok := args["board"].([]interface{}); ok && len(rows) > 0 {
		board := make([]string, 0, len(rows))
		for _, r := range rows {
			row, ok := r.(string)
			if !ok {
				return mcp.NewToolResultError("board rows must be strings"), nil
			}
			board = append(board, row)
		}
		body["board"] = board
	} else {
		return mcp.NewToolResultError("step needs an index (see macro_moves) or a board"), nil
	}

	var result service.StepResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/step"), body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatStepResult(&result)), nil
}

func (c *Client) handleReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var response struct {
		Message string            `json:"message"`
		State   *engine.GameState `json:"state"`
	}

	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/reset"), nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("%s\n\n%s", response.Message, formatGameState(response.State))
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleMoveHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)

	params := url.Values{}
	if page, ok := intArg(args, "page"); ok {
		params.Set("page", fmt.Sprint(page))
	}
	if limit, ok := intArg(args, "limit"); ok {
		params.Set("limit", fmt.Sprint(limit))
	}
	if order, _ := args["order"].(string); order != "" {
		params.Set("order", order)
	}

	path := sessionPath(sessionID, "/history")
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var history service.HistoryResponse
	if err := c.apiCall(ctx, "GET", path, nil, &history); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatHistory(&history)), nil
}

func (c *Client) handleListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var configs []service.ConfigInfo
	if err := c.apiCall(ctx, "GET", "/api/configs", nil, &configs); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result strings.Builder
	result.WriteString("Available Level Collections:\n\n")
	for _, config := range configs {
		fmt.Fprintf(&result, "• %s (config_id: %s)\n  %s\n  Mode: %s, Max steps: %d, Levels: %v\n\n",
			config.Name, config.ConfigID, config.Description, config.Mode, config.MaxSteps, config.LevelIDs)
	}

	return mcp.NewToolResultText(result.String()), nil
}

func (c *Client) handleGameInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instructions := `Macro Sokoban - Instructions

BOARD NOTATION (XSB):
  #  wall
     floor (space)
  .  empty target
  $  box off target
  *  box on target
  @  player
  +  player standing on a target
Coordinates are (x, y) = (column, row), both 0-based from the top-left.

MACRO-MOVES:
One step = walk to any cell the player can reach without crossing walls or
boxes, then move exactly one box in a straight line by one or more cells.
  • Forward mode: the player pushes. The cell behind the box must be free.
  • Backward mode: the player pulls. The player walks backwards ahead of the
    box, so the cell behind the player must be free.
Boards that would only return a box to where it started are not offered.

EPISODES:
  • Forward: starts from the level; won when every box is on a target.
  • Backward: starts with every box placed on a target; won when no box is.
  • Every step costs one unit of the step budget (max_steps). The episode
    ends when it is won or the budget is spent.
  • Reward is 1 on the winning step and 0 otherwise.

WORKFLOW:
  1. list_configs, then create_session with a config_id and level_id
  2. macro_moves to see the candidate boards (each has an index)
  3. step with the chosen index
  4. repeat until the episode is done; reset_game to try again

Boxes pushed into corners without a target can never leave them. Plan ahead!`

	return mcp.NewToolResultText(instructions), nil
}

func (c *Client) handleDescribeCell(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	x, okX := intArg(args, "x")
	y, okY := intArg(args, "y")
	if !okX || !okY {
		return mcp.NewToolResultError("x and y are required integers"), nil
	}

	var state engine.GameState
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "/state"), nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	cell, err := state.Board.CellAt(engine.Position{X: x, Y: y})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Coordinates (%d, %d) are out of bounds. Board is %dx%d (x 0-%d, y 0-%d)",
			x, y, state.Width, state.Height, state.Width-1, state.Height-1)), nil
	}

	result := fmt.Sprintf(`Cell at position (%d, %d):
━━━━━━━━━━━━━━━━━━━━━━━━
Character: '%c'
Type: %s
Walkable: %v
Target: %v
Description: %s`,
		x, y, cell.Char(), cell, cell == engine.Floor || cell == engine.BoxTarget || cell.IsPlayer(),
		cell.IsTarget(), describeCell(cell))

	return mcp.NewToolResultText(result), nil
}

func describeCell(cell engine.CellType) string {
	switch cell {
	case engine.Wall:
		return "Wall - nothing can enter"
	case engine.Floor:
		return "Empty floor"
	case engine.BoxTarget:
		return "Empty target - a box belongs here in forward mode"
	case engine.BoxOnTarget:
		return "Box resting on a target"
	case engine.BoxOffTarget:
		return "Box off target"
	case engine.Player:
		return "The player"
	case engine.PlayerOnTarget:
		return "The player, standing on a target"
	default:
		return "Unknown cell"
	}
}

// Formatting helpers

func formatSessionInfo(session *service.SessionInfo) string {
	return fmt.Sprintf("Session: %s\nConfig: %s | Level: %d | Mode: %s\nCreated: %s\n\n%s",
		session.ID, session.ConfigName, session.LevelID, session.Mode,
		session.CreatedAt.Format("2006-01-02 15:04:05"),
		formatGameState(session.GameState))
}

func formatGameState(state *engine.GameState) string {
	if state == nil {
		return "No game state available"
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Mode: %s | Steps: %d/%d | Boxes on target: %d/%d | Player: (%d,%d)\n\n",
		state.Mode, state.StepsTaken, state.StepsLimit,
		state.BoxesOnTarget, state.NumBoxes, state.PlayerPos.X, state.PlayerPos.Y)

	result.WriteString(formatBoard(state.Board))

	if state.Done {
		if state.Won {
			result.WriteString("\n🎉 SOLVED!")
		} else {
			result.WriteString("\n⏹ STEP BUDGET SPENT")
		}
	}

	if state.Message != "" {
		fmt.Fprintf(&result, "\nMessage: %s", state.Message)
	}

	return result.String()
}

// formatBoard renders the board with a column ruler
func formatBoard(b engine.Board) string {
	if b.IsZero() {
		return "(no board)\n"
	}
	var result strings.Builder
	result.WriteString("   ")
	for x := 0; x < b.Width(); x++ {
		fmt.Fprintf(&result, "%d", x%10)
	}
	result.WriteString("\n")
	for y, row := range b.Rows() {
		fmt.Fprintf(&result, "%2d %s\n", y, row)
	}
	return result.String()
}

func formatMoves(moves *service.MovesResponse, showBoards bool) string {
	var result strings.Builder
	fmt.Fprintf(&result, "Session %s (%s) | Steps: %d/%d | Candidates: %d\n",
		moves.SessionID, moves.Mode, moves.StepsTaken, moves.StepsLimit, moves.Count)

	if moves.Done {
		result.WriteString("\nEpisode is done. Use reset_game (or step with reset=true) to play again.\n")
		return result.String()
	}
	if moves.Count == 0 {
		result.WriteString("\nNo macro-move is possible from this board. The level is stuck; reset to try again.\n")
		return result.String()
	}

	result.WriteString("\n")
	for _, c := range moves.Candidates {
		solves := ""
		if c.Solves {
			solves = "  ← solves"
		}
		fmt.Fprintf(&result, "[%d] box (%d,%d)→(%d,%d), player ends at (%d,%d)%s\n",
			c.Index, c.BoxFrom.X, c.BoxFrom.Y, c.BoxTo.X, c.BoxTo.Y, c.PlayerTo.X, c.PlayerTo.Y, solves)
		if showBoards {
			result.WriteString(c.Board.String())
			result.WriteString("\n\n")
		}
	}
	return result.String()
}

func formatStepResult(result *service.StepResult) string {
	var response strings.Builder
	response.WriteString("✓ Macro-move applied\n")

	if m := result.Move; m != nil {
		fmt.Fprintf(&response, "Step %d: box (%d,%d)→(%d,%d), player (%d,%d)→(%d,%d), reward %d\n",
			m.MoveNumber, m.BoxFrom.X, m.BoxFrom.Y, m.BoxTo.X, m.BoxTo.Y,
			m.PlayerFrom.X, m.PlayerFrom.Y, m.PlayerTo.X, m.PlayerTo.Y, result.Reward)
	}

	if info := result.Info; info != nil {
		switch {
		case info.AllBoxesOnTarget:
			response.WriteString("Every box is on a target.\n")
		case info.AllBoxesNotOnTarget:
			response.WriteString("No box is left on a target.\n")
		case info.MaxStepsUsed:
			response.WriteString("Step budget spent.\n")
		}
	}

	response.WriteString("\n")
	response.WriteString(formatGameState(result.GameState))
	return response.String()
}

func formatHistory(history *service.HistoryResponse) string {
	var result strings.Builder
	fmt.Fprintf(&result, "Macro-move history (page %d/%d, %d total):\n\n",
		history.Page, history.TotalPages, history.TotalMoves)

	if len(history.Moves) == 0 {
		result.WriteString("No macro-moves yet.\n")
		return result.String()
	}

	for _, m := range history.Moves {
		fmt.Fprintf(&result, "#%d box (%d,%d)→(%d,%d) player (%d,%d)→(%d,%d) reward %d at %s\n",
			m.MoveNumber, m.BoxFrom.X, m.BoxFrom.Y, m.BoxTo.X, m.BoxTo.Y,
			m.PlayerFrom.X, m.PlayerFrom.Y, m.PlayerTo.X, m.PlayerTo.Y,
			m.Reward, time.Unix(m.Timestamp, 0).Format("15:04:05"))
	}

	if history.HasNext {
		fmt.Fprintf(&result, "\nMore on page %d.\n", history.Page+1)
	}
	return result.String()
}
