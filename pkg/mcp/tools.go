package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/worldscript/pkg/schema"
)

// executeResult is the JSON view of a finished traversal.
type executeResult struct {
	OK          bool     `json:"ok"`
	Steps       int      `json:"steps"`
	Invocations int      `json:"invocations"`
	Path        []uint32 `json:"path"`
	Code        string   `json:"code,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// handleExecute runs an action graph, optionally as a connected actor.
func (c *Console) handleExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actionID, err := requireID(req, "action_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ec, errResult := c.contextArg(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	if input := req.GetString("input", ""); input != "" {
		ec.Input = input
	}

	res := c.runner.Run(ctx, actionID, ec)
	out := executeResult{
		OK:          res.OK,
		Steps:       res.Steps,
		Invocations: res.Invocations,
		Path:        res.Path,
	}
	if out.Path == nil {
		out.Path = []uint32{}
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
		var se *schema.ScriptError
		if errors.As(res.Err, &se) {
			out.Code = se.Code
		}
	}
	return marshalResult(out)
}

// handleSchedule defers an action graph.
func (c *Console) handleSchedule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actionID, err := requireID(req, "action_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	delay, err := req.RequireInt("delay_seconds")
	if err != nil {
		return mcp.NewToolResultError("delay_seconds is required"), nil
	}
	target, err := optionalID(req, "target_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	qa, schedErr := c.scheduler.Schedule(ctx, delay, actionID, target)
	if schedErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("schedule failed: %v", schedErr)), nil
	}
	return marshalResult(qa)
}

// handleResolve previews a parameter template.
func (c *Console) handleResolve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	template, err := req.RequireString("template")
	if err != nil {
		return mcp.NewToolResultError("template is required"), nil
	}
	ec, errResult := c.contextArg(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	return marshalResult(map[string]any{
		"template": template,
		"resolved": c.resolver.Resolve(ctx, template, ec),
		"context":  ec.Summary(),
	})
}

// handleHandlers lists registered action types.
func (c *Console) handleHandlers(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list := c.handlers.List()
	return marshalResult(map[string]any{
		"handlers": list,
		"total":    len(list),
	})
}

// handleQueue lists deferred actions in firing order along with the
// dispatch pool counters.
func (c *Console) handleQueue(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pending := c.scheduler.Pending()
	if pending == nil {
		pending = []schema.QueuedAction{}
	}
	return marshalResult(map[string]any{
		"pending":  pending,
		"total":    len(pending),
		"dispatch": c.scheduler.Metrics(),
	})
}

// handleJoin connects the calling session as an actor.
func (c *Console) handleJoin(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, err := requireID(req, "actor_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}

	actor := schema.ActorRef{
		ID:    actorID,
		Name:  name,
		Level: req.GetInt("level", 1),
		Money: int64(req.GetInt("money", 0)),
		Position: schema.Position{
			MapID: uint32(max(req.GetInt("map_id", 0), 0)),
			X:     req.GetInt("x", 0),
			Y:     req.GetInt("y", 0),
		},
	}
	if joinErr := c.world.Join(actor); joinErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("join failed: %v", joinErr)), nil
	}
	c.captureSession(ctx, actorID)

	c.logger.InfoContext(ctx, "actor connected",
		slog.Uint64("actor_id", uint64(actorID)),
		slog.String("name", name),
	)
	return marshalResult(map[string]any{
		"ok":     true,
		"actor":  actor,
		"online": c.world.Online(),
	})
}

// handleLeave disconnects an actor.
func (c *Console) handleLeave(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, err := requireID(req, "actor_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !c.world.Leave(actorID) {
		return mcp.NewToolResultError(fmt.Sprintf("actor %d is not connected", actorID)), nil
	}
	return marshalResult(map[string]any{
		"ok":     true,
		"online": c.world.Online(),
	})
}

// --- Helpers ---

// contextArg builds the execution context named by the optional actor_id
// argument. No actor_id yields an empty context.
func (c *Console) contextArg(ctx context.Context, req mcp.CallToolRequest) (*schema.ExecutionContext, *mcp.CallToolResult) {
	id := req.GetInt("actor_id", 0)
	if id == 0 {
		return &schema.ExecutionContext{}, nil
	}
	if id < 0 {
		return nil, mcp.NewToolResultError("actor_id must not be negative")
	}
	ec, ok := c.world.ContextFor(ctx, uint32(id))
	if !ok {
		return nil, mcp.NewToolResultError(fmt.Sprintf("actor %d is not connected", id))
	}
	return ec, nil
}

func (c *Console) captureSession(ctx context.Context, actorID uint32) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		c.sessions.Register(actorID, session.SessionID())
	}
}

// requireID reads a positive node or actor ID argument.
func requireID(req mcp.CallToolRequest, key string) (uint32, error) {
	v, err := req.RequireInt(key)
	if err != nil {
		return 0, fmt.Errorf("%s is required", key)
	}
	if v <= 0 || v > int(^uint32(0)) {
		return 0, fmt.Errorf("%s must be a positive 32-bit id", key)
	}
	return uint32(v), nil
}

// optionalID reads a 32-bit id that may be omitted or zero.
func optionalID(req mcp.CallToolRequest, key string) (uint32, error) {
	v := req.GetInt(key, 0)
	if v < 0 || v > int(^uint32(0)) {
		return 0, fmt.Errorf("%s must be a 32-bit id", key)
	}
	return uint32(v), nil
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
