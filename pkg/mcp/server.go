// Package mcp exposes the script interpreter as an MCP tool server: an
// operator console that can run actions, defer them, preview parameter
// templates and stand in for connected actors.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/worldscript/internal/actions"
	"github.com/rendis/worldscript/internal/engine"
	"github.com/rendis/worldscript/internal/scheduler"
	"github.com/rendis/worldscript/pkg/schema"
)

// Runner runs one traversal. Satisfied by *engine.Interpreter.
type Runner interface {
	Run(ctx context.Context, startID uint32, ec *schema.ExecutionContext) *engine.Result
}

// Scheduler defers actions. Satisfied by *scheduler.Scheduler.
type Scheduler interface {
	Schedule(ctx context.Context, delaySeconds int, actionID, targetContextID uint32) (*schema.QueuedAction, error)
	Pending() []schema.QueuedAction
	Metrics() scheduler.PoolMetrics
}

// HandlerLister lists the registered action types. Satisfied by *actions.Registry.
type HandlerLister interface {
	List() []actions.HandlerInfo
}

// World is the live actor directory. Satisfied by *world.Directory.
type World interface {
	Join(actor schema.ActorRef) error
	Leave(id uint32) bool
	ContextFor(ctx context.Context, id uint32) (*schema.ExecutionContext, bool)
	Online() []uint32
}

// ConsoleDeps holds the dependencies for creating a Console.
type ConsoleDeps struct {
	Runner    Runner
	Scheduler Scheduler
	Resolver  engine.Resolver
	Handlers  HandlerLister
	World     World
	Sessions  *SessionRegistry
	Logger    *slog.Logger
}

// Console wraps an MCP server with worldscript tool handlers.
type Console struct {
	runner    Runner
	scheduler Scheduler
	resolver  engine.Resolver
	handlers  HandlerLister
	world     World
	sessions  *SessionRegistry
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewConsole creates a new Console with all tools registered.
func NewConsole(deps ConsoleDeps) *Console {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = NewSessionRegistry()
	}

	c := &Console{
		runner:    deps.Runner,
		scheduler: deps.Scheduler,
		resolver:  deps.Resolver,
		handlers:  deps.Handlers,
		world:     deps.World,
		sessions:  sessions,
		logger:    logger,
	}

	hooks := &server.Hooks{}
	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		c.dropSession(ctx, session.SessionID())
	})

	mcpSrv := server.NewMCPServer(
		"worldscript",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithHooks(hooks),
		server.WithInstructions("Worldscript runs game action scripts. Use worldscript.join to act as a player, worldscript.execute to run an action graph, worldscript.schedule to defer one, worldscript.resolve to preview a parameter template, and worldscript.handlers / worldscript.queue to inspect the server."),
	)

	mcpSrv.AddTools(c.tools()...)
	c.mcpServer = mcpSrv
	return c
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (c *Console) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(c.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (c *Console) MCPServer() *server.MCPServer {
	return c.mcpServer
}

// Sessions returns the actor session table shared with the Messenger.
func (c *Console) Sessions() *SessionRegistry {
	return c.sessions
}

func (c *Console) dropSession(ctx context.Context, sessionID string) {
	for _, id := range c.sessions.Remove(sessionID) {
		if c.world != nil {
			c.world.Leave(id)
		}
		c.logger.InfoContext(ctx, "actor disconnected", slog.Uint64("actor_id", uint64(id)))
	}
}

func (c *Console) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: executeTool(), Handler: c.handleExecute},
		{Tool: scheduleTool(), Handler: c.handleSchedule},
		{Tool: resolveTool(), Handler: c.handleResolve},
		{Tool: handlersTool(), Handler: c.handleHandlers},
		{Tool: queueTool(), Handler: c.handleQueue},
		{Tool: joinTool(), Handler: c.handleJoin},
		{Tool: leaveTool(), Handler: c.handleLeave},
	}
}

// --- Tool definitions ---

func executeTool() mcp.Tool {
	return mcp.NewTool("worldscript.execute",
		mcp.WithDescription("Run an action graph from a start node"),
		mcp.WithNumber("action_id", mcp.Required(), mcp.Description("ID of the start node")),
		mcp.WithNumber("actor_id", mcp.Description("Connected actor to run as (default: none)")),
		mcp.WithString("input", mcp.Description("Free-form player input visible to conditions")),
	)
}

func scheduleTool() mcp.Tool {
	return mcp.NewTool("worldscript.schedule",
		mcp.WithDescription("Defer an action graph for later execution"),
		mcp.WithNumber("action_id", mcp.Required(), mcp.Description("ID of the start node")),
		mcp.WithNumber("delay_seconds", mcp.Required(), mcp.Description("Seconds from now; negative runs on the next tick")),
		mcp.WithNumber("target_id", mcp.Description("Actor whose context is rebuilt when it fires (default: none)")),
	)
}

func resolveTool() mcp.Tool {
	return mcp.NewTool("worldscript.resolve",
		mcp.WithDescription("Expand a parameter template against an actor"),
		mcp.WithString("template", mcp.Required(), mcp.Description("Template text with %tokens")),
		mcp.WithNumber("actor_id", mcp.Description("Connected actor to resolve against (default: none)")),
	)
}

func handlersTool() mcp.Tool {
	return mcp.NewTool("worldscript.handlers",
		mcp.WithDescription("List registered action types"),
	)
}

func queueTool() mcp.Tool {
	return mcp.NewTool("worldscript.queue",
		mcp.WithDescription("List deferred actions waiting to fire and dispatch counters per action"),
	)
}

func joinTool() mcp.Tool {
	return mcp.NewTool("worldscript.join",
		mcp.WithDescription("Connect this session as a player actor"),
		mcp.WithNumber("actor_id", mcp.Required(), mcp.Description("Actor ID (non-zero)")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Display name")),
		mcp.WithNumber("level", mcp.Description("Character level")),
		mcp.WithNumber("money", mcp.Description("Carried money")),
		mcp.WithNumber("map_id", mcp.Description("Current map")),
		mcp.WithNumber("x", mcp.Description("Map X coordinate")),
		mcp.WithNumber("y", mcp.Description("Map Y coordinate")),
	)
}

func leaveTool() mcp.Tool {
	return mcp.NewTool("worldscript.leave",
		mcp.WithDescription("Disconnect a player actor"),
		mcp.WithNumber("actor_id", mcp.Required(), mcp.Description("Actor ID")),
	)
}
