package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rendis/worldscript/internal/actions"
	"github.com/rendis/worldscript/internal/logging"
	"github.com/rendis/worldscript/internal/store"
	"github.com/rendis/worldscript/pkg/schema"
)

const (
	// DefaultMaxSteps bounds the node visits of one traversal.
	DefaultMaxSteps = 64
	// DefaultDeadlockThreshold bounds consecutive visits to the same node.
	DefaultDeadlockThreshold = 5
)

const tracerName = "github.com/rendis/worldscript/internal/engine"

// Config holds the traversal guards. Zero values fall back to the defaults.
type Config struct {
	MaxSteps          int
	DeadlockThreshold int
}

// Resolver expands parameter templates before dispatch.
type Resolver interface {
	Resolve(ctx context.Context, template string, ec *schema.ExecutionContext) string
}

// Result describes one finished traversal.
type Result struct {
	OK          bool
	Steps       int
	Invocations int
	// Path lists the node IDs whose handlers ran, in order.
	Path []uint32
	// Err is set when a guard aborted the traversal.
	Err error
}

// Interpreter walks action graphs. It holds no per-traversal state and is
// safe for concurrent use.
type Interpreter struct {
	store    store.ActionStore
	resolver Resolver
	handlers actions.Dispatcher
	logger   *slog.Logger
	tracer   trace.Tracer
	maxSteps int
	deadlock int
}

// NewInterpreter wires an interpreter over a node store, a resolver and a
// handler table.
func NewInterpreter(cfg Config, st store.ActionStore, resolver Resolver, handlers actions.Dispatcher, logger *slog.Logger) *Interpreter {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.DeadlockThreshold <= 0 {
		cfg.DeadlockThreshold = DefaultDeadlockThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{
		store:    st,
		resolver: resolver,
		handlers: handlers,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		maxSteps: cfg.MaxSteps,
		deadlock: cfg.DeadlockThreshold,
	}
}

// Execute runs the graph starting at startID and reports whether it ended
// normally. Guard aborts, missing nodes and cancellation return false.
func (in *Interpreter) Execute(ctx context.Context, startID uint32, ec *schema.ExecutionContext) bool {
	return in.Run(ctx, startID, ec).OK
}

// Run is Execute with the full traversal record.
func (in *Interpreter) Run(ctx context.Context, startID uint32, ec *schema.ExecutionContext) *Result {
	res := &Result{}
	if startID == 0 {
		return res
	}

	traversalID := uuid.NewString()
	ctx = logging.WithTraversalID(ctx, traversalID)
	if actor := ec.ContextID(); actor != 0 {
		ctx = logging.WithActorID(ctx, actor)
	}

	ctx, span := in.tracer.Start(ctx, "asi.execute", trace.WithAttributes(
		attribute.String("asi.traversal_id", traversalID),
		attribute.Int64("asi.start_id", int64(startID)),
	))
	defer func() {
		span.SetAttributes(
			attribute.Bool("asi.ok", res.OK),
			attribute.Int("asi.steps", res.Steps),
			attribute.Int("asi.invocations", res.Invocations),
		)
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
		}
		span.End()
	}()

	current := startID
	var lastID uint32
	repeat := 0

	for current != 0 {
		if err := ctx.Err(); err != nil {
			return in.abort(ctx, res, slog.LevelWarn,
				schema.NewError(schema.ErrCodeCancelled, "traversal cancelled").WithAction(current).WithCause(err))
		}

		res.Steps++
		if res.Steps > in.maxSteps {
			return in.abort(ctx, res, slog.LevelError,
				schema.NewErrorf(schema.ErrCodeRunawayGraph, "step limit %d exceeded", in.maxSteps).WithAction(current))
		}

		if current == lastID {
			repeat++
		} else {
			repeat = 0
		}
		lastID = current
		if repeat >= in.deadlock {
			return in.abort(ctx, res, slog.LevelError,
				schema.NewErrorf(schema.ErrCodeDeadlock, "node visited %d times in a row", repeat+1).WithAction(current))
		}

		node, err := in.store.GetAction(ctx, current)
		if err != nil {
			return in.abort(ctx, res, slog.LevelError, fetchError(current, err))
		}

		stepCtx := logging.WithActionID(ctx, node.ID)
		param := in.resolver.Resolve(stepCtx, node.Param, ec)
		ok := in.handlers.Invoke(stepCtx, node.Type, node, param, ec)
		res.Invocations++
		res.Path = append(res.Path, node.ID)

		in.logger.DebugContext(stepCtx, "action step",
			slog.Int("type", node.Type),
			slog.Bool("ok", ok),
			slog.Int("step", res.Steps),
		)

		if in.handlers.IsTerminal(node.Type) {
			break
		}
		current = node.Edge(ok)
	}

	res.OK = true
	return res
}

func (in *Interpreter) abort(ctx context.Context, res *Result, level slog.Level, err *schema.ScriptError) *Result {
	res.OK = false
	res.Err = err
	in.logger.Log(ctx, level, "traversal aborted",
		slog.String("code", err.Code),
		slog.Uint64("node_id", uint64(err.ActionID)),
		slog.Int("steps", res.Steps),
		slog.String("error", err.Error()),
	)
	return res
}

func fetchError(id uint32, err error) *schema.ScriptError {
	var se *schema.ScriptError
	switch {
	case errors.As(err, &se) && se.Code == schema.ErrCodeNotFound:
		return schema.NewErrorf(schema.ErrCodeConfiguration, "action node %d not found", id).WithAction(id).WithCause(err)
	case se != nil:
		return schema.NewErrorf(se.Code, "fetch action node %d", id).WithAction(id).WithCause(err)
	default:
		return schema.NewErrorf(schema.ErrCodeStore, "fetch action node %d", id).WithAction(id).WithCause(err)
	}
}
