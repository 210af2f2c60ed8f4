package actions

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/rendis/worldscript/internal/expressions"
	"github.com/rendis/worldscript/pkg/schema"
)

// Built-in type codes.
const (
	TypeTalk          = 101
	TypeProgress      = 126
	TypeCheck         = 1001
	TypeChance        = 1002
	TypeComputeGlobal = 1003
	TypeSetGlobalStr  = 1004
	TypeAddStat       = 1005
	TypeSetTaskData   = 1006
	TypeSchedule      = 1010
	TypeLog           = 1011
)

// Messenger delivers text to a connected actor.
type Messenger interface {
	Send(ctx context.Context, actorID uint32, text string) error
	Progress(ctx context.Context, actorID uint32, text string, seconds int) error
}

// WorldWriter is the persistent world state built-in handlers mutate.
// Satisfied by store.Store.
type WorldWriter interface {
	GlobalInt(ctx context.Context, dataset, index uint32) (int64, error)
	SetGlobalInt(ctx context.Context, dataset, index uint32, value int64) error
	SetGlobalString(ctx context.Context, dataset, index uint32, value string) error
	AddStat(ctx context.Context, event, typ uint32, delta int64) (int64, error)
	SetTaskField(ctx context.Context, task, field uint32, value int64) error
}

// Scheduler defers an action. Satisfied by *scheduler.Scheduler.
type Scheduler interface {
	Schedule(ctx context.Context, delaySeconds int, actionID, targetContextID uint32) (*schema.QueuedAction, error)
}

// Dice rolls percentage chances. Satisfied by *random.Source.
type Dice interface {
	Chance(percent int) bool
}

// BuiltinDeps are the collaborators of the built-in handler set. Handlers
// whose collaborator is nil are not registered.
type BuiltinDeps struct {
	Messenger Messenger
	World     WorldWriter
	Scheduler Scheduler
	Dice      Dice
	Logger    *slog.Logger
}

type builtins struct {
	deps BuiltinDeps
	cel  *expressions.CELEngine
	expr *expressions.ExprEngine
	log  *slog.Logger
}

// RegisterBuiltins registers the built-in handlers in the given registry.
func RegisterBuiltins(reg *Registry, deps BuiltinDeps) error {
	celEngine, err := expressions.NewCELEngine()
	if err != nil {
		return err
	}
	b := &builtins{deps: deps, cel: celEngine, expr: expressions.NewExprEngine(), log: deps.Logger}
	if b.log == nil {
		b.log = slog.Default()
	}

	type builtin struct {
		code int
		name string
		h    Handler
		opts []Option
		need bool
	}
	all := []builtin{
		{TypeTalk, "talk", b.talk, []Option{Describe("send the resolved text to the actor")}, deps.Messenger != nil},
		{TypeProgress, "progress", b.progress, []Option{Terminal(), Describe("show a timed progress notice; Data is seconds")}, deps.Messenger != nil},
		{TypeCheck, "check", b.check, []Option{Describe("CEL condition over actor, role, item and input")}, true},
		{TypeChance, "chance", b.chance, []Option{Describe("succeed with probability Data percent")}, deps.Dice != nil},
		{TypeComputeGlobal, "compute_global", b.computeGlobal, []Option{Describe(`"dataset index <expr>": store an expr result in a global cell`)}, deps.World != nil},
		{TypeSetGlobalStr, "set_global_str", b.setGlobalStr, []Option{Describe(`"dataset index text": store text in a global cell`)}, deps.World != nil},
		{TypeAddStat, "add_stat", b.addStat, []Option{Describe(`"event type delta": add to a counter`)}, deps.World != nil},
		{TypeSetTaskData, "set_task_data", b.setTaskData, []Option{Describe(`"task field value": set a task counter`)}, deps.World != nil},
		{TypeSchedule, "schedule", b.schedule, []Option{Describe(`"delaySeconds actionID": defer an action for this actor`)}, deps.Scheduler != nil},
		{TypeLog, "log", b.logText, []Option{Describe("write the resolved text to the server log")}, true},
	}

	for _, a := range all {
		if !a.need {
			continue
		}
		if err := reg.Register(a.code, a.name, a.h, a.opts...); err != nil {
			return err
		}
	}
	return nil
}

func (b *builtins) talk(ctx context.Context, _ *schema.ActionNode, param string, ec *schema.ExecutionContext) bool {
	id := ec.ContextID()
	if id == 0 {
		return false
	}
	if err := b.deps.Messenger.Send(ctx, id, param); err != nil {
		b.fail(ctx, "talk", err)
		return false
	}
	return true
}

func (b *builtins) progress(ctx context.Context, node *schema.ActionNode, param string, ec *schema.ExecutionContext) bool {
	id := ec.ContextID()
	if id == 0 {
		return false
	}
	if err := b.deps.Messenger.Progress(ctx, id, param, int(node.Data)); err != nil {
		b.fail(ctx, "progress", err)
		return false
	}
	return true
}

func (b *builtins) check(ctx context.Context, _ *schema.ActionNode, param string, ec *schema.ExecutionContext) bool {
	ok, err := b.cel.EvaluateBool(ctx, param, expressions.Bindings(ec))
	if err != nil {
		b.fail(ctx, "check", err)
		return false
	}
	return ok
}

func (b *builtins) chance(_ context.Context, node *schema.ActionNode, _ string, _ *schema.ExecutionContext) bool {
	return b.deps.Dice.Chance(int(node.Data))
}

func (b *builtins) computeGlobal(ctx context.Context, _ *schema.ActionNode, param string, ec *schema.ExecutionContext) bool {
	ids, rest, err := leadingIDs(param, 2)
	if err != nil || rest == "" {
		b.badParam(ctx, "compute_global", param)
		return false
	}
	current, err := b.deps.World.GlobalInt(ctx, ids[0], ids[1])
	if err != nil {
		b.fail(ctx, "compute_global", err)
		return false
	}

	data := expressions.Bindings(ec)
	data["current"] = current
	v, err := b.expr.EvaluateInt(ctx, rest, data)
	if err != nil {
		b.fail(ctx, "compute_global", err)
		return false
	}
	if err := b.deps.World.SetGlobalInt(ctx, ids[0], ids[1], v); err != nil {
		b.fail(ctx, "compute_global", err)
		return false
	}
	return true
}

func (b *builtins) setGlobalStr(ctx context.Context, _ *schema.ActionNode, param string, _ *schema.ExecutionContext) bool {
	ids, rest, err := leadingIDs(param, 2)
	if err != nil {
		b.badParam(ctx, "set_global_str", param)
		return false
	}
	if err := b.deps.World.SetGlobalString(ctx, ids[0], ids[1], rest); err != nil {
		b.fail(ctx, "set_global_str", err)
		return false
	}
	return true
}

func (b *builtins) addStat(ctx context.Context, _ *schema.ActionNode, param string, _ *schema.ExecutionContext) bool {
	ids, rest, err := leadingIDs(param, 2)
	if err != nil {
		b.badParam(ctx, "add_stat", param)
		return false
	}
	delta, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		b.badParam(ctx, "add_stat", param)
		return false
	}
	if _, err := b.deps.World.AddStat(ctx, ids[0], ids[1], delta); err != nil {
		b.fail(ctx, "add_stat", err)
		return false
	}
	return true
}

func (b *builtins) setTaskData(ctx context.Context, _ *schema.ActionNode, param string, _ *schema.ExecutionContext) bool {
	ids, rest, err := leadingIDs(param, 2)
	if err != nil {
		b.badParam(ctx, "set_task_data", param)
		return false
	}
	value, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		b.badParam(ctx, "set_task_data", param)
		return false
	}
	if err := b.deps.World.SetTaskField(ctx, ids[0], ids[1], value); err != nil {
		b.fail(ctx, "set_task_data", err)
		return false
	}
	return true
}

func (b *builtins) schedule(ctx context.Context, _ *schema.ActionNode, param string, ec *schema.ExecutionContext) bool {
	fields := strings.Fields(param)
	if len(fields) != 2 {
		b.badParam(ctx, "schedule", param)
		return false
	}
	delay, err := strconv.Atoi(fields[0])
	if err != nil {
		b.badParam(ctx, "schedule", param)
		return false
	}
	actionID, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil || actionID == 0 {
		b.badParam(ctx, "schedule", param)
		return false
	}
	if _, err := b.deps.Scheduler.Schedule(ctx, delay, uint32(actionID), ec.ContextID()); err != nil {
		b.fail(ctx, "schedule", err)
		return false
	}
	return true
}

func (b *builtins) logText(ctx context.Context, node *schema.ActionNode, param string, ec *schema.ExecutionContext) bool {
	b.log.InfoContext(ctx, param,
		slog.String("source", "script"),
		slog.String("context", ec.Summary()),
		slog.Int64("data", node.Data),
	)
	return true
}

func (b *builtins) badParam(ctx context.Context, handler, param string) {
	b.log.WarnContext(ctx, "malformed handler parameter",
		slog.String("code", schema.ErrCodeConfiguration),
		slog.String("handler", handler),
		slog.String("param", param),
	)
}

func (b *builtins) fail(ctx context.Context, handler string, err error) {
	b.log.WarnContext(ctx, "handler failed",
		slog.String("handler", handler),
		slog.String("error", err.Error()),
	)
}

// leadingIDs parses n unsigned IDs off the front of param and returns them
// with the trimmed remainder.
func leadingIDs(param string, n int) ([]uint32, string, error) {
	ids := make([]uint32, 0, n)
	rest := strings.TrimSpace(param)
	for i := 0; i < n; i++ {
		head, tail, _ := strings.Cut(rest, " ")
		v, err := strconv.ParseUint(head, 10, 32)
		if err != nil {
			return nil, "", err
		}
		ids = append(ids, uint32(v))
		rest = strings.TrimSpace(tail)
	}
	return ids, rest, nil
}
