package actions

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/worldscript/pkg/schema"
)

type sentMessage struct {
	To      uint32
	Text    string
	Seconds int
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (m *fakeMessenger) Send(_ context.Context, to uint32, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{To: to, Text: text})
	return m.err
}

func (m *fakeMessenger) Progress(_ context.Context, to uint32, text string, seconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{To: to, Text: text, Seconds: seconds})
	return m.err
}

type cell struct{ a, b uint32 }

type fakeWorld struct {
	globals map[cell]int64
	strs    map[cell]string
	stats   map[cell]int64
	tasks   map[cell]int64
	err     error
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		globals: map[cell]int64{},
		strs:    map[cell]string{},
		stats:   map[cell]int64{},
		tasks:   map[cell]int64{},
	}
}

func (w *fakeWorld) GlobalInt(_ context.Context, d, i uint32) (int64, error) {
	return w.globals[cell{d, i}], w.err
}

func (w *fakeWorld) SetGlobalInt(_ context.Context, d, i uint32, v int64) error {
	w.globals[cell{d, i}] = v
	return w.err
}

func (w *fakeWorld) SetGlobalString(_ context.Context, d, i uint32, v string) error {
	w.strs[cell{d, i}] = v
	return w.err
}

func (w *fakeWorld) AddStat(_ context.Context, e, ty uint32, delta int64) (int64, error) {
	w.stats[cell{e, ty}] += delta
	return w.stats[cell{e, ty}], w.err
}

func (w *fakeWorld) SetTaskField(_ context.Context, task, field uint32, v int64) error {
	w.tasks[cell{task, field}] = v
	return w.err
}

type scheduledCall struct {
	Delay    int
	ActionID uint32
	Target   uint32
}

type fakeScheduler struct {
	calls []scheduledCall
	err   error
}

func (s *fakeScheduler) Schedule(_ context.Context, delay int, actionID, target uint32) (*schema.QueuedAction, error) {
	s.calls = append(s.calls, scheduledCall{delay, actionID, target})
	if s.err != nil {
		return nil, s.err
	}
	return &schema.QueuedAction{ID: "q", ActionID: actionID, TargetContextID: target}, nil
}

type fixedDice struct{ lastPercent int }

func (d *fixedDice) Chance(percent int) bool {
	d.lastPercent = percent
	return percent >= 50
}

type builtinRig struct {
	reg   *Registry
	msg   *fakeMessenger
	world *fakeWorld
	sched *fakeScheduler
	dice  *fixedDice
	logs  *bytes.Buffer
}

func newBuiltinRig(t *testing.T) *builtinRig {
	t.Helper()
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, nil))
	r := &builtinRig{
		reg:   NewRegistry(logger),
		msg:   &fakeMessenger{},
		world: newFakeWorld(),
		sched: &fakeScheduler{},
		dice:  &fixedDice{},
		logs:  logs,
	}
	require.NoError(t, RegisterBuiltins(r.reg, BuiltinDeps{
		Messenger: r.msg,
		World:     r.world,
		Scheduler: r.sched,
		Dice:      r.dice,
		Logger:    logger,
	}))
	return r
}

func (r *builtinRig) invoke(code int, data int64, param string, ec *schema.ExecutionContext) bool {
	return r.reg.Invoke(context.Background(), code, &schema.ActionNode{ID: 1, Type: code, Data: data}, param, ec)
}

func alice() *schema.ExecutionContext {
	return &schema.ExecutionContext{Actor: &schema.ActorRef{ID: 7, Name: "Alice", Level: 42, Money: 500}}
}

func TestRegisterBuiltins_All(t *testing.T) {
	r := newBuiltinRig(t)
	assert.Equal(t, 10, r.reg.Count())
	assert.True(t, r.reg.IsTerminal(TypeProgress))
	assert.False(t, r.reg.IsTerminal(TypeTalk))
}

func TestRegisterBuiltins_SkipsMissingDeps(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, RegisterBuiltins(reg, BuiltinDeps{}))

	assert.True(t, reg.Has(TypeCheck))
	assert.True(t, reg.Has(TypeLog))
	assert.False(t, reg.Has(TypeTalk))
	assert.False(t, reg.Has(TypeSchedule))
	assert.Equal(t, 2, reg.Count())
}

func TestBuiltin_Talk(t *testing.T) {
	r := newBuiltinRig(t)
	assert.True(t, r.invoke(TypeTalk, 0, "Hello Alice", alice()))
	assert.Equal(t, []sentMessage{{To: 7, Text: "Hello Alice"}}, r.msg.sent)

	assert.False(t, r.invoke(TypeTalk, 0, "nobody to hear", &schema.ExecutionContext{}), "talk needs an actor")
	assert.False(t, r.invoke(TypeTalk, 0, "nobody to hear", nil))

	r.msg.err = errors.New("connection reset")
	assert.False(t, r.invoke(TypeTalk, 0, "again", alice()))
}

func TestBuiltin_Progress(t *testing.T) {
	r := newBuiltinRig(t)
	assert.True(t, r.invoke(TypeProgress, 5, "Mining...", alice()))
	assert.Equal(t, sentMessage{To: 7, Text: "Mining...", Seconds: 5}, r.msg.sent[0])
}

func TestBuiltin_Check(t *testing.T) {
	r := newBuiltinRig(t)
	assert.True(t, r.invoke(TypeCheck, 0, "actor.level >= 40", alice()))
	assert.False(t, r.invoke(TypeCheck, 0, "actor.money >= 1000", alice()))
	assert.False(t, r.invoke(TypeCheck, 0, "actor.level >= 40", nil))

	assert.False(t, r.invoke(TypeCheck, 0, "actor.level >=", alice()))
	assert.Contains(t, r.logs.String(), `"handler":"check"`)
}

func TestBuiltin_Chance(t *testing.T) {
	r := newBuiltinRig(t)
	assert.True(t, r.invoke(TypeChance, 75, "", nil))
	assert.Equal(t, 75, r.dice.lastPercent)
	assert.False(t, r.invoke(TypeChance, 10, "", nil))
}

func TestBuiltin_ComputeGlobal(t *testing.T) {
	r := newBuiltinRig(t)
	r.world.globals[cell{1, 4}] = 10

	assert.True(t, r.invoke(TypeComputeGlobal, 0, "1 4 current + actor.level", alice()))
	assert.Equal(t, int64(52), r.world.globals[cell{1, 4}])

	assert.True(t, r.invoke(TypeComputeGlobal, 0, "2 0 max(current - 5, 0)", nil))
	assert.Equal(t, int64(0), r.world.globals[cell{2, 0}])
}

func TestBuiltin_ComputeGlobal_Malformed(t *testing.T) {
	r := newBuiltinRig(t)
	for _, p := range []string{"", "1", "1 4", "x 4 1+1", "1 4 1 +* 2"} {
		assert.False(t, r.invoke(TypeComputeGlobal, 0, p, nil), "param %q", p)
	}
	assert.Contains(t, r.logs.String(), schema.ErrCodeConfiguration)
}

func TestBuiltin_SetGlobalStr(t *testing.T) {
	r := newBuiltinRig(t)
	assert.True(t, r.invoke(TypeSetGlobalStr, 0, "3 1 Alice the Brave", alice()))
	assert.Equal(t, "Alice the Brave", r.world.strs[cell{3, 1}])
	assert.False(t, r.invoke(TypeSetGlobalStr, 0, "3", nil))
}

func TestBuiltin_AddStat(t *testing.T) {
	r := newBuiltinRig(t)
	assert.True(t, r.invoke(TypeAddStat, 0, "5 2 3", nil))
	assert.True(t, r.invoke(TypeAddStat, 0, "5 2 -1", nil))
	assert.Equal(t, int64(2), r.world.stats[cell{5, 2}])
	assert.False(t, r.invoke(TypeAddStat, 0, "5 2 lots", nil))

	r.world.err = errors.New("locked")
	assert.False(t, r.invoke(TypeAddStat, 0, "5 2 1", nil))
}

func TestBuiltin_SetTaskData(t *testing.T) {
	r := newBuiltinRig(t)
	assert.True(t, r.invoke(TypeSetTaskData, 0, "9 1 4", nil))
	assert.Equal(t, int64(4), r.world.tasks[cell{9, 1}])
	assert.False(t, r.invoke(TypeSetTaskData, 0, "9 1", nil))
}

func TestBuiltin_Schedule(t *testing.T) {
	r := newBuiltinRig(t)
	assert.True(t, r.invoke(TypeSchedule, 0, "2 10", alice()))
	assert.True(t, r.invoke(TypeSchedule, 0, "60 11", nil))
	assert.Equal(t, []scheduledCall{{2, 10, 7}, {60, 11, 0}}, r.sched.calls)

	for _, p := range []string{"", "2", "2 0", "soon 10", "2 10 extra"} {
		assert.False(t, r.invoke(TypeSchedule, 0, p, alice()), "param %q", p)
	}

	r.sched.err = schema.NewError(schema.ErrCodeSchedulerClosed, "stopped")
	assert.False(t, r.invoke(TypeSchedule, 0, "1 10", alice()))
}

func TestBuiltin_Log(t *testing.T) {
	r := newBuiltinRig(t)
	assert.True(t, r.invoke(TypeLog, 3, "dragon slain", alice()))
	assert.Contains(t, r.logs.String(), `"msg":"dragon slain"`)
	assert.Contains(t, r.logs.String(), `"source":"script"`)
}

func TestLeadingIDs(t *testing.T) {
	ids, rest, err := leadingIDs("  1   4  current + 1 ", 2)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 4}, ids)
	assert.Equal(t, "current + 1", rest)

	_, _, err = leadingIDs("1 -4 x", 2)
	assert.Error(t, err)
}

func TestWriterMessenger(t *testing.T) {
	buf := &bytes.Buffer{}
	m := NewWriterMessenger(buf)
	require.NoError(t, m.Send(context.Background(), 7, "hi"))
	require.NoError(t, m.Progress(context.Background(), 7, "wait", 3))
	assert.Equal(t, "[to 7] hi\n[to 7] wait (3s)\n", buf.String())
}

func TestLogMessenger(t *testing.T) {
	buf := &bytes.Buffer{}
	m := NewLogMessenger(slog.New(slog.NewJSONHandler(buf, nil)))
	require.NoError(t, m.Send(context.Background(), 7, "hi"))
	assert.Contains(t, buf.String(), `"to":7`)
	assert.Contains(t, buf.String(), `"text":"hi"`)
}
