package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/rendis/worldscript/internal/store"
	"github.com/rendis/worldscript/pkg/schema"
)

// Runner is the interface the scheduler uses to re-enter the interpreter.
// Satisfied by *engine.Interpreter.
type Runner interface {
	Execute(ctx context.Context, actionID uint32, ec *schema.ExecutionContext) bool
}

// ContextSource rebuilds the execution context for a target ID at fire time.
type ContextSource interface {
	ContextFor(ctx context.Context, id uint32) (*schema.ExecutionContext, bool)
}

// WorldEvent is a recurring, actorless trigger on a cron schedule.
type WorldEvent struct {
	Name     string `yaml:"name" json:"name"`
	Cron     string `yaml:"cron" json:"cron"`
	ActionID uint32 `yaml:"action_id" json:"action_id"`
}

// Options tunes a Scheduler. The zero value runs an in-memory queue with a
// single dispatch worker.
type Options struct {
	// Queue persists one-shot actions. Nil keeps them in memory only.
	Queue    store.QueueStore
	PoolSize int
	Events   []WorldEvent
	// Now overrides the clock.
	Now func() time.Time
}

// Scheduler holds deferred actions until they are due and then runs each
// one through the Runner on its own pool slot, away from the caller's stack.
type Scheduler struct {
	runner   Runner
	contexts ContextSource
	queue    store.QueueStore
	pool     *Pool
	retry    retryPolicy
	parser   cron.Parser
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	items  dueQueue
	seq    uint64
	events map[string]WorldEvent
	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// New creates a Scheduler. World event cron expressions are validated here.
func New(runner Runner, contexts ContextSource, logger *slog.Logger, opts Options) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Scheduler{
		runner:   runner,
		contexts: contexts,
		queue:    opts.Queue,
		retry:    defaultRetry,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger:   logger,
		now:      opts.Now,
		events:   make(map[string]WorldEvent, len(opts.Events)),
		wake:     make(chan struct{}, 1),
	}
	s.pool = NewPool(opts.PoolSize, func(label string, r any) {
		logger.Error("queued traversal panicked",
			slog.String("code", schema.ErrCodeHandlerFault),
			slog.String("dispatch", label),
			slog.Any("panic", r),
		)
	})
	for _, ev := range opts.Events {
		if ev.Name == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "world event name is required")
		}
		if ev.ActionID == 0 {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "world event %q has no action", ev.Name)
		}
		if _, dup := s.events[ev.Name]; dup {
			return nil, schema.NewErrorf(schema.ErrCodeConflict, "duplicate world event %q", ev.Name)
		}
		if _, err := s.CalculateNextRun(ev.Cron, s.now()); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "world event %q: %s", ev.Name, err.Error()).WithCause(err)
		}
		s.events[ev.Name] = ev
	}
	return s, nil
}

// MaxDelaySeconds is the longest delay that still fits a time.Duration.
const MaxDelaySeconds = math.MaxInt64 / int64(time.Second)

// Schedule enqueues actionID to run against targetContextID once
// delaySeconds have elapsed. Negative delays count as zero and delays above
// MaxDelaySeconds are rejected. When a queue store is configured the action
// is persisted before Schedule returns.
func (s *Scheduler) Schedule(ctx context.Context, delaySeconds int, actionID, targetContextID uint32) (*schema.QueuedAction, error) {
	if actionID == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "cannot schedule action 0")
	}
	if delaySeconds < 0 {
		delaySeconds = 0
	}
	if int64(delaySeconds) > MaxDelaySeconds {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "delay of %d seconds exceeds the maximum of %d", delaySeconds, MaxDelaySeconds)
	}
	qa := &schema.QueuedAction{
		ID:              uuid.NewString(),
		DelaySeconds:    delaySeconds,
		ActionID:        actionID,
		TargetContextID: targetContextID,
		DueAt:           s.now().Add(time.Duration(delaySeconds) * time.Second).UTC(),
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, schema.NewError(schema.ErrCodeSchedulerClosed, "scheduler is stopped")
	}

	if s.queue != nil {
		if err := s.queue.SaveQueuedAction(ctx, qa); err != nil {
			return nil, fmt.Errorf("persist queued action: %w", err)
		}
	}

	s.enqueue(qa)
	s.logger.DebugContext(ctx, "action scheduled",
		slog.String("queued_id", qa.ID),
		slog.Uint64("action_id", uint64(actionID)),
		slog.Uint64("target_context_id", uint64(targetContextID)),
		slog.Int("delay_seconds", delaySeconds),
	)
	return qa, nil
}

func (s *Scheduler) enqueue(qa *schema.QueuedAction) {
	s.mu.Lock()
	s.seq++
	s.items.push(qa, s.seq)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start recovers persisted actions, arms world events and launches the
// dispatch loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return schema.NewError(schema.ErrCodeSchedulerClosed, "scheduler is stopped")
	}
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	recovered, err := s.recover(ctx)
	if err != nil {
		cancel()
		close(s.done)
		return err
	}
	s.armEvents(s.now())

	go s.loop(loopCtx)
	s.logger.Info("scheduler started",
		slog.Int("recovered", recovered),
		slog.Int("world_events", len(s.events)),
	)
	return nil
}

// recover loads actions persisted by an earlier run. Overdue ones fire on
// the first pass of the loop.
func (s *Scheduler) recover(ctx context.Context) (int, error) {
	if s.queue == nil {
		return 0, nil
	}
	pending, err := s.queue.ListQueuedActions(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover queued actions: %w", err)
	}
	for _, qa := range pending {
		s.enqueue(qa)
	}
	return len(pending), nil
}

func (s *Scheduler) armEvents(from time.Time) {
	names := make([]string, 0, len(s.events))
	for name := range s.events {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.armEvent(s.events[name], from)
	}
}

func (s *Scheduler) armEvent(ev WorldEvent, from time.Time) {
	next, err := s.CalculateNextRun(ev.Cron, from)
	if err != nil {
		s.logger.Error("failed to arm world event",
			slog.String("event", ev.Name),
			slog.String("error", err.Error()),
		)
		return
	}
	s.enqueue(&schema.QueuedAction{
		ID:        uuid.NewString(),
		ActionID:  ev.ActionID,
		DueAt:     next.UTC(),
		Recurring: ev.Name,
	})
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.fireDue(ctx, s.now())

		wait := time.Hour
		s.mu.Lock()
		if next := s.items.peek(); next != nil {
			wait = next.DueAt.Sub(s.now())
		}
		s.mu.Unlock()
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}
	}
}

// fireDue pops every action due at now and hands it to the pool. It returns
// how many were dispatched. Recurring world events are re-armed as they pop.
func (s *Scheduler) fireDue(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	var due []*schema.QueuedAction
	for {
		next := s.items.peek()
		if next == nil || !next.Due(now) {
			break
		}
		due = append(due, s.items.pop())
	}
	s.mu.Unlock()

	// Re-arm every recurring event up front so none is lost if dispatch
	// stops partway through the batch.
	for _, qa := range due {
		if qa.Recurring == "" {
			continue
		}
		if ev, ok := s.events[qa.Recurring]; ok {
			s.armEvent(ev, now)
		}
	}

	fired := 0
	for i, qa := range due {
		// Traversals outlive the loop context so Stop never cuts one short.
		if err := s.pool.Submit(ctx, dispatchLabel(qa), func(ctx context.Context) bool {
			return s.run(context.WithoutCancel(ctx), qa)
		}); err != nil {
			s.logger.Warn("dispatch of due actions interrupted",
				slog.Int("remaining", len(due)-i),
				slog.String("error", err.Error()),
			)
			for _, rest := range due[i:] {
				if rest.Recurring == "" {
					s.enqueue(rest)
				}
			}
			break
		}
		fired++
	}
	return fired
}

func (s *Scheduler) run(ctx context.Context, qa *schema.QueuedAction) bool {
	ec := s.contextFor(ctx, qa.TargetContextID)
	ok := s.runner.Execute(ctx, qa.ActionID, ec)

	if qa.Recurring == "" && s.queue != nil {
		err := s.retry.do(ctx, func() error {
			return s.queue.DeleteQueuedAction(ctx, qa.ID)
		})
		if err != nil {
			s.logger.Error("failed to delete fired action",
				slog.String("queued_id", qa.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Debug("queued action fired",
		slog.String("queued_id", qa.ID),
		slog.Uint64("action_id", uint64(qa.ActionID)),
		slog.String("event", qa.Recurring),
		slog.Bool("ok", ok),
	)
	return ok
}

// contextFor rebuilds the target context. Target 0 and targets that are
// gone both run with an empty, actorless context.
func (s *Scheduler) contextFor(ctx context.Context, id uint32) *schema.ExecutionContext {
	if id == 0 || s.contexts == nil {
		return &schema.ExecutionContext{}
	}
	ec, ok := s.contexts.ContextFor(ctx, id)
	if !ok || ec == nil {
		s.logger.Debug("target context gone, running actorless",
			slog.Uint64("target_context_id", uint64(id)),
		)
		return &schema.ExecutionContext{}
	}
	return ec
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Pending returns a snapshot of queued actions, earliest first.
func (s *Scheduler) Pending() []schema.QueuedAction {
	s.mu.Lock()
	out := make([]schema.QueuedAction, 0, len(s.items))
	for _, e := range s.items {
		out = append(out, *e.qa)
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out
}

// Metrics returns the dispatch pool counters.
func (s *Scheduler) Metrics() PoolMetrics {
	return s.pool.Metrics()
}

// Stop halts the loop and waits for running traversals. Queued actions that
// have not fired stay persisted. Stop is idempotent.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	s.pool.Shutdown()

	s.logger.Info("scheduler stopped")
	return nil
}
