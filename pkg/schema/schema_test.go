package schema

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestActionNode_Edge(t *testing.T) {
	n := &ActionNode{ID: 1, Next: 2, Fail: 3}
	assert.Equal(t, uint32(2), n.Edge(true))
	assert.Equal(t, uint32(3), n.Edge(false))

	leaf := &ActionNode{ID: 4}
	assert.Zero(t, leaf.Edge(true))
	assert.Zero(t, leaf.Edge(false))
}

func TestQueuedAction_Due(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	qa := &QueuedAction{DueAt: now}
	assert.True(t, qa.Due(now))
	assert.True(t, qa.Due(now.Add(time.Millisecond)))
	assert.False(t, qa.Due(now.Add(-time.Millisecond)))
}

func TestExecutionContext_ContextID(t *testing.T) {
	var nilCtx *ExecutionContext
	assert.Zero(t, nilCtx.ContextID())
	assert.Zero(t, (&ExecutionContext{Role: &RoleRef{ID: 5}}).ContextID())
	assert.Equal(t, uint32(7), (&ExecutionContext{Actor: &ActorRef{ID: 7}}).ContextID())
}

func TestExecutionContext_Summary(t *testing.T) {
	var nilCtx *ExecutionContext
	assert.Equal(t, "actor=- role=- item=-", nilCtx.Summary())

	ec := &ExecutionContext{
		Actor: &ActorRef{ID: 7},
		Item:  &ItemRef{ID: 90},
	}
	assert.Equal(t, "actor=7 role=- item=90", ec.Summary())
}

func TestScriptError_Format(t *testing.T) {
	err := NewError(ErrCodeDeadlock, "node repeated")
	assert.Equal(t, "[DEADLOCK] node repeated", err.Error())

	err.WithAction(12)
	assert.Equal(t, "[DEADLOCK] action 12: node repeated", err.Error())

	assert.Equal(t, "[NOT_FOUND] action 3 missing", NewErrorf(ErrCodeNotFound, "action %d missing", 3).Error())
}

func TestScriptError_CauseAndCode(t *testing.T) {
	cause := errors.New("disk full")
	err := NewError(ErrCodeStore, "save").WithCause(cause).WithDetails(map[string]any{"table": "queued_actions"})
	wrapped := fmt.Errorf("schedule: %w", err)

	assert.ErrorIs(t, wrapped, cause)
	assert.True(t, IsCode(wrapped, ErrCodeStore))
	assert.False(t, IsCode(wrapped, ErrCodeNotFound))
	assert.False(t, IsCode(cause, ErrCodeStore))
	assert.Equal(t, "queued_actions", err.Details["table"])
}
