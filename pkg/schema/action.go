package schema

import "time"

// ActionNode is one entry of an action script graph. Nodes are authored
// content: loaded once at startup and never mutated by the interpreter.
// ID 0 is reserved as the terminal "no edge" sentinel.
type ActionNode struct {
	ID    uint32 `json:"id"`
	Type  int    `json:"type"`
	Data  int64  `json:"data,omitempty"`
	Param string `json:"param,omitempty"`
	Next  uint32 `json:"next,omitempty"` // followed when the handler succeeds
	Fail  uint32 `json:"fail,omitempty"` // followed when the handler fails
}

// Edge returns the node to visit after a handler reported ok.
func (n *ActionNode) Edge(ok bool) uint32 {
	if ok {
		return n.Next
	}
	return n.Fail
}

// QueuedAction is a deferred re-entry into the interpreter.
// It is consumed exactly once when due, then discarded.
type QueuedAction struct {
	ID              string    `json:"id"`
	DelaySeconds    int       `json:"delay_seconds"`
	ActionID        uint32    `json:"action_id"`
	TargetContextID uint32    `json:"target_context_id"`
	DueAt           time.Time `json:"due_at"`
	Recurring       string    `json:"recurring,omitempty"` // world event name, re-armed after firing
}

// Due reports whether the action may fire at now.
func (q *QueuedAction) Due(now time.Time) bool {
	return !q.DueAt.After(now)
}
