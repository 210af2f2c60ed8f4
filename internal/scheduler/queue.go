package scheduler

import (
	"container/heap"

	"github.com/rendis/worldscript/pkg/schema"
)

type entry struct {
	qa  *schema.QueuedAction
	seq uint64
}

// dueQueue is a min-heap on DueAt. Equal due times pop in insertion order.
type dueQueue []entry

func (q dueQueue) Len() int { return len(q) }

func (q dueQueue) Less(i, j int) bool {
	if q[i].qa.DueAt.Equal(q[j].qa.DueAt) {
		return q[i].seq < q[j].seq
	}
	return q[i].qa.DueAt.Before(q[j].qa.DueAt)
}

func (q dueQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *dueQueue) Push(x any) { *q = append(*q, x.(entry)) }

func (q *dueQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = entry{}
	*q = old[:n-1]
	return e
}

func (q *dueQueue) push(qa *schema.QueuedAction, seq uint64) {
	heap.Push(q, entry{qa: qa, seq: seq})
}

func (q *dueQueue) pop() *schema.QueuedAction {
	return heap.Pop(q).(entry).qa
}

func (q dueQueue) peek() *schema.QueuedAction {
	if len(q) == 0 {
		return nil
	}
	return q[0].qa
}
