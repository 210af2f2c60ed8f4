package scheduler

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"

	"github.com/rendis/worldscript/pkg/schema"
)

// ErrPoolShutdown is returned when work is submitted to a shut-down pool.
var ErrPoolShutdown = errors.New("dispatch pool is shut down")

// DispatchStats counts traversal outcomes for one dispatch label.
type DispatchStats struct {
	Label     string `json:"label"`
	Succeeded int64  `json:"succeeded"`
	Failed    int64  `json:"failed"`
	Panics    int64  `json:"panics"`
}

// PoolMetrics is a snapshot of dispatch counters. ByLabel is sorted by label.
type PoolMetrics struct {
	Active    int64           `json:"active"`
	Succeeded int64           `json:"succeeded"`
	Failed    int64           `json:"failed"`
	Panics    int64           `json:"panics"`
	ByLabel   []DispatchStats `json:"by_label,omitempty"`
}

// PanicFunc observes a traversal that panicked inside the pool.
type PanicFunc func(label string, recovered any)

// Pool bounds how many fired actions run their traversals at once and keeps
// outcome counters per dispatch label (see dispatchLabel).
type Pool struct {
	sem     chan struct{}
	wg      sync.WaitGroup
	onPanic PanicFunc

	mu     sync.Mutex
	active int64
	total  DispatchStats
	labels map[string]*DispatchStats
	done   chan struct{}
	closed bool
}

// NewPool creates a pool with the given max concurrency. onPanic may be nil.
func NewPool(size int, onPanic PanicFunc) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		sem:     make(chan struct{}, size),
		onPanic: onPanic,
		labels:  make(map[string]*DispatchStats),
		done:    make(chan struct{}),
	}
}

// dispatchLabel names what a queued action is for the metrics: the world
// event name for recurring triggers, the start action id otherwise.
func dispatchLabel(qa *schema.QueuedAction) string {
	if qa.Recurring != "" {
		return "event:" + qa.Recurring
	}
	return "action:" + strconv.FormatUint(uint64(qa.ActionID), 10)
}

// Submit hands a traversal to the pool under label. It blocks while the pool
// is full and gives up when ctx is cancelled or the pool shuts down. The bool
// returned by fn is the traversal outcome and only feeds the metrics.
func (p *Pool) Submit(ctx context.Context, label string, fn func(ctx context.Context) bool) error {
	select {
	case <-p.done:
		return ErrPoolShutdown
	default:
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPoolShutdown
	}

	// wg.Add happens under the lock so Shutdown cannot slip between the
	// closed check and the Add.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.sem
		return ErrPoolShutdown
	}
	p.wg.Add(1)
	p.active++
	p.mu.Unlock()

	go func() {
		ok, panicked := false, false
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				if p.onPanic != nil {
					p.onPanic(label, r)
				}
			}
			p.record(label, ok, panicked)
			<-p.sem
			p.wg.Done()
		}()
		ok = fn(ctx)
	}()

	return nil
}

func (p *Pool) record(label string, ok, panicked bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.active--
	st, found := p.labels[label]
	if !found {
		st = &DispatchStats{Label: label}
		p.labels[label] = st
	}
	for _, c := range []*DispatchStats{&p.total, st} {
		switch {
		case ok:
			c.Succeeded++
		case panicked:
			c.Panics++
			c.Failed++
		default:
			c.Failed++
		}
	}
}

// Wait blocks until all submitted work completes.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Shutdown rejects new submissions and waits for running traversals.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}

// Metrics returns a snapshot of the counters.
func (p *Pool) Metrics() PoolMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := PoolMetrics{
		Active:    p.active,
		Succeeded: p.total.Succeeded,
		Failed:    p.total.Failed,
		Panics:    p.total.Panics,
	}
	for _, st := range p.labels {
		m.ByLabel = append(m.ByLabel, *st)
	}
	sort.Slice(m.ByLabel, func(i, j int) bool { return m.ByLabel[i].Label < m.ByLabel[j].Label })
	return m
}
