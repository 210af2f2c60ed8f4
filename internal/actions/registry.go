package actions

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/rendis/worldscript/pkg/schema"
)

// Registry is the concrete thread-safe Dispatcher: a table from action type
// code to handler, filled once at startup.
type Registry struct {
	mu      sync.RWMutex
	entries map[int]*entry
	logger  *slog.Logger
}

// NewRegistry creates an empty Registry. A nil logger uses slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[int]*entry),
		logger:  logger,
	}
}

// Register binds a handler to a type code. Returns error on duplicate code.
func (r *Registry) Register(code int, name string, h Handler, opts ...Option) error {
	if h == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "handler for type %d is nil", code)
	}
	if name == "" {
		return schema.NewErrorf(schema.ErrCodeValidation, "handler name for type %d is empty", code)
	}

	e := &entry{name: name, handler: h}
	for _, opt := range opts {
		opt(e)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.entries[code]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "type %d already registered as %q", code, existing.name)
	}

	r.entries[code] = e
	return nil
}

// MustRegister is Register for startup tables; it panics on error.
func (r *Registry) MustRegister(code int, name string, h Handler, opts ...Option) {
	if err := r.Register(code, name, h, opts...); err != nil {
		panic(err)
	}
}

// Invoke runs the handler bound to code. Unregistered codes go to the
// default handler, which logs one diagnostic and reports failure. A
// panicking handler is recovered and reported as failure.
func (r *Registry) Invoke(ctx context.Context, code int, node *schema.ActionNode, param string, ec *schema.ExecutionContext) (ok bool) {
	r.mu.RLock()
	e, found := r.entries[code]
	r.mu.RUnlock()

	if !found {
		return r.unknown(ctx, code, node, ec)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "action handler panicked",
				slog.String("code", schema.ErrCodeHandlerFault),
				slog.Int("type", code),
				slog.String("handler", e.name),
				slog.Uint64("node_id", uint64(nodeID(node))),
				slog.String("panic", fmt.Sprint(rec)),
				slog.String("stack", string(debug.Stack())),
			)
			ok = false
		}
	}()

	return e.handler(ctx, node, param, ec)
}

func (r *Registry) unknown(ctx context.Context, code int, node *schema.ActionNode, ec *schema.ExecutionContext) bool {
	r.logger.WarnContext(ctx, "no handler for action type",
		slog.String("code", schema.ErrCodeUnknownType),
		slog.Int("type", code),
		slog.Uint64("node_id", uint64(nodeID(node))),
		slog.String("context", ec.Summary()),
	)
	return false
}

// IsTerminal reports whether code was registered with Terminal().
func (r *Registry) IsTerminal(code int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[code]
	return ok && e.terminal
}

// Has checks if a type code is registered.
func (r *Registry) Has(code int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[code]
	return ok
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// List returns info for all registered handlers, sorted by type code.
func (r *Registry) List() []HandlerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]HandlerInfo, 0, len(r.entries))
	for code, e := range r.entries {
		infos = append(infos, HandlerInfo{
			Code:        code,
			Name:        e.name,
			Description: e.description,
			Terminal:    e.terminal,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Code < infos[j].Code
	})
	return infos
}

func nodeID(n *schema.ActionNode) uint32 {
	if n == nil {
		return 0
	}
	return n.ID
}

var _ Dispatcher = (*Registry)(nil)
