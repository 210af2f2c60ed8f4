package actions

import (
	"context"

	"github.com/rendis/worldscript/pkg/schema"
)

// Handler performs the effect of one action type. It reports whether the
// effect succeeded, which selects the node's success or failure edge.
// Handlers null-check the context fields they depend on and should not panic;
// the registry recovers if they do.
type Handler func(ctx context.Context, node *schema.ActionNode, param string, ec *schema.ExecutionContext) bool

// Dispatcher is the registry contract the interpreter depends on.
type Dispatcher interface {
	Invoke(ctx context.Context, code int, node *schema.ActionNode, param string, ec *schema.ExecutionContext) bool
	IsTerminal(code int) bool
}

// HandlerInfo is a summary of a registered handler for listing.
type HandlerInfo struct {
	Code        int    `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Terminal    bool   `json:"terminal,omitempty"`
}

// Option configures a handler at registration.
type Option func(*entry)

// Terminal flags a type code as terminal by design: once its handler has
// run, the traversal ends successfully without following either edge.
func Terminal() Option {
	return func(e *entry) { e.terminal = true }
}

// Describe attaches a human-readable description.
func Describe(desc string) Option {
	return func(e *entry) { e.description = desc }
}

type entry struct {
	name        string
	description string
	terminal    bool
	handler     Handler
}
