package store

import (
	"context"

	"github.com/rendis/worldscript/pkg/schema"
)

// ActionStore looks up authored action nodes by ID.
// Implementations must be safe for concurrent reads.
type ActionStore interface {
	GetAction(ctx context.Context, id uint32) (*schema.ActionNode, error)
}

// QueueStore persists deferred actions so they survive a restart.
type QueueStore interface {
	SaveQueuedAction(ctx context.Context, qa *schema.QueuedAction) error
	DeleteQueuedAction(ctx context.Context, id string) error
	ListQueuedActions(ctx context.Context) ([]*schema.QueuedAction, error)
}

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	ActionStore
	QueueStore

	// Action content
	ImportActions(ctx context.Context, nodes []schema.ActionNode) (int, error)
	ListActions(ctx context.Context) ([]schema.ActionNode, error)

	// Event/stage counters
	Stat(ctx context.Context, event, typ uint32) (int64, error)
	SetStat(ctx context.Context, event, typ uint32, value int64) error
	AddStat(ctx context.Context, event, typ uint32, delta int64) (int64, error)

	// Dynamic globals
	GlobalInt(ctx context.Context, dataset, index uint32) (int64, error)
	GlobalString(ctx context.Context, dataset, index uint32) (string, error)
	SetGlobalInt(ctx context.Context, dataset, index uint32, value int64) error
	SetGlobalString(ctx context.Context, dataset, index uint32, value string) error

	// Per-task counters
	TaskField(ctx context.Context, task, field uint32) (int64, error)
	SetTaskField(ctx context.Context, task, field uint32, value int64) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
