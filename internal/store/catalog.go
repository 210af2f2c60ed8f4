package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/rendis/worldscript/pkg/schema"
)

// Catalog is the read-only, in-memory ActionStore used while the server
// runs. It is built once from authored content and never mutated, so
// concurrent lookups need no locking.
type Catalog struct {
	nodes map[uint32]schema.ActionNode
}

// NewCatalog builds a Catalog. Node ID 0 is reserved and duplicate IDs are
// rejected.
func NewCatalog(nodes []schema.ActionNode) (*Catalog, error) {
	c := &Catalog{nodes: make(map[uint32]schema.ActionNode, len(nodes))}
	for _, n := range nodes {
		if n.ID == 0 {
			return nil, schema.NewError(schema.ErrCodeValidation, "action id 0 is reserved")
		}
		if _, dup := c.nodes[n.ID]; dup {
			return nil, schema.NewErrorf(schema.ErrCodeConflict, "duplicate action id %d", n.ID)
		}
		c.nodes[n.ID] = n
	}
	return c, nil
}

// LoadCatalog snapshots every action held by src.
func LoadCatalog(ctx context.Context, src interface {
	ListActions(ctx context.Context) ([]schema.ActionNode, error)
}) (*Catalog, error) {
	nodes, err := src.ListActions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	return NewCatalog(nodes)
}

// GetAction returns a copy of the node so callers cannot mutate the catalog.
func (c *Catalog) GetAction(_ context.Context, id uint32) (*schema.ActionNode, error) {
	n, ok := c.nodes[id]
	if !ok {
		return nil, storeNotFound("action", id)
	}
	return &n, nil
}

// Len returns the number of nodes.
func (c *Catalog) Len() int {
	return len(c.nodes)
}

// IDs returns all node IDs in ascending order.
func (c *Catalog) IDs() []uint32 {
	ids := make([]uint32, 0, len(c.nodes))
	for id := range c.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

var _ ActionStore = (*Catalog)(nil)
