package schema

import (
	"fmt"
	"strings"
)

// Position locates an entity on a map.
type Position struct {
	MapID   uint32 `json:"map_id"`
	MapName string `json:"map_name,omitempty"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
}

// ActorRef is an attribute snapshot of the player character a script runs for.
type ActorRef struct {
	ID         uint32   `json:"id"`
	Name       string   `json:"name"`
	Level      int      `json:"level"`
	Profession int      `json:"profession,omitempty"`
	Money      int64    `json:"money,omitempty"`
	EMoney     int64    `json:"emoney,omitempty"`
	Mate       string   `json:"mate,omitempty"`
	Position   Position `json:"position"`
}

// RoleRef is a world entity taking part in the script: an NPC, a dynamic
// NPC or a map trigger.
type RoleRef struct {
	ID       uint32   `json:"id"`
	Name     string   `json:"name"`
	Kind     string   `json:"kind,omitempty"`
	Position Position `json:"position"`
}

// ItemRef is the item a script was triggered by, if any.
type ItemRef struct {
	ID         uint32 `json:"id"`
	Type       uint32 `json:"type"`
	Amount     int    `json:"amount,omitempty"`
	Durability int    `json:"durability,omitempty"`
}

// ExecutionContext bundles everything a single traversal may read.
// Every field is optional; handlers null-check what they depend on.
type ExecutionContext struct {
	Actor *ActorRef `json:"actor,omitempty"`
	Role  *RoleRef  `json:"role,omitempty"`
	Item  *ItemRef  `json:"item,omitempty"`
	Input string    `json:"input,omitempty"` // free-form text typed by the player
}

// ContextID returns the key used to rebuild this context later: the actor
// ID, or 0 for world-scoped (actorless) contexts.
func (c *ExecutionContext) ContextID() uint32 {
	if c == nil || c.Actor == nil {
		return 0
	}
	return c.Actor.ID
}

// Summary renders the context for diagnostics.
func (c *ExecutionContext) Summary() string {
	if c == nil {
		return "actor=- role=- item=-"
	}
	var b strings.Builder
	if c.Actor != nil {
		fmt.Fprintf(&b, "actor=%d", c.Actor.ID)
	} else {
		b.WriteString("actor=-")
	}
	if c.Role != nil {
		fmt.Fprintf(&b, " role=%d", c.Role.ID)
	} else {
		b.WriteString(" role=-")
	}
	if c.Item != nil {
		fmt.Fprintf(&b, " item=%d", c.Item.ID)
	} else {
		b.WriteString(" item=-")
	}
	return b.String()
}
