package mcp

import "sync"

// SessionRegistry maps actor IDs to MCP session IDs.
// Populated when a client joins an actor through worldscript.join.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[uint32]string // actorID → sessionID
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[uint32]string)}
}

// Register associates an actor with a session. A rejoin overwrites.
func (r *SessionRegistry) Register(actorID uint32, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[actorID] = sessionID
}

// SessionFor returns the session ID for the given actor, if connected.
func (r *SessionRegistry) SessionFor(actorID uint32) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.sessions[actorID]
	return sid, ok
}

// Remove deletes all actor mappings for the given session ID and returns
// the actors that were bound to it.
func (r *SessionRegistry) Remove(sessionID string) []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var gone []uint32
	for aid, sid := range r.sessions {
		if sid == sessionID {
			delete(r.sessions, aid)
			gone = append(gone, aid)
		}
	}
	return gone
}
