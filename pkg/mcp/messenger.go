package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/worldscript/internal/actions"
)

// notificationMethod is the MCP method actor messages are pushed on.
const notificationMethod = "notifications/message"

// sessionSender is the part of *server.MCPServer the messenger needs.
type sessionSender interface {
	SendNotificationToSpecificClient(sessionID string, method string, params map[string]any) error
}

// Messenger delivers actor text to the MCP session the actor joined from.
// Actors without a session go to the fallback messenger, if any.
type Messenger struct {
	sender   sessionSender
	sessions *SessionRegistry
	fallback actions.Messenger
}

// NewMessenger creates a Messenger pushing through the given server.
func NewMessenger(sender sessionSender, sessions *SessionRegistry, fallback actions.Messenger) *Messenger {
	return &Messenger{sender: sender, sessions: sessions, fallback: fallback}
}

func (m *Messenger) Send(ctx context.Context, actorID uint32, text string) error {
	return m.push(ctx, actorID, map[string]any{
		"kind":  "talk",
		"actor": actorID,
		"text":  text,
	}, func(f actions.Messenger) error { return f.Send(ctx, actorID, text) })
}

func (m *Messenger) Progress(ctx context.Context, actorID uint32, text string, seconds int) error {
	return m.push(ctx, actorID, map[string]any{
		"kind":    "progress",
		"actor":   actorID,
		"text":    text,
		"seconds": seconds,
	}, func(f actions.Messenger) error { return f.Progress(ctx, actorID, text, seconds) })
}

func (m *Messenger) push(_ context.Context, actorID uint32, payload map[string]any, fallback func(actions.Messenger) error) error {
	sessionID, ok := m.sessions.SessionFor(actorID)
	if !ok {
		if m.fallback != nil {
			return fallback(m.fallback)
		}
		return nil
	}
	err := m.sender.SendNotificationToSpecificClient(sessionID, notificationMethod, payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		// Session expired between lookup and send.
		m.sessions.Remove(sessionID)
		if m.fallback != nil {
			return fallback(m.fallback)
		}
		return nil
	}
	return err
}

var _ actions.Messenger = (*Messenger)(nil)
