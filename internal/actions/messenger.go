package actions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// LogMessenger delivers actor messages as log records. It stands in for the
// network layer when the server runs headless.
type LogMessenger struct {
	logger *slog.Logger
}

// NewLogMessenger creates a LogMessenger. A nil logger uses slog.Default().
func NewLogMessenger(logger *slog.Logger) *LogMessenger {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMessenger{logger: logger}
}

func (m *LogMessenger) Send(ctx context.Context, actorID uint32, text string) error {
	m.logger.InfoContext(ctx, "message to actor",
		slog.Uint64("to", uint64(actorID)),
		slog.String("text", text),
	)
	return nil
}

func (m *LogMessenger) Progress(ctx context.Context, actorID uint32, text string, seconds int) error {
	m.logger.InfoContext(ctx, "progress to actor",
		slog.Uint64("to", uint64(actorID)),
		slog.String("text", text),
		slog.Int("seconds", seconds),
	)
	return nil
}

// WriterMessenger prints actor messages as lines, one per message.
type WriterMessenger struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterMessenger(w io.Writer) *WriterMessenger {
	return &WriterMessenger{w: w}
}

func (m *WriterMessenger) Send(_ context.Context, actorID uint32, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := fmt.Fprintf(m.w, "[to %d] %s\n", actorID, text)
	return err
}

func (m *WriterMessenger) Progress(_ context.Context, actorID uint32, text string, seconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := fmt.Fprintf(m.w, "[to %d] %s (%ds)\n", actorID, text, seconds)
	return err
}

var (
	_ Messenger = (*LogMessenger)(nil)
	_ Messenger = (*WriterMessenger)(nil)
)
