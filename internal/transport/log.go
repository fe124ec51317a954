package transport

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogClient writes messages to the logger instead of a provider. Every send
// succeeds with a generated id.
type LogClient struct {
	name   string
	logger *slog.Logger
}

// NewLogClient creates a log-only client. name labels the log lines.
func NewLogClient(name string, logger *slog.Logger) *LogClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogClient{name: name, logger: logger}
}

// Send logs msg and returns a synthetic id.
func (c *LogClient) Send(ctx context.Context, msg Message) (string, error) {
	id := "log-" + uuid.NewString()
	c.logger.Info("Message sent to log transport",
		"transport", c.name, "id", id, "to", msg.To, "subject", msg.Subject, "body", msg.Body)
	return id, nil
}
