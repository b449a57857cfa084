// Package logging builds the slog loggers used by the harness and routes
// testcontainers output through them.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tclog "github.com/testcontainers/testcontainers-go/log"
)

type testcontainersLogger struct {
	logger *slog.Logger
}

func NewTestcontainersAdapter(logger *slog.Logger) tclog.Logger {
	return &testcontainersLogger{logger: logger}
}

// Printf maps the emoji prefixes testcontainers uses onto slog levels. Container
// lifecycle chatter goes to debug.
func (s *testcontainersLogger) Printf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if strings.Contains(msg, "Connected to docker:") {
		return
	}
	ctx := context.Background()
	switch {
	case strings.HasPrefix(format, "❌"):
		s.logger.ErrorContext(ctx, msg)
	case strings.HasPrefix(format, "✅"), strings.HasPrefix(format, "🐳"), strings.HasPrefix(format, "🔔"), strings.HasPrefix(format, "⏳"):
		s.logger.DebugContext(ctx, msg)
	default:
		s.logger.InfoContext(ctx, msg)
	}
}

func SetTestcontainersLogger(logger *slog.Logger) {
	tclog.SetDefault(NewTestcontainersAdapter(logger))
}
