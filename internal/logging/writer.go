package logging

import (
	"context"
	"log/slog"
	"strings"
)

// Writer is an io.Writer implementation that forwards command output to slog,
// one record per line.
type Writer struct {
	logger *slog.Logger
	level  slog.Level
}

// NewWriter constructs a Writer logging at info level.
func NewWriter(logger *slog.Logger) *Writer {
	return &Writer{logger: logger, level: slog.LevelInfo}
}

// NewWriterAt constructs a Writer logging at the given level. Useful for
// routing a subprocess's stderr to warn.
func NewWriterAt(logger *slog.Logger, level slog.Level) *Writer {
	return &Writer{logger: logger, level: level}
}

// Write logs the given bytes line by line at the writer's level.
func (w *Writer) Write(p []byte) (int, error) {
	if w.logger != nil {
		for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
			if line != "" {
				w.logger.Log(context.Background(), w.level, "command output", "line", line)
			}
		}
	}
	return len(p), nil
}
