package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestWriterSplitsLines(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	w := NewWriter(logger)
	chunk := []byte("step 1/4 pulling base\nstep 2/4 compiling\n")
	n, err := w.Write(chunk)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(chunk) {
		t.Errorf("Write() = %d bytes, want %d", n, len(chunk))
	}

	out := buf.String()
	if got := strings.Count(out, "command output"); got != 2 {
		t.Errorf("logged %d records, want 2:\n%s", got, out)
	}
	if !strings.Contains(out, "step 2/4 compiling") {
		t.Errorf("missing second line:\n%s", out)
	}
}

func TestWriterAtLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	if _, err := NewWriterAt(logger, slog.LevelWarn).Write([]byte("push denied\n")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("stderr lines should log at warn:\n%s", buf.String())
	}
}
