package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"pkt.systems/cxconsole/schema"
	"pkt.systems/pslog"
)

func newCaptureLogger(capture *logCapture) pslog.Logger {
	return pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
}

func TestWithSessionAddsField(t *testing.T) {
	capture := &logCapture{}
	log := WithSession(newCaptureLogger(capture), schema.SessionID(7))
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["session"] != float64(7) {
		t.Fatalf("expected session field, got %+v", entry)
	}
}

func TestWithSessionSkipsZero(t *testing.T) {
	capture := &logCapture{}
	log := WithSession(newCaptureLogger(capture), 0)
	log.Info("hello")

	entry := capture.firstEntry(t)
	if _, ok := entry["session"]; ok {
		t.Fatalf("did not expect session field for zero id")
	}
}

func TestWithSessionCtxDeduplicates(t *testing.T) {
	capture := &logCapture{}
	logger := newCaptureLogger(capture)
	ctx := ContextWithSessionLogger(context.Background(), WithSession(logger, 7), 7)
	WithSessionCtx(ctx, 7).Info("hello")

	line := bytes.TrimSpace(capture.buf.Bytes())
	if bytes.Count(line, []byte(`"session"`)) != 1 {
		t.Fatalf("expected a single session field, got %s", line)
	}
}

func TestWithTerminalAndActionAddFields(t *testing.T) {
	capture := &logCapture{}
	ctx := pslog.ContextWithLogger(context.Background(), newCaptureLogger(capture))
	log := WithAction(WithTerminalCtx(ctx, "t1"), "a1")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["terminal"] != "t1" {
		t.Fatalf("expected terminal field, got %+v", entry)
	}
	if entry["action"] != "a1" {
		t.Fatalf("expected action field, got %+v", entry)
	}
}

func TestCopyContextFields(t *testing.T) {
	src := ContextWithTerminal(ContextWithSession(context.Background(), 3), "t9")
	dst := CopyContextFields(context.Background(), src)
	if got, _ := dst.Value(sessionKey).(schema.SessionID); got != 3 {
		t.Fatalf("expected session marker 3, got %v", got)
	}
	if got, _ := dst.Value(terminalKey).(schema.TerminalID); got != "t9" {
		t.Fatalf("expected terminal marker t9, got %v", got)
	}
}

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

func (c *logCapture) firstEntry(t *testing.T) map[string]any {
	t.Helper()
	data := c.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		idx = len(data)
	}
	line := bytes.TrimSpace(data[:idx])
	entry := map[string]any{}
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("parse log entry: %v", err)
	}
	return entry
}
