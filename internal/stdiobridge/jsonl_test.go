package stdiobridge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"pkt.systems/cxconsole/internal/wire"
)

func TestJSONLConnReadsFrames(t *testing.T) {
	data := "\n" +
		`{"id":"1","result":{"sessionId":7}}` + "\n" +
		"not json\n" +
		`{"topic":"session","payload":{"stdout":{"sessionId":7,"chunk":"hi"}}}` + "\n"
	conn := newJSONLConn(strings.NewReader(data), io.Discard, nil, 0)

	frame, err := conn.ReadFrame(context.Background())
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !frame.IsResponse() || frame.ID != "1" {
		t.Fatalf("unexpected first frame: %+v", frame)
	}

	_, err = conn.ReadFrame(context.Background())
	var decodeErr *wire.DecodeError
	if !errors.As(err, &decodeErr) || string(decodeErr.Data) != "not json" {
		t.Fatalf("expected decode error for bad line, got %v", err)
	}

	frame, err = conn.ReadFrame(context.Background())
	if err != nil {
		t.Fatalf("ReadFrame(3): %v", err)
	}
	if !frame.IsPush() || frame.Topic != "session" {
		t.Fatalf("unexpected push frame: %+v", frame)
	}

	if _, err := conn.ReadFrame(context.Background()); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestJSONLConnRejectsOversizedLine(t *testing.T) {
	line := `{"id":"1","result":"` + strings.Repeat("x", 64) + `"}` + "\n"
	conn := newJSONLConn(strings.NewReader(line), io.Discard, nil, 32)
	_, err := conn.ReadFrame(context.Background())
	var decodeErr *wire.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestJSONLConnWritesOneFramePerLine(t *testing.T) {
	var buf bytes.Buffer
	conn := newJSONLConn(strings.NewReader(""), &buf, nil, 0)
	if err := conn.WriteFrame(context.Background(), wire.Frame{ID: "a", Method: wire.MethodSessionStop}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if err := conn.WriteFrame(context.Background(), wire.Frame{ID: "b", Method: wire.MethodModelsList}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	want := `{"id":"a","method":"session.stop"}` + "\n" + `{"id":"b","method":"models.list"}` + "\n"
	if buf.String() != want {
		t.Fatalf("unexpected output:\nwant: %q\ngot:  %q", want, buf.String())
	}
}
