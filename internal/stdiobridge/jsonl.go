package stdiobridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"pkt.systems/cxconsole/internal/wire"
)

// DefaultMaxMessageBytes bounds a single JSONL frame.
const DefaultMaxMessageBytes = 4 << 20

// jsonlConn carries one frame per line.
type jsonlConn struct {
	reader   *bufio.Reader
	maxBytes int

	writeMu sync.Mutex
	writer  io.Writer
	closer  io.Closer
}

// NewConn returns a JSONL frame connection over r and w. Close closes c when non-nil.
func NewConn(r io.Reader, w io.Writer, c io.Closer, maxMessageBytes int) wire.Conn {
	return newJSONLConn(r, w, c, maxMessageBytes)
}

func newJSONLConn(r io.Reader, w io.Writer, c io.Closer, maxMessageBytes int) *jsonlConn {
	if maxMessageBytes <= 0 {
		maxMessageBytes = DefaultMaxMessageBytes
	}
	return &jsonlConn{reader: bufio.NewReader(r), writer: w, closer: c, maxBytes: maxMessageBytes}
}

func (c *jsonlConn) ReadFrame(ctx context.Context) (wire.Frame, error) {
	for {
		if ctx.Err() != nil {
			return wire.Frame{}, ctx.Err()
		}
		line, err := c.reader.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			return wire.Frame{}, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if err != nil {
				return wire.Frame{}, err
			}
			continue
		}
		if len(line) > c.maxBytes {
			return wire.Frame{}, &wire.DecodeError{
				Data: []byte(previewText(string(line), 200)),
				Err:  fmt.Errorf("frame of %d bytes exceeds limit %d", len(line), c.maxBytes),
			}
		}
		return wire.DecodeFrame(line)
	}
}

func (c *jsonlConn) WriteFrame(ctx context.Context, frame wire.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.writer.Write(data)
	return err
}

func (c *jsonlConn) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
