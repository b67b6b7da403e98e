package stdiobridge

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"

	"pkt.systems/cxconsole/internal/wire"
	"pkt.systems/cxconsole/schema"
	"pkt.systems/pslog"
)

type readResult struct {
	frame wire.Frame
	err   error
}

// processConn merges the backend's JSONL stdout with its stderr. Each stderr
// line becomes a session-topic stderr push so it lands in the console log.
type processConn struct {
	json    *jsonlConn
	results chan readResult
	errMu   sync.Mutex
	err     error
	wg      sync.WaitGroup
	log     pslog.Logger
	done    chan struct{}
	once    sync.Once
}

func newProcessConn(ctx context.Context, stdout io.Reader, stderr io.Reader, stdin io.WriteCloser, maxMessageBytes int) *processConn {
	conn := &processConn{
		json:    newJSONLConn(stdout, stdin, stdin, maxMessageBytes),
		results: make(chan readResult, 256),
		log:     pslog.Ctx(ctx),
		done:    make(chan struct{}),
	}
	conn.wg.Add(2)
	go conn.readJSON(ctx)
	go conn.readStderr(stderr)
	go func() {
		conn.wg.Wait()
		close(conn.results)
	}()
	return conn
}

func (c *processConn) readJSON(ctx context.Context) {
	defer c.wg.Done()
	for {
		frame, err := c.json.ReadFrame(ctx)
		if err != nil {
			var decodeErr *wire.DecodeError
			if errors.As(err, &decodeErr) {
				if !c.deliver(readResult{err: err}) {
					return
				}
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				if c.log != nil {
					c.log.Warn("stdio bridge stdout error", "err", err)
				}
				c.setErr(err)
			}
			return
		}
		if !c.deliver(readResult{frame: frame}) {
			return
		}
	}
}

// deliver hands a result to ReadFrame; it gives up once the conn is closed.
func (c *processConn) deliver(result readResult) bool {
	select {
	case c.results <- result:
		return true
	case <-c.done:
		return false
	}
}

func (c *processConn) readStderr(reader io.Reader) {
	defer c.wg.Done()
	scanner := bufio.NewScanner(reader)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	count := 0
	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			continue
		}
		count++
		if c.log != nil {
			preview := previewText(text, 200)
			c.log.Trace("stdio bridge stderr", "text_len", len(text), "preview", preview, "truncated", len(preview) < len(text))
		}
		frame, err := wire.PushFrame(schema.TopicSession, map[string]schema.OutputChunk{
			string(schema.SessionPushStderr): {Chunk: text},
		})
		if err != nil {
			continue
		}
		if !c.deliver(readResult{frame: frame}) {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		if c.log != nil {
			c.log.Warn("stdio bridge stderr read failed", "err", err)
		}
		c.setErr(err)
	}
	if count > 0 && c.log != nil {
		c.log.Debug("stdio bridge stderr completed", "lines", count)
	}
}

func (c *processConn) setErr(err error) {
	if err == nil {
		return
	}
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *processConn) ReadFrame(ctx context.Context) (wire.Frame, error) {
	select {
	case <-ctx.Done():
		return wire.Frame{}, ctx.Err()
	case result, ok := <-c.results:
		if ok {
			return result.frame, result.err
		}
		c.errMu.Lock()
		err := c.err
		c.errMu.Unlock()
		if err != nil {
			return wire.Frame{}, err
		}
		return wire.Frame{}, io.EOF
	}
}

func (c *processConn) WriteFrame(ctx context.Context, frame wire.Frame) error {
	return c.json.WriteFrame(ctx, frame)
}

// Close closes the backend's stdin; the backend exits on EOF.
func (c *processConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return c.json.Close()
}

func previewText(value string, max int) string {
	if max <= 0 || len(value) <= max {
		return value
	}
	return value[:max]
}
