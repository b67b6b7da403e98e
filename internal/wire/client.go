package wire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"pkt.systems/cxconsole/schema"
	"pkt.systems/pslog"
)

const pushDepth = 256

// Client multiplexes requests over a Conn and routes pushes to the session and
// terminal topics. It satisfies the engine's bridge and push source contracts.
type Client struct {
	conn Conn
	log  pslog.Logger

	mu       sync.Mutex
	pending  map[string]chan Frame
	closed   bool
	closeErr error

	sessions  chan schema.SessionPush
	terminals chan schema.TerminalPush
	done      chan struct{}
	cancel    context.CancelFunc
	readDone  chan struct{}
}

// NewClient starts reading frames from conn.
func NewClient(conn Conn, logger pslog.Logger) *Client {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:      conn,
		log:       logger,
		pending:   make(map[string]chan Frame),
		sessions:  make(chan schema.SessionPush, pushDepth),
		terminals: make(chan schema.TerminalPush, pushDepth),
		done:      make(chan struct{}),
		cancel:    cancel,
		readDone:  make(chan struct{}),
	}
	go c.readLoop(ctx)
	return c
}

// SessionEvents returns the session topic. It is closed when the connection ends.
func (c *Client) SessionEvents() <-chan schema.SessionPush {
	return c.sessions
}

// TerminalEvents returns the terminal topic. It is closed when the connection ends.
func (c *Client) TerminalEvents() <-chan schema.TerminalPush {
	return c.terminals
}

// Done is closed once the connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

// Close closes the connection and fails pending calls.
func (c *Client) Close() error {
	err := c.conn.Close()
	c.cancel()
	c.shutdown(schema.ErrBridgeClosed)
	<-c.readDone
	return err
}

// Call sends a request and decodes the result into out (which may be nil).
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	frame := Frame{ID: uuid.NewString(), Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("%s: encode params: %w", method, err)
		}
		frame.Params = data
	}
	reply := make(chan Frame, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return schema.ErrBridgeClosed
	}
	c.pending[frame.ID] = reply
	c.mu.Unlock()
	defer c.forget(frame.ID)

	c.log.Trace("wire call", "method", method, "id", frame.ID)
	if err := c.conn.WriteFrame(ctx, frame); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", method, ctx.Err())
	case <-c.done:
		return schema.ErrBridgeClosed
	case resp := <-reply:
		if resp.Error != nil {
			return &RemoteError{Method: method, Message: resp.Error.Message}
		}
		if out == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
		return nil
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) readLoop(ctx context.Context) {
	defer close(c.readDone)
	defer close(c.sessions)
	defer close(c.terminals)
	for {
		frame, err := c.conn.ReadFrame(ctx)
		if err != nil {
			var decodeErr *DecodeError
			if errors.As(err, &decodeErr) {
				preview := previewText(string(decodeErr.Data), 200)
				c.log.Warn("wire frame decode failed", "preview", preview, "truncated", len(preview) < len(decodeErr.Data), "err", err)
				continue
			}
			c.shutdown(err)
			return
		}
		switch {
		case frame.IsPush():
			if !c.route(frame) {
				return
			}
		case frame.IsResponse():
			c.mu.Lock()
			reply, ok := c.pending[frame.ID]
			c.mu.Unlock()
			if !ok {
				c.log.Debug("wire response dropped", "id", frame.ID)
				continue
			}
			reply <- frame
		default:
			c.log.Debug("wire frame ignored", "method", frame.Method, "id", frame.ID)
		}
	}
}

// route delivers a push in order. It returns false once the client is closed.
func (c *Client) route(frame Frame) bool {
	switch frame.Topic {
	case schema.TopicSession:
		select {
		case c.sessions <- schema.DecodeSessionPush(frame.Payload):
		case <-c.done:
			return false
		}
	case schema.TopicTerminal:
		select {
		case c.terminals <- schema.DecodeTerminalPush(frame.Payload):
		case <-c.done:
			return false
		}
	default:
		c.log.Debug("wire push ignored", "topic", frame.Topic)
	}
	return true
}

func (c *Client) shutdown(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeErr = err
	close(c.done)
	if err != nil && !errors.Is(err, schema.ErrBridgeClosed) {
		c.log.Info("wire connection closed", "err", err)
	}
}

// SessionStart starts the agent session.
func (c *Client) SessionStart(ctx context.Context, cfg schema.SessionConfig) (schema.SessionStartResult, error) {
	var result schema.SessionStartResult
	err := c.Call(ctx, MethodSessionStart, cfg, &result)
	return result, err
}

// SessionStop stops the agent session.
func (c *Client) SessionStop(ctx context.Context) error {
	return c.Call(ctx, MethodSessionStop, nil, nil)
}

// ModelsList lists the available models.
func (c *Client) ModelsList(ctx context.Context) ([]schema.ModelEntry, error) {
	var result schema.ModelsListResult
	if err := c.Call(ctx, MethodModelsList, nil, &result); err != nil {
		return nil, err
	}
	return result.Models, nil
}

// MCPList lists MCP servers.
func (c *Client) MCPList(ctx context.Context) ([]schema.MCPServer, error) {
	var result schema.MCPListResult
	if err := c.Call(ctx, MethodMCPList, nil, &result); err != nil {
		return nil, err
	}
	return result.Servers, nil
}

// ApprovalRespond forwards an approval decision.
func (c *Client) ApprovalRespond(ctx context.Context, actionID schema.ActionID, decision schema.ApprovalDecision) error {
	return c.Call(ctx, MethodApprovalRespond, schema.ApprovalResponse{ActionID: actionID, Decision: decision}, nil)
}

// UserInputRespond forwards a user-input decision.
func (c *Client) UserInputRespond(ctx context.Context, actionID schema.ActionID, decision schema.UserInputDecision, answers schema.UserInputAnswers) error {
	return c.Call(ctx, MethodUserInputRespond, schema.UserInputResponse{ActionID: actionID, Decision: decision, Answers: answers}, nil)
}

// TerminalCreate creates a pseudo-terminal.
func (c *Client) TerminalCreate(ctx context.Context, cwd string) (schema.TerminalCreateResult, error) {
	var result schema.TerminalCreateResult
	err := c.Call(ctx, MethodTerminalCreate, schema.TerminalCreateRequest{Cwd: cwd}, &result)
	return result, err
}

// TerminalWrite writes input to a terminal.
func (c *Client) TerminalWrite(ctx context.Context, id schema.TerminalID, data string) error {
	return c.Call(ctx, MethodTerminalWrite, schema.TerminalWriteRequest{TerminalID: id, Data: data}, nil)
}

// TerminalResize resizes a terminal.
func (c *Client) TerminalResize(ctx context.Context, id schema.TerminalID, cols, rows int) error {
	return c.Call(ctx, MethodTerminalResize, schema.TerminalResizeRequest{TerminalID: id, Cols: cols, Rows: rows}, nil)
}

// TerminalKill kills a terminal.
func (c *Client) TerminalKill(ctx context.Context, id schema.TerminalID) error {
	return c.Call(ctx, MethodTerminalKill, schema.TerminalKillRequest{TerminalID: id}, nil)
}
