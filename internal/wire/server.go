package wire

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"pkt.systems/pslog"
)

// Handler answers requests on the backend side of a connection.
type Handler interface {
	Handle(ctx context.Context, method string, params json.RawMessage) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, method string, params json.RawMessage) (any, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, method string, params json.RawMessage) (any, error) {
	return f(ctx, method, params)
}

// Publisher sends pushes to the connected client.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// HandlerFactory builds the handler for one connection. Pushes for that
// connection go through pub.
type HandlerFactory func(pub Publisher) Handler

type peer struct {
	conn Conn
	mu   sync.Mutex
}

func (p *peer) Publish(ctx context.Context, topic string, payload any) error {
	frame, err := PushFrame(topic, payload)
	if err != nil {
		return err
	}
	return p.write(ctx, frame)
}

func (p *peer) write(ctx context.Context, frame Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteFrame(ctx, frame)
}

// Serve answers requests on conn until it closes or ctx ends. Requests are handled
// in arrival order, so a response is always written before pushes the handler
// publishes afterwards. A handler with a Close method is closed on return.
func Serve(ctx context.Context, conn Conn, factory HandlerFactory, logger pslog.Logger) error {
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	p := &peer{conn: conn}
	handler := factory(p)
	if closer, ok := handler.(interface{ Close() }); ok {
		defer closer.Close()
	}
	for {
		frame, err := conn.ReadFrame(ctx)
		if err != nil {
			var decodeErr *DecodeError
			if errors.As(err, &decodeErr) {
				logger.Warn("wire serve decode failed", "err", err)
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if !frame.IsRequest() {
			logger.Debug("wire serve frame ignored", "topic", frame.Topic, "id", frame.ID)
			continue
		}
		resp := Answer(ctx, handler, frame, logger)
		if err := p.write(ctx, resp); err != nil {
			return err
		}
	}
}

// Answer runs one request through handler and builds its response frame.
func Answer(ctx context.Context, handler Handler, frame Frame, logger pslog.Logger) Frame {
	resp := Frame{ID: frame.ID}
	result, err := handler.Handle(ctx, frame.Method, frame.Params)
	if err != nil {
		if logger != nil {
			logger.Debug("wire serve call failed", "method", frame.Method, "err", err)
		}
		resp.Error = &ErrorBody{Message: err.Error()}
		return resp
	}
	if result == nil {
		return resp
	}
	data, err := json.Marshal(result)
	if err != nil {
		resp.Error = &ErrorBody{Message: err.Error()}
		return resp
	}
	resp.Result = data
	return resp
}
