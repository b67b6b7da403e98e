package grpcbridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"pkt.systems/cxconsole/internal/wire"
	"pkt.systems/pslog"
)

// DialConfig controls Dial.
type DialConfig struct {
	SocketPath string
	// Dialer overrides the Unix socket dialer.
	Dialer func(ctx context.Context, addr string) (net.Conn, error)
}

// Dial connects to a gRPC backend over a Unix domain socket and returns a client
// for it. The push subscription is established before Dial returns.
func Dial(ctx context.Context, cfg DialConfig, logger pslog.Logger) (*wire.Client, error) {
	if cfg.SocketPath == "" {
		return nil, errors.New("grpc bridge socket path is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", addr)
		}
	}
	cc, err := grpc.NewClient(
		"passthrough:///"+cfg.SocketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(dialer),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	if err != nil {
		return nil, err
	}
	c, err := openConn(ctx, cc, logger)
	if err != nil {
		_ = cc.Close()
		return nil, err
	}
	return wire.NewClient(c, logger), nil
}

// conn adapts the Call/Events pair to wire.Conn. Responses to unary calls and
// pushes from the event stream are merged into one read side.
type conn struct {
	cc     *grpc.ClientConn
	log    pslog.Logger
	cancel context.CancelFunc

	frames chan wire.Frame
	errs   chan error
	done   chan struct{}
	once   sync.Once
}

func openConn(ctx context.Context, cc *grpc.ClientConn, logger pslog.Logger) (*conn, error) {
	streamCtx, cancel := context.WithCancel(context.Background())
	stream, err := cc.NewStream(streamCtx, &serviceDesc.Streams[0], eventsMethod)
	if err != nil {
		cancel()
		logGRPCError(logger, "grpc bridge subscribe failed", err)
		return nil, err
	}
	if err := stream.SendMsg(&subscribeRequest{}); err != nil {
		cancel()
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, err
	}
	ready := make(chan error, 1)
	go func() {
		_, err := stream.Header()
		ready <- err
	}()
	select {
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	case err := <-ready:
		if err != nil {
			cancel()
			logGRPCError(logger, "grpc bridge subscribe failed", err)
			return nil, err
		}
	}
	c := &conn{
		cc:     cc,
		log:    logger,
		cancel: cancel,
		frames: make(chan wire.Frame, 64),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go c.recvLoop(stream)
	return c, nil
}

func (c *conn) recvLoop(stream grpc.ClientStream) {
	for {
		frame := new(wire.Frame)
		if err := stream.RecvMsg(frame); err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
				err = io.EOF
			} else {
				logGRPCError(c.log, "grpc bridge event stream failed", err)
			}
			c.errs <- err
			return
		}
		if !c.deliver(*frame) {
			return
		}
	}
}

func (c *conn) deliver(frame wire.Frame) bool {
	select {
	case c.frames <- frame:
		return true
	case <-c.done:
		return false
	}
}

func (c *conn) ReadFrame(ctx context.Context) (wire.Frame, error) {
	select {
	case <-ctx.Done():
		return wire.Frame{}, ctx.Err()
	case <-c.done:
		return wire.Frame{}, io.EOF
	case frame := <-c.frames:
		return frame, nil
	case err := <-c.errs:
		return wire.Frame{}, err
	}
}

// WriteFrame issues a request as a unary call. The response is delivered through
// ReadFrame like any other frame.
func (c *conn) WriteFrame(ctx context.Context, frame wire.Frame) error {
	if !frame.IsRequest() {
		return fmt.Errorf("grpc bridge: cannot send frame without id and method")
	}
	select {
	case <-c.done:
		return io.ErrClosedPipe
	default:
	}
	go func() {
		resp := new(wire.Frame)
		if err := c.cc.Invoke(ctx, callMethod, &frame, resp); err != nil {
			logGRPCError(c.log, "grpc bridge call failed", err)
			resp = &wire.Frame{Error: &wire.ErrorBody{Message: grpcMessage(err)}}
		}
		resp.ID = frame.ID
		resp.Method = ""
		resp.Topic = ""
		c.deliver(*resp)
	}()
	return nil
}

func (c *conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.cancel()
		err = c.cc.Close()
	})
	return err
}

func grpcMessage(err error) string {
	if st, ok := status.FromError(err); ok {
		return st.Message()
	}
	return err.Error()
}

func logGRPCError(log pslog.Logger, msg string, err error) {
	if log == nil || err == nil {
		return
	}
	if st, ok := status.FromError(err); ok {
		log.Warn(msg, "err", err, "code", st.Code().String(), "message", st.Message())
		return
	}
	log.Warn(msg, "err", err)
}
