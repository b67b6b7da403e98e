package grpcbridge

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"pkt.systems/cxconsole/internal/wire"
	"pkt.systems/pslog"
)

const subscriberDepth = 256

// Server answers bridge calls with one handler and broadcasts its pushes to
// every Events subscriber.
type Server struct {
	handler wire.Handler
	logger  pslog.Logger

	callMu sync.Mutex

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	frames chan wire.Frame
	done   <-chan struct{}
}

// NewServer builds a server. The factory is invoked once; its publisher fans out
// to all subscribers.
func NewServer(factory wire.HandlerFactory, logger pslog.Logger) *Server {
	s := &Server{logger: logger, subs: make(map[*subscriber]struct{})}
	s.handler = factory(s)
	return s
}

// Publish sends a push to every subscriber. A subscriber that cannot keep up
// blocks the publisher until ctx ends or the subscriber leaves.
func (s *Server) Publish(ctx context.Context, topic string, payload any) error {
	frame, err := wire.PushFrame(topic, payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	for _, sub := range subs {
		select {
		case sub.frames <- frame:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Call answers one request. Calls are handled one at a time in arrival order.
func (s *Server) Call(ctx context.Context, req *wire.Frame) (*wire.Frame, error) {
	if req == nil || !req.IsRequest() {
		return nil, status.Error(codes.InvalidArgument, "request frame requires id and method")
	}
	log := s.log(ctx)
	log.Trace("grpc bridge call", "method", req.Method, "id", req.ID)
	s.callMu.Lock()
	defer s.callMu.Unlock()
	resp := wire.Answer(ctx, s.handler, *req, log)
	return &resp, nil
}

// Events streams pushes until the client goes away.
func (s *Server) Events(_ *subscribeRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	sub := &subscriber{frames: make(chan wire.Frame, subscriberDepth), done: ctx.Done()}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
	}()
	if err := stream.SendHeader(metadata.Pairs(readyHeaderKey, "1")); err != nil {
		return err
	}
	log := s.log(ctx)
	log.Debug("grpc bridge subscriber attached")
	for {
		select {
		case <-ctx.Done():
			log.Debug("grpc bridge subscriber detached")
			return nil
		case frame := <-sub.frames:
			if err := stream.SendMsg(&frame); err != nil {
				return err
			}
		}
	}
}

// Register attaches the bridge service to gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

// Serve runs a gRPC server on lis until ctx ends.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	gs := grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	s.Register(gs)
	errCh := make(chan error, 1)
	go func() {
		errCh <- gs.Serve(lis)
	}()
	select {
	case <-ctx.Done():
		gs.Stop()
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// ListenAndServe serves over a Unix domain socket.
func (s *Server) ListenAndServe(ctx context.Context, socketPath string) error {
	if socketPath == "" {
		return errors.New("grpc bridge socket path is required")
	}
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return err
	}
	_ = os.Remove(socketPath)
	lis, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}
	s.log(ctx).Info("grpc bridge listening", "socket", socketPath)
	defer func() { _ = os.Remove(socketPath) }()
	return s.Serve(ctx, lis)
}

func (s *Server) log(ctx context.Context) pslog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return pslog.Ctx(ctx)
}
