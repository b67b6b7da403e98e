package grpcbridge

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc/test/bufconn"

	"pkt.systems/cxconsole/internal/wire"
	"pkt.systems/cxconsole/schema"
)

func testFactory(pub wire.Publisher) wire.Handler {
	return wire.HandlerFunc(func(ctx context.Context, method string, params json.RawMessage) (any, error) {
		switch method {
		case wire.MethodTerminalCreate:
			payload := map[string]any{"data": map[string]any{"terminalId": "t1", "seq": 1, "chunk": "$ "}}
			if err := pub.Publish(ctx, schema.TopicTerminal, payload); err != nil {
				return nil, err
			}
			return schema.TerminalCreateResult{TerminalID: "t1", Title: "bash"}, nil
		case wire.MethodModelsList:
			return nil, errors.New("catalog offline")
		case wire.MethodTerminalWrite:
			var req schema.TerminalWriteRequest
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, err
			}
			if req.Data != "ls\n" {
				return nil, errors.New("unexpected data")
			}
		}
		return nil, nil
	})
}

func startBufServer(t *testing.T) DialConfig {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = NewServer(testFactory, nil).Serve(ctx, lis)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return DialConfig{
		SocketPath: "bufnet",
		Dialer: func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		},
	}
}

func TestCallPushAndRemoteError(t *testing.T) {
	cfg := startBufServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Dial(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	result, err := client.TerminalCreate(ctx, "/tmp")
	if err != nil {
		t.Fatalf("terminal create: %v", err)
	}
	if result.TerminalID != "t1" || result.Title != "bash" {
		t.Fatalf("unexpected result %+v", result)
	}
	select {
	case push := <-client.TerminalEvents():
		if push.Kind != schema.TerminalPushData || push.TerminalID != "t1" || push.Chunk != "$ " {
			t.Fatalf("unexpected push %+v", push)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for push")
	}

	if err := client.TerminalWrite(ctx, "t1", "ls\n"); err != nil {
		t.Fatalf("terminal write: %v", err)
	}
	_, err = client.ModelsList(ctx)
	var remote *wire.RemoteError
	if !errors.As(err, &remote) || remote.Message != "catalog offline" {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestClientEndsWhenServerStops(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	serveCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = NewServer(testFactory, nil).Serve(serveCtx, lis)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Dial(ctx, DialConfig{
		SocketPath: "bufnet",
		Dialer: func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		},
	}, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	stop()
	<-done
	select {
	case <-client.Done():
	case <-ctx.Done():
		t.Fatalf("client did not observe server shutdown")
	}
	if _, ok := <-client.SessionEvents(); ok {
		t.Fatalf("expected session topic to be closed")
	}
}

func TestListenAndServeUnixSocket(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "bridge.sock")
	serveCtx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewServer(testFactory, nil).ListenAndServe(serveCtx, socket)
	}()
	defer func() {
		stop()
		<-done
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var client *wire.Client
	var err error
	for client == nil {
		client, err = Dial(ctx, DialConfig{SocketPath: socket}, nil)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("dial: %v", err)
			}
			time.Sleep(20 * time.Millisecond)
		}
	}
	defer client.Close()
	if _, err := client.TerminalCreate(ctx, ""); err != nil {
		t.Fatalf("terminal create: %v", err)
	}
}

func TestDialRequiresSocketPath(t *testing.T) {
	if _, err := Dial(context.Background(), DialConfig{}, nil); err == nil {
		t.Fatalf("expected error for missing socket path")
	}
}
