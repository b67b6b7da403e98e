package wire

import (
	"context"
	"io"
	"sync"
)

// Pipe returns two connected in-memory Conns.
func Pipe() (Conn, Conn) {
	ab := make(chan Frame, 64)
	ba := make(chan Frame, 64)
	done := make(chan struct{})
	var once sync.Once
	closeFn := func() { once.Do(func() { close(done) }) }
	return &pipeConn{in: ba, out: ab, done: done, close: closeFn},
		&pipeConn{in: ab, out: ba, done: done, close: closeFn}
}

type pipeConn struct {
	in    <-chan Frame
	out   chan<- Frame
	done  chan struct{}
	close func()
}

func (p *pipeConn) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-p.done:
		return Frame{}, io.EOF
	case frame := <-p.in:
		return frame, nil
	}
}

func (p *pipeConn) WriteFrame(ctx context.Context, frame Frame) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return io.ErrClosedPipe
	case p.out <- frame:
		return nil
	}
}

func (p *pipeConn) Close() error {
	p.close()
	return nil
}
