// Package wsbridge carries the wire protocol over a websocket, one frame per
// text message.
package wsbridge

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"pkt.systems/cxconsole/internal/wire"
	"pkt.systems/pslog"
)

// DefaultMaxMessageBytes bounds a single websocket message.
const DefaultMaxMessageBytes = 4 << 20

type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	once    sync.Once
}

func newConn(ws *websocket.Conn, maxMessageBytes int64) *conn {
	if maxMessageBytes <= 0 {
		maxMessageBytes = DefaultMaxMessageBytes
	}
	ws.SetReadLimit(maxMessageBytes)
	return &conn{ws: ws}
}

func (c *conn) ReadFrame(ctx context.Context) (wire.Frame, error) {
	for {
		mt, data, err := c.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return wire.Frame{}, errors.Join(err, errClosed)
			}
			return wire.Frame{}, err
		}
		if mt != websocket.MessageText {
			continue
		}
		return wire.DecodeFrame(data)
	}
}

func (c *conn) WriteFrame(ctx context.Context, frame wire.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsjson.Write(ctx, c.ws, frame)
}

func (c *conn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.ws.Close(websocket.StatusNormalClosure, "bye")
	})
	return err
}

var errClosed = errors.New("websocket closed")

// DialConfig controls Dial.
type DialConfig struct {
	URL             string
	MaxMessageBytes int64
	DialTimeout     time.Duration
	Header          http.Header
}

// Dial connects to a websocket backend and returns a client for it.
func Dial(ctx context.Context, cfg DialConfig) (*wire.Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("websocket url is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 15 * time.Second
	}
	log := pslog.Ctx(ctx)
	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	ws, _, err := websocket.Dial(dialCtx, cfg.URL, &websocket.DialOptions{HTTPHeader: cfg.Header})
	if err != nil {
		log.Warn("ws bridge dial failed", "url", cfg.URL, "err", err)
		return nil, err
	}
	log.Info("ws bridge connected", "url", cfg.URL)
	return wire.NewClient(newConn(ws, cfg.MaxMessageBytes), log), nil
}

// Handler serves the backend side of the protocol on each accepted websocket.
func Handler(factory wire.HandlerFactory, maxMessageBytes int64, logger pslog.Logger) http.Handler {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			logger.Warn("ws bridge accept failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		c := newConn(ws, maxMessageBytes)
		defer c.Close()
		log := logger.With("remote", r.RemoteAddr)
		log.Info("ws bridge peer connected")
		if err := wire.Serve(r.Context(), c, factory, log); err != nil && !errors.Is(err, errClosed) {
			log.Debug("ws bridge peer ended", "err", err)
		}
	})
}
