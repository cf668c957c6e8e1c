package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	errpkg "github.com/drblury/runtimeclient/internal/runtime/errors"
	"github.com/drblury/runtimeclient/internal/runtime/jsoncodec"
	"github.com/drblury/runtimeclient/internal/runtime/reversecall"
)

const (
	webSocketHandshakeTimeout = 10 * time.Second
	webSocketCloseTimeout     = time.Second
)

// WebSocketCaller opens reverse call streams as WebSocket connections to
// baseURL + method. Every envelope is one JSON text frame.
type WebSocketCaller struct {
	baseURL string
	dialer  *websocket.Dialer
	header  http.Header
}

// NewWebSocketCaller creates a caller for baseURL. A nil dialer uses a copy
// of websocket.DefaultDialer with a handshake timeout.
func NewWebSocketCaller(baseURL string, dialer *websocket.Dialer) *WebSocketCaller {
	if dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = webSocketHandshakeTimeout
		dialer = &d
	}
	return &WebSocketCaller{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dialer:  dialer,
		header:  http.Header{},
	}
}

// WithHeader returns a copy of the caller that sends header on every dial.
func (c *WebSocketCaller) WithHeader(key, value string) *WebSocketCaller {
	cp := *c
	cp.header = c.header.Clone()
	cp.header.Set(key, value)
	return &cp
}

var _ reversecall.MethodCaller = (*WebSocketCaller)(nil)

// Call dials the stream for method. The connection is closed when ctx ends.
func (c *WebSocketCaller) Call(ctx context.Context, method string) (reversecall.RawStream, error) {
	target := c.baseURL + method
	conn, resp, err := c.dialer.DialContext(ctx, target, c.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &errpkg.CouldNotConnectError{Target: target, Err: err}
	}

	s := &webSocketStream{ctx: ctx, conn: conn}
	s.stop = context.AfterFunc(ctx, s.close)
	return s, nil
}

type webSocketStream struct {
	ctx     context.Context
	conn    *websocket.Conn
	stop    func() bool
	writeMu sync.Mutex
	once    sync.Once
}

func (s *webSocketStream) SendMsg(m any) error {
	data, err := jsoncodec.Marshal(m)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return s.translate(err)
	}
	return nil
}

func (s *webSocketStream) RecvMsg(m any) error {
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			s.stop()
			s.close()
			return s.translate(err)
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		return jsoncodec.Unmarshal(data, m)
	}
}

// CloseSend tells the Runtime no more envelopes follow. Reads continue until
// the Runtime closes its side.
func (s *webSocketStream) CloseSend() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(webSocketCloseTimeout))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return s.translate(err)
	}
	return nil
}

func (s *webSocketStream) close() {
	s.once.Do(func() { _ = s.conn.Close() })
}

// translate maps connection errors to what the reverse call client expects:
// the context error after cancellation and io.EOF after a normal close.
func (s *webSocketStream) translate(err error) error {
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return io.EOF
	}
	return err
}

// Close is a no-op: every stream owns its own connection.
func (c *WebSocketCaller) Close() error { return nil }
