package bus

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	once    sync.Once
	closed  chan struct{}
}

// NewWebSocketConn adapts an established websocket connection
func NewWebSocketConn(ws *websocket.Conn) Conn {
	return &wsConn{ws: ws, closed: make(chan struct{})}
}

func (c *wsConn) Send(ctx context.Context, msg []byte) error {
	select {
	case <-c.closed:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return transportError(err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		return transportError(err)
	}
	return nil
}

func (c *wsConn) Recv() ([]byte, error) {
	for {
		kind, msg, err := c.ws.ReadMessage()
		if err != nil {
			return nil, transportError(err)
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return msg, nil
		}
	}
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// Upgrader turns HTTP requests into bus connections
type Upgrader struct {
	upgrader websocket.Upgrader
}

// NewUpgrader creates an upgrader admitting browser pages whose Origin
// matches one of allowed, where a trailing "*" matches any suffix. Requests
// without an Origin header come from non-browser clients and are admitted.
func NewUpgrader(allowed ...string) *Upgrader {
	patterns := append([]string(nil), allowed...)
	return &Upgrader{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return OriginAllowed(r.Header.Get("Origin"), patterns)
			},
		},
	}
}

// OriginAllowed reports whether origin may open a bus connection
func OriginAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	for _, pattern := range allowed {
		if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
			if strings.HasPrefix(origin, prefix) {
				return true
			}
		} else if strings.EqualFold(origin, pattern) {
			return true
		}
	}
	return false
}

// Upgrade completes the websocket handshake
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (Conn, error) {
	ws, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocketConn(ws), nil
}

// Dial connects to a bus endpoint, retrying with exponential backoff
func Dial(ctx context.Context, url string, maxRetries int) (Conn, error) {
	var conn Conn
	err := RetryWithBackoff(ctx, maxRetries, 200*time.Millisecond, func() error {
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return err
		}
		conn = NewWebSocketConn(ws)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// RetryWithBackoff executes a function with exponential backoff
func RetryWithBackoff(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			if delay > time.Minute {
				delay = time.Minute
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		// A rejected handshake will not succeed on retry
		if errors.Is(err, websocket.ErrBadHandshake) || ctx.Err() != nil {
			break
		}
	}

	return lastErr
}
