package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/openmined/cloudsync/internal/syncmsg"
)

const (
	writeTimeout   = 20 * time.Second
	sendBufferSize = 64
	shutdownReason = "shutdown"
)

// WebsocketClient is a connected, push only client. Anything the peer sends
// besides control frames closes the connection.
type WebsocketClient struct {
	ConnID string
	Info   *ClientInfo
	Closed chan struct{}

	conn      *websocket.Conn
	msgTx     chan *syncmsg.Message
	wsDone    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewWebsocketClient(conn *websocket.Conn, info *ClientInfo) *WebsocketClient {
	return &WebsocketClient{
		ConnID: uuid.NewString()[:8],
		Info:   info,
		Closed: make(chan struct{}),
		conn:   conn,
		msgTx:  make(chan *syncmsg.Message, sendBufferSize),
		wsDone: make(chan struct{}),
	}
}

func (c *WebsocketClient) Start(ctx context.Context) {
	slog.Debug("wsclient start", "connId", c.ConnID)
	c.wg.Add(1)
	go c.writeLoop(c.conn.CloseRead(ctx))
}

// Send queues msg without blocking. It reports false when the client is gone
// or its buffer is full.
func (c *WebsocketClient) Send(msg *syncmsg.Message) bool {
	select {
	case <-c.Closed:
		return false
	default:
	}

	select {
	case c.msgTx <- msg:
		return true
	default:
		slog.Warn("wsclient send buffer full", "connId", c.ConnID, "user", c.Info.User)
		return false
	}
}

func (c *WebsocketClient) Close() {
	c.closeConnection(websocket.StatusNormalClosure, shutdownReason)
}

func (c *WebsocketClient) closeConnection(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.wsDone)
		c.conn.Close(status, reason)

		// the writer exits on wsDone
		c.wg.Wait()

		close(c.Closed)
		slog.Debug("wsclient closed", "connId", c.ConnID)
	})
}

func (c *WebsocketClient) writeLoop(ctx context.Context) {
	defer func() {
		slog.Debug("wsclient writer shutdown", "connId", c.ConnID)
		c.wg.Done()
		c.closeConnection(websocket.StatusNormalClosure, shutdownReason)
	}()

	for {
		select {
		case msg := <-c.msgTx:
			ctxWrite, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(ctxWrite, c.conn, msg)
			cancel()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Error("wsclient writer", "connId", c.ConnID, "msgId", msg.Id, "msgType", msg.Type, "error", err)
				}
				return
			}
			slog.Debug("wsclient writer", "connId", c.ConnID, "msgId", msg.Id, "msgType", msg.Type)

		case <-c.wsDone:
			return

		case <-ctx.Done():
			return
		}
	}
}
