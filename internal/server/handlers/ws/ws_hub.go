package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/openmined/cloudsync/internal/server/handlers/api"
	"github.com/openmined/cloudsync/internal/syncmsg"
	"github.com/openmined/cloudsync/internal/version"
)

// WebsocketHub tracks connected clients and pushes change events to the
// connections of a user.
type WebsocketHub struct {
	clients  map[string]*WebsocketClient // map of ConnID -> Client
	register chan *WebsocketClient
	done     chan struct{}

	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopOnce sync.Once
}

func NewHub() *WebsocketHub {
	return &WebsocketHub{
		clients:  make(map[string]*WebsocketClient),
		register: make(chan *WebsocketClient),
		done:     make(chan struct{}),
	}
}

func (h *WebsocketHub) Run(ctx context.Context) {
	slog.Info("wshub started")
	defer slog.Info("wshub stopped")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ConnID] = client
			slog.Debug("wshub registered", "connId", client.ConnID, "user", client.Info.User, "active", len(h.clients))
			h.mu.Unlock()

			h.wg.Add(1)
			client.Start(ctx)
			go func() {
				<-client.Closed

				h.mu.Lock()
				delete(h.clients, client.ConnID)
				slog.Debug("wshub removed", "connId", client.ConnID, "user", client.Info.User, "active", len(h.clients))
				h.mu.Unlock()
				h.wg.Done()
			}()

		case <-h.done:
			return

		case <-ctx.Done():
			return
		}
	}
}

func (h *WebsocketHub) Shutdown(ctx context.Context) {
	h.stopOnce.Do(func() { close(h.done) })

	h.mu.RLock()
	clients := make([]*WebsocketClient, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		go func() {
			client.Close()
			slog.Debug("wshub killed", "connId", client.ConnID)
		}()
	}

	waited := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		slog.Warn("wshub shutdown timed out")
	}
	slog.Info("wshub shutdown")
}

// WebsocketHandler upgrades the connection and registers the client with the hub
func (h *WebsocketHub) WebsocketHandler(ctx *gin.Context) {
	user := api.User(ctx)
	if user == "" {
		api.AbortWithError(ctx, http.StatusUnauthorized, api.CodeInvalidRequest, fmt.Errorf("user missing"))
		return
	}

	conn, err := websocket.Accept(ctx.Writer, ctx.Request, nil)
	if err != nil {
		// Accept has already written the response
		ctx.Error(fmt.Errorf("websocket accept failed: %w", err))
		ctx.Abort()
		return
	}

	client := NewWebsocketClient(conn, &ClientInfo{
		User:    user,
		IPAddr:  ctx.ClientIP(),
		Headers: ctx.Request.Header.Clone(),
		Version: ctx.GetHeader("X-CloudSync-Version"),
	})
	client.Send(syncmsg.NewSystemMessage(version.Version, "ok"))

	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	case <-ctx.Request.Context().Done():
		client.Close()
	}
}

// SendMessageUser pushes msg to every connection of user.
func (h *WebsocketHub) SendMessageUser(user string, msg *syncmsg.Message) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := false
	for _, client := range h.clients {
		if client.Info.User != user {
			continue
		}
		if client.Send(msg) {
			sent = true
		}
	}

	if !sent {
		slog.Debug("wshub no client for user", "user", user, "msgType", msg.Type, "msgId", msg.Id)
	}
	return sent
}

// Count returns the number of active connections.
func (h *WebsocketHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
